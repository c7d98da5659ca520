package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/flowcraft/orchestrator/internal/log"
	"github.com/flowcraft/orchestrator/pkg/models"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Registry is the loaded, validated manifest plus the directory it lives
// in, so task scripts and workflow/job definitions can be resolved
// relative to it.
type Registry struct {
	manifest *models.Manifest
	baseDir  string
	log      log.Logger
}

// Load reads, validates, and parses the manifest at path. logger receives
// non-fatal file-existence warnings; pass log.NoopLogger{} to silence them.
func Load(path string, logger log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.NoopLogger{}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read manifest %s", path)
	}

	if offenses := scanDuplicateKeys(raw); len(offenses) > 0 {
		return nil, errors.New(formatDuplicateOffenses(offenses))
	}

	var m models.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrapf(err, "parse manifest %s", path)
	}

	if err := validateNames(&m); err != nil {
		return nil, err
	}
	if err := validateUniqueness(&m); err != nil {
		return nil, err
	}

	reg := &Registry{manifest: &m, baseDir: filepath.Dir(path), log: logger}
	reg.warnMissingFiles()
	return reg, nil
}

func formatDuplicateOffenses(offenses []keyOffense) string {
	var sb strings.Builder
	sb.WriteString("duplicate manifest keys found:")
	for _, o := range offenses {
		sb.WriteString(fmt.Sprintf(" (line %d, key %q)", o.Line, o.Key))
	}
	return sb.String()
}

func validateNames(m *models.Manifest) error {
	var bad []string
	check := func(name string) {
		if !nameRe.MatchString(name) {
			bad = append(bad, name)
		}
	}
	for name := range m.Tasks {
		check(name)
	}
	for name := range m.Workflows {
		check(name)
	}
	for name := range m.Jobs {
		check(name)
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return errors.Errorf("invalid manifest names (must match %s): %s", nameRe.String(), strings.Join(bad, ", "))
}

func validateUniqueness(m *models.Manifest) error {
	seen := map[string]string{}
	var dupes []string
	record := func(name, kind string) {
		if prev, ok := seen[name]; ok {
			dupes = append(dupes, fmt.Sprintf("%s (declared as both %s and %s)", name, prev, kind))
			return
		}
		seen[name] = kind
	}
	for name := range m.Tasks {
		record(name, "task")
	}
	for name := range m.Workflows {
		record(name, "workflow")
	}
	for name := range m.Jobs {
		record(name, "job")
	}
	if len(dupes) == 0 {
		return nil
	}
	sort.Strings(dupes)
	return errors.Errorf("duplicate manifest names across tasks/workflows/jobs: %s", strings.Join(dupes, "; "))
}

func (r *Registry) warnMissingFiles() {
	for name, ptr := range r.manifest.Tasks {
		r.warnIfMissing("task", name, ptr.File)
	}
	for name, ptr := range r.manifest.Workflows {
		r.warnIfMissing("workflow", name, ptr.File)
	}
	for name, ptr := range r.manifest.Jobs {
		r.warnIfMissing("job", name, ptr.File)
	}
}

func (r *Registry) warnIfMissing(kind, name, file string) {
	if file == "" {
		return
	}
	if _, err := os.Stat(r.resolve(file)); err != nil {
		r.log.Warnf("manifest %s %q references missing file %s", kind, name, file)
	}
}

func (r *Registry) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(r.baseDir, file)
}

// GetTask returns the task pointer for name, with File resolved relative
// to the manifest's directory.
func (r *Registry) GetTask(name string) (models.TaskPointer, error) {
	ptr, ok := r.manifest.Tasks[name]
	if !ok {
		return models.TaskPointer{}, errors.Errorf("unknown task %q", name)
	}
	if ptr.File != "" {
		ptr.File = r.resolve(ptr.File)
	}
	return ptr, nil
}

// GetWorkflowDef loads and validates the on-disk definition for a
// manifest-registered workflow name.
func (r *Registry) GetWorkflowDef(name string) (*models.WorkflowDef, error) {
	ptr, ok := r.manifest.Workflows[name]
	if !ok {
		return nil, errors.Errorf("unknown workflow %q", name)
	}
	var def models.WorkflowDef
	if err := r.readDef(ptr.File, &def); err != nil {
		return nil, errors.Wrapf(err, "load workflow %q", name)
	}
	if err := validateSteps(append(append([]models.Step{}, def.Tasks...), def.Workflows...)); err != nil {
		return nil, errors.Wrapf(err, "workflow %q", name)
	}
	return &def, nil
}

// GetJobDef loads and validates the on-disk definition for a
// manifest-registered job name.
func (r *Registry) GetJobDef(name string) (*models.JobDef, error) {
	ptr, ok := r.manifest.Jobs[name]
	if !ok {
		return nil, errors.Errorf("unknown job %q", name)
	}
	var def models.JobDef
	if err := r.readDef(ptr.File, &def); err != nil {
		return nil, errors.Wrapf(err, "load job %q", name)
	}
	all := append(append(append([]models.Step{}, def.Tasks...), def.Workflows...), def.Jobs...)
	if err := validateSteps(all); err != nil {
		return nil, errors.Wrapf(err, "job %q", name)
	}
	return &def, nil
}

func (r *Registry) readDef(file string, dest interface{}) error {
	raw, err := os.ReadFile(r.resolve(file))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// validateSteps enforces that no step's name equals its own reference.
func validateSteps(steps []models.Step) error {
	var bad []string
	for _, s := range steps {
		if s.Name == s.Reference {
			bad = append(bad, s.Name)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return errors.Errorf("step name must differ from reference: %s", strings.Join(bad, ", "))
}

// ListTasks returns every registered task name, sorted.
func (r *Registry) ListTasks() []string { return sortedKeys(r.manifest.Tasks) }

// ListWorkflows returns every registered workflow name, sorted.
func (r *Registry) ListWorkflows() []string { return sortedDefKeys(r.manifest.Workflows) }

// ListJobs returns every registered job name, sorted.
func (r *Registry) ListJobs() []string { return sortedDefKeys(r.manifest.Jobs) }

// ListIntegrations returns every registered integration pointer by name.
func (r *Registry) ListIntegrations() map[string]models.IntegrationPointer {
	return r.manifest.Integrations
}

func sortedKeys(m map[string]models.TaskPointer) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedDefKeys(m map[string]models.DefPointer) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
