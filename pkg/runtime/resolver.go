package runtime

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Registry maps a runtime name to its per-environment executable paths,
// loaded once from JSON: { "<runtime>": { "default": "<path>", "<env>": "<path>" } }.
type Registry struct {
	paths map[string]map[string]string
}

// Load reads a runtime registry file. A missing file is not fatal — the
// resolver simply degrades every lookup to its literal-runtime fallback.
func Load(path string) (*Registry, error) {
	reg := &Registry{paths: map[string]map[string]string{}}
	if path == "" {
		return reg, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read runtime registry %s", path)
	}
	if err := json.Unmarshal(raw, &reg.paths); err != nil {
		return nil, errors.Wrapf(err, "parse runtime registry %s", path)
	}
	return reg, nil
}

// Resolve maps (runtime, env) to an executable path. Resolution order:
// exact (runtime, env) -> (runtime, "default") -> the literal runtime
// string, treated as a command expected to be on PATH. This never fails.
func (r *Registry) Resolve(runtime, env string) string {
	if env == "" {
		env = "default"
	}
	envs, ok := r.paths[runtime]
	if !ok {
		return runtime
	}
	if path, ok := envs[env]; ok && path != "" {
		return path
	}
	if path, ok := envs["default"]; ok && path != "" {
		return path
	}
	return runtime
}
