package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/flowcraft/orchestrator/internal/config"
	internalhttp "github.com/flowcraft/orchestrator/internal/http"
	"github.com/flowcraft/orchestrator/internal/log"
	"github.com/flowcraft/orchestrator/internal/service"
	internalstorage "github.com/flowcraft/orchestrator/internal/storage"
	"github.com/flowcraft/orchestrator/pkg/manifest"
	"github.com/flowcraft/orchestrator/pkg/query"
	"github.com/flowcraft/orchestrator/pkg/runtime"
	"github.com/flowcraft/orchestrator/pkg/storage"
)

// SetupCLI attaches the engine's minimal command surface to rootCmd: just
// enough to drive jobs and inspect history, not the full interactive
// front end named as a non-goal.
func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("config", "config.json", "engine config file")
	rootCmd.PersistentFlags().String("manifest", "manifest.json", "manifest file")
	rootCmd.PersistentFlags().String("runtimes", "", "runtime registry file")

	runCmd := &cobra.Command{
		Use:   "run-job [name]",
		Short: "Run a job by name",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			paramsJSON, _ := cmd.Flags().GetString("params")
			eng := buildEngine(cmd)
			params := map[string]any{}
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					fmt.Fprintf(os.Stderr, "invalid --params JSON: %v\n", err)
					os.Exit(1)
				}
			}
			execID, _, err := eng.RunJob(context.Background(), args[0], params, "")
			if err != nil {
				fmt.Fprintf(os.Stderr, "job %s failed (execution %s): %v\n", args[0], execID, err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "job %s completed, execution %s\n", args[0], execID)
		},
	}
	runCmd.Flags().String("params", "", "JSON object of input parameters")

	listCmd := &cobra.Command{
		Use:   "list-executions",
		Short: "List recorded job/workflow/task executions",
		Run: func(cmd *cobra.Command, args []string) {
			eng := buildEngine(cmd)
			status, _ := cmd.Flags().GetString("status")
			top, _ := cmd.Flags().GetInt("top")
			records, err := eng.ListExecutions(query.Filter{Status: status, Top: top, SortBy: "StartedAt"})
			if err != nil {
				fmt.Fprintf(os.Stderr, "list executions: %v\n", err)
				os.Exit(1)
			}
			printRecords(records)
		},
	}
	listCmd.Flags().String("status", "", "filter by status")
	listCmd.Flags().Int("top", 0, "limit the number of results")

	getCmd := &cobra.Command{
		Use:   "get-execution [execution-id]",
		Short: "Show every record sharing an execution id",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eng := buildEngine(cmd)
			records, err := eng.GetExecution(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "get execution: %v\n", err)
				os.Exit(1)
			}
			printRecords(records)
		},
	}

	integrationsCmd := &cobra.Command{
		Use:   "list-integrations",
		Short: "List the integrations registered in the manifest",
		Run: func(cmd *cobra.Command, args []string) {
			eng := buildEngine(cmd)
			integrations := eng.ListIntegrations()
			if len(integrations) == 0 {
				fmt.Fprintln(os.Stdout, "no integrations registered")
				return
			}
			names := make([]string, 0, len(integrations))
			for name := range integrations {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				ptr := integrations[name]
				fmt.Fprintf(os.Stdout, "%-20s kind=%-12s enabled=%t\n", name, ptr.Kind, ptr.Enabled)
			}
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine's query and trigger surface over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			eng := buildEngine(cmd)
			port, _ := cmd.Flags().GetString("port")
			if err := internalhttp.StartServer(port, eng); err != nil {
				fmt.Fprintf(os.Stderr, "serve: %v\n", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "HTTP listen port")

	rootCmd.AddCommand(runCmd, listCmd, getCmd, integrationsCmd, serveCmd)
}

func printRecords(records []query.ExecutionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no records found")
		return
	}
	for _, r := range records {
		fmt.Fprintf(os.Stdout, "%-8s %-36s %-20s %-10s started=%s ended=%s\n", r.Type, r.ExecutionID, r.Name, r.Status, r.StartedAt, r.EndedAt)
	}
}

func buildEngine(cmd *cobra.Command) *service.Engine {
	configPath, _ := cmd.Flags().GetString("config")
	manifestPath, _ := cmd.Flags().GetString("manifest")
	runtimesPath, _ := cmd.Flags().GetString("runtimes")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log.Configure(cfg.Logging.Level, cfg.Logging.Directory)
	logger := log.GetLogger()

	reg, err := manifest.Load(manifestPath, logger)
	if err != nil {
		logger.Errorf("load manifest: %v", err)
		os.Exit(1)
	}
	runtimes, err := runtime.Load(runtimesPath)
	if err != nil {
		logger.Errorf("load runtime registry: %v", err)
		os.Exit(1)
	}
	store := openStore(cfg, logger)
	return service.New(reg, runtimes, store, logger)
}

func openStore(cfg *config.Config, logger log.Logger) storage.Store {
	if cfg.UsesFileStore() {
		fs, err := storage.NewFileStore(cfg.Database.ConnectionString)
		if err != nil {
			logger.Errorf("open file store: %v", err)
			os.Exit(1)
		}
		return fs
	}
	store, err := internalstorage.InitStore(cfg.Database.Provider, cfg.Database.ConnectionString)
	if err != nil {
		logger.Errorf("open database store: %v", err)
		os.Exit(1)
	}
	return store
}
