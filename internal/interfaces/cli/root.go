// Package cli implements the casemind command line: classification,
// duplicate checks, similarity search, ingestion and operator commands
// (ontology validation, migrations) over the same services the API server
// runs.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/casemind/internal/bootstrap"
	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/infrastructure/database/neo4j"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	NoColor      bool
	Timeout      time.Duration
}

// CLIContext carries the loaded configuration through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	OutputFormat string
	NoColor      bool
	Timeout      time.Duration
}

// NewRootCommand creates the root command with its global flags and every
// subcommand.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "casemind",
		Short: "casemind classifies legal cases and finds similar precedents",
		Long: "casemind classifies judgments against a legal ontology, extracts tiered facts\n" +
			"with the matching template, detects duplicate uploads and ranks similar cases\n" +
			"by vector retrieval and cross-encoder reranking.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./casemind.yaml, then configs/config.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", OutputTable, "output format (table, json)")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "overall operation timeout")

	cmd.AddCommand(
		newVersionCmd(),
		newClassifyCmd(),
		newCheckDuplicateCmd(),
		newSimilarCmd(),
		newIngestCmd(),
		newValidateOntologyCmd(),
		newMigrateCmd(),
	)
	return cmd
}

// persistentPreRun loads config and logger, then stores the CLIContext.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	switch strings.ToLower(opts.OutputFormat) {
	case OutputTable, OutputJSON:
	default:
		return errors.InvalidParam("unknown output format").WithDetail(opts.OutputFormat)
	}
	if opts.NoColor {
		color.NoColor = true
	}

	cfg, err := initConfig(opts, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger, err := initLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger,
		OutputFormat: strings.ToLower(opts.OutputFormat),
		NoColor:      opts.NoColor,
		Timeout:      opts.Timeout,
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// initConfig loads the explicit config file, else the first file found on
// the search path, else the CASEMIND_* environment alone.
func initConfig(opts *RootOptions, warn io.Writer) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	fmt.Fprintln(warn, "Warning: no config file found, using environment and defaults")
	return config.LoadFromEnv()
}

func configSearchPaths() []string {
	paths := []string{"./casemind.yaml", filepath.Join("configs", "config.yaml")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".casemind", "config.yaml"))
	}
	return append(paths, "/etc/casemind/config.yaml")
}

// initLogger writes console logs to stderr so stdout stays parseable.
func initLogger(cfg *config.Config, opts *RootOptions) (logging.Logger, error) {
	level := opts.LogLevel
	if level == "" {
		level = cfg.Log.Level
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            strings.ToLower(level),
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// GetCLIContext extracts the CLIContext stored by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLI context not initialised")
	}
	return cliCtx, nil
}

// commandContext bounds a command by the --timeout flag.
func commandContext(cmd *cobra.Command, cc *CLIContext) (context.Context, context.CancelFunc) {
	if cc.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), cc.Timeout)
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Service wiring
// ─────────────────────────────────────────────────────────────────────────────

// openServices connects the configured infrastructure and builds the
// application layer.  A variable so tests can substitute it.
var openServices = func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*bootstrap.Services, func(), error) {
	infra, err := bootstrap.OpenInfrastructure(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc, err := bootstrap.NewServices(ctx, cfg, infra, logger, nil)
	if err != nil {
		infra.Close()
		return nil, nil, err
	}
	return svc, func() {
		_ = svc.Close(context.Background())
		infra.Close()
	}, nil
}

// openTaxonomy loads only the ontology and templates, connecting to neo4j
// when that is the configured source.
func openTaxonomy(ctx context.Context, cfg *config.Config, logger logging.Logger) (*bootstrap.Taxonomy, func(), error) {
	cleanup := func() {}
	var graph neo4j.Executor
	if cfg.Ontology.Source == "neo4j" {
		d, err := neo4j.NewDriver(neo4j.ConfigFrom(cfg.Neo4j), logger)
		if err != nil {
			return nil, nil, err
		}
		graph = d
		cleanup = func() { _ = d.Close() }
	}
	src, err := bootstrap.OntologySource(cfg.Ontology, graph, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	tax, err := bootstrap.LoadTaxonomy(ctx, cfg.Ontology, src, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return tax, cleanup, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Output
// ─────────────────────────────────────────────────────────────────────────────

// tableProvider is implemented by results that render as a table.
type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

// PrintResult writes data in the output format of the CLIContext.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	format := OutputTable
	if cc, err := GetCLIContext(cmd); err == nil {
		format = cc.OutputFormat
	}
	return writeResult(cmd.OutOrStdout(), format, data)
}

func writeResult(w io.Writer, format string, data interface{}) error {
	if format == OutputJSON {
		return printJSON(w, data)
	}
	if tp, ok := data.(tableProvider); ok {
		renderTable(w, tp.TableHeaders(), tp.TableRows())
		return nil
	}
	return printJSON(w, data)
}

// printJSON outputs data as indented JSON.
func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// renderTable draws headers and rows with tablewriter.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("OK:"), msg)
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

//Personal.AI order the ending
