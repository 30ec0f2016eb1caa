// Package cli implements the autofix command tree, generalizing the
// teacher's cli.go (CLI struct, setupRootCommand/setupCommands,
// PersistentPreRun logging+config load) onto the local engine: no
// github-token/repo-owner/repo-name flags, no workflow-run-id argument
// (operations take a --log file instead), no monitor/pull-request
// command since there is no hosted PR target in this spec's data model.
package cli

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wardenci/warden/internal/config"
	"github.com/wardenci/warden/internal/engine"
	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/tokencount"
)

// Exit codes per the analysis engine's callable contract: 0 success, 1
// analysis failure, 2 config error, 3 cancelled, 4 auto-fix failed but
// rollback ok, 5 auto-fix failed and rollback failed.
const (
	ExitSuccess              = 0
	ExitAnalysisFailure      = 1
	ExitConfigError          = 2
	ExitCancelled            = 3
	ExitAutoFixRollbackOK    = 4
	ExitAutoFixRollbackFailed = 5
)

// CLI holds shared state across a single invocation: the logger and the
// resolved configuration. Unlike the teacher's CLI, there is no
// long-lived agent field — each subcommand builds its own short-lived
// engine.Engine and shuts it down before returning.
type CLI struct {
	logger  *logrus.Logger
	rootCmd *cobra.Command
	cfg     config.Config
}

// Run builds the command tree and executes it against args, returning a
// process exit code rather than calling os.Exit itself.
func Run(args []string) int {
	c := newCLI()
	c.rootCmd.SetArgs(args)

	if err := c.rootCmd.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return ExitSuccess
}

func newCLI() *CLI {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})

	c := &CLI{logger: logger}
	c.setupRootCommand()
	c.setupCommands()
	return c
}

func (c *CLI) setupRootCommand() {
	c.rootCmd = &cobra.Command{
		Use:   "autofix",
		Short: "CI/CD failure analysis and auto-fix engine",
		Long: `autofix reads a failed pipeline's logs, recognizes the failure against a
local pattern library, proposes a fix, and optionally applies it under a
snapshot/rollback guarantee. No network calls are made by the core
engine; the Provider and Runner boundaries are pluggable.`,
		Version: "0.1.0",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.setupLogging(cmd)
			return c.loadConfig(cmd)
		},
	}

	flags := c.rootCmd.PersistentFlags()
	flags.String("config", "", "dotenv configuration file path")
	flags.String("project-root", "", "project root the engine operates on (default: cwd)")
	flags.String("risk-tolerance", "", "maximum risk auto-applied without approval (low|medium|high)")
	flags.Bool("auto-apply-low-risk", false, "apply low-risk fixes without an explicit --approve")
	flags.Bool("verbose", false, "enable debug logging")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")
}

func (c *CLI) setupCommands() {
	analyzeCmd := &cobra.Command{
		Use:   "analyze --log <path>",
		Short: "Analyze a failed pipeline log",
		Long:  "Run the sanitize/compress/extract/match/generate pipeline over a log file and print matches and fix suggestions.",
		RunE:  c.runAnalyze,
	}
	analyzeCmd.Flags().String("log", "", "path to the raw log file (required)")
	analyzeCmd.Flags().Uint32("token-budget", 0, "token budget for log compression, 0 = no compression")
	_ = analyzeCmd.MarkFlagRequired("log")

	fixCmd := &cobra.Command{
		Use:   "fix --log <path>",
		Short: "Analyze a log and apply the best fix suggestion",
		Long:  "Like analyze, but additionally applies the top-ranked fix suggestion under a snapshot, verifying and rolling back on failure.",
		RunE:  c.runFix,
	}
	fixCmd.Flags().String("log", "", "path to the raw log file (required)")
	fixCmd.Flags().Bool("approve", false, "approve applying a fix that is not auto-applicable under the risk tolerance")
	_ = fixCmd.MarkFlagRequired("log")

	validateCmd := &cobra.Command{
		Use:   "validate --snapshot <id>",
		Short: "Look up a snapshot by id (unsupported: always exits with a config error; fix verifies its own snapshot)",
		RunE:  c.runValidate,
	}
	validateCmd.Flags().String("snapshot", "", "snapshot id (required)")
	_ = validateCmd.MarkFlagRequired("snapshot")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show pattern/template store versions and counts",
		RunE:  c.runStatus,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE:  c.runConfigShow,
	}
	configValidateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the resolved configuration",
		RunE:  c.runConfigValidate,
	}
	configCmd.AddCommand(configShowCmd, configValidateCmd)

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Exercise the engine against a built-in sample log",
		RunE:  c.runTest,
	}

	c.rootCmd.AddCommand(analyzeCmd, fixCmd, validateCmd, statusCmd, configCmd, testCmd)
}

func (c *CLI) setupLogging(cmd *cobra.Command) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFormat, _ := cmd.Flags().GetString("log-format")

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	c.logger.SetLevel(level)

	switch logFormat {
	case "text":
		c.logger.SetFormatter(&logrus.TextFormatter{})
	default:
		c.logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

func (c *CLI) loadConfig(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")

	overrides := config.FlagOverrides{}
	if v, _ := cmd.Flags().GetString("project-root"); v != "" {
		overrides.ProjectRoot = config.Some(v)
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		overrides.LogFormat = config.Some(v)
	}
	if v, _ := cmd.Flags().GetString("risk-tolerance"); v != "" {
		overrides.RiskTol = config.Some(v)
	}
	if cmd.Flags().Changed("auto-apply-low-risk") {
		v, _ := cmd.Flags().GetBool("auto-apply-low-risk")
		overrides.AutoApply = config.Some(v)
	}

	cfg, err := config.Load(configFile, overrides)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *CLI) buildEngine(ctx context.Context) (*engine.Engine, error) {
	e := engine.New(c.cfg, c.logger)
	return e.Initialize(ctx)
}

func (c *CLI) projectRoot() string {
	if c.cfg.ProjectRoot.Present {
		return c.cfg.ProjectRoot.Value
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

func (c *CLI) readLogFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errs.Wrap(errs.KindIO, "read log file "+path, err)
	}
	return string(data), nil
}

func (c *CLI) defaultTokenFamily() tokencount.ModelFamily {
	return tokencount.FamilyGPT
}

// exitCodeFor maps a returned error to the §6.7 exit code contract. A fix
// that failed and was rolled back cleanly maps to ExitAutoFixRollbackOK.
// Anything not tagged with an errs.Kind, including a *cobra.Command usage
// error (unknown flag, missing required flag), is treated as an analysis
// failure.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if err == errFixRolledBack {
		return ExitAutoFixRollbackOK
	}
	var werr *errs.Error
	if e, ok := err.(*errs.Error); ok {
		werr = e
	} else if e, ok := asWardenError(err); ok {
		werr = e
	}
	if werr == nil {
		return ExitAnalysisFailure
	}
	switch werr.Kind {
	case errs.KindConfig, errs.KindValidation, errs.KindPolicy:
		return ExitConfigError
	case errs.KindCancelled, errs.KindTimeout:
		return ExitCancelled
	case errs.KindRollbackFailed:
		return ExitAutoFixRollbackFailed
	default:
		return ExitAnalysisFailure
	}
}

func asWardenError(err error) (*errs.Error, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*errs.Error); ok {
			return e, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
