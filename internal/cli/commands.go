package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wardenci/warden/internal/config"
	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/model"
)

var titleCaser = cases.Title(language.English)

// errFixRolledBack is returned by runFix when a fix failed validation and
// its snapshot was restored; exitCodeFor maps it to ExitAutoFixRollbackOK.
var errFixRolledBack = errs.New(errs.KindValidation, "fix validation failed, rolled back successfully")

func (c *CLI) runAnalyze(cmd *cobra.Command, args []string) error {
	logPath, _ := cmd.Flags().GetString("log")
	tokenBudget, _ := cmd.Flags().GetUint32("token-budget")

	text, err := c.readLogFile(logPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	e, err := c.buildEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	result, err := e.AnalyzeFailure(ctx, model.Log{Text: text}, c.projectRoot(), tokenBudget, c.defaultTokenFamily())
	if err != nil {
		return err
	}

	c.printAnalysisResult(result)
	return nil
}

func (c *CLI) runFix(cmd *cobra.Command, args []string) error {
	logPath, _ := cmd.Flags().GetString("log")
	approve, _ := cmd.Flags().GetBool("approve")

	text, err := c.readLogFile(logPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	e, err := c.buildEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	projectRoot := c.projectRoot()
	result, err := e.AnalyzeFailure(ctx, model.Log{Text: text}, projectRoot, 0, c.defaultTokenFamily())
	if err != nil {
		return err
	}
	c.printAnalysisResult(result)

	if len(result.Suggestions) == 0 {
		c.logger.Warn("no fix suggestions generated, nothing to apply")
		return nil
	}

	best := result.Suggestions[0]
	approved := approve || (c.cfg.AutoApplyLowRisk && best.AutoApplicable)

	fixResult, err := e.ApplyFix(ctx, best, projectRoot, approved)
	if err != nil {
		c.printFixResult(fixResult, err)
		return err
	}

	c.printFixResult(fixResult, nil)
	if !fixResult.Success && fixResult.RollbackAvailable {
		return errFixRolledBack
	}
	if !fixResult.Success {
		return errs.New(errs.KindRollbackFailed, "fix validation failed and rollback did not succeed")
	}
	return nil
}

func (c *CLI) runValidate(cmd *cobra.Command, args []string) error {
	snapshotID, _ := cmd.Flags().GetString("snapshot")
	c.logger.WithField("snapshot_id", snapshotID).Info("snapshot validation is performed as part of `fix`; standalone replay is not yet wired to a snapshot index lookup")
	return errs.New(errs.KindConfig, "standalone snapshot validation requires --snapshot id tracking not yet exposed by this build")
}

func (c *CLI) runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := c.buildEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	patterns := e.Patterns()
	templates := e.Templates()

	fmt.Printf("pattern store version: %d\n", patterns.Version())
	fmt.Printf("enabled patterns:      %d\n", len(patterns.AllEnabled("")))
	fmt.Printf("template store version: %d\n", templates.Version())
	return nil
}

func (c *CLI) runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := json.MarshalIndent(redactedConfig(c.cfg), "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindIO, "marshal configuration", err)
	}
	fmt.Println(string(data))
	return nil
}

func (c *CLI) runConfigValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := c.buildEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	c.logger.Info("configuration is valid")
	return nil
}

func (c *CLI) runTest(cmd *cobra.Command, args []string) error {
	const sampleLog = `=== STEP: install-deps ===
Collecting requests
ModuleNotFoundError: No module named 'requests'
--- EXIT 1 ---
`
	ctx := context.Background()
	e, err := c.buildEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	result, err := e.AnalyzeFailure(ctx, model.Log{Text: sampleLog}, c.projectRoot(), 0, c.defaultTokenFamily())
	if err != nil {
		return err
	}
	c.printAnalysisResult(result)
	if len(result.Matches) == 0 {
		return errs.New(errs.KindValidation, "self-test failed: sample log produced no pattern match")
	}
	c.logger.Info("self-test passed")
	return nil
}

func redactedConfig(cfg config.Config) map[string]interface{} {
	return map[string]interface{}{
		"project_root":        cfg.ProjectRoot.Or("(cwd)"),
		"cache_root":          cfg.CacheRoot,
		"log_format":          cfg.LogFormat,
		"risk_tolerance":      cfg.RiskTolerance,
		"confidence_threshold": cfg.ConfidenceThreshold,
		"auto_apply_low_risk": cfg.AutoApplyLowRisk,
		"cache_max_bytes":     cfg.CacheMaxBytes,
		"cache_ttl":           cfg.CacheTTL.String(),
		"provider":            cfg.ProviderName.Or("(none)"),
	}
}

func (c *CLI) printAnalysisResult(result model.AnalysisResult) {
	fmt.Printf("fingerprint: %s\n", result.Fingerprint)
	if len(result.Matches) == 0 {
		fmt.Println("no pattern matches")
		return
	}
	for _, m := range result.Matches {
		fmt.Printf("match: pattern=%s confidence=%.2f strength=%.2f\n", m.PatternID, m.Confidence, m.MatchStrength)
	}
	for _, s := range result.Suggestions {
		fmt.Printf("suggestion: %s (%s risk, %s, auto_applicable=%v)\n",
			titleCaser.String(s.Title), s.Risk, formatConfidence(s.Confidence), s.AutoApplicable)
		for _, step := range s.Steps {
			fmt.Printf("  - %s\n", step.Kind)
		}
	}
}

func (c *CLI) printFixResult(result model.FixResult, applyErr error) {
	fmt.Printf("fix applied: success=%v snapshot=%s rollback_available=%v\n",
		result.Success, result.SnapshotID, result.RollbackAvailable)
	if applyErr != nil {
		fmt.Printf("error: %v\n", applyErr)
	}
}

func formatConfidence(c float64) string {
	return fmt.Sprintf("confidence=%.2f", c)
}
