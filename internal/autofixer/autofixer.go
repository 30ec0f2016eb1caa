// Package autofixer implements the Auto Fixer (C10): applying an approved
// FixSuggestion atomically with snapshot, verify, and rollback. Grounded on
// the source engine's AutoFix/ValidateFix pipeline (main.go) for the
// preflight-snapshot-apply-verify-finalize shape, and on improvements.go's
// RetryWithBackoff/CircuitBreaker for command resilience (replaced here
// with github.com/cenkalti/backoff/v4, the ecosystem library the source
// engine already depends on transitively).
package autofixer

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/wardenci/warden/internal/atomicfile"
	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/model"
	"github.com/wardenci/warden/internal/policy"
	"github.com/wardenci/warden/internal/snapshot"
)

// DefaultCommandTimeout is the per-command timeout inside an auto-fix
// (§5, default 60s).
const DefaultCommandTimeout = 60 * time.Second

// DefaultLockTimeout bounds how long Apply waits for another in-flight
// fix on the same project root before giving up (§5, default 30s):
// filesystem mutations are serialized per root by a non-blocking,
// retried acquisition rather than an unbounded wait.
const DefaultLockTimeout = 30 * time.Second

// lockPollInterval is how often a blocked Apply retries the per-root lock.
const lockPollInterval = 50 * time.Millisecond

var regexSubstituteRe = regexp.MustCompile(`^s/(.*?)/(.*)/$`)

// Fixer applies FixSuggestions. It serializes all filesystem mutations per
// project root with a process-local mutex acquired via bounded, non-blocking
// retries (DefaultLockTimeout): concurrent read-only analyses are
// unaffected; a second concurrent auto-fix on the same root waits up to the
// timeout, then fails with errs.KindTimeout rather than blocking forever.
type Fixer struct {
	snapshots *snapshot.Manager
	logger    *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Fixer using snapshots for the snapshot/rollback step.
func New(snapshots *snapshot.Manager, logger *logrus.Logger) *Fixer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Fixer{snapshots: snapshots, logger: logger, locks: map[string]*sync.Mutex{}}
}

func (f *Fixer) rootLock(projectRoot string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[projectRoot]
	if !ok {
		l = &sync.Mutex{}
		f.locks[projectRoot] = l
	}
	return l
}

// acquireRootLock takes the per-project-root lock with non-blocking
// attempts on a poll interval, bounded by timeout (§5: "a bounded retry
// window... exceeding the window fails the request with a clear error").
// It also returns early with a cancelled error if ctx is done first.
func acquireRootLock(ctx context.Context, lock *sync.Mutex, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	if lock.TryLock() {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.KindCancelled, "waiting for project root lock cancelled", ctx.Err())
		case <-deadline.C:
			return errs.New(errs.KindTimeout, "timed out waiting for project root lock after "+timeout.String())
		case <-ticker.C:
			if lock.TryLock() {
				return nil
			}
		}
	}
}

// Apply runs the Auto Fixer procedure (§4.10): preflight, snapshot, apply,
// verify, finalize. approved must be true (interactive yes, or the
// caller's auto-apply-low-risk flag was set and suggestion.AutoApplicable
// is true); otherwise Apply returns a policy error without touching disk.
func (f *Fixer) Apply(ctx context.Context, suggestion model.FixSuggestion, projectRoot string, approved bool) (model.FixResult, error) {
	if !approved {
		return model.FixResult{}, errs.New(errs.KindPolicy, "fix requires explicit approval: auto_applicable is false")
	}

	lock := f.rootLock(projectRoot)
	if err := acquireRootLock(ctx, lock, DefaultLockTimeout); err != nil {
		return model.FixResult{}, err
	}
	defer lock.Unlock()

	if err := preflight(suggestion.Steps, projectRoot); err != nil {
		return model.FixResult{}, err
	}

	targets := targetPaths(suggestion.Steps, projectRoot)
	snap, err := f.snapshots.Create(targets, "pre-fix snapshot for "+suggestion.ID)
	if err != nil {
		return model.FixResult{}, errs.Wrap(errs.KindIO, "create pre-fix snapshot", err)
	}

	applied, applyErr := f.applySteps(ctx, suggestion.Steps, projectRoot)
	if applyErr == nil {
		applyErr = f.runValidations(ctx, suggestion, projectRoot)
	}
	if applyErr == nil {
		return model.FixResult{
			Success:            true,
			AppliedSteps:       applied,
			SnapshotID:         snap.ID,
			VerificationPassed: true,
			RollbackAvailable:  true,
		}, nil
	}

	restoreErr := f.snapshots.Restore(snap)
	if restoreErr != nil {
		f.logger.WithFields(logrus.Fields{"snapshot_id": snap.ID, "snapshot_path": snap.ID}).
			WithError(restoreErr).Error("rollback failed, operator attention required")
		return model.FixResult{
			Success:           false,
			AppliedSteps:       applied,
			SnapshotID:         snap.ID,
			Error:              applyErr,
			RollbackAvailable:  false,
		}, errs.Wrap(errs.KindRollbackFailed, "fix failed and rollback also failed, snapshot "+snap.ID+" retained for manual restore", restoreErr)
	}

	return model.FixResult{
		Success:           false,
		AppliedSteps:       applied,
		SnapshotID:         snap.ID,
		Error:              applyErr,
		VerificationPassed: false,
		RollbackAvailable:  f.snapshots.Verify(snap),
	}, nil
}

func targetPaths(steps []model.FixStep, projectRoot string) []string {
	var out []string
	for _, s := range steps {
		if s.Kind == model.StepCommand {
			continue
		}
		if p, err := policy.NormalizePath(projectRoot, s.TargetPath); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func preflight(steps []model.FixStep, projectRoot string) error {
	for _, s := range steps {
		switch s.Kind {
		case model.StepFileEdit, model.StepFileCreate, model.StepFileDelete:
			if _, err := policy.NormalizePath(projectRoot, s.TargetPath); err != nil {
				return err
			}
		case model.StepCommand:
			if !policy.IsCommandAllowed(s.Argv) {
				return errs.New(errs.KindPolicy, "command not on allow-list: "+strings.Join(s.Argv, " "))
			}
		}
	}
	return nil
}

func (f *Fixer) applySteps(ctx context.Context, steps []model.FixStep, projectRoot string) ([]model.FixStep, error) {
	var applied []model.FixStep
	for _, s := range steps {
		var err error
		switch s.Kind {
		case model.StepFileEdit:
			err = applyFileEdit(projectRoot, s)
		case model.StepFileCreate:
			err = applyFileCreate(projectRoot, s)
		case model.StepFileDelete:
			err = applyFileDelete(projectRoot, s)
		case model.StepCommand:
			err = f.runCommandWithRetry(ctx, projectRoot, s)
		default:
			err = errs.New(errs.KindValidation, "unknown step kind")
		}
		if err != nil {
			return applied, err
		}
		applied = append(applied, s)
	}
	return applied, nil
}

func applyFileEdit(projectRoot string, s model.FixStep) error {
	path, err := policy.NormalizePath(projectRoot, s.TargetPath)
	if err != nil {
		return err
	}
	existing, readErr := os.ReadFile(path)
	if readErr != nil && !os.IsNotExist(readErr) {
		return errs.Wrap(errs.KindIO, "read "+path, readErr)
	}
	var out string
	switch s.EditMode {
	case model.EditAppend:
		out = string(existing) + s.Payload
	case model.EditPrepend:
		out = s.Payload + string(existing)
	case model.EditReplace:
		out = s.Payload
	case model.EditRegexSubstitute:
		m := regexSubstituteRe.FindStringSubmatch(s.Payload)
		if m == nil {
			return errs.New(errs.KindValidation, "regex_substitute payload must be s/pattern/replacement/")
		}
		re, err := regexp.Compile(m[1])
		if err != nil {
			return errs.Wrap(errs.KindValidation, "invalid regex_substitute pattern", err)
		}
		out = re.ReplaceAllString(string(existing), m[2])
	default:
		return errs.New(errs.KindValidation, "unknown edit mode: "+string(s.EditMode))
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return atomicfile.Write(path, []byte(out), mode)
}

func applyFileCreate(projectRoot string, s model.FixStep) error {
	path, err := policy.NormalizePath(projectRoot, s.TargetPath)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, []byte(s.Payload), 0o644)
}

func applyFileDelete(projectRoot string, s model.FixStep) error {
	path, err := policy.NormalizePath(projectRoot, s.TargetPath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindIO, "delete "+path, err)
	}
	return nil
}

func (f *Fixer) runCommandWithRetry(ctx context.Context, projectRoot string, s model.FixStep) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	return backoff.Retry(func() error {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(cctx, s.Argv[0], s.Argv[1:]...)
		cmd.Dir = projectRoot
		cmd.Env = sanitizedEnv()
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if cctx.Err() != nil {
				return backoff.Permanent(errs.Wrap(errs.KindTimeout, "command timed out: "+strings.Join(s.Argv, " "), err))
			}
			return errs.Wrap(errs.KindExternal, "command failed: "+strings.Join(s.Argv, " ")+": "+stderr.String(), err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// sanitizedEnv returns a minimal inherited environment: PATH and HOME only,
// stripping anything that could leak credentials into a child command.
func sanitizedEnv() []string {
	var out []string
	for _, key := range []string{"PATH", "HOME"} {
		if v, ok := os.LookupEnv(key); ok {
			out = append(out, key+"="+v)
		}
	}
	return out
}

func (f *Fixer) runValidations(ctx context.Context, suggestion model.FixSuggestion, projectRoot string) error {
	for _, s := range suggestion.Steps {
		if s.Validation == "" {
			continue
		}
		if err := runPredicate(ctx, projectRoot, s.Validation); err != nil {
			return err
		}
	}
	for _, v := range suggestion.ValidationSteps {
		if err := runPredicate(ctx, projectRoot, v); err != nil {
			return err
		}
	}
	return nil
}

func runPredicate(ctx context.Context, projectRoot, predicate string) error {
	if !policy.IsPredicateAllowed(predicate) {
		return errs.New(errs.KindPolicy, "validation command not on allow-list: "+predicate)
	}

	cctx, cancel := context.WithTimeout(ctx, DefaultCommandTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "sh", "-c", predicate)
	cmd.Dir = projectRoot
	cmd.Env = sanitizedEnv()
	if err := cmd.Run(); err != nil {
		return errs.Wrap(errs.KindValidation, "validation failed: "+predicate, err)
	}
	return nil
}
