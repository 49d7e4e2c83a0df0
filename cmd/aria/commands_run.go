package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ariarun/aria/pkg/types"
)

func buildRunCmd(manifestsDir *string) *cobra.Command {
	var (
		maxSteps   int
		maxCostUSD float64
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task through the agent kernel to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, args[0], *manifestsDir, maxSteps, maxCostUSD, timeout)
		},
	}
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "override ARIA_MAX_STEPS for this run")
	cmd.Flags().Float64Var(&maxCostUSD, "max-cost-usd", 0, "override ARIA_MAX_COST_USD for this run")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wall-clock deadline for this run (0 = none)")
	return cmd
}

func runTask(cmd *cobra.Command, task, manifestsDir string, maxSteps int, maxCostUSD float64, timeout time.Duration) error {
	a, err := buildApp(manifestsDir)
	if err != nil {
		return exitErr(exitUserError, err)
	}
	defer a.Close()

	limits := types.Limits{
		MaxSteps: a.cfg.MaxSteps,
		MaxCost:  a.cfg.MaxCostUSD,
	}
	if maxSteps > 0 {
		limits.MaxSteps = maxSteps
	}
	if maxCostUSD > 0 {
		limits.MaxCost = maxCostUSD
	}

	ctx := cmd.Context()
	if timeout > 0 {
		limits.Deadline = time.Now().Add(timeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	session := types.NewSession(uuid.NewString(), time.Now())
	outcome, kerr := a.kernel.Run(ctx, session, task, limits)
	if kerr != nil {
		// Only InvalidStateTransition or AuditWriteFailure reach here: the
		// kernel could no longer trust its own bookkeeping.
		a.logger.Error("fatal invariant violation", "kind", kerr.Kind, "error", kerr.Message)
		os.Exit(exitFatalInvariantViolation)
	}

	switch outcome.Status {
	case types.OutcomeCompleted:
		fmt.Fprintln(cmd.OutOrStdout(), outcome.Text)
		return nil
	case types.OutcomeCancelled:
		return exitErr(exitUserError, fmt.Errorf("run cancelled"))
	case types.OutcomeFailed:
		return exitErr(exitCodeForFailure(outcome.Kind), fmt.Errorf("%s: %s", outcome.Kind, outcome.Message))
	default:
		return exitErr(exitUserError, fmt.Errorf("unrecognized outcome status %q", outcome.Status))
	}
}

// exitCodeForFailure maps a failed session's error kind to the exit codes
// of spec §6.
func exitCodeForFailure(kind types.Kind) int {
	switch kind {
	case types.KindStepLimitExceeded, types.KindCostLimitExceeded, types.KindDeadlineExceeded:
		return exitBudgetExceeded
	case types.KindToolInputValidationError, types.KindToolOutputValidationError, types.KindToolTimeout,
		types.KindToolCrashed, types.KindPathTraversal, types.KindPermissionDenied, types.KindUnknownTool:
		return exitToolFailure
	case types.KindModelProviderError, types.KindModelRateLimitError, types.KindModelResponseMalformed,
		types.KindCircuitBreakerOpen:
		return exitModelFailure
	default:
		return exitUserError
	}
}

// exitErr prints err to stderr and terminates the process with code via
// os.Exit; it never returns, so main's generic handler (which maps any
// returned error to exitUserError) does not see these failures.
func exitErr(code int, err error) error {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(code)
	return nil
}
