package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/meshsync/internal/cli/output"
	"github.com/yndnr/meshsync/internal/core/service"
)

// PushCommand encrypts local state and uploads it.
func PushCommand() *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: "Encrypt local state and upload a snapshot",
		Action: func(c *cli.Context) error {
			return runOperation(c, "Pushing snapshot", func(ctx context.Context, e *env) (service.Outcome, error) {
				return e.Orchestrator.Push(ctx)
			}, describePush)
		},
	}
}

// PullCommand downloads the newest snapshot and restores it.
func PullCommand() *cli.Command {
	return &cli.Command{
		Name:  "pull",
		Usage: "Download the newest snapshot and restore local state",
		Action: func(c *cli.Context) error {
			return runOperation(c, "Pulling snapshot", func(ctx context.Context, e *env) (service.Outcome, error) {
				return e.Orchestrator.Pull(ctx)
			}, describePull)
		},
	}
}

// RetryCommand resends the snapshot left over from a failed push.
func RetryCommand() *cli.Command {
	return &cli.Command{
		Name:  "retry",
		Usage: "Resend the snapshot cached by a failed push",
		Action: func(c *cli.Context) error {
			return runOperation(c, "Retrying cached push", func(ctx context.Context, e *env) (service.Outcome, error) {
				return e.Orchestrator.RetryCachedPush(ctx)
			}, describePush)
		},
	}
}

// SyncCommand runs retry, push and pull once, the way the daemon does.
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Retry, push if changed, then pull if newer",
		Action: syncOnce,
	}
}

func runOperation(c *cli.Context, message string, op func(context.Context, *env) (service.Outcome, error), describe func(service.Outcome) string) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	var sp *output.Spinner
	if e.text() {
		sp = output.NewSpinner(e.stderr, message)
		sp.Start()
	}

	out, err := op(ctx, e)
	if err != nil {
		if sp != nil {
			sp.Fail(message + " failed")
		}
		return err
	}

	if sp == nil {
		return e.print(out)
	}
	if out.Kind == service.OutcomeSkipped {
		sp.Skip(skipText(out.Reason))
	} else {
		sp.Success(describe(out))
	}
	return nil
}

func syncOnce(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	res, err := e.Orchestrator.Sync(ctx)
	if err != nil {
		return err
	}
	if !e.text() {
		return e.print(res)
	}

	t := output.NewTable("STEP", "RESULT", "DETAIL")
	for _, step := range []struct {
		name     string
		out      service.Outcome
		describe func(service.Outcome) string
	}{
		{"retry", res.Retry, describePush},
		{"push", res.Push, describePush},
		{"pull", res.Pull, describePull},
	} {
		detail := ""
		switch step.out.Kind {
		case service.OutcomeSkipped:
			detail = skipText(step.out.Reason)
		case service.OutcomeSuccess:
			detail = step.describe(step.out)
		}
		t.AddRow(step.name, string(step.out.Kind), detail)
	}
	return e.print(t)
}

func describePush(out service.Outcome) string {
	if out.Record != nil && out.Record.ID != "" {
		return fmt.Sprintf("Snapshot %s pushed", out.Record.ID)
	}
	return "Snapshot pushed"
}

func describePull(out service.Outcome) string {
	switch {
	case out.Kind == service.OutcomeEmpty:
		return "No snapshot in the workspace yet"
	case out.Kind == service.OutcomeUnchanged:
		return "Already up to date"
	case out.Record != nil:
		return fmt.Sprintf("Restored snapshot from device %s", out.Record.DeviceID)
	default:
		return "Snapshot restored"
	}
}

func skipText(reason service.SkipReason) string {
	switch reason {
	case service.SkipPremium:
		return "Skipped: premium is not active"
	case service.SkipOnboarding:
		return "Skipped: onboarding is not complete"
	case service.SkipOffline:
		return "Skipped: no network connection"
	case service.SkipUnreachable:
		return "Skipped: backend unreachable"
	case service.SkipNoPending:
		return "Nothing to retry"
	case service.SkipCancelled:
		return "Cancelled"
	default:
		return "Skipped"
	}
}
