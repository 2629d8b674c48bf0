package command

import (
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/meshsync/internal/storage/snapshot"
)

// StatusCommand summarizes the local install.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show device, workspace and entitlement state",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Also probe the network and pick a healthy endpoint",
			},
		},
		Action: showStatus,
	}
}

type statusView struct {
	DeviceID     string    `json:"device_id"`
	WorkspaceID  string    `json:"workspace_id,omitempty"`
	Premium      bool      `json:"premium"`
	Onboarded    bool      `json:"onboarding_complete"`
	Username     string    `json:"username,omitempty"`
	Pending      bool      `json:"pending_snapshot"`
	PendingSince *time.Time `json:"pending_since,omitempty"`
	Endpoints    []string  `json:"endpoints"`
	LastActivity string    `json:"last_activity,omitempty"`

	Online   *bool  `json:"online,omitempty"`
	Endpoint string `json:"active_endpoint,omitempty"`
}

func showStatus(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	var v statusView
	if v.DeviceID, err = e.KeyManager.DeviceID(ctx); err != nil {
		return err
	}
	if v.WorkspaceID, _, err = e.Workspaces.CurrentWorkspaceID(ctx); err != nil {
		return err
	}
	if v.Premium, err = e.Prefs.Premium(ctx); err != nil {
		return err
	}
	if v.Onboarded, err = e.Prefs.OnboardingComplete(ctx); err != nil {
		return err
	}
	if v.Username, err = e.Prefs.Username(ctx); err != nil {
		return err
	}

	switch p, err := e.Pending.Load(); {
	case err == nil:
		v.Pending = true
		v.PendingSince = &p.CreatedAt
	case errors.Is(err, snapshot.ErrNoPending):
	default:
		e.Logger.Warn("pending snapshot unreadable", "error", err)
	}

	v.Endpoints = e.Transport.Endpoints()
	if last := e.Journal.Recent(1); len(last) == 1 {
		v.LastActivity = last[0].Timestamp.Format(time.RFC3339) + " " + last[0].Message
	}

	if c.Bool("check") {
		online := e.Transport.CheckNetworkConnectivity(ctx)
		v.Online = &online
		if online {
			if ep, err := e.Transport.SelectEndpoint(ctx, v.Endpoints); err == nil {
				v.Endpoint = ep
			}
		}
	}
	return e.print(v)
}
