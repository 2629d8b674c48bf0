package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/meshsync/internal/cli/output"
	"github.com/yndnr/meshsync/internal/core/domain"
)

// KeyCommand returns the key subcommand group.
func KeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "key",
		Usage: "Inspect sync keys",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show which key the next sync would use (masked)",
				Action: keyShow,
			},
			{
				Name:   "check",
				Usage:  "Compare the cached workspace key with the backend",
				Action: keyCheck,
			},
		},
	}
}

type keyView struct {
	Scope       string `json:"scope"`
	DeviceID    string `json:"device_id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Key         string `json:"key"`
}

func keyShow(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	wsID, _, err := e.Workspaces.CurrentWorkspaceID(ctx)
	if err != nil {
		return err
	}
	id, err := e.KeyManager.ResolveIdentity(ctx, wsID)
	if err != nil {
		return err
	}
	v := keyView{
		Scope:    id.Kind().String(),
		DeviceID: id.Device(),
		Key:      id.SyncKey().String(),
	}
	if w, ok := id.(domain.WorkspaceIdentity); ok {
		v.WorkspaceID = w.WorkspaceID
	}
	return e.print(v)
}

type keyCheckView struct {
	WorkspaceID string `json:"workspace_id"`
	InSync      bool   `json:"in_sync"`
}

func keyCheck(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	wsID, ok, err := e.Workspaces.CurrentWorkspaceID(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNoWorkspaceConfigured
	}
	inSync, err := e.KeyManager.CheckKeySync(ctx, wsID)
	if err != nil {
		return err
	}
	if !e.text() {
		return e.print(keyCheckView{WorkspaceID: wsID, InSync: inSync})
	}

	sp := output.NewSpinner(e.stderr, "")
	if inSync {
		sp.Success("Local key matches the workspace key")
	} else {
		sp.Skip("Local key did not match the workspace key")
	}
	return nil
}
