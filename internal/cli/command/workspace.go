package command

import (
	"github.com/urfave/cli/v2"
)

// WorkspaceCommand returns the workspace subcommand group.
func WorkspaceCommand() *cli.Command {
	return &cli.Command{
		Name:    "workspace",
		Aliases: []string{"ws"},
		Usage:   "Create, join or leave a shared workspace",
		Subcommands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Create a workspace owned by this device",
				Action: workspaceCreate,
			},
			{
				Name:  "join",
				Usage: "Join an existing workspace with its invite code",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Workspace ID", Required: true},
					&cli.StringFlag{Name: "code", Usage: "8-character invite code", Required: true},
				},
				Action: workspaceJoin,
			},
			{
				Name:   "show",
				Usage:  "Show the paired workspace",
				Action: workspaceShow,
			},
			{
				Name:   "leave",
				Usage:  "Forget the paired workspace on this device",
				Action: workspaceLeave,
			},
		},
	}
}

type workspaceView struct {
	ID         string   `json:"id"`
	OwnerID    string   `json:"owner_device_id"`
	InviteCode string   `json:"invite_code"`
	Devices    []string `json:"device_ids"`
	ThisDevice string   `json:"this_device"`
}

func workspaceCreate(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	res, err := e.Workspaces.CreateOrJoin(ctx, "", "")
	if err != nil {
		return err
	}
	if err := e.print(res); err != nil {
		return err
	}
	e.note("Share the id and invite code to pair another device:\n  meshsync workspace join --id %s --code %s", res.ID, res.InviteCode)
	return nil
}

func workspaceJoin(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	res, err := e.Workspaces.CreateOrJoin(ctx, c.String("id"), c.String("code"))
	if err != nil {
		return err
	}
	return e.print(res)
}

func workspaceShow(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	ws, err := e.Workspaces.Workspace(ctx)
	if err != nil {
		return err
	}
	self, err := e.KeyManager.DeviceID(ctx)
	if err != nil {
		return err
	}
	return e.print(workspaceView{
		ID:         ws.ID,
		OwnerID:    ws.OwnerDeviceID,
		InviteCode: ws.InviteCode,
		Devices:    ws.DeviceIDs,
		ThisDevice: self,
	})
}

func workspaceLeave(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	id, paired, err := e.Workspaces.CurrentWorkspaceID(ctx)
	if err != nil {
		return err
	}
	if err := e.Workspaces.Leave(ctx); err != nil {
		return err
	}
	if !paired {
		e.note("Not paired with a workspace.")
		return nil
	}
	e.note("Left workspace %s. The device stays listed on the backend.", id)
	return nil
}
