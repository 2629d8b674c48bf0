package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/meshsync/internal/cli/output"
	"github.com/yndnr/meshsync/internal/telemetry/journal"
)

// LogsCommand returns the activity journal subcommand group.
func LogsCommand() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Read or export the activity journal",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Show recent journal entries, oldest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Entries to show (0 for all retained)", Value: 20},
					&cli.StringFlag{Name: "status", Usage: "Only show entries with this status"},
				},
				Action: logsList,
			},
			{
				Name:  "export",
				Usage: "Upload recent entries to the backend for diagnosis",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Account username", Required: true},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Entries to export (default telemetry.export_count)"},
				},
				Action: logsExport,
			},
		},
	}
}

type logRow struct {
	Time    string `json:"time"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func logsList(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	entries := e.Journal.Recent(c.Int("limit"))
	if want := c.String("status"); want != "" {
		filtered := entries[:0:0]
		for _, entry := range entries {
			if entry.Status == journal.ParseStatus(want) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	if !e.text() {
		return e.print(entries)
	}
	if len(entries) == 0 {
		e.note("No journal entries.")
		return nil
	}
	rows := make([]logRow, len(entries))
	for i, entry := range entries {
		rows[i] = logRow{
			Time:    entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
			Status:  string(entry.Status),
			Message: entry.Message,
		}
	}
	return e.print(rows)
}

func logsExport(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	limit := c.Int("limit")
	if limit <= 0 {
		limit = e.Config.Telemetry.ExportCount
	}
	entries := e.Journal.Recent(limit)
	if len(entries) == 0 {
		e.note("No journal entries to export.")
		return nil
	}

	device, err := e.KeyManager.DeviceID(ctx)
	if err != nil {
		return err
	}
	sp := output.NewSpinner(e.stderr, "Exporting journal")
	if e.text() {
		sp.Start()
	}
	if err := e.Transport.ExportDebugLogs(ctx, device, c.String("user"), entries); err != nil {
		if e.text() {
			sp.Fail("Export failed")
		}
		return err
	}
	if e.text() {
		sp.Success(fmt.Sprintf("Exported %d entries", len(entries)))
	}
	return nil
}
