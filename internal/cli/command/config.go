package command

import (
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/meshsync/internal/cli/output"
	"github.com/yndnr/meshsync/internal/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect the effective configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the merged configuration with secrets masked",
				Action: configShow,
			},
		},
	}
}

// configShow does not open the install, so it works even when the data
// dir is locked by a running daemon.
func configShow(c *cli.Context) error {
	cfg, err := loadConfig(c, false)
	if err != nil {
		return err
	}
	safe := config.Sanitize(cfg)
	if format, _ := output.ParseFormat(c.String("output")); format == output.FormatJSON {
		return output.NewFormatter(format).Format(c.App.Writer, safe)
	}

	// Encode the struct directly so durations keep their "30s" form.
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(safe); err != nil {
		return err
	}
	return enc.Close()
}
