package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/meshsync/internal/app"
	"github.com/yndnr/meshsync/internal/cli/output"
	"github.com/yndnr/meshsync/internal/config"
	"github.com/yndnr/meshsync/internal/infra/buildinfo"
)

// DefaultJournalFileName is the journal file under the data dir when
// telemetry.journal_file is not configured.
const DefaultJournalFileName = "journal.log"

const (
	metaEnv        = "env"
	metaAppOptions = "appOptions"
)

// App creates the CLI application. opts are passed to app.New for every
// command that opens the install.
func App(opts ...app.Option) *cli.App {
	return &cli.App{
		Name:    "meshsync",
		Usage:   "Encrypted state sync across your devices",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			WorkspaceCommand(),
			PushCommand(),
			PullCommand(),
			RetryCommand(),
			SyncCommand(),
			StatusCommand(),
			KeyCommand(),
			PremiumCommand(),
			OnboardingCommand(),
			LogsCommand(),
			DaemonCommand(),
			ConfigCommand(),
		},
		Metadata: map[string]any{metaAppOptions: opts},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
		After: closeEnv,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML config file",
			EnvVars: []string{"MESHSYNC_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Directory for local state (default ~/.meshsync)",
		},
		&cli.StringSliceFlag{
			Name:    "endpoint",
			Aliases: []string{"e"},
			Usage:   "Backend endpoint, in priority order (repeatable)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: text, json, yaml",
			Value:   string(output.FormatText),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level for this run (default warn; the daemon uses the configured level)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Shorthand for --log-level debug",
		},
	}
}

// loadConfig layers the global flags over the configuration file and
// environment. One-shot commands log at warn unless asked otherwise.
func loadConfig(c *cli.Context, daemon bool) (*config.Config, error) {
	overrides := map[string]any{}
	if dir := c.String("data-dir"); dir != "" {
		overrides["storage.data_dir"] = dir
	}
	if eps := c.StringSlice("endpoint"); len(eps) > 0 {
		overrides["backend.endpoints"] = eps
	}
	switch {
	case c.Bool("verbose"):
		overrides["log.level"] = "debug"
	case c.String("log-level") != "":
		overrides["log.level"] = c.String("log-level")
	case !daemon:
		overrides["log.level"] = "warn"
	}

	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Telemetry.JournalFile == "" {
		cfg.Telemetry.JournalFile = filepath.Join(cfg.Storage.DataDir, DefaultJournalFileName)
	}
	return cfg, nil
}

// env is an opened install plus the output settings of the current run.
type env struct {
	*app.App
	format output.Format
	stdout io.Writer
	stderr io.Writer
}

func openEnv(c *cli.Context) (*env, error) {
	return openEnvWith(c, false)
}

func openEnvWith(c *cli.Context, daemon bool) (*env, error) {
	if e, ok := c.App.Metadata[metaEnv].(*env); ok {
		return e, nil
	}
	cfg, err := loadConfig(c, daemon)
	if err != nil {
		return nil, err
	}

	opts := []app.Option{app.WithLogOutput(c.App.ErrWriter)}
	if extra, ok := c.App.Metadata[metaAppOptions].([]app.Option); ok {
		opts = append(opts, extra...)
	}
	a, err := app.New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	format, _ := output.ParseFormat(c.String("output"))
	e := &env{App: a, format: format, stdout: c.App.Writer, stderr: c.App.ErrWriter}
	c.App.Metadata[metaEnv] = e
	return e, nil
}

func closeEnv(c *cli.Context) error {
	e, ok := c.App.Metadata[metaEnv].(*env)
	if !ok {
		return nil
	}
	delete(c.App.Metadata, metaEnv)
	return e.Close()
}

func (e *env) text() bool {
	return e.format == output.FormatText
}

// print writes a result to stdout in the selected format.
func (e *env) print(data any) error {
	return output.NewFormatter(e.format).Format(e.stdout, data)
}

// note writes a human hint to stderr in text mode only.
func (e *env) note(format string, args ...any) {
	if e.text() {
		fmt.Fprintf(e.stderr, format+"\n", args...)
	}
}

// commandContext is cancelled by SIGINT or SIGTERM.
func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
