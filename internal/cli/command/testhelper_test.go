package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/meshsync/internal/transport/transporttest"
)

// device is one meshsync install (its own data dir and config file) talking
// to a shared fake backend.
type device struct {
	t       *testing.T
	srv     *transporttest.Server
	dataDir string
	config  string

	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newDevice(t *testing.T, srv *transporttest.Server) *device {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`backend:
  endpoints: [%q]
  health_attempts: 1
  health_retry_delay: 10ms
  retry_max: 0
network:
  probe_url: %q
storage:
  engine: badger
  data_dir: %q
sync:
  operation_timeout: 5s
`, srv.URL, srv.URL+"/api/health", dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &device{t: t, srv: srv, dataDir: dir, config: path}
}

func newBackend(t *testing.T) *transporttest.Server {
	t.Helper()
	srv := transporttest.NewServer()
	t.Cleanup(srv.Close)
	return srv
}

// run executes one CLI invocation. Output buffers are reset first.
func (d *device) run(args ...string) error {
	return d.runContext(context.Background(), args...)
}

func (d *device) runContext(ctx context.Context, args ...string) error {
	d.stdout.Reset()
	d.stderr.Reset()

	app := App()
	app.Writer = &d.stdout
	app.ErrWriter = &d.stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"meshsync", "--config", d.config}, args...)
	return app.RunContext(ctx, full)
}

// mustRun fails the test on error.
func (d *device) mustRun(args ...string) {
	d.t.Helper()
	require.NoError(d.t, d.run(args...), "stderr: %s", d.stderr.String())
}

// jsonOut runs args with --output json and decodes stdout into v.
func (d *device) jsonOut(v any, args ...string) {
	d.t.Helper()
	d.mustRun(append([]string{"--output", "json"}, args...)...)
	require.NoError(d.t, json.Unmarshal(d.stdout.Bytes(), v), "stdout: %s", d.stdout.String())
}

// writeState replaces the local state document.
func (d *device) writeState(state map[string]any) {
	d.t.Helper()
	data, err := json.Marshal(state)
	require.NoError(d.t, err)
	require.NoError(d.t, os.WriteFile(filepath.Join(d.dataDir, "state.json"), data, 0o600))
}

func (d *device) readState() map[string]any {
	d.t.Helper()
	data, err := os.ReadFile(filepath.Join(d.dataDir, "state.json"))
	require.NoError(d.t, err)
	var state map[string]any
	require.NoError(d.t, json.Unmarshal(data, &state))
	return state
}

// enable turns on premium and completes onboarding, the two sync gates.
func (d *device) enable(user string) {
	d.t.Helper()
	d.mustRun("onboarding", "complete")
	d.mustRun("premium", "activate", "--user", user, "--any-device")
}
