// Command meshsync pairs this device with a shared workspace and keeps its
// local state in sync through encrypted snapshots.
//
// Run "meshsync --help" for the command list. Build metadata is injected
// with -ldflags "-X github.com/yndnr/meshsync/internal/infra/buildinfo.Version=...".
package main
