// Package buildinfo exposes the version of the running binary.
//
// Release builds set the variables through ldflags:
//
//	go build -ldflags "-X github.com/yndnr/meshsync/internal/infra/buildinfo.Version=v1.0.0"
//
// Development builds fall back to the VCS stamp the Go toolchain embeds.
package buildinfo
