// Package command defines the meshsync command line.
//
// Every command loads configuration (defaults, config file, MESHSYNC_
// environment, then flags), opens the local install through package app
// and closes it when the command returns. Results go to stdout in the
// format chosen by --output; progress and logs go to stderr.
//
// Commands:
//
//	workspace create|join|show|leave   pairing with a shared workspace
//	push, pull, retry, sync            one-shot sync operations
//	status                             local install summary
//	key show|check                     sync key inspection
//	premium check|activate             entitlement lookups
//	onboarding complete|reset          onboarding flag
//	logs list|export                   activity journal
//	daemon                             periodic sync with metrics
//	config show                        effective configuration
package command
