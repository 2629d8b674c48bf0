// Package output renders command results for the meshsync CLI.
//
// Results go to stdout in one of three formats: text (aligned key/value
// blocks and tables), json or yaml. Progress feedback goes to stderr and
// is only animated on a terminal.
package output
