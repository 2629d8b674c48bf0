// Package shutdown coordinates graceful stop of the meshsync daemon: a
// context cancelled by SIGINT or SIGTERM, and cleanup hooks run once with a
// deadline.
package shutdown
