// Package confloader loads layered configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Values already set on the target struct (defaults)
//  2. The YAML configuration file
//  3. Environment variables (MESHSYNC_ prefix, "__" between levels)
//  4. Overrides from command-line flags
//
// Watcher reports changes to the configuration file so long-running
// processes can reload.
package confloader
