// Package config defines the meshsync configuration.
//
//   - spec.go: Config struct definition
//   - default.go: default values
//   - load.go: layered loading through internal/infra/confloader
//   - verify.go: validation
//   - sanitize.go: masking for logs
//
// The converters in convert.go turn sections into the settings structs of
// the packages that consume them.
package config
