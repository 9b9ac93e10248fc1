// Package hcl provides the concrete HCL implementation of the configuration
// loading interface defined in the `config` package. It is responsible for
// file parsing, HCL-to-model translation, and validation of roles, channel
// kinds, and durations.
package hcl
