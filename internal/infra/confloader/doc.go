// Package confloader loads configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. values already in the target struct (defaults)
//  2. a YAML file
//  3. environment variables with the TRUSTM_ prefix
//  4. explicit overrides, usually command line flags
package confloader
