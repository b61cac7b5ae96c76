// Package config provides the configuration of trustm-rsa-enc.
//
// Values come from, in increasing priority: Default, a YAML file
// (DefaultConfigPath or --config), TRUSTM_ environment variables, and command
// line flags. Nested keys use "__" in environment names:
//
//	TRUSTM_BACKEND=pkcs11
//	TRUSTM_PKCS11__MODULE_PATH=/usr/lib/softhsm/libsofthsm2.so
//	TRUSTM_PKCS11__TOKEN_LABEL=trustm
//	TRUSTM_PKCS11__PIN=1234
package config
