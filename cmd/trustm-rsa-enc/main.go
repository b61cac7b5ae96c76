// Package main provides the entry point for trustm-rsa-enc.
//
// trustm-rsa-enc encrypts a file with RSAES-PKCS1-v1_5 through a secure
// element, using an on-chip key or a host public key.
package main

import (
	"os"

	"github.com/yndnr/trustm-go/internal/cli/command"
)

func main() {
	os.Exit(command.Run(os.Args, os.Stdout, os.Stderr))
}
