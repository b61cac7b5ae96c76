// Package command implements trustm-rsa-enc on urfave/cli.
//
// The root action encrypts a file with PKCS#1 v1.5 under either an on-chip
// key (-k OID) or a host public key (-p PEM):
//
//	trustm-rsa-enc -k 0xE0FC -i message.bin -o message.enc
//	trustm-rsa-enc -p pubkey.pem -i message.bin -o message.enc
//
// Subcommands manage keys on backends that support it (provision, pubkey,
// list) and inspect the configuration (config show, config validate).
//
// Run returns an exit code per failure stage: 1 transport, 2 validation or
// usage, 3 submission, 4 operation, 5 file I/O.
package command
