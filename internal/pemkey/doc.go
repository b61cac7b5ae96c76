// Package pemkey decodes PEM encoded public key files.
//
// Decode reports the block label, the key family and size, and for RSA keys
// the PKCS#1 encoding the element expects for host-supplied keys.
package pemkey
