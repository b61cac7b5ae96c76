// Package pkcs11dev runs element commands on a PKCS#11 token.
//
// The module is configured and logged in through crypto11, which also
// generates key pairs. Encryption and metadata reads go through a raw
// miekg/pkcs11 session using CKM_RSA_PKCS. On-chip keys are token key pairs
// whose CKA_ID holds the two-byte object identifier; host keys are loaded as
// transient session objects for the duration of one command.
//
// SoftHSM works as a stand-in for real hardware:
//
//	softhsm2-util --init-token --free --label trustm --pin 1234 --so-pin 0000
package pkcs11dev
