// Usage:
//
//	trustm-rsa-enc -k 0xE0FC -i message.bin -o message.enc
//	trustm-rsa-enc -p pubkey.pem -i message.bin -o message.enc
//	trustm-rsa-enc provision --oid 0xE0FD --bits 1024
//	trustm-rsa-enc pubkey --oid 0xE0FC -o e0fc.pem
//	trustm-rsa-enc list
//
// Running without arguments prints the help and exits 0. The exit code
// otherwise names the failing stage: 1 transport, 2 validation or usage,
// 3 submission, 4 operation, 5 file I/O.
package main
