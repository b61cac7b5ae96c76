// Package emulator implements a software secure element.
//
// Key objects are RSA private keys held in a Badger store, sealed with
// ChaCha20-Poly1305 under a key derived from the device secret. A store
// opened with the wrong secret fails the open handshake. Commands run one at
// a time on a worker goroutine after an optional latency; a command submitted
// while another runs is refused with a busy status, as the real element does.
package emulator
