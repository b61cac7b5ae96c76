// Package output renders trustm-rsa-enc results.
//
// Text output keeps the layout of the classic OPTIGA examples: a banner,
// aligned "label : value" fields and a 16-byte-per-row hexdump. Reports can
// also be emitted as JSON or YAML for scripting.
package output
