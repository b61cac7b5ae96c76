// Package domain defines the core domain models for trustm-go.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - ObjectID, KeyReference and DecodedKey: how a key is addressed
//   - CryptoRequest and EncryptionScheme: what is asked of the element
//   - StatusCode: status words reported by the element and its driver
//   - Errors: the error taxonomy (transport, validation, submission,
//     operation, io) with structured codes
package domain
