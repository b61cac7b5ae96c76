// Package storage provides the Badger-backed key-value store that holds
// software element objects.
//
// Keys and values are opaque byte strings. The store can live on disk, where
// provisioned objects survive restarts, or purely in memory for tests and
// throwaway sessions. On-disk stores run a periodic value log GC.
package storage
