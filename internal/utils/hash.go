package utils

import "hash/fnv"

// Fingerprint64 gives export bundles a cheap integrity marker so two offline
// copies of the same conversation dump can be compared without diffing.
func Fingerprint64(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}
