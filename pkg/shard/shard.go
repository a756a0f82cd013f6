// Package shard provides the fnv1a(key) mod N partitioning shared by the
// instance registry (E) and the sharded cache (C), so both can be kept in
// the same number of shards as §4.4.3 requires ("N shards (same N as E)").
package shard

// Of returns fnv1a(key) mod n. n must be positive.
func Of(key string, n int) int {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= prime32
	}
	return int(h) % n
}
