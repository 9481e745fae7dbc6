// Package cmap provides a generic sharded concurrent map.
//
// Keys are spread over a power-of-two number of shards, each guarded by
// its own RWMutex, so unrelated keys rarely contend. Iteration locks one
// shard at a time and therefore does not see a consistent snapshot.
//
//	m := cmap.New[string, *entry]()
//	e, _ := m.GetOrSet(ip, newEntry())
//	m.DeleteIf(ip, func(e *entry) bool { return e.idle() })
package cmap
