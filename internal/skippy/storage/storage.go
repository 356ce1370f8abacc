// Package storage implements the in-memory object-storage index the
// data-locality priority consults: which nodes host which buckets, and
// which nodes hold a specific item within a bucket.
package storage

import (
	"fmt"
	"sync"
)

// ErrMissingBucket is returned by Put when the target bucket has no
// hosting node registered.
type ErrMissingBucket struct {
	Bucket string
}

func (e *ErrMissingBucket) Error() string {
	return fmt.Sprintf("storage: no node hosts bucket %q", e.Bucket)
}

// DataItem is an object stored under a bucket/name pair.
type DataItem struct {
	Bucket string
	Name   string
	Size   int64
}

type itemKey struct {
	bucket string
	name   string
}

// Index maps buckets and data items to the node names that host them.
type Index struct {
	mu      sync.RWMutex
	buckets map[string]map[string]struct{} // bucket -> set of node names
	items   map[itemKey]DataItem
	tree    map[itemKey]map[string]struct{} // (bucket,name) -> set of node names
}

// NewIndex returns an empty storage index.
func NewIndex() *Index {
	return &Index{
		buckets: make(map[string]map[string]struct{}),
		items:   make(map[itemKey]DataItem),
		tree:    make(map[itemKey]map[string]struct{}),
	}
}

// MakeBucket registers node as a host for bucket.
func (idx *Index) MakeBucket(bucket, node string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	nodes, ok := idx.buckets[bucket]
	if !ok {
		nodes = make(map[string]struct{})
		idx.buckets[bucket] = nodes
	}
	nodes[node] = struct{}{}
}

// Put records a data item. The bucket must already have at least one
// hosting node, and every hosting node is recorded as holding the item.
func (idx *Index) Put(item DataItem) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	nodes, ok := idx.buckets[item.Bucket]
	if !ok || len(nodes) == 0 {
		return &ErrMissingBucket{Bucket: item.Bucket}
	}

	k := itemKey{item.Bucket, item.Name}
	idx.items[k] = item

	holders, ok := idx.tree[k]
	if !ok {
		holders = make(map[string]struct{})
		idx.tree[k] = holders
	}
	for n := range nodes {
		holders[n] = struct{}{}
	}
	return nil
}

// Stat returns the DataItem for (bucket, name), or ok=false if unknown.
func (idx *Index) Stat(bucket, name string) (DataItem, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	item, ok := idx.items[itemKey{bucket, name}]
	return item, ok
}

// BucketNodes returns the set of node names hosting bucket.
func (idx *Index) BucketNodes(bucket string) map[string]struct{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copySet(idx.buckets[bucket])
}

// DataNodes returns the set of node names holding (bucket, name).
func (idx *Index) DataNodes(bucket, name string) map[string]struct{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copySet(idx.tree[itemKey{bucket, name}])
}

func copySet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
