// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package spoke

// DisjointSet is a union-find forest over arbitrary comparable keys.
//
// Description:
//
//	Keys are mapped to dense indices on first sight. Find uses path
//	compression (halving) and Union merges by size, giving near-constant
//	amortized operations. Which key becomes the representative after a
//	union is unspecified; callers must derive identity from Find.
//
// Thread Safety: Not safe for concurrent mutation.
type DisjointSet[K comparable] struct {
	index  map[K]int
	keys   []K
	parent []int
	size   []int
}

// NewDisjointSet creates an empty forest with room for capacity keys.
func NewDisjointSet[K comparable](capacity int) *DisjointSet[K] {
	return &DisjointSet[K]{
		index:  make(map[K]int, capacity),
		keys:   make([]K, 0, capacity),
		parent: make([]int, 0, capacity),
		size:   make([]int, 0, capacity),
	}
}

// Add inserts k as a singleton if it is not present and returns its index.
func (d *DisjointSet[K]) Add(k K) int {
	if i, ok := d.index[k]; ok {
		return i
	}
	i := len(d.keys)
	d.index[k] = i
	d.keys = append(d.keys, k)
	d.parent = append(d.parent, i)
	d.size = append(d.size, 1)
	return i
}

// Contains reports whether k has been added.
func (d *DisjointSet[K]) Contains(k K) bool {
	_, ok := d.index[k]
	return ok
}

// Find returns the representative key of k's set.
func (d *DisjointSet[K]) Find(k K) (K, bool) {
	i, ok := d.index[k]
	if !ok {
		var zero K
		return zero, false
	}
	return d.keys[d.root(i)], true
}

func (d *DisjointSet[K]) root(i int) int {
	for d.parent[i] != i {
		d.parent[i] = d.parent[d.parent[i]]
		i = d.parent[i]
	}
	return i
}

// Union merges the sets of a and b, adding either if absent. It returns
// true if they were in different sets.
func (d *DisjointSet[K]) Union(a, b K) bool {
	ra, rb := d.root(d.Add(a)), d.root(d.Add(b))
	if ra == rb {
		return false
	}
	if d.size[ra] < d.size[rb] {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	d.size[ra] += d.size[rb]
	return true
}

// Same reports whether a and b are in the same set.
func (d *DisjointSet[K]) Same(a, b K) bool {
	ia, ok := d.index[a]
	if !ok {
		return false
	}
	ib, ok := d.index[b]
	if !ok {
		return false
	}
	return d.root(ia) == d.root(ib)
}

// Len returns the number of keys.
func (d *DisjointSet[K]) Len() int {
	return len(d.keys)
}

// Sets returns every set as a slice of keys. Sets are ordered by the
// insertion order of their first key; keys within a set keep insertion
// order.
func (d *DisjointSet[K]) Sets() [][]K {
	slot := make(map[int]int)
	var out [][]K
	for i, k := range d.keys {
		r := d.root(i)
		s, ok := slot[r]
		if !ok {
			s = len(out)
			slot[r] = s
			out = append(out, nil)
		}
		out[s] = append(out[s], k)
	}
	return out
}
