// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordsys

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/pangraph/services/pangraph/index"
)

// DefaultCacheCapacity is the number of coordinate systems kept when no
// capacity is configured.
const DefaultCacheCapacity = 256

// GlobalKey is the cache key of the global coordinate system.
const GlobalKey = ""

// BuildFunc builds the coordinate system for key.
type BuildFunc func(ctx context.Context, key string) (*CoordSys, error)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Builds    int64 `json:"builds"`
}

// Cache holds coordinate systems by scope key.
//
// Description:
//
//	Keys are path names, with GlobalKey for the global system. A miss is
//	built outside the cache lock; concurrent misses on the same key share a
//	single build through singleflight, and the first stored value wins.
//	The cache is owned by whoever assembles the graph; there is no
//	package-level instance.
//
// Thread Safety: Safe for concurrent use.
type Cache struct {
	lru    *lruCache[string, *CoordSys]
	flight singleflight.Group
	builds atomic.Int64
}

// NewCache creates a cache holding up to capacity systems.
func NewCache(capacity int) *Cache {
	return &Cache{lru: newLRUCache[string, *CoordSys](capacity)}
}

// Get returns the cached system for key, if present.
func (c *Cache) Get(key string) (*CoordSys, bool) {
	return c.lru.get(key)
}

// GetOrBuild returns the system for key, building it with build on a miss.
//
// Outputs:
//
//	*CoordSys - The cached or newly built system.
//	bool - True when the value came from the cache without building.
//	error - The build error; failures are not cached.
func (c *Cache) GetOrBuild(ctx context.Context, key string, build BuildFunc) (*CoordSys, bool, error) {
	if cs, ok := c.lru.get(key); ok {
		return cs, true, nil
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		cs, err := build(ctx, key)
		if err != nil {
			return nil, err
		}
		c.builds.Add(1)
		return c.lru.putIfAbsent(key, cs), nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*CoordSys), false, nil
}

// IndexBuilder returns a BuildFunc resolving keys against idx: GlobalKey
// yields Global(idx), any other key is a path name.
func IndexBuilder(idx *index.Index) BuildFunc {
	return func(_ context.Context, key string) (*CoordSys, error) {
		if key == GlobalKey {
			return Global(idx), nil
		}
		return ForPathName(idx, key)
	}
}

// Purge removes every entry and resets statistics.
func (c *Cache) Purge() {
	c.lru.purge()
	c.builds.Store(0)
}

// Len returns the number of cached systems.
func (c *Cache) Len() int {
	return c.lru.len()
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries:   c.lru.len(),
		Capacity:  c.lru.capacity,
		Hits:      c.lru.hits.Load(),
		Misses:    c.lru.misses.Load(),
		Evictions: c.lru.evictions.Load(),
		Builds:    c.builds.Load(),
	}
}
