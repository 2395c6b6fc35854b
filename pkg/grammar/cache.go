/*
Copyright 2025 The llm-d Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package grammar

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize bounds the number of distinct compiled grammars kept in
// memory. Identical grammar payloads are common across requests (a client
// reusing the same JSON-Schema for many generations); this only memoizes,
// it never changes what a fresh compilation would have produced (SPEC_FULL
// §D).
const defaultCacheSize = 256

type cacheEntry struct {
	Regex  string
	States StatesToTokenMaps
}

// Cache is a bounded LRU of compiled grammars keyed by an xxhash of the
// normalized grammar source, so the scarce process-wide grammar library is
// not re-invoked for a payload it has already compiled.
type Cache struct {
	lru *lru.Cache[uint64, cacheEntry]
}

// NewCache builds a Cache holding at most size entries.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New[uint64, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize grammar cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Get looks up the compiled result for a normalized grammar source string.
func (c *Cache) Get(source string) (cacheEntry, bool) {
	return c.lru.Get(xxhash.Sum64String(source))
}

// Add stores the compiled result for a normalized grammar source string.
func (c *Cache) Add(source string, entry cacheEntry) {
	c.lru.Add(xxhash.Sum64String(source), entry)
}
