// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache implements the bounded fingerprint memoization described in
// 4.C: a mapping from absolute path to (stat-key, Fingerprint) with
// hit/miss/eviction counters exposed both directly and as Prometheus
// collectors.
package cache

import (
	"container/list"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/kraklabs/testsel/internal/xerrors"
	"github.com/kraklabs/testsel/pkg/fingerprint"
)

// DefaultMaxSize is the host-configurable default (see EXTERNAL INTERFACES).
const DefaultMaxSize = 100_000

type statKey struct {
	mtime float64
	size  int64
}

type entry struct {
	path string
	key  statKey
	fp   *fingerprint.Fingerprint
	elem *list.Element
}

// Cache is safe for concurrent readers; writers (insertions and evictions)
// hold the mutex for the duration of their critical section. Lookups take
// only the RWMutex's shared read lock, so readers do not exclude each other.
type Cache struct {
	mu       sync.RWMutex
	maxSize  int
	entries  map[string]*entry
	order    *list.List // insertion order, front = oldest, for FIFO eviction
	extract  *fingerprint.Extractor
	root     string
	hits     prometheus.Counter
	misses   prometheus.Counter
	evicts   prometheus.Counter
}

// New constructs a Cache bounded to maxSize entries, computing misses via e
// for files under projectRoot.
func New(e *fingerprint.Extractor, projectRoot string, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		maxSize: maxSize,
		entries: make(map[string]*entry),
		order:   list.New(),
		extract: e,
		root:    projectRoot,
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "testsel_cache_hits_total",
			Help: "Fingerprint cache hits.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "testsel_cache_misses_total",
			Help: "Fingerprint cache misses.",
		}),
		evicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "testsel_cache_evictions_total",
			Help: "Fingerprint cache evictions.",
		}),
	}
}

// Collectors returns the Prometheus collectors backing this cache's
// counters, for registration by the host's metrics registry.
func (c *Cache) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.hits, c.misses, c.evicts}
}

// GetOrCalculate implements 4.C's get_or_calculate(path): return the cached
// Fingerprint if the stat-key still matches, otherwise recompute via 4.B,
// insert, and return.
func (c *Cache) GetOrCalculate(path string) (*fingerprint.Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, xerrors.FileUnreadable(path, err)
	}
	key := statKey{mtime: float64(info.ModTime().UnixNano()) / 1e9, size: info.Size()}

	c.mu.RLock()
	if e, ok := c.entries[path]; ok && e.key == key {
		fp := e.fp
		c.mu.RUnlock()
		c.hits.Inc()
		return fp, nil
	}
	c.mu.RUnlock()

	fp, err := fingerprint.Build(c.extract, path, c.root, nil)
	if err != nil {
		return nil, err
	}
	c.misses.Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[path]; ok {
		existing.key = key
		existing.fp = fp
		c.order.MoveToBack(existing.elem)
		return fp, nil
	}
	el := c.order.PushBack(path)
	c.entries[path] = &entry{path: path, key: key, fp: fp, elem: el}
	c.evictIfNeeded()
	return fp, nil
}

// evictIfNeeded drops the oldest entry (FIFO) while over capacity. Called
// with c.mu held for writing.
func (c *Cache) evictIfNeeded() {
	for len(c.entries) > c.maxSize {
		front := c.order.Front()
		if front == nil {
			return
		}
		path := front.Value.(string)
		c.order.Remove(front)
		delete(c.entries, path)
		c.evicts.Inc()
	}
}

// Stats mirrors 4.C's exposed counters.
type Stats struct {
	Hits     int64
	Misses   int64
	Size     int
	MaxSize  int
	HitRate  float64
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	hits := counterValue(c.hits)
	misses := counterValue(c.misses)
	rate := 0.0
	if hits+misses > 0 {
		rate = hits / (hits + misses)
	}
	return Stats{
		Hits:    int64(hits),
		Misses:  int64(misses),
		Size:    size,
		MaxSize: c.maxSize,
		HitRate: rate,
	}
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	if m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}

// Size returns the current entry count (4.C host surface: cache.size).
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MaxSize returns the configured capacity (4.C host surface: cache.max_size).
func (c *Cache) MaxSize() int {
	return c.maxSize
}
