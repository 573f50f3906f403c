// internal/engine/dedup.go
package engine

import (
	"container/list"
	"fmt"
)

// Dedup implements two-tier command deduplication: an in-memory LRU in
// front of a Postgres lookup. Collector batches are replayed at-least
// once by NATS, so every batch command is checked here before it can
// charge anyone twice.
type Dedup struct {
	lru *DedupLRU

	// Tier 2: Postgres (injected via interface)
	db DBDedup

	metrics *DedupMetrics
}

// DBDedup is the interface for the Postgres dedup lookup.
type DBDedup interface {
	IsDuplicate(commandType string, key string) (bool, error)
}

func NewDedup(capacity int, db DBDedup) *Dedup {
	return &Dedup{
		lru:     NewDedupLRU(capacity),
		db:      db,
		metrics: NewDedupMetrics(),
	}
}

// IsDuplicate checks whether the command was already processed
// (two-tier lookup).
func (d *Dedup) IsDuplicate(commandType string, key string) bool {
	compositeKey := fmt.Sprintf("%s:%s", commandType, key)

	// Tier 1: LRU check (hot path)
	if d.lru.Contains(compositeKey) {
		d.metrics.RecordDuplicate(commandType, "lru")
		return true
	}

	// Tier 2: Postgres check (cold path)
	if d.db != nil {
		isDup, err := d.db.IsDuplicate(commandType, key)
		if err != nil {
			// Conservative on lookup failure: assume not duplicate so a
			// DB issue cannot wedge command processing.
			d.metrics.RecordTier2Error()
			return false
		}

		if isDup {
			d.metrics.RecordDuplicate(commandType, "postgres")
			// Cache so we don't hit the DB again.
			d.lru.Add(compositeKey)
			return true
		}
	}

	return false
}

// MarkProcessed adds the key to the LRU after successful processing.
func (d *Dedup) MarkProcessed(commandType string, key string) {
	compositeKey := fmt.Sprintf("%s:%s", commandType, key)
	d.lru.Add(compositeKey)
}

// LRUSize returns current LRU occupancy.
func (d *Dedup) LRUSize() int {
	return d.lru.Size()
}

// WarmFromKeys preloads composite keys, used at startup to load the
// most recent processed batches from Postgres.
func (d *Dedup) WarmFromKeys(keys []string) {
	d.lru.WarmFromKeys(keys)
}

// Metrics returns dedup counters for monitoring.
func (d *Dedup) Metrics() *DedupMetrics {
	return d.metrics
}

// --- LRU Implementation ---

// DedupLRU is an LRU cache of processed command keys.
// Not thread-safe — only accessed under the engine's execution slot.
type DedupLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

type lruEntry struct {
	key string
}

func NewDedupLRU(capacity int) *DedupLRU {
	return &DedupLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front).
func (lru *DedupLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes if it exists).
func (lru *DedupLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *DedupLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
		lru.evictions++
	}
}

// WarmFromKeys loads a batch of composite keys into the LRU so
// recently processed commands skip the cold-path DB lookup after a
// restart.
func (lru *DedupLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		if _, exists := lru.cache[key]; exists {
			continue
		}
		entry := &lruEntry{key: key}
		elem := lru.lruList.PushFront(entry)
		lru.cache[key] = elem

		if lru.lruList.Len() > lru.capacity {
			lru.evictOldest()
		}
	}
}

// Size returns the current number of entries.
func (lru *DedupLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions (for metrics).
func (lru *DedupLRU) Evictions() int64 {
	return lru.evictions
}

// --- Metrics ---

// DedupMetrics tracks dedup stats.
// Not thread-safe — only accessed under the engine's execution slot.
type DedupMetrics struct {
	duplicatesLRU      map[string]int64 // command_type -> count
	duplicatesPostgres map[string]int64
	tier2Errors        int64
}

func NewDedupMetrics() *DedupMetrics {
	return &DedupMetrics{
		duplicatesLRU:      make(map[string]int64),
		duplicatesPostgres: make(map[string]int64),
	}
}

func (m *DedupMetrics) RecordDuplicate(commandType string, tier string) {
	if tier == "lru" {
		m.duplicatesLRU[commandType]++
	} else {
		m.duplicatesPostgres[commandType]++
	}
}

func (m *DedupMetrics) RecordTier2Error() {
	m.tier2Errors++
}

func (m *DedupMetrics) Duplicates(commandType string) (lru int64, postgres int64) {
	return m.duplicatesLRU[commandType], m.duplicatesPostgres[commandType]
}

func (m *DedupMetrics) Tier2Errors() int64 {
	return m.tier2Errors
}
