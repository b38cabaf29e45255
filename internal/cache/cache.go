// Package cache provides a scoped caching layer for operator tool results.
// Entries are isolated per deployment and region so an operator server
// pointed at several deployments never mixes their alarm state.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Entry represents a cached item with metadata
type Entry struct {
	Value     interface{} `json:"value"`
	ExpiresAt time.Time   `json:"expires_at"`
	CreatedAt time.Time   `json:"created_at"`
	HitCount  int         `json:"hit_count"`
}

// IsExpired checks if the entry has expired
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// ScopeCache holds the entries of one deployment scope.
type ScopeCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	maxSize int
}

// NewScopeCache creates a scope cache holding at most maxSize entries.
func NewScopeCache(maxSize int) *ScopeCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &ScopeCache{
		entries: make(map[string]*Entry),
		maxSize: maxSize,
	}
}

// Get retrieves a value, dropping it if expired.
func (c *ScopeCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}
	if entry.IsExpired() {
		delete(c.entries, key)
		return nil, false
	}
	entry.HitCount++
	return entry.Value, true
}

// Set stores a value for ttl.
func (c *ScopeCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictExpiredLocked()
		if len(c.entries) >= c.maxSize {
			c.evictOldestLocked()
		}
	}

	now := time.Now()
	c.entries[key] = &Entry{
		Value:     value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// Delete removes a key.
func (c *ScopeCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// DeleteByPrefix removes every key starting with prefix and returns the count.
func (c *ScopeCache) DeleteByPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Clear removes every entry.
func (c *ScopeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
}

// Size returns the number of entries, expired ones included.
func (c *ScopeCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats summarizes the scope cache.
type Stats struct {
	Size      int      `json:"size"`
	MaxSize   int      `json:"max_size"`
	TotalHits int      `json:"total_hits"`
	Expired   int      `json:"expired"`
	Keys      []string `json:"keys,omitempty"`
}

// Stats returns a snapshot of the cache.
func (c *ScopeCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Size: len(c.entries), MaxSize: c.maxSize}
	for key, entry := range c.entries {
		s.TotalHits += entry.HitCount
		if entry.IsExpired() {
			s.Expired++
		}
		s.Keys = append(s.Keys, key)
	}
	sort.Strings(s.Keys)
	return s
}

func (c *ScopeCache) evictExpiredLocked() {
	for key, entry := range c.entries {
		if entry.IsExpired() {
			delete(c.entries, key)
		}
	}
}

func (c *ScopeCache) evictOldestLocked() {
	var (
		oldestKey  string
		oldestTime time.Time
	)
	for key, entry := range c.entries {
		if oldestKey == "" || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Config holds cache configuration
type Config struct {
	// MaxEntriesPerScope bounds each deployment scope.
	MaxEntriesPerScope int

	DefaultTTL time.Duration

	// TTLByTool overrides DefaultTTL per tool.
	TTLByTool map[string]time.Duration

	// Invalidates maps a mutating tool to the tools whose results it stales.
	Invalidates map[string][]string

	Enabled bool
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() *Config {
	return &Config{
		MaxEntriesPerScope: 200,
		DefaultTTL:         time.Minute,
		TTLByTool: map[string]time.Duration{
			"get_alarm_config":     2 * time.Minute,
			"preview_thresholds":   2 * time.Minute,
			"list_instance_alarms": 30 * time.Second,
		},
		Invalidates: map[string][]string{
			"update_alarm_config":    {"get_alarm_config", "preview_thresholds"},
			"remove_instance_alarms": {"list_instance_alarms"},
			"trigger_reconciliation": {"list_instance_alarms"},
		},
		Enabled: true,
	}
}

// Manager manages the scope caches.
type Manager struct {
	mu     sync.RWMutex
	caches map[string]*ScopeCache
	config *Config
}

// NewManager creates a cache manager; a nil config uses DefaultConfig.
func NewManager(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{
		caches: make(map[string]*ScopeCache),
		config: config,
	}
}

// Scope returns the key of a deployment in a region.
func Scope(deploymentID, region string) string {
	return deploymentID + "@" + region
}

// ScopeCache returns the cache of scope, creating it on first use.
func (m *Manager) ScopeCache(scope string) *ScopeCache {
	m.mu.RLock()
	c, exists := m.caches[scope]
	m.mu.RUnlock()
	if exists {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, exists := m.caches[scope]; exists {
		return c
	}
	c = NewScopeCache(m.config.MaxEntriesPerScope)
	m.caches[scope] = c
	return c
}

// Get retrieves the cached result of toolName for key.
func (m *Manager) Get(scope, toolName, key string) (interface{}, bool) {
	if !m.IsEnabled() {
		return nil, false
	}
	return m.ScopeCache(scope).Get(toolName + ":" + key)
}

// Set caches the result of toolName for key with the tool's TTL.
func (m *Manager) Set(scope, toolName, key string, value interface{}) {
	if !m.IsEnabled() {
		return
	}
	ttl := m.config.DefaultTTL
	if toolTTL, ok := m.config.TTLByTool[toolName]; ok {
		ttl = toolTTL
	}
	m.ScopeCache(scope).Set(toolName+":"+key, value, ttl)
}

// InvalidateTool removes every entry of toolName in scope.
func (m *Manager) InvalidateTool(scope, toolName string) int {
	return m.ScopeCache(scope).DeleteByPrefix(toolName + ":")
}

// InvalidateRelated removes the entries a mutation by mutationTool stales.
func (m *Manager) InvalidateRelated(scope, mutationTool string) int {
	n := 0
	for _, tool := range m.config.Invalidates[mutationTool] {
		n += m.InvalidateTool(scope, tool)
	}
	return n
}

// GlobalStats returns statistics across scopes.
func (m *Manager) GlobalStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalSize, totalHits := 0, 0
	for _, c := range m.caches {
		s := c.Stats()
		totalSize += s.Size
		totalHits += s.TotalHits
	}
	return map[string]interface{}{
		"scope_count":   len(m.caches),
		"total_entries": totalSize,
		"total_hits":    totalHits,
		"enabled":       m.IsEnabled(),
	}
}

// SetEnabled enables or disables caching
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Enabled = enabled
}

// IsEnabled returns whether caching is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Enabled
}
