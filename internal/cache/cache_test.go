package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestScopeCache(t *testing.T) {
	c := NewScopeCache(10)

	c.Set("key1", "value1", 5*time.Minute)
	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("Expected to find key1")
	}
	if val != "value1" {
		t.Errorf("Expected value1, got %v", val)
	}

	if _, ok := c.Get("nonexistent"); ok {
		t.Error("Expected not to find nonexistent key")
	}
}

func TestScopeCacheExpiration(t *testing.T) {
	c := NewScopeCache(10)
	c.Set("expiring", "value", time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get("expiring"); ok {
		t.Error("Expected expired entry to be removed")
	}
	if c.Size() != 0 {
		t.Errorf("Expected expired entry to be dropped on read, size %d", c.Size())
	}
}

func TestScopeCacheDeleteByPrefix(t *testing.T) {
	c := NewScopeCache(10)
	c.Set("list_instance_alarms:i-0a", "a", time.Minute)
	c.Set("list_instance_alarms:i-0b", "b", time.Minute)
	c.Set("get_alarm_config:current", "cfg", time.Minute)

	if n := c.DeleteByPrefix("list_instance_alarms:"); n != 2 {
		t.Errorf("Expected 2 deletions, got %d", n)
	}
	if _, ok := c.Get("get_alarm_config:current"); !ok {
		t.Error("Expected unrelated entry to survive")
	}
}

func TestScopeCacheEvictsOldest(t *testing.T) {
	c := NewScopeCache(2)
	c.Set("first", 1, time.Minute)
	time.Sleep(time.Millisecond)
	c.Set("second", 2, time.Minute)
	time.Sleep(time.Millisecond)
	c.Set("third", 3, time.Minute)

	if c.Size() != 2 {
		t.Fatalf("Expected size 2, got %d", c.Size())
	}
	if _, ok := c.Get("first"); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	if _, ok := c.Get("third"); !ok {
		t.Error("Expected newest entry to be present")
	}
}

func TestScopeCacheStats(t *testing.T) {
	c := NewScopeCache(5)
	c.Set("b", 1, time.Minute)
	c.Set("a", 2, time.Minute)
	c.Get("a")
	c.Get("a")

	s := c.Stats()
	if s.Size != 2 || s.MaxSize != 5 {
		t.Errorf("Unexpected sizes: %+v", s)
	}
	if s.TotalHits != 2 {
		t.Errorf("Expected 2 hits, got %d", s.TotalHits)
	}
	if fmt.Sprint(s.Keys) != "[a b]" {
		t.Errorf("Expected sorted keys, got %v", s.Keys)
	}
}

func TestManagerScopeIsolation(t *testing.T) {
	m := NewManager(nil)
	prod := Scope("prod", "us-east-1")
	staging := Scope("staging", "us-east-1")

	m.Set(prod, "get_alarm_config", "current", "prod-config")
	if _, ok := m.Get(staging, "get_alarm_config", "current"); ok {
		t.Error("Expected staging scope not to see prod entries")
	}
	val, ok := m.Get(prod, "get_alarm_config", "current")
	if !ok || val != "prod-config" {
		t.Errorf("Expected prod-config, got %v (found=%v)", val, ok)
	}
}

func TestManagerInvalidateRelated(t *testing.T) {
	m := NewManager(nil)
	scope := Scope("prod", "eu-west-1")

	m.Set(scope, "get_alarm_config", "current", "cfg")
	m.Set(scope, "preview_thresholds", "t3.micro", "preview")
	m.Set(scope, "list_instance_alarms", "i-0a", "alarms")

	if n := m.InvalidateRelated(scope, "update_alarm_config"); n != 2 {
		t.Errorf("Expected 2 invalidations, got %d", n)
	}
	if _, ok := m.Get(scope, "get_alarm_config", "current"); ok {
		t.Error("Expected config entry to be invalidated")
	}
	if _, ok := m.Get(scope, "list_instance_alarms", "i-0a"); !ok {
		t.Error("Expected alarm listing to survive a config update")
	}

	m.InvalidateRelated(scope, "remove_instance_alarms")
	if _, ok := m.Get(scope, "list_instance_alarms", "i-0a"); ok {
		t.Error("Expected alarm listing to be invalidated after removal")
	}

	if n := m.InvalidateRelated(scope, "suppress_notifications"); n != 0 {
		t.Errorf("Expected no invalidations for an unmapped tool, got %d", n)
	}
}

func TestManagerDisabled(t *testing.T) {
	m := NewManager(nil)
	m.SetEnabled(false)
	m.Set("s", "get_alarm_config", "current", "cfg")
	if _, ok := m.Get("s", "get_alarm_config", "current"); ok {
		t.Error("Expected nothing cached while disabled")
	}
	if m.IsEnabled() {
		t.Error("Expected manager to report disabled")
	}
}

func TestManagerToolTTL(t *testing.T) {
	m := NewManager(&Config{
		MaxEntriesPerScope: 10,
		DefaultTTL:         time.Hour,
		TTLByTool: map[string]time.Duration{
			"list_instance_alarms": time.Millisecond,
		},
		Enabled: true,
	})
	m.Set("s", "list_instance_alarms", "i-0a", "alarms")
	m.Set("s", "get_alarm_config", "current", "cfg")
	time.Sleep(10 * time.Millisecond)

	if _, ok := m.Get("s", "list_instance_alarms", "i-0a"); ok {
		t.Error("Expected short TTL entry to expire")
	}
	if _, ok := m.Get("s", "get_alarm_config", "current"); !ok {
		t.Error("Expected default TTL entry to be valid")
	}
}

func TestManagerConcurrency(t *testing.T) {
	m := NewManager(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			scope := Scope("a", "us-east-1")
			if id%2 == 0 {
				scope = Scope("b", "us-east-1")
			}
			m.Set(scope, "get_alarm_config", "current", id)
			m.Get(scope, "get_alarm_config", "current")
		}(i)
	}
	wg.Wait()

	stats := m.GlobalStats()
	if stats["scope_count"].(int) != 2 {
		t.Errorf("Expected 2 scopes, got %v", stats["scope_count"])
	}
	if stats["total_entries"].(int) != 2 {
		t.Errorf("Expected 2 entries, got %v", stats["total_entries"])
	}
}

func TestEntry(t *testing.T) {
	live := &Entry{Value: "v", ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now()}
	if live.IsExpired() {
		t.Error("Entry should not be expired")
	}
	dead := &Entry{Value: "v", ExpiresAt: time.Now().Add(-time.Second), CreatedAt: time.Now()}
	if !dead.IsExpired() {
		t.Error("Entry should be expired")
	}
}
