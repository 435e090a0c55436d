// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package cache

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	if _, ok := c.Get("absent"); ok {
		t.Error("Get(absent) = hit, want miss")
	}

	c.Set("k", 42)
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Get(k) = miss, want hit")
	}
	if got.(int) != 42 {
		t.Errorf("value = %v, want 42", got)
	}
}

func TestExpiry(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.SetWithTTL("short", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("expired entry still served")
	}

	stats := c.Stats()
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
}

func TestInvalidateUser(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set(UserKey(1, "recommendations", "50"), "a")
	c.Set(UserKey(1, "similarity"), "b")
	c.Set(UserKey(12, "similarity"), "c")

	c.InvalidateUser(1)

	if _, ok := c.Get(UserKey(1, "recommendations", "50")); ok {
		t.Error("user 1 recommendations entry survived invalidation")
	}
	if _, ok := c.Get(UserKey(1, "similarity")); ok {
		t.Error("user 1 similarity entry survived invalidation")
	}
	// Prefix match must not clobber user 12.
	if _, ok := c.Get(UserKey(12, "similarity")); !ok {
		t.Error("user 12 entry wrongly invalidated")
	}
}

func TestStatsCounters(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("k", 1)
	c.Get("k")
	c.Get("k")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("Hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Keys != 1 {
		t.Errorf("Keys = %d, want 1", stats.Keys)
	}
}
