package statscache

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetStatsSubstitutesLiveClusterCountWhenHigher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage_stats.json")
	c := New(path, func() (int64, int64, error) { return 100, 50, nil })

	stats := c.GetStats(7)
	if stats.ClusterCount != 7 {
		t.Fatalf("expected live count 7 to win over empty cache, got %d", stats.ClusterCount)
	}
}

func TestRefreshSyncPersistsAndUpdatesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage_stats.json")
	c := New(path, func() (int64, int64, error) { return 1000, 400, nil })

	if err := c.RefreshSync(3); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	stats := c.GetStats(0)
	if stats.HierarchicalBytes != 1000 || stats.BaseBytes != 400 {
		t.Fatalf("unexpected stats after refresh: %+v", stats)
	}

	reloaded := New(path, func() (int64, int64, error) { return 0, 0, nil })
	got := reloaded.GetStats(0)
	if got.HierarchicalBytes != 1000 {
		t.Fatalf("expected persisted stats to survive reload, got %+v", got)
	}
}

func TestRefreshAsyncAllowsAtMostOneInFlight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage_stats.json")
	var inFlight int32
	var maxSeen int32
	release := make(chan struct{})

	c := New(path, func() (int64, int64, error) {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&maxSeen) {
			atomic.StoreInt32(&maxSeen, n)
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return 1, 1, nil
	})

	c.RefreshAsync(1)
	c.RefreshAsync(1) // should be a no-op: a refresh is already in flight
	close(release)

	// Give the single goroutine time to finish.
	time.Sleep(20 * time.Millisecond)

	if maxSeen > 1 {
		t.Fatalf("expected at most one in-flight refresh, saw %d", maxSeen)
	}
}
