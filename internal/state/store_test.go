package state

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New([]Asset{
		{ID: "dc-01", Tier: 0},
		{ID: "app-01", Tier: 1},
		{ID: "web-02", Tier: 2},
	}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestLookupAsset(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		target string
		tier   int
	}{
		{"dc-01", 0},
		{"app-01", 1},
		{"APP-01", 1}, // case-insensitive
		{" web-02 ", 2},
		{"unknown-host", 0}, // unknown resolves to the most conservative tier
		{"", 0},
	}
	for _, tt := range tests {
		if got := s.LookupAsset(tt.target); got.Tier != tt.tier {
			t.Errorf("LookupAsset(%q).Tier = %d, want %d", tt.target, got.Tier, tt.tier)
		}
	}
}

func TestReplaceAssets(t *testing.T) {
	s := newTestStore(t)

	if err := s.ReplaceAssets([]Asset{{ID: "app-01", Tier: 0}}); err != nil {
		t.Fatalf("ReplaceAssets: %v", err)
	}
	if got := s.LookupAsset("app-01").Tier; got != 0 {
		t.Errorf("expected app-01 to be promoted to tier 0, got %d", got)
	}
	if got := s.LookupAsset("web-02").Tier; got != 0 {
		t.Errorf("removed asset should resolve to tier 0, got %d", got)
	}

	if err := s.ReplaceAssets([]Asset{{ID: "x", Tier: -1}}); err == nil {
		t.Error("expected error for negative tier")
	}
	if err := s.ReplaceAssets([]Asset{{ID: " ", Tier: 1}}); err == nil {
		t.Error("expected error for empty id")
	}
	// failed replacement keeps the previous registry
	if got := s.LookupAsset("app-01").Tier; got != 0 {
		t.Errorf("registry changed after failed replace: tier %d", got)
	}
}

func TestTrustScore_DefaultsToZero(t *testing.T) {
	s := newTestStore(t)
	if got := s.TrustScore("never-seen"); got != 0 {
		t.Errorf("unknown source should have trust 0, got %v", got)
	}
}

func TestSetTrustScore_Clips(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{1.7, 1},
		{-0.3, 0},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}
	for _, tt := range tests {
		s.SetTrustScore("EDR", tt.in)
		if got := s.TrustScore("EDR"); got != tt.want {
			t.Errorf("SetTrustScore(%v) stored %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithTrust_Seeds(t *testing.T) {
	s := newTestStore(t, WithTrust(map[string]float64{"EDR_SentinelOne": 0.95, "bad": 3}))
	if got := s.TrustScore("EDR_SentinelOne"); got != 0.95 {
		t.Errorf("expected seeded 0.95, got %v", got)
	}
	if got := s.TrustScore("bad"); got != 1 {
		t.Errorf("expected seed clipped to 1, got %v", got)
	}
}

func TestUpdateTrust_Concurrent(t *testing.T) {
	s := newTestStore(t)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateTrust("EDR", func(old float64) float64 { return old + 0.01 })
		}()
	}
	wg.Wait()

	if got := s.TrustScore("EDR"); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected 50 atomic increments to reach 0.5, got %v", got)
	}
}

func TestCountEvents_InclusiveSince(t *testing.T) {
	s := newTestStore(t)
	base := time.Unix(1000, 0)

	s.RecordEvent("BLOCK_IP", base)
	s.RecordEvent("BLOCK_IP", base.Add(10*time.Second))
	s.RecordEvent("ISOLATE_HOST", base.Add(10*time.Second))

	if got := s.CountEvents("BLOCK_IP", base); got != 2 {
		t.Errorf("expected 2 events since base (inclusive), got %d", got)
	}
	if got := s.CountEvents("BLOCK_IP", base.Add(time.Nanosecond)); got != 1 {
		t.Errorf("expected 1 event strictly after base, got %d", got)
	}
	if got := s.CountEvents("UNKNOWN", base); got != 0 {
		t.Errorf("expected 0 events for unseen kind, got %d", got)
	}
}

func TestRecordEvent_PrunesPastRetention(t *testing.T) {
	s := newTestStore(t, WithRetention(30*time.Second))
	base := time.Unix(1000, 0)

	s.RecordEvent("BLOCK_IP", base)
	s.RecordEvent("BLOCK_IP", base.Add(40*time.Second))

	if got := s.CountEvents("BLOCK_IP", time.Time{}); got != 1 {
		t.Errorf("expected event older than retention to be pruned, %d remain", got)
	}
}

func TestRecordAndCount_Concurrent(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(1000, 0)

	const workers = 20
	var wg sync.WaitGroup
	seen := make([]int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = s.RecordAndCount("BLOCK_IP", now, now.Add(-time.Minute))
		}(i)
	}
	wg.Wait()

	// every count observed is distinct: record+count is a single step per key
	counts := make(map[int]bool)
	for _, c := range seen {
		if counts[c] {
			t.Fatalf("count %d observed twice: %v", c, seen)
		}
		counts[c] = true
	}
	if got := s.CountEvents("BLOCK_IP", now.Add(-time.Minute)); got != workers {
		t.Errorf("expected %d events, got %d", workers, got)
	}
}

type fakePersister struct {
	loaded map[string]float64
	saved  map[string]float64
	err    error
}

func (f *fakePersister) LoadTrust() (map[string]float64, error) { return f.loaded, f.err }

func (f *fakePersister) SaveTrust(source string, score float64) error {
	if f.saved == nil {
		f.saved = make(map[string]float64)
	}
	f.saved[source] = score
	return nil
}

func TestPersister_LoadAndSave(t *testing.T) {
	p := &fakePersister{loaded: map[string]float64{"EDR": 0.9}}
	s := newTestStore(t, WithTrust(map[string]float64{"EDR": 0.1}), WithPersister(p))

	if got := s.TrustScore("EDR"); got != 0.9 {
		t.Errorf("persisted score should win over seed, got %v", got)
	}
	s.SetTrustScore("NDR", 0.4)
	if p.saved["NDR"] != 0.4 {
		t.Errorf("expected write-through of NDR=0.4, got %v", p.saved)
	}
}

func TestPersister_LoadError(t *testing.T) {
	p := &fakePersister{err: errors.New("disk gone")}
	if _, err := New(nil, WithPersister(p)); err == nil {
		t.Fatal("expected error when persisted trust cannot be loaded")
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	s := newTestStore(t, WithPersister(db))
	s.SetTrustScore("EDR_SentinelOne", 0.95)
	s.SetTrustScore("User-Agent", 0.2)
	s.SetTrustScore("User-Agent", 0.25)

	loaded, err := db.LoadTrust()
	if err != nil {
		t.Fatalf("LoadTrust: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(loaded))
	}
	if loaded["User-Agent"] != 0.25 {
		t.Errorf("expected upserted 0.25, got %v", loaded["User-Agent"])
	}

	// a fresh store over the same database sees the persisted table
	s2 := newTestStore(t, WithPersister(db))
	if got := s2.TrustScore("EDR_SentinelOne"); got != 0.95 {
		t.Errorf("expected 0.95 after reload, got %v", got)
	}
}

func TestSnapshot(t *testing.T) {
	s := newTestStore(t, WithTrust(map[string]float64{"EDR": 0.9}))

	snap := s.Snapshot()
	if len(snap.Assets) != 3 || snap.Assets[0].ID != "app-01" {
		t.Errorf("unexpected assets %+v", snap.Assets)
	}
	if snap.Trust["EDR"] != 0.9 {
		t.Errorf("unexpected trust %v", snap.Trust)
	}

	snap.Trust["EDR"] = 0
	if s.TrustScore("EDR") != 0.9 {
		t.Error("snapshot must be a copy")
	}
}
