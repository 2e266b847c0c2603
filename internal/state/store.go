// Package state holds the data the guardrail pipeline consults: the asset
// tier registry, provenance trust scores and the recent-action event log.
// It contains no policy logic.
package state

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gzhole/agentlock/internal/logger"
)

var log = logger.New("state")

// DefaultRetention bounds how long recorded events are kept per kind.
const DefaultRetention = 60 * time.Second

// Asset is an entry in the asset registry.
type Asset struct {
	ID   string `json:"id" yaml:"id"`
	Tier int    `json:"tier" yaml:"tier"`
}

// Persister receives trust score writes so they survive restarts.
// The in-memory table stays authoritative; persistence failures are logged.
type Persister interface {
	LoadTrust() (map[string]float64, error)
	SaveTrust(source string, score float64) error
}

type trustEntry struct {
	mu    sync.Mutex
	score float64
}

type eventWindow struct {
	mu    sync.Mutex
	times []time.Time
}

// Store is the single owner of asset, trust and event data.
// Trust entries and event windows are locked per key; the asset registry is
// an immutable map swapped atomically.
type Store struct {
	assets    atomic.Pointer[map[string]Asset]
	trust     sync.Map // source -> *trustEntry
	events    sync.Map // kind -> *eventWindow
	retention time.Duration
	persister Persister
}

// Option configures a Store.
type Option func(*Store)

// WithRetention sets the event retention horizon.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithPersister backs trust scores with durable storage.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithTrust seeds initial trust scores. Persisted scores, if any, win.
func WithTrust(scores map[string]float64) Option {
	return func(s *Store) {
		for src, v := range scores {
			s.trust.Store(src, &trustEntry{score: clip(v)})
		}
	}
}

// New creates a store seeded with the given assets.
func New(assets []Asset, opts ...Option) (*Store, error) {
	s := &Store{retention: DefaultRetention}
	if err := s.ReplaceAssets(assets); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.persister != nil {
		stored, err := s.persister.LoadTrust()
		if err != nil {
			return nil, fmt.Errorf("load trust scores: %w", err)
		}
		for src, v := range stored {
			s.trust.Store(src, &trustEntry{score: clip(v)})
		}
		log.Debugf("loaded %d persisted trust scores", len(stored))
	}
	return s, nil
}

// ReplaceAssets swaps the whole registry. This is an administrative
// operation (inventory reload), not part of the decision path.
func (s *Store) ReplaceAssets(assets []Asset) error {
	m := make(map[string]Asset, len(assets))
	for _, a := range assets {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return fmt.Errorf("asset with empty id")
		}
		if a.Tier < 0 {
			return fmt.Errorf("asset %q: tier must be >= 0 (got %d)", id, a.Tier)
		}
		m[assetKey(id)] = Asset{ID: id, Tier: a.Tier}
	}
	s.assets.Store(&m)
	return nil
}

func assetKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// LookupAsset resolves a target to its registry entry. Unknown targets are
// treated as Tier 0 until proven otherwise.
func (s *Store) LookupAsset(target string) Asset {
	m := *s.assets.Load()
	if a, ok := m[assetKey(target)]; ok {
		return a
	}
	return Asset{ID: target, Tier: 0}
}

// Assets returns a copy of the registry sorted by id.
func (s *Store) Assets() []Asset {
	m := *s.assets.Load()
	out := make([]Asset, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TrustScore returns the trust score of a provenance source. Sources never
// seen before score 0.
func (s *Store) TrustScore(source string) float64 {
	v, ok := s.trust.Load(source)
	if !ok {
		return 0
	}
	e := v.(*trustEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score
}

// SetTrustScore writes a trust score, clipped to [0,1].
func (s *Store) SetTrustScore(source string, score float64) {
	s.UpdateTrust(source, func(float64) float64 { return score })
}

// UpdateTrust applies fn to the current score of source atomically with
// respect to other writers of the same source, and returns the stored value.
func (s *Store) UpdateTrust(source string, fn func(old float64) float64) float64 {
	v, _ := s.trust.LoadOrStore(source, &trustEntry{})
	e := v.(*trustEntry)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.score = clip(fn(e.score))
	if s.persister != nil {
		if err := s.persister.SaveTrust(source, e.score); err != nil {
			log.WithError(err).Warnf("failed to persist trust score for %q", source)
		}
	}
	return e.score
}

// TrustScores returns a copy of the trust table.
func (s *Store) TrustScores() map[string]float64 {
	out := make(map[string]float64)
	s.trust.Range(func(k, v any) bool {
		e := v.(*trustEntry)
		e.mu.Lock()
		out[k.(string)] = e.score
		e.mu.Unlock()
		return true
	})
	return out
}

// Snapshot is a point-in-time copy of the registry and trust table.
type Snapshot struct {
	Assets []Asset            `json:"assets"`
	Trust  map[string]float64 `json:"trust"`
}

// Snapshot copies assets and trust scores for inspection.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{Assets: s.Assets(), Trust: s.TrustScores()}
}

// RecordEvent appends an event of the given kind.
func (s *Store) RecordEvent(kind string, at time.Time) {
	w := s.window(kind)
	w.mu.Lock()
	defer w.mu.Unlock()
	s.appendLocked(w, at)
}

// CountEvents counts events of kind with timestamp >= since.
func (s *Store) CountEvents(kind string, since time.Time) int {
	v, ok := s.events.Load(kind)
	if !ok {
		return 0
	}
	w := v.(*eventWindow)
	w.mu.Lock()
	defer w.mu.Unlock()
	return countSince(w.times, since)
}

// RecordAndCount records an event and counts events >= since in one step.
func (s *Store) RecordAndCount(kind string, at, since time.Time) int {
	w := s.window(kind)
	w.mu.Lock()
	defer w.mu.Unlock()
	s.appendLocked(w, at)
	return countSince(w.times, since)
}

func (s *Store) window(kind string) *eventWindow {
	v, _ := s.events.LoadOrStore(kind, &eventWindow{})
	return v.(*eventWindow)
}

// appendLocked adds at and lazily drops events older than the retention
// horizon measured from at.
func (s *Store) appendLocked(w *eventWindow, at time.Time) {
	horizon := at.Add(-s.retention)
	kept := w.times[:0]
	for _, t := range w.times {
		if !t.Before(horizon) {
			kept = append(kept, t)
		}
	}
	w.times = append(kept, at)
}

func countSince(times []time.Time, since time.Time) int {
	n := 0
	for _, t := range times {
		if !t.Before(since) {
			n++
		}
	}
	return n
}

func clip(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
