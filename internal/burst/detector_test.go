package burst

import (
	"testing"
	"time"

	"github.com/gzhole/agentlock/internal/action"
	"github.com/gzhole/agentlock/internal/state"
)

func newDetector(t *testing.T) (*Detector, *state.Store) {
	t.Helper()
	s, err := state.New(nil)
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	return NewDetector(s, 0, 0), s
}

func TestShouldEscalate_FourthWithinWindow(t *testing.T) {
	d, _ := newDetector(t)
	base := time.Unix(1000, 0)

	want := []bool{false, false, false, true}
	for i, w := range want {
		now := base.Add(time.Duration(i) * 10 * time.Second)
		if got := d.ShouldEscalate("BLOCK_IP", action.RiskMedium, now); got != w {
			t.Errorf("evaluation %d at +%ds: got %v, want %v", i+1, i*10, got, w)
		}
	}
}

func TestShouldEscalate_WindowSlides(t *testing.T) {
	d, _ := newDetector(t)
	base := time.Unix(1000, 0)

	// three early events, then one 61s after the first: only three fall in window
	d.ShouldEscalate("BLOCK_IP", action.RiskMedium, base)
	d.ShouldEscalate("BLOCK_IP", action.RiskMedium, base.Add(20*time.Second))
	d.ShouldEscalate("BLOCK_IP", action.RiskMedium, base.Add(40*time.Second))
	if d.ShouldEscalate("BLOCK_IP", action.RiskMedium, base.Add(61*time.Second)) {
		t.Error("event outside the 60s window must not count")
	}
}

func TestShouldEscalate_WindowBoundaryInclusive(t *testing.T) {
	d, _ := newDetector(t)
	base := time.Unix(1000, 0)

	d.ShouldEscalate("BLOCK_IP", action.RiskMedium, base)
	d.ShouldEscalate("BLOCK_IP", action.RiskMedium, base.Add(20*time.Second))
	d.ShouldEscalate("BLOCK_IP", action.RiskMedium, base.Add(40*time.Second))
	if !d.ShouldEscalate("BLOCK_IP", action.RiskMedium, base.Add(60*time.Second)) {
		t.Error("event exactly at now-60s is inside the window")
	}
}

func TestShouldEscalate_OnlyMedium(t *testing.T) {
	d, s := newDetector(t)
	base := time.Unix(1000, 0)

	for i := 0; i < 10; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		if d.ShouldEscalate("ISOLATE_HOST", action.RiskHigh, now) {
			t.Fatal("HIGH risk must never escalate via burst detection")
		}
		if d.ShouldEscalate("ADD_TAG", action.RiskLow, now) {
			t.Fatal("LOW risk must never escalate via burst detection")
		}
	}
	if n := s.CountEvents("ISOLATE_HOST", time.Time{}); n != 0 {
		t.Errorf("HIGH risk evaluations should not be recorded, found %d", n)
	}
}

func TestShouldEscalate_KindsIndependent(t *testing.T) {
	d, _ := newDetector(t)
	base := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		d.ShouldEscalate("BLOCK_IP", action.RiskMedium, base)
	}
	if d.ShouldEscalate("DISABLE_PORT", action.RiskMedium, base) {
		t.Error("a different kind must have its own window")
	}
	if !d.ShouldEscalate("BLOCK_IP", action.RiskMedium, base) {
		t.Error("fourth BLOCK_IP should escalate")
	}
}

func TestNewDetector_Custom(t *testing.T) {
	s, _ := state.New(nil)
	d := NewDetector(s, 10*time.Second, 2)
	if d.Window() != 10*time.Second || d.Threshold() != 2 {
		t.Fatalf("unexpected config: %v %d", d.Window(), d.Threshold())
	}
	base := time.Unix(0, 0)
	if d.ShouldEscalate("X", action.RiskMedium, base) {
		t.Error("first event should not escalate")
	}
	if !d.ShouldEscalate("X", action.RiskMedium, base.Add(5*time.Second)) {
		t.Error("second event within 10s should escalate with threshold 2")
	}
}

func TestRecordThenCount(t *testing.T) {
	d, _ := newDetector(t)
	base := time.Unix(1000, 0)

	d.Record("BLOCK_IP", action.RiskMedium, base)
	d.Record("BLOCK_IP", action.RiskHigh, base)
	d.Record("BLOCK_IP", action.RiskMedium, base.Add(30*time.Second))

	if got := d.Count("BLOCK_IP", base.Add(30*time.Second)); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
	if got := d.Count("BLOCK_IP", base.Add(61*time.Second)); got != 1 {
		t.Errorf("Count after window slid = %d, want 1", got)
	}
	if got := d.Count("DISABLE_PORT", base); got != 0 {
		t.Errorf("Count for unseen kind = %d, want 0", got)
	}
}
