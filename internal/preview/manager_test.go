package preview

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/pixeldesk/internal/domain"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
)

func testSource(t *testing.T) *pipeline.SourceRaster {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 8), G: 90, B: uint8(y * 16), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	src, err := pipeline.DecodeSourceBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("decode source: %v", err)
	}
	return src
}

func waitForRevision(t *testing.T, s *Session, rev uint64) Snapshot {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if snap.RenderedRevision >= rev && !snap.Pending {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("revision %d never rendered, last snapshot %+v", rev, s.Snapshot())
	return Snapshot{}
}

func TestSessionRendersDefaultsOnCreate(t *testing.T) {
	m := NewManager(nil, Config{Delay: 5 * time.Millisecond})
	s := m.Create(testSource(t))

	snap := waitForRevision(t, s, 1)
	if snap.Err != nil {
		t.Fatalf("default render failed: %v", snap.Err)
	}
	if snap.Result.MIME != "image/png" || snap.Result.Width != 32 || snap.Result.Height != 16 {
		t.Fatalf("unexpected default render %+v", snap.Result)
	}
}

func TestSessionCoalescesRapidUpdates(t *testing.T) {
	var (
		mu      sync.Mutex
		renders []uint64
	)
	m := NewManager(nil, Config{
		Delay: 40 * time.Millisecond,
		Hook: func(_ string, rev uint64, _ error, _ time.Duration) {
			mu.Lock()
			renders = append(renders, rev)
			mu.Unlock()
		},
	})
	s := m.Create(testSource(t))

	var last uint64
	for i := 0; i < 5; i++ {
		last, _ = m.Update(s.ID(), domain.RenderSettings{Width: domain.Int(10 + i)})
	}
	snap := waitForRevision(t, s, last)
	if snap.Result.Width != 14 {
		t.Fatalf("expected last settings (width 14), got width %d", snap.Result.Width)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(renders) != 1 || renders[0] != last {
		t.Fatalf("expected exactly one render of revision %d, got %v", last, renders)
	}
}

func TestSessionKeepsRenderError(t *testing.T) {
	m := NewManager(nil, Config{Delay: 5 * time.Millisecond})
	s := m.Create(testSource(t))

	rev, ok := m.Update(s.ID(), domain.RenderSettings{Rotation: 45})
	if !ok {
		t.Fatal("expected session to exist")
	}
	snap := waitForRevision(t, s, rev)
	if !errors.Is(snap.Err, pipeline.ErrInvalidRotation) {
		t.Fatalf("expected ErrInvalidRotation, got %v", snap.Err)
	}
	if snap.Result != nil {
		t.Fatal("failed render must not expose a result")
	}
}

func TestManagerDeleteAndSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewManager(nil, Config{Delay: time.Hour, TTL: time.Minute})
	m.now = func() time.Time { return now }

	a := m.Create(testSource(t))
	b := m.Create(testSource(t))
	if m.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", m.Len())
	}

	if !m.Delete(a.ID()) {
		t.Fatal("expected delete to succeed")
	}
	if m.Delete(a.ID()) {
		t.Fatal("second delete should report missing")
	}
	if a.debouncer.Pending() {
		t.Fatal("deleted session should have no pending render")
	}

	now = now.Add(30 * time.Second)
	if n := m.Sweep(); n != 0 {
		t.Fatalf("expected nothing expired yet, swept %d", n)
	}
	now = now.Add(2 * time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 expired session, swept %d", n)
	}
	if _, ok := m.Get(b.ID()); ok {
		t.Fatal("expired session still reachable")
	}
}
