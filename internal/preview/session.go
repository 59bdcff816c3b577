package preview

import (
	"sync"
	"time"

	"github.com/dunamismax/pixeldesk/internal/domain"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
)

// RenderHook is told about every finished preview render.
type RenderHook func(sessionID string, revision uint64, err error, elapsed time.Duration)

// Snapshot is the latest state of a session.
type Snapshot struct {
	Revision         uint64
	RenderedRevision uint64
	Result           *pipeline.Rendered
	Err              error
	Pending          bool
}

// Session owns one uploaded source and re-renders it whenever its settings
// change, after the debounce delay.
type Session struct {
	id        string
	source    *pipeline.SourceRaster
	renderer  *pipeline.Renderer
	debouncer *Debouncer
	hook      RenderHook

	mu               sync.RWMutex
	revision         uint64
	renderedRevision uint64
	result           *pipeline.Rendered
	err              error
	touched          time.Time
}

func (s *Session) ID() string { return s.id }

func (s *Session) Source() *pipeline.SourceRaster { return s.source }

// Update replaces the session settings wholesale and schedules a render.
// It returns the revision assigned to these settings.
func (s *Session) Update(settings domain.RenderSettings, now time.Time) uint64 {
	s.mu.Lock()
	s.revision++
	rev := s.revision
	s.touched = now
	s.mu.Unlock()

	s.debouncer.Trigger(func() { s.render(rev, settings) })
	return rev
}

func (s *Session) render(rev uint64, settings domain.RenderSettings) {
	started := time.Now()
	result, err := s.renderOnce(settings)
	elapsed := time.Since(started)

	s.mu.Lock()
	// Overlapping runs may finish out of order; keep the newest.
	if rev > s.renderedRevision {
		s.renderedRevision = rev
		s.result = result
		s.err = err
	}
	s.mu.Unlock()

	if s.hook != nil {
		s.hook(s.id, rev, err, elapsed)
	}
}

func (s *Session) renderOnce(settings domain.RenderSettings) (*pipeline.Rendered, error) {
	cfg, wm, err := s.renderer.StepConfig(settings, s.source.Format())
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(s.source, cfg, wm)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Revision:         s.revision,
		RenderedRevision: s.renderedRevision,
		Result:           s.result,
		Err:              s.err,
		Pending:          s.debouncer.Pending() || s.renderedRevision < s.revision,
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.touched = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.touched
}

func (s *Session) close() {
	s.debouncer.Stop()
}
