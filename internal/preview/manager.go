package preview

import (
	"context"
	"sync"
	"time"

	"github.com/dunamismax/pixeldesk/internal/domain"
	"github.com/dunamismax/pixeldesk/internal/id"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
)

const DefaultTTL = 15 * time.Minute

type Config struct {
	Delay time.Duration
	TTL   time.Duration
	Hook  RenderHook
}

// Manager keeps preview sessions in memory and expires idle ones.
type Manager struct {
	renderer *pipeline.Renderer
	delay    time.Duration
	ttl      time.Duration
	hook     RenderHook
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(renderer *pipeline.Renderer, cfg Config) *Manager {
	if renderer == nil {
		renderer = pipeline.NewRenderer()
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Manager{
		renderer: renderer,
		delay:    cfg.Delay,
		ttl:      cfg.TTL,
		hook:     cfg.Hook,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create registers a session for src and schedules a first render with
// default settings.
func (m *Manager) Create(src *pipeline.SourceRaster) *Session {
	s := &Session{
		id:        id.New(id.PrefixPreview),
		source:    src,
		renderer:  m.renderer,
		debouncer: NewDebouncer(m.delay),
		hook:      m.hook,
		touched:   m.now(),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	s.Update(domain.RenderSettings{}, m.now())
	return s
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// Update is Get followed by Session.Update.
func (m *Manager) Update(sessionID string, settings domain.RenderSettings) (uint64, bool) {
	s, ok := m.Get(sessionID)
	if !ok {
		return 0, false
	}
	return s.Update(settings, m.now()), true
}

func (m *Manager) Delete(sessionID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		s.close()
	}
	return ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for key, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.close()
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
