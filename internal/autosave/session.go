// Package autosave keeps an engine's save state mirrored in the page's
// location hash.
//
// Outbound, the Coordinator debounces autosave requests, saves through the
// engine without disturbing the user's own save buffer, and writes the packed
// save as a token into the hash. Inbound, the Listener loads any token that
// shows up in the hash, skipping the one this process wrote last.
package autosave

import (
	"context"
	"log"
	"time"

	"robotodyssey.web/internal/savecodec"
)

const DefaultDebounce = 500 * time.Millisecond

type Config struct {
	// Debounce is the quiet period before an autosave runs. Zero means DefaultDebounce.
	Debounce time.Duration
	Codec    savecodec.Codec
	Clock    Clock
	Logger   *log.Logger
	Sink     Sink
	// SessionID tags emitted events.
	SessionID string
	// Now stamps events. Defaults to time.Now.
	Now func() time.Time
}

// Session wires one engine to one location.
type Session struct {
	loop     *Loop
	last     *LastWritten
	coord    *Coordinator
	listener *Listener
}

// NewSession installs the hashchange handler, installs the engine's autosave
// hook when it has one, and queues the startup hash check.
func NewSession(engine Engine, loc Location, cfg Config) *Session {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	logger := orDiscard(cfg.Logger)
	rep := reporter{session: cfg.SessionID, sink: cfg.Sink, now: cfg.Now}

	loop := NewLoop(logger)
	last := &LastWritten{}
	s := &Session{
		loop: loop,
		last: last,
		coord: &Coordinator{
			engine: engine,
			loc:    loc,
			codec:  cfg.Codec,
			last:   last,
			loop:   loop,
			clock:  cfg.Clock,
			delay:  cfg.Debounce,
			log:    logger,
			rep:    rep,
		},
		listener: &Listener{
			engine: engine,
			loc:    loc,
			codec:  cfg.Codec,
			last:   last,
			log:    logger,
			rep:    rep,
		},
	}

	if as, ok := engine.(AutoSaver); ok {
		as.SetAutoSave(s.RequestAutosave)
	}
	loc.OnChange(s.HashChanged)
	loop.Post(s.checkHash)
	return s
}

// RequestAutosave is fire-and-forget.
func (s *Session) RequestAutosave() { s.coord.RequestAutosave() }

// HashChanged queues a hash check. Wired to Location.OnChange.
func (s *Session) HashChanged() { s.loop.Post(s.checkHash) }

// Do runs fn on the session loop. Use it for any other engine access.
func (s *Session) Do(fn func()) { s.loop.Post(fn) }

func (s *Session) Run(ctx context.Context) error { return s.loop.Run(ctx) }

// Drain runs pending loop tasks on the calling goroutine.
func (s *Session) Drain() int { return s.loop.Drain() }

// Close cancels a pending autosave.
func (s *Session) Close() { s.coord.Stop() }

func (s *Session) LastWritten() (string, bool) { return s.last.Load() }

func (s *Session) Coordinator() *Coordinator { return s.coord }

func (s *Session) Listener() *Listener { return s.listener }

func (s *Session) checkHash() { _ = s.listener.Check() }
