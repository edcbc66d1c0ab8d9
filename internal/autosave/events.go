package autosave

import (
	"errors"
	"io"
	"log"
	"time"
)

var (
	ErrSaveBlocked     = errors.New("autosave: engine blocked the save")
	ErrSaveUnsupported = errors.New("autosave: engine cannot save here")
	ErrUnknownStatus   = errors.New("autosave: unknown save status")
	ErrUnpack          = errors.New("autosave: engine rejected packed save")
	ErrLoad            = errors.New("autosave: engine failed to load save")
)

type EventKind string

const (
	EventAutosaveOK          EventKind = "autosave_ok"
	EventAutosaveBlocked     EventKind = "autosave_blocked"
	EventAutosaveUnsupported EventKind = "autosave_unsupported"
	EventAutosaveFailed      EventKind = "autosave_failed"
	EventHashSelf            EventKind = "hash_self"
	EventHashDecodeFailed    EventKind = "hash_decode_failed"
	EventHashUnpackFailed    EventKind = "hash_unpack_failed"
	EventHashLoaded          EventKind = "hash_loaded"
	EventHashLoadFailed      EventKind = "hash_load_failed"
)

// Event is one observable outcome of an autosave or a hash check.
type Event struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session,omitempty"`
	Kind    EventKind `json:"kind"`
	// Bytes is the token length for autosaves and hash checks.
	Bytes  int    `json:"bytes,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type Sink interface {
	RecordEvent(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

func (f SinkFunc) RecordEvent(e Event) { f(e) }

// Sinks fans an event out to every non-nil sink.
type Sinks []Sink

func (s Sinks) RecordEvent(e Event) {
	for _, sink := range s {
		if sink != nil {
			sink.RecordEvent(e)
		}
	}
}

type reporter struct {
	session string
	sink    Sink
	now     func() time.Time
}

func (r reporter) emit(kind EventKind, n int, detail string) {
	if r.sink == nil {
		return
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	r.sink.RecordEvent(Event{
		Time:    now().UTC(),
		Session: r.session,
		Kind:    kind,
		Bytes:   n,
		Detail:  detail,
	})
}

func orDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return log.New(io.Discard, "", 0)
	}
	return l
}
