package autosave_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"robotodyssey.web/internal/autosave"
	"robotodyssey.web/internal/autosave/autosavetest"
	"robotodyssey.web/internal/savecodec"
)

type rig struct {
	eng    *autosavetest.Engine
	loc    *autosave.MemLocation
	clock  *autosavetest.Clock
	s      *autosave.Session
	events []autosave.Event
}

func newRig(t *testing.T, initialHash string) *rig {
	t.Helper()
	r := &rig{
		eng:   autosavetest.NewEngine(),
		loc:   autosave.NewMemLocation(initialHash),
		clock: autosavetest.NewClock(),
	}
	r.s = autosave.NewSession(r.eng, r.loc, autosave.Config{
		Codec:     savecodec.URL,
		Clock:     r.clock,
		SessionID: "s1",
		Now:       r.clock.Now,
		Sink:      autosave.SinkFunc(func(e autosave.Event) { r.events = append(r.events, e) }),
	})
	return r
}

func (r *rig) kinds() []autosave.EventKind {
	out := make([]autosave.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *rig) settle() {
	r.clock.Advance(autosave.DefaultDebounce)
	r.s.Drain()
}

func TestSession_DebounceCoalescesToOneSaveFromLastCall(t *testing.T) {
	r := newRig(t, "")
	r.s.Drain()
	r.eng.Packed = []byte{1, 2, 3}

	for i := 0; i < 5; i++ {
		r.s.RequestAutosave()
		r.clock.Advance(400 * time.Millisecond)
		r.s.Drain()
	}
	if r.eng.SaveCalls != 0 {
		t.Fatalf("save ran before quiet period: calls=%d", r.eng.SaveCalls)
	}
	if r.clock.Pending() != 1 {
		t.Fatalf("pending timers=%d want 1", r.clock.Pending())
	}

	r.clock.Advance(99 * time.Millisecond)
	r.s.Drain()
	if r.eng.SaveCalls != 0 {
		t.Fatalf("save ran early: calls=%d", r.eng.SaveCalls)
	}
	r.clock.Advance(time.Millisecond)
	r.s.Drain()
	if r.eng.SaveCalls != 1 {
		t.Fatalf("save calls=%d want 1", r.eng.SaveCalls)
	}
	if got := r.s.Coordinator().Saves(); got != 1 {
		t.Fatalf("coordinator saves=%d want 1", got)
	}
}

func TestSession_RequestAfterTimerFiredDropsStaleSave(t *testing.T) {
	r := newRig(t, "")
	r.s.Drain()

	r.s.RequestAutosave()
	r.clock.Advance(autosave.DefaultDebounce) // fired, save queued but not run
	r.s.RequestAutosave()
	r.s.Drain()
	if r.eng.SaveCalls != 0 {
		t.Fatalf("stale save ran: calls=%d", r.eng.SaveCalls)
	}
	r.settle()
	if r.eng.SaveCalls != 1 {
		t.Fatalf("save calls=%d want 1", r.eng.SaveCalls)
	}
}

func TestSession_SaveOKWritesTokenAndSuppressesSelfEcho(t *testing.T) {
	r := newRig(t, "")
	r.s.Drain()
	r.eng.Packed = []byte{0x01, 0x02, 0x03}

	r.s.RequestAutosave()
	r.settle()

	if got := r.loc.Hash(); got != "#AQID" {
		t.Fatalf("hash=%q want #AQID", got)
	}
	if tok, ok := r.s.LastWritten(); !ok || tok != "AQID" {
		t.Fatalf("last written=%q,%v", tok, ok)
	}
	if r.eng.LoadCalls != 0 || len(r.eng.Unpacked) != 0 {
		t.Fatalf("self-written hash was loaded: loads=%d unpacks=%d", r.eng.LoadCalls, len(r.eng.Unpacked))
	}

	// Firing the handler again with our own token is still a no-op.
	r.s.HashChanged()
	r.s.Drain()
	if r.eng.LoadCalls != 0 || len(r.eng.Unpacked) != 0 {
		t.Fatalf("self-written hash was loaded on re-fire")
	}
	want := []autosave.EventKind{autosave.EventAutosaveOK, autosave.EventHashSelf, autosave.EventHashSelf}
	if got := r.kinds(); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("events=%v want %v", got, want)
	}
	if r.events[0].Session != "s1" || r.events[0].Bytes != 4 {
		t.Fatalf("event=%+v", r.events[0])
	}
}

func TestSession_SaveRestoresBufferAndHookForEveryOutcome(t *testing.T) {
	cases := []struct {
		name  string
		setup func(e *autosavetest.Engine)
	}{
		{name: "ok", setup: func(e *autosavetest.Engine) { e.Status = autosave.SaveOK }},
		{name: "blocked", setup: func(e *autosavetest.Engine) { e.Status = autosave.SaveBlocked }},
		{name: "not_supported", setup: func(e *autosavetest.Engine) { e.Status = autosave.SaveNotSupported }},
		{name: "error", setup: func(e *autosavetest.Engine) { e.SaveErr = autosavetest.ErrBoom }},
		{name: "pack_error", setup: func(e *autosavetest.Engine) { e.PackErr = autosavetest.ErrBoom }},
		{name: "panic", setup: func(e *autosavetest.Engine) { e.PanicSave = true }},
		{name: "unknown_status", setup: func(e *autosavetest.Engine) { e.Status = autosave.SaveStatus(42) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, "")
			r.s.Drain()
			user := []byte("user's explicit save")
			r.eng.SetSaveFile(bytes.Clone(user))
			r.eng.SetSaveFileWriteHook(r.eng.CountingHook())
			r.eng.Written = []byte("autosave contents")
			r.eng.Packed = []byte{9, 9, 9}
			tc.setup(r.eng)

			r.s.RequestAutosave()
			r.settle()

			if r.eng.SaveCalls != 1 {
				t.Fatalf("save calls=%d", r.eng.SaveCalls)
			}
			if !bytes.Equal(r.eng.SaveFile(), user) {
				t.Fatalf("save buffer clobbered: %q", r.eng.SaveFile())
			}
			if r.eng.HookFired != 0 {
				t.Fatalf("user hook fired during autosave")
			}
			r.eng.SaveFileWriteHook()()
			if r.eng.HookFired != 1 {
				t.Fatalf("user hook not restored")
			}
		})
	}
}

func TestSession_BlockedWritesNothing(t *testing.T) {
	r := newRig(t, "#AQID")
	r.s.Drain()
	r.eng.Packed = []byte{7}
	r.s.RequestAutosave()
	r.settle()
	r.eng.Status = autosave.SaveBlocked
	before, _ := r.s.LastWritten()
	hash := r.loc.Hash()
	writes := r.loc.Writes()

	err := r.s.Coordinator().Save()
	if !errors.Is(err, autosave.ErrSaveBlocked) {
		t.Fatalf("err=%v want ErrSaveBlocked", err)
	}
	if after, _ := r.s.LastWritten(); after != before {
		t.Fatalf("last written changed: %q -> %q", before, after)
	}
	if r.loc.Hash() != hash || r.loc.Writes() != writes {
		t.Fatalf("hash written while blocked: %q", r.loc.Hash())
	}
}

func TestSession_BlockedBeforeAnyWriteLeavesLastWrittenUnset(t *testing.T) {
	r := newRig(t, "")
	r.s.Drain()
	r.eng.Status = autosave.SaveBlocked
	r.s.RequestAutosave()
	r.settle()
	if _, ok := r.s.LastWritten(); ok {
		t.Fatalf("last written set after blocked save")
	}
	if r.loc.Writes() != 0 {
		t.Fatalf("writes=%d", r.loc.Writes())
	}
}

func TestSession_NotSupportedWritesEmptyToken(t *testing.T) {
	r := newRig(t, "")
	r.s.Drain()
	r.eng.Packed = []byte{1, 2, 3}
	r.s.RequestAutosave()
	r.settle()

	r.eng.Status = autosave.SaveNotSupported
	r.s.RequestAutosave()
	r.settle()

	if tok, ok := r.s.LastWritten(); !ok || tok != "" {
		t.Fatalf("last written=%q,%v want empty", tok, ok)
	}
	if r.loc.Hash() != "" {
		t.Fatalf("hash=%q want empty", r.loc.Hash())
	}
	if r.eng.PackCalls != 1 {
		t.Fatalf("pack called for unsupported save")
	}
}

func TestSession_StartupHashIsLoaded(t *testing.T) {
	token := savecodec.URL.Encode([]byte("packed world"))
	r := newRig(t, "#"+token)
	if r.eng.LoadCalls != 0 {
		t.Fatalf("loaded before the loop ran")
	}
	r.s.Drain()
	if r.eng.LoadCalls != 1 || len(r.eng.Unpacked) != 1 || string(r.eng.Unpacked[0]) != "packed world" {
		t.Fatalf("startup load: loads=%d unpacked=%q", r.eng.LoadCalls, r.eng.Unpacked)
	}
	if got := r.kinds(); len(got) != 1 || got[0] != autosave.EventHashLoaded {
		t.Fatalf("events=%v", got)
	}
}

func TestSession_ExternalNavigationLoads(t *testing.T) {
	r := newRig(t, "")
	r.s.Drain()
	r.eng.Packed = []byte{1, 2, 3}
	r.s.RequestAutosave()
	r.settle()

	// Back button to an older session.
	r.loc.Navigate("#" + savecodec.URL.Encode([]byte{4, 5, 6}))
	r.s.Drain()
	if r.eng.LoadCalls != 1 {
		t.Fatalf("loads=%d want 1", r.eng.LoadCalls)
	}
	if !bytes.Equal(r.eng.Unpacked[0], []byte{4, 5, 6}) {
		t.Fatalf("unpacked=%v", r.eng.Unpacked[0])
	}
}

func TestListener_IgnoresEmptyHashes(t *testing.T) {
	for _, h := range []string{"", "#"} {
		r := newRig(t, h)
		r.s.Drain()
		if err := r.s.Listener().Check(); err != nil {
			t.Fatalf("hash %q: %v", h, err)
		}
		if len(r.eng.Unpacked) != 0 || len(r.events) != 0 {
			t.Fatalf("hash %q triggered work", h)
		}
	}
}

func TestListener_FailuresAreReportedNotFatal(t *testing.T) {
	r := newRig(t, "#not*a*token")
	r.s.Drain()
	if len(r.eng.Unpacked) != 0 || r.eng.LoadCalls != 0 {
		t.Fatalf("bad token reached the engine")
	}
	err := r.s.Listener().Check()
	if !errors.Is(err, savecodec.ErrDecode) {
		t.Fatalf("err=%v want decode error", err)
	}

	r.eng.UnpackOK = false
	r.loc.Navigate("#AQID")
	r.s.Drain()
	if r.eng.LoadCalls != 0 {
		t.Fatalf("load ran after unpack failure")
	}
	if err := r.s.Listener().Check(); !errors.Is(err, autosave.ErrUnpack) {
		t.Fatalf("err=%v want ErrUnpack", err)
	}

	r.eng.UnpackOK = true
	r.eng.LoadOK = false
	if err := r.s.Listener().Check(); !errors.Is(err, autosave.ErrLoad) {
		t.Fatalf("err=%v want ErrLoad", err)
	}

	want := []autosave.EventKind{
		autosave.EventHashDecodeFailed, autosave.EventHashDecodeFailed,
		autosave.EventHashUnpackFailed, autosave.EventHashUnpackFailed,
		autosave.EventHashLoadFailed,
	}
	got := r.kinds()
	if len(got) != len(want) {
		t.Fatalf("events=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events=%v want %v", got, want)
		}
	}
}

func TestSession_EngineAutoSaveHookIsInstalled(t *testing.T) {
	r := newRig(t, "")
	r.s.Drain()
	r.eng.AutoSave()
	r.eng.AutoSave()
	r.settle()
	if r.eng.SaveCalls != 1 {
		t.Fatalf("save calls=%d want 1", r.eng.SaveCalls)
	}
}

func TestSession_CloseCancelsPendingSave(t *testing.T) {
	r := newRig(t, "")
	r.s.Drain()
	r.s.RequestAutosave()
	r.s.Close()
	r.settle()
	if r.eng.SaveCalls != 0 {
		t.Fatalf("save ran after Close")
	}
}

func TestLoop_RecoversPanickingTask(t *testing.T) {
	l := autosave.NewLoop(nil)
	ran := false
	l.Post(func() { panic("boom") })
	l.Post(func() { ran = true })
	if n := l.Drain(); n != 2 {
		t.Fatalf("drained %d tasks", n)
	}
	if !ran {
		t.Fatalf("task after panic did not run")
	}
}
