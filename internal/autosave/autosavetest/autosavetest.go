// Package autosavetest provides a scriptable engine and a manual clock for
// driving autosave sessions deterministically in tests.
package autosavetest

import (
	"bytes"
	"errors"
	"sort"
	"sync"
	"time"

	"robotodyssey.web/internal/autosave"
)

// Engine is a fake autosave.Engine. SaveGame overwrites the save buffer with
// Written (when Status is SaveOK) and fires the write hook, like a real engine.
type Engine struct {
	Status    autosave.SaveStatus
	SaveErr   error
	PanicSave bool
	Written   []byte
	Packed    []byte
	PackErr   error
	UnpackOK  bool
	LoadOK    bool
	Unpacked  [][]byte
	SaveCalls int
	LoadCalls int
	PackCalls int
	autoSave  func()
	saveFile  []byte
	writeHook func()
	HookFired int
}

var ErrBoom = errors.New("autosavetest: boom")

func NewEngine() *Engine {
	return &Engine{Status: autosave.SaveOK, UnpackOK: true, LoadOK: true}
}

func (e *Engine) SaveFile() []byte               { return e.saveFile }
func (e *Engine) SetSaveFile(b []byte)           { e.saveFile = b }
func (e *Engine) SaveFileWriteHook() func()      { return e.writeHook }
func (e *Engine) SetSaveFileWriteHook(fn func()) { e.writeHook = fn }
func (e *Engine) SetAutoSave(fn func())          { e.autoSave = fn }

// AutoSave calls the installed autosave hook, as the engine does when its state changes.
func (e *Engine) AutoSave() {
	if e.autoSave != nil {
		e.autoSave()
	}
}

func (e *Engine) SaveGame() (autosave.SaveStatus, error) {
	e.SaveCalls++
	if e.PanicSave {
		e.saveFile = []byte("half-written")
		panic(ErrBoom)
	}
	if e.SaveErr != nil {
		return 0, e.SaveErr
	}
	if e.Status == autosave.SaveOK {
		e.saveFile = bytes.Clone(e.Written)
		if e.writeHook != nil {
			e.writeHook()
		}
	}
	return e.Status, nil
}

func (e *Engine) PackSaveFile() ([]byte, error) {
	e.PackCalls++
	if e.PackErr != nil {
		return nil, e.PackErr
	}
	return bytes.Clone(e.Packed), nil
}

func (e *Engine) UnpackSaveFile(packed []byte) bool {
	e.Unpacked = append(e.Unpacked, bytes.Clone(packed))
	if e.UnpackOK {
		e.saveFile = bytes.Clone(packed)
	}
	return e.UnpackOK
}

func (e *Engine) LoadGame() bool {
	e.LoadCalls++
	return e.LoadOK
}

// CountingHook returns a write hook that increments HookFired.
func (e *Engine) CountingHook() func() {
	return func() { e.HookFired++ }
}

// Clock is a manual autosave.Clock. Timers fire only from Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*timer
}

type timer struct {
	c       *Clock
	at      time.Time
	seq     int
	fn      func()
	stopped bool
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, fn func()) autosave.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{c: c, at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *timer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Pending counts timers that have neither fired nor been stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves time forward by d and runs every timer that comes due, in order.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*timer
	keep := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.at.After(c.now):
			t.stopped = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	for _, t := range due {
		t.fn()
	}
}
