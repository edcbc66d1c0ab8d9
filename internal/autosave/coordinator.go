package autosave

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"robotodyssey.web/internal/savecodec"
)

// Coordinator debounces autosave requests and publishes each successful save
// to the location as a token.
type Coordinator struct {
	engine Engine
	loc    Location
	codec  savecodec.Codec
	last   *LastWritten
	loop   *Loop
	clock  Clock
	delay  time.Duration
	log    *log.Logger
	rep    reporter

	mu    sync.Mutex
	timer Timer
	gen   uint64
	saves int
}

// RequestAutosave (re)starts the debounce timer. Safe from any goroutine.
// The save runs on the loop once delay has passed since the latest call.
func (c *Coordinator) RequestAutosave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.delay, func() {
		c.loop.Post(func() { c.fire(gen) })
	})
}

// Stop cancels a pending autosave.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// Saves counts save sequences that have run.
func (c *Coordinator) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		// A later request replaced this timer after it had already fired.
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	_ = c.Save()
}

// Save runs one autosave now. It must run on the loop.
//
// The engine's save buffer and write hook are put back exactly as found on
// every path, including a panicking engine.
func (c *Coordinator) Save() (err error) {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()

	savedFile := bytes.Clone(c.engine.SaveFile())
	savedHook := c.engine.SaveFileWriteHook()
	c.engine.SetSaveFileWriteHook(func() {})
	defer func() {
		c.engine.SetSaveFileWriteHook(savedHook)
		c.engine.SetSaveFile(savedFile)
		if r := recover(); r != nil {
			err = fmt.Errorf("autosave: engine panicked: %v", r)
			c.log.Printf("WARN %v", err)
			c.rep.emit(EventAutosaveFailed, 0, err.Error())
		}
	}()

	status, err := c.engine.SaveGame()
	if err != nil {
		err = fmt.Errorf("autosave: save game: %w", err)
		c.log.Printf("WARN %v", err)
		c.rep.emit(EventAutosaveFailed, 0, err.Error())
		return err
	}

	var token string
	switch status {
	case SaveOK:
		packed, err := c.engine.PackSaveFile()
		if err != nil {
			err = fmt.Errorf("autosave: pack save file: %w", err)
			c.log.Printf("WARN %v", err)
			c.rep.emit(EventAutosaveFailed, 0, err.Error())
			return err
		}
		token = c.codec.Encode(packed)
		c.log.Printf("autosave, %s token", humanize.Bytes(uint64(len(token))))
		c.rep.emit(EventAutosaveOK, len(token), "")

	case SaveBlocked:
		c.rep.emit(EventAutosaveBlocked, 0, "")
		return ErrSaveBlocked

	case SaveNotSupported:
		token = ""
		c.rep.emit(EventAutosaveUnsupported, 0, "")

	default:
		err := fmt.Errorf("%w: %v", ErrUnknownStatus, status)
		c.log.Printf("WARN %v", err)
		c.rep.emit(EventAutosaveFailed, 0, err.Error())
		return err
	}

	c.last.Store(token)
	c.loc.SetHash(token)
	return nil
}
