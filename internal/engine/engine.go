// Package engine is an in-memory host engine. It keeps a live game state and
// a save buffer, and packs saves as zstd frames for the location hash.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"robotodyssey.web/internal/autosave"
	"robotodyssey.web/internal/savedata"
)

// DefaultMaxUnpacked bounds the decompressed size of a packed save.
const DefaultMaxUnpacked = 1 << 20

var ErrTooLarge = errors.New("engine: save exceeds size limit")

// Engine implements autosave.Engine and autosave.AutoSaver. It is not safe for
// concurrent use; drive it from a session loop.
type Engine struct {
	state    []byte
	saveFile []byte

	writeHook func()
	autoSave  func()

	txDepth     int
	maxUnpacked int

	enc *zstd.Encoder
	dec *zstd.Decoder
}

var (
	codecOnce sync.Once
	sharedEnc *zstd.Encoder
	sharedDec *zstd.Decoder
	codecErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		sharedEnc, codecErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBestCompression),
			zstd.WithEncoderCRC(true),
		)
		if codecErr != nil {
			return
		}
		sharedDec, codecErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(64<<20),
		)
	})
	return sharedEnc, sharedDec, codecErr
}

// New returns an engine with no game loaded. maxUnpacked <= 0 uses DefaultMaxUnpacked.
func New(maxUnpacked int) (*Engine, error) {
	enc, dec, err := codecs()
	if err != nil {
		return nil, fmt.Errorf("engine: zstd: %w", err)
	}
	if maxUnpacked <= 0 {
		maxUnpacked = DefaultMaxUnpacked
	}
	return &Engine{enc: enc, dec: dec, maxUnpacked: maxUnpacked}, nil
}

func (e *Engine) SaveFile() []byte     { return e.saveFile }
func (e *Engine) SetSaveFile(b []byte) { e.saveFile = b }

func (e *Engine) SaveFileWriteHook() func()      { return e.writeHook }
func (e *Engine) SetSaveFileWriteHook(fn func()) { e.writeHook = fn }

func (e *Engine) SetAutoSave(fn func()) { e.autoSave = fn }

// State returns the live game state. Callers must not modify it.
func (e *Engine) State() []byte { return e.state }

// Loaded reports whether a game is running.
func (e *Engine) Loaded() bool { return len(e.state) > 0 }

// Begin opens a transaction; saves are blocked until the matching End.
func (e *Engine) Begin() { e.txDepth++ }

func (e *Engine) End() {
	if e.txDepth == 0 {
		return
	}
	e.txDepth--
	if e.txDepth == 0 {
		e.requestAutoSave()
	}
}

// Write patches the live state at off and requests an autosave.
func (e *Engine) Write(off int, data []byte) error {
	if !e.Loaded() {
		return errors.New("engine: no game loaded")
	}
	if off < 0 || off+len(data) > len(e.state) {
		return fmt.Errorf("engine: write [%d,%d) outside state of %d bytes", off, off+len(data), len(e.state))
	}
	copy(e.state[off:], data)
	e.requestAutoSave()
	return nil
}

func (e *Engine) SaveGame() (autosave.SaveStatus, error) {
	if !e.Loaded() {
		return autosave.SaveNotSupported, nil
	}
	if e.txDepth > 0 {
		return autosave.SaveBlocked, nil
	}
	e.saveFile = bytes.Clone(e.state)
	if e.writeHook != nil {
		e.writeHook()
	}
	return autosave.SaveOK, nil
}

func (e *Engine) PackSaveFile() ([]byte, error) {
	return e.enc.EncodeAll(e.saveFile, nil), nil
}

func (e *Engine) UnpackSaveFile(packed []byte) bool {
	b, err := e.unpack(packed)
	if err != nil {
		return false
	}
	e.saveFile = b
	return true
}

func (e *Engine) unpack(packed []byte) ([]byte, error) {
	if len(packed) == 0 {
		return nil, errors.New("engine: empty packed save")
	}
	b, err := e.dec.DecodeAll(packed, nil)
	if err != nil {
		return nil, err
	}
	if len(b) > e.maxUnpacked {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	return b, nil
}

// LoadGame starts the game stored in the save buffer. Only world and lab
// saves can be played; chip saves are loaded from inside the lab.
func (e *Engine) LoadGame() bool {
	switch savedata.Classify(e.saveFile).Kind {
	case savedata.KindWorld, savedata.KindLab:
	default:
		return false
	}
	e.state = bytes.Clone(e.saveFile)
	e.requestAutoSave()
	return true
}

func (e *Engine) requestAutoSave() {
	if e.autoSave != nil {
		e.autoSave()
	}
}

// Pack compresses a raw save buffer the way PackSaveFile does.
func Pack(raw []byte) ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, nil), nil
}

// Unpack reverses Pack, bounded by limit bytes (<= 0 uses DefaultMaxUnpacked).
func Unpack(packed []byte, limit int) ([]byte, error) {
	e, err := New(limit)
	if err != nil {
		return nil, err
	}
	return e.unpack(packed)
}
