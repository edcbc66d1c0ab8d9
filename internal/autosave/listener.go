package autosave

import (
	"fmt"
	"log"

	"robotodyssey.web/internal/savecodec"
)

// Listener loads saves from location fragments that this process did not write.
type Listener struct {
	engine Engine
	loc    Location
	codec  savecodec.Codec
	last   *LastWritten
	log    *log.Logger
	rep    reporter
}

// Check inspects the current hash and, when it carries a foreign token,
// unpacks and loads it. It must run on the loop. Failures are logged and
// returned for callers that care; they are never fatal.
func (l *Listener) Check() error {
	hash := l.loc.Hash()
	if hash == "" || hash[0] != '#' {
		return nil
	}
	token := hash[1:]
	if token == "" {
		return nil
	}
	if l.last.Matches(token) {
		l.rep.emit(EventHashSelf, len(token), "")
		return nil
	}

	packed, err := l.codec.Decode(token)
	if err != nil {
		l.log.Printf("WARN ignoring location hash: %v", err)
		l.rep.emit(EventHashDecodeFailed, len(token), err.Error())
		return err
	}
	if !l.engine.UnpackSaveFile(packed) {
		l.log.Printf("WARN FAILED to unpack saved game")
		l.rep.emit(EventHashUnpackFailed, len(token), "")
		return fmt.Errorf("%w (%d packed bytes)", ErrUnpack, len(packed))
	}
	if !l.engine.LoadGame() {
		l.log.Printf("WARN FAILED to load packed saved game")
		l.rep.emit(EventHashLoadFailed, len(token), "")
		return ErrLoad
	}
	l.log.Printf("loading packed saved game")
	l.rep.emit(EventHashLoaded, len(token), "")
	return nil
}
