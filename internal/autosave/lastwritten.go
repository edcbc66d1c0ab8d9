package autosave

import "sync"

// LastWritten is the most recent fragment this process wrote to the location.
// It starts unset; the empty fragment is a valid written value.
type LastWritten struct {
	mu    sync.Mutex
	token string
	set   bool
}

func (w *LastWritten) Store(token string) {
	w.mu.Lock()
	w.token = token
	w.set = true
	w.mu.Unlock()
}

func (w *LastWritten) Load() (token string, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.token, w.set
}

// Matches reports whether token is textually what we last wrote.
func (w *LastWritten) Matches(token string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.set && w.token == token
}
