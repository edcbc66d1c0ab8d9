package ws

import "sync"

// pageLocation mirrors a page's location.hash. SetHash asks the page to
// navigate; the page reports hashchange events back with HASH_CHANGE.
type pageLocation struct {
	mu       sync.Mutex
	hash     string
	onChange func()
	send     func(v any) error
}

func newPageLocation(initial string, send func(v any) error) *pageLocation {
	return &pageLocation{hash: normalizeHash(initial), send: send}
}

func (l *pageLocation) Hash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hash
}

func (l *pageLocation) SetHash(fragment string) {
	l.mu.Lock()
	if fragment == "" {
		l.hash = ""
	} else {
		l.hash = "#" + fragment
	}
	l.mu.Unlock()
	_ = l.send(setHashMsg(fragment))
}

func (l *pageLocation) OnChange(fn func()) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// pageChanged records a hashchange reported by the page. Every report is
// passed on, including echoes of our own SET_HASH.
func (l *pageLocation) pageChanged(hash string) {
	l.mu.Lock()
	l.hash = normalizeHash(hash)
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// location.hash is "" for both a missing fragment and a bare "#".
func normalizeHash(h string) string {
	if h == "#" {
		return ""
	}
	return h
}
