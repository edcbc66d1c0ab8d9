package autosave

import "sync"

// Location is the page URL fragment.
//
// Hash follows window.location.hash: "" when there is no fragment, otherwise
// "#" followed by the fragment. SetHash takes the fragment without "#".
// OnChange registers the hashchange handler; it is not called for writes
// that leave the fragment unchanged.
type Location interface {
	Hash() string
	SetHash(fragment string)
	OnChange(fn func())
}

// MemLocation is an in-process Location.
type MemLocation struct {
	mu       sync.Mutex
	fragment string
	onChange func()
	writes   int
}

func NewMemLocation(hash string) *MemLocation {
	l := &MemLocation{}
	if len(hash) > 0 && hash[0] == '#' {
		hash = hash[1:]
	}
	l.fragment = hash
	return l
}

func (l *MemLocation) Hash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fragment == "" {
		return ""
	}
	return "#" + l.fragment
}

func (l *MemLocation) SetHash(fragment string) {
	l.set(fragment, true)
}

// Navigate simulates the user editing the URL or pressing back: the fragment
// changes without counting as a write by this process.
func (l *MemLocation) Navigate(hash string) {
	if len(hash) > 0 && hash[0] == '#' {
		hash = hash[1:]
	}
	l.set(hash, false)
}

// Writes counts SetHash calls.
func (l *MemLocation) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

func (l *MemLocation) OnChange(fn func()) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

func (l *MemLocation) set(fragment string, write bool) {
	l.mu.Lock()
	if write {
		l.writes++
	}
	changed := l.fragment != fragment
	l.fragment = fragment
	fn := l.onChange
	l.mu.Unlock()

	if changed && fn != nil {
		fn()
	}
}
