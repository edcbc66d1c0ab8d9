package autosave

import "time"

// Clock schedules the debounce timer.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type Timer interface {
	Stop() bool
}

// SystemClock uses time.AfterFunc.
type SystemClock struct{}

func (SystemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
