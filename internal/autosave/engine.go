package autosave

import "fmt"

// SaveStatus is the result of Engine.SaveGame.
type SaveStatus int

const (
	SaveOK SaveStatus = iota
	// SaveBlocked means the engine can't save right now (mid-transaction).
	SaveBlocked
	// SaveNotSupported means there is nothing to save in the current context.
	SaveNotSupported
)

func (s SaveStatus) String() string {
	switch s {
	case SaveOK:
		return "OK"
	case SaveBlocked:
		return "BLOCKED"
	case SaveNotSupported:
		return "NOT_SUPPORTED"
	default:
		return fmt.Sprintf("SaveStatus(%d)", int(s))
	}
}

// Engine is the host engine's save/load surface.
//
// SaveGame writes the engine's save buffer and fires the write hook. It is
// shared by explicit user saves and autosaves, which is why the coordinator
// snapshots the buffer and hook around every autosave.
type Engine interface {
	SaveFile() []byte
	SetSaveFile(b []byte)

	SaveFileWriteHook() func()
	SetSaveFileWriteHook(fn func())

	SaveGame() (SaveStatus, error)
	PackSaveFile() ([]byte, error)
	UnpackSaveFile(packed []byte) bool
	LoadGame() bool
}

// AutoSaver is implemented by engines that request autosaves themselves
// whenever their state changes.
type AutoSaver interface {
	SetAutoSave(fn func())
}
