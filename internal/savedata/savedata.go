// Package savedata sniffs Robot Odyssey save buffers by size and fixed offsets
// so downloads can be given meaningful names.
package savedata

import (
	"fmt"
	"strings"
	"time"
)

const (
	// WorldSaveSize is the length of a game (.gsv) or lab (.lsv) save.
	WorldSaveSize = 24389
	// ChipSaveSize is the length of a chip (.csv) save.
	ChipSaveSize = 1333
	// LabWorldID is the world id stored by the Innovation Lab.
	LabWorldID = 30

	chipNameStart = 0x40A
	chipNameEnd   = 0x41C

	untitledChip = "untitled"
	filePrefix   = "robotodyssey"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindWorld
	KindLab
	KindChip
)

func (k Kind) String() string {
	switch k {
	case KindWorld:
		return "world"
	case KindLab:
		return "lab"
	case KindChip:
		return "chip"
	default:
		return "unknown"
	}
}

// Classification is derived from a buffer on demand and never stored.
type Classification struct {
	Kind Kind
	// WorldIndex is the 1-based world number, set for KindWorld.
	WorldIndex int
	// ChipName is set for KindChip.
	ChipName string
}

// WorldID returns the world id stored in the last byte of a world-sized save.
func WorldID(b []byte) (int, bool) {
	if len(b) != WorldSaveSize {
		return 0, false
	}
	return int(b[len(b)-1]), true
}

// ChipName returns the printable prefix of a chip save's name field, trimmed.
func ChipName(b []byte) (string, bool) {
	if len(b) != ChipSaveSize {
		return "", false
	}
	var sb strings.Builder
	for _, c := range b[chipNameStart:chipNameEnd] {
		if c < 0x20 || c > 0x7F {
			break
		}
		sb.WriteByte(c)
	}
	name := strings.TrimSpace(sb.String())
	if name == "" {
		name = untitledChip
	}
	return name, true
}

// Classify checks the world layout before the chip layout.
func Classify(b []byte) Classification {
	if id, ok := WorldID(b); ok {
		if id == LabWorldID {
			return Classification{Kind: KindLab}
		}
		return Classification{Kind: KindWorld, WorldIndex: id + 1}
	}
	if name, ok := ChipName(b); ok {
		return Classification{Kind: KindChip, ChipName: name}
	}
	return Classification{Kind: KindUnknown}
}

// Label is a short human-readable description.
func (c Classification) Label() string {
	switch c.Kind {
	case KindWorld:
		return fmt.Sprintf("World %d", c.WorldIndex)
	case KindLab:
		return "Innovation Lab"
	case KindChip:
		return fmt.Sprintf("Chip %q", c.ChipName)
	default:
		return "Unknown save"
	}
}

// Filename names a download of this save taken at now.
func (c Classification) Filename(now time.Time) string {
	ts := ISOTimestamp(now)
	switch c.Kind {
	case KindWorld:
		return fmt.Sprintf("%s-world%d-%s.gsv", filePrefix, c.WorldIndex, ts)
	case KindLab:
		return fmt.Sprintf("%s-lab-%s.lsv", filePrefix, ts)
	case KindChip:
		return fmt.Sprintf("%s-chip-%s-%s.csv", filePrefix, c.ChipName, ts)
	default:
		return fmt.Sprintf("%s-%s.bin", filePrefix, ts)
	}
}

func Filename(b []byte, now time.Time) string {
	return Classify(b).Filename(now)
}

// ISOTimestamp formats t in UTC with millisecond precision, e.g. 2024-03-01T12:00:00.000Z.
func ISOTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
