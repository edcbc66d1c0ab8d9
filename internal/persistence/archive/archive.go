// Package archive keeps copies of saves handed to the user, named the way the
// page names downloads.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"robotodyssey.web/internal/savedata"
)

type SaveMeta struct {
	Filename  string `json:"filename"`
	Kind      string `json:"kind"`
	Label     string `json:"label"`
	Size      int    `json:"size"`
	CreatedAt string `json:"created_at"`
}

// WriteSave writes data to dir under its classifier filename, plus a
// <filename>.json sidecar. It returns the written path.
func WriteSave(dir string, data []byte, now time.Time) (string, SaveMeta, error) {
	c := savedata.Classify(data)
	meta := SaveMeta{
		Filename:  c.Filename(now),
		Kind:      c.Kind.String(),
		Label:     c.Label(),
		Size:      len(data),
		CreatedAt: now.UTC().Format(time.RFC3339Nano),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", meta, err
	}

	dst := filepath.Join(dir, safeName(meta.Filename))
	if err := writeFileAtomic(dst, data); err != nil {
		return "", meta, fmt.Errorf("archive %s: %w", meta.Filename, err)
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(dst+".json", b, 0o644)
	}
	return dst, meta, nil
}

// Chip names are user text; keep them from escaping dir.
func safeName(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "\x00", "_").Replace(name)
}

func writeFileAtomic(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".save-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
