package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"robotodyssey.web/internal/autosave"
	"robotodyssey.web/internal/savedata"
)

func TestSQLiteIndex_RecordEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var sink autosave.Sink = idx
	sink.RecordEvent(autosave.Event{Time: at, Session: "s1", Kind: autosave.EventAutosaveOK, Bytes: 4})
	sink.RecordEvent(autosave.Event{Time: at, Session: "s1", Kind: autosave.EventHashDecodeFailed, Bytes: 9, Detail: "bad"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT session,kind,bytes,detail,at FROM autosave_events ORDER BY seq`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer rows.Close()
	type row struct {
		session, kind, detail, at string
		bytes                     int
	}
	var got []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.session, &r.kind, &r.bytes, &r.detail, &r.at); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("rows=%d want 2", len(got))
	}
	if got[0].kind != "autosave_ok" || got[0].bytes != 4 || got[0].session != "s1" {
		t.Fatalf("row0=%+v", got[0])
	}
	if got[1].kind != "hash_decode_failed" || got[1].detail != "bad" || got[1].at != "2024-03-01T12:00:00Z" {
		t.Fatalf("row1=%+v", got[1])
	}
}

func TestSQLiteIndex_RecordDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	c := savedata.Classification{Kind: savedata.KindChip, ChipName: "HELLO"}
	idx.RecordDownload("s1", "/tmp/x.csv", "robotodyssey-chip-HELLO-x.csv", c, savedata.ChipSaveSize)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Closed index ignores writes.
	idx.RecordDownload("s1", "", "late", c, 1)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		kind, label string
		size, n     int
	)
	if err := db.QueryRow(`SELECT kind,label,size FROM downloads WHERE session='s1'`).Scan(&kind, &label, &size); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if kind != "chip" || label != `Chip "HELLO"` || size != savedata.ChipSaveSize {
		t.Fatalf("row mismatch: kind=%s label=%s size=%d", kind, label, size)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM downloads`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}
