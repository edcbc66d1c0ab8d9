package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"robotodyssey.web/internal/autosave"
	"robotodyssey.web/internal/savedata"
)

// SQLiteIndex is a queryable secondary record of autosave events and save
// downloads. Writes are queued and applied by one writer goroutine; when the
// queue is full they are dropped, the JSONL event log stays authoritative.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Int64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqDownload
)

type req struct {
	kind reqKind

	event    autosave.Event
	download downloadRow
}

type downloadRow struct {
	Session    string
	Path       string
	Filename   string
	Kind       string
	Label      string
	Size       int
	RecordedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
		`CREATE TABLE IF NOT EXISTS autosave_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			kind TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			detail TEXT,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_autosave_events_session ON autosave_events(session, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_autosave_events_kind ON autosave_events(kind);`,
		`CREATE TABLE IF NOT EXISTS downloads (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			path TEXT,
			filename TEXT NOT NULL,
			kind TEXT NOT NULL,
			label TEXT NOT NULL,
			size INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts writes discarded because the queue was full.
func (s *SQLiteIndex) Dropped() int64 { return s.dropped.Load() }

// RecordEvent implements autosave.Sink.
func (s *SQLiteIndex) RecordEvent(e autosave.Event) {
	s.enqueue(req{kind: reqEvent, event: e})
}

// RecordDownload indexes a save handed to the user. path is where the
// download was archived, empty when it was not.
func (s *SQLiteIndex) RecordDownload(session, path, filename string, c savedata.Classification, size int) {
	s.enqueue(req{kind: reqDownload, download: downloadRow{
		Session:    session,
		Path:       path,
		Filename:   filename,
		Kind:       c.Kind.String(),
		Label:      c.Label(),
		Size:       size,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT INTO autosave_events(session,kind,bytes,detail,at) VALUES(?,?,?,?,?)`)
	insertDownload, _ := s.db.Prepare(`INSERT INTO downloads(session,path,filename,kind,label,size,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertDownload != nil {
			_ = insertDownload.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			e := r.event
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(
					e.Session,
					string(e.Kind),
					e.Bytes,
					e.Detail,
					e.Time.UTC().Format(time.RFC3339Nano),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqDownload:
			d := r.download
			if insertDownload != nil {
				if _, err := tx.Stmt(insertDownload).Exec(
					d.Session,
					d.Path,
					d.Filename,
					d.Kind,
					d.Label,
					d.Size,
					d.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		// Commit when idle too, so a quiet page's last events are visible.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}
