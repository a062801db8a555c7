package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelterrain.dev/internal/persistence/snapshot"
	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

var ErrClosed = errors.New("sqlite store closed")

const beginAttempts = 4

// SQLiteStore is a ChangeStore backed by sqlite. Reads are served from an
// in-memory copy loaded at open; writes update the copy and are persisted in
// order by a single writer goroutine.
type SQLiteStore struct {
	db    *sql.DB
	cache *store.Memory

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once
	mu   sync.RWMutex // guards sends on ch against Close

	closed  atomic.Bool
	pending atomic.Int64
	lastErr atomic.Value // error
}

type reqKind int

const (
	reqChange reqKind = iota + 1
	reqSnapshot
	reqMeta
	reqFlush
)

type req struct {
	kind reqKind

	change   store.Entry
	snapshot snapshotRow
	meta     [2]string
	done     chan error
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Seed       int64
	Changes    int
	RecordedAt string
}

func OpenSQLite(path string) (*SQLiteStore, error) {
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

	s := &SQLiteStore{
		db:    db,
		cache: store.NewMemory(),
		ch:    make(chan req, 65536),
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
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
		`CREATE TABLE IF NOT EXISTS changes (
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			block INTEGER NOT NULL,
			PRIMARY KEY (cx, cz, x, y, z)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			changes INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) load() error {
	rows, err := s.db.Query(`SELECT cx,cz,x,y,z,block FROM changes`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k store.Key
		var block int64
		if err := rows.Scan(&k.CX, &k.CZ, &k.X, &k.Y, &k.Z, &block); err != nil {
			return err
		}
		if err := s.cache.Set(k, catalogs.BlockID(block)); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteStore) send(r req) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return ErrClosed
	}
	s.pending.Add(1)
	s.ch <- r
	return nil
}

func (s *SQLiteStore) Get(k store.Key) (catalogs.BlockID, bool) { return s.cache.Get(k) }

// Set records the edit in memory and queues it for the writer. Set blocks
// when the queue is full; a write the database rejects is reported by the
// next Flush and by Err.
func (s *SQLiteStore) Set(k store.Key, id catalogs.BlockID) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.cache.Set(k, id); err != nil {
		return err
	}
	return s.send(req{kind: reqChange, change: store.Entry{Key: k, Block: id}})
}

func (s *SQLiteStore) ForChunk(cx, cz int, fn func(k store.Key, id catalogs.BlockID)) {
	s.cache.ForChunk(cx, cz, fn)
}

func (s *SQLiteStore) Len() int               { return s.cache.Len() }
func (s *SQLiteStore) Entries() []store.Entry { return s.cache.Entries() }

// Pending is the number of queued writes not yet executed.
func (s *SQLiteStore) Pending() int64 { return s.pending.Load() }

// Err returns the last write error seen by the writer, if any.
func (s *SQLiteStore) Err() error {
	if v := s.lastErr.Load(); v != nil {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}

// Flush waits until every write queued before the call is committed. It
// returns the first write failure since the previous Flush, if any.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	done := make(chan error, 1)
	if err := s.send(req{kind: reqFlush, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetMeta stores a key/value pair (e.g. the seed a store was recorded with).
func (s *SQLiteStore) SetMeta(key, value string) error {
	return s.send(req{kind: reqMeta, meta: [2]string{key, value}})
}

// Meta reads a value written by SetMeta. Call Flush first to see queued
// writes.
func (s *SQLiteStore) Meta(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// RecordSnapshot indexes a change snapshot written to path.
func (s *SQLiteStore) RecordSnapshot(path string, snap snapshot.ChangesV1) {
	if s == nil || s.closed.Load() {
		return
	}
	_ = s.send(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		Seed:       snap.Seed,
		Changes:    len(snap.Changes),
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

// LatestSnapshot returns the newest indexed snapshot path.
func (s *SQLiteStore) LatestSnapshot() (path string, tick uint64, ok bool, err error) {
	var t int64
	err = s.db.QueryRow(`SELECT tick,path FROM snapshots ORDER BY tick DESC LIMIT 1`).Scan(&t, &path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return path, uint64(t), true, nil
}

var _ store.Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) loop() {
	ctx := context.Background()

	upsertChange, _ := s.db.Prepare(`INSERT OR REPLACE INTO changes(cx,cz,x,y,z,block) VALUES(?,?,?,?,?,?)`)
	upsertMeta, _ := s.db.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,changes,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertChange, upsertMeta, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 500 * time.Millisecond
	)

	// werr is the first write failure since the last flush; the flush
	// reports it so callers learn that cached edits did not reach disk.
	var werr error
	fail := func(err error) {
		s.lastErr.Store(err)
		if werr == nil {
			werr = err
		}
	}
	begin := func() {
		if tx != nil {
			return
		}
		var err error
		for attempt := 0; attempt < beginAttempts; attempt++ {
			var txx *sql.Tx
			if txx, err = s.db.BeginTx(ctx, nil); err == nil {
				tx = txx
				opCount = 0
				lastCommit = time.Now()
				return
			}
			time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
		}
		fail(fmt.Errorf("begin: %w", err))
	}
	commit := func() error {
		if tx == nil {
			return nil
		}
		err := tx.Commit()
		if err != nil {
			fail(err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
		return err
	}
	exec := func(st *sql.Stmt, args ...any) {
		if tx == nil {
			return
		}
		if st == nil {
			fail(errors.New("statement not prepared"))
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			fail(err)
			return
		}
		opCount++
	}

	for r := range s.ch {
		switch r.kind {
		case reqFlush:
			err := commit()
			if err == nil {
				err = werr
			}
			werr = nil
			r.done <- err
			s.pending.Add(-1)
			continue
		case reqChange:
			begin()
			c := r.change
			exec(upsertChange, c.CX, c.CZ, c.X, c.Y, c.Z, int64(c.Block))
		case reqMeta:
			begin()
			exec(upsertMeta, r.meta[0], r.meta[1])
		case reqSnapshot:
			begin()
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Changes, sn.RecordedAt)
		}
		s.pending.Add(-1)
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			_ = commit()
		}
	}
	_ = commit()
}
