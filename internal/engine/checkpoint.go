package engine

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"github.com/bamsammich/beamsplit/internal/chunk"
	"github.com/bamsammich/beamsplit/internal/pathmap"
)

// CheckpointDB provides SQLite-backed resume state for interrupted profile
// runs. It records which chunks finished so a rerun can skip them.
type CheckpointDB struct {
	db   *sql.DB
	path string

	// Batch buffer for MarkCompleted calls.
	mu      sync.Mutex
	batch   []completedEntry
	done    chan struct{}
	stopped bool
}

type completedEntry struct {
	key       string
	source    string
	filesOnly bool
	bytes     int64
	files     int64
	finished  int64
}

// OpenCheckpoint opens (or creates) the checkpoint database for a profile's
// source/destination pair. The DB is stored at
// $XDG_RUNTIME_DIR/beamsplit/<job-id>.db or $TMPDIR/beamsplit-<job-id>.db.
func OpenCheckpoint(profile, src, dst string) (*CheckpointDB, error) {
	return OpenCheckpointAt(checkpointPath(checkpointJobID(profile, src, dst)), src, dst)
}

// OpenCheckpointAt opens a checkpoint database at an explicit path.
func OpenCheckpointAt(dbPath, src, dst string) (*CheckpointDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	c := &CheckpointDB{
		db:   db,
		path: dbPath,
		done: make(chan struct{}),
	}

	if err := c.init(src, dst); err != nil {
		db.Close()
		return nil, err
	}

	go c.flushLoop()

	return c, nil
}

func (c *CheckpointDB) init(src, dst string) error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS completed (
			key        TEXT PRIMARY KEY,
			source     TEXT NOT NULL,
			files_only INTEGER NOT NULL,
			bytes      INTEGER NOT NULL,
			files      INTEGER NOT NULL,
			finished   INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	var storedSrc, storedDst string
	row := c.db.QueryRow("SELECT value FROM meta WHERE key = 'src_root'")
	if err := row.Scan(&storedSrc); err == nil {
		row2 := c.db.QueryRow("SELECT value FROM meta WHERE key = 'dst_root'")
		if err := row2.Scan(&storedDst); err == nil {
			if !strings.EqualFold(storedSrc, src) || !strings.EqualFold(storedDst, dst) {
				return fmt.Errorf("checkpoint roots mismatch: stored %s->%s, got %s->%s",
					storedSrc, storedDst, src, dst)
			}
		}
	} else {
		_, err = c.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('src_root', ?), ('dst_root', ?)", src, dst)
		if err != nil {
			return fmt.Errorf("store meta: %w", err)
		}
	}

	return nil
}

// chunkKey identifies a chunk's coverage by its destination, which stays
// the same when the source is read through a snapshot or a mount. Windows
// destinations compare case-insensitively.
func chunkKey(dest string, filesOnly bool) string {
	k := pathmap.StyleFor(dest).Key(dest)
	if filesOnly {
		k += "\x00files"
	}
	return k
}

// IsCompleted reports whether a chunk with the same destination (and the
// same files-only flag) finished in an earlier run.
func (c *CheckpointDB) IsCompleted(ch *chunk.Chunk) bool {
	key := chunkKey(ch.DestinationPath, ch.IsFilesOnly)

	c.mu.Lock()
	for _, e := range c.batch {
		if e.key == key {
			c.mu.Unlock()
			return true
		}
	}
	c.mu.Unlock()

	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM completed WHERE key = ?", key).Scan(&n)
	return err == nil && n > 0
}

// Filter splits chunks into those still to copy and those already done.
func (c *CheckpointDB) Filter(chunks []*chunk.Chunk) (todo, done []*chunk.Chunk) {
	for _, ch := range chunks {
		if c.IsCompleted(ch) {
			done = append(done, ch)
		} else {
			todo = append(todo, ch)
		}
	}
	return todo, done
}

// MarkCompleted records a finished chunk. Writes are batched and flushed
// periodically.
func (c *CheckpointDB) MarkCompleted(ch *chunk.Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	finished := ch.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	c.batch = append(c.batch, completedEntry{
		key:       chunkKey(ch.DestinationPath, ch.IsFilesOnly),
		source:    ch.SourcePath,
		filesOnly: ch.IsFilesOnly,
		bytes:     ch.BytesCopied,
		files:     ch.FilesCopied,
		finished:  finished.UnixNano(),
	})

	if len(c.batch) >= 100 {
		return c.flushLocked()
	}
	return nil
}

// Count returns the number of recorded chunks.
func (c *CheckpointDB) Count() (int, error) {
	if err := c.Flush(); err != nil {
		return 0, err
	}
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM completed").Scan(&n); err != nil {
		return 0, fmt.Errorf("count completed: %w", err)
	}
	return n, nil
}

// Flush writes any pending batch entries to the database.
func (c *CheckpointDB) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *CheckpointDB) flushLocked() error {
	if len(c.batch) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO completed
		(key, source, files_only, bytes, files, finished) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range c.batch {
		if _, err := stmt.Exec(e.key, e.source, e.filesOnly, e.bytes, e.files, e.finished); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", e.source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	c.batch = c.batch[:0]
	return nil
}

func (c *CheckpointDB) flushLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			_ = c.flushLocked()
			c.mu.Unlock()
		}
	}
}

// Close flushes any pending writes and closes the database.
func (c *CheckpointDB) Close() error {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.done)
	}
	_ = c.flushLocked()
	c.mu.Unlock()
	return c.db.Close()
}

// Remove deletes the checkpoint database and its WAL files.
func (c *CheckpointDB) Remove() error {
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(c.path + suffix)
	}
	return os.Remove(c.path)
}

// Path returns the path to the checkpoint database file.
func (c *CheckpointDB) Path() string {
	return c.path
}

// checkpointJobID computes a deterministic job ID from the profile name and
// its source and destination paths.
func checkpointJobID(profile, src, dst string) string {
	h := blake3.New()
	h.Write([]byte(profile))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(src)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(dst)))
	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:8])
}

// checkpointPath returns the filesystem path for a checkpoint DB.
func checkpointPath(jobID string) string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "beamsplit", jobID+".db")
	}
	return filepath.Join(os.TempDir(), "beamsplit-"+jobID+".db")
}
