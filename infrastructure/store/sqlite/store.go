// Package sqlite implements application/store.Store on top of SQLite,
// grounded on R2Northstar-Atlas's db/atlasdb (github.com/jmoiron/sqlx over
// github.com/mattn/go-sqlite3, WAL journal mode, busy timeout) with a
// built-in FTS5 full-text index standing in for a second search engine
// (spec §4.4 "full-text inverted index... BM25 ranking").
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"tzrecorder/application/obslog"
	"tzrecorder/application/store"
	"tzrecorder/domain/logrecord"
	"tzrecorder/domain/message"
)

// insertsBetweenSizeChecks mirrors spec §4.4's "every N insertions (N≈1024
// or size-based trigger)".
const insertsBetweenSizeChecks = 1024

// retentionBatch is how many lowest-id rows are evicted per table on each
// retention pass, so a single pass doesn't hold the write lock too long.
const retentionBatch = 256

// Store is a per-node SQLite-backed application/store.Store.
type Store struct {
	db   *sqlx.DB
	path string
	log  obslog.Logger

	maxDBBytes uint64

	// writeMu serializes writes for this node (spec §4.4 "Writes are
	// serialized per node"). Reads don't take it, but the pool holds a
	// single connection (see Open), so reads and writes still run one
	// statement at a time.
	writeMu sync.Mutex

	inserts atomic.Uint64
}

// Open opens (creating if absent) the SQLite database at dbDir/messages.db,
// applies the schema, and configures WAL mode the way atlasdb does.
func Open(dbDir string, maxDBBytes uint64, log obslog.Logger) (*Store, error) {
	if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("sqlite: mkdir %s: %w", dbDir, err)
	}
	path := filepath.Join(dbDir, "messages.db")

	dsn := (&url.URL{
		Path: path,
		RawQuery: (url.Values{
			"_journal":      {"WAL"},
			"_cache_size":   {"-32000"},
			"_busy_timeout": {"6000"},
			"_fk":           {"true"},
		}).Encode(),
	}).String()

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one connection shared by reads and writes

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db, path: path, log: log, maxDBBytes: maxDBBytes}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertMessage appends a P2P message record and returns its assigned id.
func (s *Store) InsertMessage(msg message.Message) (uint64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.NamedExec(`
		INSERT INTO messages
			(connection_id, node_name, peer_addr, incoming, source, ts,
			 chunk_id_from, chunk_id_to, kind, preview, ciphertext, plaintext, decode_err)
		VALUES
			(:connection_id, :node_name, :peer_addr, :incoming, :source, :ts,
			 :chunk_id_from, :chunk_id_to, :kind, :preview, :ciphertext, :plaintext, :decode_err)
	`, messageRow(msg))
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert message: last insert id: %w", err)
	}

	s.maybeEnforceRetention()
	return uint64(id), nil
}

// InsertLog appends a log record and returns its assigned id.
func (s *Store) InsertLog(rec logrecord.Record) (uint64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.NamedExec(`
		INSERT INTO logs (node_name, level, ts, section, message)
		VALUES (:node_name, :level, :ts, :section, :message)
	`, logRow(rec))
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert log: last insert id: %w", err)
	}

	s.maybeEnforceRetention()
	return uint64(id), nil
}

// QueryMessages returns P2P records matching filter, newest-first (spec
// §4.4 "Cursor semantics").
func (s *Store) QueryMessages(filter store.MessageFilter) ([]message.Message, error) {
	limit := clampLimit(filter.Limit)

	var where []string
	args := map[string]any{"limit": limit}

	if filter.Cursor != 0 {
		where = append(where, "id <= :cursor")
		args["cursor"] = filter.Cursor
	}
	if filter.RemoteAddr != "" {
		where = append(where, "peer_addr = :peer_addr")
		args["peer_addr"] = filter.RemoteAddr
	}
	if filter.Source != "" {
		where = append(where, "source = :source")
		args["source"] = string(filter.Source)
	}
	if filter.Incoming != nil {
		where = append(where, "incoming = :incoming")
		args["incoming"] = boolToInt(*filter.Incoming)
	}
	if len(filter.Kinds) > 0 {
		placeholders := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			name := fmt.Sprintf("kind%d", i)
			placeholders[i] = ":" + name
			args[name] = k.String()
		}
		where = append(where, "kind IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.From != 0 {
		where = append(where, "ts >= :from")
		args["from"] = filter.From
	}
	if filter.To != 0 {
		where = append(where, "ts <= :to")
		args["to"] = filter.To
	}

	query := "SELECT * FROM messages"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT :limit"

	stmt, expanded, err := bindNamed(s.db, query, args)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query messages: %w", err)
	}
	defer stmt.Close()

	var rows []messageRowModel
	if err := stmt.Select(&rows, expanded...); err != nil {
		return nil, fmt.Errorf("sqlite: query messages: %w", err)
	}

	out := make([]message.Message, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// GetMessage returns the full record for id.
func (s *Store) GetMessage(id uint64) (message.Message, bool, error) {
	var row messageRowModel
	err := s.db.Get(&row, `SELECT * FROM messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return message.Message{}, false, nil
	}
	if err != nil {
		return message.Message{}, false, fmt.Errorf("sqlite: get message %d: %w", id, err)
	}
	return row.toDomain(), true, nil
}

// QueryLogs returns log records matching filter, newest-first, using the
// FTS5 index when filter.Query is set.
func (s *Store) QueryLogs(filter store.LogFilter) ([]logrecord.Record, error) {
	limit := clampLimit(filter.Limit)

	var where []string
	args := map[string]any{"limit": limit}
	joinFTS := ""

	if filter.Query != "" {
		joinFTS = "JOIN logs_fts ON logs_fts.rowid = logs.id"
		where = append(where, "logs_fts MATCH :query")
		args["query"] = filter.Query
	}
	if filter.Cursor != 0 {
		where = append(where, "logs.id <= :cursor")
		args["cursor"] = filter.Cursor
	}
	if filter.Level != nil {
		where = append(where, "logs.level = :level")
		args["level"] = filter.Level.String()
	}
	if filter.From != 0 {
		where = append(where, "logs.ts >= :from")
		args["from"] = filter.From
	}
	if filter.To != 0 {
		where = append(where, "logs.ts <= :to")
		args["to"] = filter.To
	}

	query := "SELECT logs.* FROM logs " + joinFTS
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY logs.id DESC LIMIT :limit"

	stmt, expanded, err := bindNamed(s.db, query, args)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query logs: %w", err)
	}
	defer stmt.Close()

	var rows []logRowModel
	if err := stmt.Select(&rows, expanded...); err != nil {
		return nil, fmt.Errorf("sqlite: query logs: %w", err)
	}

	out := make([]logrecord.Record, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func bindNamed(db *sqlx.DB, query string, args map[string]any) (*sqlx.Stmt, []any, error) {
	rebound, expandedArgs, err := sqlx.Named(query, args)
	if err != nil {
		return nil, nil, err
	}
	rebound = db.Rebind(rebound)
	stmt, err := db.Preparex(rebound)
	if err != nil {
		return nil, nil, err
	}
	return stmt, expandedArgs, nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return store.DefaultLimit
	}
	if n > store.MaxLimit {
		return store.MaxLimit
	}
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// maybeEnforceRetention checks on-disk size every insertsBetweenSizeChecks
// insertions and evicts the lowest-id rows until back under the low
// watermark (spec §4.4 "Retention"). Called with writeMu already held.
func (s *Store) maybeEnforceRetention() {
	if s.maxDBBytes == 0 {
		return
	}
	if s.inserts.Add(1)%insertsBetweenSizeChecks != 0 {
		return
	}

	size, err := s.onDiskSize()
	if err != nil {
		s.log.Warn().Err(err).Msg("retention: failed to stat database size")
		return
	}
	if size <= s.maxDBBytes {
		return
	}

	lowWatermark := uint64(float64(s.maxDBBytes) * 0.9)
	for {
		size, err := s.onDiskSize()
		if err != nil {
			s.log.Warn().Err(err).Msg("retention: failed to stat database size")
			return
		}
		if size <= lowWatermark {
			return
		}
		evicted, err := s.evictOldest()
		if err != nil {
			s.log.Warn().Err(err).Msg("retention: eviction failed")
			return
		}
		if evicted == 0 {
			return
		}
	}
}

func (s *Store) onDiskSize() (uint64, error) {
	var total int64
	for _, suffix := range []string{"", "-wal", "-shm"} {
		info, err := os.Stat(s.path + suffix)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return uint64(total), nil
}

func (s *Store) evictOldest() (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM messages WHERE id IN (SELECT id FROM messages ORDER BY id ASC LIMIT ?)
	`, retentionBatch)
	if err != nil {
		return 0, err
	}
	msgRows, _ := res.RowsAffected()

	res, err = s.db.Exec(`
		DELETE FROM logs WHERE id IN (SELECT id FROM logs ORDER BY id ASC LIMIT ?)
	`, retentionBatch)
	if err != nil {
		return msgRows, err
	}
	logRows, _ := res.RowsAffected()

	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return msgRows + logRows, err
	}
	return msgRows + logRows, nil
}
