// Package store is the Audit & Memory Store: a single embedded SQLite
// database, in write-ahead-log mode, holding an append-only hash-chained
// event log per session and a small session-scoped key/value memory table.
// Every mutating operation is one transaction; a failed commit is always
// AuditWriteFailure, a critical invariant violation the kernel cannot
// recover from.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, avoids a cgo build dependency

	"github.com/ariarun/aria/internal/scrub"
	"github.com/ariarun/aria/pkg/types"
)

var zeroHash [32]byte

// Clock abstracts wall-clock reads for deterministic tests.
type Clock func() time.Time

// Store is the durable backing for the kernel's AuditSink interface, plus
// the session memory KV store.
type Store struct {
	db       *sql.DB
	scrubber *scrub.Scrubber
	now      Clock
}

// Option configures optional Store parameters.
type Option func(*Store)

// WithClock overrides the store's wall-clock source.
func WithClock(now Clock) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if necessary) the database file at path in WAL mode
// and ensures the audit and memory tables exist. scrubber is applied to
// every payload before it is hashed or stored; it must never be nil, since
// no path through the store may write unscrubbed content.
func Open(path string, scrubber *scrub.Scrubber, opts ...Option) (*Store, *types.Error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, types.Wrap(types.KindAuditWriteFailure, "cannot open audit database at "+path, err)
	}
	db.SetMaxOpenConns(1) // one writer; the kernel drives one session at a time

	s := &Store{db: db, scrubber: scrubber, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() *types.Error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return types.Wrap(types.KindAuditWriteFailure, "cannot set "+p, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS audit (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			ts TEXT NOT NULL,
			prev_hash BLOB NOT NULL,
			hash BLOB NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS memory (
			session_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value_json TEXT NOT NULL,
			updated_ts TEXT NOT NULL,
			PRIMARY KEY (session_id, key)
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return types.Wrap(types.KindAuditWriteFailure, "cannot create schema", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append implements kernel.AuditSink: it scrubs payload, chains it onto the
// session's hash chain, and commits in a single transaction. A non-nil
// error is always AuditWriteFailure.
func (s *Store) Append(sessionID string, kind types.EventKind, payload []byte) (int, *types.Error) {
	if s.scrubber != nil {
		payload = s.scrubber.ScrubBytes(payload)
	}
	canon, err := canonicalizePayload(payload)
	if err != nil {
		return 0, types.Wrap(types.KindAuditWriteFailure, "audit payload is not valid JSON", err)
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return 0, types.Wrap(types.KindAuditWriteFailure, "cannot begin audit transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	seq, prevHash, terr := s.tail(tx, sessionID)
	if terr != nil {
		return 0, terr
	}
	nextSeq := seq + 1

	hash, err := recordHash(sessionID, nextSeq, kind, canon, prevHash)
	if err != nil {
		return 0, types.Wrap(types.KindAuditWriteFailure, "cannot compute audit record hash", err)
	}

	ts := s.now().UTC().Format(time.RFC3339Nano)
	_, err = tx.Exec(
		`INSERT INTO audit (session_id, seq, kind, payload_json, ts, prev_hash, hash) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, nextSeq, string(kind), string(canon), ts, prevHash[:], hash[:],
	)
	if err != nil {
		return 0, types.Wrap(types.KindAuditWriteFailure, "cannot insert audit record", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, types.Wrap(types.KindAuditWriteFailure, "cannot commit audit record", err)
	}
	return nextSeq, nil
}

// tail reads the current max sequence number and hash for sessionID within
// tx, or (-1, zero hash) if the session has no records yet.
func (s *Store) tail(tx *sql.Tx, sessionID string) (int, [32]byte, *types.Error) {
	row := tx.QueryRow(`SELECT seq, hash FROM audit WHERE session_id = ? ORDER BY seq DESC LIMIT 1`, sessionID)
	var seq int
	var hashBlob []byte
	err := row.Scan(&seq, &hashBlob)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, zeroHash, nil
	}
	if err != nil {
		return 0, zeroHash, types.Wrap(types.KindAuditWriteFailure, "cannot read audit tail", err)
	}
	var h [32]byte
	copy(h[:], hashBlob)
	return seq, h, nil
}

// VerifyResult is the outcome of replaying a session's chain.
type VerifyResult struct {
	Ok       bool
	BrokenAt int
}

// Verify replays session's audit chain in sequence order, recomputing each
// record's hash from its stored fields and comparing both the recomputed
// hash and the chain linkage to what was persisted. It is deterministic and
// side-effect-free.
func (s *Store) Verify(sessionID string) (VerifyResult, *types.Error) {
	rows, err := s.db.Query(
		`SELECT seq, kind, payload_json, prev_hash, hash FROM audit WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return VerifyResult{}, types.Wrap(types.KindAuditWriteFailure, "cannot read audit chain", err)
	}
	defer rows.Close()

	expectedPrev := zeroHash
	for rows.Next() {
		var seq int
		var kind, payloadJSON string
		var prevHashBlob, hashBlob []byte
		if err := rows.Scan(&seq, &kind, &payloadJSON, &prevHashBlob, &hashBlob); err != nil {
			return VerifyResult{}, types.Wrap(types.KindAuditWriteFailure, "cannot scan audit record", err)
		}

		var storedPrev [32]byte
		copy(storedPrev[:], prevHashBlob)
		if storedPrev != expectedPrev {
			return VerifyResult{BrokenAt: seq}, nil
		}

		recomputed, err := recordHash(sessionID, seq, types.EventKind(kind), json.RawMessage(payloadJSON), storedPrev)
		if err != nil {
			return VerifyResult{}, types.Wrap(types.KindAuditWriteFailure, "cannot recompute audit hash", err)
		}
		var storedHash [32]byte
		copy(storedHash[:], hashBlob)
		if recomputed != storedHash {
			return VerifyResult{BrokenAt: seq}, nil
		}

		expectedPrev = storedHash
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{}, types.Wrap(types.KindAuditWriteFailure, "error iterating audit chain", err)
	}
	return VerifyResult{Ok: true}, nil
}

// exportRecord is the JSON shape one audit record takes in export output.
type exportRecord struct {
	SessionID string          `json:"session_id"`
	Seq       int             `json:"seq"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// ExportFormat selects export's output shape.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportText ExportFormat = "text"
)

// Export renders a session's audit chain in seq order as either a JSON
// array or a human-readable text summary with truncated hash fragments.
func (s *Store) Export(sessionID string, format ExportFormat) ([]byte, *types.Error) {
	records, err := s.records(sessionID)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportJSON:
		out, merr := json.Marshal(records)
		if merr != nil {
			return nil, types.Wrap(types.KindAuditWriteFailure, "cannot marshal export", merr)
		}
		return out, nil
	case ExportText:
		var buf []byte
		for _, r := range records {
			line := fmt.Sprintf("%s #%d %-18s %s  prev=%s hash=%s\n",
				r.SessionID, r.Seq, r.Kind, r.Timestamp, fragment(r.PrevHash), fragment(r.Hash))
			buf = append(buf, []byte(line)...)
		}
		return buf, nil
	default:
		return nil, types.New(types.KindManifestInvalid, "unknown export format: "+string(format))
	}
}

func fragment(hexHash string) string {
	if len(hexHash) <= 8 {
		return hexHash
	}
	return hexHash[:8]
}

func (s *Store) records(sessionID string) ([]exportRecord, *types.Error) {
	rows, err := s.db.Query(
		`SELECT seq, kind, payload_json, ts, prev_hash, hash FROM audit WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, types.Wrap(types.KindAuditWriteFailure, "cannot read audit records", err)
	}
	defer rows.Close()

	var out []exportRecord
	for rows.Next() {
		var seq int
		var kind, payloadJSON, ts string
		var prevHashBlob, hashBlob []byte
		if err := rows.Scan(&seq, &kind, &payloadJSON, &ts, &prevHashBlob, &hashBlob); err != nil {
			return nil, types.Wrap(types.KindAuditWriteFailure, "cannot scan audit record", err)
		}
		out = append(out, exportRecord{
			SessionID: sessionID,
			Seq:       seq,
			Kind:      kind,
			Payload:   json.RawMessage(payloadJSON),
			Timestamp: ts,
			PrevHash:  hex.EncodeToString(prevHashBlob),
			Hash:      hex.EncodeToString(hashBlob),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, types.Wrap(types.KindAuditWriteFailure, "error iterating audit records", err)
	}
	return out, nil
}

// List returns the most recent audit records across all sessions, newest
// first, bounded by limit.
func (s *Store) List(limit int) ([]types.AuditRecord, *types.Error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT session_id, seq, kind, payload_json, ts, prev_hash, hash FROM audit ORDER BY ts DESC, session_id, seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, types.Wrap(types.KindAuditWriteFailure, "cannot list audit records", err)
	}
	defer rows.Close()

	var out []types.AuditRecord
	for rows.Next() {
		var sessionID, kind, payloadJSON, ts string
		var seq int
		var prevHashBlob, hashBlob []byte
		if err := rows.Scan(&sessionID, &seq, &kind, &payloadJSON, &ts, &prevHashBlob, &hashBlob); err != nil {
			return nil, types.Wrap(types.KindAuditWriteFailure, "cannot scan audit record", err)
		}
		parsedTS, _ := time.Parse(time.RFC3339Nano, ts)
		var prevHash, hash [32]byte
		copy(prevHash[:], prevHashBlob)
		copy(hash[:], hashBlob)
		out = append(out, types.AuditRecord{
			SessionID: sessionID,
			Seq:       seq,
			Kind:      types.EventKind(kind),
			Payload:   []byte(payloadJSON),
			Timestamp: parsedTS,
			PrevHash:  prevHash,
			Hash:      hash,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, types.Wrap(types.KindAuditWriteFailure, "error iterating audit records", err)
	}
	return out, nil
}

// PutMemory upserts one session-scoped key/value entry.
func (s *Store) PutMemory(sessionID, key string, value json.RawMessage) *types.Error {
	_, err := s.db.Exec(
		`INSERT INTO memory (session_id, key, value_json, updated_ts) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, key) DO UPDATE SET value_json = excluded.value_json, updated_ts = excluded.updated_ts`,
		sessionID, key, string(value), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return types.Wrap(types.KindAuditWriteFailure, "cannot write memory entry", err)
	}
	return nil
}

// GetMemory returns the value stored for (sessionID, key), or ok=false if
// absent.
func (s *Store) GetMemory(sessionID, key string) (json.RawMessage, bool, *types.Error) {
	row := s.db.QueryRow(`SELECT value_json FROM memory WHERE session_id = ? AND key = ?`, sessionID, key)
	var value string
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.Wrap(types.KindAuditWriteFailure, "cannot read memory entry", err)
	}
	return json.RawMessage(value), true, nil
}

// DeleteMemory removes one session-scoped key, if present.
func (s *Store) DeleteMemory(sessionID, key string) *types.Error {
	_, err := s.db.Exec(`DELETE FROM memory WHERE session_id = ? AND key = ?`, sessionID, key)
	if err != nil {
		return types.Wrap(types.KindAuditWriteFailure, "cannot delete memory entry", err)
	}
	return nil
}
