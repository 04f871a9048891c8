// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements the persistent store described in 4.D: a single
// SQLite file in WAL journal mode, giving genuine multi-process
// concurrent-writer semantics without a CGO dependency. See DESIGN.md for
// why this replaces the teacher's CozoDB binding.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kraklabs/testsel/internal/slogx"
	"github.com/kraklabs/testsel/internal/xerrors"
	"github.com/kraklabs/testsel/pkg/fingerprint"
)

// DefaultBatchSize is the host-configurable default batch size for
// test-execution writes (EXTERNAL INTERFACES).
const DefaultBatchSize = 20

const schemaDDL = `
CREATE TABLE IF NOT EXISTS file (
	filename TEXT PRIMARY KEY,
	file_hash TEXT NOT NULL,
	mtime REAL NOT NULL,
	size INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS baseline_fp (
	filename TEXT PRIMARY KEY,
	file_hash TEXT NOT NULL,
	mtime REAL NOT NULL,
	size INTEGER NOT NULL,
	blob BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS test_execution (
	nodeid TEXT PRIMARY KEY,
	env_tag TEXT,
	duration REAL NOT NULL,
	failed INTEGER NOT NULL,
	blob BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS coverage_index (
	filename TEXT NOT NULL,
	checksum INTEGER NOT NULL,
	nodeid TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_coverage_index_lookup ON coverage_index(filename, checksum);
CREATE INDEX IF NOT EXISTS idx_coverage_index_nodeid ON coverage_index(nodeid);
CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// FileChecksumPair is one (filename, checksum) entry of a test's recorded
// coverage, produced from coverage-filtered fingerprints across every file
// the test touched.
type FileChecksumPair struct {
	Filename string
	Checksum fingerprint.BlockChecksum
}

type pendingExecution struct {
	nodeid   string
	pairs    []FileChecksumPair
	duration float64
	failed   bool
	envTag   string
}

// Store is the embedded relational store. Safe for concurrent use from
// multiple goroutines within one process; SQLite's WAL mode handles
// concurrent writers across processes per 4.D / 4.I.
type Store struct {
	path      string
	db        *sql.DB
	batchSize int
	log       *slog.Logger

	mu      sync.Mutex
	pending []pendingExecution
}

// Open creates or opens the store file at path, enabling WAL journal mode
// and a busy timeout so concurrent workers retry instead of failing
// immediately (4.I's "WAL discipline" assumption).
func Open(path string, batchSize int, logger *slog.Logger) (*Store, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, xerrors.Internal("create store directory", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, xerrors.StoreCorruption(path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes per-handle; WAL still allows other processes in
	s := &Store{path: path, db: db, batchSize: batchSize, log: slogx.Default(logger)}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return xerrors.StoreCorruption(s.path, err)
	}
	return nil
}

// Path returns the store's file path, published to workers by the
// controller per 4.I.
func (s *Store) Path() string { return s.path }

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}

// withRetry retries fn with bounded backoff on transient SQLITE_BUSY
// conditions, per the StoreBusy error kind's recovery policy in 4.D/§7.
func withRetry(fn func() error) error {
	backoff := 10 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyErr(lastErr) {
			return lastErr
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return xerrors.StoreBusy(lastErr)
}

// blockCodec is the on-disk encoding of a Fingerprint's blocks+checksums,
// and of a test execution's (filename, checksum) pairs.
type blockCodec struct {
	Blocks    []fingerprint.Block `json:"blocks"`
	Checksums []uint64            `json:"checksums"`
}

func encodeFingerprintBlob(fp *fingerprint.Fingerprint) ([]byte, error) {
	cs := make([]uint64, len(fp.Checksums))
	for i, c := range fp.Checksums {
		cs[i] = uint64(c)
	}
	return json.Marshal(blockCodec{Blocks: fp.Blocks, Checksums: cs})
}

func decodeFingerprintBlob(blob []byte) ([]fingerprint.Block, []fingerprint.BlockChecksum, error) {
	var c blockCodec
	if err := json.Unmarshal(blob, &c); err != nil {
		return nil, nil, err
	}
	checksums := make([]fingerprint.BlockChecksum, len(c.Checksums))
	for i, v := range c.Checksums {
		checksums[i] = fingerprint.BlockChecksum(v)
	}
	return c.Blocks, checksums, nil
}

type pairCodec struct {
	Filename string `json:"filename"`
	Checksum uint64 `json:"checksum"`
}

func encodePairsBlob(pairs []FileChecksumPair) ([]byte, error) {
	out := make([]pairCodec, len(pairs))
	for i, p := range pairs {
		out[i] = pairCodec{Filename: p.Filename, Checksum: uint64(p.Checksum)}
	}
	return json.Marshal(out)
}

func decodePairsBlob(blob []byte) ([]FileChecksumPair, error) {
	var in []pairCodec
	if err := json.Unmarshal(blob, &in); err != nil {
		return nil, err
	}
	out := make([]FileChecksumPair, len(in))
	for i, p := range in {
		out[i] = FileChecksumPair{Filename: p.Filename, Checksum: fingerprint.BlockChecksum(p.Checksum)}
	}
	return out, nil
}

// SaveBaselineFingerprint upserts fp into baseline_fp and file, per 4.D.
func (s *Store) SaveBaselineFingerprint(fp *fingerprint.Fingerprint) error {
	blob, err := encodeFingerprintBlob(fp)
	if err != nil {
		return xerrors.Internal("encode fingerprint", err)
	}
	return withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`INSERT INTO baseline_fp(filename, file_hash, mtime, size, blob) VALUES (?,?,?,?,?)
			ON CONFLICT(filename) DO UPDATE SET file_hash=excluded.file_hash, mtime=excluded.mtime, size=excluded.size, blob=excluded.blob`,
			fp.Filename, fp.FileHash, fp.MTime, fp.Size, blob); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO file(filename, file_hash, mtime, size) VALUES (?,?,?,?)
			ON CONFLICT(filename) DO UPDATE SET file_hash=excluded.file_hash, mtime=excluded.mtime, size=excluded.size`,
			fp.Filename, fp.FileHash, fp.MTime, fp.Size); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// AllFilenames returns every filename tracked in the file table, used by
// the change detector to find baseline entries absent from the current walk.
func (s *Store) AllFilenames() ([]string, error) {
	rows, err := s.db.Query(`SELECT filename FROM file`)
	if err != nil {
		return nil, xerrors.Internal("query file", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, xerrors.Internal("scan file", err)
		}
		out = append(out, f)
	}
	return out, nil
}

// GetBaselineFingerprint implements 4.D's get_baseline_fingerprint.
func (s *Store) GetBaselineFingerprint(filename string) (*fingerprint.Fingerprint, bool, error) {
	row := s.db.QueryRow(`SELECT file_hash, mtime, size, blob FROM baseline_fp WHERE filename = ?`, filename)
	var fileHash string
	var mtime float64
	var size int64
	var blob []byte
	if err := row.Scan(&fileHash, &mtime, &size, &blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, xerrors.Internal("read baseline_fp", err)
	}
	blocks, checksums, err := decodeFingerprintBlob(blob)
	if err != nil {
		return nil, false, xerrors.Internal("decode baseline_fp blob", err)
	}
	return &fingerprint.Fingerprint{
		Filename: filename, FileHash: fileHash, MTime: mtime, Size: size,
		Blocks: blocks, Checksums: checksums,
	}, true, nil
}

// GetFileRecord returns the fast-path stat record for filename (4.E step 2).
func (s *Store) GetFileRecord(filename string) (fileHash string, mtime float64, size int64, ok bool, err error) {
	row := s.db.QueryRow(`SELECT file_hash, mtime, size FROM file WHERE filename = ?`, filename)
	scanErr := row.Scan(&fileHash, &mtime, &size)
	if scanErr == sql.ErrNoRows {
		return "", 0, 0, false, nil
	}
	if scanErr != nil {
		return "", 0, 0, false, xerrors.Internal("read file record", scanErr)
	}
	return fileHash, mtime, size, true, nil
}

// SaveTestExecution implements 4.D's save_test_execution. Writes are
// batched per §4.D's write discipline (default batch size 20); the batch
// is flushed to the database once full, and any partial batch is flushed
// on Close.
func (s *Store) SaveTestExecution(nodeid string, pairs []FileChecksumPair, duration float64, failed bool, envTag string) error {
	s.mu.Lock()
	s.pending = append(s.pending, pendingExecution{nodeid: nodeid, pairs: pairs, duration: duration, failed: failed, envTag: envTag})
	shouldFlush := len(s.pending) >= s.batchSize
	s.mu.Unlock()

	if shouldFlush {
		return s.FlushTestExecutions()
	}
	return nil
}

// FlushTestExecutions writes any batched test executions to disk,
// rebuilding each nodeid's coverage_index rows. Safe to call with an empty
// batch.
func (s *Store) FlushTestExecutions() error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	return withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, p := range batch {
			blob, err := encodePairsBlob(p.pairs)
			if err != nil {
				return err
			}
			failedInt := 0
			if p.failed {
				failedInt = 1
			}
			if _, err := tx.Exec(`INSERT INTO test_execution(nodeid, env_tag, duration, failed, blob) VALUES (?,?,?,?,?)
				ON CONFLICT(nodeid) DO UPDATE SET env_tag=excluded.env_tag, duration=excluded.duration, failed=excluded.failed, blob=excluded.blob`,
				p.nodeid, p.envTag, p.duration, failedInt, blob); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM coverage_index WHERE nodeid = ?`, p.nodeid); err != nil {
				return err
			}
			for _, pair := range p.pairs {
				if _, err := tx.Exec(`INSERT INTO coverage_index(filename, checksum, nodeid) VALUES (?,?,?)`,
					pair.Filename, int64(pair.Checksum), p.nodeid); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	})
}

// GetAffectedTests implements 4.D's get_affected_tests: the union, over
// entries of changedBlocks, of coverage_index rows that match.
func (s *Store) GetAffectedTests(changedBlocks map[string]map[fingerprint.BlockChecksum]bool) (map[string]bool, error) {
	affected := make(map[string]bool)
	for filename, checksums := range changedBlocks {
		if len(checksums) == 0 {
			continue
		}
		placeholders := make([]string, 0, len(checksums))
		args := make([]any, 0, len(checksums)+1)
		args = append(args, filename)
		for c := range checksums {
			placeholders = append(placeholders, "?")
			args = append(args, int64(c))
		}
		query := fmt.Sprintf(`SELECT DISTINCT nodeid FROM coverage_index WHERE filename = ? AND checksum IN (%s)`, strings.Join(placeholders, ","))
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return nil, xerrors.Internal("query coverage_index", err)
		}
		for rows.Next() {
			var nodeid string
			if err := rows.Scan(&nodeid); err != nil {
				rows.Close()
				return nil, xerrors.Internal("scan coverage_index", err)
			}
			affected[nodeid] = true
		}
		rows.Close()
	}
	return affected, nil
}

// GetRecordedTests implements 4.D's get_recorded_tests: the keyset of
// test_execution.
func (s *Store) GetRecordedTests() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT nodeid FROM test_execution`)
	if err != nil {
		return nil, xerrors.Internal("query test_execution", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var nodeid string
		if err := rows.Scan(&nodeid); err != nil {
			return nil, xerrors.Internal("scan test_execution", err)
		}
		out[nodeid] = true
	}
	return out, nil
}

// Stats mirrors 4.D's get_stats.
type Stats struct {
	BaselineCount int
	TestCount     int
	FileCount     int
}

// GetStats implements 4.D's get_stats.
func (s *Store) GetStats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT count(*) FROM baseline_fp`).Scan(&st.BaselineCount); err != nil {
		return st, xerrors.Internal("count baseline_fp", err)
	}
	if err := s.db.QueryRow(`SELECT count(*) FROM test_execution`).Scan(&st.TestCount); err != nil {
		return st, xerrors.Internal("count test_execution", err)
	}
	if err := s.db.QueryRow(`SELECT count(*) FROM file`).Scan(&st.FileCount); err != nil {
		return st, xerrors.Internal("count file", err)
	}
	return st, nil
}

// GetMetadata implements 4.D's get_metadata.
func (s *Store) GetMetadata(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, xerrors.Internal("read metadata", err)
	}
	return value, true, nil
}

// SetMetadata implements 4.D's set_metadata.
func (s *Store) SetMetadata(key, value string) error {
	return withRetry(func() error {
		_, err := s.db.Exec(`INSERT INTO metadata(key, value) VALUES (?,?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
		return err
	})
}

// GetExternalMetadata reads a metadata key from another store file without
// mutating it or the receiver, used by the merge engine to inspect
// baseline_commit before merging (4.H).
func (s *Store) GetExternalMetadata(otherDBPath, key string) (string, bool, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", otherDBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return "", false, xerrors.StoreCorruption(otherDBPath, err)
	}
	defer db.Close()
	var value string
	err = db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, xerrors.StoreCorruption(otherDBPath, err)
	}
	return value, true, nil
}

// ImportResult reports the rows copied by ImportBaselineFrom or
// MergeBaselineFrom.
type ImportResult struct {
	BaselineCount      int
	TestExecutionCount int
}

// ImportBaselineFrom copies baselines and test executions from another
// store file, replacing rows with identical primary keys (4.D).
func (s *Store) ImportBaselineFrom(otherDBPath string) (ImportResult, error) {
	return s.attachAndCopy(otherDBPath)
}

// MergeBaselineFrom is additive: the incoming row always wins on a
// filename/nodeid collision (Open Question #3, resolved in DESIGN.md), and
// rows unique to either side are kept. Given that tie-break, its on-disk
// effect is identical to ImportBaselineFrom; it is kept as a distinct
// method because its caller-facing contract (never failing the whole
// destination when one merge source is bad) differs — see pkg/merge.
func (s *Store) MergeBaselineFrom(otherDBPath string) (ImportResult, error) {
	return s.attachAndCopy(otherDBPath)
}

func (s *Store) attachAndCopy(otherDBPath string) (ImportResult, error) {
	var result ImportResult
	err := withRetry(func() error {
		if _, err := s.db.Exec(`ATTACH DATABASE ? AS src`, otherDBPath); err != nil {
			return xerrors.StoreCorruption(otherDBPath, err)
		}
		defer s.db.Exec(`DETACH DATABASE src`)

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`INSERT INTO file(filename, file_hash, mtime, size)
			SELECT filename, file_hash, mtime, size FROM src.file
			ON CONFLICT(filename) DO UPDATE SET file_hash=excluded.file_hash, mtime=excluded.mtime, size=excluded.size`); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO baseline_fp(filename, file_hash, mtime, size, blob)
			SELECT filename, file_hash, mtime, size, blob FROM src.baseline_fp
			ON CONFLICT(filename) DO UPDATE SET file_hash=excluded.file_hash, mtime=excluded.mtime, size=excluded.size, blob=excluded.blob`); err != nil {
			return err
		}
		if row := tx.QueryRow(`SELECT count(*) FROM src.baseline_fp`); row != nil {
			_ = row.Scan(&result.BaselineCount)
		}
		if _, err := tx.Exec(`INSERT INTO test_execution(nodeid, env_tag, duration, failed, blob)
			SELECT nodeid, env_tag, duration, failed, blob FROM src.test_execution
			ON CONFLICT(nodeid) DO UPDATE SET env_tag=excluded.env_tag, duration=excluded.duration, failed=excluded.failed, blob=excluded.blob`); err != nil {
			return err
		}
		if row := tx.QueryRow(`SELECT count(*) FROM src.test_execution`); row != nil {
			_ = row.Scan(&result.TestExecutionCount)
		}
		// Rebuild coverage_index for every nodeid we just touched.
		rows, err := tx.Query(`SELECT nodeid, blob FROM src.test_execution`)
		if err != nil {
			return err
		}
		type rebuild struct {
			nodeid string
			blob   []byte
		}
		var toRebuild []rebuild
		for rows.Next() {
			var r rebuild
			if err := rows.Scan(&r.nodeid, &r.blob); err != nil {
				rows.Close()
				return err
			}
			toRebuild = append(toRebuild, r)
		}
		rows.Close()
		for _, r := range toRebuild {
			pairs, err := decodePairsBlob(r.blob)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM coverage_index WHERE nodeid = ?`, r.nodeid); err != nil {
				return err
			}
			for _, p := range pairs {
				if _, err := tx.Exec(`INSERT INTO coverage_index(filename, checksum, nodeid) VALUES (?,?,?)`,
					p.Filename, int64(p.Checksum), r.nodeid); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

// Close flushes any pending batched writes and the write-ahead log to the
// main file, per 4.D's close() contract.
func (s *Store) Close() error {
	if err := s.FlushTestExecutions(); err != nil {
		s.log.Warn("store.close.flush_failed", "error", err)
	}
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		s.log.Warn("store.close.checkpoint_failed", "error", err)
	}
	return s.db.Close()
}
