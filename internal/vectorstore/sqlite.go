// Package vectorstore implements the Vector Store Adapter: a per-collection
// record store with similarity query, backed by modernc.org/sqlite (pure
// Go, no cgo) plus the vec0 compatibility shim in vec_compat.go for the
// nearest-neighbor scan.
package vectorstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/loomhq/loom/internal/errs"
	"github.com/loomhq/loom/internal/logging"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"
)

// Store is the sqlite-backed Vector Store Adapter. One Store owns one
// on-disk database file and every collection within it.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at dir/vectors.db.
func Open(dir string) (*Store, error) {
	path := filepath.Join(dir, "vectors.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrapf(errs.StoreError, "vectorstore: open %s: %v", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureCollection(collection string) error {
	name := sanitizeCollectionName(collection)
	if name == "" {
		return errs.Wrap(errs.InvalidArgument, "vectorstore: empty collection name")
	}

	recordsTable := recordsTableName(name)
	vecTable := vecTableName(name)

	if _, err := s.db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			metadata TEXT NOT NULL,
			ts INTEGER NOT NULL
		)`, recordsTable)); err != nil {
		return errs.Wrapf(errs.StoreError, "vectorstore: create records table: %v", err)
	}

	if _, err := s.db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0()`, vecTable)); err != nil {
		return errs.Wrapf(errs.StoreError, "vectorstore: create vec table: %v", err)
	}
	return nil
}

func recordsTableName(sanitized string) string { return "records_" + sanitized }
func vecTableName(sanitized string) string      { return "vec_" + sanitized }

// AddRecord inserts or replaces rec within collection.
func (s *Store) AddRecord(collection string, rec Record) error {
	name := sanitizeCollectionName(collection)
	if err := s.ensureCollection(collection); err != nil {
		return err
	}

	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return errs.Wrapf(errs.InvalidArgument, "vectorstore: marshal metadata: %v", err)
	}

	if _, err := s.db.Exec(
		fmt.Sprintf(`INSERT INTO %s (id, document, metadata, ts) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET document=excluded.document, metadata=excluded.metadata, ts=excluded.ts`,
			recordsTableName(name)),
		rec.ID, rec.Document, string(metaJSON), rec.Timestamp.UnixNano(),
	); err != nil {
		return errs.Wrapf(errs.StoreError, "vectorstore: insert record: %v", err)
	}

	if _, err := s.db.Exec(
		fmt.Sprintf(`INSERT INTO %s (embedding, content, metadata) VALUES (?, ?, ?)`, vecTableName(name)),
		encodeFloat32(rec.Embedding), rec.ID, string(metaJSON),
	); err != nil {
		return errs.Wrapf(errs.StoreError, "vectorstore: insert vector: %v", err)
	}
	return nil
}

// GetAllRecords returns every record in collection sorted by timestamp
// ascending.
func (s *Store) GetAllRecords(collection string) ([]Record, error) {
	name := sanitizeCollectionName(collection)
	if err := s.ensureCollection(collection); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT id, document, metadata, ts FROM %s ORDER BY ts ASC`, recordsTableName(name)))
	if err != nil {
		return nil, errs.Wrapf(errs.StoreError, "vectorstore: query records: %v", err)
	}
	defer rows.Close()

	return s.scanValidatedRecords(rows, collection)
}

// scanValidatedRecords reads (id, document, metadata, ts) rows, dropping
// and logging any row whose metadata fails to parse back into a Record
// rather than failing the whole read.
func (s *Store) scanValidatedRecords(rows *sql.Rows, collection string) ([]Record, error) {
	var out []Record
	dropped := 0
	for rows.Next() {
		var id, document, metaJSON string
		var tsNano int64
		if err := rows.Scan(&id, &document, &metaJSON, &tsNano); err != nil {
			return nil, errs.Wrapf(errs.StoreError, "vectorstore: scan record: %v", err)
		}

		var meta map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			dropped++
			continue
		}

		out = append(out, Record{
			ID:        id,
			Document:  document,
			Metadata:  meta,
			Timestamp: time.Unix(0, tsNano),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrapf(errs.StoreError, "vectorstore: iterate records: %v", err)
	}

	if dropped > 0 {
		logging.Get(logging.CategoryVecStore).Warn("dropped invalid records",
			zap.String("collection", collection), zap.Int("dropped", dropped))
	}
	return out, nil
}

// Query returns at most min(k, count) records ranked by similarity to
// queryEmbedding, descending, ties broken by timestamp ascending.
func (s *Store) Query(collection string, queryEmbedding []float32, k int) ([]Match, error) {
	name := sanitizeCollectionName(collection)
	if err := s.ensureCollection(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT content, vector_distance_cos(embedding, ?) AS dist FROM %s ORDER BY dist ASC`,
		vecTableName(name)), encodeFloat32(queryEmbedding))
	if err != nil {
		return nil, errs.Wrapf(errs.StoreError, "vectorstore: query vectors: %v", err)
	}
	defer rows.Close()

	type scored struct {
		id  string
		sim float64
	}
	var candidates []scored
	for rows.Next() {
		var id string
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			return nil, errs.Wrapf(errs.StoreError, "vectorstore: scan distance: %v", err)
		}
		candidates = append(candidates, scored{id: id, sim: 1 - dist})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrapf(errs.StoreError, "vectorstore: iterate distances: %v", err)
	}

	all, err := s.GetAllRecords(collection)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Record, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		rec, ok := byID[c.id]
		if !ok {
			continue
		}
		matches = append(matches, Match{Record: rec, Similarity: c.sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.Timestamp.Before(matches[j].Record.Timestamp)
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// UpdateRecordsMetadata overwrites the metadata of each id in ids with the
// corresponding entry in metas.
func (s *Store) UpdateRecordsMetadata(collection string, ids []string, metas []map[string]string) error {
	if len(ids) != len(metas) {
		return errs.Wrap(errs.InvalidArgument, "vectorstore: ids and metas length mismatch")
	}
	name := sanitizeCollectionName(collection)
	if err := s.ensureCollection(collection); err != nil {
		return err
	}

	for i, id := range ids {
		metaJSON, err := json.Marshal(metas[i])
		if err != nil {
			return errs.Wrapf(errs.InvalidArgument, "vectorstore: marshal metadata: %v", err)
		}
		if _, err := s.db.Exec(
			fmt.Sprintf(`UPDATE %s SET metadata = ? WHERE id = ?`, recordsTableName(name)),
			string(metaJSON), id,
		); err != nil {
			return errs.Wrapf(errs.StoreError, "vectorstore: update metadata: %v", err)
		}
	}
	return nil
}

// ListCollections returns every sanitized collection name that has a
// records table, by scanning sqlite_master for the records_ prefix.
func (s *Store) ListCollections() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'records_%'`)
	if err != nil {
		return nil, errs.Wrapf(errs.StoreError, "vectorstore: list collections: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.Wrapf(errs.StoreError, "vectorstore: scan collection name: %v", err)
		}
		names = append(names, name[len("records_"):])
	}
	return names, rows.Err()
}

// DeleteCollection drops both the record table and the backing vec0
// virtual table for collection.
func (s *Store) DeleteCollection(collection string) error {
	name := sanitizeCollectionName(collection)
	if _, err := s.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, recordsTableName(name))); err != nil {
		return errs.Wrapf(errs.StoreError, "vectorstore: drop records table: %v", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, vecTableName(name))); err != nil {
		return errs.Wrapf(errs.StoreError, "vectorstore: drop vec table: %v", err)
	}
	return nil
}
