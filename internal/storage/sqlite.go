// Package storage persists ledger records in SQLite: each month's record
// is one JSON document row, addressed by the same path layout the hosted
// store uses, plus a flat archive table fed by the worker.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"fintrack/internal/core"
	"fintrack/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements store.Store on top of a months table holding one
// JSON document per MonthKey. Sub-path reads and writes load the document
// and navigate it in process; change notifications are in-process only,
// which matches the single-writer deployment.
type SQLiteStore struct {
	db       *sql.DB
	notifier store.Notifier
}

func Open(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Read(ctx context.Context, path string, dest any) (bool, error) {
	key, rest, err := store.ParseMonthPath(path)
	if err != nil {
		return false, err
	}
	doc, found, err := s.loadDoc(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	node := any(doc)
	for _, seg := range rest {
		obj, ok := node.(map[string]any)
		if !ok {
			return false, nil
		}
		node, ok = obj[seg]
		if !ok {
			return false, nil
		}
	}
	raw, err := json.Marshal(node)
	if err != nil {
		return false, fmt.Errorf("encode node at %q: %w", path, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode node at %q: %w", path, err)
	}
	return true, nil
}

func (s *SQLiteStore) Write(ctx context.Context, path string, value any) error {
	key, rest, err := store.ParseMonthPath(path)
	if err != nil {
		return err
	}

	if len(rest) == 0 {
		if value == nil {
			if err := s.deleteDoc(ctx, key); err != nil {
				return err
			}
			s.notifier.Notify(path)
			return nil
		}
		normalized, err := normalizeObject(value)
		if err != nil {
			return fmt.Errorf("encode value for %q: %w", path, err)
		}
		if err := s.saveDoc(ctx, key, normalized); err != nil {
			return err
		}
		s.notifier.Notify(path)
		return nil
	}

	doc, found, err := s.loadDoc(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		doc = map[string]any{}
	}
	if value == nil {
		removeAt(doc, rest)
	} else {
		normalized, err := normalizeValue(value)
		if err != nil {
			return fmt.Errorf("encode value for %q: %w", path, err)
		}
		setAt(doc, rest, normalized)
	}
	if err := s.saveDoc(ctx, key, doc); err != nil {
		return err
	}
	s.notifier.Notify(path)
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, path string, fields map[string]any) error {
	key, rest, err := store.ParseMonthPath(path)
	if err != nil {
		return err
	}
	doc, found, err := s.loadDoc(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		doc = map[string]any{}
	}
	target := doc
	for _, seg := range rest {
		next, ok := target[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			target[seg] = next
		}
		target = next
	}
	for k, v := range fields {
		if v == nil {
			delete(target, k)
			continue
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return fmt.Errorf("encode field %q for %q: %w", k, path, err)
		}
		target[k] = nv
	}
	if err := s.saveDoc(ctx, key, doc); err != nil {
		return err
	}
	s.notifier.Notify(path)
	return nil
}

func (s *SQLiteStore) Subscribe(path string, onChange func()) func() {
	return s.notifier.Subscribe(path, onChange)
}

func (s *SQLiteStore) loadDoc(ctx context.Context, key core.MonthKey) (map[string]any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM months WHERE year = ? AND month = ?`,
		key.Year, key.Month).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load month %s: %w", key, err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, fmt.Errorf("decode month %s: %w", key, err)
	}
	return doc, true, nil
}

func (s *SQLiteStore) saveDoc(ctx context.Context, key core.MonthKey, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode month %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO months (year, month, doc, updated_at) VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT (year, month) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		key.Year, key.Month, string(raw))
	if err != nil {
		return fmt.Errorf("save month %s: %w", key, err)
	}
	slog.DebugContext(ctx, "Month document saved", "year", key.Year, "month", key.Month, "bytes", len(raw))
	return nil
}

func (s *SQLiteStore) deleteDoc(ctx context.Context, key core.MonthKey) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM months WHERE year = ? AND month = ?`, key.Year, key.Month); err != nil {
		return fmt.Errorf("delete month %s: %w", key, err)
	}
	return nil
}

func setAt(doc map[string]any, segs []string, value any) {
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

func removeAt(doc map[string]any, segs []string) {
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, segs[len(segs)-1])
}

func normalizeValue(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeObject(value any) (map[string]any, error) {
	v, err := normalizeValue(value)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("month document must be a JSON object")
	}
	return obj, nil
}
