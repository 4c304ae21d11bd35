// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/models"
)

const openTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id                  TEXT PRIMARY KEY,
	game_definition_key TEXT NOT NULL,
	created_at          BIGINT NOT NULL,
	updated_at          BIGINT NOT NULL,
	document            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS matches_game_definition_key ON matches (game_definition_key);
CREATE INDEX IF NOT EXISTS matches_updated_at ON matches (updated_at);
`

// SQLStore keeps each match as a JSON document next to the columns it is queried by.
type SQLStore struct {
	// Now stamps UpdatedAt on writes.
	Now func() time.Time

	db        *sql.DB
	driver    string
	forUpdate string
}

func NewSQLiteStore(rootScope *envelope.Scope, path string) (*SQLStore, error) {
	scope := rootScope.NewChildScope("store.NewSQLiteStore")
	defer scope.Finish()

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if path != ":memory:" {
		if parent := filepath.Dir(path); parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(scope.Ctx, openTimeout)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return newSQLStore(ctx, db, DriverSQLite, "")
}

func NewPostgresStore(rootScope *envelope.Scope, dsn string) (*SQLStore, error) {
	scope := rootScope.NewChildScope("store.NewPostgresStore")
	defer scope.Finish()

	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(time.Minute)

	ctx, cancel := context.WithTimeout(scope.Ctx, openTimeout)
	defer cancel()

	return newSQLStore(ctx, db, DriverPostgres, " FOR UPDATE")
}

func newSQLStore(ctx context.Context, db *sql.DB, driver, forUpdate string) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure %s schema: %w", driver, err)
	}

	return &SQLStore{Now: time.Now, db: db, driver: driver, forUpdate: forUpdate}, nil
}

// rebind turns ? placeholders into $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Find(rootScope *envelope.Scope, id string) (*models.Match, error) {
	scope := rootScope.NewChildScope("store.Find")
	defer scope.Finish()

	return s.find(scope.Ctx, s.db, id, "")
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) find(ctx context.Context, q queryer, id string, suffix string) (*models.Match, error) {
	var document string
	err := q.QueryRowContext(ctx, s.rebind(`SELECT document FROM matches WHERE id = ?`+suffix), id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return decode(document)
}

func (s *SQLStore) Save(rootScope *envelope.Scope, match *models.Match) error {
	scope := rootScope.NewChildScope("store.Save")
	defer scope.Finish()

	match.UpdatedAt = s.Now().UTC()
	return s.upsert(scope.Ctx, s.db, match)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) upsert(ctx context.Context, e execer, match *models.Match) error {
	document, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("encode match %s: %w", match.ID, err)
	}

	_, err = e.ExecContext(ctx, s.rebind(`
		INSERT INTO matches (id, game_definition_key, created_at, updated_at, document)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			game_definition_key = excluded.game_definition_key,
			updated_at = excluded.updated_at,
			document = excluded.document`),
		match.ID, match.GameDefinitionKey, match.CreatedAt.UnixNano(), match.UpdatedAt.UnixNano(), string(document))

	return err
}

func (s *SQLStore) Delete(rootScope *envelope.Scope, id string) error {
	scope := rootScope.NewChildScope("store.Delete")
	defer scope.Finish()

	_, err := s.db.ExecContext(scope.Ctx, s.rebind(`DELETE FROM matches WHERE id = ?`), id)
	return err
}

// List returns matches oldest first.
func (s *SQLStore) List(rootScope *envelope.Scope, filter Filter) ([]*models.Match, error) {
	scope := rootScope.NewChildScope("store.List")
	defer scope.Finish()

	query := `SELECT document FROM matches`
	var args []any
	if filter.GameDefinitionKey != "" {
		query += ` WHERE game_definition_key = ?`
		args = append(args, filter.GameDefinitionKey)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(scope.Ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, err
		}
		match, err := decode(document)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}

func (s *SQLStore) AppendSlice(rootScope *envelope.Scope, id string, slice models.MatchSlice, viewed bool) error {
	scope := rootScope.NewChildScope("store.AppendSlice")
	defer scope.Finish()

	return s.modify(scope.Ctx, id, func(match *models.Match) error {
		match.AppendSlice(slice)
		if viewed {
			match.LastSliceViewed = len(match.Slices) - 1
		}
		return nil
	})
}

func (s *SQLStore) Update(rootScope *envelope.Scope, id string, mutate func(*models.Match) error) error {
	scope := rootScope.NewChildScope("store.Update")
	defer scope.Finish()

	return s.modify(scope.Ctx, id, mutate)
}

// modify reads the row locked for update, applies mutate and writes it back
// in the same transaction.
func (s *SQLStore) modify(ctx context.Context, id string, mutate func(*models.Match) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	match, err := s.find(ctx, tx, id, s.forUpdate)
	if err != nil {
		return err
	}
	if err := mutate(match); err != nil {
		return err
	}
	match.ID = id
	match.UpdatedAt = s.Now().UTC()

	document, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("encode match %s: %w", id, err)
	}
	result, err := tx.ExecContext(ctx, s.rebind(`UPDATE matches SET updated_at = ?, document = ? WHERE id = ?`),
		match.UpdatedAt.UnixNano(), string(document), id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}

	return tx.Commit()
}

func (s *SQLStore) DeleteOlderThan(rootScope *envelope.Scope, cutoff time.Time) (int, error) {
	scope := rootScope.NewChildScope("store.DeleteOlderThan")
	defer scope.Finish()

	result, err := s.db.ExecContext(scope.Ctx, s.rebind(`DELETE FROM matches WHERE updated_at < ?`), cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()

	return int(deleted), err
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decode(document string) (*models.Match, error) {
	var match models.Match
	if err := json.Unmarshal([]byte(document), &match); err != nil {
		return nil, fmt.Errorf("decode match: %w", err)
	}
	return &match, nil
}
