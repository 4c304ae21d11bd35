// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/models"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrMatchNotFound is how callers learn a match was deleted underneath them.
	ErrMatchNotFound = errors.New("match not found")
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Filter narrows List. Zero values match everything.
type Filter struct {
	GameDefinitionKey string
}

func (f Filter) matches(m *models.Match) bool {
	return f.GameDefinitionKey == "" || f.GameDefinitionKey == m.GameDefinitionKey
}

// MatchStore persists match records. Returned matches are copies. Save creates
// or replaces a whole record; changes to an existing one go through Update.
type MatchStore interface {
	Find(scope *envelope.Scope, id string) (*models.Match, error)
	Save(scope *envelope.Scope, match *models.Match) error
	Delete(scope *envelope.Scope, id string) error
	List(scope *envelope.Scope, filter Filter) ([]*models.Match, error)
	// AppendSlice adds to the slice history atomically, so a proxy and the
	// table manager can both write to one match.
	AppendSlice(scope *envelope.Scope, id string, slice models.MatchSlice, viewed bool) error
	// Update applies mutate to the stored match and writes it back in one
	// step, so concurrent AppendSlice calls are never lost. A deleted match
	// stays deleted: Update returns ErrMatchNotFound instead of recreating it.
	Update(scope *envelope.Scope, id string, mutate func(*models.Match) error) error
	// DeleteOlderThan removes matches not updated since cutoff.
	DeleteOlderThan(scope *envelope.Scope, cutoff time.Time) (int, error)
	Close() error
}

// Open returns the store for driver; dsn is a file path for sqlite and a URL for postgres.
func Open(scope *envelope.Scope, driver, dsn string) (MatchStore, error) {
	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(scope, dsn)
	case DriverPostgres:
		return NewPostgresStore(scope, dsn)
	}

	return nil, fmt.Errorf("%w %q", ErrUnknownDriver, driver)
}
