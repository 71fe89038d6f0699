// Package memory is an in-process implementation of the repository manager
// and dbx.Database, used when no database DSN is configured and in tests.
//
// Transactions are serialized by a store-wide lock: WithTx holds it
// exclusively for the whole unit of work and restores a snapshot of the data
// when the unit fails. Repositories bound to Conn() take the lock shared, so
// they must not be used from inside a WithTx callback; use the handle passed
// to the callback instead.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

var errNoSQL = errors.New("memory store: SQL is not supported")

// handle is the DBTX the store hands out. It only identifies whether a
// repository runs inside a transaction; it does not execute SQL.
type handle struct {
	store *Store
	tx    bool
}

func (h *handle) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNoSQL
}

func (h *handle) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (h *handle) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

type data struct {
	users         map[string]models.User
	userByEmail   map[string]string
	refresh       map[string]models.RefreshToken
	refreshByHash map[string]string
	reset         map[string]models.PasswordResetToken
	resetByHash   map[string]string
}

func newData() data {
	return data{
		users:         map[string]models.User{},
		userByEmail:   map[string]string{},
		refresh:       map[string]models.RefreshToken{},
		refreshByHash: map[string]string{},
		reset:         map[string]models.PasswordResetToken{},
		resetByHash:   map[string]string{},
	}
}

func (d data) clone() data {
	c := newData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.userByEmail {
		c.userByEmail[k] = v
	}
	for k, v := range d.refresh {
		c.refresh[k] = v
	}
	for k, v := range d.refreshByHash {
		c.refreshByHash[k] = v
	}
	for k, v := range d.reset {
		c.reset[k] = v
	}
	for k, v := range d.resetByHash {
		c.resetByHash[k] = v
	}
	return c
}

// Store holds all tables in memory.
type Store struct {
	txMu  sync.RWMutex
	mu    sync.Mutex
	data  data
	clock timex.Clock
}

// NewStore returns an empty store. clock stamps CreatedAt of new users.
func NewStore(clock timex.Clock) *Store {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	return &Store{data: newData(), clock: clock}
}

// Conn returns the non-transactional handle.
func (s *Store) Conn() dbx.DBTX {
	return &handle{store: s}
}

// WithTx runs fn exclusively. Changes made by fn are discarded when it
// returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(ctx, &handle{store: s, tx: true})
}

func (s *Store) restore(d data) {
	s.mu.Lock()
	s.data = d
	s.mu.Unlock()
}

// PingContext always succeeds.
func (s *Store) PingContext(ctx context.Context) error {
	return ctx.Err()
}

// RunMigrations is a no-op; the store has no schema.
func (s *Store) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (s *Store) Users(db dbx.DBTX) users.Repository {
	return &userRepo{s: s, tx: s.inTx(db)}
}

func (s *Store) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return &refreshRepo{s: s, tx: s.inTx(db)}
}

func (s *Store) ResetTokens(db dbx.DBTX) resettokens.Repository {
	return &resetRepo{s: s, tx: s.inTx(db)}
}

func (s *Store) inTx(db dbx.DBTX) bool {
	h, ok := db.(*handle)
	return ok && h.tx && h.store == s
}

// acquire locks the data for one repository call.
func (s *Store) acquire(tx bool) func() {
	if tx {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.RLock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.RUnlock()
	}
}
