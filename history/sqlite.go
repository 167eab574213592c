package history

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-manager/types"
	"github.com/saiset-co/sai-manager/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const DefaultPath = "./history.db"

// SqliteStore is the append-only change journal behind the history
// capability. Snapshots are stored as JSON blobs; the (manager, entity_id)
// index serves the per-entity listing the history capability exposes.
type SqliteStore struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	db              *sql.DB
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewSqliteStore(ctx context.Context, logger types.Logger, config *types.HistoryConfig) (types.HistoryStore, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrHistoryIsDisabled
	}

	path := config.Path
	if path == "" {
		path = DefaultPath
	}

	storeCtx, cancel := context.WithCancel(ctx)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to open history database")
	}

	store := &SqliteStore{
		ctx:             storeCtx,
		cancel:          cancel,
		logger:          logger,
		db:              db,
		shutdownTimeout: 10 * time.Second,
	}
	store.state.Store(StateStopped)

	if err := store.initSchema(); err != nil {
		cancel()
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("Failed to close history database during cleanup", zap.Error(closeErr))
		}
		return nil, err
	}

	return store, nil
}

func (s *SqliteStore) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	s.logger.Info("History store started")
	return nil
}

func (s *SqliteStore) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.setState(StateStopped)
		s.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if s.db != nil {
			return s.db.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		select {
		case <-gCtx.Done():
			s.logger.Warn("History store stop timeout")
		default:
			s.logger.Error("Error during history store shutdown", zap.Error(err))
		}
	} else {
		s.logger.Info("History store stopped gracefully")
	}

	return nil
}

func (s *SqliteStore) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *SqliteStore) Append(ctx context.Context, entry types.HistoryEntry) error {
	if entry.EntityID == "" {
		return types.ErrHistoryEntityIDEmpty
	}

	oldValues, err := marshalSnapshot(entry.OldValues)
	if err != nil {
		return types.WrapError(err, "failed to encode old values")
	}
	newValues, err := marshalSnapshot(entry.NewValues)
	if err != nil {
		return types.WrapError(err, "failed to encode new values")
	}

	changedAt := entry.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history (id, manager, entity_id, action, old_values, new_values, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Manager, entry.EntityID, entry.Action, oldValues, newValues, changedAt.Format(time.RFC3339Nano))
	if err != nil {
		return types.Errorf(types.ErrHistoryWriteFailed, "entity: %s, error: %v", entry.EntityID, err)
	}

	return nil
}

func (s *SqliteStore) List(ctx context.Context, manager string, entityID string) ([]types.HistoryEntry, error) {
	if entityID == "" {
		return nil, types.ErrHistoryEntityIDEmpty
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, manager, entity_id, action, old_values, new_values, changed_at
		FROM history
		WHERE manager = ? AND entity_id = ?
		ORDER BY changed_at ASC`,
		manager, entityID)
	if err != nil {
		return nil, types.WrapError(err, "failed to query history")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("Failed to close history rows", zap.Error(closeErr))
		}
	}()

	var entries []types.HistoryEntry
	for rows.Next() {
		var entry types.HistoryEntry
		var oldValues, newValues sql.NullString
		var changedAt string

		if err := rows.Scan(&entry.ID, &entry.Manager, &entry.EntityID, &entry.Action,
			&oldValues, &newValues, &changedAt); err != nil {
			return nil, types.WrapError(err, "failed to scan history row")
		}

		if entry.OldValues, err = unmarshalSnapshot(oldValues); err != nil {
			return nil, types.WrapError(err, "failed to decode old values")
		}
		if entry.NewValues, err = unmarshalSnapshot(newValues); err != nil {
			return nil, types.WrapError(err, "failed to decode new values")
		}

		if parsed, parseErr := time.Parse(time.RFC3339Nano, changedAt); parseErr == nil {
			entry.ChangedAt = parsed
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *SqliteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		manager TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		old_values TEXT,
		new_values TEXT,
		changed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_entity ON history(manager, entity_id);
	CREATE INDEX IF NOT EXISTS idx_history_changed_at ON history(changed_at);
	`

	if _, err := s.db.Exec(query); err != nil {
		return types.WrapError(err, "failed to create history table")
	}

	return nil
}

func (s *SqliteStore) getState() State {
	return s.state.Load().(State)
}

func (s *SqliteStore) setState(newState State) bool {
	return s.state.CompareAndSwap(s.getState(), newState)
}

func (s *SqliteStore) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func marshalSnapshot(values map[string]interface{}) (sql.NullString, error) {
	if values == nil {
		return sql.NullString{}, nil
	}
	data, err := utils.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalSnapshot(raw sql.NullString) (map[string]interface{}, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var values map[string]interface{}
	if err := utils.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil, err
	}
	return values, nil
}
