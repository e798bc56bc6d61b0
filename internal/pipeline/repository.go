package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/andresuchdata/wasteflow/backend-go/internal/repository/postgres"
)

const defaultListLimit = 20

// Repository persists training runs to the training_runs table. Every call
// holds one slot of the pool's semaphore.
type Repository struct {
	db *postgres.DB
}

func NewRepository(db *postgres.DB) *Repository {
	return &Repository{db: db}
}

const runColumns = `id, range_from, range_to, status, ok, observations, row_count, mae, rmse,
	       r_squared, candidate, message, started_at, completed_at, error_message`

func (r *Repository) CreateRun(ctx context.Context, run *TrainingRun) error {
	query := `
		INSERT INTO training_runs (range_from, range_to, status, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.db.Do(ctx, func(q *sqlx.DB) error {
		return q.QueryRowContext(ctx, query, run.From, run.To, run.Status, run.StartedAt).Scan(&run.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to create training run: %w", err)
	}
	return nil
}

// UpdateRun locks the row before writing so a run that was never created
// reports domain.ErrNotFound instead of silently updating nothing.
func (r *Repository) UpdateRun(ctx context.Context, run *TrainingRun) error {
	query := `
		UPDATE training_runs
		SET status = :status, ok = :ok, observations = :observations, row_count = :row_count,
		    mae = :mae, rmse = :rmse, r_squared = :r_squared, candidate = :candidate,
		    message = :message, completed_at = :completed_at, error_message = :error_message
		WHERE id = :id
	`

	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var id int64
		err := tx.GetContext(ctx, &id, `SELECT id FROM training_runs WHERE id = $1 FOR UPDATE`, run.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, query, run)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to update training run %d: %w", run.ID, err)
	}
	return nil
}

func (r *Repository) GetRun(ctx context.Context, id int64) (*TrainingRun, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs WHERE id = $1`

	run := &TrainingRun{}
	err := r.db.Do(ctx, func(q *sqlx.DB) error {
		return q.GetContext(ctx, run, query, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training run %d: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]*TrainingRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + runColumns + `
		FROM training_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1`

	var runs []*TrainingRun
	err := r.db.Do(ctx, func(q *sqlx.DB) error {
		return q.SelectContext(ctx, &runs, query, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}
	return runs, nil
}

// MemoryStore keeps runs in process, for deployments without a database and
// for the CLI.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	runs   map[int64]TrainingRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[int64]TrainingRun)}
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	run.ID = s.nextID
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return domain.ErrNotFound
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id int64) (*TrainingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]*TrainingRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*TrainingRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, &run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
