package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neuroshield/neuroshield/automation"
)

// PostgresStore implements Store on PostgreSQL. The actions table is
// provisioned by the deployment's migration tooling, not here.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initializes a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SaveAction(ctx context.Context, a *automation.Action) error {
	params, result, err := encodeMaps(a)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO actions (id, kind, device, parameters, priority, auto_execute, status, created_at, started_at, completed_at, result, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			auto_execute = EXCLUDED.auto_execute,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			result = EXCLUDED.result,
			error_message = EXCLUDED.error_message
	`
	_, err = s.pool.Exec(ctx, query,
		a.ID, string(a.Kind), a.Device, params, a.Priority, a.AutoExecute,
		string(a.Status), a.CreatedAt, a.StartedAt, a.CompletedAt, result, a.ErrorMsg,
	)
	return err
}

func (s *PostgresStore) UpdateAction(ctx context.Context, a *automation.Action) error {
	return s.SaveAction(ctx, a)
}

func (s *PostgresStore) GetAction(ctx context.Context, id string) (*automation.Action, error) {
	query := `
		SELECT id, kind, device, parameters, priority, auto_execute, status, created_at, started_at, completed_at, result, error_message
		FROM actions WHERE id = $1
	`
	a, err := scanAction(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *PostgresStore) ListActions(ctx context.Context, device string, limit int) ([]*automation.Action, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, kind, device, parameters, priority, auto_execute, status, created_at, started_at, completed_at, result, error_message
		FROM actions
		WHERE ($1 = '' OR device = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, device, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*automation.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func encodeMaps(a *automation.Action) (params, result []byte, err error) {
	if a.Parameters != nil {
		if params, err = json.Marshal(a.Parameters); err != nil {
			return nil, nil, err
		}
	}
	if a.Result != nil {
		if result, err = json.Marshal(a.Result); err != nil {
			return nil, nil, err
		}
	}
	return params, result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*automation.Action, error) {
	var (
		a              automation.Action
		kind, status   string
		params, result []byte
	)
	err := row.Scan(&a.ID, &kind, &a.Device, &params, &a.Priority, &a.AutoExecute,
		&status, &a.CreatedAt, &a.StartedAt, &a.CompletedAt, &result, &a.ErrorMsg)
	if err != nil {
		return nil, err
	}
	a.Kind = automation.ActionKind(kind)
	a.Status = automation.ActionStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &a.Parameters); err != nil {
			return nil, err
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &a.Result); err != nil {
			return nil, err
		}
	}
	return &a, nil
}
