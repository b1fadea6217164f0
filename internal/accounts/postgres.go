package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/chainledger/internal/model"
)

// PostgresRepository stores accounts in the accounts table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert adds a to the accounts table.
func (r *PostgresRepository) Insert(ctx context.Context, a *model.Account) error {
	query := `
		INSERT INTO accounts (id, code, name, type, parent_id, is_group, subtype, description, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		a.ID, a.Code, a.Name, a.Type, a.ParentID, a.IsGroup, a.Subtype, a.Description, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// List returns every account ordered so that parents precede children.
func (r *PostgresRepository) List(ctx context.Context) ([]*model.Account, error) {
	query := `
		SELECT id, code, name, type, COALESCE(parent_id, ''), is_group, subtype, description, created_at
		FROM accounts
		ORDER BY created_at, code`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsGroup, &a.Subtype, &a.Description, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
