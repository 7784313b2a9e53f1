package reputation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrProfileNotFound signals the participant does not exist.
var ErrProfileNotFound = errors.New("reputation: profile not found")

// Repository abstracts profile persistence for the service.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	SaveProfile(ctx context.Context, p Profile) error
}

// PGRepository stores reputation columns on the users table.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetProfile reads the reputation state of one participant.
func (r *PGRepository) GetProfile(ctx context.Context, userID string) (Profile, error) {
	const query = `
		SELECT id, truthfulness, fairness, responsiveness, overall, disputes_total, disputes_won
		FROM users
		WHERE id = $1
	`
	var p Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.Score.Truthfulness,
		&p.Score.Fairness,
		&p.Score.Responsiveness,
		&p.Score.Overall,
		&p.Stats.Total,
		&p.Stats.Won,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, fmt.Errorf("reputation: get profile: %w", err)
	}
	return p, nil
}

// SaveProfile writes back updated scores and stats.
func (r *PGRepository) SaveProfile(ctx context.Context, p Profile) error {
	const query = `
		UPDATE users
		SET truthfulness = $2,
		    fairness = $3,
		    responsiveness = $4,
		    overall = $5,
		    disputes_total = $6,
		    disputes_won = $7,
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		p.UserID,
		p.Score.Truthfulness,
		p.Score.Fairness,
		p.Score.Responsiveness,
		p.Score.Overall,
		p.Stats.Total,
		p.Stats.Won,
	)
	if err != nil {
		return fmt.Errorf("reputation: save profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
