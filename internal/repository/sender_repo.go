package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SenderRepository tracks how often each sender has produced signals.
// The count feeds the known-sender heuristic.
type SenderRepository struct {
	db *pgxpool.Pool
}

func NewSenderRepository(db *pgxpool.Pool) *SenderRepository {
	return &SenderRepository{db: db}
}

func (r *SenderRepository) Frequency(ctx context.Context, sender string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT interaction_count FROM sender_stats WHERE sender = $1`,
		sender,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

func (r *SenderRepository) Record(ctx context.Context, sender string) error {
	query := `
        INSERT INTO sender_stats (sender, interaction_count, last_seen_at)
        VALUES ($1, 1, NOW())
        ON CONFLICT (sender) DO UPDATE
        SET interaction_count = sender_stats.interaction_count + 1,
            last_seen_at = NOW()
    `
	_, err := r.db.Exec(ctx, query, sender)
	return err
}
