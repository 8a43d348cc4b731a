package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/transcaribe/tracking_core/internal/models"
)

// CreateIrregularity stores a new community report with zeroed counters
func (s *Store) CreateIrregularity(ctx context.Context, irr models.Irregularity) (models.Irregularity, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO irregularity (title, description, location, active, likes, dislikes)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, true, 0, 0)
		RETURNING id, created_at
	`, irr.Title, irr.Description, irr.Location.Lon, irr.Location.Lat).Scan(&irr.ID, &irr.CreatedAt)
	if err != nil {
		return models.Irregularity{}, fmt.Errorf("failed to insert irregularity: %w", err)
	}
	irr.Active = true
	return irr, nil
}

// IrregularityByID returns one irregularity, or ErrNotFound
func (s *Store) IrregularityByID(ctx context.Context, id int64) (models.Irregularity, error) {
	row := s.pool.QueryRow(ctx, irregularitySelect+" WHERE id = $1", id)
	irr, err := scanIrregularity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Irregularity{}, ErrNotFound
	}
	return irr, err
}

// ActiveIrregularities lists every irregularity still marked active
func (s *Store) ActiveIrregularities(ctx context.Context) ([]models.Irregularity, error) {
	rows, err := s.pool.Query(ctx, irregularitySelect+" WHERE active ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to load irregularities: %w", err)
	}
	defer rows.Close()

	var result []models.Irregularity
	for rows.Next() {
		irr, err := scanIrregularity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, irr)
	}
	return result, rows.Err()
}

const irregularitySelect = `
	SELECT id, title, description, ST_Y(location::geometry), ST_X(location::geometry),
	       active, likes, dislikes, created_at, last_like_at
	FROM irregularity
`

func scanIrregularity(row pgx.Row) (models.Irregularity, error) {
	var irr models.Irregularity
	err := row.Scan(&irr.ID, &irr.Title, &irr.Description, &irr.Location.Lat, &irr.Location.Lon,
		&irr.Active, &irr.Likes, &irr.Dislikes, &irr.CreatedAt, &irr.LastLikeAt)
	if err != nil {
		return models.Irregularity{}, err
	}
	return irr, nil
}

// Vote records the rider's like/dislike on an irregularity. A second vote in
// the opposite direction toggles the existing one; a second vote in the same
// direction returns ErrConflict. Counters are adjusted in the same
// transaction to keep the tally invariant.
func (s *Store) Vote(ctx context.Context, userID, irregularityID int64, isLike bool) (models.IrregularityVote, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.IrregularityVote{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM irregularity WHERE id = $1)`, irregularityID).Scan(&exists); err != nil {
		return models.IrregularityVote{}, fmt.Errorf("failed to check irregularity: %w", err)
	}
	if !exists {
		return models.IrregularityVote{}, ErrNotFound
	}

	var vote models.IrregularityVote
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, irregularity_id, is_like, created_at
		FROM irregularity_vote
		WHERE user_id = $1 AND irregularity_id = $2
		FOR UPDATE
	`, userID, irregularityID).Scan(&vote.ID, &vote.UserID, &vote.IrregularityID, &vote.IsLike, &vote.CreatedAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First vote
		err = tx.QueryRow(ctx, `
			INSERT INTO irregularity_vote (user_id, irregularity_id, is_like)
			VALUES ($1, $2, $3)
			RETURNING id, created_at
		`, userID, irregularityID, isLike).Scan(&vote.ID, &vote.CreatedAt)
		if err != nil {
			return models.IrregularityVote{}, fmt.Errorf("failed to insert vote: %w", err)
		}
		vote.UserID = userID
		vote.IrregularityID = irregularityID
		vote.IsLike = isLike

		if err := adjustCounters(ctx, tx, irregularityID, isLike, false); err != nil {
			return models.IrregularityVote{}, err
		}
	case err != nil:
		return models.IrregularityVote{}, fmt.Errorf("failed to load vote: %w", err)
	case vote.IsLike == isLike:
		return models.IrregularityVote{}, ErrConflict
	default:
		// Toggle the existing vote
		_, err = tx.Exec(ctx, `
			UPDATE irregularity_vote SET is_like = $1, created_at = NOW() WHERE id = $2
		`, isLike, vote.ID)
		if err != nil {
			return models.IrregularityVote{}, fmt.Errorf("failed to toggle vote: %w", err)
		}
		vote.IsLike = isLike

		if err := adjustCounters(ctx, tx, irregularityID, isLike, true); err != nil {
			return models.IrregularityVote{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.IrregularityVote{}, fmt.Errorf("failed to commit vote: %w", err)
	}
	return vote, nil
}

// adjustCounters bumps the like/dislike tally. toggled means the opposite
// counter must be decremented as well. last_like_at only moves on likes.
func adjustCounters(ctx context.Context, tx pgx.Tx, irregularityID int64, isLike, toggled bool) error {
	var query string
	switch {
	case isLike && toggled:
		query = `UPDATE irregularity SET likes = likes + 1, dislikes = dislikes - 1, last_like_at = NOW() WHERE id = $1`
	case isLike:
		query = `UPDATE irregularity SET likes = likes + 1, last_like_at = NOW() WHERE id = $1`
	case toggled:
		query = `UPDATE irregularity SET dislikes = dislikes + 1, likes = likes - 1 WHERE id = $1`
	default:
		query = `UPDATE irregularity SET dislikes = dislikes + 1 WHERE id = $1`
	}
	if _, err := tx.Exec(ctx, query, irregularityID); err != nil {
		return fmt.Errorf("failed to adjust counters: %w", err)
	}
	return nil
}
