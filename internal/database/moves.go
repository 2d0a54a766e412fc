package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/arena/internal/models"
)

// InsertMoves appends a batch of move records to move_history. Replayed records are ignored.
func InsertMoves(ctx context.Context, q Querier, batch []models.MoveRecord) error {
	if len(batch) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, q, pgx.TxOptions{}, func(tx pgx.Tx) error {
		stmt := `
			INSERT INTO move_history (room_id, seq, actor_id, side, game_type, payload, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT DO NOTHING
		`
		for _, m := range batch {
			_, err := tx.Exec(ctx, stmt,
				m.RoomID, m.Index, m.ActorID, string(m.Side), string(m.GameType), []byte(m.Payload), m.Timestamp,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert %d moves: %w", len(batch), err)
	}
	return nil
}
