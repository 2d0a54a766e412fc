package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/arena/internal/models"
)

// ResultStore persists concluded games.
type ResultStore struct {
	q Querier
}

func NewResultStore(q Querier) *ResultStore {
	return &ResultStore{q: q}
}

// RecordResult writes one game_results row and a row per participant in a single transaction.
// winner is SideNone for a draw.
func (s *ResultStore) RecordResult(ctx context.Context, winner models.Side, players []models.PlayerResult, gameType models.GameType) error {
	resultID := uuid.New()
	err := pgx.BeginTxFunc(ctx, s.q, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO game_results (id, game_type, winner_side) VALUES ($1, $2, $3)`,
			resultID, string(gameType), string(winner),
		)
		if err != nil {
			return err
		}
		q := `
			INSERT INTO game_result_players (result_id, user_id, username, side, did_win)
			VALUES ($1, $2, $3, $4, $5)
		`
		for _, p := range players {
			didWin := winner != models.SideNone && p.Side == winner
			if _, err := tx.Exec(ctx, q, resultID, p.UserID, p.Username, string(p.Side), didWin); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record %s result: %w", gameType, err)
	}
	return nil
}

// NopRecorder discards results.
type NopRecorder struct{}

func (NopRecorder) RecordResult(context.Context, models.Side, []models.PlayerResult, models.GameType) error {
	return nil
}
