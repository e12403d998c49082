package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

//go:embed schema.sql
var schema embed.FS

type DB struct{ *pgxpool.Pool }

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close()                         { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

func (db *DB) CreatePlayer(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	ct, err := db.Exec(ctx, `
        INSERT INTO players(name, pass_hash)
        VALUES ($1,$2)
        ON CONFLICT (name) DO NOTHING
    `, username, string(hash))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrUsernameTaken
	}
	return nil
}

func (db *DB) Authenticate(ctx context.Context, username, password string) error {
	var hash string
	err := db.QueryRow(ctx, `SELECT pass_hash FROM players WHERE name = $1`, username).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoSuchPlayer
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrBadPassword
	}
	return nil
}

// RecordHandResult writes the hand and folds its outcome into each
// player's career counters. The hand row is the idempotency guard:
// a replayed HandID is a no-op.
func (db *DB) RecordHandResult(ctx context.Context, rec HandRecord) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
        INSERT INTO hands(hand_id, variant, pot, board, winners)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (hand_id) DO NOTHING
    `, rec.HandID, rec.Variant, rec.Pot, rec.Board, rec.Winners)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return nil // already recorded
	}

	for _, p := range rec.Players {
		if _, err := tx.Exec(ctx, `
            INSERT INTO hand_players(hand_id, name, seat, net, rank, folded, won)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
        `, rec.HandID, p.Username, p.Seat, p.Net, p.Rank, p.Folded, p.Won); err != nil {
			return err
		}
		wins, losses := 0, 1
		if p.Won {
			wins, losses = 1, 0
		}
		moneyWon, moneyLost := 0, 0
		if p.Net > 0 {
			moneyWon = p.Net
		} else {
			moneyLost = -p.Net
		}
		if _, err := tx.Exec(ctx, `
            UPDATE players
               SET wins = wins + $2,
                   losses = losses + $3,
                   games_played = games_played + 1,
                   money_won = money_won + $4,
                   money_lost = money_lost + $5,
                   elo = $6
             WHERE name = $1
        `, p.Username, wins, losses, moneyWon, moneyLost, p.Elo); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (db *DB) Stats(ctx context.Context, username string) (PlayerStats, error) {
	var s PlayerStats
	err := db.QueryRow(ctx, `
        SELECT name, wins, losses, games_played, money_won, money_lost, elo
          FROM players WHERE name = $1
    `, username).Scan(&s.Username, &s.Wins, &s.Losses, &s.GamesPlayed, &s.MoneyWon, &s.MoneyLost, &s.Elo)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlayerStats{}, fmt.Errorf("%w: %s", ErrNoSuchPlayer, username)
	}
	return s, err
}

func (db *DB) Leaderboard(ctx context.Context, limit int) ([]PlayerStats, error) {
	rows, err := db.Query(ctx, `
        SELECT name, wins, losses, games_played, money_won, money_lost, elo
          FROM players
         ORDER BY elo DESC, games_played DESC, name
         LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PlayerStats{}
	for rows.Next() {
		var s PlayerStats
		if err := rows.Scan(&s.Username, &s.Wins, &s.Losses, &s.GamesPlayed, &s.MoneyWon, &s.MoneyLost, &s.Elo); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
