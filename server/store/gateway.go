// Package store persists accounts, lifetime stats and finished hands.
// The Postgres gateway is the real backend; Memory backs tests and
// DB-less runs.
package store

import (
	"context"
	"errors"
)

var (
	ErrUsernameTaken = errors.New("store: username taken")
	ErrNoSuchPlayer  = errors.New("store: no such player")
	ErrBadPassword   = errors.New("store: bad password")
)

type PlayerStats struct {
	Username    string  `json:"username"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	GamesPlayed int     `json:"games_played"`
	MoneyWon    int     `json:"money_won"`
	MoneyLost   int     `json:"money_lost"`
	Elo         float64 `json:"elo"`
}

// HandPlayerRecord is one seat's outcome. Elo is the player's new
// rating after the hand.
type HandPlayerRecord struct {
	Username string
	Seat     int
	Net      int
	Rank     string
	Folded   bool
	Won      bool
	Elo      float64
}

type HandRecord struct {
	HandID  string
	Variant string
	Pot     int
	Board   []string
	Winners []string
	Players []HandPlayerRecord
}

// Gateway is the persistence surface the server talks to. Writes must
// be idempotent per HandID so the retry queue can replay them.
type Gateway interface {
	CreatePlayer(ctx context.Context, username, password string) error
	Authenticate(ctx context.Context, username, password string) error
	RecordHandResult(ctx context.Context, rec HandRecord) error
	Stats(ctx context.Context, username string) (PlayerStats, error)
	Leaderboard(ctx context.Context, limit int) ([]PlayerStats, error)
}
