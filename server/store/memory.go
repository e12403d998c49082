package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Memory is an in-process Gateway with the same semantics as the
// Postgres backend. Stats vanish on restart.
type Memory struct {
	mu      sync.Mutex
	players map[string]*memPlayer
	hands   map[string]HandRecord
}

type memPlayer struct {
	hash  []byte
	stats PlayerStats
}

func NewMemory() *Memory {
	return &Memory{
		players: map[string]*memPlayer{},
		hands:   map[string]HandRecord{},
	}
}

func (m *Memory) CreatePlayer(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[username]; ok {
		return ErrUsernameTaken
	}
	m.players[username] = &memPlayer{
		hash:  hash,
		stats: PlayerStats{Username: username, Elo: 1000},
	}
	return nil
}

func (m *Memory) Authenticate(ctx context.Context, username, password string) error {
	m.mu.Lock()
	p, ok := m.players[username]
	m.mu.Unlock()
	if !ok {
		return ErrNoSuchPlayer
	}
	if bcrypt.CompareHashAndPassword(p.hash, []byte(password)) != nil {
		return ErrBadPassword
	}
	return nil
}

func (m *Memory) RecordHandResult(ctx context.Context, rec HandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hands[rec.HandID]; ok {
		return nil // already recorded
	}
	m.hands[rec.HandID] = rec
	for _, pr := range rec.Players {
		p, ok := m.players[pr.Username]
		if !ok {
			continue
		}
		if pr.Won {
			p.stats.Wins++
		} else {
			p.stats.Losses++
		}
		p.stats.GamesPlayed++
		if pr.Net > 0 {
			p.stats.MoneyWon += pr.Net
		} else {
			p.stats.MoneyLost += -pr.Net
		}
		p.stats.Elo = pr.Elo
	}
	return nil
}

func (m *Memory) Stats(ctx context.Context, username string) (PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[username]
	if !ok {
		return PlayerStats{}, fmt.Errorf("%w: %s", ErrNoSuchPlayer, username)
	}
	return p.stats, nil
}

func (m *Memory) Leaderboard(ctx context.Context, limit int) ([]PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PlayerStats, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p.stats)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Elo != out[j].Elo {
			return out[i].Elo > out[j].Elo
		}
		if out[i].GamesPlayed != out[j].GamesPlayed {
			return out[i].GamesPlayed > out[j].GamesPlayed
		}
		return out[i].Username < out[j].Username
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
