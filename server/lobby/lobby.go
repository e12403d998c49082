// Package lobby gathers players per variant and hands off a full,
// all-ready complement exactly once.
package lobby

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	funk "github.com/thoas/go-funk"

	"dealer/server/engine"
)

var (
	ErrLobbyFull       = errors.New("lobby: full")
	ErrVariantMismatch = errors.New("lobby: variant mismatch")
	ErrNotInLobby      = errors.New("lobby: not a member")

	errDissolved = errors.New("lobby: dissolved")
)

type Member struct {
	Username string
	Chips    int
	Ready    bool
}

type Snapshot struct {
	Variant engine.Variant
	Members []string
	Ready   []string
	Target  int
}

// Handoff receives the dissolved lobby's members. Called exactly once
// per lobby, never under a lock.
type Handoff func(v engine.Variant, members []Member)

type Manager struct {
	log     logrus.FieldLogger
	target  int
	allowed engine.Variant // "" allows every variant
	handoff Handoff

	mu      sync.Mutex
	lobbies map[engine.Variant]*lobby
	byUser  map[string]engine.Variant
}

func NewManager(target int, allowed engine.Variant, handoff Handoff, log logrus.FieldLogger) *Manager {
	return &Manager{
		log:     log,
		target:  target,
		allowed: allowed,
		handoff: handoff,
		lobbies: map[engine.Variant]*lobby{},
		byUser:  map[string]engine.Variant{},
	}
}

// Join puts username in the forming lobby for v. Joining the lobby you
// already wait in is a no-op; waiting in a different one is an error.
func (m *Manager) Join(username string, chips int, v engine.Variant) (Snapshot, error) {
	for {
		m.mu.Lock()
		if cur, ok := m.byUser[username]; ok {
			l := m.lobbies[cur]
			m.mu.Unlock()
			if cur != v {
				return Snapshot{}, ErrVariantMismatch
			}
			return l.snapshot(), nil
		}
		if m.allowed != "" && v != m.allowed {
			m.mu.Unlock()
			return Snapshot{}, ErrVariantMismatch
		}
		l, ok := m.lobbies[v]
		if !ok {
			l = &lobby{variant: v, target: m.target}
			m.lobbies[v] = l
		}
		m.mu.Unlock()

		snap, err := l.join(username, chips)
		if errors.Is(err, errDissolved) {
			continue // raced a dissolution, a fresh lobby will form
		}
		if err != nil {
			return Snapshot{}, err
		}
		m.mu.Lock()
		m.byUser[username] = v
		m.mu.Unlock()
		m.log.WithFields(logrus.Fields{"user": username, "variant": v}).Info("joined lobby")
		return snap, nil
	}
}

// MarkReady flags username ready. When that completes the lobby, the
// handoff fires once and the lobby is replaced.
func (m *Manager) MarkReady(username string) (Snapshot, error) {
	m.mu.Lock()
	v, ok := m.byUser[username]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, ErrNotInLobby
	}
	l := m.lobbies[v]
	m.mu.Unlock()
	if l == nil {
		return Snapshot{}, ErrNotInLobby
	}

	snap, complete, err := l.ready(username)
	if errors.Is(err, errDissolved) {
		return Snapshot{}, ErrNotInLobby
	}
	if err != nil {
		return Snapshot{}, err
	}
	if complete == nil {
		return snap, nil
	}

	m.mu.Lock()
	if m.lobbies[v] == l {
		delete(m.lobbies, v)
	}
	for _, mem := range complete {
		delete(m.byUser, mem.Username)
	}
	m.mu.Unlock()
	m.log.WithFields(logrus.Fields{"variant": v, "players": len(complete)}).Info("lobby complete")
	m.handoff(v, complete)
	return snap, nil
}

// Leave removes username from their lobby, if any. Reports whether a
// lobby changed so the caller can re-broadcast it.
func (m *Manager) Leave(username string) (Snapshot, bool) {
	m.mu.Lock()
	v, ok := m.byUser[username]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, false
	}
	delete(m.byUser, username)
	l := m.lobbies[v]
	m.mu.Unlock()
	if l == nil {
		return Snapshot{}, false
	}
	return l.leave(username)
}

// Waiting reports the variant username is queued for.
func (m *Manager) Waiting(username string) (engine.Variant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byUser[username]
	return v, ok
}

type lobby struct {
	mu        sync.Mutex
	variant   engine.Variant
	target    int
	members   []*Member
	dissolved bool
}

func (l *lobby) names() []string {
	return funk.Map(l.members, func(m *Member) string { return m.Username }).([]string)
}

func (l *lobby) snapshotLocked() Snapshot {
	ready := funk.Map(
		funk.Filter(l.members, func(m *Member) bool { return m.Ready }).([]*Member),
		func(m *Member) string { return m.Username },
	).([]string)
	return Snapshot{Variant: l.variant, Members: l.names(), Ready: ready, Target: l.target}
}

func (l *lobby) snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *lobby) join(username string, chips int) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dissolved {
		return Snapshot{}, errDissolved
	}
	if funk.Contains(l.names(), username) {
		return l.snapshotLocked(), nil
	}
	if len(l.members) >= l.target {
		return Snapshot{}, ErrLobbyFull
	}
	l.members = append(l.members, &Member{Username: username, Chips: chips})
	return l.snapshotLocked(), nil
}

// ready returns the full member list exactly once, on the call that
// completes the lobby.
func (l *lobby) ready(username string) (Snapshot, []Member, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dissolved {
		return Snapshot{}, nil, errDissolved
	}
	var mem *Member
	for _, m := range l.members {
		if m.Username == username {
			mem = m
			break
		}
	}
	if mem == nil {
		return Snapshot{}, nil, ErrNotInLobby
	}
	mem.Ready = true

	allReady := len(l.members) == l.target
	for _, m := range l.members {
		allReady = allReady && m.Ready
	}
	if allReady {
		l.dissolved = true
		out := make([]Member, len(l.members))
		for i, m := range l.members {
			out[i] = *m
		}
		return l.snapshotLocked(), out, nil
	}
	return l.snapshotLocked(), nil, nil
}

func (l *lobby) leave(username string) (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dissolved {
		return Snapshot{}, false
	}
	for i, m := range l.members {
		if m.Username == username {
			l.members = append(l.members[:i], l.members[i+1:]...)
			// composition changed, everyone re-confirms
			for _, rest := range l.members {
				rest.Ready = false
			}
			return l.snapshotLocked(), true
		}
	}
	return Snapshot{}, false
}
