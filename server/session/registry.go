// Package session tracks who is connected and where they are: idle,
// waiting in a lobby, or seated at a table. It owns no game state.
package session

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrNotConnected = errors.New("session: player not connected")

// Sender is the transport handle bound to a session. Implementations
// must not block in Send.
type Sender interface {
	Send(v any) error
	Close() error
}

type Location int

const (
	LocationIdle Location = iota
	LocationLobby
	LocationTable
)

func (l Location) String() string {
	switch l {
	case LocationLobby:
		return "lobby"
	case LocationTable:
		return "table"
	}
	return "idle"
}

// Player is a live session snapshot.
type Player struct {
	Username string
	Chips    int
	Location Location
	TableID  string
}

type entry struct {
	player Player
	conn   Sender
}

// Registry maps usernames to live sessions. A second login for the
// same name supersedes the first: the stale connection is handed back
// to the caller to be closed, and the session (chips, location) stays.
type Registry struct {
	log logrus.FieldLogger

	mu     sync.RWMutex
	byName map[string]*entry
	byConn map[Sender]string
}

func NewRegistry(log logrus.FieldLogger) *Registry {
	return &Registry{
		log:    log,
		byName: map[string]*entry{},
		byConn: map[Sender]string{},
	}
}

// Bind attaches conn to username's session, creating one with
// startChips if none exists. The returned Sender is the superseded
// connection, nil in the common case.
func (r *Registry) Bind(username string, conn Sender, startChips int) (Player, Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[username]
	if !ok {
		e = &entry{player: Player{Username: username, Chips: startChips}}
		r.byName[username] = e
	}
	old := e.conn
	if old != nil {
		delete(r.byConn, old)
		r.log.WithField("user", username).Warn("duplicate login, superseding old connection")
	}
	e.conn = conn
	r.byConn[conn] = username
	return e.player, old
}

// Unbind removes the session owned by conn. A stale superseded
// connection closing later is a no-op.
func (r *Registry) Unbind(conn Sender) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	username, ok := r.byConn[conn]
	if !ok {
		return Player{}, false
	}
	delete(r.byConn, conn)
	e := r.byName[username]
	delete(r.byName, username)
	return e.player, true
}

func (r *Registry) Lookup(username string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[username]
	if !ok {
		return Player{}, false
	}
	return e.player, true
}

// Username resolves the session bound to conn.
func (r *Registry) Username(conn Sender) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byConn[conn]
	return u, ok
}

func (r *Registry) SetLocation(username string, loc Location, tableID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byName[username]; ok {
		e.player.Location = loc
		e.player.TableID = tableID
	}
}

func (r *Registry) SetChips(username string, chips int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byName[username]; ok {
		e.player.Chips = chips
	}
}

// Send delivers v to username's live connection.
func (r *Registry) Send(username string, v any) error {
	r.mu.RLock()
	e, ok := r.byName[username]
	var conn Sender
	if ok {
		conn = e.conn
	}
	r.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(v)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
