package comms

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dealer/server/card"
	"dealer/server/engine"
	"dealer/server/lobby"
	"dealer/server/protocol"
	"dealer/server/rating"
	"dealer/server/session"
	"dealer/server/store"
)

const (
	storeTimeout = 5 * time.Second
	eloK         = 24.0
)

// Config sizes the tables and forced bets served by one process.
type Config struct {
	Addr          string
	TableSize     int
	Variant       engine.Variant // "" serves every variant
	StartingStack int
	Game          engine.Config
	TurnTimeout   time.Duration
	ReadyTimeout  time.Duration
	RetryInterval time.Duration
}

// Server accepts connections and routes client commands to the lobby
// manager, the player's table, or the store.
type Server struct {
	log logrus.FieldLogger
	cfg Config

	gw      store.Gateway
	rq      *store.RetryQueue
	reg     *session.Registry
	lobbies *lobby.Manager

	mu      sync.Mutex
	ln      net.Listener
	tables  map[string]*engine.Table
	conns   map[*client]struct{}
	closing bool
}

func NewServer(cfg Config, gw store.Gateway, log logrus.FieldLogger) *Server {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	s := &Server{
		log:    log,
		cfg:    cfg,
		gw:     gw,
		rq:     store.NewRetryQueue(gw, log, cfg.RetryInterval),
		reg:    session.NewRegistry(log),
		tables: map[string]*engine.Table{},
		conns:  map[*client]struct{}{},
	}
	s.lobbies = lobby.NewManager(cfg.TableSize, cfg.Variant, s.startTable, log)
	return s
}

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.rq.Start()
	s.log.WithField("addr", ln.Addr().String()).Info("listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting, drops every connection and flushes pending
// hand records.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closing = true
	ln := s.ln
	conns := make([]*client, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.rq.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	s.rq.Flush(ctx)
	return nil
}

// Registry exposes the session registry to the admin API.
func (s *Server) Registry() *session.Registry { return s.reg }

func (s *Server) handleConn(conn net.Conn) {
	c := newClient(conn, s.log)
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		_ = c.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		s.dropSession(c)
	}()

	br := bufio.NewReader(conn)
	for {
		raw, err := ReadFrame(br)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				_ = c.Send(protocol.NewError(protocol.ErrKindProtocolViolation, "frame too large"))
			}
			return
		}
		req, err := protocol.Decode(raw)
		if err != nil {
			// a peer that can't frame valid JSON gets no further trust
			_ = c.Send(protocol.NewError(protocol.ErrKindProtocolViolation, "malformed request"))
			return
		}
		s.dispatch(c, req)
	}
}

// dropSession tears down whatever the closing connection's player was
// doing. A superseded connection no longer owns its session and falls
// through the Unbind no-op.
func (s *Server) dropSession(c *client) {
	p, ok := s.reg.Unbind(c)
	if !ok {
		return
	}
	s.log.WithField("user", p.Username).Info("session closed")
	switch p.Location {
	case session.LocationLobby:
		if snap, changed := s.lobbies.Leave(p.Username); changed {
			s.broadcastLobby(snap)
		}
	case session.LocationTable:
		if t := s.tableByID(p.TableID); t != nil {
			t.Disconnect(p.Username)
		}
	}
}

func (s *Server) dispatch(c *client, req protocol.Request) {
	switch req.Command {
	case protocol.CmdRegister:
		s.handleRegister(c, req)
	case protocol.CmdLogin:
		s.handleLogin(c, req)
	default:
	}

	username, ok := s.reg.Username(c)
	if !ok {
		if req.Command != protocol.CmdRegister && req.Command != protocol.CmdLogin {
			_ = c.Send(protocol.NewError(protocol.ErrKindAuthFailed, "login first"))
		}
		return
	}

	switch req.Command {
	case protocol.CmdRegister, protocol.CmdLogin:
	case protocol.CmdJoinLobby:
		s.handleJoinLobby(c, username, req)
	case protocol.CmdReady:
		s.handleReady(c, username)
	case protocol.CmdAction:
		s.handleAction(c, username, req)
	case protocol.CmdDraw:
		s.handleDraw(c, username, req)
	case protocol.CmdStatsQuery:
		s.handleStats(c, username, req)
	case protocol.CmdSpectate:
		s.handleSpectate(c)
	default:
		_ = c.Send(protocol.NewError(protocol.ErrKindProtocolViolation, "unknown command"))
	}
}

func (s *Server) handleRegister(c *client, req protocol.Request) {
	if req.Username == "" || req.Password == "" {
		_ = c.Send(protocol.NewError(protocol.ErrKindProtocolViolation, "username and password required"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.gw.CreatePlayer(ctx, req.Username, req.Password); err != nil {
		_ = c.Send(protocol.NewError(errKind(err), err.Error()))
		return
	}
	s.bind(c, req.Username)
}

func (s *Server) handleLogin(c *client, req protocol.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.gw.Authenticate(ctx, req.Username, req.Password); err != nil {
		_ = c.Send(protocol.NewError(errKind(err), "invalid credentials"))
		return
	}
	s.bind(c, req.Username)
}

func (s *Server) bind(c *client, username string) {
	p, old := s.reg.Bind(username, c, s.cfg.StartingStack)
	if old != nil {
		_ = old.Send(protocol.NewError(protocol.ErrKindAuthFailed, "logged in elsewhere"))
		_ = old.Close()
	}
	s.log.WithField("user", username).Info("authenticated")
	_ = c.Send(protocol.AuthResult{Type: protocol.TypeAuthResult, OK: true, Username: p.Username})
}

func (s *Server) handleJoinLobby(c *client, username string, req protocol.Request) {
	p, _ := s.reg.Lookup(username)
	if p.Location == session.LocationTable {
		_ = c.Send(protocol.NewError(protocol.ErrKindProtocolViolation, "already seated at a table"))
		return
	}
	if p.Chips <= 0 {
		_ = c.Send(protocol.NewError(protocol.ErrKindProtocolViolation, "no chips left to play"))
		return
	}
	v, err := engine.ParseVariant(req.Variant)
	if err != nil {
		_ = c.Send(protocol.NewError(protocol.ErrKindVariantMismatch, err.Error()))
		return
	}
	snap, err := s.lobbies.Join(username, p.Chips, v)
	if err != nil {
		_ = c.Send(protocol.NewError(errKind(err), err.Error()))
		return
	}
	s.reg.SetLocation(username, session.LocationLobby, "")
	s.broadcastLobby(snap)
}

func (s *Server) handleReady(c *client, username string) {
	p, _ := s.reg.Lookup(username)
	switch p.Location {
	case session.LocationLobby:
		snap, err := s.lobbies.MarkReady(username)
		if err != nil {
			_ = c.Send(protocol.NewError(errKind(err), err.Error()))
			return
		}
		// members of a dissolved lobby already moved to the table
		if _, waiting := s.lobbies.Waiting(username); waiting {
			s.broadcastLobby(snap)
		}
	case session.LocationTable:
		if t := s.tableByID(p.TableID); t != nil {
			t.Confirm(username)
		}
	default:
		_ = c.Send(protocol.NewError(protocol.ErrKindProtocolViolation, "not in a lobby"))
	}
}

func (s *Server) handleAction(c *client, username string, req protocol.Request) {
	p, _ := s.reg.Lookup(username)
	t := s.tableByID(p.TableID)
	if p.Location != session.LocationTable || t == nil {
		_ = c.Send(protocol.NewError(protocol.ErrKindNotYourTurn, "not at a table"))
		return
	}
	var kind engine.ActionKind
	switch req.Action {
	case protocol.ActFold:
		kind = engine.Fold
	case protocol.ActCheck:
		kind = engine.Check
	case protocol.ActCall:
		kind = engine.Call
	case protocol.ActRaise:
		kind = engine.Raise
	default:
		_ = c.Send(protocol.NewError(protocol.ErrKindProtocolViolation, "unknown action"))
		return
	}
	if err := t.SubmitAction(username, kind, req.Amount); err != nil {
		_ = c.Send(protocol.NewError(errKind(err), err.Error()))
	}
}

func (s *Server) handleDraw(c *client, username string, req protocol.Request) {
	p, _ := s.reg.Lookup(username)
	t := s.tableByID(p.TableID)
	if p.Location != session.LocationTable || t == nil {
		_ = c.Send(protocol.NewError(protocol.ErrKindNotYourTurn, "not at a table"))
		return
	}
	if err := t.SubmitDraw(username, req.Indices); err != nil {
		_ = c.Send(protocol.NewError(errKind(err), err.Error()))
	}
}

func (s *Server) handleStats(c *client, username string, req protocol.Request) {
	target := req.Username
	if target == "" {
		target = username
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	st, err := s.gw.Stats(ctx, target)
	if err != nil {
		_ = c.Send(protocol.NewError(errKind(err), err.Error()))
		return
	}
	_ = c.Send(protocol.StatsResult{
		Type:        protocol.TypeStatsResult,
		Username:    st.Username,
		Wins:        st.Wins,
		Losses:      st.Losses,
		GamesPlayed: st.GamesPlayed,
		MoneyWon:    st.MoneyWon,
		MoneyLost:   st.MoneyLost,
		Elo:         st.Elo,
	})
}

func (s *Server) handleSpectate(c *client) {
	_ = c.Send(protocol.SpectateState{Type: protocol.TypeSpectateState, Tables: s.Snapshots()})
}

// Snapshots lists the public view of every live table.
func (s *Server) Snapshots() []protocol.SpectateTable {
	s.mu.Lock()
	tables := make([]*engine.Table, 0, len(s.tables))
	for _, t := range s.tables {
		tables = append(tables, t)
	}
	s.mu.Unlock()
	out := []protocol.SpectateTable{}
	for _, t := range tables {
		if snap, ok := t.Snapshot(); ok {
			out = append(out, snap)
		}
	}
	return out
}

func (s *Server) tableByID(id string) *engine.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[id]
}

func (s *Server) broadcastLobby(snap lobby.Snapshot) {
	update := protocol.LobbyUpdate{
		Type:    protocol.TypeLobbyUpdate,
		Variant: string(snap.Variant),
		Members: snap.Members,
		Ready:   snap.Ready,
		Target:  snap.Target,
	}
	for _, u := range snap.Members {
		_ = s.reg.Send(u, update)
	}
}

// tableMessenger narrows registry delivery to one table's seats.
type tableMessenger struct {
	reg   *session.Registry
	names []string
}

func (m *tableMessenger) Unicast(username string, v any) { _ = m.reg.Send(username, v) }

func (m *tableMessenger) Broadcast(v any) {
	for _, u := range m.names {
		_ = m.reg.Send(u, v)
	}
}

// startTable is the lobby handoff: seat the complement and run the
// confirm-deal-settle cycle.
func (s *Server) startTable(v engine.Variant, members []lobby.Member) {
	players := make([]engine.TablePlayer, len(members))
	for i, m := range members {
		players[i] = engine.TablePlayer{Username: m.Username, Chips: m.Chips}
	}
	msgr := &tableMessenger{reg: s.reg}
	t := engine.NewTable(v, engine.TableConfig{
		Config:       s.cfg.Game,
		TurnTimeout:  s.cfg.TurnTimeout,
		ReadyTimeout: s.cfg.ReadyTimeout,
	}, players, msgr, s.log, s.finishTable)
	msgr.names = t.Usernames()

	s.mu.Lock()
	s.tables[t.ID] = t
	s.mu.Unlock()
	for _, m := range members {
		s.reg.SetLocation(m.Username, session.LocationTable, t.ID)
	}
	t.Start()
}

// finishTable settles a hand back into sessions and storage: stacks
// update, ratings move, the record persists, and funded players who
// are still connected requeue for the next hand.
func (s *Server) finishTable(t *engine.Table, res *engine.Result) {
	s.mu.Lock()
	delete(s.tables, t.ID)
	s.mu.Unlock()

	if !res.Aborted {
		s.persist(res)
	}

	for _, seat := range res.Seats {
		s.reg.SetChips(seat.Username, seat.Stack)
		if _, connected := s.reg.Lookup(seat.Username); !connected {
			continue
		}
		if seat.Stack <= 0 {
			s.log.WithField("user", seat.Username).Info("busted, back to idle")
			s.reg.SetLocation(seat.Username, session.LocationIdle, "")
			continue
		}
		snap, err := s.lobbies.Join(seat.Username, seat.Stack, res.Variant)
		if err != nil {
			s.reg.SetLocation(seat.Username, session.LocationIdle, "")
			continue
		}
		s.reg.SetLocation(seat.Username, session.LocationLobby, "")
		s.broadcastLobby(snap)
	}
}

func (s *Server) persist(res *engine.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	in := make([]rating.Player, len(res.Seats))
	for i, seat := range res.Seats {
		elo := 1000.0
		if st, err := s.gw.Stats(ctx, seat.Username); err == nil {
			elo = st.Elo
		}
		in[i] = rating.Player{Rating: elo, Net: seat.Net}
	}
	deltas := rating.Deltas(in, res.Pot, s.cfg.Game.BB, eloK)

	rec := store.HandRecord{
		HandID:  res.HandID,
		Variant: string(res.Variant),
		Pot:     res.Pot,
		Board:   card.Codes(res.Community),
		Winners: res.Winners,
	}
	for i, seat := range res.Seats {
		rec.Players = append(rec.Players, store.HandPlayerRecord{
			Username: seat.Username,
			Seat:     seat.Seat,
			Net:      seat.Net,
			Rank:     seat.Rank,
			Folded:   seat.Folded,
			Won:      seat.Won,
			Elo:      in[i].Rating + deltas[i],
		})
	}
	s.rq.Record(ctx, rec)
}

func errKind(err error) string {
	switch {
	case errors.Is(err, store.ErrUsernameTaken):
		return protocol.ErrKindUsernameTaken
	case errors.Is(err, store.ErrNoSuchPlayer), errors.Is(err, store.ErrBadPassword):
		return protocol.ErrKindAuthFailed
	case errors.Is(err, lobby.ErrLobbyFull):
		return protocol.ErrKindLobbyFull
	case errors.Is(err, lobby.ErrVariantMismatch), errors.Is(err, lobby.ErrNotInLobby):
		return protocol.ErrKindVariantMismatch
	case errors.Is(err, engine.ErrNotYourTurn):
		return protocol.ErrKindNotYourTurn
	case errors.Is(err, engine.ErrIllegalAction):
		return protocol.ErrKindIllegalAction
	}
	return protocol.ErrKindInternal
}
