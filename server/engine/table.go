package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/weedbox/syncsaga"
	"github.com/weedbox/timebank"

	"dealer/server/card"
	"dealer/server/protocol"
)

// Messenger delivers table messages. Unicast targets one seat,
// Broadcast reaches every seat. Implementations must not block.
type Messenger interface {
	Unicast(username string, v any)
	Broadcast(v any)
}

type TablePlayer struct {
	Username string
	Chips    int
}

type TableConfig struct {
	Config
	TurnTimeout  time.Duration
	ReadyTimeout time.Duration
	Seed         int64 // 0 = random deck
}

// Table runs exactly one hand: confirm, deal, act, showdown, settle.
// All entry points are safe for concurrent use; the embedded Hand is
// only touched under mu.
type Table struct {
	ID      string
	Variant Variant

	log        logrus.FieldLogger
	cfg        TableConfig
	msg        Messenger
	onFinished func(*Table, *Result)

	mu       sync.Mutex
	players  []TablePlayer
	disc     map[string]bool
	hand     *Hand
	rg       *syncsaga.ReadyGroup
	tb       *timebank.TimeBank
	turnSeq  int
	histSent int
	finished bool
}

func NewTable(v Variant, cfg TableConfig, players []TablePlayer, msg Messenger, log logrus.FieldLogger, onFinished func(*Table, *Result)) *Table {
	t := &Table{
		ID:         uuid.NewString(),
		Variant:    v,
		cfg:        cfg,
		msg:        msg,
		onFinished: onFinished,
		players:    players,
		disc:       map[string]bool{},
		tb:         timebank.NewTimeBank(),
	}
	t.log = log.WithField("table", t.ID)
	return t
}

func (t *Table) Usernames() []string {
	names := make([]string, len(t.players))
	for i, p := range t.players {
		names[i] = p.Username
	}
	return names
}

// Start announces the game and collects a confirmation from every
// seat before dealing. Seats that stay silent past ReadyTimeout are
// confirmed for them.
func (t *Table) Start() {
	names := t.Usernames()
	stacks := make([]int, len(t.players))
	for i, p := range t.players {
		stacks[i] = p.Chips
	}
	t.msg.Broadcast(protocol.GameStart{
		Type:    protocol.TypeGameStart,
		TableID: t.ID,
		Variant: string(t.Variant),
		Seats:   names,
		Stacks:  stacks,
	})

	rg := syncsaga.NewReadyGroup(
		syncsaga.WithTimeout(int(t.cfg.ReadyTimeout/time.Second), func(rg *syncsaga.ReadyGroup) {
			for idx, ready := range rg.GetParticipantStates() {
				if !ready {
					rg.Ready(idx)
				}
			}
		}),
		syncsaga.WithCompletedCallback(func(rg *syncsaga.ReadyGroup) {
			t.deal()
		}),
	)
	for i := range t.players {
		rg.Add(int64(i), false)
	}
	t.mu.Lock()
	t.rg = rg
	t.mu.Unlock()
	rg.Start()
	t.log.WithField("players", names).Info("table started")
}

// Confirm marks a seat ready for the deal.
func (t *Table) Confirm(username string) {
	t.mu.Lock()
	rg := t.rg
	idx := t.seatOf(username)
	t.mu.Unlock()
	if rg != nil && idx >= 0 {
		rg.Ready(int64(idx))
	}
}

func (t *Table) seatOf(username string) int {
	for i, p := range t.players {
		if p.Username == username {
			return i
		}
	}
	return -1
}

func (t *Table) deal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hand != nil || t.finished {
		return
	}
	hp := make([]*HandPlayer, len(t.players))
	for i, p := range t.players {
		hp[i] = &HandPlayer{Username: p.Username, Stack: p.Chips, Disconnected: t.disc[p.Username]}
	}
	h, err := NewHand(t.ID, t.Variant, t.cfg.Config, hp, card.NewDeck(t.cfg.Seed))
	if err != nil {
		t.log.WithError(err).Error("deal failed")
		t.msg.Broadcast(protocol.NewError(protocol.ErrKindInternal, "deal failed, hand cancelled"))
		t.finished = true
		seats := make([]SeatResult, len(t.players))
		for i, p := range t.players {
			seats[i] = SeatResult{Username: p.Username, Seat: i, Stack: p.Chips}
		}
		t.finish(&Result{HandID: t.ID, Variant: t.Variant, Aborted: true, Payouts: map[string]int{}, Seats: seats})
		return
	}
	t.hand = h
	t.log.WithFields(logrus.Fields{"variant": t.Variant, "players": len(hp)}).Info("hand dealt")
	t.afterMoveLocked()
}

// SubmitAction plays a betting action for username. Turn and legality
// errors go back to the caller; structural faults abort the hand.
func (t *Table) SubmitAction(username string, kind ActionKind, amount int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hand == nil || t.finished {
		return fmt.Errorf("%w: no hand in progress", ErrNotYourTurn)
	}
	if err := t.hand.Apply(username, kind, amount); err != nil {
		if errors.Is(err, ErrNotYourTurn) || errors.Is(err, ErrIllegalAction) {
			return err
		}
		t.log.WithError(err).Error("hand aborted")
		t.abortLocked()
		return nil
	}
	t.tb.Cancel()
	t.afterMoveLocked()
	return nil
}

// SubmitDraw swaps cards for username in the draw phase.
func (t *Table) SubmitDraw(username string, indices []int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hand == nil || t.finished {
		return fmt.Errorf("%w: no hand in progress", ErrNotYourTurn)
	}
	if err := t.hand.ApplyDraw(username, indices); err != nil {
		if errors.Is(err, ErrNotYourTurn) || errors.Is(err, ErrIllegalAction) {
			return err
		}
		t.log.WithError(err).Error("hand aborted")
		t.abortLocked()
		return nil
	}
	t.tb.Cancel()
	t.afterMoveLocked()
	return nil
}

// Disconnect folds the player out of contact into default play. Before
// the deal it counts as their confirmation.
func (t *Table) Disconnect(username string) {
	t.mu.Lock()
	t.disc[username] = true
	if t.hand == nil {
		rg := t.rg
		idx := t.seatOf(username)
		t.mu.Unlock()
		if rg != nil && idx >= 0 {
			rg.Ready(int64(idx))
		}
		return
	}
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.hand.MarkDisconnected(username)
	pending := ""
	if a := t.hand.Actor(); a != nil {
		pending = a.Username
	} else if d := t.hand.Drawer(); d != nil {
		pending = d.Username
	}
	t.log.WithField("user", username).Warn("player disconnected mid-hand")
	if pending == username {
		t.turnSeq++ // stale timer guard
		t.afterMoveLocked()
	}
}

// afterMoveLocked runs the common tail of every state change: play out
// absent seats, publish what happened, then prompt or settle.
func (t *Table) afterMoveLocked() {
	if err := t.hand.AutoplayAbsent(); err != nil {
		t.log.WithError(err).Error("hand aborted")
		t.abortLocked()
		return
	}
	t.flushHistoryLocked()
	for _, p := range t.players {
		t.msg.Unicast(p.Username, t.hand.View(t.ID, p.Username))
	}
	t.promptLocked()
}

func (t *Table) flushHistoryLocked() {
	for _, a := range t.hand.HistorySince(t.histSent) {
		if a.Kind == Draw {
			t.msg.Broadcast(protocol.DrawUpdate{
				Type:     protocol.TypeDrawUpdate,
				TableID:  t.ID,
				Username: a.Username,
				Discards: a.Amount,
			})
			continue
		}
		t.msg.Broadcast(protocol.ActionUpdate{
			Type:     protocol.TypeActionUpdate,
			TableID:  t.ID,
			Username: a.Username,
			Action:   string(a.Kind),
			Amount:   a.Amount,
			Pot:      t.hand.Pot,
		})
	}
	t.histSent = len(t.hand.History)
}

func (t *Table) promptLocked() {
	if t.hand.Done() {
		t.settleLocked()
		return
	}
	t.turnSeq++
	seq := t.turnSeq
	timeout := t.cfg.TurnTimeout
	if a := t.hand.Actor(); a != nil {
		legal := t.hand.Legal()
		out := make([]string, len(legal))
		for i, k := range legal {
			out[i] = string(k)
		}
		t.msg.Unicast(a.Username, protocol.ActionRequest{
			Type:       protocol.TypeActionRequest,
			TableID:    t.ID,
			Street:     t.hand.Street(),
			ToCall:     t.hand.ToCall(),
			MinRaiseTo: t.hand.MinRaiseTo(),
			MaxRaiseTo: t.hand.MaxRaiseTo(),
			Legal:      out,
			TimeoutSec: int(timeout / time.Second),
		})
		t.armTimer(seq, timeout)
		return
	}
	if d := t.hand.Drawer(); d != nil {
		t.msg.Unicast(d.Username, protocol.DrawRequest{
			Type:       protocol.TypeDrawRequest,
			TableID:    t.ID,
			TimeoutSec: int(timeout / time.Second),
		})
		t.armTimer(seq, timeout)
	}
}

func (t *Table) armTimer(seq int, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	_ = t.tb.NewTask(timeout, func(isCancelled bool) {
		if isCancelled {
			return
		}
		t.expire(seq)
	})
}

func (t *Table) expire(seq int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.hand == nil || seq != t.turnSeq {
		return
	}
	pending := ""
	if a := t.hand.Actor(); a != nil {
		pending = a.Username
	} else if d := t.hand.Drawer(); d != nil {
		pending = d.Username
	}
	t.log.WithField("user", pending).Warn("turn timed out")
	if err := t.hand.ApplyDefault(); err != nil {
		t.log.WithError(err).Error("hand aborted")
		t.abortLocked()
		return
	}
	t.afterMoveLocked()
}

func (t *Table) abortLocked() {
	t.hand.Abort()
	t.msg.Broadcast(protocol.NewError(protocol.ErrKindInternal, "hand aborted, bets returned"))
	t.settleLocked()
}

func (t *Table) settleLocked() {
	if t.finished {
		return
	}
	t.finished = true
	t.turnSeq++
	t.tb.Cancel()
	res := t.hand.Result()
	if !res.Aborted {
		t.flushHistoryLocked()
		t.msg.Broadcast(t.hand.showdownMessage(t.ID))
	}
	t.log.WithFields(logrus.Fields{
		"pot":     res.Pot,
		"winners": res.Winners,
		"aborted": res.Aborted,
	}).Info("hand settled")
	t.finish(res)
}

func (t *Table) finish(res *Result) {
	if t.onFinished != nil {
		// Callback re-enters the coordinator; never hold mu across it.
		go t.onFinished(t, res)
	}
}

// Snapshot is the spectator view, or ok=false when no hand is live.
func (t *Table) Snapshot() (protocol.SpectateTable, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hand == nil || t.finished {
		return protocol.SpectateTable{}, false
	}
	return t.hand.Public(t.ID), true
}
