package engine

import (
	"errors"
	"fmt"
	"sort"

	"dealer/server/card"
)

var (
	ErrNotYourTurn   = errors.New("not your turn")
	ErrIllegalAction = errors.New("illegal action")
)

type HandPlayer struct {
	Username     string
	Seat         int
	Stack        int
	Committed    int  // this betting round
	Contributed  int  // whole hand
	Cards        []card.Card
	FaceUp       []bool // parallel to Cards
	Folded       bool
	AllIn        bool
	Disconnected bool
	acted        bool
}

func (p *HandPlayer) canAct() bool { return !p.Folded && !p.AllIn }

// downCards returns the cards only the owner may see.
func (p *HandPlayer) downCards() []card.Card {
	out := make([]card.Card, 0, len(p.Cards))
	for i, c := range p.Cards {
		if !p.FaceUp[i] {
			out = append(out, c)
		}
	}
	return out
}

func (p *HandPlayer) upCards() []card.Card {
	out := []card.Card{}
	for i, c := range p.Cards {
		if p.FaceUp[i] {
			out = append(out, c)
		}
	}
	return out
}

// Hand is one complete hand of poker as a pure state machine: callers
// feed actions in, it never blocks or spawns goroutines. Table owns
// the locking and the clock.
type Hand struct {
	ID        string
	Variant   Variant
	Cfg       Config
	Players   []*HandPlayer
	Deck      *card.Deck
	Community []card.Card
	Pot       int
	CurBet    int
	MinRaise  int
	History   []Action

	phases   []phase
	phaseIdx int
	street   string
	toAct    int // index into Players, -1 when no action pending
	drawAt   int // index into Players during the draw phase, -1 otherwise
	done     bool
	aborted  bool
	result   *Result
}

// NewHand posts the forced bets, runs the opening deal and stops at the
// first decision point. Seat 0 posts the small blind in hold'em.
func NewHand(id string, v Variant, cfg Config, players []*HandPlayer, deck *card.Deck) (*Hand, error) {
	if len(players) < 2 || len(players) > 6 {
		return nil, fmt.Errorf("hand needs 2-6 players, got %d", len(players))
	}
	h := &Hand{
		ID:       id,
		Variant:  v,
		Cfg:      cfg,
		Players:  players,
		Deck:     deck,
		phases:   v.phases(),
		phaseIdx: -1,
		toAct:    -1,
		drawAt:   -1,
	}
	if h.phases == nil {
		return nil, fmt.Errorf("unknown variant %q", v)
	}
	for i, p := range players {
		p.Seat = i
	}
	if v == TexasHoldem {
		h.bet(players[0], cfg.SB)
		h.bet(players[1], cfg.BB)
	} else {
		for _, p := range players {
			h.ante(p, cfg.Ante)
		}
	}
	if err := h.advance(); err != nil {
		return nil, err
	}
	return h, nil
}

// ante takes chips without opening a live bet.
func (h *Hand) ante(p *HandPlayer, amt int) {
	if amt >= p.Stack {
		amt = p.Stack
		p.AllIn = true
	}
	p.Stack -= amt
	p.Contributed += amt
	h.Pot += amt
}

func (h *Hand) bet(p *HandPlayer, amt int) {
	if amt >= p.Stack {
		amt = p.Stack
		p.AllIn = true
	}
	p.Stack -= amt
	p.Committed += amt
	p.Contributed += amt
	if p.Committed > h.CurBet {
		h.CurBet = p.Committed
	}
	h.Pot += amt
}

func (h *Hand) remaining() []*HandPlayer {
	out := []*HandPlayer{}
	for _, p := range h.Players {
		if !p.Folded {
			out = append(out, p)
		}
	}
	return out
}

func (h *Hand) actingCount() int {
	n := 0
	for _, p := range h.Players {
		if p.canAct() {
			n++
		}
	}
	return n
}

// firstFrom returns the index of the first player at or after start (in
// rotation) who can still act, or -1.
func (h *Hand) firstFrom(start int) int {
	n := len(h.Players)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if h.Players[idx].canAct() {
			return idx
		}
	}
	return -1
}

// advance runs the phase script until a decision is pending or the
// hand is over. Deck errors bubble up as structural faults.
func (h *Hand) advance() error {
	for {
		if len(h.remaining()) == 1 {
			h.finishByFold()
			return nil
		}
		h.phaseIdx++
		if h.phaseIdx >= len(h.phases) {
			return h.finishShowdown()
		}
		ph := h.phases[h.phaseIdx]
		switch ph.kind {
		case phaseDeal:
			if err := h.dealPhase(ph); err != nil {
				return err
			}
		case phaseBet:
			if h.actingCount() < 2 {
				continue
			}
			h.openBetting(ph)
			if h.toAct >= 0 {
				return nil
			}
		case phaseDraw:
			// All-in players still swap cards.
			h.street = ph.street
			for _, p := range h.Players {
				p.acted = false
			}
			h.drawAt = h.nextDrawer()
			if h.drawAt >= 0 {
				return nil
			}
		}
	}
}

func (h *Hand) dealPhase(ph phase) error {
	h.street = ph.street
	if ph.burn {
		if err := h.Deck.Burn(); err != nil {
			return err
		}
	}
	if ph.community > 0 {
		cs, err := h.Deck.Deal(ph.community)
		if err != nil {
			return err
		}
		h.Community = append(h.Community, cs...)
	}
	for _, p := range h.Players {
		if p.Folded {
			continue
		}
		for i := 0; i < ph.down; i++ {
			c, err := h.Deck.DealOne()
			if err != nil {
				return err
			}
			p.Cards = append(p.Cards, c)
			p.FaceUp = append(p.FaceUp, false)
		}
		for i := 0; i < ph.up; i++ {
			c, err := h.Deck.DealOne()
			if err != nil {
				return err
			}
			p.Cards = append(p.Cards, c)
			p.FaceUp = append(p.FaceUp, true)
		}
	}
	return nil
}

func (h *Hand) openBetting(ph phase) {
	h.street = ph.street
	h.MinRaise = h.Cfg.BB
	for _, p := range h.Players {
		p.acted = false
	}
	switch {
	case h.Variant == TexasHoldem && ph.street == "preflop":
		// Blinds are live; first action is left of the big blind.
		h.toAct = h.firstFrom(2 % len(h.Players))
	case h.Variant == SevenCardStud && ph.street == "third_street":
		h.toAct = h.bringIn()
	case h.Variant == SevenCardStud:
		h.toAct = h.bestFaceUp()
	default:
		h.toAct = h.firstFrom(0)
	}
}

// bringIn finds the lowest third-street up card; suit order breaks
// rank ties.
func (h *Hand) bringIn() int {
	best := -1
	for i, p := range h.Players {
		if !p.canAct() {
			continue
		}
		c := p.Cards[2]
		if best == -1 {
			best = i
			continue
		}
		b := h.Players[best].Cards[2]
		if c.Rank < b.Rank || (c.Rank == b.Rank && c.SuitIndex() < b.SuitIndex()) {
			best = i
		}
	}
	return best
}

// bestFaceUp picks the strongest exposed partial hand to open later
// stud streets. Ties keep the earliest seat.
func (h *Hand) bestFaceUp() int {
	best := -1
	var bestScore []int
	for i, p := range h.Players {
		if !p.canAct() {
			continue
		}
		score := faceUpScore(p.upCards())
		if best == -1 || lessScore(bestScore, score) {
			best = i
			bestScore = score
		}
	}
	return best
}

// faceUpScore ranks an incomplete exposed hand: multiplicity class
// first (quads, trips, two pair, pair, high card), then card ranks in
// decreasing significance.
func faceUpScore(cs []card.Card) []int {
	counts := map[int]int{}
	for _, c := range cs {
		counts[c.Rank]++
	}
	type group struct{ rank, n int }
	groups := []group{}
	for r, n := range counts {
		groups = append(groups, group{r, n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].n != groups[j].n {
			return groups[i].n > groups[j].n
		}
		return groups[i].rank > groups[j].rank
	})
	class := 0
	switch {
	case len(groups) > 0 && groups[0].n == 4:
		class = 4
	case len(groups) > 0 && groups[0].n == 3:
		class = 3
	case len(groups) > 1 && groups[0].n == 2 && groups[1].n == 2:
		class = 2
	case len(groups) > 0 && groups[0].n == 2:
		class = 1
	}
	score := []int{class}
	for _, g := range groups {
		score = append(score, g.rank)
	}
	return score
}

func lessScore(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func (h *Hand) Done() bool     { return h.done }
func (h *Hand) Aborted() bool  { return h.aborted }
func (h *Hand) Street() string { return h.street }

// Result is non-nil once the hand is done.
func (h *Hand) Result() *Result { return h.result }

func (h *Hand) AwaitingAction() bool { return !h.done && h.toAct >= 0 }
func (h *Hand) AwaitingDraw() bool   { return !h.done && h.drawAt >= 0 }

func (h *Hand) Actor() *HandPlayer {
	if !h.AwaitingAction() {
		return nil
	}
	return h.Players[h.toAct]
}

func (h *Hand) Drawer() *HandPlayer {
	if !h.AwaitingDraw() {
		return nil
	}
	return h.Players[h.drawAt]
}

func (h *Hand) PlayerByName(username string) *HandPlayer {
	for _, p := range h.Players {
		if p.Username == username {
			return p
		}
	}
	return nil
}

func (h *Hand) ToCall() int {
	a := h.Actor()
	if a == nil {
		return 0
	}
	if to := h.CurBet - a.Committed; to > 0 {
		return to
	}
	return 0
}

func (h *Hand) MaxRaiseTo() int {
	a := h.Actor()
	if a == nil {
		return 0
	}
	return a.Committed + a.Stack
}

func (h *Hand) MinRaiseTo() int {
	to := h.CurBet + h.MinRaise
	if max := h.MaxRaiseTo(); to > max {
		to = max
	}
	return to
}

func (h *Hand) Legal() []ActionKind {
	a := h.Actor()
	if a == nil {
		return nil
	}
	// folding is never forced but always allowed
	out := []ActionKind{Fold}
	toCall := h.CurBet - a.Committed
	if toCall <= 0 {
		out = append(out, Check)
	} else {
		out = append(out, Call)
	}
	if h.actingCount() >= 2 && a.Stack > toCall {
		out = append(out, Raise)
	}
	return out
}

// Apply validates and plays one betting action for username. Amount is
// the raise-to total for the round and ignored otherwise.
func (h *Hand) Apply(username string, kind ActionKind, amount int) error {
	return h.apply(username, kind, amount, false)
}

func (h *Hand) apply(username string, kind ActionKind, amount int, auto bool) error {
	a := h.Actor()
	if a == nil {
		return fmt.Errorf("%w: no action pending", ErrNotYourTurn)
	}
	if a.Username != username {
		return fmt.Errorf("%w: waiting on %s", ErrNotYourTurn, a.Username)
	}
	switch kind {
	case Fold:
		a.Folded = true
		h.History = append(h.History, Action{Username: username, Kind: Fold, Auto: auto})
	case Check:
		if h.CurBet-a.Committed != 0 {
			return fmt.Errorf("%w: cannot check facing a bet", ErrIllegalAction)
		}
		h.History = append(h.History, Action{Username: username, Kind: Check, Auto: auto})
	case Call:
		to := h.CurBet - a.Committed
		if to < 0 {
			to = 0
		}
		h.bet(a, to)
		h.History = append(h.History, Action{Username: username, Kind: Call, Amount: to, Auto: auto})
	case Raise:
		max := a.Committed + a.Stack
		if amount > max {
			return fmt.Errorf("%w: raise to %d exceeds stack", ErrIllegalAction, amount)
		}
		if amount <= h.CurBet {
			return fmt.Errorf("%w: raise must exceed current bet %d", ErrIllegalAction, h.CurBet)
		}
		// A short all-in is allowed below the minimum raise.
		if amount < h.CurBet+h.MinRaise && amount != max {
			return fmt.Errorf("%w: min raise to %d", ErrIllegalAction, h.CurBet+h.MinRaise)
		}
		prevCur := h.CurBet
		h.bet(a, amount-a.Committed)
		if amount-prevCur >= h.MinRaise {
			h.MinRaise = amount - prevCur
		}
		for _, p := range h.Players {
			if p != a && p.canAct() {
				p.acted = false
			}
		}
		h.History = append(h.History, Action{Username: username, Kind: Raise, Amount: amount, Auto: auto})
	default:
		return fmt.Errorf("%w: unknown action %q", ErrIllegalAction, kind)
	}
	a.acted = true
	if h.roundDone() {
		h.closeRound()
		return h.advance()
	}
	h.toAct = h.firstFrom(h.toAct + 1)
	if h.toAct == -1 {
		h.closeRound()
		return h.advance()
	}
	return nil
}

func (h *Hand) roundDone() bool {
	if len(h.remaining()) == 1 {
		return true
	}
	for _, p := range h.Players {
		if p.canAct() && (!p.acted || p.Committed < h.CurBet) {
			return false
		}
	}
	return true
}

func (h *Hand) closeRound() {
	for _, p := range h.Players {
		p.Committed = 0
	}
	h.CurBet = 0
	h.toAct = -1
}

// ApplyDraw swaps out the named card positions for username during the
// draw phase. An empty indices list stands pat.
func (h *Hand) ApplyDraw(username string, indices []int) error {
	return h.applyDraw(username, indices, false)
}

func (h *Hand) applyDraw(username string, indices []int, auto bool) error {
	d := h.Drawer()
	if d == nil {
		return fmt.Errorf("%w: no draw pending", ErrNotYourTurn)
	}
	if d.Username != username {
		return fmt.Errorf("%w: waiting on %s", ErrNotYourTurn, d.Username)
	}
	if len(indices) > len(d.Cards) {
		return fmt.Errorf("%w: cannot discard %d cards", ErrIllegalAction, len(indices))
	}
	seen := map[int]bool{}
	for _, idx := range indices {
		if idx < 0 || idx >= len(d.Cards) || seen[idx] {
			return fmt.Errorf("%w: bad discard index %d", ErrIllegalAction, idx)
		}
		seen[idx] = true
	}
	for _, idx := range indices {
		c, err := h.Deck.DealOne()
		if err != nil {
			return err
		}
		d.Cards[idx] = c
	}
	d.acted = true
	h.History = append(h.History, Action{Username: username, Kind: Draw, Amount: len(indices), Auto: auto})
	h.drawAt = h.nextDrawer()
	if h.drawAt == -1 {
		return h.advance()
	}
	return nil
}

// nextDrawer finds the first unfolded seat that has not yet swapped
// this phase.
func (h *Hand) nextDrawer() int {
	for i, p := range h.Players {
		if !p.Folded && !p.acted {
			return i
		}
	}
	return -1
}

// ApplyDefault plays the idle move for whoever is on the clock: check
// when free, fold when facing a bet, stand pat in the draw phase.
func (h *Hand) ApplyDefault() error {
	if a := h.Actor(); a != nil {
		kind := Check
		if h.CurBet-a.Committed > 0 {
			kind = Fold
		}
		return h.apply(a.Username, kind, 0, true)
	}
	if d := h.Drawer(); d != nil {
		return h.applyDraw(d.Username, nil, true)
	}
	return nil
}

// MarkDisconnected flags a player out of contact. Their pending and
// future turns play out via ApplyDefault; their chips stay in the pot.
func (h *Hand) MarkDisconnected(username string) {
	if p := h.PlayerByName(username); p != nil {
		p.Disconnected = true
	}
}

// AutoplayAbsent substitutes default moves while the pending player is
// disconnected.
func (h *Hand) AutoplayAbsent() error {
	for !h.done {
		var pending *HandPlayer
		if a := h.Actor(); a != nil {
			pending = a
		} else if d := h.Drawer(); d != nil {
			pending = d
		}
		if pending == nil || !pending.Disconnected {
			return nil
		}
		if err := h.ApplyDefault(); err != nil {
			return err
		}
	}
	return nil
}

// Abort refunds every contribution and ends the hand. Used when the
// deck runs out or the table hits an internal fault.
func (h *Hand) Abort() {
	for _, p := range h.Players {
		p.Stack += p.Contributed
		p.Contributed = 0
		p.Committed = 0
	}
	h.Pot = 0
	h.toAct = -1
	h.drawAt = -1
	h.done = true
	h.aborted = true
	h.result = &Result{HandID: h.ID, Variant: h.Variant, Aborted: true, Payouts: map[string]int{}, Seats: h.seatResults(nil, nil)}
}

// HistorySince returns actions appended at or after index i.
func (h *Hand) HistorySince(i int) []Action {
	if i >= len(h.History) {
		return nil
	}
	return h.History[i:]
}
