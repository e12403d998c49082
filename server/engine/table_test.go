package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealer/server/protocol"

	"github.com/sirupsen/logrus"
)

type prompt struct {
	user   string
	draw   bool
	toCall int
}

// fakeMessenger records broadcasts and feeds prompts to the test loop.
type fakeMessenger struct {
	mu      sync.Mutex
	bcast   []any
	prompts chan prompt
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{prompts: make(chan prompt, 256)}
}

func (m *fakeMessenger) Unicast(user string, v any) {
	switch msg := v.(type) {
	case protocol.ActionRequest:
		m.prompts <- prompt{user: user, toCall: msg.ToCall}
	case protocol.DrawRequest:
		m.prompts <- prompt{user: user, draw: true}
	}
}

func (m *fakeMessenger) Broadcast(v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bcast = append(m.bcast, v)
}

func (m *fakeMessenger) broadcasts() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.bcast...)
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// runCalling answers every prompt with the cheapest continuing move
// until the table settles.
func runCalling(t *testing.T, tbl *Table, m *fakeMessenger, done chan *Result) *Result {
	t.Helper()
	for {
		select {
		case res := <-done:
			return res
		case p := <-m.prompts:
			var err error
			switch {
			case p.draw:
				err = tbl.SubmitDraw(p.user, nil)
			case p.toCall > 0:
				err = tbl.SubmitAction(p.user, Call, 0)
			default:
				err = tbl.SubmitAction(p.user, Check, 0)
			}
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("table stalled")
		}
	}
}

func startTable(v Variant, cfg TableConfig, players []TablePlayer, m *fakeMessenger) (*Table, chan *Result) {
	done := make(chan *Result, 1)
	tbl := NewTable(v, cfg, players, m, testLogger(), func(_ *Table, res *Result) {
		done <- res
	})
	tbl.Start()
	return tbl, done
}

func TestTableRunsHandToCompletion(t *testing.T) {
	for _, v := range []Variant{FiveCardDraw, SevenCardStud, TexasHoldem} {
		m := newFakeMessenger()
		cfg := TableConfig{
			Config:       Config{Ante: 5, SB: 2, BB: 4},
			ReadyTimeout: time.Second,
			Seed:         21,
		}
		players := []TablePlayer{{"alice", 100}, {"bob", 100}, {"carol", 100}}
		tbl, done := startTable(v, cfg, players, m)
		tbl.Confirm("alice")
		tbl.Confirm("bob")
		tbl.Confirm("carol")

		res := runCalling(t, tbl, m, done)
		require.False(t, res.Aborted, "variant %s", v)

		sum := 0
		for _, s := range res.Seats {
			sum += s.Stack
		}
		assert.Equal(t, 300, sum, "variant %s", v)

		sawShowdown := false
		for _, b := range m.broadcasts() {
			if _, ok := b.(protocol.ShowdownResult); ok {
				sawShowdown = true
			}
		}
		assert.True(t, sawShowdown, "variant %s", v)
	}
}

func TestTableRejectsOutOfTurnAction(t *testing.T) {
	m := newFakeMessenger()
	cfg := TableConfig{Config: Config{SB: 2, BB: 4}, ReadyTimeout: time.Second, Seed: 3}
	tbl, _ := startTable(TexasHoldem, cfg, []TablePlayer{{"alice", 100}, {"bob", 100}}, m)
	tbl.Confirm("alice")
	tbl.Confirm("bob")

	// Confirmation completes asynchronously; wait for the first action
	// prompt so the hand is dealt before acting.
	select {
	case <-m.prompts:
	case <-time.After(5 * time.Second):
		t.Fatal("hand never dealt")
	}

	// Heads-up preflop the small blind opens, so bob is out of turn.
	err := tbl.SubmitAction("bob", Check, 0)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	err = tbl.SubmitAction("alice", Raise, 5)
	assert.ErrorIs(t, err, ErrIllegalAction)

	require.NoError(t, tbl.SubmitAction("alice", Call, 0))
}

func TestTableTimesOutSilentPlayers(t *testing.T) {
	m := newFakeMessenger()
	cfg := TableConfig{
		Config:       Config{SB: 2, BB: 4},
		TurnTimeout:  50 * time.Millisecond,
		ReadyTimeout: time.Second,
		Seed:         4,
	}
	_, done := startTable(TexasHoldem, cfg, []TablePlayer{{"alice", 100}, {"bob", 100}}, m)

	// Nobody confirms and nobody acts: the ready group times out, then
	// every turn plays the default, and the hand still settles.
	select {
	case res := <-done:
		require.NotNil(t, res)
		sum := 0
		for _, s := range res.Seats {
			sum += s.Stack
		}
		assert.Equal(t, 200, sum)
	case <-time.After(10 * time.Second):
		t.Fatal("hand never settled")
	}
}

func TestTableDisconnectBeforeDealCountsAsConfirm(t *testing.T) {
	m := newFakeMessenger()
	cfg := TableConfig{Config: Config{SB: 2, BB: 4}, ReadyTimeout: time.Second, Seed: 9}
	tbl, done := startTable(TexasHoldem, cfg, []TablePlayer{{"alice", 100}, {"bob", 100}}, m)
	tbl.Confirm("alice")
	tbl.Disconnect("bob")

	res := runCalling(t, tbl, m, done)
	sum := 0
	for _, s := range res.Seats {
		sum += s.Stack
	}
	assert.Equal(t, 200, sum)
}
