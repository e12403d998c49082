package lobby

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealer/server/engine"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestJoinAndReadyDissolvesOnce(t *testing.T) {
	var calls int32
	var got []Member
	m := NewManager(3, "", func(v engine.Variant, members []Member) {
		atomic.AddInt32(&calls, 1)
		got = members
	}, testLogger())

	for i := 0; i < 3; i++ {
		snap, err := m.Join(fmt.Sprintf("p%d", i), 100, engine.TexasHoldem)
		require.NoError(t, err)
		assert.Len(t, snap.Members, i+1)
	}

	_, err := m.Join("p3", 100, engine.TexasHoldem)
	assert.ErrorIs(t, err, ErrLobbyFull)

	for i := 0; i < 3; i++ {
		_, err := m.MarkReady(fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Len(t, got, 3)
	assert.Equal(t, "p0", got[0].Username)

	// the complete lobby is gone, a new one forms
	snap, err := m.Join("p0", 100, engine.TexasHoldem)
	require.NoError(t, err)
	assert.Len(t, snap.Members, 1)
}

func TestVariantRestriction(t *testing.T) {
	m := NewManager(2, engine.SevenCardStud, nil, testLogger())
	_, err := m.Join("alice", 100, engine.TexasHoldem)
	assert.ErrorIs(t, err, ErrVariantMismatch)
	_, err = m.Join("alice", 100, engine.SevenCardStud)
	assert.NoError(t, err)
}

func TestJoinWhileWaitingElsewhere(t *testing.T) {
	m := NewManager(4, "", nil, testLogger())
	_, err := m.Join("alice", 100, engine.FiveCardDraw)
	require.NoError(t, err)

	_, err = m.Join("alice", 100, engine.TexasHoldem)
	assert.ErrorIs(t, err, ErrVariantMismatch)

	// rejoining the same lobby is idempotent
	snap, err := m.Join("alice", 100, engine.FiveCardDraw)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, snap.Members)
}

func TestLeaveBeforeDissolution(t *testing.T) {
	var calls int32
	m := NewManager(2, "", func(engine.Variant, []Member) { atomic.AddInt32(&calls, 1) }, testLogger())

	_, err := m.Join("alice", 100, engine.TexasHoldem)
	require.NoError(t, err)
	_, err = m.MarkReady("alice")
	require.NoError(t, err)

	snap, changed := m.Leave("alice")
	assert.True(t, changed)
	assert.Empty(t, snap.Members)

	_, err = m.MarkReady("alice")
	assert.ErrorIs(t, err, ErrNotInLobby)
	assert.Zero(t, atomic.LoadInt32(&calls))

	_, waiting := m.Waiting("alice")
	assert.False(t, waiting)
}

func TestConcurrentReadyFiresHandoffExactlyOnce(t *testing.T) {
	const n = 6
	for iter := 0; iter < 50; iter++ {
		var calls int32
		m := NewManager(n, "", func(v engine.Variant, members []Member) {
			atomic.AddInt32(&calls, 1)
		}, testLogger())

		for i := 0; i < n; i++ {
			_, err := m.Join(fmt.Sprintf("p%d", i), 100, engine.SevenCardStud)
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := m.MarkReady(fmt.Sprintf("p%d", i))
				// a racing reader may observe the lobby already gone
				if err != nil {
					assert.ErrorIs(t, err, ErrNotInLobby)
				}
			}(i)
		}
		wg.Wait()
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	}
}
