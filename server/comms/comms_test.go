package comms

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealer/server/engine"
	"dealer/server/protocol"
	"dealer/server/store"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, protocol.Request{Command: "login", Username: "alice"}))

	n := binary.BigEndian.Uint32(buf.Bytes()[:4])
	assert.EqualValues(t, buf.Len()-4, n)

	raw, err := ReadFrame(&buf)
	require.NoError(t, err)
	req, err := protocol.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "login", req.Command)
	assert.Equal(t, "alice", req.Username)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	big := make([]byte, MaxFrameSize+1)
	err := WriteFrame(&buf, string(big))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	_, err = ReadFrame(bytes.NewReader(hdr[:]))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func startServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	srv := NewServer(cfg, store.NewMemory(), testLogger())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	return srv, ln.Addr().String()
}

func testConfig() Config {
	return Config{
		TableSize:     2,
		StartingStack: 100,
		Game:          engine.Config{SB: 5, BB: 10},
		TurnTimeout:   5 * time.Second,
		ReadyTimeout:  5 * time.Second,
	}
}

// tc is a scripted client for exercising the wire protocol.
type tc struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func dial(t *testing.T, addr string) *tc {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &tc{t: t, conn: conn, br: bufio.NewReader(conn)}
}

func (c *tc) send(req protocol.Request) {
	c.t.Helper()
	require.NoError(c.t, WriteFrame(c.conn, req))
}

func (c *tc) next() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	raw, err := ReadFrame(c.br)
	require.NoError(c.t, err)
	var msg map[string]any
	require.NoError(c.t, json.Unmarshal(raw, &msg))
	return msg
}

// waitFor skips messages until one of the wanted type arrives.
func (c *tc) waitFor(typ string) map[string]any {
	c.t.Helper()
	for i := 0; i < 64; i++ {
		msg := c.next()
		if msg["type"] == typ {
			return msg
		}
	}
	c.t.Fatalf("no %s message", typ)
	return nil
}

func (c *tc) auth(cmd, user, pass string) map[string]any {
	c.t.Helper()
	c.send(protocol.Request{Command: cmd, Username: user, Password: pass})
	return c.next()
}

func TestRegisterLoginAndStats(t *testing.T) {
	_, addr := startServer(t, testConfig())
	c := dial(t, addr)

	msg := c.auth(protocol.CmdRegister, "alice", "hunter2")
	assert.Equal(t, protocol.TypeAuthResult, msg["type"])
	assert.Equal(t, true, msg["ok"])

	c.send(protocol.Request{Command: protocol.CmdStatsQuery})
	msg = c.waitFor(protocol.TypeStatsResult)
	assert.Equal(t, "alice", msg["username"])
	assert.EqualValues(t, 1000, msg["elo"])

	// wrong password on a fresh connection
	c2 := dial(t, addr)
	msg = c2.auth(protocol.CmdLogin, "alice", "wrong")
	assert.Equal(t, protocol.TypeError, msg["type"])
	assert.Equal(t, protocol.ErrKindAuthFailed, msg["kind"])

	// taken username
	c3 := dial(t, addr)
	msg = c3.auth(protocol.CmdRegister, "alice", "other")
	assert.Equal(t, protocol.ErrKindUsernameTaken, msg["kind"])
}

func TestCommandsRequireLogin(t *testing.T) {
	_, addr := startServer(t, testConfig())
	c := dial(t, addr)
	c.send(protocol.Request{Command: protocol.CmdJoinLobby, Variant: "texas"})
	msg := c.next()
	assert.Equal(t, protocol.TypeError, msg["type"])
	assert.Equal(t, protocol.ErrKindAuthFailed, msg["kind"])
}

func TestDuplicateLoginSupersedes(t *testing.T) {
	_, addr := startServer(t, testConfig())
	first := dial(t, addr)
	first.auth(protocol.CmdRegister, "alice", "pw")

	second := dial(t, addr)
	msg := second.auth(protocol.CmdLogin, "alice", "pw")
	assert.Equal(t, true, msg["ok"])

	msg = first.waitFor(protocol.TypeError)
	assert.Equal(t, protocol.ErrKindAuthFailed, msg["kind"])
}

func TestMalformedPayloadDropsConnection(t *testing.T) {
	_, addr := startServer(t, testConfig())
	c := dial(t, addr)

	payload := []byte("{not json")
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	_, err := c.conn.Write(append(hdr[:], payload...))
	require.NoError(t, err)

	msg := c.next()
	assert.Equal(t, protocol.TypeError, msg["type"])
	assert.Equal(t, protocol.ErrKindProtocolViolation, msg["kind"])

	// the connection is dropped, not kept around for more commands
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = ReadFrame(c.br)
	assert.Error(t, err)
}

func TestBustedPlayerCannotJoinLobby(t *testing.T) {
	srv, addr := startServer(t, testConfig())
	c := dial(t, addr)
	c.auth(protocol.CmdRegister, "mallory", "pw")
	srv.Registry().SetChips("mallory", 0)

	c.send(protocol.Request{Command: protocol.CmdJoinLobby, Variant: "texas"})
	msg := c.next()
	assert.Equal(t, protocol.TypeError, msg["type"])
	assert.Equal(t, protocol.ErrKindProtocolViolation, msg["kind"])

	// back above zero, the join goes through
	srv.Registry().SetChips("mallory", 50)
	c.send(protocol.Request{Command: protocol.CmdJoinLobby, Variant: "texas"})
	msg = c.waitFor(protocol.TypeLobbyUpdate)
	assert.Equal(t, "texas", msg["variant"])
}

// playHand drives one seat with a calling station strategy until the
// showdown result arrives.
func playHand(t *testing.T, c *tc, done chan<- map[string]any) {
	for i := 0; i < 256; i++ {
		msg := c.next()
		switch msg["type"] {
		case protocol.TypeGameStart:
			c.send(protocol.Request{Command: protocol.CmdReady})
		case protocol.TypeActionRequest:
			act := protocol.ActCall
			for _, l := range msg["legal"].([]any) {
				if l == protocol.ActCheck {
					act = protocol.ActCheck
				}
			}
			c.send(protocol.Request{Command: protocol.CmdAction, Action: act})
		case protocol.TypeDrawRequest:
			c.send(protocol.Request{Command: protocol.CmdDraw})
		case protocol.TypeShowdownResult:
			done <- msg
			return
		}
	}
	t.Error("hand never finished")
	done <- nil
}

func TestFullHandOverTCP(t *testing.T) {
	_, addr := startServer(t, testConfig())

	alice := dial(t, addr)
	alice.auth(protocol.CmdRegister, "alice", "pw")
	bob := dial(t, addr)
	bob.auth(protocol.CmdRegister, "bob", "pw")

	alice.send(protocol.Request{Command: protocol.CmdJoinLobby, Variant: "texas"})
	update := alice.waitFor(protocol.TypeLobbyUpdate)
	assert.Equal(t, "texas", update["variant"])

	bob.send(protocol.Request{Command: protocol.CmdJoinLobby, Variant: "texas"})
	bob.waitFor(protocol.TypeLobbyUpdate)

	alice.send(protocol.Request{Command: protocol.CmdReady})
	bob.send(protocol.Request{Command: protocol.CmdReady})

	results := make(chan map[string]any, 2)
	go playHand(t, alice, results)
	go playHand(t, bob, results)

	for i := 0; i < 2; i++ {
		select {
		case msg := <-results:
			require.NotNil(t, msg)
			payouts := msg["payouts"].(map[string]any)
			total := 0.0
			for _, v := range payouts {
				total += v.(float64)
			}
			assert.EqualValues(t, msg["pot"], total)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for showdown")
		}
	}

	// survivors requeue for the next hand
	alice.waitFor(protocol.TypeLobbyUpdate)
}

func TestFiveCardDrawHandOverTCP(t *testing.T) {
	_, addr := startServer(t, testConfig())

	alice := dial(t, addr)
	alice.auth(protocol.CmdRegister, "alice", "pw")
	bob := dial(t, addr)
	bob.auth(protocol.CmdRegister, "bob", "pw")

	for _, c := range []*tc{alice, bob} {
		c.send(protocol.Request{Command: protocol.CmdJoinLobby, Variant: "5card"})
		c.waitFor(protocol.TypeLobbyUpdate)
		c.send(protocol.Request{Command: protocol.CmdReady})
	}

	results := make(chan map[string]any, 2)
	go playHand(t, alice, results)
	go playHand(t, bob, results)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-results:
			require.NotNil(t, msg)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for showdown")
		}
	}
}

func TestSpectateSeesLiveTable(t *testing.T) {
	srv, addr := startServer(t, testConfig())

	alice := dial(t, addr)
	alice.auth(protocol.CmdRegister, "alice", "pw")
	bob := dial(t, addr)
	bob.auth(protocol.CmdRegister, "bob", "pw")
	for _, c := range []*tc{alice, bob} {
		c.send(protocol.Request{Command: protocol.CmdJoinLobby, Variant: "texas"})
		c.waitFor(protocol.TypeLobbyUpdate)
		c.send(protocol.Request{Command: protocol.CmdReady})
	}
	// Send both confirmations before waiting: the deal only happens
	// once every seat is ready.
	for _, c := range []*tc{alice, bob} {
		c.waitFor(protocol.TypeGameStart)
		c.send(protocol.Request{Command: protocol.CmdReady})
	}
	for _, c := range []*tc{alice, bob} {
		c.waitFor(protocol.TypeDealUpdate)
	}

	require.Eventually(t, func() bool {
		return len(srv.Snapshots()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	eve := dial(t, addr)
	eve.auth(protocol.CmdRegister, "eve", "pw")
	eve.send(protocol.Request{Command: protocol.CmdSpectate})
	msg := eve.waitFor(protocol.TypeSpectateState)
	tables := msg["tables"].([]any)
	require.Len(t, tables, 1)
	assert.Equal(t, "texas", tables[0].(map[string]any)["variant"])
}
