// Package protocol defines the JSON messages exchanged over the
// length-prefixed TCP transport. Client requests carry a "command"
// field; server messages carry a "type" field.
package protocol

import "encoding/json"

// Request is the client envelope. Fields not used by a given command
// are left zero.
type Request struct {
	Command  string `json:"command"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Variant  string `json:"variant,omitempty"`
	Action   string `json:"action,omitempty"`
	Amount   int    `json:"amount,omitempty"`
	Indices  []int  `json:"indices,omitempty"`
}

// Client commands.
const (
	CmdRegister   = "register"
	CmdLogin      = "login"
	CmdJoinLobby  = "join_lobby"
	CmdReady      = "ready"
	CmdAction     = "action"
	CmdDraw       = "draw"
	CmdStatsQuery = "stats_query"
	CmdSpectate   = "spectate"
)

// Betting actions carried in Request.Action.
const (
	ActCheck = "check"
	ActCall  = "call"
	ActRaise = "raise"
	ActFold  = "fold"
)

// Server message types.
const (
	TypeAuthResult     = "auth_result"
	TypeLobbyUpdate    = "lobby_update"
	TypeGameStart      = "game_start"
	TypeDealUpdate     = "deal_update"
	TypeActionRequest  = "action_request"
	TypeActionUpdate   = "action_update"
	TypeDrawRequest    = "draw_request"
	TypeDrawUpdate     = "draw_update"
	TypeShowdownResult = "showdown_result"
	TypeStatsResult    = "stats_result"
	TypeSpectateState  = "spectate_state"
	TypeError          = "error"
)

// Error kinds carried in Error.Kind.
const (
	ErrKindAuthFailed        = "auth_failed"
	ErrKindUsernameTaken     = "username_taken"
	ErrKindLobbyFull         = "lobby_full"
	ErrKindVariantMismatch   = "variant_mismatch"
	ErrKindIllegalAction     = "illegal_action"
	ErrKindNotYourTurn       = "not_your_turn"
	ErrKindProtocolViolation = "protocol_violation"
	ErrKindInternal          = "internal"
)

type AuthResult struct {
	Type     string `json:"type"`
	OK       bool   `json:"ok"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

type LobbyUpdate struct {
	Type    string   `json:"type"`
	Variant string   `json:"variant"`
	Members []string `json:"members"`
	Ready   []string `json:"ready"`
	Target  int      `json:"target"`
}

type GameStart struct {
	Type    string   `json:"type"`
	TableID string   `json:"table_id"`
	Variant string   `json:"variant"`
	Seats   []string `json:"seats"`
	Stacks  []int    `json:"stacks"`
}

// DealUpdate is the per-viewer table snapshot sent after every deal and
// every applied action. YourCards holds all of the viewer's cards;
// Visible holds only what the viewer may see of the others (face-up
// stud cards).
type DealUpdate struct {
	Type      string              `json:"type"`
	TableID   string              `json:"table_id"`
	Street    string              `json:"street"`
	YourCards []string            `json:"your_cards"`
	Visible   map[string][]string `json:"visible,omitempty"`
	Community []string            `json:"community,omitempty"`
	Pot       int                 `json:"pot"`
	Stacks    map[string]int      `json:"stacks"`
	Bets      map[string]int      `json:"bets"`
	Folded    []string            `json:"folded,omitempty"`
	Turn      string              `json:"turn,omitempty"`
}

type ActionRequest struct {
	Type       string   `json:"type"`
	TableID    string   `json:"table_id"`
	Street     string   `json:"street"`
	ToCall     int      `json:"to_call"`
	MinRaiseTo int      `json:"min_raise_to"`
	MaxRaiseTo int      `json:"max_raise_to"`
	Legal      []string `json:"legal"`
	TimeoutSec int      `json:"timeout_sec"`
}

type ActionUpdate struct {
	Type     string `json:"type"`
	TableID  string `json:"table_id"`
	Username string `json:"username"`
	Action   string `json:"action"`
	Amount   int    `json:"amount,omitempty"`
	Pot      int    `json:"pot"`
}

type DrawRequest struct {
	Type       string `json:"type"`
	TableID    string `json:"table_id"`
	TimeoutSec int    `json:"timeout_sec"`
}

type DrawUpdate struct {
	Type     string `json:"type"`
	TableID  string `json:"table_id"`
	Username string `json:"username"`
	Discards int    `json:"discards"`
}

type PotShare struct {
	Amount   int      `json:"amount"`
	Eligible []string `json:"eligible"`
	Winners  []string `json:"winners"`
}

type ShowdownResult struct {
	Type    string              `json:"type"`
	TableID string              `json:"table_id"`
	Winners []string            `json:"winners"`
	Ranks   map[string]string   `json:"ranks,omitempty"`
	Cards   map[string][]string `json:"cards,omitempty"`
	Payouts map[string]int      `json:"payouts"`
	Pots    []PotShare          `json:"pots,omitempty"`
	Pot     int                 `json:"pot"`
}

type StatsResult struct {
	Type        string  `json:"type"`
	Username    string  `json:"username"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	GamesPlayed int     `json:"games_played"`
	MoneyWon    int     `json:"money_won"`
	MoneyLost   int     `json:"money_lost"`
	Elo         float64 `json:"elo"`
}

// SpectateTable is the public view of one running table.
type SpectateTable struct {
	TableID   string              `json:"table_id"`
	Variant   string              `json:"variant"`
	Street    string              `json:"street"`
	Visible   map[string][]string `json:"visible,omitempty"`
	Community []string            `json:"community,omitempty"`
	Pot       int                 `json:"pot"`
	Stacks    map[string]int      `json:"stacks"`
	Turn      string              `json:"turn,omitempty"`
}

type SpectateState struct {
	Type   string          `json:"type"`
	Tables []SpectateTable `json:"tables"`
}

type Error struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewError(kind, msg string) Error {
	return Error{Type: TypeError, Kind: kind, Message: msg}
}

// Decode parses a client frame.
func Decode(raw []byte) (Request, error) {
	var req Request
	err := json.Unmarshal(raw, &req)
	return req, err
}
