// Package gameserver implements the session coordinator: it interprets
// inbound client messages, drives matchmaking and session state, and
// relays events between the two participants of a session.
package gameserver

import (
	"encoding/json"
	"errors"

	"github.com/cory-johannsen/arcade/internal/game/session"
)

// ErrMalformed is returned for unparseable payloads and unrecognized
// message types or actions. The connection survives; the message is
// logged and discarded.
var ErrMalformed = errors.New("malformed message")

// Inbound message types.
const (
	MessageTypeGameAction = "game_action"
	MessageTypeChat       = "chat_message"
)

// Game actions carried by game_action messages.
const (
	ActionMove      = "move"
	ActionRPSChoice = "rps_choice"
	ActionOfferDraw = "offer_draw"
	ActionResign    = "resign"
	ActionLeave     = "leave"
)

// Outbound event types.
const (
	EventGameStarted  = "game_started"
	EventOpponentMove = "opponent_move"
	EventDrawOffer    = "draw_offer"
	EventOpponentLeft = "opponent_left"
	EventChatMessage  = "chat_message"
	EventGameEnded    = "game_ended"
)

// End reasons reported in game_ended events.
const (
	ReasonResignation  = "resignation"
	ReasonOpponentLeft = "opponent_left"
	ReasonDisconnect   = "disconnect"
)

// ClientMessage is the envelope for every inbound websocket message.
type ClientMessage struct {
	Type   string          `json:"type"`
	GameID string          `json:"gameId"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Text   string          `json:"text,omitempty"`
}

// rpsChoiceData is the payload of an rps_choice action.
type rpsChoiceData struct {
	Round  int    `json:"round"`
	Choice string `json:"choice"`
}

// GameResult describes how a session ended.
type GameResult struct {
	// Winner is the user declared winner, 0 for none.
	Winner int64 `json:"winner"`
	// Reason is one of the Reason constants.
	Reason string `json:"reason"`
	// RatingChange is supplied by the rating collaborator.
	RatingChange int `json:"ratingChange"`
	// Duration is the measured session lifetime in seconds.
	Duration int64 `json:"duration"`
}

// Event is the envelope for every outbound push. Only the fields
// relevant to the event type are populated.
type Event struct {
	Type   string            `json:"type"`
	Game   *session.Snapshot `json:"game,omitempty"`
	Move   json.RawMessage   `json:"move,omitempty"`
	Choice string            `json:"choice,omitempty"`
	Sender string            `json:"sender,omitempty"`
	Text   string            `json:"text,omitempty"`
	Result *GameResult       `json:"result,omitempty"`
}
