package web

import "github.com/ratemysite/backend/internal/analysis"

// WSMessage is the WebSocket envelope. Type is an analysis event kind and
// Payload the matching payload.
type WSMessage struct {
	Type    analysis.Kind `json:"type"`
	Payload any           `json:"payload"`
}

// ClientMessageType tags messages a WebSocket client sends to the server.
type ClientMessageType string

const MsgCancel ClientMessageType = "cancel"

type ClientMessage struct {
	Type ClientMessageType `json:"type"`
}
