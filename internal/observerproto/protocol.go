package observerproto

import "plotkeeper.ai/internal/plot"

// Version is the claim feed protocol version (separate from the HTTP API).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeClaim     = "CLAIM"
)

// Client -> Server. First message on the feed connection; may be re-sent to
// change the level filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Level limits the feed to one level. Empty means every level.
	Level string `json:"level,omitempty"`
}

// Server -> Client. One per accepted save or delete.
type ClaimMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Seq             uint64    `json:"seq"`
	Action          string    `json:"action"`
	Plot            plot.Plot `json:"plot"`
}
