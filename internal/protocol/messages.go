package protocol

import "plotkeeper.ai/internal/plot"

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AcceptedResponse answers a save or delete. The write is queued, not
// confirmed.
type AcceptedResponse struct {
	Accepted bool      `json:"accepted"`
	Plot     plot.Plot `json:"plot"`
}

// NextResponse answers a next-free-plot search.
type NextResponse struct {
	Level string    `json:"level"`
	Limit int       `json:"limit"`
	Plot  plot.Plot `json:"plot"`
}

// OwnerResponse lists an owner's plots on loaded levels.
type OwnerResponse struct {
	Owner string      `json:"owner"`
	Level string      `json:"level,omitempty"`
	Plots []plot.Plot `json:"plots"`
}
