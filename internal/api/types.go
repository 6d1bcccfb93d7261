package api

import (
	"time"

	"github.com/swaralabs/wicara/domain/entities"
)

// ClientAuthRequest represents the request payload for client authentication.
// ClientID is optional; the server mints one when it is absent, and the
// embedding page stores it to keep the conversation across reloads.
type ClientAuthRequest struct {
	ClientID string `json:"client_id,omitempty"`
}

// ClientAuthResponse represents the response payload for client authentication
type ClientAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// SendMessageRequest represents the request payload for posting a message
type SendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// SendMessageResponse carries the stored user message and the model's reply
type SendMessageResponse struct {
	UserMessage entities.Message `json:"user_message"`
	Reply       entities.Message `json:"reply"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
