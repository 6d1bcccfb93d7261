package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/swaralabs/wicara/internal/speech"
)

func TestMessageValidator_ValidateChatSend(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name: "valid chat send",
			message: `{
				"type": "chat_send",
				"text": "What causes thunder?"
			}`,
			wantErr: false,
		},
		{
			name: "missing text",
			message: `{
				"type": "chat_send"
			}`,
			wantErr: true,
		},
		{
			name: "text too long",
			message: fmt.Sprintf(`{
				"type": "chat_send",
				"text": "%s"
			}`, strings.Repeat("a", maxChatTextLength+1)),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidator_ValidateSpeakToggle(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name: "valid speak toggle",
			message: `{
				"type": "speak_toggle",
				"target_id": "b2c3d4e5-1111-2222-3333-444455556666"
			}`,
			wantErr: false,
		},
		{
			name: "missing target_id",
			message: `{
				"type": "speak_toggle"
			}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if _, ok := result.(*SpeakToggleMessage); !ok {
					t.Errorf("Expected *SpeakToggleMessage, got %T", result)
				}
			}
		})
	}
}

func TestMessageValidator_ValidateSimplify(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name: "valid simplify",
			message: `{
				"type": "simplify",
				"target_id": "b2c3d4e5-1111-2222-3333-444455556666"
			}`,
			wantErr: false,
		},
		{
			name: "missing target_id",
			message: `{
				"type": "simplify"
			}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidator_ValidatePing(t *testing.T) {
	validator := NewMessageValidator()

	message := `{
		"type": "ping",
		"data": "test-ping"
	}`

	result, err := validator.ValidateMessage([]byte(message))
	if err != nil {
		t.Errorf("ValidateMessage() error = %v", err)
	}

	pingMsg, ok := result.(*PingMessage)
	if !ok {
		t.Errorf("Expected *PingMessage, got %T", result)
	}

	if pingMsg.Data != "test-ping" {
		t.Errorf("Expected data 'test-ping', got '%s'", pingMsg.Data)
	}
}

func TestCreateErrorMessage(t *testing.T) {
	code := "TEST_ERROR"
	message := "Test error message"
	details := "Test error details"

	errorMsg := CreateErrorMessage(code, message, details)

	if errorMsg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, errorMsg.Type)
	}
	if errorMsg.Code != code {
		t.Errorf("Expected code %s, got %s", code, errorMsg.Code)
	}
	if errorMsg.Message != message {
		t.Errorf("Expected message %s, got %s", message, errorMsg.Message)
	}
	if errorMsg.Details != details {
		t.Errorf("Expected details %s, got %s", details, errorMsg.Details)
	}

	// Verify timestamp is recent
	timestamp, err := time.Parse(time.RFC3339, errorMsg.Timestamp)
	if err != nil {
		t.Errorf("Invalid timestamp format: %v", err)
	}
	if time.Since(timestamp) > time.Second {
		t.Errorf("Timestamp is not recent: %s", errorMsg.Timestamp)
	}
}

func TestCreatePongMessage(t *testing.T) {
	data := "test-pong-data"
	pongMsg := CreatePongMessage(data)

	if pongMsg.Type != MessageTypePong {
		t.Errorf("Expected type %s, got %s", MessageTypePong, pongMsg.Type)
	}
	if pongMsg.Data != data {
		t.Errorf("Expected data %s, got %s", data, pongMsg.Data)
	}

	// Verify timestamp is recent
	timestamp, err := time.Parse(time.RFC3339, pongMsg.Timestamp)
	if err != nil {
		t.Errorf("Invalid timestamp format: %v", err)
	}
	if time.Since(timestamp) > time.Second {
		t.Errorf("Timestamp is not recent: %s", pongMsg.Timestamp)
	}
}

func TestCreatePlaybackStateMessage(t *testing.T) {
	stateMsg := CreatePlaybackStateMessage("msg-1", speech.StateFetching)

	if stateMsg.Type != MessageTypePlaybackState {
		t.Errorf("Expected type %s, got %s", MessageTypePlaybackState, stateMsg.Type)
	}
	if stateMsg.TargetID != "msg-1" {
		t.Errorf("Expected target 'msg-1', got '%s'", stateMsg.TargetID)
	}
	if stateMsg.State != speech.StateFetching {
		t.Errorf("Expected state %s, got %s", speech.StateFetching, stateMsg.State)
	}
}

func TestCreateSpeechMessages(t *testing.T) {
	start := CreateSpeechStartMessage("msg-1", 24000, 1)
	if start.Type != MessageTypeSpeechStart {
		t.Errorf("Expected type %s, got %s", MessageTypeSpeechStart, start.Type)
	}
	if start.SampleRate != 24000 {
		t.Errorf("Expected sample rate 24000, got %d", start.SampleRate)
	}
	if start.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", start.Channels)
	}

	end := CreateSpeechEndMessage("msg-1", true)
	if end.Type != MessageTypeSpeechEnd {
		t.Errorf("Expected type %s, got %s", MessageTypeSpeechEnd, end.Type)
	}
	if !end.Stopped {
		t.Errorf("Expected stopped flag to be set")
	}
}

func TestMessageSerialization(t *testing.T) {
	// Test that all message types can be properly serialized and deserialized
	tests := []struct {
		name    string
		message interface{}
	}{
		{
			name: "ChatSendMessage",
			message: &ChatSendMessage{
				BaseMessage: BaseMessage{
					Type:      MessageTypeChatSend,
					Timestamp: time.Now().Format(time.RFC3339),
				},
				Text: "Why is the sky blue?",
			},
		},
		{
			name:    "NoticeMessage",
			message: CreateNoticeMessage("synthesis", "Could not prepare audio for this message."),
		},
		{
			name:    "ErrorMessage",
			message: CreateErrorMessage("TEST_ERROR", "Test message", "Test details"),
		},
		{
			name:    "PlaybackStateMessage",
			message: CreatePlaybackStateMessage("msg-1", speech.StatePlaying),
		},
		{
			name:    "ConversationMessage",
			message: CreateConversationMessage("65f0c0ffee0123456789abcd", nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Serialize
			data, err := json.Marshal(tt.message)
			if err != nil {
				t.Errorf("Failed to marshal message: %v", err)
				return
			}

			// Deserialize back to map to verify JSON structure
			var result map[string]interface{}
			if err := json.Unmarshal(data, &result); err != nil {
				t.Errorf("Failed to unmarshal message: %v", err)
				return
			}

			// Verify basic structure
			if _, exists := result["type"]; !exists {
				t.Errorf("Message missing 'type' field")
			}
			if _, exists := result["timestamp"]; !exists {
				t.Errorf("Message missing 'timestamp' field")
			}
		})
	}
}

func TestConversationMessageEmptySnapshot(t *testing.T) {
	msg := CreateConversationMessage("65f0c0ffee0123456789abcd", nil)

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal message: %v", err)
	}

	// An empty history must serialize as [], not null, so the widget can
	// render without special cases.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if _, ok := result["messages"].([]interface{}); !ok {
		t.Errorf("Expected messages to be an array, got %T", result["messages"])
	}
}

func TestMessageValidator_InvalidJSON(t *testing.T) {
	validator := NewMessageValidator()

	invalidMessages := []string{
		`{invalid json}`,
		`{"type": "chat_send", "text":}`,
		``,
		`{"type": }`,
	}

	for i, msg := range invalidMessages {
		t.Run(fmt.Sprintf("invalid_json_%d", i), func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(msg))
			if err == nil {
				t.Errorf("Expected error for invalid JSON, got nil")
			}
		})
	}
}

func TestMessageValidator_UnsupportedMessageType(t *testing.T) {
	validator := NewMessageValidator()

	message := `{
		"type": "unsupported_type",
		"data": "some data"
	}`

	_, err := validator.ValidateMessage([]byte(message))
	if err == nil {
		t.Errorf("Expected error for unsupported message type, got nil")
	}
}
