package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/swaralabs/wicara/domain/entities"
	"github.com/swaralabs/wicara/internal/speech"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	// Client to server
	MessageTypeChatSend    MessageType = "chat_send"
	MessageTypeSpeakToggle MessageType = "speak_toggle"
	MessageTypeSimplify    MessageType = "simplify"
	MessageTypePing        MessageType = "ping"

	// Server to client
	MessageTypeConversation  MessageType = "conversation"
	MessageTypeChatEvent     MessageType = "chat_event"
	MessageTypePlaybackState MessageType = "playback_state"
	MessageTypeSpeechStart   MessageType = "speech_start"
	MessageTypeSpeechEnd     MessageType = "speech_end"
	MessageTypeNotice        MessageType = "notice"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

const maxChatTextLength = 4096

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type" validate:"required"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// ChatSendMessage asks the model a question
type ChatSendMessage struct {
	BaseMessage
	Text string `json:"text" validate:"required"`
}

// SpeakToggleMessage flips spoken playback of a conversation message
type SpeakToggleMessage struct {
	BaseMessage
	TargetID string `json:"target_id" validate:"required"`
}

// SimplifyMessage asks for a plainer rewrite of a model answer
type SimplifyMessage struct {
	BaseMessage
	TargetID string `json:"target_id" validate:"required"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ConversationMessage carries the conversation snapshot sent on connect
type ConversationMessage struct {
	BaseMessage
	ConversationID string             `json:"conversation_id"`
	Messages       []entities.Message `json:"messages"`
}

// ChatEventMessage carries one new conversation message
type ChatEventMessage struct {
	BaseMessage
	ConversationID string           `json:"conversation_id"`
	Chat           entities.Message `json:"chat"`
}

// PlaybackStateMessage reports the speak-button state for a message
type PlaybackStateMessage struct {
	BaseMessage
	TargetID string       `json:"target_id,omitempty"`
	State    speech.State `json:"state"`
}

// SpeechStartMessage announces the PCM format of the binary frames that
// follow it
type SpeechStartMessage struct {
	BaseMessage
	TargetID   string `json:"target_id,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// SpeechEndMessage marks the end of a binary audio stream
type SpeechEndMessage struct {
	BaseMessage
	TargetID string `json:"target_id,omitempty"`
	Stopped  bool   `json:"stopped"` // true when cut short rather than completed
}

// NoticeMessage is a user-visible notification
type NoticeMessage struct {
	BaseMessage
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	// Validate specific message type
	switch base.Type {
	case MessageTypeChatSend:
		var msg ChatSendMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid chat send message: %w", err)
		}
		if err := v.validateChatSend(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeSpeakToggle:
		var msg SpeakToggleMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid speak toggle message: %w", err)
		}
		if msg.TargetID == "" {
			return nil, fmt.Errorf("target_id is required")
		}
		return &msg, nil

	case MessageTypeSimplify:
		var msg SimplifyMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid simplify message: %w", err)
		}
		if msg.TargetID == "" {
			return nil, fmt.Errorf("target_id is required")
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateChatSend validates chat send message fields
func (v *MessageValidator) validateChatSend(msg *ChatSendMessage) error {
	if msg.Text == "" {
		return fmt.Errorf("text is required")
	}
	if len(msg.Text) > maxChatTextLength {
		return fmt.Errorf("text must be at most %d bytes", maxChatTextLength)
	}
	return nil
}

func newBaseMessage(messageType MessageType) BaseMessage {
	return BaseMessage{
		Type:      messageType,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBaseMessage(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBaseMessage(MessageTypePong),
		Data:        data,
	}
}

// CreateNoticeMessage creates a user-visible notice
func CreateNoticeMessage(kind, text string) *NoticeMessage {
	return &NoticeMessage{
		BaseMessage: newBaseMessage(MessageTypeNotice),
		Kind:        kind,
		Text:        text,
	}
}

// CreatePlaybackStateMessage reports a playback state change for a message
func CreatePlaybackStateMessage(targetID string, state speech.State) *PlaybackStateMessage {
	return &PlaybackStateMessage{
		BaseMessage: newBaseMessage(MessageTypePlaybackState),
		TargetID:    targetID,
		State:       state,
	}
}

// CreateChatEventMessage wraps a new conversation message
func CreateChatEventMessage(conversationID string, chat entities.Message) *ChatEventMessage {
	return &ChatEventMessage{
		BaseMessage:    newBaseMessage(MessageTypeChatEvent),
		ConversationID: conversationID,
		Chat:           chat,
	}
}

// CreateConversationMessage builds the snapshot sent when a client connects
func CreateConversationMessage(conversationID string, messages []entities.Message) *ConversationMessage {
	if messages == nil {
		messages = []entities.Message{}
	}
	return &ConversationMessage{
		BaseMessage:    newBaseMessage(MessageTypeConversation),
		ConversationID: conversationID,
		Messages:       messages,
	}
}

// CreateSpeechStartMessage announces an audio stream in the given format
func CreateSpeechStartMessage(targetID string, sampleRate, channels int) *SpeechStartMessage {
	return &SpeechStartMessage{
		BaseMessage: newBaseMessage(MessageTypeSpeechStart),
		TargetID:    targetID,
		SampleRate:  sampleRate,
		Channels:    channels,
	}
}

// CreateSpeechEndMessage closes an audio stream
func CreateSpeechEndMessage(targetID string, stopped bool) *SpeechEndMessage {
	return &SpeechEndMessage{
		BaseMessage: newBaseMessage(MessageTypeSpeechEnd),
		TargetID:    targetID,
		Stopped:     stopped,
	}
}
