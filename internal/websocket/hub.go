package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/swaralabs/wicara/domain/entities"
	"github.com/swaralabs/wicara/domain/repositories"
	"github.com/swaralabs/wicara/internal/audio"
	"github.com/swaralabs/wicara/internal/speech"
	"github.com/swaralabs/wicara/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Deadline for conversation operations triggered over the socket.
	chatOpTimeout = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HubConfig holds the collaborators a hub hands to its clients
// Required fields:
// - Chat: conversation service
// - Synthesizer: speech synthesis provider
// - Format: PCM format used for synthesis, decoding, and streaming
// Optional fields:
// - ChunkDuration: audio slice length per binary frame (default: 100ms)
// - FetchTimeout: synthesis deadline per playback attempt (default: 30s)
type HubConfig struct {
	Chat          *usecase.ChatService
	Synthesizer   repositories.TextToSpeech
	Format        audio.Format
	ChunkDuration time.Duration
	FetchTimeout  time.Duration
}

const defaultChunkDuration = 100 * time.Millisecond

// Hub maintains the set of active clients. Each client carries its own
// conversation binding and playback controller.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	chat          *usecase.ChatService
	synth         repositories.TextToSpeech
	format        audio.Format
	chunkDuration time.Duration
	fetchTimeout  time.Duration
	validator     *MessageValidator

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(config HubConfig, logger *zap.Logger) (*Hub, error) {
	if config.Chat == nil {
		return nil, fmt.Errorf("chat service is required")
	}
	if config.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audio format: %w", err)
	}

	chunkDuration := config.ChunkDuration
	if chunkDuration == 0 {
		chunkDuration = defaultChunkDuration
	}

	return &Hub{
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		chat:          config.Chat,
		synth:         config.Synthesizer,
		format:        config.Format,
		chunkDuration: chunkDuration,
		fetchTimeout:  config.FetchTimeout,
		validator:     NewMessageValidator(),
		logger:        logger,
	}, nil
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if previous, ok := h.clients[client.clientID]; ok {
				// A reconnect replaces the old connection; tear its
				// playback down first.
				previous.teardown()
			}
			h.clients[client.clientID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.clientID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.clientID]; ok && current == client {
				delete(h.clients, client.clientID)
			}
			h.mu.Unlock()
			client.teardown()
			h.logger.Info("Client unregistered", zap.String("clientID", client.clientID))
		}
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub. It
// owns one playback controller; closing the connection closes the
// controller, which releases any audio still playing.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Authenticated client ID for this connection
	clientID string

	// Logger
	logger *zap.Logger

	// Connection-scoped context; cancelled on teardown
	ctx    context.Context
	cancel context.CancelFunc

	controller *speech.Controller

	mutex        sync.Mutex
	conversation *entities.Conversation
	speakTarget  string // message ID bound to the active playback session
	torndown     bool
}

// ServeClient upgrades the request and runs the read/write pumps for an
// authenticated client.
func ServeClient(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan WriteData, 256),
		clientID: clientID,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	controller, err := speech.NewController(speech.ControllerConfig{
		Synthesizer:  hub.synth,
		Outputs:      client,
		Format:       hub.format,
		Notifier:     client,
		OnChange:     client.onPlaybackState,
		FetchTimeout: hub.fetchTimeout,
	}, logger)
	if err != nil {
		cancel()
		conn.Close()
		logger.Error("Failed to create playback controller", zap.Error(err))
		return err
	}
	client.controller = controller

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
	go client.sendSnapshot()

	return nil
}

// teardown releases everything the connection owned. Safe to call more than
// once; the playback controller guarantees its resources are released
// exactly once. The send channel closes before the controller so late
// controller callbacks land on the torndown guard, not a closed channel.
func (c *Client) teardown() {
	c.mutex.Lock()
	if c.torndown {
		c.mutex.Unlock()
		return
	}
	c.torndown = true
	close(c.send)
	c.mutex.Unlock()

	if err := c.controller.Close(); err != nil {
		c.logger.Warn("Failed to close playback controller", zap.Error(err))
	}
	c.cancel()
}

// sendSnapshot resumes the client's conversation and pushes it down the wire
func (c *Client) sendSnapshot() {
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	conversation, err := c.hub.chat.Resume(ctx, c.clientID)
	if err != nil {
		c.logger.Error("Failed to resume conversation",
			zap.String("clientID", c.clientID),
			zap.Error(err))
		c.sendJSON(CreateErrorMessage("conversation_unavailable", "Could not load your conversation", err.Error()))
		return
	}

	c.mutex.Lock()
	c.conversation = conversation
	c.mutex.Unlock()

	c.sendJSON(CreateConversationMessage(conversation.ID.Hex(), conversation.Messages))
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		default:
			c.logger.Warn("Received unexpected message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a frame to the write pump without blocking. Controller
// callbacks run through here, so a stalled peer must never wedge them, and
// frames after teardown are dropped rather than sent on a closed channel.
func (c *Client) enqueue(messageType int, payload []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.torndown {
		return
	}

	select {
	case c.send <- WriteData{Type: messageType, Payload: payload}:
	default:
		c.logger.Warn("Send buffer full, dropping message",
			zap.String("clientID", c.clientID),
			zap.Int("type", messageType))
	}
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	c.enqueue(websocket.TextMessage, payload)
}

// processMessage processes incoming messages from the widget
func (c *Client) processMessage(message []byte) {
	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected invalid message", zap.Error(err))
		c.sendJSON(CreateErrorMessage("invalid_message", "Invalid message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *ChatSendMessage:
		c.handleChatSend(msg)
	case *SpeakToggleMessage:
		c.handleSpeakToggle(msg)
	case *SimplifyMessage:
		c.handleSimplify(msg)
	case *PingMessage:
		c.sendJSON(CreatePongMessage(msg.Data))
	default:
		c.logger.Warn("Unhandled message type")
	}
}

// currentConversation returns the bound conversation, resuming it on demand
func (c *Client) currentConversation(ctx context.Context) (*entities.Conversation, error) {
	c.mutex.Lock()
	conversation := c.conversation
	c.mutex.Unlock()
	if conversation != nil {
		return conversation, nil
	}

	conversation, err := c.hub.chat.Resume(ctx, c.clientID)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.conversation = conversation
	c.mutex.Unlock()
	return conversation, nil
}

// rememberMessage keeps the client's cached conversation in step with the
// repository so speak toggles can resolve message IDs locally.
func (c *Client) rememberMessage(message entities.Message) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.conversation != nil {
		c.conversation.Messages = append(c.conversation.Messages, message)
	}
}

// handleChatSend stores the question, echoes it, and answers in the
// background so the pump stays responsive.
func (c *Client) handleChatSend(msg *ChatSendMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, chatOpTimeout)
	defer cancel()

	conversation, err := c.currentConversation(ctx)
	if err != nil {
		c.sendJSON(CreateErrorMessage("conversation_unavailable", "Could not load your conversation", err.Error()))
		return
	}
	conversationID := conversation.ID.Hex()

	user, err := c.hub.chat.AppendUserMessage(ctx, conversationID, msg.Text)
	if err != nil {
		c.logger.Error("Failed to append user message", zap.Error(err))
		c.sendJSON(CreateErrorMessage("chat_failed", "Could not send your message", err.Error()))
		return
	}
	c.rememberMessage(user)
	c.sendJSON(CreateChatEventMessage(conversationID, user))

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, chatOpTimeout)
		defer cancel()

		reply, err := c.hub.chat.GenerateReply(ctx, conversationID)
		if err != nil {
			c.logger.Error("Failed to generate reply",
				zap.String("conversationID", conversationID),
				zap.Error(err))
			c.sendJSON(CreateNoticeMessage("chat_failure", "The assistant could not answer. Please try again."))
			return
		}
		c.rememberMessage(reply)
		c.sendJSON(CreateChatEventMessage(conversationID, reply))
	}()
}

// handleSimplify rewrites a model answer in plainer language
func (c *Client) handleSimplify(msg *SimplifyMessage) {
	targetID := msg.TargetID
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, chatOpTimeout)
		defer cancel()

		conversation, err := c.currentConversation(ctx)
		if err != nil {
			c.sendJSON(CreateErrorMessage("conversation_unavailable", "Could not load your conversation", err.Error()))
			return
		}
		conversationID := conversation.ID.Hex()

		simplified, err := c.hub.chat.Simplify(ctx, conversationID, targetID)
		if err != nil {
			c.logger.Error("Failed to simplify answer",
				zap.String("messageID", targetID),
				zap.Error(err))
			c.sendJSON(CreateNoticeMessage("simplify_failure", "Could not simplify that answer. Please try again."))
			return
		}
		c.rememberMessage(simplified)
		c.sendJSON(CreateChatEventMessage(conversationID, simplified))
	}()
}

// handleSpeakToggle flips playback for a message. Toggling the message that
// is already sounding stops it; toggling another message stops the current
// one and starts the new one.
func (c *Client) handleSpeakToggle(msg *SpeakToggleMessage) {
	c.mutex.Lock()
	conversation := c.conversation
	current := c.speakTarget
	c.mutex.Unlock()

	if conversation == nil {
		c.sendJSON(CreateErrorMessage("conversation_unavailable", "No conversation loaded yet", ""))
		return
	}

	target := conversation.FindMessage(msg.TargetID)
	if target == nil {
		c.sendJSON(CreateErrorMessage("unknown_message", "Unknown message", msg.TargetID))
		return
	}

	if c.controller.State() != speech.StateIdle {
		// Something is fetching or sounding; this toggle cancels it.
		if err := c.controller.Toggle(c.ctx, target.Content); err != nil {
			c.logger.Error("Failed to stop active playback", zap.Error(err))
			return
		}
		if c.controller.State() != speech.StateIdle {
			// The active session finished on its own just before the toggle
			// landed, so the toggle started the clicked message instead.
			c.setSpeakTarget(msg.TargetID)
			return
		}
		if current == "" || current == msg.TargetID {
			// Toggling the sounding message off is the whole request.
			return
		}
		// Switching messages: the old session is stopped, start the new one.
	}

	c.setSpeakTarget(msg.TargetID)
	if err := c.controller.Toggle(c.ctx, target.Content); err != nil {
		c.setSpeakTarget("")
		if errors.Is(err, speech.ErrControllerClosed) {
			return
		}
		c.logger.Error("Failed to toggle playback", zap.Error(err))
		c.sendJSON(CreateErrorMessage("speech_failed", "Could not start playback", err.Error()))
	}
}

func (c *Client) setSpeakTarget(messageID string) {
	c.mutex.Lock()
	c.speakTarget = messageID
	c.mutex.Unlock()
}

func (c *Client) currentSpeakTarget() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.speakTarget
}

// onPlaybackState relays controller transitions as speak-button state.
// Runs inside the controller's critical section, so it only queues frames.
func (c *Client) onPlaybackState(state speech.State) {
	target := c.currentSpeakTarget()
	c.sendJSON(CreatePlaybackStateMessage(target, state))
	if state == speech.StateIdle {
		c.setSpeakTarget("")
	}
}

// SpeechFailed implements speech.Notifier: the single user-visible notice
// for a failed playback attempt.
func (c *Client) SpeechFailed(kind speech.FailureKind, err error) {
	c.sendJSON(CreateNoticeMessage(string(kind), failureText(kind)))
}

func failureText(kind speech.FailureKind) string {
	switch kind {
	case speech.FailureSynthesis:
		return "Could not fetch audio for this answer. Please try again."
	case speech.FailureDecode:
		return "The audio for this answer was unreadable. Please try again."
	default:
		return "Could not play this answer. Please try again."
	}
}
