package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/swaralabs/wicara/domain/entities"
	"github.com/swaralabs/wicara/internal/auth"
	"github.com/swaralabs/wicara/internal/websocket"
	"github.com/swaralabs/wicara/usecase"
)

// claimsKey is where requireClient stashes validated claims on the context
const claimsKey = "client_claims"

// InitRoutes initializes all API routes
func InitRoutes(
	e *echo.Echo,
	hub *websocket.Hub,
	chat *usecase.ChatService,
	speechService *usecase.SpeechService,
	tokens *auth.TokenManager,
	logger *zap.Logger,
) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "wicara-server",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	// Client APIs
	v1.POST("/client/auth", func(c echo.Context) error {
		return clientAuth(c, tokens, logger)
	})

	// Conversation APIs, all behind a client token
	conversations := v1.Group("/conversations", requireClient(tokens, logger))
	conversations.POST("", func(c echo.Context) error {
		return startConversation(c, chat, logger)
	})
	conversations.GET("/latest", func(c echo.Context) error {
		return latestConversation(c, chat, logger)
	})
	conversations.GET("/:id", func(c echo.Context) error {
		return getConversation(c, chat, logger)
	})
	conversations.POST("/:id/messages", func(c echo.Context) error {
		return sendMessage(c, chat, logger)
	})
	conversations.POST("/:id/messages/:messageID/simplify", func(c echo.Context) error {
		return simplifyMessage(c, chat, logger)
	})
	conversations.GET("/:id/messages/:messageID/speech.wav", func(c echo.Context) error {
		return messageSpeech(c, chat, speechService, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, c, tokens, logger)
	})
}

// clientAuth issues a token for an embedded chat client. Clients are
// anonymous; the ID only ties a visitor back to their conversation.
func clientAuth(c echo.Context, tokens *auth.TokenManager, logger *zap.Logger) error {
	var req ClientAuthRequest

	// Bind and validate request
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind client auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	clientID := req.ClientID
	if clientID == "" {
		// First visit; mint an identity the embedding page can keep
		clientID = uuid.NewString()
	}

	token, err := tokens.GenerateClientToken(clientID)
	if err != nil {
		logger.Error("Failed to generate client token",
			zap.String("client_id", clientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	// Expiration mirrors the JWT claims
	expiresAt := time.Now().Add(tokens.TTL())

	logger.Info("Client authenticated", zap.String("client_id", clientID))

	return c.JSON(http.StatusOK, ClientAuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  clientID,
	})
}

// requireClient validates the bearer token and stashes its claims for the
// handlers behind it
func requireClient(tokens *auth.TokenManager, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header",
				})
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			if claims.Role != auth.RoleClient {
				logger.Warn("Request rejected: invalid role", zap.String("role", claims.Role))
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "invalid_role",
					Message: "Only client tokens are allowed",
				})
			}

			if claims.ClientID == "" {
				return c.JSON(http.StatusBadRequest, ErrorResponse{
					Error:   "invalid_token_claims",
					Message: "Client ID not found in token",
				})
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// bearerToken extracts the token from the Authorization header
func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" && len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ""
}

// clientClaims returns the claims requireClient stored on the context
func clientClaims(c echo.Context) *auth.Claims {
	claims, _ := c.Get(claimsKey).(*auth.Claims)
	return claims
}

// ownedConversation loads the conversation from the :id parameter and checks
// it belongs to the authenticated client. A foreign conversation and a
// missing one look the same to the caller.
func ownedConversation(c echo.Context, chat *usecase.ChatService, logger *zap.Logger) (*entities.Conversation, error) {
	notFound := func() error {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "conversation_not_found",
			Message: "Conversation not found",
		})
	}

	conversation, err := chat.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, usecase.ErrConversationNotFound) {
			return nil, notFound()
		}
		logger.Error("Failed to load conversation", zap.Error(err))
		return nil, c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load conversation",
		})
	}

	if conversation.ClientID != clientClaims(c).ClientID {
		return nil, notFound()
	}

	return conversation, nil
}

// startConversation opens a fresh conversation regardless of what came
// before, for the widget's explicit "start over" action
func startConversation(c echo.Context, chat *usecase.ChatService, logger *zap.Logger) error {
	claims := clientClaims(c)

	conversation, err := chat.StartConversation(c.Request().Context(), claims.ClientID)
	if err != nil {
		logger.Error("Failed to start conversation",
			zap.String("client_id", claims.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to start a conversation",
		})
	}

	return c.JSON(http.StatusCreated, conversation)
}

// latestConversation returns the client's current conversation, starting a
// fresh one when the previous expired or idled out
func latestConversation(c echo.Context, chat *usecase.ChatService, logger *zap.Logger) error {
	claims := clientClaims(c)

	conversation, err := chat.Resume(c.Request().Context(), claims.ClientID)
	if err != nil {
		logger.Error("Failed to resume conversation",
			zap.String("client_id", claims.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to resume conversation",
		})
	}

	return c.JSON(http.StatusOK, conversation)
}

func getConversation(c echo.Context, chat *usecase.ChatService, logger *zap.Logger) error {
	conversation, err := ownedConversation(c, chat, logger)
	if conversation == nil {
		return err
	}
	return c.JSON(http.StatusOK, conversation)
}

// sendMessage is the synchronous chat path: store the question, answer it
func sendMessage(c echo.Context, chat *usecase.ChatService, logger *zap.Logger) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind send message request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Text is required",
		})
	}

	conversation, err := ownedConversation(c, chat, logger)
	if conversation == nil {
		return err
	}

	user, reply, err := chat.Send(c.Request().Context(), conversation.ID.Hex(), req.Text)
	if err != nil {
		logger.Error("Failed to answer message",
			zap.String("conversation_id", conversation.ID.Hex()),
			zap.Error(err))
		if user.ID != "" {
			// The question was stored; only the reply failed
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "reply_failed",
				Message: "The question was saved but no answer could be generated",
			})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to store the message",
		})
	}

	return c.JSON(http.StatusOK, SendMessageResponse{
		UserMessage: user,
		Reply:       reply,
	})
}

// simplifyMessage produces a plainer rewrite of a model answer
func simplifyMessage(c echo.Context, chat *usecase.ChatService, logger *zap.Logger) error {
	conversation, err := ownedConversation(c, chat, logger)
	if conversation == nil {
		return err
	}

	message, err := chat.Simplify(c.Request().Context(), conversation.ID.Hex(), c.Param("messageID"))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrMessageNotFound):
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "message_not_found",
				Message: "Message not found",
			})
		case errors.Is(err, usecase.ErrNotModelMessage):
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "not_model_message",
				Message: "Only model answers can be simplified",
			})
		default:
			logger.Error("Failed to simplify message",
				zap.String("conversation_id", conversation.ID.Hex()),
				zap.String("message_id", c.Param("messageID")),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "simplify_failed",
				Message: "Failed to simplify the answer",
			})
		}
	}

	return c.JSON(http.StatusOK, message)
}

// messageSpeech renders a stored message as a WAV download
func messageSpeech(c echo.Context, chat *usecase.ChatService, speechService *usecase.SpeechService, logger *zap.Logger) error {
	conversation, err := ownedConversation(c, chat, logger)
	if conversation == nil {
		return err
	}

	data, err := speechService.RenderMessage(c.Request().Context(), conversation.ID.Hex(), c.Param("messageID"))
	if err != nil {
		if errors.Is(err, usecase.ErrMessageNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "message_not_found",
				Message: "Message not found",
			})
		}
		logger.Error("Failed to render message audio",
			zap.String("conversation_id", conversation.ID.Hex()),
			zap.String("message_id", c.Param("messageID")),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "synthesis_failed",
			Message: "Failed to synthesize the message",
		})
	}

	return c.Blob(http.StatusOK, "audio/wav", data)
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, c echo.Context, tokens *auth.TokenManager, logger *zap.Logger) error {
	token := bearerToken(c)
	if token == "" {
		// Browsers cannot set headers on a WebSocket dial, so the widget
		// passes its token as a query parameter instead
		token = c.QueryParam("token")
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	// Validate JWT token
	claims, err := tokens.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	// Verify this is a client token
	if claims.Role != auth.RoleClient {
		logger.Warn("WebSocket connection rejected: invalid role",
			zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only client tokens are allowed for WebSocket connections",
		})
	}

	// Extract client ID from JWT claims
	clientID := claims.ClientID
	if clientID == "" {
		logger.Error("WebSocket connection rejected: missing client ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Client ID not found in token",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("client_id", clientID))

	// Handle WebSocket connection with authenticated client ID
	return websocket.ServeClient(hub, c, clientID, logger)
}
