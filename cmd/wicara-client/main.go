package main

// wicara-client exercises the widget protocol end to end against a running
// server: it authenticates, opens the WebSocket, asks a question, toggles
// spoken playback of the answer, and saves the streamed audio as a WAV file.
//
// Usage:
//
//	go run ./cmd/wicara-client -server http://localhost:8080 -text "What is Wicara?"

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swaralabs/wicara/pkg/wav"
)

type authRequest struct {
	ClientID string `json:"client_id,omitempty"`
}

type authResponse struct {
	Token    string `json:"token"`
	ClientID string `json:"client_id"`
}

// wireMessage is a flattened view of every server frame the client cares
// about. Unused fields stay zero for frame types that do not carry them.
type wireMessage struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Chat           json.RawMessage `json:"chat,omitempty"`
	TargetID       string          `json:"target_id,omitempty"`
	State          string          `json:"state,omitempty"`
	SampleRate     int             `json:"sample_rate,omitempty"`
	Channels       int             `json:"channels,omitempty"`
	Stopped        bool            `json:"stopped,omitempty"`
	Kind           string          `json:"kind,omitempty"`
	Text           string          `json:"text,omitempty"`
	Code           string          `json:"error_code,omitempty"`
	Message        string          `json:"message,omitempty"`
}

type chatPayload struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Citations []struct {
		Title string `json:"title"`
		URI   string `json:"uri"`
	} `json:"citations,omitempty"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Base URL of the wicara server")
	text := flag.String("text", "What can this widget do?", "Question to send")
	output := flag.String("output", "answer.wav", "File to write the spoken answer to")
	clientID := flag.String("client", "", "Client ID to reuse (a new one is minted when empty)")
	flag.Parse()

	token, id, err := authenticate(*server, *clientID)
	if err != nil {
		log.Fatal("Failed to authenticate:", err)
	}
	log.Printf("Authenticated as client %s", id)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	wsURL, err := websocketURL(*server)
	if err != nil {
		log.Fatal("Bad server URL:", err)
	}
	log.Printf("Connecting to %s", wsURL)

	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, headers)
	if err != nil {
		log.Fatal("WebSocket dial failed:", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		runExchange(conn, *text, *output)
	}()

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrupted, closing connection")
		err := conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("Close write failed:", err)
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

// authenticate obtains a JWT from the client auth endpoint. An empty clientID
// asks the server to mint a fresh identity.
func authenticate(server, clientID string) (token, id string, err error) {
	body, err := json.Marshal(authRequest{ClientID: clientID})
	if err != nil {
		return "", "", err
	}

	resp, err := http.Post(server+"/api/v1/client/auth", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("auth returned status %d", resp.StatusCode)
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", "", err
	}
	return auth.Token, auth.ClientID, nil
}

// websocketURL derives the ws:// endpoint from the server's HTTP base URL.
func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}

// runExchange drives the scripted conversation: wait for the snapshot, ask
// the question, toggle playback of the answer, and collect audio until the
// stream ends.
func runExchange(conn *websocket.Conn, text, output string) {
	// The whole exchange, synthesis included, has to finish within this.
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Minute)); err != nil {
		log.Println("Set deadline failed:", err)
		return
	}

	var (
		audio      bytes.Buffer
		chunks     int
		sampleRate = 24000
		channels   = 1
	)

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			log.Println("Read failed:", err)
			return
		}

		if messageType == websocket.BinaryMessage {
			audio.Write(payload)
			chunks++
			continue
		}

		var msg wireMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Println("Malformed frame:", err)
			continue
		}

		switch msg.Type {
		case "conversation":
			log.Printf("Joined conversation %s", msg.ConversationID)
			ask := map[string]interface{}{"type": "chat_send", "text": text}
			if err := conn.WriteJSON(ask); err != nil {
				log.Println("Send failed:", err)
				return
			}
			log.Printf("Asked: %s", text)

		case "chat_event":
			var chat chatPayload
			if err := json.Unmarshal(msg.Chat, &chat); err != nil {
				log.Println("Malformed chat payload:", err)
				return
			}
			if chat.Role != "model" {
				log.Printf("Question stored as message %s", chat.ID)
				continue
			}
			log.Printf("Answer: %s", chat.Content)
			for _, citation := range chat.Citations {
				log.Printf("  Source: %s (%s)", citation.Title, citation.URI)
			}
			toggle := map[string]interface{}{"type": "speak_toggle", "target_id": chat.ID}
			if err := conn.WriteJSON(toggle); err != nil {
				log.Println("Toggle failed:", err)
				return
			}
			log.Println("Requested spoken playback")

		case "playback_state":
			log.Printf("Playback state: %s", msg.State)

		case "speech_start":
			sampleRate = msg.SampleRate
			channels = msg.Channels
			log.Printf("Audio stream started (%d Hz, %d channel(s))", sampleRate, channels)

		case "speech_end":
			log.Printf("Audio stream ended (stopped=%v, %d chunks, %d bytes)",
				msg.Stopped, chunks, audio.Len())
			data, err := wav.FromPCM(audio.Bytes(), channels, sampleRate)
			if err != nil {
				log.Println("WAV encode failed:", err)
				return
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				log.Println("Write failed:", err)
				return
			}
			log.Printf("Saved spoken answer to %s", output)
			return

		case "notice":
			// Any notice during this scripted run means playback went wrong.
			log.Printf("Notice (%s): %s", msg.Kind, msg.Text)
			return

		case "error":
			log.Printf("Server error (%s): %s", msg.Code, msg.Message)
			return

		case "pong":

		default:
			log.Printf("Unexpected message type: %s", msg.Type)
		}
	}
}
