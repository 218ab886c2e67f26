package keypad

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/UnknownOlympus/strider/internal/controller"
	"github.com/UnknownOlympus/strider/internal/mapview"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Client is the keypad's WebSocket connection to the walker.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serialises writes
}

// Dial connects to the walker's /ws endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	return &Client{conn: conn}, nil
}

// SendKey sends a browser keyCode.
func (c *Client) SendKey(keyCode int) error {
	data, err := json.Marshal(mapview.KeyMessage{KeyCode: keyCode})
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err = c.conn.WriteJSON(mapview.Message{Type: mapview.TypeKey, Data: data}); err != nil {
		return fmt.Errorf("failed to send key: %w", err)
	}

	return nil
}

// Listen reads frames until the connection fails and forwards state updates and alert texts.
// It returns the read error; a closed connection after Close is reported as nil.
func (c *Client) Listen(states chan<- controller.State, alerts chan<- string) error {
	for {
		var msg mapview.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("failed to read from walker: %w", err)
		}

		switch msg.Type {
		case mapview.TypeState:
			var state controller.State
			if err := json.Unmarshal(msg.Data, &state); err == nil {
				states <- state
			}
		case mapview.TypeAlert:
			var alert mapview.AlertMessage
			if err := json.Unmarshal(msg.Data, &alert); err == nil {
				alerts <- alert.Message
			}
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return c.conn.Close()
}
