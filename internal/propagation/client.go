package propagation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Subscribe connects obs to a coordinator's observer endpoint, asks for the
// current state and applies every update until ctx is done or the
// connection drops.
func Subscribe(ctx context.Context, url string, obs *Observer) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, toWebsocketURL(url), http.Header{})
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer ws.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = ws.Close()
		case <-done:
		}
	}()

	if err := ws.WriteJSON(Message{Action: ActionGetSnippets}); err != nil {
		return fmt.Errorf("request snippets: %w", err)
	}

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		obs.Apply(msg)
	}
}

func toWebsocketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
