package eventfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sheerbytes/streamplan/pkg/protocol"
)

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// Watch connects to the feed at wsURL and calls onEnv for every event until
// ctx is cancelled or the connection drops. It returns nil on cancellation.
func Watch(ctx context.Context, wsURL string, logger *slog.Logger, onEnv func(protocol.Envelope)) error {
	conn, resp, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				return fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		// Closing the connection unblocks ReadMessage.
		conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read feed: %w", err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("invalid feed message", "error", err)
			continue
		}
		if err := env.ValidateBasic(); err != nil {
			logger.Warn("invalid feed envelope", "error", err)
			continue
		}
		onEnv(env)
	}
}
