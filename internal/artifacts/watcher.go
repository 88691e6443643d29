package artifacts

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// UpdateFunc is called with the new bundle version whenever the
// registry announces one. Implementations fetch and atomically swap
// the engine snapshot; errors are theirs to log.
type UpdateFunc func(version string)

// Watcher subscribes to the artifact registry's update channel and
// invokes the callback on each announcement. Connection failures are
// retried with exponential backoff for the lifetime of the context.
type Watcher struct {
	url      string
	onUpdate UpdateFunc
}

// NewWatcher builds a watcher for the registry's websocket endpoint.
func NewWatcher(url string, onUpdate UpdateFunc) *Watcher {
	return &Watcher{url: url, onUpdate: onUpdate}
}

type updateMsg struct {
	Version string `json:"version"`
}

// Watch runs until the context is canceled.
func (w *Watcher) Watch(ctx context.Context) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := w.watchOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Dur("backoff", backoff).Msg("artifact watcher disconnected, reconnecting")

				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}

				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = time.Second
		}
	}
}

func (w *Watcher) watchOnce(ctx context.Context) error {
	log.Info().Str("url", w.url).Msg("connecting to artifact update channel")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	// Close the connection when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-pingTicker.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var msg updateMsg
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read update: %w", err)
		}
		if msg.Version == "" {
			log.Debug().Msg("ignoring artifact update without a version")
			continue
		}

		log.Info().Str("version", msg.Version).Msg("artifact update announced")
		w.onUpdate(msg.Version)
	}
}
