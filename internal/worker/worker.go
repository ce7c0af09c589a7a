package worker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"bailacheck/internal/dto"
	"bailacheck/internal/notifier"
	"bailacheck/internal/rabbit"
)

// Reader consumes notification messages from RabbitMQ and fans them out to
// connected clients through the push hub.
type Reader struct {
	RMQ    *rabbit.Client
	hub    *notifier.Hub
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, hub *notifier.Hub) *Reader {
	return &Reader{
		RMQ:  rmq,
		hub:  hub,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.NotificationMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("Failed to unmarshal notification: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("user_id", msg.UserID).
				Str("kind", msg.Kind).
				Msg("Received notification message")

			delivered := r.hub.Push(msg.UserID, notifier.Build(&msg))
			if !delivered {
				zlog.Logger.Debug().
					Str("user_id", msg.UserID).
					Msg("User not connected, notification dropped")
			}
			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("notification reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
