package realtime

import (
	"context"
	"encoding/json"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// envelope is what travels over Redis between server instances.
type envelope struct {
	UserIDs []uint       `json:"userIds"`
	Pool    bool         `json:"pool"`
	Event   models.Event `json:"event"`
}

// Hub publishes events to push subscribers. With Redis configured every
// instance receives every event and delivers to its own sessions; without
// it delivery is local.
type Hub struct {
	Router  *Router
	redis   *redis.Client
	channel string
	log     zerolog.Logger
}

func NewHub(client *redis.Client, channel string, log zerolog.Logger) *Hub {
	return &Hub{
		Router:  NewRouter(),
		redis:   client,
		channel: channel,
		log:     log.With().Str("component", "push_hub").Logger(),
	}
}

// Publish sends ev to audience. Errors only come from Redis; local delivery
// never fails as a whole.
func (h *Hub) Publish(ctx context.Context, ev models.Event, audience models.Audience) error {
	env := envelope{UserIDs: audience.UserIDs, Pool: audience.Pool, Event: ev}
	if h.redis == nil {
		h.deliver(env)
		return nil
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, h.channel, b).Err()
}

// Run consumes the Redis channel until ctx is done. It returns immediately
// when Redis is not configured.
func (h *Hub) Run(ctx context.Context) {
	if h.redis == nil {
		return
	}
	sub := h.redis.Subscribe(ctx, h.channel)
	defer sub.Close()

	h.log.Info().Str("channel", h.channel).Msg("Listening for push fan-out")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.log.Warn().Err(err).Msg("Dropping malformed push envelope")
				continue
			}
			h.deliver(env)
		}
	}
}

// Close disconnects every local session.
func (h *Hub) Close() {
	h.Router.Close()
}

func (h *Hub) deliver(env envelope) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode push event")
		return
	}
	n := h.Router.Deliver(env.UserIDs, env.Pool, payload)
	h.log.Debug().
		Str("type", string(env.Event.Type)).
		Interface("users", env.UserIDs).
		Bool("pool", env.Pool).
		Int("sessions", n).
		Msg("Push delivered")
}
