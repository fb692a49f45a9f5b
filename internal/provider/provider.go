// internal/provider/provider.go
package provider

import (
	"context"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/models"
)

// ChannelProvider sends a notification over one delivery medium.
// Validate must be cheap and side-effect free; Send may block up to the
// caller's context deadline.
type ChannelProvider interface {
	Channel() models.Channel
	Validate(n *models.Notification) error
	Send(ctx context.Context, n *models.Notification) (*models.DeliveryResult, error)
}

// Registry maps channels to their configured providers.
type Registry struct {
	providers map[models.Channel]ChannelProvider
}

func NewRegistry(providers ...ChannelProvider) *Registry {
	r := &Registry{providers: make(map[models.Channel]ChannelProvider)}
	for _, p := range providers {
		r.providers[p.Channel()] = p
	}
	return r
}

// Register adds or replaces the provider for its channel.
func (r *Registry) Register(p ChannelProvider) {
	r.providers[p.Channel()] = p
}

// Provider returns the provider for the channel, or CHANNEL_UNKNOWN when
// none is configured for it.
func (r *Registry) Provider(channel models.Channel) (ChannelProvider, error) {
	p, ok := r.providers[channel]
	if !ok {
		return nil, errors.NewChannelUnknownError(string(channel))
	}
	return p, nil
}

// Channels lists the channels that have a configured provider.
func (r *Registry) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.providers))
	for _, c := range models.AllChannels {
		if _, ok := r.providers[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
