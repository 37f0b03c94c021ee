package registry

import (
	"context"
	"log/slog"

	"github.com/stockplus/kisfeed/internal/model"
)

// FavoriteSource supplies the persisted favorite instruments read at session
// bootstrap.
type FavoriteSource interface {
	Favorites(ctx context.Context) ([]model.Favorite, error)
}

// Config holds Subscription Registry settings.
type Config struct {
	// EventBuffer bounds the intent stream. Intents enqueued while the
	// buffer is full are dropped; the next session bootstrap re-derives the
	// desired set from persisted favorites, which is the state relied upon
	// for correctness.
	EventBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{EventBuffer: 256}
}

// Registry tracks the set of (instrument, venue, channel) triples that
// should currently be streamed. Add and Remove may be called from many
// concurrent request-handling contexts; they only enqueue intents and never
// wait on network state.
type Registry struct {
	cfg       Config
	favorites FavoriteSource
	logger    *slog.Logger

	events chan model.SubscriptionIntent
}

// New creates a Subscription Registry.
func New(cfg Config, favorites FavoriteSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBuffer < 1 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	return &Registry{
		cfg:       cfg,
		favorites: favorites,
		logger:    logger,
		events:    make(chan model.SubscriptionIntent, cfg.EventBuffer),
	}
}

// Events returns the ordered intent stream consumed by the session manager.
func (r *Registry) Events() <-chan model.SubscriptionIntent {
	return r.events
}

// Add enqueues a subscribe intent for the instrument on the given venue.
// When the venue is the default/unspecified primary one, a companion intent
// for the night-session venue variant is enqueued as well: the gateway
// requires a separate subscription per venue even for the same instrument.
func (r *Registry) Add(code string, venue model.Venue) {
	r.logger.Info("adding subscription", "code", code, "venue", venue)
	r.enqueue(model.SubscriptionIntent{
		Key:     model.SubscriptionKey{Code: code, Venue: normalizeVenue(venue)},
		Channel: model.ChannelTrade,
		Action:  model.ActionAdd,
	})
	if isDefaultVenue(venue) {
		r.enqueue(model.SubscriptionIntent{
			Key:     model.SubscriptionKey{Code: code, Venue: model.VenueAlt},
			Channel: model.ChannelTrade,
			Action:  model.ActionAdd,
		})
	}
}

// Remove enqueues the exact mirror of Add for the same key: the same
// companion set with the opposite action, so a Remove following an Add fully
// reverses what was enqueued.
func (r *Registry) Remove(code string, venue model.Venue) {
	r.logger.Info("removing subscription", "code", code, "venue", venue)
	r.enqueue(model.SubscriptionIntent{
		Key:     model.SubscriptionKey{Code: code, Venue: normalizeVenue(venue)},
		Channel: model.ChannelTrade,
		Action:  model.ActionRemove,
	})
	if isDefaultVenue(venue) {
		r.enqueue(model.SubscriptionIntent{
			Key:     model.SubscriptionKey{Code: code, Venue: model.VenueAlt},
			Channel: model.ChannelTrade,
			Action:  model.ActionRemove,
		})
	}
}

// Bootstrap derives the full desired subscription set for a fresh session:
// the two fixed index symbols, then every favorite on its trade and quote
// channels across the regular, unified and night-session venues.
func (r *Registry) Bootstrap(ctx context.Context) ([]model.SubscriptionIntent, error) {
	favorites, err := r.favorites.Favorites(ctx)
	if err != nil {
		return nil, err
	}

	// Deduplicate by instrument code; the same code can be favorited in
	// several watchlists.
	seen := make(map[string]struct{}, len(favorites))
	unique := favorites[:0]
	for _, f := range favorites {
		if _, dup := seen[f.Code]; dup {
			continue
		}
		seen[f.Code] = struct{}{}
		unique = append(unique, f)
	}

	intents := make([]model.SubscriptionIntent, 0, 2+len(unique)*5)
	for _, idx := range []string{model.IndexKOSPI, model.IndexKOSDAQ} {
		intents = append(intents, model.SubscriptionIntent{
			Key:     model.SubscriptionKey{Code: idx, Venue: model.VenueIndex},
			Channel: model.ChannelTrade,
			Action:  model.ActionAdd,
		})
	}
	for _, f := range unique {
		for _, leg := range []struct {
			venue   model.Venue
			channel model.Channel
		}{
			{model.VenuePrimary, model.ChannelTrade},
			{model.VenueUnified, model.ChannelTrade},
			{model.VenueUnified, model.ChannelQuote},
			{model.VenueAlt, model.ChannelTrade},
			{model.VenueAlt, model.ChannelQuote},
		} {
			intents = append(intents, model.SubscriptionIntent{
				Key:     model.SubscriptionKey{Code: f.Code, Venue: leg.venue},
				Channel: leg.channel,
				Action:  model.ActionAdd,
			})
		}
	}

	r.logger.Info("bootstrap subscription set built",
		"favorites", len(unique),
		"intents", len(intents),
	)
	return intents, nil
}

// enqueue is fire-and-forget: an intent against a full stream is dropped,
// never blocks the caller.
func (r *Registry) enqueue(intent model.SubscriptionIntent) {
	select {
	case r.events <- intent:
	default:
		r.logger.Warn("intent stream full, dropping intent",
			"code", intent.Key.Code,
			"venue", intent.Key.Venue,
			"action", intent.Action,
		)
	}
}

func isDefaultVenue(v model.Venue) bool {
	return v == model.VenuePrimary || v == ""
}

func normalizeVenue(v model.Venue) model.Venue {
	if v == "" {
		return model.VenuePrimary
	}
	return v
}
