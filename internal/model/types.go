package model

// -----------------------------------------------------------------------------
// Market Identity
// -----------------------------------------------------------------------------

// Venue identifies the market/session variant an instrument trades on.
// The upstream gateway requires a separate subscription per venue even for
// the same instrument code.
type Venue string

const (
	VenuePrimary Venue = "J"   // KRX regular session
	VenueAlt     Venue = "NX"  // Nextrade night session
	VenueUnified Venue = "UN"  // Unified (KRX+NXT) feed
	VenueIndex   Venue = "IDX" // Sector/market index
)

// Channel selects which realtime stream is subscribed for a key.
type Channel string

const (
	ChannelTrade Channel = "CNT" // Confirmed trade executions
	ChannelQuote Channel = "ANC" // Order book / indicative price
)

// SubscriptionKey uniquely identifies one upstream subscription.
// A given (code, venue) pair is either subscribed or not; no multiplicity.
type SubscriptionKey struct {
	Code  string // Instrument code (e.g. "005930")
	Venue Venue
}

// Action distinguishes subscribe from unsubscribe intents.
type Action string

const (
	ActionAdd    Action = "1" // Upstream tr_type for register
	ActionRemove Action = "2" // Upstream tr_type for release
)

// SubscriptionIntent is one event on the registry's command stream.
// Ordering is preserved per producer; no cross-producer ordering is
// guaranteed or needed.
type SubscriptionIntent struct {
	Key     SubscriptionKey
	Channel Channel
	Action  Action
}

// -----------------------------------------------------------------------------
// Quotes
// -----------------------------------------------------------------------------

// Quote is the normalized broadcast unit produced by the wire codec.
// Numeric fields stay as the exchange-provided strings; nothing downstream
// does arithmetic on them and re-encoding would only lose the original
// formatting. A Quote is immutable once constructed.
type Quote struct {
	Code       string `json:"stockCode"`            // Instrument code
	Venue      Venue  `json:"exchangeCode"`         // Originating venue
	Time       string `json:"time"`                 // Exchange timestamp (HHMMSS)
	Price      string `json:"currentPrice"`         // Last / indicative price
	Sign       string `json:"priceSign"`            // Direction code (1-5)
	Change     string `json:"change"`               // Signed change vs prev close
	ChangeRate string `json:"changeRate"`           // Change percentage
	Volume     string `json:"volume"`               // Cumulative volume
	IsExpected bool   `json:"isExpected,omitempty"` // Indicative pre/post-market price
}

// Favorite is a persisted watchlist entry read at session bootstrap.
type Favorite struct {
	Code  string // Instrument code
	Venue Venue  // Primary venue; empty means VenuePrimary
}

// Index symbols subscribed on every session regardless of favorites.
const (
	IndexKOSPI  = "0001"
	IndexKOSDAQ = "1001"
)
