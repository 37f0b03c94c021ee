// Package model defines the shared data types flowing between the feed
// components: subscription identity, intents, and normalized quotes.
package model
