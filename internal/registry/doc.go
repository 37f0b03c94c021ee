// Package registry tracks the desired realtime subscription set and exposes
// it to the session manager as an ordered intent stream.
package registry
