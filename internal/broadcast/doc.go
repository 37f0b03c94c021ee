// Package broadcast implements the bounded multicast channel between the
// wire codec (sole producer) and any number of quote consumers.
package broadcast
