// Package codec translates between the gateway's wire format and the
// normalized types in model.
//
// Inbound frames are either small JSON control frames (subscription acks,
// auth errors) or bulk data frames: a one-character encryption flag and three
// further pipe-separated segments, the last being caret-separated records
// decoded by fixed field offset. Outbound frames are JSON subscribe and
// unsubscribe commands.
package codec
