// Package protocol implements the assistant wire format.
//
// Every frame is a msgpack map {conversationId?, type, body}. Bodies are
// carried as a closed Value tree (Nil, Bool, Int, Float, String, Bytes, List,
// Map) and converted to typed messages with the Parse* helpers.
package protocol
