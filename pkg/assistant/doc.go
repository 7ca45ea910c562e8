// Package assistant provides a reusable client for the assistant websocket
// protocol.
//
// It keeps one connection to the backend alive with capped exponential
// backoff, subscribes in assistant mode, sends heartbeats while idle, executes
// device-side tools on request and fans inbound events out to per-conversation
// listeners.
package assistant
