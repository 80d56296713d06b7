// Package bridge implements the message protocol between sandboxed block
// code and its hosting runtime.
//
// # Overview
//
// A custom block runs in an isolated execution context with no direct access
// to host memory or the network. Everything it does - reading and writing
// its own state, executing declared actions, resolving connected inputs,
// posting, logging - happens through a single asynchronous message channel
// in each direction. This package defines the wire contract (Envelope,
// Payload) and both endpoints: the guest SDK block code calls, and the host
// Router that dispatches guest requests onto a Handler.
//
// # Request/response over an untyped channel
//
// Round trips are multiplexed by request id: the guest stamps each request
// with an id unique within its lifetime, parks the call in a pending table,
// and resolves it when a response with the same id arrives. Requests that
// receive no response within DefaultRequestTimeout reject with ErrTimeout
// and are evicted; late responses are dropped silently. Fire-and-forget
// operations (emit_output, notify, log, pushes) never wait.
//
// # The channel is untrusted
//
// Both sides validate every inbound envelope - source marker, payload
// presence, instance id - before touching it, and ignore anything that
// fails. A shared message namespace accumulates stray frames; dropping them
// is the protocol working, not an error path.
//
// # Ordering
//
// Each direction is FIFO, but nothing orders the two directions against
// each other. A state_update push can arrive before or after any given
// response; code on either side must not assume otherwise. State pushes
// carry a per-instance sequence number so a guest can discard pushes that
// arrive stale.
package bridge
