// Package hub implements the subscription registry and broadcast fan-out
// using the actor pattern.
//
// A single goroutine owns the meter → subscriber map and processes register,
// unregister, and broadcast commands from a channel (no mutexes). Delivery to
// each subscriber goes through a per-connection write goroutine with a bounded
// buffer; a full buffer or write error drops only that subscriber. Map entries
// are removed the moment their last subscriber leaves.
package hub
