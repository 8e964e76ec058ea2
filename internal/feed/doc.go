// Package feed consumes a live request-rate stream over a websocket.
//
// The connection moves through Connecting, Open and Closed. A Closed
// connection is retried after a fixed delay until the context is cancelled.
// Each numeric sample is added to a rolling window whose summary is served
// alongside the stats of the endpoint the feed belongs to.
package feed
