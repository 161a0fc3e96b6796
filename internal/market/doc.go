// Package market integrates with the external yield data service. It
// exposes filtered USDC lending opportunities and position validation,
// degrading to empty results when the feed is unavailable so that market
// data never blocks the execution pipeline.
package market
