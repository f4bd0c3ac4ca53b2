// Package binance implements the Binance connector. Snapshots come from the
// public REST API; ticker and candle streams ride the combined websocket
// endpoint, while depth updates are polled because Binance's diff-depth
// stream would require local book reconstruction.
package binance
