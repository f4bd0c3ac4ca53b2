// Package model defines the shared data types of the market-data platform:
// stream identifiers, demand messages, error messages and market-data
// payloads.
//
// Conventions:
//   - Prices and volumes: decimal strings, exactly as exchanges report them
//   - Timestamps: int64 Unix seconds
//   - Stream identifiers: canonical dotted form kind.exchange.pair[.timeframe]
package model
