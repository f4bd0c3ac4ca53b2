// Package bittrex implements the Bittrex connector against the v3 REST API.
// Bittrex has no public websocket feed usable without SignalR, so all
// streaming methods poll snapshots. Market symbols are hyphenated upstream
// (BTC-USDT) and translated from the unified form on every request.
package bittrex
