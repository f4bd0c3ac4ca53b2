// Package gateway implements the client-side demand table. It tracks, per
// stream identifier, which sessions are waiting for a first payload and
// which are confirmed subscribers, emits deduplicated demand to the
// controller on 0→1 and 1→0 transitions, and fans bus publications out to
// the right sessions with snapshot-before-update ordering per session.
package gateway
