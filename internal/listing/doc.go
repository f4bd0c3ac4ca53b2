// Package listing maintains the per-exchange metadata cache (valid pairs
// and timeframes) used to validate incoming stream demands. The cache is
// populated before the controller accepts demand and replaced wholesale on
// refresh: readers see either the previous or the new snapshot, never a
// partial update.
package listing
