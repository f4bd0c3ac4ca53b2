// Package controller implements the demand multiplexer of the market-data
// service. It consumes demand messages from the bus, validates them against
// the listing cache, owns at most one producer task per stream identifier,
// and maps connector output onto starting/update/error publications.
package controller
