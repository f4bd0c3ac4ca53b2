// Package exchange defines the capability contract every exchange connector
// implements, the failure-interception combinators applied at each call
// site, and the registry the controller resolves connectors from.
//
// Connector failures never crash a caller: one-shot calls degrade to the
// kind's empty payload, streaming calls end with an error that the caller
// publishes, and cancellation is always a clean stop.
package exchange
