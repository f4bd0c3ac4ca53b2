// Package bus provides the topic-routed publish/subscribe transport that
// connects the gateway and the controller. Subjects are dot-separated
// routing keys; subscriptions may use the usual wildcards ("*" for one
// token, ">" for the tail).
//
// A lost connection is fatal to the owning process: there is no reconnect
// logic, the Closed channel fires and the process is expected to restart.
package bus
