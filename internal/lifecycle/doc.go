// Package lifecycle binds views to engine requests.
//
// A Coordinator keeps one Binding per view. Reconfigure folds a props
// fragment into the binding's descriptor and, when the descriptor actually
// changed, disposes the previous engine handle and issues the new request.
// At most one live engine handle exists per binding at any time.
//
// Every issued request gets its own listener bound to a request token.
// Engine callbacks are forwarded to the binding's Sink as onCoilStart,
// onCoilCancel, onCoilError and onCoilSuccess events, in arrival order, only
// while the token is still current. Callbacks from superseded or torn down
// requests, and anything after a request's terminal callback, are dropped
// silently.
//
// Phases:
//
//	Idle -> Requesting -> {Succeeded, Failed, Cancelled}
//
// A changed configuration re-enters Requesting from any phase; Teardown
// returns the binding to Idle and releases it for good.
package lifecycle
