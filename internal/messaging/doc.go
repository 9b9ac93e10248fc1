// Package messaging is the peer-facing messaging surface: fire-and-forget
// signals over event channels, blocking invocations over request channels,
// and deferred (future-wrapped) variants of both.
//
// The two roles get distinct types instead of one type with forbidden
// methods. An Authoritative messenger addresses signals to specific peers or
// everyone, owns channel reservation and answers invocations; a Client
// messenger signals and invokes toward the authoritative side. Both observe
// incoming signals the same way. Which delivery abilities a negotiated
// handle actually has is discovered by interface assertion, so using a
// channel against its kind fails softly: the mismatch is logged, the caller
// gets an error, nothing panics and nothing is torn down.
//
// Invocations block until the authoritative handler answers. The 10-unit
// soft timeout is diagnostic only: one warning when exceeded, one matching
// resolution line when the call finally returns, and the call itself is
// never aborted. Cancelling the caller's context is the only way out early.
package messaging
