// Package registry implements the lazy module registry: discovery of
// declared module units, one-shot resolution, and one-shot initialization.
//
// # Lifecycle
//
// Every module name moves through the same states, and each transition
// happens at most once for the lifetime of a Registry:
//
//	Unregistered -> Registered -> Resolving -> Resolved
//	Resolved -> Initializing -> Initialized
//
// Discovery walks module collections and registers every leaf under its
// declared name. Resolution imports a registered unit the first time anyone
// asks for it; concurrent callers share the single import and all observe
// the same outcome. Initialization runs the module's optional Init hook the
// first time an initialized value is requested; concurrent callers share the
// single hook run and all block until it returns.
//
// # Failure policy
//
// The only fatal conditions are discovery-time programming errors (a
// duplicate declared name, a unit without a load function, a non-collection
// discovery argument), which panic. A load or Init that returns an error or
// panics is logged and recorded as a terminal outcome: resolution of that
// name yields nothing from then on, and initialization is still considered
// complete. Failed names never retry.
//
// # Waiting and diagnostics
//
// A caller asking for a name before it is registered waits for it to appear,
// polling on a short fixed tick. Every wait in this package is observed by a
// watchdog that warns once past its threshold and then keeps waiting;
// thresholds scale with the registry's configured time unit, and no
// diagnostic ever aborts or alters an operation. Cancelling the caller's
// context abandons that caller's wait only; a shared import or hook keeps
// running for everyone else.
package registry
