package sionet

// Control event names. The prefix keeps them out of the way of any
// application-level socket.io traffic sharing the connection.
const (
	evJoin         = "__stellar:join"
	evLookup       = "__stellar:lookup"
	evLookupResult = "__stellar:lookup:result"
	evFire         = "__stellar:fire"
	evInvoke       = "__stellar:invoke"
	evInvokeResult = "__stellar:invoke:result"
	evEvent        = "__stellar:event"
)

// emitFunc is the outbound seam. Production code wraps a socket's Emit;
// tests record what would have gone on the wire.
type emitFunc func(ev string, args ...any)

// asString coerces one decoded payload element.
func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asBool coerces one decoded payload element.
func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// asArgs coerces the trailing argument array of a payload. A missing array
// decodes as nil, which is a valid empty argument list.
func asArgs(v any) ([]any, bool) {
	if v == nil {
		return nil, true
	}
	args, ok := v.([]any)
	return args, ok
}
