// Package sionet carries channels between processes over socket.io. The
// authoritative side runs the directory and the roster; clients dial in,
// announce themselves, and resolve channels by name through a small control
// vocabulary of socket.io events:
//
//	__stellar:join           client -> server   peer name
//	__stellar:lookup         client -> server   seq, channel name
//	__stellar:lookup:result  server -> client   seq, found, id, kind
//	__stellar:fire           client -> server   channel id, args
//	__stellar:invoke         client -> server   seq, channel id, args
//	__stellar:invoke:result  server -> client   seq, ok, value, error
//	__stellar:event          server -> client   channel id, from, args
//
// Requests are correlated by a per-connection sequence number; each pending
// call parks on its own buffered reply channel until the matching result
// event lands or the caller's context ends.
//
// Renames never cross the wire. A client that re-identifies a channel only
// re-keys its own view; the directory keeps the canonical id it assigned at
// creation, and every payload rides on that id.
package sionet
