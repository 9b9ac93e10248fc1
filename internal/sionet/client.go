package sionet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/ctxlog"
)

// Default tunables for a dialed connection.
const (
	DefaultDialTimeout   = 15 * time.Second
	DefaultLookupTimeout = time.Second
)

// DialOption tunes a Client before it connects.
type DialOption func(*Client)

// WithDialTimeout bounds how long Dial waits for the connection handshake.
func WithDialTimeout(d time.Duration) DialOption {
	return func(c *Client) { c.dialTimeout = d }
}

// WithLookupTimeout bounds one directory round trip. Individual misses are
// retried by the caller's poll loop, so this only governs how quickly an
// unreachable server turns into a miss.
func WithLookupTimeout(d time.Duration) DialOption {
	return func(c *Client) { c.lookupTimeout = d }
}

// Client is one peer's end of the transport and its view of the directory.
// Renames re-key handles in this view only.
type Client struct {
	logger *slog.Logger
	// baseCtx carries the logger into work started by socket callbacks,
	// which arrive without a context of their own.
	baseCtx context.Context
	peer    channel.Peer
	io      *socket.Socket
	emit    emitFunc

	dialTimeout   time.Duration
	lookupTimeout time.Duration

	seq atomic.Uint64

	mu      sync.Mutex
	byLocal map[string]localEntry
	hidden  map[string]bool
	byWire  map[string]*clientHandleBase
	lookups map[string]chan lookupReply
	invokes map[string]chan invokeReply
}

// localEntry pairs the kind-specific handle a caller sees with the base it
// is built on, so renames can reach setID without a type switch.
type localEntry struct {
	handle channel.Handle
	base   *clientHandleBase
}

type lookupReply struct {
	found bool
	id    string
	kind  channel.Kind
}

type invokeReply struct {
	ok     bool
	value  any
	errMsg string
}

// newClient builds the view state shared by Dial and the tests that drive
// the protocol handlers directly.
func newClient(ctx context.Context, peer channel.Peer) *Client {
	return &Client{
		logger:        ctxlog.FromContext(ctx),
		baseCtx:       context.WithoutCancel(ctx),
		peer:          peer,
		dialTimeout:   DefaultDialTimeout,
		lookupTimeout: DefaultLookupTimeout,
		byLocal:       make(map[string]localEntry),
		hidden:        make(map[string]bool),
		byWire:        make(map[string]*clientHandleBase),
		lookups:       make(map[string]chan lookupReply),
		invokes:       make(map[string]chan invokeReply),
	}
}

// Dial connects to a server, announces the peer name, and returns the
// client view. An empty or reserved peer name is a programmer error.
func Dial(ctx context.Context, rawURL string, peer channel.Peer, opts ...DialOption) (*Client, error) {
	logger := ctxlog.FromContext(ctx)
	if peer == "" || peer == channel.Authority {
		panic(fmt.Sprintf("sionet: invalid peer name '%s'", string(peer)))
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	c := newClient(ctx, peer)
	for _, opt := range opts {
		opt(c)
	}

	sockOpts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		sockOpts.SetPath(parsedURL.Path)
	}
	sockOpts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sockOpts)
	io := manager.Socket("/", sockOpts)
	c.io = io
	c.emit = func(ev string, args ...any) { io.Emit(ev, args...) }

	// Announce on every connect, so a reconnect rejoins the roster without
	// anyone asking.
	io.On(types.EventName("connect"), func(...any) {
		logger.Debug("Transport connected; announcing peer.", "peer", string(peer))
		c.emit(evJoin, string(peer))
	})
	io.On(types.EventName(evLookupResult), c.onLookupResult)
	io.On(types.EventName(evInvokeResult), c.onInvokeResult)
	io.On(types.EventName(evEvent), c.onEvent)

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, ok := errs[0].(error)
		if !ok {
			err = fmt.Errorf("sionet: connect failed: %v", errs[0])
		}
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(c.dialTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", c.dialTimeout)
	}

	logger.Info("Connected.", "peer", string(peer), "sid", io.Id())
	return c, nil
}

// Peer returns the name this client joined under.
func (c *Client) Peer() channel.Peer { return c.peer }

// Close disconnects from the server. Invocations still in flight fail when
// their contexts end; they are not cut short here.
func (c *Client) Close() {
	c.io.Disconnect()
	c.logger.Debug("Transport closed.", "peer", string(c.peer))
}

// Lookup resolves name through the local view first and the directory
// second. The first successful resolution materializes a handle that every
// later call returns unchanged.
func (c *Client) Lookup(name string) (channel.Handle, bool) {
	c.mu.Lock()
	if entry, ok := c.byLocal[name]; ok {
		c.mu.Unlock()
		return entry.handle, true
	}
	if c.hidden[name] {
		c.mu.Unlock()
		return nil, false
	}
	c.mu.Unlock()

	reply, ok := c.wireLookup(name)
	if !ok || !reply.found {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.byLocal[name]; ok {
		// A concurrent lookup materialized the handle first.
		return entry.handle, true
	}
	base := &clientHandleBase{conn: c, wire: reply.id, kind: reply.kind, id: name}
	handle := wrapClientHandle(base)
	c.byLocal[name] = localEntry{handle: handle, base: base}
	c.byWire[reply.id] = base
	return handle, true
}

// Create is refused: only the authoritative side may create channels.
func (c *Client) Create(name string, kind channel.Kind) (channel.Handle, error) {
	return nil, channel.ErrNotAuthoritative
}

// Rename re-keys one materialized handle in this view only. The original
// name answers false on Lookup afterwards; nothing crosses the wire.
func (c *Client) Rename(name, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.byLocal[name]
	if !ok {
		return false
	}
	if name == id {
		return true
	}
	delete(c.byLocal, name)
	c.byLocal[id] = entry
	c.hidden[name] = true
	entry.base.setID(id)
	return true
}

// Peers is empty on clients; only the authoritative side sees the roster.
func (c *Client) Peers() []channel.Peer {
	return nil
}

func (c *Client) nextSeq() string {
	return strconv.FormatUint(c.seq.Add(1), 10)
}

// wireLookup runs one directory round trip.
func (c *Client) wireLookup(name string) (lookupReply, bool) {
	seq := c.nextSeq()
	ch := make(chan lookupReply, 1)

	c.mu.Lock()
	c.lookups[seq] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.lookups, seq)
		c.mu.Unlock()
	}()

	c.emit(evLookup, seq, name)

	select {
	case reply := <-ch:
		return reply, true
	case <-time.After(c.lookupTimeout):
		return lookupReply{}, false
	}
}

// call correlates one invocation with its result event. The wait has no
// deadline of its own (an unbound handler parks the far side), so the
// caller's context is the only way out.
func (c *Client) call(ctx context.Context, wire string, args []any) (any, error) {
	seq := c.nextSeq()
	ch := make(chan invokeReply, 1)

	c.mu.Lock()
	c.invokes[seq] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.invokes, seq)
		c.mu.Unlock()
	}()

	c.emit(evInvoke, seq, wire, args)

	select {
	case reply := <-ch:
		if !reply.ok {
			return nil, errors.New(reply.errMsg)
		}
		return reply.value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) onLookupResult(datas ...any) {
	if len(datas) < 4 {
		c.logger.Warn("Dropping a malformed lookup result.")
		return
	}
	seq, seqOK := asString(datas[0])
	found, foundOK := asBool(datas[1])
	id, idOK := asString(datas[2])
	kindStr, kindOK := asString(datas[3])
	if !seqOK || !foundOK || !idOK || !kindOK {
		c.logger.Warn("Dropping a malformed lookup result.")
		return
	}

	reply := lookupReply{found: found, id: id}
	if found {
		kind, err := channel.ParseKind(kindStr)
		if err != nil {
			c.logger.Warn("Dropping a lookup result with an unknown kind.", "kind", kindStr)
			return
		}
		reply.kind = kind
	}

	c.mu.Lock()
	waiter, ok := c.lookups[seq]
	c.mu.Unlock()
	if !ok {
		// The caller timed out and withdrew.
		return
	}
	select {
	case waiter <- reply:
	default:
	}
}

func (c *Client) onInvokeResult(datas ...any) {
	if len(datas) < 4 {
		c.logger.Warn("Dropping a malformed invocation result.")
		return
	}
	seq, seqOK := asString(datas[0])
	okFlag, okOK := asBool(datas[1])
	errMsg, errOK := asString(datas[3])
	if !seqOK || !okOK || !errOK {
		c.logger.Warn("Dropping a malformed invocation result.")
		return
	}

	c.mu.Lock()
	waiter, ok := c.invokes[seq]
	c.mu.Unlock()
	if !ok {
		// The caller's context ended and it withdrew.
		return
	}
	select {
	case waiter <- invokeReply{ok: okFlag, value: datas[2], errMsg: errMsg}:
	default:
	}
}

func (c *Client) onEvent(datas ...any) {
	if len(datas) < 3 {
		c.logger.Warn("Dropping a malformed event.")
		return
	}
	id, idOK := asString(datas[0])
	from, fromOK := asString(datas[1])
	args, argsOK := asArgs(datas[2])
	if !idOK || !fromOK || !argsOK {
		c.logger.Warn("Dropping a malformed event.")
		return
	}

	c.mu.Lock()
	base, ok := c.byWire[id]
	c.mu.Unlock()
	if !ok {
		// Traffic for a channel this view never resolved.
		c.logger.Debug("Dropping an event for an unresolved channel.", "id", id)
		return
	}
	base.dispatch(c.baseCtx, channel.Peer(from), args)
}

// clientHandleBase is the view-local state of one resolved channel: the
// immutable wire id it rides on, the mutable id the view presents, and this
// side's observers.
type clientHandleBase struct {
	conn *Client
	wire string
	kind channel.Kind

	mu        sync.Mutex
	id        string
	nextObs   int
	observers []obsEntry
}

func (b *clientHandleBase) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

func (b *clientHandleBase) Kind() channel.Kind { return b.kind }

func (b *clientHandleBase) setID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = id
}

func (b *clientHandleBase) attach(fn channel.EventFunc) channel.Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextObs
	b.nextObs++
	b.observers = append(b.observers, obsEntry{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, o := range b.observers {
			if o.id == id {
				b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
				return
			}
		}
	}
}

func (b *clientHandleBase) dispatch(ctx context.Context, from channel.Peer, args []any) {
	b.mu.Lock()
	observers := append([]obsEntry(nil), b.observers...)
	b.mu.Unlock()
	for _, o := range observers {
		go o.fn(ctx, from, args)
	}
}

// wrapClientHandle picks the kind-appropriate capability surface.
func wrapClientHandle(base *clientHandleBase) channel.Handle {
	if base.kind == channel.KindEvent {
		return &cliEventHandle{base}
	}
	return &cliRequestHandle{base}
}

// cliEventHandle can fire at the authoritative side and observe traffic
// addressed to this peer.
type cliEventHandle struct {
	*clientHandleBase
}

func (h *cliEventHandle) FireAuthority(ctx context.Context, args []any) error {
	h.conn.emit(evFire, h.wire, args)
	return nil
}

func (h *cliEventHandle) Observe(fn channel.EventFunc) (channel.Unsubscribe, error) {
	return h.attach(fn), nil
}

// cliRequestHandle can invoke the authoritative handler.
type cliRequestHandle struct {
	*clientHandleBase
}

func (h *cliRequestHandle) Call(ctx context.Context, args []any) (any, error) {
	return h.conn.call(ctx, h.wire, args)
}
