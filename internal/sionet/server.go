package sionet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/zishang520/socket.io/v2/socket"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/ctxlog"
)

// Server is the authoritative end of the transport: the channel directory,
// the peer roster, and the socket.io endpoint clients dial into.
type Server struct {
	logger *slog.Logger
	// baseCtx carries the logger into work started by socket callbacks,
	// which arrive without a context of their own.
	baseCtx context.Context
	io      *socket.Server

	closeOnce sync.Once
	closed    chan struct{}

	mu       sync.Mutex
	byName   map[string]*serverChannel
	byID     map[string]*serverChannel
	peers    map[channel.Peer]*peerLink
	bySocket map[socket.SocketId]channel.Peer
	httpSrv  *http.Server
}

// peerLink is one joined client: its announced name, the socket it spoke
// on, and the outbound seam for that socket.
type peerLink struct {
	peer channel.Peer
	sid  socket.SocketId
	emit emitFunc
}

// newServerState builds the directory and roster without the socket.io
// endpoint, so protocol handlers can be driven directly.
func newServerState(ctx context.Context) *Server {
	return &Server{
		logger:   ctxlog.FromContext(ctx),
		baseCtx:  context.WithoutCancel(ctx),
		closed:   make(chan struct{}),
		byName:   make(map[string]*serverChannel),
		byID:     make(map[string]*serverChannel),
		peers:    make(map[channel.Peer]*peerLink),
		bySocket: make(map[socket.SocketId]channel.Peer),
	}
}

// NewServer builds the authoritative transport. The context supplies the
// logger used for connection lifecycle and traffic diagnostics.
func NewServer(ctx context.Context) *Server {
	s := newServerState(ctx)
	s.io = socket.NewServer(nil, nil)
	s.io.On("connection", func(clients ...any) {
		sock, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.attach(sock)
	})
	return s
}

// Namespace returns the authoritative view of the directory.
func (s *Server) Namespace() channel.Namespace {
	return &serverNamespace{s: s}
}

// Handler returns the socket.io endpoint for mounting on an HTTP mux.
func (s *Server) Handler() http.Handler {
	return s.io.ServeHandler(nil)
}

// Serve mounts the handler under /socket.io/ on addr, with a liveness probe
// on /health, and blocks until ctx ends or the listener fails.
func (s *Server) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", s.Handler())
	mux.HandleFunc("/health", s.healthHandler)
	srv := &http.Server{Addr: addr, Handler: mux}

	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.closed:
		}
		s.Close()
	}()

	s.logger.Info("Transport listening.", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// healthHandler answers liveness probes on the transport listener.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// Close shuts the transport down. Safe to call more than once; invocations
// parked on an unbound handler are abandoned without a reply.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.io.Close(nil)

		s.mu.Lock()
		srv := s.httpSrv
		s.mu.Unlock()
		if srv != nil {
			_ = srv.Shutdown(context.Background())
		}
		s.logger.Debug("Transport closed.")
	})
}

// attach registers the control-event handlers for one connected socket. The
// socket stays anonymous until it announces a peer name on the join event.
func (s *Server) attach(sock *socket.Socket) {
	sid := sock.Id()
	emit := func(ev string, args ...any) { sock.Emit(ev, args...) }

	sock.On(evJoin, func(datas ...any) { s.onJoin(sid, emit, datas) })
	sock.On(evLookup, func(datas ...any) { s.onLookup(emit, datas) })
	sock.On(evFire, func(datas ...any) { s.onFire(sid, datas) })
	sock.On(evInvoke, func(datas ...any) { s.onInvoke(sid, emit, datas) })
	sock.On("disconnect", func(...any) { s.onLeave(sid) })
	s.logger.Debug("Transport connected.", "sid", sid)
}

func (s *Server) onJoin(sid socket.SocketId, emit emitFunc, datas []any) {
	if len(datas) < 1 {
		s.logger.Warn("Ignoring a join without a peer name.", "sid", sid)
		return
	}
	name, ok := asString(datas[0])
	if !ok || name == "" {
		s.logger.Warn("Ignoring a join without a peer name.", "sid", sid)
		return
	}
	peer := channel.Peer(name)

	s.mu.Lock()
	if _, rejoined := s.peers[peer]; rejoined {
		s.logger.Warn("Peer rejoined; replacing the previous link.", "peer", name)
	}
	s.peers[peer] = &peerLink{peer: peer, sid: sid, emit: emit}
	s.bySocket[sid] = peer
	s.mu.Unlock()

	s.logger.Info("Peer joined.", "peer", name, "sid", sid)
}

func (s *Server) onLeave(sid socket.SocketId) {
	s.mu.Lock()
	peer, joined := s.bySocket[sid]
	if joined {
		delete(s.bySocket, sid)
		// A rejoin may have moved the peer to a newer socket already.
		if link, ok := s.peers[peer]; ok && link.sid == sid {
			delete(s.peers, peer)
		}
	}
	s.mu.Unlock()

	if joined {
		s.logger.Info("Peer left.", "peer", string(peer), "sid", sid)
	} else {
		s.logger.Debug("Transport disconnected.", "sid", sid)
	}
}

func (s *Server) onLookup(emit emitFunc, datas []any) {
	if len(datas) < 2 {
		s.logger.Warn("Dropping a malformed lookup.")
		return
	}
	seq, seqOK := asString(datas[0])
	name, nameOK := asString(datas[1])
	if !seqOK || !nameOK {
		s.logger.Warn("Dropping a malformed lookup.")
		return
	}

	s.mu.Lock()
	ch, found := s.byName[name]
	s.mu.Unlock()

	if !found {
		emit(evLookupResult, seq, false, "", "")
		return
	}
	emit(evLookupResult, seq, true, ch.id, ch.kind.String())
}

func (s *Server) onFire(sid socket.SocketId, datas []any) {
	from, joined := s.peerOf(sid)
	if !joined {
		s.logger.Warn("Dropping traffic from an unjoined socket.", "sid", sid)
		return
	}
	if len(datas) < 2 {
		s.logger.Warn("Dropping a malformed fire.", "peer", string(from))
		return
	}
	id, idOK := asString(datas[0])
	args, argsOK := asArgs(datas[1])
	if !idOK || !argsOK {
		s.logger.Warn("Dropping a malformed fire.", "peer", string(from))
		return
	}

	s.mu.Lock()
	ch, found := s.byID[id]
	s.mu.Unlock()
	if !found {
		s.logger.Warn("Dropping a fire for an unknown channel.", "peer", string(from), "id", id)
		return
	}
	if ch.kind != channel.KindEvent {
		s.logger.Warn("Dropping a fire on a non-event channel.", "peer", string(from), "name", ch.name)
		return
	}
	ch.dispatch(s.baseCtx, from, args)
}

func (s *Server) onInvoke(sid socket.SocketId, emit emitFunc, datas []any) {
	from, joined := s.peerOf(sid)
	if !joined {
		s.logger.Warn("Dropping traffic from an unjoined socket.", "sid", sid)
		return
	}
	if len(datas) < 3 {
		s.logger.Warn("Dropping a malformed invocation.", "peer", string(from))
		return
	}
	seq, seqOK := asString(datas[0])
	id, idOK := asString(datas[1])
	args, argsOK := asArgs(datas[2])
	if !seqOK || !idOK || !argsOK {
		s.logger.Warn("Dropping a malformed invocation.", "peer", string(from))
		return
	}

	s.mu.Lock()
	ch, found := s.byID[id]
	s.mu.Unlock()
	if !found {
		emit(evInvokeResult, seq, false, nil, "sionet: unknown channel id")
		return
	}
	if ch.kind != channel.KindRequest {
		emit(evInvokeResult, seq, false, nil, fmt.Sprintf("sionet: channel '%s' is not a request channel", ch.name))
		return
	}
	go s.runInvoke(ch, from, seq, args, emit)
}

// runInvoke parks until a handler is bound, runs it, and replies. The park
// mirrors the in-process transport: an unbound handler is a wait, not an
// error. Closing the server abandons the wait.
func (s *Server) runInvoke(ch *serverChannel, from channel.Peer, seq string, args []any, emit emitFunc) {
	select {
	case <-ch.ready:
	case <-s.closed:
		return
	}

	v, err := func() (v any, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("sionet: handler for channel '%s' panicked: %v", ch.name, p)
			}
		}()
		return ch.currentHandler()(s.baseCtx, from, args)
	}()
	if err != nil {
		emit(evInvokeResult, seq, false, nil, err.Error())
		return
	}
	emit(evInvokeResult, seq, true, v, "")
}

func (s *Server) peerOf(sid socket.SocketId) (channel.Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peer, ok := s.bySocket[sid]
	return peer, ok
}

func (s *Server) peerLinkFor(peer channel.Peer) (*peerLink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.peers[peer]
	return link, ok
}

func (s *Server) peerLinks() []*peerLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	links := make([]*peerLink, 0, len(s.peers))
	for _, link := range s.peers {
		links = append(links, link)
	}
	return links
}

// createChannel finds or creates a directory entry. Creation under an
// existing name is idempotent for the same kind and refused for a
// different one.
func (s *Server) createChannel(name string, kind channel.Kind) (*serverChannel, error) {
	if !kind.Valid() {
		panic(fmt.Sprintf("sionet: invalid kind value %d for channel '%s'", int(kind), name))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byName[name]; ok {
		if existing.kind != kind {
			return nil, fmt.Errorf("%w: channel '%s' is %s, requested %s", channel.ErrKindMismatch, name, existing.kind, kind)
		}
		return existing, nil
	}
	ch := newServerChannel(name, kind)
	s.byName[name] = ch
	s.byID[ch.id] = ch
	s.logger.Debug("Channel created.", "name", name, "kind", kind.String(), "id", ch.id)
	return ch, nil
}

func (s *Server) channelByName(name string) (*serverChannel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.byName[name]
	return ch, ok
}

// serverChannel is one directory entry: the canonical id, the authoritative
// observers of client-originated events, and the request handler slot.
type serverChannel struct {
	name string
	id   string
	kind channel.Kind

	mu        sync.Mutex
	nextObs   int
	observers []obsEntry
	handler   channel.Handler
	ready     chan struct{} // closed when the first handler binds
	bound     bool
}

type obsEntry struct {
	id int
	fn channel.EventFunc
}

func newServerChannel(name string, kind channel.Kind) *serverChannel {
	return &serverChannel{
		name:  name,
		id:    uuid.NewString(),
		kind:  kind,
		ready: make(chan struct{}),
	}
}

// attach registers an authoritative observer and returns its removal func.
func (ch *serverChannel) attach(fn channel.EventFunc) channel.Unsubscribe {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	id := ch.nextObs
	ch.nextObs++
	ch.observers = append(ch.observers, obsEntry{id: id, fn: fn})
	return func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		for i, o := range ch.observers {
			if o.id == id {
				ch.observers = append(ch.observers[:i:i], ch.observers[i+1:]...)
				return
			}
		}
	}
}

// dispatch delivers one client-originated event to every observer, each on
// its own goroutine.
func (ch *serverChannel) dispatch(ctx context.Context, from channel.Peer, args []any) {
	ch.mu.Lock()
	observers := append([]obsEntry(nil), ch.observers...)
	ch.mu.Unlock()
	for _, o := range observers {
		go o.fn(ctx, from, args)
	}
}

// bind installs handler, reporting whether it replaced an earlier one.
func (ch *serverChannel) bind(handler channel.Handler) (replaced bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	replaced = ch.bound
	ch.handler = handler
	if !ch.bound {
		ch.bound = true
		close(ch.ready)
	}
	return replaced
}

func (ch *serverChannel) currentHandler() channel.Handler {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.handler
}

// serverNamespace is the authoritative namespace over the directory. It has
// no local overlay: renames are refused, names are canonical.
type serverNamespace struct {
	s *Server
}

func (v *serverNamespace) Lookup(name string) (channel.Handle, bool) {
	ch, ok := v.s.channelByName(name)
	if !ok {
		return nil, false
	}
	return v.s.handleFor(ch), true
}

func (v *serverNamespace) Create(name string, kind channel.Kind) (channel.Handle, error) {
	ch, err := v.s.createChannel(name, kind)
	if err != nil {
		return nil, err
	}
	return v.s.handleFor(ch), nil
}

func (v *serverNamespace) Rename(name, id string) bool {
	return false
}

func (v *serverNamespace) Peers() []channel.Peer {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	peers := make([]channel.Peer, 0, len(v.s.peers))
	for p := range v.s.peers {
		peers = append(peers, p)
	}
	return peers
}

// handleFor wraps a directory entry in the kind-appropriate authoritative
// handle, so capability assertions reflect the channel's kind.
func (s *Server) handleFor(ch *serverChannel) channel.Handle {
	if ch.kind == channel.KindEvent {
		return &srvEventHandle{s: s, ch: ch}
	}
	return &srvRequestHandle{ch: ch}
}

// srvEventHandle can address events to one peer or all peers, and observe
// client-originated traffic.
type srvEventHandle struct {
	s  *Server
	ch *serverChannel
}

func (h *srvEventHandle) ID() string         { return h.ch.id }
func (h *srvEventHandle) Kind() channel.Kind { return h.ch.kind }

func (h *srvEventHandle) FireTo(ctx context.Context, to channel.Peer, args []any) error {
	link, ok := h.s.peerLinkFor(to)
	if !ok {
		return fmt.Errorf("sionet: peer '%s' is not connected", string(to))
	}
	link.emit(evEvent, h.ch.id, string(channel.Authority), args)
	return nil
}

func (h *srvEventHandle) FireAll(ctx context.Context, args []any) error {
	for _, link := range h.s.peerLinks() {
		link.emit(evEvent, h.ch.id, string(channel.Authority), args)
	}
	return nil
}

func (h *srvEventHandle) Observe(fn channel.EventFunc) (channel.Unsubscribe, error) {
	return h.ch.attach(fn), nil
}

// srvRequestHandle owns the handler slot of a request channel.
type srvRequestHandle struct {
	ch *serverChannel
}

func (h *srvRequestHandle) ID() string         { return h.ch.id }
func (h *srvRequestHandle) Kind() channel.Kind { return h.ch.kind }

func (h *srvRequestHandle) Bind(handler channel.Handler) (replaced bool) {
	return h.ch.bind(handler)
}
