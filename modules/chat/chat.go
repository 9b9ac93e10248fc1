// Package chat is the request/response demo service. Clients invoke
// `chat:send` with one line of text; the server validates it, keeps a
// bounded history, and rebroadcasts it to everyone on `chat:message`.
package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/endpoint"
	"github.com/stellar-lua/stellar/internal/future"
	"github.com/stellar-lua/stellar/internal/host"
	"github.com/stellar-lua/stellar/internal/messaging"
	"github.com/stellar-lua/stellar/internal/modtree"
)

const (
	sendChannel    = "chat:send"
	messageChannel = "chat:message"

	// historyLimit bounds the retained backlog; older lines fall off.
	historyLimit = 128
)

// Message is one accepted chat line.
type Message struct {
	From channel.Peer
	Text string
}

// Server owns the send handler and the broadcast fan-out.
type Server struct {
	host *host.Host

	mu      sync.Mutex
	history []Message
}

// ServerUnit declares the server-side chat service for discovery.
func ServerUnit(h *host.Host) *modtree.Unit {
	return &modtree.Unit{
		Name: "chat",
		Load: func(ctx context.Context) (any, error) {
			return &Server{host: h}, nil
		},
	}
}

// Init reserves the chat channels and binds the send handler.
func (s *Server) Init(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	err := s.host.Auth.Reserve(ctx, []endpoint.Entry{
		{Name: sendChannel, Kind: channel.KindRequest},
		{Name: messageChannel, Kind: channel.KindEvent},
	})
	if err != nil {
		return err
	}
	if !s.host.Auth.OnInvoke(ctx, sendChannel, s.handleSend) {
		return fmt.Errorf("chat: cannot bind the send handler on %q", sendChannel)
	}
	logger.Debug("Chat service ready.")
	return nil
}

// handleSend validates one send request, records it, and rebroadcasts it.
// The acknowledgement is the history length after the append.
func (s *Server) handleSend(ctx context.Context, from channel.Peer, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("chat: want exactly one argument, got %d", len(args))
	}
	text, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("chat: message must be a string, got %T", args[0])
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("chat: message must not be blank")
	}

	s.mu.Lock()
	s.history = append(s.history, Message{From: from, Text: text})
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
	total := len(s.history)
	s.mu.Unlock()

	if err := s.host.Auth.SignalAll(ctx, messageChannel, string(from), text); err != nil {
		return nil, err
	}
	return total, nil
}

// History returns a copy of the retained messages, oldest first.
func (s *Server) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Client sends chat lines and keeps a feed of everything broadcast while it
// was attached.
type Client struct {
	host *host.Host

	mu   sync.Mutex
	feed []Message
	sub  *messaging.Subscription
}

// ClientUnit declares the client-side chat service for discovery.
func ClientUnit(h *host.Host) *modtree.Unit {
	return &modtree.Unit{
		Name: "chat",
		Load: func(ctx context.Context) (any, error) {
			return &Client{host: h}, nil
		},
	}
}

// Init attaches the broadcast listener. The attach waits for the server to
// have reserved the channel first.
func (c *Client) Init(ctx context.Context) error {
	sub, err := c.host.Client.ObserveSignal(ctx, messageChannel, c.onMessage).Wait(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// Send invokes the send channel and returns the server's acknowledgement.
func (c *Client) Send(ctx context.Context, text string) (any, error) {
	return c.host.Client.Invoke(ctx, sendChannel, text)
}

// Observe attaches an additional listener to the broadcast channel. The
// future resolves once the subscription is live.
func (c *Client) Observe(ctx context.Context, fn channel.EventFunc) *future.Future[*messaging.Subscription] {
	return c.host.Client.ObserveSignal(ctx, messageChannel, fn)
}

// onMessage journals one broadcast line. Malformed payloads are dropped
// with a log line.
func (c *Client) onMessage(ctx context.Context, _ channel.Peer, args []any) {
	logger := ctxlog.FromContext(ctx)
	if len(args) != 2 {
		logger.Warn("Dropping a malformed chat broadcast.", "args", len(args))
		return
	}
	from, fromOK := args[0].(string)
	text, textOK := args[1].(string)
	if !fromOK || !textOK {
		logger.Warn("Dropping a malformed chat broadcast.")
		return
	}
	c.mu.Lock()
	c.feed = append(c.feed, Message{From: channel.Peer(from), Text: text})
	c.mu.Unlock()
}

// Feed returns a copy of the broadcasts seen so far, oldest first.
func (c *Client) Feed() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.feed)
}

// Close detaches the broadcast listener. Safe to call before Init or twice.
func (c *Client) Close() {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}
