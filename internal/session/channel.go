// ABOUTME: Duplex session channel with auth handshake and automatic reconnect
// ABOUTME: Buffers outbound frames while disconnected and fans inbound frames out to subscribers

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pulsedesk/pulsedesk/internal/auth"
	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

// State is the connection lifecycle state of a channel.
type State string

const (
	StateIdle           State = "idle"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateOpen           State = "open"
	StateBackingOff     State = "backing_off"
	StateClosed         State = "closed"
	// StateFailed is terminal: the backend rejected our credentials and
	// retrying with the same identity would just be rejected again.
	StateFailed State = "failed"
)

// Channel errors
var (
	ErrClosed         = errors.New("session channel closed")
	ErrAuthRejected   = errors.New("authentication rejected")
	ErrAlreadyStarted = errors.New("session channel already started")
)

const subscriberBuffer = 64

// Options tunes a channel. Zero values fall back to sensible defaults.
type Options struct {
	QueueSize   int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	AuthTimeout time.Duration
	Clock       Clock
	Rand        *rand.Rand
	Logger      *slog.Logger
}

// Channel is a duplex connection to the conversation backend. It owns the
// connect/auth/reconnect lifecycle; callers just Send frames and read from
// Subscribe channels. Frames sent while disconnected are buffered and
// flushed in order once a connection reaches the open state.
type Channel struct {
	endpoint    string
	dialer      Dialer
	creds       auth.CredentialFunc
	clock       Clock
	logger      *slog.Logger
	queueSize   int
	authTimeout time.Duration
	backoff     *backoff
	done        chan struct{}

	mu          sync.Mutex
	state       State
	queue       []*protocol.Frame
	subscribers []chan *protocol.Frame
	transport   Transport
	prefsFrame  *protocol.Frame
	cancel      context.CancelFunc
}

// NewChannel creates a channel for the given endpoint. creds is called once
// per connection attempt so every handshake carries a fresh credential.
func NewChannel(endpoint string, dialer Dialer, creds auth.CredentialFunc, opts Options) *Channel {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 30 * time.Second
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Channel{
		endpoint:    endpoint,
		dialer:      dialer,
		creds:       creds,
		clock:       opts.Clock,
		logger:      opts.Logger.With("component", "session"),
		queueSize:   opts.QueueSize,
		authTimeout: opts.AuthTimeout,
		backoff:     newBackoff(opts.BackoffBase, opts.BackoffCap, opts.Rand),
		done:        make(chan struct{}),
		state:       StateIdle,
	}
}

// Start begins the connection lifecycle. It returns immediately; callers
// observe progress through State and Subscribe.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		if state == StateClosed || state == StateFailed {
			return ErrClosed
		}
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send delivers a frame to the backend, or buffers it if no connection is
// open. The buffer is bounded: when full, the oldest frame that is not a
// user message is evicted first, so typed words survive a flaky link at the
// expense of typing indicators and other ephemera.
func (c *Channel) Send(ctx context.Context, frame *protocol.Frame) error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateOpen && c.transport != nil {
		tr := c.transport
		c.mu.Unlock()
		if err := tr.Send(ctx, frame); err != nil {
			c.logger.Warn("send failed, buffering frame", "kind", frame.Type, "error", err)
			c.mu.Lock()
			c.enqueueLocked(frame)
			c.mu.Unlock()
		}
		return nil
	}
	c.enqueueLocked(frame)
	c.mu.Unlock()
	return nil
}

// SendMessage wraps a conversational message in a frame and sends it.
func (c *Channel) SendMessage(ctx context.Context, msg *protocol.Message) error {
	return c.Send(ctx, protocol.MessageFrame(msg))
}

// SyncPreferences records the latest routing preferences frame and pushes it
// to the backend if a connection is open. The recorded frame is replayed
// after every reconnect, immediately after the auth handshake, so the
// backend never routes against stale preferences.
func (c *Channel) SyncPreferences(ctx context.Context, frame *protocol.Frame) error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.prefsFrame = frame
	open := c.state == StateOpen
	tr := c.transport
	c.mu.Unlock()

	if open && tr != nil {
		if err := tr.Send(ctx, frame); err != nil {
			c.logger.Warn("preferences sync failed, will replay on reconnect", "error", err)
		}
	}
	return nil
}

// Subscribe returns a channel of inbound frames, delivered in receipt order.
// The channel is closed when the session channel shuts down. A subscriber
// that stops draining loses frames rather than stalling the session.
func (c *Channel) Subscribe() <-chan *protocol.Frame {
	ch := make(chan *protocol.Frame, subscriberBuffer)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed || c.state == StateFailed {
		close(ch)
		return ch
	}
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Close tears the channel down: any reconnect in flight is cancelled, the
// send buffer is discarded, and subscriber channels are closed. Close is
// idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.finishLocked(StateClosed)
		c.mu.Unlock()
		close(c.done)
		return nil
	}
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-c.done
	return nil
}

func (c *Channel) run(ctx context.Context) {
	final := StateClosed
	defer func() {
		c.mu.Lock()
		c.finishLocked(final)
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)

		tr, err := c.dialer.Dial(ctx, c.endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("dial failed", "endpoint", c.endpoint, "error", err)
			if !c.waitBackoff(ctx) {
				return
			}
			continue
		}

		c.setState(StateAuthenticating)
		if err := c.handshake(ctx, tr); err != nil {
			tr.Close()
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrAuthRejected) {
				c.logger.Error("authentication rejected", "error", err)
				c.broadcast(protocol.SystemNotice("session ended: " + err.Error()))
				final = StateFailed
				return
			}
			c.logger.Warn("handshake failed", "error", err)
			if !c.waitBackoff(ctx) {
				return
			}
			continue
		}

		if err := c.open(ctx, tr); err != nil {
			tr.Close()
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("flush after connect failed", "error", err)
			if !c.waitBackoff(ctx) {
				return
			}
			continue
		}

		c.backoff.reset()
		c.logger.Info("session open", "endpoint", c.endpoint)

		err = c.readLoop(ctx, tr)
		tr.Close()
		c.clearTransport()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("connection lost", "error", err)
		c.broadcast(protocol.SystemNotice("connection lost, reconnecting"))
		if !c.waitBackoff(ctx) {
			return
		}
	}
}

// handshake sends the auth frame and waits for the backend's acknowledgment.
// A rejected credential is terminal; retrying would present the same
// identity and fail the same way.
func (c *Channel) handshake(ctx context.Context, tr Transport) error {
	token, err := c.creds(ctx)
	if err != nil {
		return fmt.Errorf("minting credential: %w", err)
	}

	actx, cancel := context.WithTimeout(ctx, c.authTimeout)
	defer cancel()

	if err := tr.Send(actx, protocol.AuthFrame(token)); err != nil {
		return fmt.Errorf("sending auth frame: %w", err)
	}

	ack, err := tr.Receive(actx)
	if err != nil {
		return fmt.Errorf("waiting for auth ack: %w", err)
	}
	if ack.Type != protocol.KindAuthAck {
		return fmt.Errorf("expected auth ack, got %q", ack.Type)
	}
	if !ack.OK {
		return fmt.Errorf("%w: %s", ErrAuthRejected, ack.Error)
	}
	return nil
}

// open replays the preferences frame, flushes the send buffer in order, and
// marks the connection open. Frames enqueued while the flush is in flight
// are picked up by the next loop iteration, so ordering holds.
func (c *Channel) open(ctx context.Context, tr Transport) error {
	c.mu.Lock()
	prefs := c.prefsFrame
	c.mu.Unlock()

	if prefs != nil {
		if err := tr.Send(ctx, prefs); err != nil {
			return fmt.Errorf("syncing preferences: %w", err)
		}
	}

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.transport = tr
			c.state = StateOpen
			c.mu.Unlock()
			return nil
		}
		pending := c.queue
		c.queue = nil
		c.mu.Unlock()

		for i, f := range pending {
			if err := tr.Send(ctx, f); err != nil {
				c.mu.Lock()
				c.queue = append(pending[i:], c.queue...)
				c.mu.Unlock()
				return fmt.Errorf("flushing buffered frame: %w", err)
			}
		}
		c.logger.Debug("flushed buffered frames", "count", len(pending))
	}
}

func (c *Channel) readLoop(ctx context.Context, tr Transport) error {
	for {
		frame, err := tr.Receive(ctx)
		if err != nil {
			// Protocol violations leave the connection usable; only
			// transport failures end the read loop.
			if errors.Is(err, protocol.ErrUnknownKind) || errors.Is(err, protocol.ErrMalformedFrame) {
				c.logger.Warn("dropping invalid frame", "error", err)
				continue
			}
			return err
		}
		if frame.Type == protocol.KindAuthAck {
			// Duplicate ack after the handshake; nothing to do with it.
			continue
		}
		c.broadcast(frame)
	}
}

// waitBackoff sleeps out the next backoff delay. Returns false if the
// context was cancelled while waiting.
func (c *Channel) waitBackoff(ctx context.Context) bool {
	delay := c.backoff.next()
	c.setState(StateBackingOff)
	c.logger.Info("reconnecting", "delay", delay)
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(delay):
		return true
	}
}

func (c *Channel) enqueueLocked(frame *protocol.Frame) {
	if len(c.queue) >= c.queueSize {
		victim := 0
		for i, q := range c.queue {
			if q.Type != protocol.KindUserMessage {
				victim = i
				break
			}
		}
		c.logger.Warn("send buffer full, evicting frame", "kind", c.queue[victim].Type)
		c.queue = append(c.queue[:victim], c.queue[victim+1:]...)
	}
	c.queue = append(c.queue, frame)
}

func (c *Channel) broadcast(frame *protocol.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- frame:
		default:
			c.logger.Warn("subscriber lagging, dropping frame", "kind", frame.Type)
		}
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) clearTransport() {
	c.mu.Lock()
	c.transport = nil
	c.mu.Unlock()
}

// finishLocked moves the channel to its terminal state and releases
// everything subscribers and senders might still be holding onto.
func (c *Channel) finishLocked(final State) {
	c.state = final
	c.queue = nil
	c.transport = nil
	for _, ch := range c.subscribers {
		close(ch)
	}
	c.subscribers = nil
}
