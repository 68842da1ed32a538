// ABOUTME: Tests for the session channel lifecycle with fake transports
// ABOUTME: Covers handshake, reconnect timing, buffered flush order, and terminal auth failure

package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

type fakeTransport struct {
	in        chan *protocol.Frame
	inErr     chan error
	sent      chan *protocol.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan *protocol.Frame, 32),
		inErr:  make(chan error, 8),
		sent:   make(chan *protocol.Frame, 32),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Send(ctx context.Context, f *protocol.Frame) error {
	select {
	case <-t.closed:
		return errors.New("transport closed")
	default:
	}
	t.sent <- f
	return nil
}

func (t *fakeTransport) Receive(ctx context.Context) (*protocol.Frame, error) {
	select {
	case f := <-t.in:
		return f, nil
	case err := <-t.inErr:
		return nil, err
	case <-t.closed:
		return nil, errors.New("transport closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int
	ready chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{ready: make(chan *fakeTransport, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	tr := newFakeTransport()
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	d.ready <- tr
	return tr, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
	fire  chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{fire: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time { return time.Now() }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	return c.fire
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

func staticCreds(token string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) { return token, nil }
}

func recvFrame(t *testing.T, ch <-chan *protocol.Frame) *protocol.Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		require.True(t, ok, "frame channel closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func nextTransport(t *testing.T, d *fakeDialer) *fakeTransport {
	t.Helper()
	select {
	case tr := <-d.ready:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

// acceptAuth reads the auth frame from the transport and acknowledges it.
func acceptAuth(t *testing.T, tr *fakeTransport, wantToken string) {
	t.Helper()
	f := recvFrame(t, tr.sent)
	require.Equal(t, protocol.KindAuth, f.Type)
	if wantToken != "" {
		assert.Equal(t, wantToken, f.Token)
	}
	tr.in <- &protocol.Frame{Type: protocol.KindAuthAck, OK: true}
}

func waitState(t *testing.T, c *Channel, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want },
		2*time.Second, 5*time.Millisecond, "never reached state %s", want)
}

func TestChannel_ConnectAuthAndReceive(t *testing.T) {
	dialer := newFakeDialer()
	ch := NewChannel("wss://test", dialer, staticCreds("tok-1"), Options{})
	defer ch.Close()

	sub := ch.Subscribe()
	require.NoError(t, ch.Start(context.Background()))

	tr := nextTransport(t, dialer)
	acceptAuth(t, tr, "tok-1")
	waitState(t, ch, StateOpen)

	tr.in <- &protocol.Frame{Type: protocol.KindAgentResponse, Agent: protocol.AgentSales, Content: "hello"}
	got := recvFrame(t, sub)
	assert.Equal(t, protocol.KindAgentResponse, got.Type)
	assert.Equal(t, "hello", got.Content)
}

func TestChannel_ReconnectsAfterConnectionLoss(t *testing.T) {
	dialer := newFakeDialer()
	clock := newFakeClock()
	ch := NewChannel("wss://test", dialer, staticCreds(""), Options{
		BackoffBase: time.Second,
		BackoffCap:  30 * time.Second,
		Clock:       clock,
		Rand:        rand.New(rand.NewSource(7)),
	})
	defer ch.Close()

	sub := ch.Subscribe()
	require.NoError(t, ch.Start(context.Background()))

	tr := nextTransport(t, dialer)
	acceptAuth(t, tr, "")
	waitState(t, ch, StateOpen)

	// Backend drops the connection.
	tr.Close()

	// Subscribers hear about it as a system message.
	notice := recvFrame(t, sub)
	assert.Equal(t, protocol.KindSystem, notice.Type)
	assert.Contains(t, notice.Content, "connection lost")

	// First retry is scheduled at roughly the base delay: one doubling step
	// not yet taken, jitter adds at most a quarter.
	waitState(t, ch, StateBackingOff)
	waits := clock.recorded()
	require.Len(t, waits, 1)
	assert.GreaterOrEqual(t, waits[0], time.Second)
	assert.LessOrEqual(t, waits[0], 1250*time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())

	// Let the timer fire; a second dial and handshake follow.
	clock.fire <- time.Now()
	tr2 := nextTransport(t, dialer)
	acceptAuth(t, tr2, "")
	waitState(t, ch, StateOpen)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestChannel_NoAuthAckTimesOutAndSchedulesOneReconnect(t *testing.T) {
	dialer := newFakeDialer()
	clock := newFakeClock()
	ch := NewChannel("wss://test", dialer, staticCreds(""), Options{
		AuthTimeout: 50 * time.Millisecond,
		BackoffBase: time.Second,
		BackoffCap:  30 * time.Second,
		Clock:       clock,
		Rand:        rand.New(rand.NewSource(3)),
	})
	defer ch.Close()

	require.NoError(t, ch.Start(context.Background()))

	// The backend accepts the connection and reads the auth frame but never
	// acknowledges it.
	tr := nextTransport(t, dialer)
	f := recvFrame(t, tr.sent)
	require.Equal(t, protocol.KindAuth, f.Type)

	// The handshake deadline elapses; exactly one retry is scheduled at
	// roughly the base delay, not immediately.
	waitState(t, ch, StateBackingOff)
	waits := clock.recorded()
	require.Len(t, waits, 1)
	assert.GreaterOrEqual(t, waits[0], time.Second)
	assert.LessOrEqual(t, waits[0], 1250*time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())

	// The next attempt completes normally.
	clock.fire <- time.Now()
	tr2 := nextTransport(t, dialer)
	acceptAuth(t, tr2, "")
	waitState(t, ch, StateOpen)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestChannel_BufferedMessagesFlushInOrderAfterHandshake(t *testing.T) {
	dialer := newFakeDialer()
	ch := NewChannel("wss://test", dialer, staticCreds(""), Options{})
	defer ch.Close()

	prefs := &protocol.Frame{Type: protocol.KindPreferences, RoutingMode: "multi",
		SelectedAgents: []protocol.AgentIdentity{protocol.AgentSales, protocol.AgentTalent}}
	require.NoError(t, ch.SyncPreferences(context.Background(), prefs))

	// Two messages typed while offline.
	require.NoError(t, ch.SendMessage(context.Background(), &protocol.Message{
		ID: "m1", Kind: protocol.KindUserMessage, Content: "first", Timestamp: time.Now()}))
	require.NoError(t, ch.SendMessage(context.Background(), &protocol.Message{
		ID: "m2", Kind: protocol.KindUserMessage, Content: "second", Timestamp: time.Now()}))

	require.NoError(t, ch.Start(context.Background()))
	tr := nextTransport(t, dialer)
	acceptAuth(t, tr, "")

	// Preferences replay first, then the buffer in submission order.
	f := recvFrame(t, tr.sent)
	assert.Equal(t, protocol.KindPreferences, f.Type)
	assert.Equal(t, "multi", f.RoutingMode)

	f = recvFrame(t, tr.sent)
	assert.Equal(t, "m1", f.ID)
	f = recvFrame(t, tr.sent)
	assert.Equal(t, "m2", f.ID)

	waitState(t, ch, StateOpen)
}

func TestChannel_AuthRejectionIsTerminal(t *testing.T) {
	dialer := newFakeDialer()
	clock := newFakeClock()
	ch := NewChannel("wss://test", dialer, staticCreds("bad"), Options{Clock: clock})
	defer ch.Close()

	sub := ch.Subscribe()
	require.NoError(t, ch.Start(context.Background()))

	tr := nextTransport(t, dialer)
	f := recvFrame(t, tr.sent)
	require.Equal(t, protocol.KindAuth, f.Type)
	tr.in <- &protocol.Frame{Type: protocol.KindAuthAck, OK: false, Error: "token expired", Terminal: true}

	waitState(t, ch, StateFailed)

	notice := recvFrame(t, sub)
	assert.Equal(t, protocol.KindSystem, notice.Type)
	assert.Contains(t, notice.Content, "token expired")

	// No backoff was scheduled and no second dial happens.
	assert.Empty(t, clock.recorded())
	assert.Equal(t, 1, dialer.dialCount())

	// The subscriber channel drains closed and sends are refused.
	_, ok := <-sub
	assert.False(t, ok)
	assert.ErrorIs(t, ch.Send(context.Background(), protocol.SystemNotice("x")), ErrClosed)
}

func TestChannel_QueueEvictsEphemeraBeforeUserMessages(t *testing.T) {
	dialer := newFakeDialer()
	ch := NewChannel("wss://test", dialer, staticCreds(""), Options{QueueSize: 2})
	defer ch.Close()

	ctx := context.Background()
	require.NoError(t, ch.SendMessage(ctx, &protocol.Message{
		ID: "m1", Kind: protocol.KindUserMessage, Content: "keep me", Timestamp: time.Now()}))
	require.NoError(t, ch.SendMessage(ctx, &protocol.Message{
		ID: "t1", Kind: protocol.KindTyping, Agent: protocol.AgentSales, Timestamp: time.Now()}))

	// Queue is full; the typing frame goes first.
	require.NoError(t, ch.SendMessage(ctx, &protocol.Message{
		ID: "m2", Kind: protocol.KindUserMessage, Content: "also keep", Timestamp: time.Now()}))

	// Full of user messages now; the oldest one gives way.
	require.NoError(t, ch.SendMessage(ctx, &protocol.Message{
		ID: "m3", Kind: protocol.KindUserMessage, Content: "newest", Timestamp: time.Now()}))

	require.NoError(t, ch.Start(ctx))
	tr := nextTransport(t, dialer)
	acceptAuth(t, tr, "")

	f := recvFrame(t, tr.sent)
	assert.Equal(t, "m2", f.ID)
	f = recvFrame(t, tr.sent)
	assert.Equal(t, "m3", f.ID)
}

func TestChannel_CloseDiscardsBufferAndStopsReconnect(t *testing.T) {
	dialer := newFakeDialer()
	ch := NewChannel("wss://test", dialer, staticCreds(""), Options{})

	sub := ch.Subscribe()
	require.NoError(t, ch.SendMessage(context.Background(), &protocol.Message{
		ID: "m1", Kind: protocol.KindUserMessage, Content: "never sent", Timestamp: time.Now()}))

	require.NoError(t, ch.Start(context.Background()))
	tr := nextTransport(t, dialer)
	acceptAuth(t, tr, "")
	waitState(t, ch, StateOpen)

	// Drain the flushed frame so the transport buffer holds nothing.
	recvFrame(t, tr.sent)

	require.NoError(t, ch.Close())
	assert.Equal(t, StateClosed, ch.State())

	_, ok := <-sub
	assert.False(t, ok)

	assert.ErrorIs(t, ch.Send(context.Background(), protocol.SystemNotice("x")), ErrClosed)
	assert.ErrorIs(t, ch.Start(context.Background()), ErrClosed)
	require.NoError(t, ch.Close())
}

func TestChannel_InvalidFramesDroppedWithoutReconnect(t *testing.T) {
	dialer := newFakeDialer()
	ch := NewChannel("wss://test", dialer, staticCreds(""), Options{})
	defer ch.Close()

	sub := ch.Subscribe()
	require.NoError(t, ch.Start(context.Background()))

	tr := nextTransport(t, dialer)
	acceptAuth(t, tr, "")
	waitState(t, ch, StateOpen)

	tr.inErr <- fmt.Errorf("%w: not json", protocol.ErrMalformedFrame)
	tr.inErr <- fmt.Errorf("%w: %q", protocol.ErrUnknownKind, "banana")
	tr.in <- &protocol.Frame{Type: protocol.KindAgentResponse, Agent: protocol.AgentTalent, Content: "still here"}

	got := recvFrame(t, sub)
	assert.Equal(t, "still here", got.Content)
	assert.Equal(t, StateOpen, ch.State())
	assert.Equal(t, 1, dialer.dialCount())
}

func TestChannel_SendWhileOpenGoesDirect(t *testing.T) {
	dialer := newFakeDialer()
	ch := NewChannel("wss://test", dialer, staticCreds(""), Options{})
	defer ch.Close()

	require.NoError(t, ch.Start(context.Background()))
	tr := nextTransport(t, dialer)
	acceptAuth(t, tr, "")
	waitState(t, ch, StateOpen)

	require.NoError(t, ch.SendMessage(context.Background(), &protocol.Message{
		ID: "m1", Kind: protocol.KindUserMessage, Content: "hi", Timestamp: time.Now()}))
	f := recvFrame(t, tr.sent)
	assert.Equal(t, "m1", f.ID)
	assert.Equal(t, protocol.KindUserMessage, f.Type)
}
