package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// fakeClock records scheduled callbacks; tests fire them by hand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// live returns timers that have neither fired nor been stopped.
func (c *fakeClock) live() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// scheduled returns every timer ever armed with delay, oldest first.
func (c *fakeClock) scheduled(delay time.Duration) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if t.delay == delay {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeClock) fire(t *testing.T, delay time.Duration) {
	t.Helper()
	for _, tm := range c.live() {
		if tm.delay == delay {
			c.mu.Lock()
			tm.fired = true
			c.mu.Unlock()
			tm.f()
			return
		}
	}
	t.Fatalf("no live timer with delay %v", delay)
}

type fakeConn struct {
	in     chan []byte
	mu     sync.Mutex
	writes [][]byte
	closed bool
	failW  bool
	once   sync.Once
}

func newFakeConn() *fakeConn { return &fakeConn{in: make(chan []byte, 16)} }

func (c *fakeConn) ReadMessage() ([]byte, error) {
	data, ok := <-c.in
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failW || c.closed {
		return errors.New("write failed")
	}
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() { close(c.in) })
	return nil
}

func (c *fakeConn) push(t *testing.T, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.in <- data
}

func (c *fakeConn) written(t *testing.T) []map[string]interface{} {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(c.writes))
	for _, w := range c.writes {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(w, &m))
		out = append(out, m)
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  bool
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) setFail(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = v
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

type recordingListener struct {
	NopListener
	mu       sync.Mutex
	statuses []Status
	notified []domain.ChatMessage
}

func (l *recordingListener) OnStatus(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, s)
}

func (l *recordingListener) OnNotify(m domain.ChatMessage, _ int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notified = append(l.notified, m)
}

func (l *recordingListener) lastStatus() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statuses[len(l.statuses)-1]
}

type harness struct {
	client   *Client
	dialer   *fakeDialer
	clock    *fakeClock
	listener *recordingListener
}

func newHarness(t *testing.T, failDial bool) *harness {
	t.Helper()
	h := &harness{
		dialer:   &fakeDialer{fail: failDial},
		clock:    &fakeClock{},
		listener: &recordingListener{},
	}
	c, err := New(Options{
		URL:       "ws://chat.test/ws",
		User:      domain.Participant{ID: "me", Username: "alice"},
		Dialer:    h.dialer,
		AfterFunc: h.clock.AfterFunc,
		Listener:  h.listener,
	})
	require.NoError(t, err)
	h.client = c
	t.Cleanup(func() { c.Close() })
	return h
}

func TestReconnectDelay(t *testing.T) {
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}
	for i, d := range want {
		assert.Equal(t, d, ReconnectDelay(time.Second, 30*time.Second, i+1))
	}
	assert.Equal(t, time.Second, ReconnectDelay(time.Second, 30*time.Second, 0))
	assert.Equal(t, 30*time.Second, ReconnectDelay(time.Second, 30*time.Second, 40))
}

func TestClient_BackoffScheduleThenTerminal(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.client.Start(context.Background()))

	delays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}
	for i, d := range delays {
		assert.Equal(t, StateReconnecting, h.client.State())
		assert.Equal(t, i+1, h.client.Attempts())

		live := h.clock.live()
		require.Len(t, live, 1, "exactly one pending retry")
		assert.Equal(t, d, live[0].delay)

		status := h.listener.lastStatus()
		assert.Equal(t, i+1, status.Attempt)
		assert.Equal(t, 5, status.MaxAttempts)
		assert.Equal(t, d, status.Delay)

		h.clock.fire(t, d)
	}

	assert.Equal(t, StateDisconnected, h.client.State())
	assert.Empty(t, h.clock.live(), "nothing scheduled after the budget is spent")
	assert.Equal(t, 6, h.dialer.dials)

	final := h.listener.lastStatus()
	assert.True(t, final.Terminal())
	assert.ErrorIs(t, final.Err, ErrReconnectExhausted)

	_, err := h.client.SendMessage("anyone?")
	assert.ErrorIs(t, err, ErrNotConnected)

	// a fresh Start resets the budget
	h.dialer.setFail(false)
	require.NoError(t, h.client.Start(context.Background()))
	assert.Equal(t, StateConnected, h.client.State())
	assert.Equal(t, 0, h.client.Attempts())
}

func TestClient_ConnectSendsJoin(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.client.Start(context.Background()))

	assert.Equal(t, StateConnected, h.client.State())
	writes := h.dialer.last().written(t)
	require.Len(t, writes, 1)
	assert.Equal(t, domain.MsgTypeJoin, writes[0]["type"])
	assert.Equal(t, "me", writes[0]["user"].(map[string]interface{})["id"])
}

func TestClient_DropResetsAttemptsAfterSuccess(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.client.Start(context.Background()))

	h.dialer.last().Close()
	require.Eventually(t, func() bool { return h.client.State() == StateReconnecting }, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.client.Attempts())

	h.clock.fire(t, 2*time.Second)
	assert.Equal(t, StateConnected, h.client.State())
	assert.Equal(t, 0, h.client.Attempts())

	// next drop starts from the first delay again
	h.dialer.last().Close()
	require.Eventually(t, func() bool { return h.client.State() == StateReconnecting }, time.Second, time.Millisecond)
	live := h.clock.live()
	require.Len(t, live, 1)
	assert.Equal(t, 2*time.Second, live[0].delay)
}

func TestClient_CloseCancelsPendingRetry(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.client.Start(context.Background()))
	require.Len(t, h.clock.live(), 1)
	pending := h.clock.live()[0]

	require.NoError(t, h.client.Close())
	assert.Empty(t, h.clock.live())
	assert.Equal(t, StateDisconnected, h.client.State())

	// a timer that fired anyway must not reconnect
	pending.f()
	assert.Equal(t, 1, h.dialer.dials)

	assert.ErrorIs(t, h.client.Start(context.Background()), ErrClosed)
}

func TestClient_MessageLifecycle(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.client.Start(context.Background()))
	conn := h.dialer.last()

	conn.push(t, domain.NewMessageHistory([]domain.ChatMessage{{ID: "1", UserID: "bob", Username: "bob", Content: "earlier"}}))
	require.Eventually(t, func() bool { return len(h.client.Messages()) == 1 }, time.Second, time.Millisecond)

	msg, err := h.client.SendMessage("  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, StatusSent, msg.Status)
	assert.Contains(t, msg.ID, "temp-")

	msgs := h.client.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, StatusSent, msgs[1].Status)

	writes := conn.written(t)
	assert.Equal(t, domain.MsgTypeMessage, writes[len(writes)-1]["type"])
	assert.Equal(t, "hello", writes[len(writes)-1]["content"])

	conn.push(t, domain.NewNewMessage(domain.ChatMessage{ID: "2", UserID: "me", Username: "alice", Content: "hello"}))
	require.Eventually(t, func() bool {
		msgs := h.client.Messages()
		return len(msgs) == 2 && msgs[1].Status == StatusDelivered
	}, time.Second, time.Millisecond)
	assert.Equal(t, "2", h.client.Messages()[1].ID, "re-keyed to the server id")

	_, err = h.client.SendMessage("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestClient_WriteFailureMarksFailed(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.client.Start(context.Background()))
	conn := h.dialer.last()
	conn.mu.Lock()
	conn.failW = true
	conn.mu.Unlock()

	msg, err := h.client.SendMessage("lost")
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, msg.Status)
	assert.Equal(t, StatusFailed, h.client.Messages()[0].Status)
}

func TestClient_UnreadWhileUnfocused(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.client.Start(context.Background()))
	conn := h.dialer.last()

	h.client.SetFocused(false)
	conn.push(t, domain.NewNewMessage(domain.ChatMessage{ID: "1", UserID: "bob", Content: "psst"}))
	conn.push(t, domain.NewNewMessage(domain.ChatMessage{ID: "2", UserID: "bob", Content: "hey"}))
	require.Eventually(t, func() bool {
		h.listener.mu.Lock()
		defer h.listener.mu.Unlock()
		return len(h.listener.notified) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, h.client.Unread())

	h.client.SetFocused(true)
	assert.Equal(t, 0, h.client.Unread())
}

func TestClient_PresenceAndTyping(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.client.Start(context.Background()))
	conn := h.dialer.last()

	conn.push(t, domain.NewOnlineUsers([]domain.Presence{{ID: "me", Username: "alice"}, {ID: "bob", Username: "bob"}}))
	conn.push(t, domain.NewUserJoined(domain.Participant{ID: "carol", Username: "carol"}))
	conn.push(t, domain.NewUserTyping("carol", "carol", true))
	conn.push(t, domain.NewUserTyping("me", "alice", true))
	require.Eventually(t, func() bool { return len(h.client.TypingUsers()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"carol"}, h.client.TypingUsers())
	assert.Len(t, h.client.OnlineUsers(), 3)

	conn.push(t, domain.NewUserLeft(domain.Participant{ID: "carol", Username: "carol"}))
	require.Eventually(t, func() bool { return len(h.client.OnlineUsers()) == 2 }, time.Second, time.Millisecond)
	assert.Empty(t, h.client.TypingUsers())
}

func TestClient_SetTypingAutoStops(t *testing.T) {
	h := newHarness(t, false)

	assert.ErrorIs(t, h.client.SetTyping(true), ErrNotConnected)

	require.NoError(t, h.client.Start(context.Background()))
	conn := h.dialer.last()

	require.NoError(t, h.client.SetTyping(true))
	require.NoError(t, h.client.SetTyping(true))
	require.Len(t, h.clock.live(), 1, "refresh replaces the auto-stop timer")

	h.clock.fire(t, 3*time.Second)

	writes := conn.written(t)
	last := writes[len(writes)-1]
	assert.Equal(t, domain.MsgTypeTyping, last["type"])
	assert.Equal(t, false, last["isTyping"])
}

func TestClient_RemoteTypingExpires(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.client.Start(context.Background()))
	conn := h.dialer.last()

	conn.push(t, domain.NewUserTyping("carol", "carol", true))
	conn.push(t, domain.NewUserTyping("carol", "carol", true))
	require.Eventually(t, func() bool { return len(h.clock.scheduled(3*time.Second)) == 2 }, time.Second, time.Millisecond)

	live := h.clock.live()
	require.Len(t, live, 1, "refresh replaces the expiry timer")
	assert.Equal(t, 3*time.Second, live[0].delay)
	assert.Equal(t, []string{"carol"}, h.client.TypingUsers())

	// the replaced timer firing late leaves the refreshed entry alone
	h.clock.scheduled(3 * time.Second)[0].f()
	assert.Equal(t, []string{"carol"}, h.client.TypingUsers())

	h.clock.fire(t, 3*time.Second)
	assert.Empty(t, h.client.TypingUsers())
}

func TestTypingSet_StaleExpiryIgnored(t *testing.T) {
	clock := &fakeClock{}
	var changes [][]string
	set := NewTypingSet(3*time.Second, clock.AfterFunc, func(users []string) { changes = append(changes, users) })

	set.Add("bob")
	first := clock.live()[0]
	set.Add("bob")
	require.Len(t, clock.live(), 1)

	first.f()
	assert.Equal(t, []string{"bob"}, set.Users())

	clock.fire(t, 3*time.Second)
	assert.Empty(t, set.Users())
	assert.Equal(t, []string{}, changes[len(changes)-1])
}

func TestClient_StaleAutoStopIgnored(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.client.Start(context.Background()))
	conn := h.dialer.last()

	require.NoError(t, h.client.SetTyping(true))
	first := h.clock.live()[0]
	require.NoError(t, h.client.SetTyping(true))
	second := h.clock.live()[0]
	require.NotSame(t, first, second)

	// the first auto-stop was already running when the refresh stopped it
	first.f()
	live := h.clock.live()
	require.Len(t, live, 1)
	assert.Same(t, second, live[0], "refreshed auto-stop still armed")
	writes := conn.written(t)
	assert.Equal(t, true, writes[len(writes)-1]["isTyping"])

	h.clock.fire(t, 3*time.Second)
	writes = conn.written(t)
	assert.Equal(t, false, writes[len(writes)-1]["isTyping"])
}

func TestClient_FramesFromSupersededConnectionDropped(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.client.Start(context.Background()))
	h.client.mu.Lock()
	oldGen := h.client.gen
	h.client.mu.Unlock()

	// manual retry while connected replaces the connection
	require.NoError(t, h.client.Start(context.Background()))
	fresh := h.dialer.last()
	fresh.push(t, domain.NewMessageHistory([]domain.ChatMessage{{ID: "9", UserID: "bob", Username: "bob", Content: "current"}}))
	require.Eventually(t, func() bool { return len(h.client.Messages()) == 1 }, time.Second, time.Millisecond)

	stale, err := json.Marshal(domain.NewMessageHistory([]domain.ChatMessage{
		{ID: "1", UserID: "bob", Content: "old"},
		{ID: "2", UserID: "bob", Content: "older"},
	}))
	require.NoError(t, err)
	h.client.handleFrame(oldGen, stale)

	msgs := h.client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "9", msgs[0].ID)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{URL: "ws://x"})
	assert.Error(t, err)
	_, err = New(Options{User: domain.Participant{ID: "me"}})
	assert.Error(t, err)
}
