package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// MessageStore mirrors delivered messages locally for offline redisplay.
type MessageStore interface {
	Load() ([]domain.ChatMessage, error)
	Save(msgs []domain.ChatMessage) error
}

type Options struct {
	URL  string
	User domain.Participant

	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxAttempts   int
	TypingTimeout time.Duration

	Dialer    Dialer
	AfterFunc AfterFunc
	Store     MessageStore
	Listener  Listener
	Now       func() time.Time
}

// Client keeps one participant connected to the room. It owns the
// reconnect schedule and the reconciled room view.
type Client struct {
	opts     Options
	listener Listener
	typing   *TypingSet

	mu        sync.Mutex
	ctx       context.Context
	state     State
	attempts  int
	gen       uint64 // bumped on every attempt; stale callbacks compare against it
	conn      Conn
	retry     Timer
	typingOff Timer
	typingSeq uint64 // identifies the armed auto-stop
	closed    bool
	room      *room
}

func New(opts Options) (*Client, error) {
	if !opts.User.Valid() {
		return nil, fmt.Errorf("client: user id is required")
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("client: server url is required")
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = DefaultTypingTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebSocketDialer()
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Client{
		opts:     opts,
		listener: opts.Listener,
		ctx:      context.Background(),
		room:     newRoom(opts.User, opts.Now),
	}
	if c.listener == nil {
		c.listener = NopListener{}
	}
	c.typing = NewTypingSet(opts.TypingTimeout, opts.AfterFunc, c.listener.OnTyping)
	return c, nil
}

// Start begins a fresh session: the retry budget is reset and a connection
// attempt is made immediately. Calling it after the budget ran out is how
// a user retries.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.ctx = ctx
	c.attempts = 0
	seeded := c.seedLocked()
	c.mu.Unlock()

	if seeded != nil {
		c.listener.OnMessages(seeded)
	}
	c.connect()
	return nil
}

// Close stops the client for good: the pending retry is cancelled and the
// connection is closed without reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	c.stopRetryLocked()
	if c.typingOff != nil {
		c.typingOff.Stop()
		c.typingOff = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.typing.Clear()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of retries made since the last success.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Client) Messages() []LocalMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room.messagesCopy()
}

func (c *Client) OnlineUsers() []domain.Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room.presenceCopy()
}

func (c *Client) TypingUsers() []string {
	return c.typing.Users()
}

func (c *Client) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room.unread
}

// SetFocused marks the client as foregrounded or not. Focusing clears the
// unread counter.
func (c *Client) SetFocused(focused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room.setFocused(focused)
}

// SendMessage sends content as this participant. The message shows up
// locally right away as sending and is confirmed by the server broadcast.
func (c *Client) SendMessage(content string) (LocalMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return LocalMessage{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return LocalMessage{}, ErrClosed
	}
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return LocalMessage{}, ErrNotConnected
	}

	tempID, err := gonanoid.New()
	if err != nil {
		c.mu.Unlock()
		return LocalMessage{}, fmt.Errorf("temp id: %w", err)
	}
	msg := LocalMessage{
		ChatMessage: domain.ChatMessage{
			ID:        "temp-" + tempID,
			UserID:    c.opts.User.ID,
			Username:  c.opts.User.Username,
			Content:   content,
			Timestamp: c.opts.Now().UTC(),
			Avatar:    c.opts.User.Avatar,
		},
		Status: StatusSending,
	}
	c.room.addLocal(msg)
	conn := c.conn
	msgs := c.room.messagesCopy()
	c.mu.Unlock()

	c.listener.OnMessages(msgs)

	writeErr := c.write(conn, &domain.ChatMessageIn{
		Type:     domain.MsgTypeMessage,
		UserID:   msg.UserID,
		Username: msg.Username,
		Content:  msg.Content,
		Avatar:   msg.Avatar,
	})

	status := StatusSent
	if writeErr != nil {
		status = StatusFailed
	}

	c.mu.Lock()
	changed := c.room.setStatus(msg.ID, status)
	msgs = c.room.messagesCopy()
	c.mu.Unlock()

	if changed {
		c.listener.OnMessages(msgs)
	}
	msg.Status = status
	return msg, writeErr
}

// SetTyping announces this participant's typing state. Typing stops on its
// own after the typing timeout unless refreshed.
func (c *Client) SetTyping(isTyping bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.typingOff != nil {
		c.typingOff.Stop()
		c.typingOff = nil
	}
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if isTyping {
		c.typingSeq++
		seq := c.typingSeq
		c.typingOff = c.opts.AfterFunc(c.opts.TypingTimeout, func() { c.typingExpired(seq) })
	}
	conn := c.conn
	c.mu.Unlock()

	return c.writeTyping(conn, isTyping)
}

// typingExpired sends the auto-stop armed as seq. A callback that was
// already running when a refresh replaced it finds a newer seq and does
// nothing.
func (c *Client) typingExpired(seq uint64) {
	c.mu.Lock()
	if c.closed || c.typingOff == nil || c.typingSeq != seq {
		c.mu.Unlock()
		return
	}
	c.typingOff = nil
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()

	if connected {
		c.writeTyping(conn, false)
	}
}

func (c *Client) writeTyping(conn Conn, isTyping bool) error {
	return c.write(conn, &domain.TypingMessage{
		Type:     domain.MsgTypeTyping,
		UserID:   c.opts.User.ID,
		Username: c.opts.User.Username,
		IsTyping: isTyping,
	})
}

// connect makes one connection attempt. Only the latest attempt may change
// state; anything that finishes after a newer attempt began is discarded.
func (c *Client) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.stopRetryLocked()
	stale := c.conn
	c.conn = nil
	c.state = StateConnecting
	ctx := c.ctx
	status := c.statusLocked(nil)
	c.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	l := log.L()
	l.Debug().Str(log.FieldState, StateConnecting.String()).Int(log.FieldAttempt, status.Attempt).Msg("connecting")
	c.listener.OnStatus(status)

	conn, err := c.opts.Dialer.Dial(ctx, c.opts.URL)
	if err != nil {
		l.Warn().Err(err).Msg("connect failed")
		c.connectionLost(gen, err)
		return
	}

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	status = c.statusLocked(nil)
	c.mu.Unlock()

	if err := c.write(conn, &domain.JoinMessage{Type: domain.MsgTypeJoin, User: c.opts.User}); err != nil {
		c.connectionLost(gen, err)
		return
	}

	l.Info().Str(log.FieldState, StateConnected.String()).Msg("connected")
	c.listener.OnStatus(status)

	go c.readLoop(conn, gen)
}

func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(gen, err)
			return
		}
		c.handleFrame(gen, data)
	}
}

// connectionLost moves a failed attempt or dropped connection to the retry
// schedule, or to terminal disconnected once the budget is spent.
func (c *Client) connectionLost(gen uint64, cause error) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	if c.typingOff != nil {
		c.typingOff.Stop()
		c.typingOff = nil
	}

	var status Status
	l := log.L()
	if c.attempts < c.opts.MaxAttempts {
		c.attempts++
		delay := ReconnectDelay(c.opts.BaseDelay, c.opts.MaxDelay, c.attempts)
		c.state = StateReconnecting
		c.stopRetryLocked()
		c.retry = c.opts.AfterFunc(delay, func() { c.retryFired(gen) })
		status = c.statusLocked(cause)
		status.Delay = delay
		l.Warn().Err(cause).Int(log.FieldAttempt, c.attempts).Dur(log.FieldDelay, delay).Msg("connection lost, reconnecting")
	} else {
		c.state = StateDisconnected
		status = c.statusLocked(fmt.Errorf("%w: %v", ErrReconnectExhausted, cause))
		l.Error().Err(cause).Int(log.FieldAttempt, c.attempts).Msg("giving up reconnecting")
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.typing.Clear()
	c.listener.OnStatus(status)
}

func (c *Client) retryFired(gen uint64) {
	c.mu.Lock()
	stale := c.closed || c.gen != gen || c.state != StateReconnecting
	c.mu.Unlock()
	if stale {
		return
	}
	c.connect()
}

// current reports whether gen is still the live connection.
func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.gen == gen
}

// handleFrame applies one server frame read on connection gen. Frames from a
// superseded connection are dropped.
func (c *Client) handleFrame(gen uint64, data []byte) {
	l := log.L()
	if !c.current(gen) {
		l.Debug().Msg("stale frame dropped")
		return
	}

	typ, err := domain.PeekType(data)
	if err != nil {
		l.Debug().Err(err).Msg("frame dropped")
		return
	}

	switch typ {
	case domain.MsgTypeMessageHistory:
		var msg domain.MessageHistoryMessage
		if err := domain.DecodeInto(data, &msg); err != nil {
			l.Debug().Err(err).Msg("frame dropped")
			return
		}
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.room.replaceHistory(msg.Messages)
		msgs, mirror := c.room.messagesCopy(), c.room.delivered()
		c.mu.Unlock()
		c.listener.OnMessages(msgs)
		c.persist(mirror)

	case domain.MsgTypeNewMessage:
		var msg domain.NewMessageMessage
		if err := domain.DecodeInto(data, &msg); err != nil {
			l.Debug().Err(err).Msg("frame dropped")
			return
		}
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		foreign := c.room.receive(msg.Message)
		notify := foreign && !c.room.focused
		unread := c.room.unread
		msgs, mirror := c.room.messagesCopy(), c.room.delivered()
		c.mu.Unlock()
		c.listener.OnMessages(msgs)
		if notify {
			c.listener.OnNotify(msg.Message, unread)
		}
		c.persist(mirror)

	case domain.MsgTypeOnlineUsers:
		var msg domain.OnlineUsersMessage
		if err := domain.DecodeInto(data, &msg); err != nil {
			l.Debug().Err(err).Msg("frame dropped")
			return
		}
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.room.setPresence(msg.Users)
		users := c.room.presenceCopy()
		c.mu.Unlock()
		c.listener.OnPresence(users)

	case domain.MsgTypeUserJoined, domain.MsgTypeUserLeft:
		var msg domain.UserEventMessage
		if err := domain.DecodeInto(data, &msg); err != nil {
			l.Debug().Err(err).Msg("frame dropped")
			return
		}
		if typ == domain.MsgTypeUserLeft {
			c.typing.Remove(msg.User.Username)
		}
		c.mu.Lock()
		if typ == domain.MsgTypeUserJoined {
			c.room.userJoined(msg.User)
		} else {
			c.room.userLeft(msg.User.ID)
		}
		users := c.room.presenceCopy()
		c.mu.Unlock()
		c.listener.OnPresence(users)

	case domain.MsgTypeUserTyping:
		var msg domain.TypingMessage
		if err := domain.DecodeInto(data, &msg); err != nil {
			l.Debug().Err(err).Msg("frame dropped")
			return
		}
		if msg.UserID == c.opts.User.ID {
			return
		}
		if msg.IsTyping {
			c.typing.Add(msg.Username)
		} else {
			c.typing.Remove(msg.Username)
		}

	case domain.MsgTypePong:

	default:
		l.Debug().Str(log.FieldFrameType, typ).Msg("unknown frame type")
	}
}

func (c *Client) write(conn Conn, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return conn.WriteMessage(data)
}

func (c *Client) persist(msgs []domain.ChatMessage) {
	if c.opts.Store == nil {
		return
	}
	if err := c.opts.Store.Save(msgs); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to mirror messages")
	}
}

func (c *Client) seedLocked() []LocalMessage {
	if c.opts.Store == nil {
		return nil
	}
	msgs, err := c.opts.Store.Load()
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to load mirrored messages")
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}
	c.room.seed(msgs)
	return c.room.messagesCopy()
}

func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Client) statusLocked(err error) Status {
	return Status{
		State:       c.state,
		Attempt:     c.attempts,
		MaxAttempts: c.opts.MaxAttempts,
		Err:         err,
	}
}
