package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-chat/internal/client"
	"github.com/weiawesome/wes-io-chat/internal/client/cache"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	pkglog "github.com/weiawesome/wes-io-chat/pkg/log"
)

// roomPrinter renders room events on stdout.
type roomPrinter struct {
	client.NopListener
	out zerolog.Logger
}

func (p *roomPrinter) OnStatus(s client.Status) {
	switch {
	case s.Terminal():
		p.out.Error().Msg("Unable to connect to chat server. Type /retry to try again.")
	case s.State == client.StateReconnecting:
		p.out.Warn().Dur("in", s.Delay).Msgf("Connection lost. Reconnecting... (attempt %d/%d)", s.Attempt, s.MaxAttempts)
	case s.State == client.StateConnected:
		p.out.Info().Msg("Connected")
	}
}

func (p *roomPrinter) OnPresence(users []domain.Presence) {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	p.out.Info().Strs("online", names).Msg("presence")
}

func (p *roomPrinter) OnTyping(users []string) {
	if len(users) > 0 {
		p.out.Debug().Strs("typing", users).Msg("typing")
	}
}

func (p *roomPrinter) OnNotify(msg domain.ChatMessage, unread int) {
	p.out.Info().Int("unread", unread).Msgf("%s: %s", msg.Username, msg.Content)
}

type messagePrinter struct {
	out zerolog.Logger

	mu      sync.Mutex
	printed map[string]bool
}

// print writes confirmed messages not shown before.
func (m *messagePrinter) print(msgs []client.LocalMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		if msg.Status != client.StatusDelivered || m.printed[msg.ID] {
			continue
		}
		m.printed[msg.ID] = true
		m.out.Info().Time("at", msg.Timestamp).Msgf("%s: %s", msg.Username, msg.Content)
	}
}

type listener struct {
	*roomPrinter
	messages *messagePrinter
}

func (l *listener) OnMessages(msgs []client.LocalMessage) {
	l.messages.print(msgs)
}

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	cfg.Log.Output = os.Stderr
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	if cfg.User.Username == "" {
		logger.Fatal().Msg("username is required (CHAT_USER_USERNAME)")
	}
	if cfg.User.ID == "" {
		cfg.User.ID = uuid.New().String()
	}

	store, err := cache.Open(cfg.CachePath, cache.DefaultLimit)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CachePath).Msg("failed to open message cache")
	}
	defer store.Close()

	out := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04"}).With().Timestamp().Logger()
	l := &listener{
		roomPrinter: &roomPrinter{out: out},
		messages:    &messagePrinter{out: out, printed: make(map[string]bool)},
	}

	c, err := client.New(client.Options{
		URL: cfg.ServerURL,
		User: domain.Participant{
			ID:       cfg.User.ID,
			Username: cfg.User.Username,
			Avatar:   cfg.User.Avatar,
		},
		BaseDelay:     cfg.Reconnect.BaseDelay,
		MaxDelay:      cfg.Reconnect.MaxDelay,
		MaxAttempts:   cfg.Reconnect.MaxAttempts,
		TypingTimeout: cfg.Typing.Timeout,
		Store:         store,
		Listener:      l,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create client")
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start client")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit":
				return
			case "/retry":
				c.Start(ctx)
				continue
			case "/who":
				l.OnPresence(c.OnlineUsers())
				continue
			}
			if _, err := c.SendMessage(line); err != nil {
				if errors.Is(err, client.ErrNotConnected) {
					out.Warn().Msg("Not connected; message not sent")
					continue
				}
				out.Error().Err(err).Msg("Message failed")
			}
		}
	}
}
