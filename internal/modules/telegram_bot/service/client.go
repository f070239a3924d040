package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kite_guard/internal/modules/config"
	"kite_guard/internal/risk"
	"kite_guard/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var ErrNoChat = errors.New("telegram chat_id is not configured")

// StatusSource: откуда брать срез позиций для /status и /positions.
type StatusSource interface {
	Snapshot() risk.Snapshot
}

// Telegram: пассивный нотифайер + команды /status и /positions.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	mu     sync.RWMutex
	status StatusSource
}

// NewTelegram возвращает nil без ошибки, если токен не задан.
func NewTelegram(cfg *config.Config) (*Telegram, error) {
	if cfg.Telegram.Token == "" {
		return nil, nil
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{
		bot:    b,
		chatID: cfg.Telegram.ChatID,
	}, nil
}

func (t *Telegram) SetStatusSource(s StatusSource) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *Telegram) Send(_ context.Context, text string) error {
	if t.chatID == 0 {
		return ErrNoChat
	}
	_, err := t.bot.Send(tgbot.NewMessage(t.chatID, text))
	return err
}

func (t *Telegram) SendF(ctx context.Context, format string, args ...any) error {
	return t.Send(ctx, fmt.Sprintf(format, args...))
}

// Start: long-polling команд из нашего чата.
func (t *Telegram) Start(ctx context.Context) {
	if t == nil {
		return
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if upd.Message == nil || upd.Message.Chat == nil ||
					upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
					continue
				}
				t.handleCommand(ctx, upd.Message.Command())
			}
		}
	}()
}

func (t *Telegram) Stop() {
	if t == nil {
		return
	}
	t.bot.StopReceivingUpdates()
}

func (t *Telegram) handleCommand(ctx context.Context, cmd string) {
	t.mu.RLock()
	src := t.status
	t.mu.RUnlock()

	if src == nil {
		_ = t.Send(ctx, "⏳ Движок ещё не запущен")
		return
	}

	var text string
	switch cmd {
	case "status":
		text = FormatStatus(src.Snapshot())
	case "positions":
		text = FormatPositions(src.Snapshot())
	default:
		return
	}
	if err := t.Send(ctx, text); err != nil {
		logger.Warn("telegram /%s reply: %v", cmd, err)
	}
}
