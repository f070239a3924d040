package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"kite_guard/pkg/logger"
)

// Sender: синхронная доставка сообщения (Telegram, stdout).
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Async: fire-and-forget обёртка над Sender. Notify никогда не блокирует:
// при переполненном буфере сообщение выбрасывается.
type Async struct {
	sender Sender
	queue  chan string

	dropped atomic.Int64
	failed  atomic.Int64

	once sync.Once
	wg   sync.WaitGroup
	stop chan struct{}
}

func NewAsync(sender Sender, buffer int) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	return &Async{
		sender: sender,
		queue:  make(chan string, buffer),
		stop:   make(chan struct{}),
	}
}

func (a *Async) Notify(_ context.Context, text string) {
	if a == nil || text == "" {
		return
	}
	select {
	case a.queue <- text:
	default:
		a.dropped.Add(1)
	}
}

func (a *Async) Notifyf(ctx context.Context, format string, args ...any) {
	a.Notify(ctx, fmt.Sprintf(format, args...))
}

// Start запускает доставщика. ctx живёт всё время работы приложения.
func (a *Async) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stop:
				a.drain(ctx)
				return
			case text := <-a.queue:
				a.deliver(ctx, text)
			}
		}
	}()
}

// Stop дожидается отправки того, что уже в очереди.
func (a *Async) Stop() {
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
}

func (a *Async) drain(ctx context.Context) {
	for {
		select {
		case text := <-a.queue:
			a.deliver(ctx, text)
		default:
			return
		}
	}
}

func (a *Async) deliver(ctx context.Context, text string) {
	defer func() {
		if p := recover(); p != nil {
			a.failed.Add(1)
			logger.Error("notify panic: %v", p)
		}
	}()
	if err := a.sender.Send(ctx, text); err != nil {
		a.failed.Add(1)
		logger.Warn("notify: %v", err)
	}
}

func (a *Async) Dropped() int64 { return a.dropped.Load() }
func (a *Async) Failed() int64  { return a.failed.Load() }

// Stdout: заглушка, когда Telegram не настроен.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) Send(_ context.Context, text string) error {
	logger.Info("notify: %s", text)
	return nil
}
