// Package poller периодически перечитывает данные с сервера и хранит последний снимок.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval задаёт период опроса по умолчанию.
const DefaultInterval = 30 * time.Second

// ErrStopped возвращается из Refresh после остановки Run.
var ErrStopped = errors.New("poller stopped")

// Coordinator опрашивает источник данных с фиксированным интервалом и заменяет
// снимок целиком результатом каждого успешного чтения.
type Coordinator[T any] struct {
	// Fetch читает актуальное состояние. Обязателен.
	Fetch func(ctx context.Context) (T, error)
	// OnUpdate вызывается после применения нового снимка.
	OnUpdate func(T)
	// Interval задаёт период опроса, DefaultInterval если не указан.
	Interval time.Duration
	Logger   *zap.Logger

	mu        sync.Mutex
	snapshot  T
	fetchedAt time.Time
	loaded    bool
	stopped   bool

	// started и applied нумеруют чтения, чтобы запоздавший ответ не затёр более свежий.
	started uint64
	applied uint64

	// notifyMu упорядочивает вызовы OnUpdate.
	notifyMu sync.Mutex
}

// Run выполняет первое чтение сразу, затем повторяет его с периодом Interval
// до отмены ctx. Ошибки периодических чтений не прерывают опрос.
func (c *Coordinator[T]) Run(ctx context.Context) {
	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
	}()

	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	c.poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Coordinator[T]) poll(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
		c.logger().Debug("poll failed", zap.Error(err))
	}
}

// Refresh выполняет чтение немедленно и не сдвигает расписание опроса.
func (c *Coordinator[T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.started++
	seq := c.started
	c.mu.Unlock()

	v, err := c.Fetch(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.stopped || ctx.Err() != nil {
		c.mu.Unlock()
		return ErrStopped
	}
	if seq < c.applied {
		c.mu.Unlock()
		return nil
	}
	c.applied = seq
	c.snapshot = v
	c.fetchedAt = time.Now()
	c.loaded = true
	onUpdate := c.OnUpdate
	c.mu.Unlock()

	if onUpdate != nil {
		c.notify(seq, v, onUpdate)
	}
	return nil
}

// notify вызывает onUpdate, только если v всё ещё последний применённый снимок.
func (c *Coordinator[T]) notify(seq uint64, v T, onUpdate func(T)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	current := seq == c.applied
	c.mu.Unlock()

	if current {
		onUpdate(v)
	}
}

// Snapshot возвращает последний применённый результат и время его получения.
// ok равен false, пока не было ни одного успешного чтения.
func (c *Coordinator[T]) Snapshot() (v T, fetchedAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, c.fetchedAt, c.loaded
}

func (c *Coordinator[T]) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
