package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// DefaultRedisPrefix префикс каналов Redis по умолчанию
const DefaultRedisPrefix = "astproxy:event:"

// Message сообщение, публикуемое в Redis
type Message struct {
	Event   string            `json:"event"`
	Session string            `json:"session,omitempty"`
	Time    time.Time         `json:"time"`
	Fields  map[string]string `json:"fields"`
}

// RedisOption опция публикатора
type RedisOption func(*RedisPublisher)

// WithPrefix задает префикс каналов
func WithPrefix(prefix string) RedisOption {
	return func(p *RedisPublisher) {
		p.prefix = prefix
	}
}

// WithTimeout ограничивает время одной публикации
func WithTimeout(d time.Duration) RedisOption {
	return func(p *RedisPublisher) {
		p.timeout = d
	}
}

// WithSession задает функцию, возвращающую идентификатор сессии АТС
func WithSession(fn func() string) RedisOption {
	return func(p *RedisPublisher) {
		p.session = fn
	}
}

// WithRedisLogger задает логгер
func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(p *RedisPublisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// RedisPublisher пересылает события шины в каналы Redis pub/sub
// вида <prefix><Event> для других CTI сервисов
type RedisPublisher struct {
	client  *backend.Client
	prefix  string
	timeout time.Duration
	session func() string
	logger  *slog.Logger
	now     func() time.Time
}

// NewRedisPublisher создает публикатор поверх готового клиента
func NewRedisPublisher(client *backend.Client, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		client:  client,
		prefix:  DefaultRedisPrefix,
		timeout: time.Second,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "ami_redis"))
	return p
}

// Channel имя канала для события
func (p *RedisPublisher) Channel(event string) string {
	return p.prefix + event
}

// Attach подписывает публикатор на все события шины
func (p *RedisPublisher) Attach(b *Bus) func() {
	return b.On(Wildcard, func(f frame.Frame) {
		name := f.Event()
		if name == "" {
			return
		}
		if err := p.Publish(context.Background(), name, f); err != nil {
			p.logger.Warn("не удалось опубликовать событие",
				slog.String("event", name),
				slog.Any("error", err))
		}
	})
}

// Publish публикует событие
func (p *RedisPublisher) Publish(ctx context.Context, name string, f frame.Frame) error {
	msg := Message{
		Event:  name,
		Time:   p.now().UTC(),
		Fields: f,
	}
	if p.session != nil {
		msg.Session = p.session()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	return p.client.Publish(ctx, p.Channel(name), payload).Err()
}

// Ping проверяет доступность Redis
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close закрывает клиент Redis
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
