// Package eventbus доставляет незапрошенные события АТС подписчикам.
//
// У каждого имени события свой независимый список обработчиков. Паника
// одного обработчика логируется и не мешает остальным получить событие.
package eventbus

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// Wildcard подписка на все события
const Wildcard = "*"

// Внутренние события прокси
const (
	EventConnected    = "astproxy.connected"
	EventDisconnected = "astproxy.disconnected"
)

// Handler обработчик события. Каждый обработчик получает свою копию кадра.
type Handler func(f frame.Frame)

type subscription struct {
	id      uint64
	handler Handler
}

// Option опция шины
type Option func(*Bus)

// WithLogger задает логгер
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bus шина событий
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64
	logger   *slog.Logger
}

// New создает шину
func New(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string][]subscription),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(slog.String("component", "ami_eventbus"))
	return b
}

func key(name string) string {
	return strings.ToLower(name)
}

// On подписывает обработчик на событие name (без учета регистра).
// Возвращает функцию отписки.
func (b *Bus) On(name string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	k := key(name)
	b.handlers[k] = append(b.handlers[k], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.off(k, id) })
	}
}

func (b *Bus) off(k string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[k]
	for i, s := range subs {
		if s.id == id {
			// копия, чтобы не трогать срез, который сейчас обходит Emit
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, k)
			} else {
				b.handlers[k] = next
			}
			return
		}
	}
}

// Emit доставляет событие подписчикам name и Wildcard.
// Возвращает число вызванных обработчиков.
func (b *Bus) Emit(name string, f frame.Frame) int {
	b.mu.RLock()
	subs := b.handlers[key(name)]
	all := b.handlers[Wildcard]
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if b.call(name, s.handler, f) {
			delivered++
		}
	}
	for _, s := range all {
		if b.call(name, s.handler, f) {
			delivered++
		}
	}
	return delivered
}

// Subscribers число обработчиков события name (без Wildcard)
func (b *Bus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[key(name)])
}

func (b *Bus) call(name string, h Handler, f frame.Frame) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.logger.Error("паника в обработчике события",
				slog.String("event", name),
				slog.Any("panic", r))
		}
	}()
	h(f.Clone())
	return true
}
