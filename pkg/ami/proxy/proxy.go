// Package proxy собирает ядро прокси: соединение с АТС, диспетчер команд
// и шину событий, и предоставляет их вызывающей стороне одним объектом.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/arzzra/astproxy/pkg/ami/action"
	"github.com/arzzra/astproxy/pkg/ami/command"
	"github.com/arzzra/astproxy/pkg/ami/dispatcher"
	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
	"github.com/arzzra/astproxy/pkg/ami/eventbus"
	"github.com/arzzra/astproxy/pkg/ami/frame"
	"github.com/arzzra/astproxy/pkg/ami/metrics"
	"github.com/arzzra/astproxy/pkg/ami/transport"
)

// Callback получает результат команды
type Callback = dispatcher.Callback

// Option опция прокси
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metrics    *metrics.Collector
	transport  []transport.Option
	commands   []command.Command
	noBuiltins bool
}

// WithLogger задает логгер всех компонентов
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics подключает сборщик метрик
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// WithTransportOptions передает опции клиенту соединения
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transport = append(o.transport, opts...) }
}

// WithCommands регистрирует дополнительные команды
func WithCommands(cmds ...command.Command) Option {
	return func(o *options) { o.commands = append(o.commands, cmds...) }
}

// WithoutBuiltins отключает регистрацию встроенных команд
func WithoutBuiltins() Option {
	return func(o *options) { o.noBuiltins = true }
}

// Proxy ядро прокси интерфейса менеджера
type Proxy struct {
	client     *transport.Client
	dispatcher *dispatcher.Dispatcher
	bus        *eventbus.Bus
	metrics    *metrics.Collector
	logger     *slog.Logger
	ready      atomic.Bool
}

// New создает прокси. Соединение открывается в Start.
func New(cfg transport.Config, opts ...Option) (*Proxy, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	p := &Proxy{
		metrics: o.metrics,
		logger:  o.logger.With(slog.String("component", "ami_proxy")),
	}

	p.bus = eventbus.New(eventbus.WithLogger(o.logger))
	p.client = transport.New(cfg, append([]transport.Option{transport.WithLogger(o.logger)}, o.transport...)...)
	p.dispatcher = dispatcher.New(p.client, p.bus,
		dispatcher.WithLogger(o.logger),
		dispatcher.WithMetrics(o.metrics))

	cmds := o.commands
	if !o.noBuiltins {
		cmds = append(command.Builtin(), cmds...)
	}
	for _, c := range cmds {
		if err := p.dispatcher.Register(c); err != nil {
			return nil, err
		}
	}

	p.client.OnFrame(p.handleFrame)
	p.client.OnFrameError(p.dispatcher.HandleFrameError)
	p.client.OnConnection(p.handleConnection)

	return p, nil
}

// Start подключается к АТС; повторный вызов при активном соединении ничего не делает
func (p *Proxy) Start(ctx context.Context) error {
	return p.client.Start(ctx)
}

// DoCommand выполняет команду асинхронно; cb вызывается не более одного раза.
// Таймаута нет: без ответа АТС cb не будет вызван никогда.
func (p *Proxy) DoCommand(verb string, args command.Args, cb Callback) string {
	return p.dispatcher.Do(verb, args, cb)
}

// Do выполняет команду и ждет результат до отмены ctx.
// Поздний результат после отмены отбрасывается.
func (p *Proxy) Do(ctx context.Context, verb string, args command.Args) (any, error) {
	type reply struct {
		result any
		err    error
	}
	done := make(chan reply, 1)

	p.DoCommand(verb, args, func(result any, err error) {
		done <- reply{result, err}
	})

	select {
	case r := <-done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Call типизированная обертка над Do
func Call[T any](ctx context.Context, p *Proxy, verb string, args command.Args) (T, error) {
	var zero T

	result, err := p.Do(ctx, verb, args)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	v, ok := result.(T)
	if !ok {
		return zero, amierr.Protocol(verb, "", fmt.Errorf("unexpected result type %T", result))
	}
	return v, nil
}

// On подписывает обработчик на незапрошенное событие АТС
func (p *Proxy) On(event string, h eventbus.Handler) func() {
	return p.bus.On(event, h)
}

// Send отправляет действие напрямую, минуя диспетчер
func (p *Proxy) Send(a action.Action) error {
	return p.client.Send(a)
}

// Close закрывает соединение. Ожидающие действия остаются в реестре.
func (p *Proxy) Close() error {
	if n := p.dispatcher.Pending(); n > 0 {
		p.logger.Info("закрытие с ожидающими действиями", slog.Int("pending", n))
	}
	return p.client.Close()
}

// Ready true после события FullyBooted в текущей сессии
func (p *Proxy) Ready() bool {
	return p.ready.Load()
}

// Connected проверяет наличие соединения
func (p *Proxy) Connected() bool {
	return p.client.IsConnected()
}

// SessionID идентификатор текущей сессии
func (p *Proxy) SessionID() string {
	return p.client.SessionID()
}

// Bus шина событий
func (p *Proxy) Bus() *eventbus.Bus {
	return p.bus
}

// Dispatcher диспетчер команд
func (p *Proxy) Dispatcher() *dispatcher.Dispatcher {
	return p.dispatcher
}

// Transport клиент соединения
func (p *Proxy) Transport() *transport.Client {
	return p.client
}

func (p *Proxy) handleFrame(f frame.Frame) {
	if f.IsEvent() && f.Event() == "FullyBooted" && !p.ready.Swap(true) {
		p.logger.Info("АТС полностью загружена", slog.String("session_id", p.client.SessionID()))
	}
	p.dispatcher.HandleFrame(f)
}

func (p *Proxy) handleConnection(ev transport.ConnectionEvent, err error) {
	switch ev {
	case transport.ConnectionOpened:
		p.metrics.SetConnected(true)
		p.bus.Emit(eventbus.EventConnected, frame.New(
			"Event", eventbus.EventConnected,
			"Session", p.client.SessionID(),
			"Banner", p.client.Banner(),
		))
	default:
		p.ready.Store(false)
		p.metrics.SetConnected(false)
		f := frame.New(
			"Event", eventbus.EventDisconnected,
			"Reason", ev.String(),
		)
		if err != nil {
			f.Set("Error", err.Error())
		}
		p.bus.Emit(eventbus.EventDisconnected, f)
	}
}
