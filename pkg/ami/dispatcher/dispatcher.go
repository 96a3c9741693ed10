// Package dispatcher связывает команды с входящими кадрами по ActionID.
//
// Кадр с ActionID ожидающего действия передается его команде, все остальные
// кадры публикуются на шине событий по полю Event. Callback каждого действия
// вызывается не более одного раза: реестр очищается раньше вызова, а паника
// команды превращается в ошибку протокола.
package dispatcher

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arzzra/astproxy/pkg/ami/action"
	"github.com/arzzra/astproxy/pkg/ami/command"
	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
	"github.com/arzzra/astproxy/pkg/ami/frame"
	"github.com/arzzra/astproxy/pkg/ami/metrics"
)

// Sender отправляет действия в соединение
type Sender interface {
	Send(a action.Action) error
}

// Publisher получает незапрошенные события
type Publisher interface {
	Emit(name string, f frame.Frame) int
}

// Option опция диспетчера
type Option func(*Dispatcher)

// WithLogger задает логгер
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics подключает сборщик метрик
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher реестр команд и ожидающих действий
type Dispatcher struct {
	sender    Sender
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Collector

	mu       sync.RWMutex
	commands map[string]command.Command

	store *store
}

// New создает диспетчер. publisher может быть nil: тогда события отбрасываются.
func New(sender Sender, publisher Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:    sender,
		publisher: publisher,
		logger:    slog.Default(),
		commands:  make(map[string]command.Command),
		store:     newStore(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("component", "ami_dispatcher"))
	return d
}

// Register регистрирует команду под ее глаголом
func (d *Dispatcher) Register(cmd command.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	verb := cmd.Verb()
	if _, exists := d.commands[verb]; exists {
		return &amierr.Error{
			Kind: amierr.KindConfiguration,
			Op:   "register",
			Verb: verb,
			Err:  amierr.ErrAlreadyRegistered,
		}
	}
	d.commands[verb] = cmd
	return nil
}

// Verbs возвращает зарегистрированные глаголы
func (d *Dispatcher) Verbs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	verbs := make([]string, 0, len(d.commands))
	for v := range d.commands {
		verbs = append(verbs, v)
	}
	return verbs
}

func (d *Dispatcher) lookup(verb string) (command.Command, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cmd, ok := d.commands[verb]
	return cmd, ok
}

// Do выполняет команду verb и не блокируется.
// Неизвестный глагол и ошибка аргументов передаются в cb синхронно.
// Иначе действие регистрируется до отправки, и cb будет вызван при получении
// терминального кадра. Если отправить не удалось, ошибка только логируется:
// действие остается в реестре, таймаута нет. Возвращает ActionID или "".
func (d *Dispatcher) Do(verb string, args command.Args, cb Callback) string {
	if cb == nil {
		cb = func(any, error) {}
	}

	cmd, ok := d.lookup(verb)
	if !ok {
		d.metrics.CommandFinished(verb, metrics.OutcomeRejected, 0)
		d.logger.Warn("неизвестная команда", slog.String("verb", verb))
		d.invoke(verb, "", cb, nil, amierr.UnknownVerb(verb))
		return ""
	}

	a, err := cmd.Build(args)
	if err == nil {
		// команды вне пакета command могут собрать действие без builders
		err = a.Validate()
	}
	if err != nil {
		d.metrics.CommandFinished(verb, metrics.OutcomeRejected, 0)
		d.logger.Warn("некорректные аргументы команды",
			slog.String("verb", verb),
			slog.Any("error", err))
		d.invoke(verb, "", cb, nil, err)
		return ""
	}

	var acc any
	if s, ok := cmd.(command.Seeder); ok {
		acc = s.Seed(a)
	}

	p := newPending(a.ID, cmd, cb, acc)
	if !d.store.add(p) {
		// ActionID уникален, сюда попасть можно только при повторной отправке того же действия
		d.invoke(verb, a.ID, cb, nil, amierr.Protocol(verb, a.ID, fmt.Errorf("duplicate action id %s", a.ID)))
		return ""
	}
	d.metrics.CommandStarted(verb)
	d.metrics.PendingAdded()

	d.logger.Debug("отправка действия",
		slog.String("verb", verb),
		slog.String("action", a.Name),
		slog.String("action_id", a.ID))

	if err := d.sender.Send(a); err != nil {
		d.metrics.SendFailed()
		d.logger.Warn("действие не отправлено, ответа не будет",
			slog.String("verb", verb),
			slog.String("action_id", a.ID),
			slog.Any("error", err))
	}

	return a.ID
}

// HandleFrame маршрутизирует входящий кадр. Вызывается из горутины чтения
// в порядке поступления кадров.
func (d *Dispatcher) HandleFrame(f frame.Frame) {
	d.metrics.FrameReceived(f.Kind().String())

	if id := f.ActionID(); id != "" {
		if p, ok := d.store.get(id); ok {
			d.accept(p, f)
			return
		}
	}

	d.publish(f)
}

func (d *Dispatcher) publish(f frame.Frame) {
	name := f.Event()
	if name == "" {
		d.logger.Debug("кадр без ожидающего действия отброшен",
			slog.String("action_id", f.ActionID()),
			slog.String("response", f.Response()))
		return
	}
	if d.publisher == nil {
		return
	}
	d.metrics.EventPublished(name)
	d.publisher.Emit(name, f)
}

func (d *Dispatcher) accept(p *pending, f frame.Frame) {
	p.mu.Lock()
	if !p.waiting() {
		p.mu.Unlock()
		return
	}

	out, panicked := d.safeAccept(p, f)
	if out == nil || !p.finish() {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	outcome := metrics.OutcomeSuccess
	switch {
	case panicked:
		outcome = metrics.OutcomePanic
	case out.Err != nil:
		outcome = metrics.OutcomeError
	}
	d.complete(p, out, outcome)
}

// HandleFrameError завершает ожидающее действие ошибкой протокола, если кадр,
// который не удалось разобрать целиком, успел сообщить его ActionID.
// Частичный кадр команде не передается.
func (d *Dispatcher) HandleFrameError(f frame.Frame, cause error) {
	id := f.ActionID()
	p, ok := d.store.get(id)
	if id == "" || !ok {
		d.logger.Warn("кадр отброшен",
			slog.String("action_id", id),
			slog.Any("error", cause))
		return
	}

	p.mu.Lock()
	if !p.waiting() || !p.finish() {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	d.logger.Warn("кадр ответа не разобран, команда завершена ошибкой",
		slog.String("verb", p.verb),
		slog.String("action_id", id),
		slog.Any("error", cause))
	d.complete(p, command.Fail(amierr.Protocol(p.verb, id, cause)), metrics.OutcomeError)
}

// complete удаляет завершенное действие из реестра и вызывает callback
func (d *Dispatcher) complete(p *pending, out *command.Outcome, outcome string) {
	if !d.store.remove(p) {
		return
	}

	d.metrics.PendingRemoved()
	d.metrics.CommandFinished(p.verb, outcome, time.Since(p.started))

	d.invoke(p.verb, p.id, p.cb, out.Result, out.Err)
}

// safeAccept вызывает команду, превращая панику в ошибку протокола
func (d *Dispatcher) safeAccept(p *pending, f frame.Frame) (out *command.Outcome, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("паника при разборе кадра",
				slog.String("verb", p.verb),
				slog.String("action_id", p.id),
				slog.Any("panic", r))
			out = command.Fail(amierr.Protocol(p.verb, p.id, fmt.Errorf("panic: %v", r)))
			panicked = true
		}
	}()

	acc, out := p.cmd.Accept(f, p.acc)
	p.acc = acc
	return out, false
}

// invoke вызывает callback; паника вызывающей стороны не должна остановить чтение кадров
func (d *Dispatcher) invoke(verb, id string, cb Callback, result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("паника в callback команды",
				slog.String("verb", verb),
				slog.String("action_id", id),
				slog.Any("panic", r))
		}
	}()
	cb(result, err)
}

// Pending число ожидающих действий
func (d *Dispatcher) Pending() int {
	return d.store.snapshot().Active
}

// PendingIDs ActionID ожидающих действий
func (d *Dispatcher) PendingIDs() []string {
	return d.store.ids()
}

// Stats статистика реестра
func (d *Dispatcher) Stats() StoreStats {
	return d.store.snapshot()
}
