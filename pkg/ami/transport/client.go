package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/arzzra/astproxy/pkg/ami/action"
	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// События автомата состояний соединения
const (
	evDial        = "dial"
	evEstablished = "established"
	evFail        = "fail"
	evDrop        = "drop"
	evClose       = "close"
)

// DialFunc устанавливает сетевое соединение
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Option опция клиента
type Option func(*Client)

// WithLogger задает логгер клиента
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDialer подменяет функцию установки соединения
func WithDialer(d DialFunc) Option {
	return func(c *Client) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithReaderOptions передает опции разборщику кадров
func WithReaderOptions(opts ...frame.ReaderOption) Option {
	return func(c *Client) {
		c.readerOpts = append(c.readerOpts, opts...)
	}
}

// Client соединение с интерфейсом менеджера АТС
type Client struct {
	cfg        Config
	logger     *slog.Logger
	dial       DialFunc
	readerOpts []frame.ReaderOption

	startMu sync.Mutex
	state   *fsm.FSM

	mu                sync.RWMutex
	conn              net.Conn
	sessionID         string
	banner            string
	frameHandler      FrameHandler
	frameErrorHandler FrameErrorHandler
	connectionHandler ConnectionHandler

	writeMu sync.Mutex
	closed  atomic.Bool
	wg      sync.WaitGroup

	stats   Stats
	statsMu sync.RWMutex
}

// New создает клиент. Соединение не устанавливается до вызова Start.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.WithDefaults(),
		logger: slog.Default(),
	}
	dialer := &net.Dialer{}
	c.dial = dialer.DialContext

	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "ami_transport"))

	c.state = fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			{Name: evDial, Src: []string{string(StateDisconnected)}, Dst: string(StateConnecting)},
			{Name: evEstablished, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
			{Name: evFail, Src: []string{string(StateConnecting)}, Dst: string(StateDisconnected)},
			{Name: evDrop, Src: []string{string(StateConnected)}, Dst: string(StateDisconnected)},
			{Name: evClose, Src: []string{
				string(StateDisconnected),
				string(StateConnecting),
				string(StateConnected),
			}, Dst: string(StateClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Debug("смена состояния соединения",
					slog.String("from", e.Src),
					slog.String("to", e.Dst),
					slog.String("event", e.Event))
			},
		},
	)

	return c
}

// OnFrame устанавливает обработчик входящих кадров
func (c *Client) OnFrame(h FrameHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameHandler = h
}

// OnFrameError устанавливает обработчик кадров, которые не удалось разобрать
func (c *Client) OnFrameError(h FrameErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameErrorHandler = h
}

// OnConnection устанавливает обработчик событий соединения
func (c *Client) OnConnection(h ConnectionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectionHandler = h
}

// Config возвращает конфигурацию с примененными значениями по умолчанию
func (c *Client) Config() Config {
	return c.cfg
}

// State возвращает текущее состояние соединения
func (c *Client) State() State {
	return State(c.state.Current())
}

// IsConnected проверяет, что соединение установлено
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// SessionID идентификатор текущей сессии; меняется при каждом подключении
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Banner строка приветствия АТС
func (c *Client) Banner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.banner
}

// Stats возвращает статистику соединения
func (c *Client) Stats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// Start подключается к АТС и выполняет Login.
// Повторный вызов при установленном соединении ничего не делает.
// При ошибке клиент остается в состоянии disconnected, повторных попыток нет.
func (c *Client) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.closed.Load() {
		return amierr.Connection("start", amierr.ErrClosed)
	}
	if c.IsConnected() {
		return nil
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.transition(ctx, evDial)

	network, address := c.cfg.Endpoint()
	logger := c.logger.With(slog.String("address", address))

	conn, reader, banner, err := c.connect(ctx, network, address)
	if err != nil {
		c.transition(ctx, evFail)
		c.incrementErrors()
		logger.Error("не удалось подключиться к АТС", slog.Any("error", err))
		c.notify(ConnectionError, err)
		return err
	}

	sessionID := uuid.NewString()

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		conn.Close()
		return amierr.Connection("start", amierr.ErrClosed)
	}
	c.conn = conn
	c.banner = banner
	c.sessionID = sessionID
	c.mu.Unlock()

	c.transition(ctx, evEstablished)
	logger.Info("подключено к АТС",
		slog.String("session_id", sessionID),
		slog.String("banner", banner))

	c.notify(ConnectionOpened, nil)

	c.wg.Add(1)
	go c.readLoop(conn, reader)

	return nil
}

// connect открывает сокет, читает приветствие и выполняет Login
func (c *Client) connect(ctx context.Context, network, address string) (net.Conn, *frame.Reader, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, err := c.dial(ctx, network, address)
	if err != nil {
		return nil, nil, "", amierr.Connection("dial", err)
	}

	// Рукопожатие ограничено тем же таймаутом, что и установка соединения
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	reader := frame.NewReader(conn, c.readerOpts...)

	banner, err := reader.ReadBanner()
	if err != nil {
		conn.Close()
		return nil, nil, "", amierr.Connection("banner", err)
	}

	if err := c.login(conn, reader); err != nil {
		conn.Close()
		return nil, nil, "", err
	}

	if !stop() {
		conn.Close()
		return nil, nil, "", amierr.Connection("login", ctx.Err())
	}
	conn.SetDeadline(time.Time{})

	return conn, reader, banner, nil
}

func (c *Client) login(conn net.Conn, reader *frame.Reader) error {
	a, err := action.Login(c.cfg.Username, c.cfg.Password, c.cfg.Events)
	if err != nil {
		return err
	}

	if _, err := conn.Write(a.Bytes()); err != nil {
		return amierr.Connection("login", err)
	}

	for {
		f, err := reader.ReadFrame()
		if err != nil && !isFrameLimit(err) {
			return amierr.Connection("login", err)
		}
		if f.ActionID() != a.ID {
			continue
		}
		if err != nil {
			return amierr.Connection("login", err)
		}
		if f.IsSuccess() {
			return nil
		}
		return &amierr.Error{
			Kind:    amierr.KindConnection,
			Op:      "login",
			Message: f.Message(),
			Err:     amierr.ErrLoginFailed,
		}
	}
}

// Send сериализует и записывает действие.
// Без соединения действие не ставится в очередь: ошибка логируется и возвращается.
func (c *Client) Send(a action.Action) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		c.incrementErrors()
		c.logger.Warn("действие не отправлено: нет соединения с АТС",
			slog.String("action", a.Name),
			slog.String("action_id", a.ID))
		return amierr.Connection("send", amierr.ErrNotConnected)
	}

	if err := a.Validate(); err != nil {
		c.incrementErrors()
		c.logger.Warn("действие не отправлено: недопустимое значение поля",
			slog.String("action", a.Name),
			slog.String("action_id", a.ID),
			slog.Any("error", err))
		return err
	}

	data := a.Bytes()

	c.writeMu.Lock()
	_, err := conn.Write(data)
	c.writeMu.Unlock()

	if err != nil {
		c.incrementErrors()
		c.logger.Error("ошибка отправки действия",
			slog.String("action", a.Name),
			slog.String("action_id", a.ID),
			slog.Any("error", err))
		return amierr.Connection("send", err)
	}

	c.incrementSent(uint64(len(data)))
	return nil
}

// Close отправляет Logoff и закрывает соединение. Повторно клиент не запускается.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.Write(action.Logoff().Bytes())
		c.writeMu.Unlock()
		conn.Close()
	}

	c.wg.Wait()
	c.transition(context.Background(), evClose)

	if conn != nil {
		c.logger.Info("соединение с АТС закрыто")
		c.notify(ConnectionClosed, nil)
	}
	return nil
}

// readLoop единственный путь доставки кадров: порядок сохраняется
func (c *Client) readLoop(conn net.Conn, reader *frame.Reader) {
	defer c.wg.Done()

	var cause error
	for {
		f, err := reader.ReadFrame()
		if err != nil {
			if isFrameLimit(err) {
				c.incrementErrors()
				c.deliverError(f, err)
				continue
			}
			cause = err
			break
		}

		c.incrementReceived()
		c.deliver(f)
	}

	c.handleDisconnect(conn, cause)
}

func (c *Client) deliver(f frame.Frame) {
	c.mu.RLock()
	handler := c.frameHandler
	c.mu.RUnlock()

	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.incrementErrors()
			c.logger.Error("паника в обработчике кадра",
				slog.Any("panic", r),
				slog.String("action_id", f.ActionID()),
				slog.String("event", f.Event()))
		}
	}()
	handler(f)
}

func (c *Client) deliverError(f frame.Frame, cause error) {
	c.mu.RLock()
	handler := c.frameErrorHandler
	c.mu.RUnlock()

	if handler == nil {
		c.logger.Warn("кадр отброшен",
			slog.String("action_id", f.ActionID()),
			slog.Any("error", cause))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("паника в обработчике ошибки кадра",
				slog.Any("panic", r),
				slog.String("action_id", f.ActionID()))
		}
	}()
	handler(f, cause)
}

// isFrameLimit ошибка разбора одного кадра; соединение при этом не рвется
func isFrameLimit(err error) bool {
	return errors.Is(err, frame.ErrLineTooLong) || errors.Is(err, frame.ErrTooManyFields)
}

func (c *Client) handleDisconnect(conn net.Conn, cause error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	conn.Close()

	// Соединение закрыто через Close, уведомит сам Close
	if !current || c.closed.Load() {
		return
	}

	c.transition(context.Background(), evDrop)

	event := ConnectionClosed
	if cause != nil && !errors.Is(cause, io.EOF) && !errors.Is(cause, net.ErrClosed) {
		event = ConnectionError
		c.incrementErrors()
		c.logger.Error("соединение с АТС прервано", slog.Any("error", cause))
	} else {
		c.logger.Warn("АТС закрыла соединение")
	}

	c.notify(event, cause)
}

func (c *Client) notify(event ConnectionEvent, err error) {
	c.mu.RLock()
	handler := c.connectionHandler
	c.mu.RUnlock()

	if handler != nil {
		handler(event, err)
	}
}

func (c *Client) transition(ctx context.Context, event string) {
	if err := c.state.Event(ctx, event); err != nil {
		c.logger.Debug("переход состояния не выполнен",
			slog.String("event", event),
			slog.Any("error", err))
	}
}

func (c *Client) incrementSent(bytes uint64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.ActionsSent++
	c.stats.BytesSent += bytes
}

func (c *Client) incrementReceived() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.FramesReceived++
}

func (c *Client) incrementErrors() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.Errors++
}
