// Package amitest поднимает поддельный интерфейс менеджера АТС для тестов.
package amitest

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// DefaultBanner строка приветствия поддельного сервера
const DefaultBanner = "Asterisk Call Manager/5.0.1"

// Responder формирует ответы на действие. Login обрабатывается сервером сам.
type Responder func(a frame.Frame) []frame.Frame

// Server поддельный сервер AMI на 127.0.0.1
type Server struct {
	Username string
	Password string
	Banner   string

	ln      net.Listener
	actions chan frame.Frame

	mu        sync.Mutex
	conns     map[net.Conn]struct{}
	responder Responder
	logins    int

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewServer запускает сервер и регистрирует его закрытие в t.Cleanup
func NewServer(t testing.TB) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("amitest: listen: %v", err)
	}

	s := &Server{
		Username: "admin",
		Password: "secret",
		Banner:   DefaultBanner,
		ln:       ln,
		actions:  make(chan frame.Frame, 128),
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	t.Cleanup(s.Close)
	return s
}

// Host адрес сервера
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.ln.Addr().String())
	return host
}

// Port порт сервера
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// Respond устанавливает автоответчик на действия
func (s *Server) Respond(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = r
}

// Logins количество успешных входов
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Actions канал полученных действий (кроме Login и Logoff)
func (s *Server) Actions() <-chan frame.Frame {
	return s.actions
}

// NextAction ждет следующее действие не дольше timeout
func (s *Server) NextAction(timeout time.Duration) (frame.Frame, bool) {
	select {
	case a := <-s.actions:
		return a, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Write отправляет кадры всем подключенным клиентам
func (s *Server) Write(frames ...frame.Frame) {
	var data []byte
	for _, f := range frames {
		data = append(data, Encode(f)...)
	}
	s.WriteRaw(string(data))
}

// WriteRaw отправляет произвольные байты всем подключенным клиентам
func (s *Server) WriteRaw(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Write([]byte(data))
	}
}

// DropConnections закрывает все клиентские соединения, продолжая слушать порт
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
		delete(s.conns, c)
	}
}

// Close останавливает сервер
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.ln.Close()
		s.DropConnections()
		s.wg.Wait()
	})
}

// Encode сериализует кадр в формат протокола
func Encode(f frame.Frame) []byte {
	return []byte(f.String() + "\r\n")
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	if _, err := conn.Write([]byte(s.Banner + "\r\n")); err != nil {
		return
	}

	reader := frame.NewReader(conn)
	for {
		a, err := reader.ReadFrame()
		if err != nil {
			return
		}

		switch a.Get("Action") {
		case "Login":
			s.login(conn, a)
			continue
		case "Logoff":
			conn.Write(Encode(frame.New(
				"Response", frame.ResponseGoodbye,
				"ActionID", a.ActionID(),
				"Message", "Thanks for all the fish.",
			)))
			return
		}

		select {
		case s.actions <- a:
		default:
		}

		s.mu.Lock()
		responder := s.responder
		s.mu.Unlock()

		if responder == nil {
			continue
		}
		for _, reply := range responder(a) {
			conn.Write(Encode(reply))
		}
	}
}

func (s *Server) login(conn net.Conn, a frame.Frame) {
	if a.Get("Username") != s.Username || a.Get("Secret") != s.Password {
		conn.Write(Encode(frame.New(
			"Response", frame.ResponseError,
			"ActionID", a.ActionID(),
			"Message", "Authentication failed",
		)))
		return
	}

	s.mu.Lock()
	s.logins++
	s.mu.Unlock()

	conn.Write(Encode(frame.New(
		"Response", frame.ResponseSuccess,
		"ActionID", a.ActionID(),
		"Message", "Authentication accepted",
	)))
	conn.Write(Encode(frame.New(
		"Event", "FullyBooted",
		"Privilege", "system,all",
		"Status", "Fully Booted",
	)))
}
