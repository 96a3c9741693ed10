package transport

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/arzzra/astproxy/pkg/ami/action"
	"github.com/arzzra/astproxy/pkg/ami/amitest"
	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
	"github.com/arzzra/astproxy/pkg/ami/frame"
)

type ClientTestSuite struct {
	suite.Suite
	server *amitest.Server
	client *Client
	frames chan frame.Frame
	events chan ConnectionEvent
}

func (s *ClientTestSuite) SetupTest() {
	s.server = amitest.NewServer(s.T())
	s.frames = make(chan frame.Frame, 64)
	s.events = make(chan ConnectionEvent, 16)

	s.client = New(Config{
		Host:     s.server.Host(),
		Port:     s.server.Port(),
		Username: "admin",
		Password: "secret",
	})
	s.client.OnFrame(func(f frame.Frame) { s.frames <- f })
	s.client.OnConnection(func(ev ConnectionEvent, _ error) { s.events <- ev })
}

func (s *ClientTestSuite) TearDownTest() {
	s.client.Close()
}

func (s *ClientTestSuite) nextFrame() frame.Frame {
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		s.FailNow("frame not delivered")
		return nil
	}
}

func (s *ClientTestSuite) nextEvent() ConnectionEvent {
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(2 * time.Second):
		s.FailNow("connection event not delivered")
		return 0
	}
}

func (s *ClientTestSuite) TestStartConnects() {
	s.Require().NoError(s.client.Start(context.Background()))

	s.Equal(StateConnected, s.client.State())
	s.Equal(amitest.DefaultBanner, s.client.Banner())
	s.NotEmpty(s.client.SessionID())
	s.Equal(ConnectionOpened, s.nextEvent())
	s.Equal(1, s.server.Logins())

	// FullyBooted после Login доставляется как обычный кадр
	f := s.nextFrame()
	s.Equal("FullyBooted", f.Event())
}

func (s *ClientTestSuite) TestStartIdempotent() {
	s.Require().NoError(s.client.Start(context.Background()))
	sid := s.client.SessionID()

	s.Require().NoError(s.client.Start(context.Background()))
	s.Equal(sid, s.client.SessionID())
	s.Equal(1, s.server.Logins())
}

func (s *ClientTestSuite) TestSendAndOrderedDelivery() {
	s.Require().NoError(s.client.Start(context.Background()))
	s.nextFrame() // FullyBooted

	a := action.CoreShowChannels("listChannels")
	s.Require().NoError(s.client.Send(a))

	got, ok := s.server.NextAction(2 * time.Second)
	s.Require().True(ok)
	s.Equal("CoreShowChannels", got.Get("Action"))
	s.Equal(a.ID, got.ActionID())

	s.server.Write(
		frame.New("Event", "CoreShowChannel", "ActionID", a.ID, "Channel", "SIP/200-1"),
		frame.New("Event", "CoreShowChannel", "ActionID", a.ID, "Channel", "SIP/201-2"),
		frame.New("Event", "CoreShowChannelsComplete", "ActionID", a.ID),
	)

	s.Equal("SIP/200-1", s.nextFrame().Get("Channel"))
	s.Equal("SIP/201-2", s.nextFrame().Get("Channel"))
	s.Equal("CoreShowChannelsComplete", s.nextFrame().Event())

	st := s.client.Stats()
	s.Equal(uint64(1), st.ActionsSent)
	s.GreaterOrEqual(st.FramesReceived, uint64(4))
}

func (s *ClientTestSuite) TestSendWithoutConnection() {
	err := s.client.Send(action.CoreSettings("astVersion"))
	s.Require().Error(err)
	s.True(amierr.IsKind(err, amierr.KindConnection))
	s.ErrorIs(err, amierr.ErrNotConnected)
	s.Equal(uint64(1), s.client.Stats().Errors)
}

func (s *ClientTestSuite) TestServerDrop() {
	s.Require().NoError(s.client.Start(context.Background()))
	s.Equal(ConnectionOpened, s.nextEvent())

	s.server.DropConnections()

	s.Equal(ConnectionClosed, s.nextEvent())
	s.Eventually(func() bool {
		return s.client.State() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)

	err := s.client.Send(action.CoreSettings("astVersion"))
	s.ErrorIs(err, amierr.ErrNotConnected)

	// Повторный Start после обрыва устанавливает новую сессию
	s.Require().NoError(s.client.Start(context.Background()))
	s.Equal(2, s.server.Logins())
}

func (s *ClientTestSuite) TestClose() {
	s.Require().NoError(s.client.Start(context.Background()))
	s.Equal(ConnectionOpened, s.nextEvent())

	s.Require().NoError(s.client.Close())
	s.Equal(StateClosed, s.client.State())
	s.Equal(ConnectionClosed, s.nextEvent())

	s.NoError(s.client.Close())

	err := s.client.Start(context.Background())
	s.ErrorIs(err, amierr.ErrClosed)
}

func (s *ClientTestSuite) TestHandlerPanicDoesNotKillConnection() {
	var once sync.Once
	s.client.OnFrame(func(f frame.Frame) {
		once.Do(func() { panic("boom") })
		s.frames <- f
	})

	s.Require().NoError(s.client.Start(context.Background()))

	// первый кадр (FullyBooted) вызывает панику
	s.server.Write(frame.New("Event", "Hangup", "Channel", "SIP/200-1"))
	f := s.nextFrame()
	s.Equal("Hangup", f.Event())
	s.True(s.client.IsConnected())
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func TestStartLoginFailed(t *testing.T) {
	server := amitest.NewServer(t)

	c := New(Config{
		Host:     server.Host(),
		Port:     server.Port(),
		Username: "admin",
		Password: "wrong",
	})
	defer c.Close()

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, amierr.ErrLoginFailed)
	assert.Contains(t, err.Error(), "Authentication failed")
	assert.Equal(t, StateDisconnected, c.State())
}

func TestOversizedFrameReportedWithActionID(t *testing.T) {
	server := amitest.NewServer(t)

	c := New(Config{
		Host:     server.Host(),
		Port:     server.Port(),
		Username: "admin",
		Password: "secret",
	}, WithReaderOptions(frame.WithMaxLineLength(128)))
	defer c.Close()

	type frameErr struct {
		f   frame.Frame
		err error
	}
	errs := make(chan frameErr, 4)
	frames := make(chan frame.Frame, 16)
	c.OnFrame(func(f frame.Frame) { frames <- f })
	c.OnFrameError(func(f frame.Frame, err error) { errs <- frameErr{f, err} })

	require.NoError(t, c.Start(context.Background()))

	server.Write(
		frame.New("Response", "Success", "ActionID", "astVersion_1.1", "AsteriskVersion", strings.Repeat("9", 512)),
		frame.New("Event", "Hangup", "Channel", "SIP/200-1"),
	)

	select {
	case got := <-errs:
		assert.ErrorIs(t, got.err, frame.ErrLineTooLong)
		assert.Equal(t, "astVersion_1.1", got.f.ActionID())
	case <-time.After(2 * time.Second):
		t.Fatal("frame error not reported")
	}

	// соединение не рвется, следующий кадр доставляется
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-frames:
			if f.Event() == "Hangup" {
				assert.True(t, c.IsConnected())
				assert.NotZero(t, c.Stats().Errors)
				return
			}
		case <-deadline:
			t.Fatal("next frame not delivered")
		}
	}
}

func TestSendRejectsLineBreak(t *testing.T) {
	server := amitest.NewServer(t)

	c := New(Config{
		Host:     server.Host(),
		Port:     server.Port(),
		Username: "admin",
		Password: "secret",
	})
	defer c.Close()
	require.NoError(t, c.Start(context.Background()))

	a := action.New("Hangup", "hangup").With("Channel", "SIP/1\r\n\r\nAction: Logoff")
	err := c.Send(a)
	require.Error(t, err)
	assert.ErrorIs(t, err, amierr.ErrInvalidValue)

	_, ok := server.NextAction(200 * time.Millisecond)
	assert.False(t, ok, "nothing reaches the PBX")
	assert.True(t, c.IsConnected())
}

func TestStartRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	var gotEvent ConnectionEvent = -1
	c := New(Config{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		Username:    "admin",
		Password:    "secret",
		DialTimeout: time.Second,
	})
	c.OnConnection(func(ev ConnectionEvent, _ error) { gotEvent = ev })

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.True(t, amierr.IsKind(err, amierr.KindConnection))
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, ConnectionError, gotEvent)
}

func TestStartConfigurationError(t *testing.T) {
	dialed := false
	c := New(Config{Username: "admin"}, WithDialer(func(ctx context.Context, network, address string) (net.Conn, error) {
		dialed = true
		return nil, errors.New("unexpected dial")
	}))

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.True(t, amierr.IsKind(err, amierr.KindConfiguration))
	assert.False(t, dialed)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, DefaultEvents, cfg.Events)

	network, address := cfg.Endpoint()
	assert.Equal(t, "tcp", network)
	assert.Equal(t, "localhost:5038", address)

	cfg.Socket = "/var/run/asterisk/ami.sock"
	network, address = cfg.Endpoint()
	assert.Equal(t, "unix", network)
	assert.Equal(t, "/var/run/asterisk/ami.sock", address)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Username: "a", Password: "b", Port: 5038}, false},
		{"no user", Config{Password: "b", Port: 5038}, true},
		{"no password", Config{Username: "a", Port: 5038}, true},
		{"bad port", Config{Username: "a", Password: "b", Port: 70000}, true},
		{"socket ignores port", Config{Username: "a", Password: "b", Socket: "/tmp/ami"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, amierr.IsKind(err, amierr.KindConfiguration))
				return
			}
			assert.NoError(t, err)
		})
	}
}
