// Package transport управляет единственным постоянным соединением
// с портом интерфейса менеджера АТС.
//
// Клиент читает поток в одной горутине и передает кадры обработчику
// строго в порядке поступления. Исходящей очереди нет: действие,
// отправленное без соединения, только логируется.
package transport

import (
	"github.com/arzzra/astproxy/pkg/ami/action"
	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// State состояние соединения
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// ConnectionEvent событие жизненного цикла соединения
type ConnectionEvent int

const (
	ConnectionOpened ConnectionEvent = iota
	ConnectionClosed
	ConnectionError
)

func (e ConnectionEvent) String() string {
	switch e {
	case ConnectionOpened:
		return "opened"
	case ConnectionClosed:
		return "closed"
	case ConnectionError:
		return "error"
	}
	return "unknown"
}

// FrameHandler вызывается для каждого входящего кадра из горутины чтения
type FrameHandler func(f frame.Frame)

// FrameErrorHandler получает кадр, разобранный не полностью, и причину.
// В кадре есть только поля до ошибки и ActionID.
type FrameErrorHandler func(f frame.Frame, err error)

// ConnectionHandler вызывается при смене состояния соединения
type ConnectionHandler func(event ConnectionEvent, err error)

// Sender отправляет действия в соединение
type Sender interface {
	Send(a action.Action) error
}

// Stats статистика соединения
type Stats struct {
	FramesReceived uint64
	ActionsSent    uint64
	BytesSent      uint64
	Errors         uint64
}
