// Package frame разбирает входящий поток AMI на отдельные кадры.
//
// Кадр - это блок строк вида "Key: Value", завершенный пустой строкой.
// Имена полей в протоколе нечувствительны к регистру (АТС присылает и
// ActionID, и actionid), поэтому все ключи приводятся к нижнему регистру.
package frame

import (
	"sort"
	"strings"
)

// Имена служебных полей
const (
	KeyActionID  = "actionid"
	KeyResponse  = "response"
	KeyEvent     = "event"
	KeyMessage   = "message"
	KeyEventList = "eventlist"
	KeyOutput    = "output"
)

// Значения поля Response
const (
	ResponseSuccess = "Success"
	ResponseError   = "Error"
	ResponseFollows = "Follows"
	ResponseGoodbye = "Goodbye"
)

// Kind тип кадра
type Kind int

const (
	KindUnknown Kind = iota
	KindResponse
	KindEvent
)

// String имя типа кадра для логов и метрик
func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Frame один разобранный кадр: имя поля в нижнем регистре -> значение
type Frame map[string]string

// New создает кадр из пар ключ/значение, приводя ключи к нижнему регистру
func New(kv ...string) Frame {
	f := make(Frame, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(kv[i], kv[i+1])
	}
	return f
}

// Get возвращает значение поля без учета регистра имени
func (f Frame) Get(key string) string {
	return f[strings.ToLower(key)]
}

// Has проверяет наличие поля
func (f Frame) Has(key string) bool {
	_, ok := f[strings.ToLower(key)]
	return ok
}

// Set устанавливает значение поля
func (f Frame) Set(key, value string) {
	f[strings.ToLower(key)] = value
}

// ActionID идентификатор действия, к которому относится кадр
func (f Frame) ActionID() string { return f[KeyActionID] }

// Response значение поля Response (Success, Error, ...)
func (f Frame) Response() string { return f[KeyResponse] }

// Event имя события
func (f Frame) Event() string { return f[KeyEvent] }

// Message текст сообщения АТС
func (f Frame) Message() string { return f[KeyMessage] }

// EventList значение поля EventList (start, Complete)
func (f Frame) EventList() string { return f[KeyEventList] }

// Kind определяет тип кадра по полю-дискриминатору
func (f Frame) Kind() Kind {
	if _, ok := f[KeyResponse]; ok {
		return KindResponse
	}
	if _, ok := f[KeyEvent]; ok {
		return KindEvent
	}
	return KindUnknown
}

// IsResponse кадр-ответ на действие
func (f Frame) IsResponse() bool { return f.Kind() == KindResponse }

// IsEvent кадр-событие
func (f Frame) IsEvent() bool { return f.Kind() == KindEvent }

// IsSuccess проверяет Response: Success
func (f Frame) IsSuccess() bool {
	return strings.EqualFold(f.Response(), ResponseSuccess)
}

// IsError проверяет Response: Error
func (f Frame) IsError() bool {
	return strings.EqualFold(f.Response(), ResponseError)
}

// IsEventListStart проверяет подтверждение начала списка (EventList: start)
func (f Frame) IsEventListStart() bool {
	return strings.EqualFold(f.EventList(), "start")
}

// Clone возвращает независимую копию кадра
func (f Frame) Clone() Frame {
	c := make(Frame, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

// String возвращает кадр в виде строк протокола с отсортированными ключами
func (f Frame) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(f[k])
		b.WriteString("\r\n")
	}
	return b.String()
}
