// Package errors описывает ошибки ядра AMI прокси.
//
// Все ошибки ядра представлены одним типом *Error с категорией Kind.
// Ошибки команд (Kind == KindCommand) возвращают в Error() ровно то
// сообщение, которое прислала АТС, чтобы вызывающая сторона могла
// показать его пользователю без дополнительной обработки.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind категория ошибки
type Kind string

const (
	// KindConfiguration неверные или отсутствующие параметры подключения
	KindConfiguration Kind = "configuration"
	// KindConnection ошибка транспорта (отказ в соединении, сброс)
	KindConnection Kind = "connection"
	// KindProtocol кадр не разобран или в нем нет ожидаемых полей
	KindProtocol Kind = "protocol"
	// KindCommand ошибка, которую вернула сама АТС
	KindCommand Kind = "command"
	// KindUnknownVerb команда не зарегистрирована
	KindUnknownVerb Kind = "unknown_verb"
	// KindValidation не хватает обязательных аргументов команды
	KindValidation Kind = "validation"
)

// String возвращает строковое представление категории
func (k Kind) String() string {
	return string(k)
}

// Error ошибка ядра с контекстом
type Error struct {
	Kind     Kind
	Op       string // операция, на которой произошла ошибка
	Verb     string // имя команды, если применимо
	ActionID string // идентификатор действия, если применимо
	Message  string
	Err      error // исходная ошибка
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	if e.Kind == KindCommand {
		return e.Message
	}

	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}

	switch {
	case e.Op != "" && e.Verb != "":
		return fmt.Sprintf("%s %s [%s]: %s", e.Op, e.Verb, e.Kind, msg)
	case e.Op != "":
		return fmt.Sprintf("%s [%s]: %s", e.Op, e.Kind, msg)
	case e.Verb != "":
		return fmt.Sprintf("%s [%s]: %s", e.Verb, e.Kind, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// Предопределенные ошибки
var (
	ErrNotConnected      = stderrors.New("not connected")
	ErrClosed            = stderrors.New("connection closed")
	ErrUnknownVerb       = stderrors.New("unknown verb")
	ErrMissingArgument   = stderrors.New("missing required argument")
	ErrAlreadyRegistered = stderrors.New("verb already registered")
	ErrLoginFailed       = stderrors.New("login failed")
	ErrInvalidValue      = stderrors.New("value contains line break")
)

// Configuration создает ошибку конфигурации
func Configuration(message string, err error) *Error {
	return &Error{Kind: KindConfiguration, Op: "config", Message: message, Err: err}
}

// Connection создает транспортную ошибку
func Connection(op string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

// Protocol создает ошибку протокола для кадра с данным ActionID
func Protocol(verb, actionID string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: "accept", Verb: verb, ActionID: actionID, Err: err}
}

// Command создает ошибку, о которой сообщила АТС
func Command(verb, actionID, message string) *Error {
	if message == "" {
		message = "error"
	}
	return &Error{Kind: KindCommand, Verb: verb, ActionID: actionID, Message: message}
}

// UnknownVerb создает ошибку незарегистрированной команды
func UnknownVerb(verb string) *Error {
	return &Error{Kind: KindUnknownVerb, Op: "do", Verb: verb, Err: ErrUnknownVerb}
}

// Validation создает ошибку валидации аргументов команды
func Validation(verb, field string) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      "build",
		Verb:    verb,
		Message: field,
		Err:     ErrMissingArgument,
	}
}

// InvalidValue создает ошибку валидации для значения, которое нельзя
// передать в одном поле протокола (перевод строки завершает поле)
func InvalidValue(verb, field string) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      "build",
		Verb:    verb,
		Message: field,
		Err:     ErrInvalidValue,
	}
}

// IsKind проверяет, что err (или любая ошибка в цепочке) имеет категорию kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsCommand проверяет, что ошибка пришла от АТС
func IsCommand(err error) bool {
	return IsKind(err, KindCommand)
}
