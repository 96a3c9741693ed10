// Package command содержит команды прокси: по одной реализации Command на глагол.
//
// Команда строит исходящее действие из аргументов вызывающей стороны (Build)
// и накапливает входящие кадры с тем же ActionID до терминального (Accept).
// Аккумулятор хранит диспетчер, поэтому сами команды не имеют состояния и
// одновременные вызовы одного глагола не пересекаются.
package command

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/arzzra/astproxy/pkg/ami/action"
	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// Args аргументы команды, как их передает вызывающая сторона
type Args map[string]any

// Outcome терминальный результат команды
type Outcome struct {
	Result any
	Err    error
}

// Command реализация одного глагола
type Command interface {
	// Verb имя глагола, под которым команда регистрируется
	Verb() string

	// Build строит действие. Ошибка возможна только при нехватке аргументов.
	Build(args Args) (action.Action, error)

	// Accept обрабатывает очередной кадр с ActionID действия.
	// Возвращает новое состояние аккумулятора и, если кадр терминальный, результат.
	Accept(f frame.Frame, acc any) (any, *Outcome)
}

// Seeder реализуют команды, которым нужно начальное состояние аккумулятора,
// выведенное из отправленного действия
type Seeder interface {
	Seed(a action.Action) any
}

// Done завершает команду результатом
func Done(result any) *Outcome {
	return &Outcome{Result: result}
}

// Fail завершает команду ошибкой
func Fail(err error) *Outcome {
	return &Outcome{Err: err}
}

// decodeArgs раскладывает аргументы в типизированную структуру.
// Числа и строки приводятся друг к другу, поэтому {voicemail: 214} допустим.
func decodeArgs(verb string, args Args, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(args)); err != nil {
		return &amierr.Error{
			Kind:    amierr.KindValidation,
			Op:      "build",
			Verb:    verb,
			Message: "invalid arguments",
			Err:     err,
		}
	}
	return nil
}

// decodeFrame раскладывает поля кадра в структуру по тегам mapstructure
func decodeFrame(f frame.Frame, out any) error {
	if err := mapstructure.Decode(map[string]string(f), out); err != nil {
		return fmt.Errorf("decode %s frame: %w", f.Event(), err)
	}
	return nil
}

// need проверяет обязательные аргументы; pairs - имя, значение, ...
func need(verb string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return amierr.Validation(verb, pairs[i])
		}
	}
	return nil
}

// reply разбирает единственный ответ АТС:
// Success - успех, Error с сообщением - ошибка АТС, иначе общая ошибка "error"
func reply(verb string, f frame.Frame) error {
	switch {
	case f.IsSuccess():
		return nil
	case f.IsError() && f.Message() != "":
		return amierr.Command(verb, f.ActionID(), f.Message())
	default:
		return amierr.Command(verb, f.ActionID(), "")
	}
}
