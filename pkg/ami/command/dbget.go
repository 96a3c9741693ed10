package command

import (
	"strings"

	"github.com/arzzra/astproxy/pkg/ami/action"
	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// Сообщение АТС об отсутствии ключа: для чтения флагов это "выключено"
const dbEntryNotFound = "Database entry not found"

// dbGet чтение ключа из базы АТС в два шага: ответ Success лишь подтверждает
// прием запроса, значение приходит отдельным событием DBGetResponse
type dbGet struct {
	verb   string
	family string
	result func(exten, val string) any
}

func (c *dbGet) Verb() string { return c.verb }

func (c *dbGet) Build(args Args) (action.Action, error) {
	var a extenArgs
	if err := decodeArgs(c.verb, args, &a); err != nil {
		return action.Action{}, err
	}
	if err := need(c.verb, "exten", a.Exten); err != nil {
		return action.Action{}, err
	}
	return action.DBGet(c.verb, c.family, a.Exten)
}

// Seed запоминает номер: в ответе Error его нет
func (c *dbGet) Seed(a action.Action) any {
	return a.Fields["Key"]
}

func (c *dbGet) Accept(f frame.Frame, acc any) (any, *Outcome) {
	exten, _ := acc.(string)

	switch {
	case f.IsEvent():
		if !strings.EqualFold(f.Event(), "DBGetResponse") {
			return acc, nil
		}
		if k := f.Get("Key"); k != "" {
			exten = k
		}
		return acc, Done(c.result(exten, f.Get("Val")))
	case f.IsSuccess():
		return acc, nil
	case f.IsError() && strings.EqualFold(f.Message(), dbEntryNotFound):
		return acc, Done(c.result(exten, ""))
	}
	return acc, Fail(reply(c.verb, f))
}

// DNDGet читает режим "не беспокоить"
func DNDGet() Command {
	return &dbGet{
		verb:   "dndGet",
		family: "DND",
		result: func(exten, val string) any {
			return DNDStatus{Exten: exten, Enabled: strings.EqualFold(val, "YES")}
		},
	}
}

// CFGet читает безусловную переадресацию
func CFGet() Command {
	return &dbGet{
		verb:   "cfGet",
		family: "CF",
		result: func(exten, val string) any {
			return CFStatus{Exten: exten, Enabled: val != "", To: val}
		},
	}
}
