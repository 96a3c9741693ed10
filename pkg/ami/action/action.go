// Package action строит исходящие действия AMI.
//
// Все функции пакета чистые: они только собирают набор полей и новый
// ActionID, ничего не отправляя. Ошибки только валидационные: нет
// обязательного аргумента или значение содержит перевод строки.
package action

import (
	"bytes"
	"sort"
	"strings"

	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
)

// Action исходящий запрос к АТС
type Action struct {
	Name   string            // значение поля Action
	ID     string            // значение поля ActionID
	Fields map[string]string // остальные поля
}

// New создает действие с новым ActionID для команды label
func New(name, label string) Action {
	return Action{
		Name:   name,
		ID:     MakeActionID(label),
		Fields: make(map[string]string),
	}
}

// With добавляет поле и возвращает действие для цепочки вызовов
func (a Action) With(key, value string) Action {
	if a.Fields == nil {
		a.Fields = make(map[string]string)
	}
	a.Fields[key] = value
	return a
}

// Map возвращает полный набор полей, включая Action и ActionID
func (a Action) Map() map[string]string {
	m := make(map[string]string, len(a.Fields)+2)
	for k, v := range a.Fields {
		m[k] = v
	}
	m["Action"] = a.Name
	if a.ID != "" {
		m["ActionID"] = a.ID
	}
	return m
}

// Validate проверяет, что ни имя, ни значение поля не содержит \r или \n.
// Такое значение завершило бы действие и начало следующее.
func (a Action) Validate() error {
	label, _ := VerbOfActionID(a.ID)
	if hasLineBreak(a.Name) {
		return amierr.InvalidValue(label, "Action")
	}
	if hasLineBreak(a.ID) {
		return amierr.InvalidValue(label, "ActionID")
	}

	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if hasLineBreak(k) || hasLineBreak(a.Fields[k]) {
			return amierr.InvalidValue(label, k)
		}
	}
	return nil
}

func hasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

// Bytes сериализует действие в формат протокола.
// Action и ActionID идут первыми, остальные поля по алфавиту.
func (a Action) Bytes() []byte {
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		if k == "Action" || k == "ActionID" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	writeField(&buf, "Action", a.Name)
	if a.ID != "" {
		writeField(&buf, "ActionID", a.ID)
	}
	for _, k := range keys {
		writeField(&buf, k, a.Fields[k])
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}
