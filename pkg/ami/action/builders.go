package action

import (
	"strconv"

	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
)

// DefaultContext контекст диалплана по умолчанию для переводов
const DefaultContext = "from-internal"

// required проверяет, что все поля заполнены; pairs - имя, значение, имя, значение...
func required(label string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return amierr.Validation(label, pairs[i])
		}
	}
	return nil
}

// checked возвращает действие, если ни одно его поле не разрывает кадр
func checked(a Action) (Action, error) {
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// Login действие входа в интерфейс менеджера
func Login(username, secret, events string) (Action, error) {
	if err := required("login", "username", username, "secret", secret); err != nil {
		return Action{}, err
	}
	if events == "" {
		events = "on"
	}
	return checked(New("Login", "login").
		With("Username", username).
		With("Secret", secret).
		With("Events", events))
}

// Logoff действие завершения сессии
func Logoff() Action {
	return New("Logoff", "logoff")
}

// CoreSettings запрос настроек ядра (содержит версию АТС)
func CoreSettings(label string) Action {
	return New("CoreSettings", label)
}

// CoreShowChannels запрос списка активных каналов
func CoreShowChannels(label string) Action {
	return New("CoreShowChannels", label)
}

// DAHDIShowChannels запрос списка каналов DAHDI транков
func DAHDIShowChannels(label string) Action {
	return New("DAHDIShowChannels", label)
}

// PJSIPShowEndpoint запрос подробностей об оконечном устройстве PJSIP
func PJSIPShowEndpoint(label, endpoint string) (Action, error) {
	if err := required(label, "exten", endpoint); err != nil {
		return Action{}, err
	}
	return checked(New("PJSIPShowEndpoint", label).With("Endpoint", endpoint))
}

// DBGet чтение ключа из внутренней базы АТС
func DBGet(label, family, key string) (Action, error) {
	if err := required(label, "family", family, "exten", key); err != nil {
		return Action{}, err
	}
	return checked(New("DBGet", label).With("Family", family).With("Key", key))
}

// DBPut запись ключа во внутреннюю базу АТС
func DBPut(label, family, key, val string) (Action, error) {
	if err := required(label, "family", family, "exten", key, "val", val); err != nil {
		return Action{}, err
	}
	return checked(New("DBPut", label).With("Family", family).With("Key", key).With("Val", val))
}

// DBDel удаление ключа из внутренней базы АТС
func DBDel(label, family, key string) (Action, error) {
	if err := required(label, "family", family, "exten", key); err != nil {
		return Action{}, err
	}
	return checked(New("DBDel", label).With("Family", family).With("Key", key))
}

// ExtensionState запрос состояния внутреннего номера
func ExtensionState(label, exten, context string) (Action, error) {
	if err := required(label, "exten", exten); err != nil {
		return Action{}, err
	}
	a := New("ExtensionState", label).With("Exten", exten)
	if context != "" {
		a = a.With("Context", context)
	}
	return checked(a)
}

// Redirect перевод канала на другой номер
func Redirect(label, channel, exten, context string, priority int) (Action, error) {
	if err := required(label, "channel", channel, "exten", exten); err != nil {
		return Action{}, err
	}
	if context == "" {
		context = DefaultContext
	}
	if priority <= 0 {
		priority = 1
	}
	return checked(New("Redirect", label).
		With("Channel", channel).
		With("Exten", exten).
		With("Context", context).
		With("Priority", strconv.Itoa(priority)))
}

// Atxfer сопровождаемый перевод
func Atxfer(label, channel, exten, context string) (Action, error) {
	if err := required(label, "channel", channel, "exten", exten); err != nil {
		return Action{}, err
	}
	if context == "" {
		context = DefaultContext
	}
	return checked(New("Atxfer", label).
		With("Channel", channel).
		With("Exten", exten).
		With("Context", context))
}

// ChanSpy вызов Originate с приложением ChanSpy.
// options: "w" - шепот, "q" - тихое прослушивание.
func ChanSpy(label, spierChannel, callerID, chToSpy, options string) (Action, error) {
	if err := required(label, "spierId", spierChannel, "chToSpy", chToSpy); err != nil {
		return Action{}, err
	}
	data := chToSpy
	if options != "" {
		data += "," + options
	}
	a := New("Originate", label).
		With("Channel", spierChannel).
		With("Application", "ChanSpy").
		With("Data", data)
	if callerID != "" {
		a = a.With("Callerid", callerID)
	}
	return checked(a)
}

// Hangup завершение канала
func Hangup(label, channel string) (Action, error) {
	if err := required(label, "channel", channel); err != nil {
		return Action{}, err
	}
	return checked(New("Hangup", label).With("Channel", channel))
}

// MixMonitor запуск записи разговора
func MixMonitor(label, channel, file, options string) (Action, error) {
	if err := required(label, "channel", channel, "filepath", file); err != nil {
		return Action{}, err
	}
	a := New("MixMonitor", label).With("Channel", channel).With("File", file)
	if options != "" {
		a = a.With("Options", options)
	}
	return checked(a)
}

// StopMixMonitor остановка записи разговора
func StopMixMonitor(label, channel string) (Action, error) {
	if err := required(label, "channel", channel); err != nil {
		return Action{}, err
	}
	return checked(New("StopMixMonitor", label).With("Channel", channel))
}
