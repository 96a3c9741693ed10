package command

import (
	"github.com/arzzra/astproxy/pkg/ami/action"
	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// Префикс caller id канала прослушивания
const spyCallerIDPrefix = "SPY->"

// single команда с одним ответным кадром: первый же кадр терминальный
type single struct {
	verb  string
	build func(verb string, args Args) (action.Action, error)
	// result разбирает ответ; nil - результатом служит только успех/ошибка
	result func(verb string, f frame.Frame) *Outcome
}

func (c *single) Verb() string { return c.verb }

func (c *single) Build(args Args) (action.Action, error) {
	return c.build(c.verb, args)
}

func (c *single) Accept(f frame.Frame, _ any) (any, *Outcome) {
	if c.result != nil {
		return nil, c.result(c.verb, f)
	}
	return nil, Fail(reply(c.verb, f))
}

type dbSetArgs struct {
	Exten    string `mapstructure:"exten"`
	Activate bool   `mapstructure:"activate"`
	Val      string `mapstructure:"val"`
}

// DNDSet включает или выключает "не беспокоить" (семейство DND в базе АТС)
func DNDSet() Command {
	return &single{
		verb: "dndSet",
		build: func(verb string, args Args) (action.Action, error) {
			var a dbSetArgs
			if err := decodeArgs(verb, args, &a); err != nil {
				return action.Action{}, err
			}
			if err := need(verb, "exten", a.Exten); err != nil {
				return action.Action{}, err
			}
			if a.Activate {
				return action.DBPut(verb, "DND", a.Exten, "YES")
			}
			return action.DBDel(verb, "DND", a.Exten)
		},
	}
}

// CFSet включает переадресацию на val или выключает ее (семейство CF)
func CFSet() Command {
	return &single{
		verb: "cfSet",
		build: func(verb string, args Args) (action.Action, error) {
			var a dbSetArgs
			if err := decodeArgs(verb, args, &a); err != nil {
				return action.Action{}, err
			}
			if err := need(verb, "exten", a.Exten); err != nil {
				return action.Action{}, err
			}
			if a.Activate {
				if err := need(verb, "val", a.Val); err != nil {
					return action.Action{}, err
				}
				return action.DBPut(verb, "CF", a.Exten, a.Val)
			}
			return action.DBDel(verb, "CF", a.Exten)
		},
	}
}

type redirectArgs struct {
	Channel string `mapstructure:"chToRedirect"`
	To      string `mapstructure:"to"`
	Context string `mapstructure:"context"`
}

// RedirectChannel переводит канал на номер to
func RedirectChannel() Command {
	return &single{
		verb: "redirectChannel",
		build: func(verb string, args Args) (action.Action, error) {
			var a redirectArgs
			if err := decodeArgs(verb, args, &a); err != nil {
				return action.Action{}, err
			}
			if err := need(verb, "chToRedirect", a.Channel, "to", a.To); err != nil {
				return action.Action{}, err
			}
			return action.Redirect(verb, a.Channel, a.To, a.Context, 1)
		},
	}
}

type transferArgs struct {
	Channel   string `mapstructure:"chToTransfer"`
	To        string `mapstructure:"to"`
	Voicemail string `mapstructure:"voicemail"`
	Context   string `mapstructure:"context"`
}

// AttendedTransfer сопровождаемый перевод канала на номер to
func AttendedTransfer() Command {
	return &single{
		verb: "attendedTransfer",
		build: func(verb string, args Args) (action.Action, error) {
			var a transferArgs
			if err := decodeArgs(verb, args, &a); err != nil {
				return action.Action{}, err
			}
			if err := need(verb, "chToTransfer", a.Channel, "to", a.To); err != nil {
				return action.Action{}, err
			}
			return action.Atxfer(verb, a.Channel, a.To, a.Context)
		},
	}
}

// TransferToVoicemail переводит канал в голосовой ящик
func TransferToVoicemail() Command {
	return &single{
		verb: "transferToVoicemail",
		build: func(verb string, args Args) (action.Action, error) {
			var a transferArgs
			if err := decodeArgs(verb, args, &a); err != nil {
				return action.Action{}, err
			}
			if err := need(verb, "chToTransfer", a.Channel, "voicemail", a.Voicemail); err != nil {
				return action.Action{}, err
			}
			return action.Redirect(verb, a.Channel, "vmu"+a.Voicemail, a.Context, 1)
		},
	}
}

type spyArgs struct {
	SpierID string `mapstructure:"spierId"`
	SpiedID string `mapstructure:"spiedId"`
	ChToSpy string `mapstructure:"chToSpy"`
}

// SpySpeak прослушивание разговора с возможностью говорить с абонентом (whisper)
func SpySpeak() Command {
	return spy("spySpeak", "w")
}

// SpyListen тихое прослушивание разговора
func SpyListen() Command {
	return spy("spyListen", "q")
}

func spy(verb, options string) Command {
	return &single{
		verb: verb,
		build: func(verb string, args Args) (action.Action, error) {
			var a spyArgs
			if err := decodeArgs(verb, args, &a); err != nil {
				return action.Action{}, err
			}
			if err := need(verb, "spierId", a.SpierID, "spiedId", a.SpiedID, "chToSpy", a.ChToSpy); err != nil {
				return action.Action{}, err
			}
			return action.ChanSpy(verb, a.SpierID, spyCallerIDPrefix+a.SpiedID, a.ChToSpy, options)
		},
	}
}

type channelArgs struct {
	Channel  string `mapstructure:"channel"`
	FilePath string `mapstructure:"filepath"`
}

// Hangup завершает канал
func Hangup() Command {
	return &single{
		verb: "hangup",
		build: func(verb string, args Args) (action.Action, error) {
			var a channelArgs
			if err := decodeArgs(verb, args, &a); err != nil {
				return action.Action{}, err
			}
			if err := need(verb, "channel", a.Channel); err != nil {
				return action.Action{}, err
			}
			return action.Hangup(verb, a.Channel)
		},
	}
}

// RecordCall начинает запись канала в файл (с дозаписью, если файл существует)
func RecordCall() Command {
	return &single{
		verb: "recordCall",
		build: func(verb string, args Args) (action.Action, error) {
			var a channelArgs
			if err := decodeArgs(verb, args, &a); err != nil {
				return action.Action{}, err
			}
			if err := need(verb, "channel", a.Channel, "filepath", a.FilePath); err != nil {
				return action.Action{}, err
			}
			return action.MixMonitor(verb, a.Channel, a.FilePath, "a")
		},
	}
}

// StopRecordCall останавливает запись канала
func StopRecordCall() Command {
	return &single{
		verb: "stopRecordCall",
		build: func(verb string, args Args) (action.Action, error) {
			var a channelArgs
			if err := decodeArgs(verb, args, &a); err != nil {
				return action.Action{}, err
			}
			if err := need(verb, "channel", a.Channel); err != nil {
				return action.Action{}, err
			}
			return action.StopMixMonitor(verb, a.Channel)
		},
	}
}

// AstVersion возвращает версию АТС из CoreSettings
func AstVersion() Command {
	return &single{
		verb: "astVersion",
		build: func(verb string, _ Args) (action.Action, error) {
			return action.CoreSettings(verb), nil
		},
		result: func(verb string, f frame.Frame) *Outcome {
			if f.IsError() {
				return Fail(reply(verb, f))
			}
			v := f.Get("AsteriskVersion")
			if v == "" {
				v = StatusUnknown
			}
			return Done(AsteriskVersion{Version: v})
		},
	}
}

type extenArgs struct {
	Exten   string `mapstructure:"exten"`
	Context string `mapstructure:"context"`
}

// ExtenStatus возвращает состояние внутреннего номера
func ExtenStatus() Command {
	return &single{
		verb: "extenStatus",
		build: func(verb string, args Args) (action.Action, error) {
			var a extenArgs
			if err := decodeArgs(verb, args, &a); err != nil {
				return action.Action{}, err
			}
			if err := need(verb, "exten", a.Exten); err != nil {
				return action.Action{}, err
			}
			return action.ExtensionState(verb, a.Exten, a.Context)
		},
		result: func(verb string, f frame.Frame) *Outcome {
			exten := f.Get("Exten")
			status := f.Get("Status")
			switch {
			case f.IsSuccess() && exten != "" && status != "-1":
				return Done(ExtensionStatus{Exten: exten, Status: ExtensionState(status)})
			case exten != "" && status == "-1":
				return Fail(amierr.Command(verb, f.ActionID(), "Extension "+exten+" not found"))
			case f.IsError():
				return Fail(reply(verb, f))
			}
			return Fail(amierr.Command(verb, f.ActionID(), ""))
		},
	}
}
