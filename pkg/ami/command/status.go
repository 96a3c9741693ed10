package command

import "strings"

// StatusUnknown возвращается для значений, которых нет в таблицах
const StatusUnknown = "unknown"

// channelStates числовое состояние канала (ChannelState) -> строка
var channelStates = map[string]string{
	"0": "down",
	"1": "reserved",
	"2": "offhook",
	"3": "dialing",
	"4": "ring",
	"5": "ringing",
	"6": "up",
	"7": "busy",
	"8": "dialing_offhook",
	"9": "prering",
}

// extenStates состояние внутреннего номера (ExtensionState) -> строка
var extenStates = map[string]string{
	"0":  "online",
	"1":  "busy",
	"2":  "dnd",
	"4":  "offline",
	"8":  "ringing",
	"9":  "busy_ringing",
	"16": "onhold",
}

// ChannelState переводит ChannelState в строку
func ChannelState(code string) string {
	if s, ok := channelStates[code]; ok {
		return s
	}
	return StatusUnknown
}

// ExtensionState переводит код состояния номера в строку
func ExtensionState(code string) string {
	if s, ok := extenStates[code]; ok {
		return s
	}
	return StatusUnknown
}

// TrunkStatus переводит Alarm канала DAHDI в состояние транка
func TrunkStatus(alarm string) string {
	if strings.EqualFold(alarm, "ok") {
		return "online"
	}
	return "offline"
}
