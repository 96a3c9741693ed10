package command

// Builtin возвращает все встроенные команды
func Builtin() []Command {
	return []Command{
		ListChannels(),
		ListDahdiChannels(),
		PJSIPDetails(),
		AstVersion(),
		ExtenStatus(),
		DNDGet(),
		DNDSet(),
		CFGet(),
		CFSet(),
		RedirectChannel(),
		AttendedTransfer(),
		TransferToVoicemail(),
		SpySpeak(),
		SpyListen(),
		Hangup(),
		RecordCall(),
		StopRecordCall(),
	}
}
