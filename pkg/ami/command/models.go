package command

// Модели чтения. Строятся только из данных кадров и описывают состояние
// на момент запроса; каждая выборка собирается заново.

// ChannelEntry активный канал из CoreShowChannels
type ChannelEntry struct {
	Channel        string `json:"channel"`
	UniqueID       string `json:"uniqueid"`
	Status         string `json:"status"`
	Duration       string `json:"duration"`
	CallerNum      string `json:"callerNum"`
	CallerName     string `json:"callerName"`
	BridgedNum     string `json:"bridgedNum"`
	BridgedName    string `json:"bridgedName"`
	BridgedChannel string `json:"bridgedChannel"`
}

// TrunkChannelEntry канал DAHDI транка
type TrunkChannelEntry struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
}

// EndpointEntry сводная карточка PJSIP устройства.
// Каждое поле заполняет ровно один тип события.
type EndpointEntry struct {
	Exten     string `json:"exten"`     // IdentifyDetail
	Name      string `json:"name"`      // IdentifyDetail
	Context   string `json:"context"`   // EndpointDetail
	IP        string `json:"ip"`        // ContactStatusDetail
	Port      string `json:"port"`      // ContactStatusDetail
	UserAgent string `json:"useragent"` // ContactStatusDetail
	ChanType  string `json:"chantype"`
}

// ExtensionStatus состояние внутреннего номера
type ExtensionStatus struct {
	Exten  string `json:"exten"`
	Status string `json:"status"`
}

// DNDStatus режим "не беспокоить"
type DNDStatus struct {
	Exten   string `json:"exten"`
	Enabled bool   `json:"enabled"`
}

// CFStatus безусловная переадресация
type CFStatus struct {
	Exten   string `json:"exten"`
	Enabled bool   `json:"enabled"`
	To      string `json:"to,omitempty"`
}

// AsteriskVersion версия АТС
type AsteriskVersion struct {
	Version string `json:"asteriskVersion"`
}
