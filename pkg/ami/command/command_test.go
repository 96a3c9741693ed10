package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/astproxy/pkg/ami/action"
	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// run прогоняет кадры через команду так же, как это делает диспетчер,
// и возвращает первый терминальный результат и номер кадра
func run(t *testing.T, cmd Command, a action.Action, frames ...frame.Frame) (*Outcome, int) {
	t.Helper()

	var acc any
	if s, ok := cmd.(Seeder); ok {
		acc = s.Seed(a)
	}
	for i, f := range frames {
		var out *Outcome
		acc, out = cmd.Accept(f, acc)
		if out != nil {
			return out, i
		}
	}
	return nil, -1
}

func build(t *testing.T, cmd Command, args Args) action.Action {
	t.Helper()
	a, err := cmd.Build(args)
	require.NoError(t, err)
	return a
}

func TestBuiltinVerbsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range Builtin() {
		assert.False(t, seen[c.Verb()], "duplicate verb %s", c.Verb())
		seen[c.Verb()] = true

		a, err := c.Build(Args{
			"exten": "214", "activate": true, "val": "300",
			"chToRedirect": "SIP/200-1", "chToTransfer": "SIP/200-1", "to": "201",
			"voicemail": "214", "spierId": "SIP/200", "spiedId": "201", "chToSpy": "SIP/201-2",
			"channel": "SIP/200-1", "filepath": "/var/spool/rec.wav",
		})
		require.NoError(t, err, c.Verb())

		verb, ok := action.VerbOfActionID(a.ID)
		require.True(t, ok)
		assert.Equal(t, c.Verb(), verb)
	}
	assert.Len(t, seen, 17)
}

func TestSingleFrameReplies(t *testing.T) {
	tests := []struct {
		name    string
		reply   frame.Frame
		wantErr string
	}{
		{"success", frame.New("Response", "Success", "Message", "Redirect successful"), ""},
		{"error with message", frame.New("Response", "Error", "Message", "No such channel"), "No such channel"},
		{"error without message", frame.New("Response", "Error"), "error"},
		{"unexpected shape", frame.New("Event", "Whatever"), "error"},
	}

	cmd := RedirectChannel()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := build(t, cmd, Args{"chToRedirect": "SIP/200-1", "to": "201"})
			out, idx := run(t, cmd, a, tt.reply, frame.New("Response", "Success"))
			require.NotNil(t, out)
			assert.Equal(t, 0, idx, "first frame is terminal")
			if tt.wantErr == "" {
				assert.NoError(t, out.Err)
				return
			}
			require.Error(t, out.Err)
			assert.True(t, amierr.IsCommand(out.Err))
			assert.Equal(t, tt.wantErr, out.Err.Error())
		})
	}
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		cmd   Command
		args  Args
		field string
	}{
		{RedirectChannel(), Args{"to": "201"}, "chToRedirect"},
		{AttendedTransfer(), Args{"chToTransfer": "SIP/1"}, "to"},
		{TransferToVoicemail(), Args{"chToTransfer": "SIP/1"}, "voicemail"},
		{SpySpeak(), Args{"spierId": "SIP/200", "chToSpy": "SIP/201-1"}, "spiedId"},
		{CFSet(), Args{"exten": "214", "activate": true}, "val"},
		{DNDGet(), Args{}, "exten"},
		{PJSIPDetails(), nil, "exten"},
		{RecordCall(), Args{"channel": "SIP/1"}, "filepath"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.Verb(), func(t *testing.T) {
			_, err := tt.cmd.Build(tt.args)
			require.Error(t, err)
			assert.True(t, amierr.IsKind(err, amierr.KindValidation))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestBuildActions(t *testing.T) {
	a := build(t, TransferToVoicemail(), Args{"chToTransfer": "SIP/200-1", "voicemail": 214})
	assert.Equal(t, "Redirect", a.Name)
	assert.Equal(t, "vmu214", a.Fields["Exten"])
	assert.Equal(t, "from-internal", a.Fields["Context"])
	assert.Equal(t, "1", a.Fields["Priority"])

	a = build(t, SpyListen(), Args{"spierId": "SIP/200", "spiedId": "201", "chToSpy": "SIP/201-1"})
	assert.Equal(t, "Originate", a.Name)
	assert.Equal(t, "SIP/201-1,q", a.Fields["Data"])
	assert.Equal(t, "SPY->201", a.Fields["Callerid"])

	a = build(t, DNDSet(), Args{"exten": "214", "activate": "true"})
	assert.Equal(t, "DBPut", a.Name)
	assert.Equal(t, "YES", a.Fields["Val"])

	a = build(t, DNDSet(), Args{"exten": "214", "activate": false})
	assert.Equal(t, "DBDel", a.Name)

	a = build(t, RecordCall(), Args{"channel": "SIP/200-1", "filepath": "/tmp/a.wav"})
	assert.Equal(t, "MixMonitor", a.Name)
	assert.Equal(t, "a", a.Fields["Options"])
}

func TestBuildInvalidArgumentType(t *testing.T) {
	_, err := Hangup().Build(Args{"channel": []int{1, 2}})
	require.Error(t, err)
	assert.True(t, amierr.IsKind(err, amierr.KindValidation))
}

func TestAstVersion(t *testing.T) {
	cmd := AstVersion()
	a := build(t, cmd, nil)
	assert.Equal(t, "CoreSettings", a.Name)

	out, _ := run(t, cmd, a, frame.New("Response", "Success", "AsteriskVersion", "18.20.0"))
	require.NotNil(t, out)
	require.NoError(t, out.Err)
	assert.Equal(t, AsteriskVersion{Version: "18.20.0"}, out.Result)

	out, _ = run(t, cmd, a, frame.New("Response", "Success"))
	assert.Equal(t, AsteriskVersion{Version: "unknown"}, out.Result)
}

func TestExtenStatus(t *testing.T) {
	cmd := ExtenStatus()
	a := build(t, cmd, Args{"exten": "214"})

	out, _ := run(t, cmd, a, frame.New("Response", "Success", "Exten", "214", "Status", "8"))
	require.NoError(t, out.Err)
	assert.Equal(t, ExtensionStatus{Exten: "214", Status: "ringing"}, out.Result)

	out, _ = run(t, cmd, a, frame.New("Response", "Success", "Exten", "999", "Status", "-1"))
	require.Error(t, out.Err)
	assert.Equal(t, "Extension 999 not found", out.Err.Error())

	out, _ = run(t, cmd, a, frame.New("Response", "Error", "Message", "Extension not specified"))
	assert.Equal(t, "Extension not specified", out.Err.Error())

	out, _ = run(t, cmd, a, frame.New("Response", "Success"))
	assert.Equal(t, "error", out.Err.Error())
}

func TestDNDGet(t *testing.T) {
	cmd := DNDGet()
	a := build(t, cmd, Args{"exten": "214"})
	assert.Equal(t, "DBGet", a.Name)
	assert.Equal(t, "DND", a.Fields["Family"])

	t.Run("enabled", func(t *testing.T) {
		out, idx := run(t, cmd, a,
			frame.New("Response", "Success", "Message", "Result will follow"),
			frame.New("Event", "DBGetResponse", "Family", "DND", "Key", "214", "Val", "YES"),
		)
		require.NotNil(t, out)
		assert.Equal(t, 1, idx, "acknowledgement is not terminal")
		assert.Equal(t, DNDStatus{Exten: "214", Enabled: true}, out.Result)
	})

	t.Run("entry not found", func(t *testing.T) {
		out, _ := run(t, cmd, a, frame.New("Response", "Error", "Message", "Database entry not found"))
		require.NoError(t, out.Err)
		assert.Equal(t, DNDStatus{Exten: "214", Enabled: false}, out.Result)
	})

	t.Run("pbx error", func(t *testing.T) {
		out, idx := run(t, cmd, a, frame.New("Response", "Error", "Message", "no such key"))
		require.NotNil(t, out)
		assert.Equal(t, 0, idx)
		require.Error(t, out.Err)
		assert.Equal(t, "no such key", out.Err.Error())
	})
}

func TestCFGet(t *testing.T) {
	cmd := CFGet()
	a := build(t, cmd, Args{"exten": "214"})

	out, _ := run(t, cmd, a,
		frame.New("Response", "Success"),
		frame.New("Event", "DBGetResponse", "Family", "CF", "Key", "214", "Val", "3331234567"),
	)
	assert.Equal(t, CFStatus{Exten: "214", Enabled: true, To: "3331234567"}, out.Result)

	out, _ = run(t, cmd, a, frame.New("Response", "Error", "Message", "Database entry not found"))
	assert.Equal(t, CFStatus{Exten: "214"}, out.Result)
}

func TestListChannels(t *testing.T) {
	cmd := ListChannels()
	a := build(t, cmd, nil)
	assert.Equal(t, "CoreShowChannels", a.Name)

	out, idx := run(t, cmd, a,
		frame.New("Response", "Success", "EventList", "start", "Message", "Channels will follow"),
		frame.New("Event", "CoreShowChannel", "Channel", "SIP/200-1", "ChannelState", "6",
			"CallerIDNum", "200", "ConnectedLineNum", "201", "BridgedChannel", "SIP/201-2"),
		frame.New("Event", "CoreShowChannel", "Channel", "SIP/201-2", "ChannelState", "6", "CallerIDNum", "201"),
		frame.New("Event", "CoreShowChannel", "ChannelState", "0"),
		frame.New("Event", "CoreShowChannelsComplete", "ListItems", "2"),
	)
	require.NotNil(t, out)
	assert.Equal(t, 4, idx)
	require.NoError(t, out.Err)

	list := out.Result.(map[string]ChannelEntry)
	require.Len(t, list, 2)
	assert.Equal(t, ChannelEntry{
		Channel:        "SIP/200-1",
		Status:         "up",
		CallerNum:      "200",
		BridgedNum:     "201",
		BridgedChannel: "SIP/201-2",
	}, list["SIP/200-1"])
	assert.Equal(t, "201", list["SIP/201-2"].CallerNum)
}

func TestListChannelsErrorBeforeComplete(t *testing.T) {
	cmd := ListChannels()
	a := build(t, cmd, nil)

	out, idx := run(t, cmd, a,
		frame.New("Event", "CoreShowChannel", "Channel", "SIP/200-1"),
		frame.New("Response", "Error", "Message", "Permission denied"),
		frame.New("Event", "CoreShowChannelsComplete"),
	)
	require.NotNil(t, out)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "Permission denied", out.Err.Error())
}

func TestListChannelsEmpty(t *testing.T) {
	cmd := ListChannels()
	out, _ := run(t, cmd, build(t, cmd, nil), frame.New("Event", "CoreShowChannelsComplete"))
	require.NoError(t, out.Err)
	assert.Empty(t, out.Result.(map[string]ChannelEntry))
}

func TestListDahdiChannels(t *testing.T) {
	cmd := ListDahdiChannels()
	out, _ := run(t, cmd, build(t, cmd, nil),
		frame.New("Event", "DAHDIShowChannels", "DAHDIChannel", "1", "Alarm", "No Alarm"),
		frame.New("Event", "DAHDIShowChannels", "DAHDIChannel", "2", "Alarm", "OK"),
		frame.New("Event", "DAHDIShowChannels", "DAHDIChannel", "3"),
		frame.New("Event", "DAHDIShowChannelsComplete"),
	)
	require.NoError(t, out.Err)
	assert.Equal(t, map[string]TrunkChannelEntry{
		"1": {Channel: "1", Status: "offline"},
		"2": {Channel: "2", Status: "online"},
	}, out.Result)
}

func TestPJSIPDetails(t *testing.T) {
	cmd := PJSIPDetails()
	a := build(t, cmd, Args{"exten": "214"})
	assert.Equal(t, "PJSIPShowEndpoint", a.Name)
	assert.Equal(t, "214", a.Fields["Endpoint"])

	out, _ := run(t, cmd, a,
		frame.New("Response", "Success", "EventList", "start"),
		frame.New("Event", "EndpointDetail", "ObjectName", "214", "Context", "from-internal"),
		frame.New("Event", "ContactStatusDetail", "Uri", "sip:214@10.0.0.5:5062", "UserAgent", "Yealink T46"),
		frame.New("Event", "IdentifyDetail", "Endpoint", "214", "EndpointName", "Alice"),
		frame.New("Event", "EndpointDetailComplete"),
	)
	require.NotNil(t, out)
	require.NoError(t, out.Err)
	assert.Equal(t, EndpointEntry{
		Exten:     "214",
		Name:      "Alice",
		Context:   "from-internal",
		IP:        "10.0.0.5",
		Port:      "5062",
		UserAgent: "Yealink T46",
		ChanType:  "pjsip",
	}, out.Result)
}

func TestPJSIPDetailsViaAddress(t *testing.T) {
	cmd := PJSIPDetails()
	out, _ := run(t, cmd, build(t, cmd, Args{"exten": "214"}),
		frame.New("Event", "ContactStatusDetail", "ViaAddress", "192.168.1.20:5060", "Uri", "sip:214@10.0.0.5:5062"),
		frame.New("Event", "EndpointDetailComplete"),
	)
	entry := out.Result.(EndpointEntry)
	assert.Equal(t, "192.168.1.20", entry.IP)
	assert.Equal(t, "5060", entry.Port)
}

func TestPJSIPDetailsError(t *testing.T) {
	cmd := PJSIPDetails()
	out, idx := run(t, cmd, build(t, cmd, Args{"exten": "999"}),
		frame.New("Response", "Error", "Message", "Unable to retrieve endpoint 999"),
		frame.New("Event", "EndpointDetailComplete"),
	)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "Unable to retrieve endpoint 999", out.Err.Error())
}

func TestStatusAdapters(t *testing.T) {
	assert.Equal(t, "ringing", ChannelState("5"))
	assert.Equal(t, "prering", ChannelState("9"))
	assert.Equal(t, StatusUnknown, ChannelState("42"))

	assert.Equal(t, "online", ExtensionState("0"))
	assert.Equal(t, "onhold", ExtensionState("16"))
	assert.Equal(t, StatusUnknown, ExtensionState("-1"))

	assert.Equal(t, "online", TrunkStatus("ok"))
	assert.Equal(t, "offline", TrunkStatus("Red Alarm"))
}

func TestBuildRejectsLineBreaks(t *testing.T) {
	tests := []struct {
		cmd  Command
		args Args
	}{
		{RedirectChannel(), Args{"chToRedirect": "SIP/200-1", "to": "201\r\n\r\nAction: Hangup\r\nChannel: SIP/999-9"}},
		{RecordCall(), Args{"channel": "SIP/200-1", "filepath": "/tmp/a.wav\nAction: Hangup"}},
		{DNDGet(), Args{"exten": "214\r\n"}},
		{SpyListen(), Args{"spierId": "SIP/200", "spiedId": "201\n", "chToSpy": "SIP/201-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.Verb(), func(t *testing.T) {
			_, err := tt.cmd.Build(tt.args)
			require.Error(t, err)
			assert.True(t, amierr.IsKind(err, amierr.KindValidation))
			assert.ErrorIs(t, err, amierr.ErrInvalidValue)
		})
	}
}
