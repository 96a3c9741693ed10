package command

import (
	"strings"

	"github.com/arzzra/astproxy/pkg/ami/action"
	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// listing многокадровая выборка: записи копятся в словаре по ключу
// до события-завершителя. Ошибка до завершителя прерывает выборку сразу.
type listing[E any] struct {
	verb     string
	action   func(verb string) action.Action
	entry    string // событие с одной записью
	complete string // событие-завершитель
	parse    func(f frame.Frame) (key string, e E, ok bool, err error)
}

func (c *listing[E]) Verb() string { return c.verb }

func (c *listing[E]) Build(_ Args) (action.Action, error) {
	return c.action(c.verb), nil
}

func (c *listing[E]) Accept(f frame.Frame, acc any) (any, *Outcome) {
	list, _ := acc.(map[string]E)
	if list == nil {
		list = make(map[string]E)
	}

	switch {
	case f.IsError():
		return nil, Fail(reply(c.verb, f))
	case f.IsResponse():
		// EventList: start
		return list, nil
	case strings.EqualFold(f.Event(), c.complete):
		return nil, Done(list)
	case strings.EqualFold(f.Event(), c.entry):
		key, e, ok, err := c.parse(f)
		if err != nil {
			return nil, Fail(amierr.Protocol(c.verb, f.ActionID(), err))
		}
		if ok {
			list[key] = e
		}
	}
	return list, nil
}

type coreShowChannel struct {
	Channel           string `mapstructure:"channel"`
	UniqueID          string `mapstructure:"uniqueid"`
	ChannelState      string `mapstructure:"channelstate"`
	Duration          string `mapstructure:"duration"`
	CallerIDNum       string `mapstructure:"calleridnum"`
	CallerIDName      string `mapstructure:"calleridname"`
	ConnectedLineNum  string `mapstructure:"connectedlinenum"`
	ConnectedLineName string `mapstructure:"connectedlinename"`
	BridgedChannel    string `mapstructure:"bridgedchannel"`
}

// ListChannels возвращает активные каналы, map[channel]ChannelEntry
func ListChannels() Command {
	return &listing[ChannelEntry]{
		verb:     "listChannels",
		action:   action.CoreShowChannels,
		entry:    "CoreShowChannel",
		complete: "CoreShowChannelsComplete",
		parse: func(f frame.Frame) (string, ChannelEntry, bool, error) {
			var ch coreShowChannel
			if err := decodeFrame(f, &ch); err != nil {
				return "", ChannelEntry{}, false, err
			}
			if ch.Channel == "" {
				return "", ChannelEntry{}, false, nil
			}
			return ch.Channel, ChannelEntry{
				Channel:        ch.Channel,
				UniqueID:       ch.UniqueID,
				Status:         ChannelState(ch.ChannelState),
				Duration:       ch.Duration,
				CallerNum:      ch.CallerIDNum,
				CallerName:     ch.CallerIDName,
				BridgedNum:     ch.ConnectedLineNum,
				BridgedName:    ch.ConnectedLineName,
				BridgedChannel: ch.BridgedChannel,
			}, true, nil
		},
	}
}

// ListDahdiChannels возвращает каналы DAHDI транков, map[dahdichannel]TrunkChannelEntry
func ListDahdiChannels() Command {
	return &listing[TrunkChannelEntry]{
		verb:     "listDahdiChannels",
		action:   action.DAHDIShowChannels,
		entry:    "DAHDIShowChannels",
		complete: "DAHDIShowChannelsComplete",
		parse: func(f frame.Frame) (string, TrunkChannelEntry, bool, error) {
			ch, alarm := f.Get("DAHDIChannel"), f.Get("Alarm")
			if ch == "" || alarm == "" {
				return "", TrunkChannelEntry{}, false, nil
			}
			return ch, TrunkChannelEntry{Channel: ch, Status: TrunkStatus(alarm)}, true, nil
		},
	}
}
