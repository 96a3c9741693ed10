package command

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/astproxy/pkg/ami/action"
	amierr "github.com/arzzra/astproxy/pkg/ami/errors"
	"github.com/arzzra/astproxy/pkg/ami/frame"
)

// pjsipDetails собирает одну карточку устройства из событий
// EndpointDetail, IdentifyDetail и ContactStatusDetail
type pjsipDetails struct{}

// PJSIPDetails возвращает сводную карточку PJSIP устройства
func PJSIPDetails() Command {
	return &pjsipDetails{}
}

func (c *pjsipDetails) Verb() string { return "pjsipDetails" }

func (c *pjsipDetails) Build(args Args) (action.Action, error) {
	var a extenArgs
	if err := decodeArgs(c.Verb(), args, &a); err != nil {
		return action.Action{}, err
	}
	if err := need(c.Verb(), "exten", a.Exten); err != nil {
		return action.Action{}, err
	}
	return action.PJSIPShowEndpoint(c.Verb(), a.Exten)
}

func (c *pjsipDetails) Accept(f frame.Frame, acc any) (any, *Outcome) {
	entry, _ := acc.(*EndpointEntry)
	if entry == nil {
		entry = &EndpointEntry{ChanType: "pjsip"}
	}

	if f.IsError() {
		return nil, Fail(reply(c.Verb(), f))
	}

	switch {
	case strings.EqualFold(f.Event(), "EndpointDetail"):
		entry.Context = f.Get("Context")
	case strings.EqualFold(f.Event(), "IdentifyDetail"):
		entry.Exten = f.Get("Endpoint")
		entry.Name = f.Get("EndpointName")
	case strings.EqualFold(f.Event(), "ContactStatusDetail"):
		ip, port, err := contactAddress(f)
		if err != nil {
			return nil, Fail(amierr.Protocol(c.Verb(), f.ActionID(), err))
		}
		entry.IP = ip
		entry.Port = port
		entry.UserAgent = f.Get("UserAgent")
	case strings.EqualFold(f.Event(), "EndpointDetailComplete"):
		return nil, Done(*entry)
	}
	return entry, nil
}

// contactAddress извлекает адрес контакта: ViaAddress приоритетнее Uri
func contactAddress(f frame.Frame) (ip, port string, err error) {
	if via := f.Get("ViaAddress"); via != "" {
		host, p, err := net.SplitHostPort(via)
		if err != nil {
			return via, "", nil
		}
		return host, p, nil
	}

	raw := f.Get("Uri")
	if raw == "" {
		return "", "", nil
	}

	var uri sip.Uri
	if err := sip.ParseUri(raw, &uri); err != nil {
		return "", "", fmt.Errorf("parse contact uri %q: %w", raw, err)
	}
	if uri.Port > 0 {
		port = strconv.Itoa(uri.Port)
	}
	return uri.Host, port, nil
}
