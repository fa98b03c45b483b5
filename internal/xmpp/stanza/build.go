package stanza

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/ping"
	"mellium.im/xmpp/roster"
	"mellium.im/xmpp/stanza"
)

// Namespaces that have no constant in the xmpp module
const (
	NSChatStates   = "http://jabber.org/protocol/chatstates"
	NSLastActivity = "jabber:iq:last"
	NSLegacyDelay  = "jabber:x:delay"
)

// RosterRequestID is the id used for the initial roster fetch
const RosterRequestID = "roster"

// Availability is the content of an outbound presence
type Availability struct {
	Show        string
	Status      string
	Priority    int
	IdleSeconds int
}

func parseTo(to string) (jid.JID, error) {
	j, err := jid.Parse(to)
	if err != nil {
		return jid.JID{}, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	return j, nil
}

func textElement(local, text string) xml.TokenReader {
	return xmlstream.Wrap(
		xmlstream.Token(xml.CharData(text)),
		xml.StartElement{Name: xml.Name{Local: local}},
	)
}

func emptyElement(space, local string, attr ...xml.Attr) xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: space, Local: local}, Attr: attr})
}

// Message builds a chat or groupchat message with an optional chat state child
func Message(to string, kind MessageKind, body, state string) (xml.TokenReader, error) {
	j, err := parseTo(to)
	if err != nil {
		return nil, err
	}
	if kind != ChatMessage && kind != GroupChatMessage {
		return nil, fmt.Errorf("cannot build %s message", kind)
	}

	var payload []xml.TokenReader
	if body != "" {
		payload = append(payload, textElement("body", body))
	}
	if state != "" {
		payload = append(payload, emptyElement(NSChatStates, state))
	}

	return stanza.Message{To: j, Type: kind.wire()}.Wrap(xmlstream.MultiReader(payload...)), nil
}

// ChatState builds a bodyless chat message carrying only a chat state
func ChatState(to, state string) (xml.TokenReader, error) {
	return Message(to, ChatMessage, "", state)
}

// Presence builds an available presence; to may be empty for a broadcast
func Presence(to string, a Availability) (xml.TokenReader, error) {
	p := stanza.Presence{}
	if to != "" {
		j, err := parseTo(to)
		if err != nil {
			return nil, err
		}
		p.To = j
	}

	var payload []xml.TokenReader
	if a.Show != "" {
		payload = append(payload, textElement("show", a.Show))
	}
	if a.Status != "" {
		payload = append(payload, textElement("status", a.Status))
	}
	if a.Priority != 0 {
		payload = append(payload, textElement("priority", strconv.Itoa(a.Priority)))
	}
	if a.IdleSeconds > 0 {
		payload = append(payload, emptyElement(NSLastActivity, "query",
			xml.Attr{Name: xml.Name{Local: "seconds"}, Value: strconv.Itoa(a.IdleSeconds)}))
	}

	return p.Wrap(xmlstream.MultiReader(payload...)), nil
}

// RoomJoin builds the presence that enters a room under nick
func RoomJoin(room, nick string) (xml.TokenReader, error) {
	j, err := parseTo(room + "/" + nick)
	if err != nil {
		return nil, err
	}
	return stanza.Presence{To: j}.Wrap(emptyElement(muc.NS, "x")), nil
}

// RoomNickChange builds the presence that requests a new nick in a room
func RoomNickChange(room, nick string) (xml.TokenReader, error) {
	j, err := parseTo(room + "/" + nick)
	if err != nil {
		return nil, err
	}
	return stanza.Presence{To: j}.Wrap(nil), nil
}

// RoomLeave builds the unavailable presence that exits a room
func RoomLeave(room, nick string) (xml.TokenReader, error) {
	j, err := parseTo(room + "/" + nick)
	if err != nil {
		return nil, err
	}
	return stanza.Presence{To: j, Type: stanza.UnavailablePresence}.Wrap(nil), nil
}

// Subscription builds a subscribe, subscribed or unsubscribed presence
func Subscription(to string, kind PresenceKind) (xml.TokenReader, error) {
	switch kind {
	case SubscribePresence, SubscribedPresence, UnsubscribePresence, UnsubscribedPresence:
	default:
		return nil, fmt.Errorf("%s is not a subscription presence", kind)
	}
	j, err := parseTo(to)
	if err != nil {
		return nil, err
	}
	return stanza.Presence{To: j.Bare(), Type: kind.wire()}.Wrap(nil), nil
}

func iq(typ stanza.IQType, id, to, from string, payload xml.TokenReader) xml.TokenReader {
	var attr []xml.Attr
	if id != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: id})
	}
	if to != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "to"}, Value: to})
	}
	if from != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "from"}, Value: from})
	}
	attr = append(attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: string(typ)})
	return xmlstream.Wrap(payload, xml.StartElement{Name: xml.Name{Local: "iq"}, Attr: attr})
}

// RosterRequest builds the initial roster get
func RosterRequest() xml.TokenReader {
	return iq(stanza.GetIQ, RosterRequestID, "", "", emptyElement(roster.NS, "query"))
}

// Ping builds a server ping with the given id
func Ping(id string) xml.TokenReader {
	return iq(stanza.GetIQ, id, "", "", emptyElement(ping.NS, "ping"))
}

// Pong answers a ping, swapping the addresses and keeping the request id
func Pong(to, from, id string) xml.TokenReader {
	return iq(stanza.ResultIQ, id, to, from, nil)
}

// Result builds an empty iq result
func Result(to, id string) xml.TokenReader {
	return iq(stanza.ResultIQ, id, to, "", nil)
}

// ResultPayload builds an iq result carrying payload
func ResultPayload(to, id string, payload xml.TokenReader) xml.TokenReader {
	return iq(stanza.ResultIQ, id, to, "", payload)
}

// ServiceUnavailable answers a get or set we have no handler for
func ServiceUnavailable(to, id string) xml.TokenReader {
	e := stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable}
	return iq(stanza.ErrorIQ, id, to, "", e.TokenReader())
}
