package stanza

import (
	"mellium.im/xmpp/stanza"
)

// MessageKind is the decoded type of a message stanza
type MessageKind int

const (
	UnrecognizedMessage MessageKind = iota
	ChatMessage
	GroupChatMessage
	ErrorMessage
)

// MessageKindOf maps the type attribute of a message.
// Absent and unsupported types (normal, headline) are unrecognized.
func MessageKindOf(e *Element) MessageKind {
	switch stanza.MessageType(e.Type()) {
	case stanza.ChatMessage:
		return ChatMessage
	case stanza.GroupChatMessage:
		return GroupChatMessage
	case stanza.ErrorMessage:
		return ErrorMessage
	default:
		return UnrecognizedMessage
	}
}

func (k MessageKind) wire() stanza.MessageType {
	switch k {
	case ChatMessage:
		return stanza.ChatMessage
	case GroupChatMessage:
		return stanza.GroupChatMessage
	case ErrorMessage:
		return stanza.ErrorMessage
	default:
		return stanza.NormalMessage
	}
}

func (k MessageKind) String() string {
	if k == UnrecognizedMessage {
		return "unrecognized"
	}
	return string(k.wire())
}

// PresenceKind is the decoded type of a presence stanza
type PresenceKind int

const (
	UnrecognizedPresence PresenceKind = iota
	AvailablePresence
	UnavailablePresence
	SubscribePresence
	SubscribedPresence
	UnsubscribePresence
	UnsubscribedPresence
	ProbePresence
	ErrorPresence
)

var presenceKinds = map[stanza.PresenceType]PresenceKind{
	stanza.AvailablePresence:    AvailablePresence,
	stanza.UnavailablePresence:  UnavailablePresence,
	stanza.SubscribePresence:    SubscribePresence,
	stanza.SubscribedPresence:   SubscribedPresence,
	stanza.UnsubscribePresence:  UnsubscribePresence,
	stanza.UnsubscribedPresence: UnsubscribedPresence,
	stanza.ProbePresence:        ProbePresence,
	stanza.ErrorPresence:        ErrorPresence,
}

// PresenceKindOf maps the type attribute of a presence; no type means available
func PresenceKindOf(e *Element) PresenceKind {
	if k, ok := presenceKinds[stanza.PresenceType(e.Type())]; ok {
		return k
	}
	return UnrecognizedPresence
}

func (k PresenceKind) wire() stanza.PresenceType {
	for t, kind := range presenceKinds {
		if kind == k {
			return t
		}
	}
	return stanza.AvailablePresence
}

func (k PresenceKind) String() string {
	switch k {
	case UnrecognizedPresence:
		return "unrecognized"
	case AvailablePresence:
		return "available"
	}
	return string(k.wire())
}

// IQKind is the decoded type of an iq stanza
type IQKind int

const (
	UnrecognizedIQ IQKind = iota
	GetIQ
	SetIQ
	ResultIQ
	ErrorIQ
)

// IQKindOf maps the type attribute of an iq
func IQKindOf(e *Element) IQKind {
	switch stanza.IQType(e.Type()) {
	case stanza.GetIQ:
		return GetIQ
	case stanza.SetIQ:
		return SetIQ
	case stanza.ResultIQ:
		return ResultIQ
	case stanza.ErrorIQ:
		return ErrorIQ
	default:
		return UnrecognizedIQ
	}
}

func (k IQKind) String() string {
	switch k {
	case GetIQ:
		return string(stanza.GetIQ)
	case SetIQ:
		return string(stanza.SetIQ)
	case ResultIQ:
		return string(stanza.ResultIQ)
	case ErrorIQ:
		return string(stanza.ErrorIQ)
	default:
		return "unrecognized"
	}
}
