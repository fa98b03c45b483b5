// Package jidutil holds the string-level JID helpers used for room and contact
// bookkeeping.
package jidutil

import (
	"errors"
	"fmt"
	"strings"

	"mellium.im/xmpp/jid"
)

// ErrMalformed is returned when a JID cannot be split or parsed.
var ErrMalformed = errors.New("malformed jid")

// ParseRoomJID splits a room/nick JID on the first slash
func ParseRoomJID(full string) (room, nick string, err error) {
	room, nick, found := strings.Cut(full, "/")
	if !found || room == "" || nick == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformed, full)
	}
	return room, nick, nil
}

// Bare returns the JID without its resource
func Bare(j string) string {
	if i := strings.IndexByte(j, '/'); i >= 0 {
		return j[:i]
	}
	return j
}

// Resource returns everything after the first slash, or an empty string
func Resource(j string) string {
	if i := strings.IndexByte(j, '/'); i >= 0 {
		return j[i+1:]
	}
	return ""
}

// Compose joins a room and a nick into a full room JID
func Compose(room, nick string) string {
	return room + "/" + nick
}

// Localpart returns the part before the @, or the whole bare JID if there is none
func Localpart(j string) string {
	bare := Bare(j)
	if i := strings.IndexByte(bare, '@'); i >= 0 {
		return bare[:i]
	}
	return bare
}

// Validate checks the address against the XMPP address rules
func Validate(j string) error {
	if _, err := jid.Parse(j); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Domain returns the domainpart of a valid JID
func Domain(j string) (string, error) {
	parsed, err := jid.Parse(j)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return parsed.Domainpart(), nil
}
