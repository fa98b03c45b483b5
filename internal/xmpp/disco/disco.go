// Package disco describes this client to peers that query it with service
// discovery.
package disco

import (
	"encoding/xml"
	"sort"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/disco"
	"mellium.im/xmpp/disco/info"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/ping"

	"github.com/meszmate/jabber/internal/xmpp/stanza"
)

// Feature is a protocol namespace we advertise
type Feature string

// Supported features
const (
	FeatureDisco      Feature = disco.NSInfo
	FeatureMUC        Feature = muc.NS
	FeatureChatStates Feature = stanza.NSChatStates
	FeaturePing       Feature = ping.NS
)

// Info is the answer to a disco#info query
type Info struct {
	Identity info.Identity
	Features []Feature
}

// ClientInfo returns the info of a console client named name. Chat states
// are advertised only when enabled.
func ClientInfo(name string, chatStates bool) Info {
	features := []Feature{FeatureDisco, FeatureMUC, FeaturePing}
	if chatStates {
		features = append(features, FeatureChatStates)
	}
	sort.Slice(features, func(i, j int) bool { return features[i] < features[j] })

	return Info{
		Identity: info.Identity{Category: "client", Type: "console", Name: name},
		Features: features,
	}
}

// Has reports whether f is advertised
func (i Info) Has(f Feature) bool {
	for _, feature := range i.Features {
		if feature == f {
			return true
		}
	}
	return false
}

// Query builds the query element of a result, echoing the requested node
func (i Info) Query(node string) xml.TokenReader {
	readers := []xml.TokenReader{i.Identity.TokenReader()}
	for _, f := range i.Features {
		readers = append(readers, info.Feature{Var: string(f)}.TokenReader())
	}

	start := xml.StartElement{Name: xml.Name{Space: disco.NSInfo, Local: "query"}}
	if node != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "node"}, Value: node})
	}
	return xmlstream.Wrap(xmlstream.MultiReader(readers...), start)
}

// InfoRequest reports whether an iq asks for our disco#info, and for which
// node
func InfoRequest(el *stanza.Element) (node string, ok bool) {
	q := el.ChildNS(disco.NSInfo, "query")
	if q == nil {
		return "", false
	}
	return q.Attr("node"), true
}
