// Package stanza decodes inbound stanzas into a small element tree and builds
// the outbound message, presence and iq stanzas the client sends.
package stanza

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Element is a decoded XML element with its attributes, children and text
type Element struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*Element
	Text     string
}

// Attr returns the value of the first attribute with the given local name
func (e *Element) Attr(local string) string {
	if e == nil {
		return ""
	}
	for _, a := range e.Attrs {
		if a.Name.Local == local && a.Name.Space != "xmlns" {
			return a.Value
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present at all
func (e *Element) HasAttr(local string) bool {
	if e == nil {
		return false
	}
	for _, a := range e.Attrs {
		if a.Name.Local == local && a.Name.Space != "xmlns" {
			return true
		}
	}
	return false
}

// Child returns the first child with the given local name in any namespace
func (e *Element) Child(local string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

// ChildNS returns the first child matching both namespace and local name
func (e *Element) ChildNS(space, local string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Name.Space == space && c.Name.Local == local {
			return c
		}
	}
	return nil
}

// ChildrenNS returns every child matching namespace and local name
func (e *Element) ChildrenNS(space, local string) []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	for _, c := range e.Children {
		if c.Name.Space == space && c.Name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the character data of the named child, or "" if absent
func (e *Element) ChildText(local string) string {
	if c := e.Child(local); c != nil {
		return c.Text
	}
	return ""
}

// Decode reads the rest of the element opened by start from r.
// Unknown children are kept; a stream that ends early returns the partial
// element together with io.ErrUnexpectedEOF.
func Decode(r xml.TokenReader, start xml.StartElement) (*Element, error) {
	e := &Element{Name: start.Name, Attrs: append([]xml.Attr(nil), start.Attr...)}
	var text strings.Builder
	for {
		tok, err := r.Token()
		if tok == nil && err != nil {
			e.Text = text.String()
			if errors.Is(err, io.EOF) {
				return e, io.ErrUnexpectedEOF
			}
			return e, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := Decode(r, t)
			e.Children = append(e.Children, child)
			if err != nil {
				e.Text = text.String()
				return e, err
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			e.Text = text.String()
			return e, nil
		}

		if err != nil && !errors.Is(err, io.EOF) {
			e.Text = text.String()
			return e, err
		}
	}
}

// Parse decodes the first element found in b
func Parse(b []byte) (*Element, error) {
	d := xml.NewDecoder(bytes.NewReader(b))
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("no element found: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return Decode(d, start)
		}
	}
}

// From returns the from attribute
func (e *Element) From() string { return e.Attr("from") }

// To returns the to attribute
func (e *Element) To() string { return e.Attr("to") }

// ID returns the id attribute
func (e *Element) ID() string { return e.Attr("id") }

// Type returns the raw type attribute
func (e *Element) Type() string { return e.Attr("type") }

func (e *Element) String() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("<%s from=%q type=%q id=%q>", e.Name.Local, e.From(), e.Type(), e.ID())
}
