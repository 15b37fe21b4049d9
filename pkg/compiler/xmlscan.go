package compiler

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/osm"
)

var errNoRoot = errors.New("no root element found")

var _ osm.Scanner = &xmlScanner{}

// xmlScanner steps through an OSM XML document one primitive at a time.
// It reads the same element set as osmxml.Scanner, but a document without
// a root element is an error, and so is a node missing lat or lon.
type xmlScanner struct {
	decoder *xml.Decoder
	root    bool
	next    osm.Object
	err     error
	closed  bool
}

func newXMLScanner(r io.Reader) *xmlScanner {
	return &xmlScanner{decoder: xml.NewDecoder(r)}
}

func (s *xmlScanner) Scan() bool {
	if s.err != nil || s.closed {
		return false
	}

	for {
		t, err := s.decoder.Token()
		if err != nil {
			if err == io.EOF && !s.root {
				err = errNoRoot
			}
			s.err = err
			return false
		}

		se, ok := t.(xml.StartElement)
		if !ok {
			continue
		}
		s.root = true

		switch se.Name.Local {
		case "node":
			if err := requireAttrs(se, "lat", "lon"); err != nil {
				s.err = err
				return false
			}
			n := &osm.Node{}
			err = s.decoder.DecodeElement(n, &se)
			s.next = n
		case "way":
			w := &osm.Way{}
			err = s.decoder.DecodeElement(w, &se)
			s.next = w
		case "relation":
			r := &osm.Relation{}
			err = s.decoder.DecodeElement(r, &se)
			s.next = r
		default:
			continue
		}

		if err != nil {
			s.err = err
			return false
		}
		return true
	}
}

func (s *xmlScanner) Object() osm.Object {
	return s.next
}

// Err returns the first error other than io.EOF
func (s *xmlScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

func (s *xmlScanner) Close() error {
	s.closed = true
	return nil
}

// requireAttrs fails when any of names is absent from the element. A
// missing coordinate would otherwise decode as 0.
func requireAttrs(se xml.StartElement, names ...string) error {
	for _, name := range names {
		found := false
		for _, a := range se.Attr {
			if a.Name.Local == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s %s: missing %s attribute", se.Name.Local, attr(se, "id"), name)
		}
	}
	return nil
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
