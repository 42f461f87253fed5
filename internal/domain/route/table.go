package route

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/goccy/go-yaml"
)

// Table is a parsed routing document: the service subject plus a resolver
// populated with the document's paths.
type Table struct {
	subject  string
	resolver Resolver
}

// Subject returns the service subject named by the routing document.
func (t *Table) Subject() string { return t.subject }

// Resolve delegates to the underlying resolver.
func (t *Table) Resolve(path string) (string, bool) { return t.resolver.Resolve(path) }

// Entry is one path declaration of a routing document.
type Entry struct {
	Name string `xml:"name,attr" yaml:"name"`
	Src  string `xml:"src,attr" yaml:"src"`
}

type document struct {
	XMLName  xml.Name `xml:"service" yaml:"-"`
	Language string   `xml:"language,attr" yaml:"language"`
	Subject  string   `xml:"subject,attr" yaml:"subject"`
	Paths    []Entry  `xml:"path" yaml:"paths"`
}

// NewResolver returns the resolver for a configured strategy name.
func NewResolver(strategy string) (Resolver, error) {
	switch strategy {
	case "", "template":
		return NewTemplate(), nil
	case "exact":
		return NewExact(), nil
	default:
		return nil, fmt.Errorf("unknown route strategy %q", strategy)
	}
}

// Parse reads a routing document into resolver. XML documents start with
// '<'; anything else is read as YAML.
func Parse(data []byte, resolver Resolver) (*Table, error) {
	var doc document
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty routing document")
	}

	if trimmed[0] == '<' {
		if err := xml.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse routing xml: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse routing yaml: %w", err)
		}
	}

	for _, p := range doc.Paths {
		if err := resolver.Register(p.Name, p.Src); err != nil {
			return nil, err
		}
	}
	return &Table{subject: doc.Subject, resolver: resolver}, nil
}
