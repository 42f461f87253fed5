package extension

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/microcosm-cc/bluemonday"

	"github.com/personium/personium-engine/internal/providers/sandbox"
)

// Html is the built-in Ext_Html extension: HTML sanitizing for scripts
// that echo user content, and CSS selector queries.
type Html struct {
	ugc    *bluemonday.Policy
	strict *bluemonday.Policy
}

// MaxMatches bounds the results of one query.
const MaxMatches = 100

// NewHtml creates the extension.
func NewHtml() *Html {
	return &Html{ugc: bluemonday.UGCPolicy(), strict: bluemonday.StrictPolicy()}
}

func (h *Html) Name() string { return "Ext_Html" }

func (h *Html) QualifiedName() string { return sandbox.ExtensionWrapperPrefix + h.Name() }

func (h *Html) Methods() map[string]sandbox.Method {
	return map[string]sandbox.Method{
		// sanitize keeps safe formatting markup.
		"sanitize": func(c sandbox.Call) (any, error) {
			return h.ugc.Sanitize(c.String(0, "")), nil
		},
		// strip removes all markup.
		"strip": func(c sandbox.Call) (any, error) {
			return h.strict.Sanitize(c.String(0, "")), nil
		},
		// select(html, css, limit) returns the trimmed text of matches.
		"select": func(c sandbox.Call) (any, error) {
			sel, err := query(c.String(0, ""), c.String(1, ""))
			if err != nil {
				return nil, err
			}
			n := limit(c, 2)
			out := []string{}
			sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
				out = append(out, strings.TrimSpace(s.Text()))
				return len(out) < n
			})
			return out, nil
		},
		// attr(html, css, name) returns the attribute of each match that has it.
		"attr": func(c sandbox.Call) (any, error) {
			sel, err := query(c.String(0, ""), c.String(1, ""))
			if err != nil {
				return nil, err
			}
			name := c.String(2, "")
			out := []string{}
			sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if v, ok := s.Attr(name); ok {
					out = append(out, v)
				}
				return len(out) < MaxMatches
			})
			return out, nil
		},
	}
}

func query(doc, css string) (*goquery.Selection, error) {
	if _, err := cascadia.Compile(css); err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", css, err)
	}
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return d.Find(css), nil
}

func limit(c sandbox.Call, i int) int {
	n := int(c.Int(i, MaxMatches))
	if n <= 0 || n > MaxMatches {
		return MaxMatches
	}
	return n
}
