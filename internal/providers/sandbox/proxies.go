package sandbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

// Qualified names of the capability proxies.
const (
	InputStreamType = WrapperPrefix + "InputStream"
	DocumentType    = WrapperPrefix + "Document"
	RequestBodyType = AdapterPrefix + "RequestBody"
)

// MaxReadSize bounds a single InputStream read.
const MaxReadSize = 64 << 10

// GuardedTypes lists host types that scripts can receive but never create.
var GuardedTypes = []string{InputStreamType, DocumentType, RequestBodyType}

func guarded(name string) bool {
	for _, g := range GuardedTypes {
		if g == name {
			return true
		}
	}
	return false
}

func simpleName(qualified string) string {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// ErrStreamClosed is returned when reading a closed stream.
var ErrStreamClosed = errors.New("stream closed")

// InputStream is the read-only proxy for host byte streams.
type InputStream struct {
	mu     sync.Mutex
	r      io.Reader
	closed bool
}

// NewInputStream wraps r. Closing the proxy closes r when it is an io.Closer.
func NewInputStream(r io.Reader) *InputStream {
	return &InputStream{r: r}
}

func (s *InputStream) QualifiedName() string { return InputStreamType }

// Read implements io.Reader so the host can drain the stream directly.
func (s *InputStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStreamClosed
	}
	return s.r.Read(p)
}

// Close closes the underlying reader once.
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *InputStream) Methods() map[string]Method {
	return map[string]Method{
		// read(n) returns up to n bytes, at most MaxReadSize, as an ArrayBuffer,
		// or null at EOF.
		"read": func(c Call) (any, error) {
			n := c.Int(0, 1024)
			if n <= 0 {
				n = 1024
			}
			if n > MaxReadSize {
				n = MaxReadSize
			}
			buf := make([]byte, n)
			got, err := io.ReadFull(s, buf)
			if got == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
				return nil, nil
			}
			if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
				return nil, err
			}
			vm := c.Boundary.vm
			return vm.ToValue(vm.NewArrayBuffer(buf[:got])), nil
		},
		// readAll(encoding) decodes the rest of the stream as text.
		"readAll": func(c Call) (any, error) {
			return readText(s, c.String(0, "utf-8"))
		},
		"close": func(Call) (any, error) {
			return nil, s.Close()
		},
	}
}

// DocumentProxy exposes a host document by reference instead of as text.
type DocumentProxy struct {
	doc Document
}

// NewDocumentProxy wraps doc.
func NewDocumentProxy(doc Document) *DocumentProxy {
	if doc == nil {
		doc = Document{}
	}
	return &DocumentProxy{doc: doc}
}

// ParseDocument builds a proxy from JSON object text.
func ParseDocument(text string) (*DocumentProxy, error) {
	var doc Document
	if err := sonic.UnmarshalString(text, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return NewDocumentProxy(doc), nil
}

// Document returns the wrapped document.
func (d *DocumentProxy) Document() Document { return d.doc }

func (d *DocumentProxy) QualifiedName() string { return DocumentType }

func (d *DocumentProxy) Methods() map[string]Method {
	return map[string]Method{
		"get": func(c Call) (any, error) {
			return documentValue(d.doc[c.String(0, "")]), nil
		},
		"has": func(c Call) (any, error) {
			_, ok := d.doc[c.String(0, "")]
			return ok, nil
		},
		"keys": func(Call) (any, error) {
			keys := make([]string, 0, len(d.doc))
			for k := range d.doc {
				keys = append(keys, k)
			}
			return keys, nil
		},
		"size": func(Call) (any, error) {
			return len(d.doc), nil
		},
		"toJSONString": func(Call) (any, error) {
			return sonic.MarshalString(d.doc)
		},
	}
}

// documentValue maps a decoded JSON value onto a wrap rule: nested objects
// stay proxies so they can be navigated.
func documentValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return NewDocumentProxy(Document(x))
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = documentValue(item)
		}
		return out
	default:
		return x
	}
}

// RequestBody is the proxy for the raw inbound request body. It is single
// pass: whichever reader is used first consumes the body.
type RequestBody struct {
	r      *bufio.Reader
	stream *InputStream
}

// NewRequestBody wraps the inbound body.
func NewRequestBody(body io.Reader) *RequestBody {
	if body == nil {
		body = strings.NewReader("")
	}
	br := bufio.NewReader(body)
	return &RequestBody{r: br, stream: NewInputStream(br)}
}

func (b *RequestBody) QualifiedName() string { return RequestBodyType }

// Read implements io.Reader.
func (b *RequestBody) Read(p []byte) (int, error) { return b.stream.Read(p) }

func (b *RequestBody) Methods() map[string]Method {
	return map[string]Method{
		"stream": func(Call) (any, error) {
			return b.stream, nil
		},
		"readAll": func(c Call) (any, error) {
			return readText(b.stream, c.String(0, "utf-8"))
		},
		// readLine returns the next line without its terminator, or null
		// at end of input.
		"readLine": func(c Call) (any, error) {
			line, err := b.r.ReadString('\n')
			if err != nil && err != io.EOF {
				return nil, err
			}
			if line == "" && err == io.EOF {
				return nil, nil
			}
			line = strings.TrimRight(line, "\r\n")
			return decodeString(line, c.String(0, "utf-8"))
		},
	}
}

