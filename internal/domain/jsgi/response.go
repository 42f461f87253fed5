package jsgi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"

	"github.com/personium/personium-engine/internal/providers/sandbox"
)

// Validation failures. Each message is shown to the caller of the service.
var (
	ErrNotObject          = errors.New("response is not an object.")
	ErrStatusInvalid      = errors.New("response status illegal type.")
	ErrHeadersInvalid     = errors.New("not headers")
	ErrHeaderKeyInvalid   = errors.New("header key format error")
	ErrHeaderValueInvalid = errors.New("header value format error")
	ErrContentTypeInvalid = errors.New("Response header parsing media type.")
	ErrCharsetInvalid     = errors.New("response charset illegal type.")
	ErrBodyNotIterable    = errors.New("response body undefined forEach.")
	ErrBodyElementInvalid = errors.New("response body illegal type.")
)

// ChunkSize is the size of the pieces stream elements are copied in.
const ChunkSize = 1024

// DefaultCharset governs text encoding when Content-Type names none.
const DefaultCharset = "utf-8"

var statusPattern = regexp.MustCompile(`^[2-9]\d{2}$`)
var arrayIndex = regexp.MustCompile(`^(0|[1-9]\d*)$`)

// Invoker runs one top-level call into the script. The engine passes its
// watchdog so every iteration of the body is time-bounded.
type Invoker func(call func() (goja.Value, error)) (goja.Value, error)

// Header is one response header.
type Header struct {
	Name  string
	Value string
}

// Response is a validated script response. It is immutable; only Write
// touches the script again, to iterate the body.
type Response struct {
	status  int
	headers []Header
	charset string
	enc     encoding.Encoding

	body    *goja.Object
	forEach goja.Callable
	b       *sandbox.Boundary
	invoke  Invoker
}

// Status returns the HTTP status code.
func (r *Response) Status() int { return r.status }

// Headers returns a copy of the headers, in script order.
func (r *Response) Headers() []Header { return append([]Header(nil), r.headers...) }

// Charset returns the charset used to encode text chunks.
func (r *Response) Charset() string { return r.charset }

// ParseResponse validates the value returned by a service script.
func ParseResponse(b *sandbox.Boundary, v goja.Value, invoke Invoker) (*Response, error) {
	if invoke == nil {
		invoke = func(call func() (goja.Value, error)) (goja.Value, error) { return call() }
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, ErrNotObject
	}
	resp := &Response{b: b, invoke: invoke, charset: DefaultCharset}

	status, err := parseStatus(obj.Get("status"))
	if err != nil {
		return nil, err
	}
	resp.status = status

	if err := resp.parseHeaders(obj.Get("headers")); err != nil {
		return nil, err
	}
	enc, _, err := sandbox.LookupEncoding(resp.charset)
	if err != nil {
		return nil, fmt.Errorf("%w charset: %s", ErrCharsetInvalid, resp.charset)
	}
	resp.enc = enc

	if err := resp.parseBody(obj.Get("body")); err != nil {
		return nil, err
	}
	return resp, nil
}

func parseStatus(v goja.Value) (int, error) {
	if v == nil {
		return 0, ErrStatusInvalid
	}
	switch v.Export().(type) {
	case int64, float64:
	default:
		return 0, ErrStatusInvalid
	}
	text := v.String()
	if !statusPattern.MatchString(text) {
		return 0, fmt.Errorf("%w status: %s", ErrStatusInvalid, text)
	}
	return int(v.ToInteger()), nil
}

func (r *Response) parseHeaders(v goja.Value) error {
	obj, ok := v.(*goja.Object)
	if !ok {
		return ErrHeadersInvalid
	}
	for _, key := range obj.Keys() {
		// Index-like keys are numbers in the source object literal.
		if arrayIndex.MatchString(key) {
			return fmt.Errorf("%w: %s", ErrHeaderKeyInvalid, key)
		}
		value, ok := obj.Get(key).Export().(string)
		if !ok {
			return fmt.Errorf("%w: %s", ErrHeaderValueInvalid, key)
		}
		if strings.EqualFold(key, "Transfer-Encoding") {
			continue
		}
		if strings.EqualFold(key, "Content-Type") {
			cs, err := contentTypeCharset(value)
			if err != nil {
				return err
			}
			if cs != "" {
				r.charset = cs
			}
		}
		r.headers = append(r.headers, Header{Name: key, Value: value})
	}
	return nil
}

// contentTypeCharset validates a Content-Type value and returns its
// charset parameter, if any.
func contentTypeCharset(value string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		return "", fmt.Errorf("%w %s", ErrContentTypeInvalid, value)
	}
	typ, sub, ok := strings.Cut(mediaType, "/")
	if !ok || typ == "" || sub == "" {
		return "", fmt.Errorf("%w %s", ErrContentTypeInvalid, value)
	}
	cs, ok := params["charset"]
	if !ok {
		return "", nil
	}
	if enc, _ := charset.Lookup(cs); enc == nil {
		return "", fmt.Errorf("%w charset: %s", ErrCharsetInvalid, cs)
	}
	return cs, nil
}

func (r *Response) parseBody(v goja.Value) error {
	obj, ok := v.(*goja.Object)
	if !ok {
		return ErrBodyNotIterable
	}
	forEach, ok := goja.AssertFunction(obj.Get("forEach"))
	if !ok {
		return ErrBodyNotIterable
	}
	r.body, r.forEach = obj, forEach

	var invalid error
	err := r.iterate(func(el goja.Value) error {
		if _, ok := el.Export().(string); ok {
			return nil
		}
		if h, ok := r.b.Unwrap(el); ok {
			if _, ok := h.(*sandbox.InputStream); ok {
				return nil
			}
		}
		invalid = ErrBodyElementInvalid
		return invalid
	})
	if invalid != nil {
		return invalid
	}
	return err
}

// iterate calls body.forEach(fn). A non-nil error from fn stops the
// iteration and is returned.
func (r *Response) iterate(fn func(goja.Value) error) error {
	vm := r.b.Runtime()
	var stop error
	callback := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if stop != nil {
			return goja.Undefined()
		}
		if err := fn(call.Argument(0)); err != nil {
			stop = err
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})

	_, err := r.invoke(func() (goja.Value, error) {
		return r.forEach(r.body, callback)
	})
	if stop != nil {
		return stop
	}
	return err
}

// Write sends status, headers and the streamed body to w.
func (r *Response) Write(w http.ResponseWriter) error {
	h := w.Header()
	for _, hd := range r.headers {
		h.Add(hd.Name, hd.Value)
	}
	w.WriteHeader(r.status)
	return r.WriteBody(w)
}

// WriteBody iterates the body again, encoding text with the response
// charset and copying streams in ChunkSize pieces.
func (r *Response) WriteBody(w io.Writer) error {
	buf := make([]byte, ChunkSize)

	return r.iterate(func(el goja.Value) error {
		if h, ok := r.b.Unwrap(el); ok {
			if stream, ok := h.(*sandbox.InputStream); ok {
				defer stream.Close()
				return copyChunks(w, stream, buf)
			}
		}
		text, err := encodeText(r.enc, el.String())
		if err != nil {
			return fmt.Errorf("encode body as %s: %w", r.charset, err)
		}
		_, err = io.WriteString(w, text)
		if f, ok := w.(http.Flusher); ok && err == nil {
			f.Flush()
		}
		return err
	})
}

// encodeText encodes s, writing '?' for runes enc cannot represent.
func encodeText(enc encoding.Encoding, s string) (string, error) {
	out, err := enc.NewEncoder().String(s)
	if err == nil {
		return out, nil
	}
	single := enc.NewEncoder()
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if _, err := single.String(string(r)); err != nil {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}
	return enc.NewEncoder().String(b.String())
}

func copyChunks(w io.Writer, r io.Reader, buf []byte) error {
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
