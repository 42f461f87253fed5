package sandbox

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// AutoEncoding asks readers to detect the charset from the content.
const AutoEncoding = "auto"

// detectWindow is how many bytes charset detection looks at.
const detectWindow = 4096

// LookupEncoding resolves a charset label such as "utf-8" or "Shift_JIS".
func LookupEncoding(label string) (encoding.Encoding, string, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", fmt.Errorf("unsupported encoding: %s", label)
	}
	name, _ := htmlindex.Name(enc)
	return enc, name, nil
}

// DecodeReader returns a reader producing UTF-8 text from r, which is
// encoded in label. The "auto" label detects the charset first.
func DecodeReader(r io.Reader, label string) (io.Reader, error) {
	if strings.EqualFold(label, AutoEncoding) {
		br := bufio.NewReaderSize(r, detectWindow)
		head, _ := br.Peek(detectWindow)
		label = detectCharset(head)
		r = br
	}
	enc, _, err := LookupEncoding(label)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(r), nil
}

func detectCharset(sample []byte) string {
	if len(sample) == 0 {
		return "utf-8"
	}
	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil || res.Charset == "" {
		return "utf-8"
	}
	return res.Charset
}

func readText(r io.Reader, label string) (string, error) {
	dec, err := DecodeReader(r, label)
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(dec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeString(s, label string) (string, error) {
	return readText(strings.NewReader(s), label)
}
