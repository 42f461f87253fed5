package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/bytedance/sonic"
)

// MetaFile is the name of the metadata file in every collection directory.
const MetaFile = ".pmeta"

// RoutingProperty is the collection property holding the routing document.
const RoutingProperty = "service@urn:x-personium:xmlns"

// EncryptionAES names the only supported content encryption.
const EncryptionAES = "AES/CBC/PKCS5Padding"

const (
	metadataAttempts = 5
	metadataBackoff  = 100 * time.Millisecond
)

// Metadata is the on-disk metadata of a collection or file. The unit writes
// it with short keys.
type Metadata struct {
	ID             string            `json:"i"`
	Type           string            `json:"t"`
	ACL            map[string]any    `json:"a,omitempty"`
	Props          map[string]string `json:"d,omitempty"`
	Published      int64             `json:"p"`
	Updated        *int64            `json:"u,omitempty"`
	ContentType    string            `json:"ct,omitempty"`
	ContentLength  int64             `json:"cl,omitempty"`
	EncryptionType string            `json:"et,omitempty"`
	Version        int64             `json:"v,omitempty"`
	ChildCount     int64             `json:"cs,omitempty"`
}

// UpdatedTime returns the last update time, or the zero time when the file
// records none.
func (m *Metadata) UpdatedTime() time.Time {
	if m.Updated == nil {
		return time.Time{}
	}
	return time.UnixMilli(*m.Updated)
}

// Encrypted reports whether the content is stored encrypted.
func (m *Metadata) Encrypted() bool { return m.EncryptionType == EncryptionAES }

// LoadMetadata reads and decodes a metadata file. Another process may be
// rewriting the file; read and parse failures are retried a few times and
// the last error is returned. A missing file fails at once.
func LoadMetadata(path string) (*Metadata, error) {
	var lastErr error
	for attempt := 0; attempt < metadataAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(metadataBackoff)
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if err != nil {
			lastErr = err
			continue
		}
		var m Metadata
		if err := sonic.Unmarshal(data, &m); err != nil {
			lastErr = fmt.Errorf("parse %s: %w", path, err)
			continue
		}
		return &m, nil
	}
	return nil, lastErr
}
