package source

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/personium/personium-engine/internal/domain/route"
)

// SourceDir is the subdirectory of a service collection holding scripts.
const SourceDir = "__src"

// ContentFile is the file holding a script's bytes.
const ContentFile = "content"

// FSOptions configure an FS backend.
type FSOptions struct {
	// Root confines collection paths. Empty disables the check.
	Root string
	// RouteStrategy selects the path resolver.
	RouteStrategy string
	// Cryptor decrypts encrypted scripts. Nil rejects them.
	Cryptor *Cryptor
	// MaxBytes bounds a script's size. Zero means unbounded.
	MaxBytes int64
}

// FS serves a service collection stored on the local file system.
type FS struct {
	dir       string
	routingID string
	table     *route.Table
	opts      FSOptions
}

// NewFS opens the service collection at dir and parses its routing
// document.
func NewFS(dir, routingID string, opts FSOptions) (*FS, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty service collection path", ErrNotFound)
	}
	clean := filepath.Clean(dir)
	if opts.Root != "" {
		root := filepath.Clean(opts.Root)
		if clean != root && !strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return nil, fmt.Errorf("service collection %s is outside %s", clean, root)
		}
	}

	meta, err := LoadMetadata(filepath.Join(clean, MetaFile))
	if err != nil {
		return nil, err
	}
	doc, ok := meta.Props[RoutingProperty]
	if !ok || doc == "" {
		return nil, fmt.Errorf("service collection %s has no routing document", clean)
	}
	resolver, err := route.NewResolver(opts.RouteStrategy)
	if err != nil {
		return nil, err
	}
	table, err := route.Parse([]byte(doc), resolver)
	if err != nil {
		return nil, err
	}
	return &FS{dir: clean, routingID: routingID, table: table, opts: opts}, nil
}

func (f *FS) ServiceSubject() string { return f.table.Subject() }

func (f *FS) ScriptNameForServicePath(path string) (string, error) {
	name, ok := f.table.Resolve(path)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return name, nil
}

func (f *FS) Source(name string) (string, error) {
	dir, err := f.scriptDir(name)
	if err != nil {
		return "", err
	}
	meta, err := LoadMetadata(filepath.Join(dir, MetaFile))
	if err != nil {
		return "", err
	}

	data, err := f.readContent(filepath.Join(dir, ContentFile))
	if err != nil {
		return "", err
	}
	if meta.Encrypted() {
		if f.opts.Cryptor == nil {
			return "", fmt.Errorf("%w: no key configured for %s", ErrDecrypt, name)
		}
		if data, err = f.opts.Cryptor.Decrypt(data, f.routingID); err != nil {
			return "", err
		}
	}
	if !isText(data) {
		return "", fmt.Errorf("%w: %s", ErrNotText, name)
	}
	return string(data), nil
}

func (f *FS) ModTime(name string) (time.Time, error) {
	dir, err := f.scriptDir(name)
	if err != nil {
		return time.Time{}, err
	}
	meta, err := LoadMetadata(filepath.Join(dir, MetaFile))
	if err != nil {
		return time.Time{}, err
	}
	return meta.UpdatedTime(), nil
}

func (f *FS) CacheKey(name string) string { return "fs:" + f.dir + ":" + name }

func (f *FS) scriptDir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return filepath.Join(f.dir, SourceDir, name), nil
}

func (f *FS) readContent(path string) ([]byte, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var r io.Reader = file
	if f.opts.MaxBytes > 0 {
		r = io.LimitReader(file, f.opts.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if f.opts.MaxBytes > 0 && int64(len(data)) > f.opts.MaxBytes {
		return nil, fmt.Errorf("script %s exceeds %d bytes", path, f.opts.MaxBytes)
	}
	return data, nil
}

// isText reports whether data sniffs as some kind of text.
func isText(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
