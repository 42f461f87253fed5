package extension

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// maxEntrySize bounds one archive entry.
const maxEntrySize = 4 << 20

// entry is one file read from an archive.
type entry struct {
	name string
	data []byte
}

// wanted reports whether an archive member can be part of an extension.
func wanted(name string) bool {
	return strings.HasSuffix(name, ".js") || strings.HasSuffix(name, ".properties")
}

// readArchive returns the script and properties members of an archive.
func readArchive(file string) ([]entry, error) {
	switch {
	case strings.HasSuffix(file, ".zip"):
		return readZip(file)
	case strings.HasSuffix(file, ".tar.gz"), strings.HasSuffix(file, ".tgz"):
		return readTar(file, func(r io.Reader) (io.Reader, func(), error) {
			gz, err := gzip.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return gz, func() { gz.Close() }, nil
		})
	case strings.HasSuffix(file, ".tar.zst"):
		return readTar(file, func(r io.Reader) (io.Reader, func(), error) {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return zr, zr.Close, nil
		})
	case strings.HasSuffix(file, ".tar"):
		return readTar(file, func(r io.Reader) (io.Reader, func(), error) {
			return r, func() {}, nil
		})
	default:
		return nil, fmt.Errorf("unsupported archive %s", file)
	}
}

func readZip(file string) ([]entry, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out []entry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !wanted(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		data, err := readLimited(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out = append(out, entry{name: path.Clean(f.Name), data: data})
	}
	return out, nil
}

func readTar(file string, decompress func(io.Reader) (io.Reader, func(), error)) ([]entry, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, closeFn, err := decompress(f)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var out []entry
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg || !wanted(hdr.Name) {
			continue
		}
		data, err := readLimited(tr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", hdr.Name, err)
		}
		out = append(out, entry{name: path.Clean(strings.TrimPrefix(hdr.Name, "./")), data: data})
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxEntrySize)
	}
	return data, nil
}
