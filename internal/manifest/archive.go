package manifest

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNoDescriptor is returned when an archive does not contain a descriptor.
var ErrNoDescriptor = errors.New("archive has no " + DescriptorFile)

// ReadArchive parses the descriptor stored at the root of a unit archive.
func ReadArchive(path string) (*Descriptor, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer zr.Close()

	f, err := zr.Open(DescriptorFile)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", path, ErrNoDescriptor)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s from %s: %w", DescriptorFile, path, err)
	}
	return Parse(data, path+"!"+DescriptorFile)
}

// Load reads a descriptor from either a unit archive or a plain descriptor
// file, chosen by extension.
func Load(path string) (*Descriptor, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return ParseFile(path)
	default:
		return ReadArchive(path)
	}
}

// Pack writes a unit archive at dst holding descriptor as its descriptor
// file plus any extra entries, keyed by archive path.
func Pack(dst string, descriptor []byte, extra map[string][]byte) error {
	if _, err := Parse(descriptor, dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", dst, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating archive %s: %w", dst, err)
	}
	zw := zip.NewWriter(out)

	write := func(name string, data []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	if err := write(DescriptorFile, descriptor); err != nil {
		out.Close()
		return fmt.Errorf("writing archive %s: %w", dst, err)
	}
	for name, data := range extra {
		if err := write(name, data); err != nil {
			out.Close()
			return fmt.Errorf("writing archive %s: %w", dst, err)
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finishing archive %s: %w", dst, err)
	}
	return out.Close()
}
