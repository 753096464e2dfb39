// Package snapshot persists a CodebaseContext as JSON or YAML, optionally
// zstd-compressed, and restores it from JSON.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/codectx/internal/errs"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

// Format is an encoding for snapshots.
type Format string

// Supported formats.
const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat returns the Format named s.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case JSON, YAML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown snapshot format %q", s)
}

// Options controls Encode.
type Options struct {
	Format   Format
	Compress bool
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Encode writes cc to w.
func Encode(w io.Writer, cc *model.CodebaseContext, opts Options) (err error) {
	if opts.Compress {
		zw, zerr := zstd.NewWriter(w)
		if zerr != nil {
			return fmt.Errorf("creating zstd writer: %w", zerr)
		}
		defer func() {
			if cerr := zw.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("closing zstd writer: %w", cerr)
			}
		}()
		w = zw
	}

	switch opts.Format {
	case JSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cc); err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cc); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
	default:
		return fmt.Errorf("unknown snapshot format %q", opts.Format)
	}
	return nil
}

// Decode reads a JSON snapshot, compressed or not. The symbol index is
// rebuilt from the encoded symbols and checked for consistency.
func Decode(r io.Reader) (*model.CodebaseContext, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if head, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	cc := &model.CodebaseContext{}
	if err := json.NewDecoder(src).Decode(cc); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if cc.Symbols == nil {
		cc.Symbols = symbols.NewIndex()
	}
	if err := cc.Symbols.CheckConsistency(); err != nil {
		return nil, errs.New(errs.IndexingFailed, cc.RootPath, "restored index is inconsistent", err)
	}
	return cc, nil
}

// WriteFile encodes cc to path, replacing any existing file.
func WriteFile(path string, cc *model.CodebaseContext, opts Options) error {
	var buf bytes.Buffer
	if err := Encode(&buf, cc, opts); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errs.Wrap(errs.CacheError, path, err)
	}
	return nil
}

// ReadFile decodes the JSON snapshot at path.
func ReadFile(path string) (*model.CodebaseContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.CacheError, path, err)
	}
	defer f.Close()
	return Decode(f)
}
