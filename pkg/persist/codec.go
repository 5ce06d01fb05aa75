// Package persist serializes built index sets and restores them from disk.
//
// A Codec turns a value into bytes and back and names the file extension it
// owns. LZ4Codec wraps any other codec in an LZ4 frame, which is how cached
// plans are kept small on disk.
package persist

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
	"gopkg.in/yaml.v3"
)

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	gobExtension  = ".gob"
	yamlExtension = ".yaml"
	lz4Extension  = ".lz4"
)

// Format names accepted by ForFormat.
const (
	FormatJSON = "json"
	FormatGob  = "gob"
	FormatYAML = "yaml"
)

const defaultIndent = "  "

// ErrUnknownFormat is returned by ForFormat for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown format")

// Codec defines how state is serialized and deserialized.
type Codec interface {
	Encode(w io.Writer, state any) error
	// Decode reads into state, which must be a pointer.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension including the dot.
	Extension() string
}

// ForFormat returns the codec for a format name. compress wraps it in LZ4.
func ForFormat(format string, compress bool) (Codec, error) {
	var codec Codec

	switch format {
	case FormatJSON, "":
		codec = NewJSONCodec()
	case FormatGob:
		codec = NewGobCodec()
	case FormatYAML:
		codec = NewYAMLCodec()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if compress {
		codec = NewLZ4Codec(codec)
	}

	return codec, nil
}

// ForPath picks the codec from a file name such as "plan.json" or
// "plan.gob.lz4".
func ForPath(path string) (Codec, error) {
	name := filepath.Base(path)
	compress := strings.HasSuffix(name, lz4Extension)
	name = strings.TrimSuffix(name, lz4Extension)

	switch ext := filepath.Ext(name); ext {
	case jsonExtension:
		return ForFormat(FormatJSON, compress)
	case gobExtension:
		return ForFormat(FormatGob, compress)
	case yamlExtension:
		return ForFormat(FormatYAML, compress)
	default:
		return nil, fmt.Errorf("%w: extension %q", ErrUnknownFormat, ext)
	}
}

// JSONCodec encodes JSON. An empty Indent produces compact output.
type JSONCodec struct {
	Indent string
}

// NewJSONCodec returns a JSON codec with two-space indentation.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	err := json.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *JSONCodec) Extension() string { return jsonExtension }

// GobCodec encodes with encoding/gob.
type GobCodec struct{}

// NewGobCodec returns a gob codec.
func NewGobCodec() *GobCodec { return &GobCodec{} }

// Encode implements Codec.
func (c *GobCodec) Encode(w io.Writer, state any) error {
	err := gob.NewEncoder(w).Encode(state)
	if err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *GobCodec) Decode(r io.Reader, state any) error {
	err := gob.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *GobCodec) Extension() string { return gobExtension }

// YAMLCodec encodes YAML.
type YAMLCodec struct {
	Indent int
}

// NewYAMLCodec returns a YAML codec with two-space indentation.
func NewYAMLCodec() *YAMLCodec { return &YAMLCodec{Indent: len(defaultIndent)} }

// Encode implements Codec.
func (c *YAMLCodec) Encode(w io.Writer, state any) error {
	encoder := yaml.NewEncoder(w)
	if c.Indent > 0 {
		encoder.SetIndent(c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return fmt.Errorf("yaml encode: %w", closeErr)
	}

	return nil
}

// Decode implements Codec.
func (c *YAMLCodec) Decode(r io.Reader, state any) error {
	err := yaml.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *YAMLCodec) Extension() string { return yamlExtension }

// LZ4Codec compresses the output of an inner codec with an LZ4 frame.
type LZ4Codec struct {
	Inner Codec
	Level lz4.CompressionLevel
}

// NewLZ4Codec wraps inner with the fast compression level.
func NewLZ4Codec(inner Codec) *LZ4Codec {
	return &LZ4Codec{Inner: inner, Level: lz4.Fast}
}

// Encode implements Codec.
func (c *LZ4Codec) Encode(w io.Writer, state any) error {
	zw := lz4.NewWriter(w)

	applyErr := zw.Apply(lz4.CompressionLevelOption(c.Level))
	if applyErr != nil {
		return fmt.Errorf("lz4 options: %w", applyErr)
	}

	encodeErr := c.Inner.Encode(zw, state)
	if encodeErr != nil {
		return encodeErr
	}

	closeErr := zw.Close()
	if closeErr != nil {
		return fmt.Errorf("lz4 close: %w", closeErr)
	}

	return nil
}

// Decode implements Codec.
func (c *LZ4Codec) Decode(r io.Reader, state any) error {
	return c.Inner.Decode(lz4.NewReader(r), state)
}

// Extension implements Codec. The inner extension is kept, e.g. ".json.lz4".
func (c *LZ4Codec) Extension() string {
	return c.Inner.Extension() + lz4Extension
}
