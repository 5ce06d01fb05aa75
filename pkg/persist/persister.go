package persist

import (
	"fmt"
	"os"
	"path/filepath"
)

// Path returns the file a state with basename is stored at.
func Path(dir, basename string, codec Codec) string {
	return filepath.Join(dir, basename+codec.Extension())
}

// SaveState writes state to dir/basename+extension. The file is written to a
// temporary name first and renamed into place, so readers never observe a
// partial file.
func SaveState(dir, basename string, codec Codec, state any) error {
	path := Path(dir, basename, codec)

	file, err := os.CreateTemp(dir, "."+basename+".*.tmp")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}

	tmp := file.Name()

	encodeErr := codec.Encode(file, state)
	closeErr := file.Close()

	if encodeErr != nil || closeErr != nil {
		os.Remove(tmp)

		if encodeErr != nil {
			return fmt.Errorf("encode state: %w", encodeErr)
		}

		return fmt.Errorf("close state file: %w", closeErr)
	}

	renameErr := os.Rename(tmp, path)
	if renameErr != nil {
		os.Remove(tmp)

		return fmt.Errorf("rename state file: %w", renameErr)
	}

	return nil
}

// LoadState reads dir/basename+extension into state, which must be a pointer.
func LoadState(dir, basename string, codec Codec, state any) error {
	file, err := os.Open(Path(dir, basename, codec))
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	decodeErr := codec.Decode(file, state)
	if decodeErr != nil {
		return fmt.Errorf("decode state: %w", decodeErr)
	}

	return nil
}

// Persister handles I/O for one state type under a fixed codec.
type Persister[T any] struct {
	codec Codec
}

// NewPersister creates a persister using codec.
func NewPersister[T any](codec Codec) *Persister[T] {
	return &Persister[T]{codec: codec}
}

// Codec returns the persister's codec.
func (p *Persister[T]) Codec() Codec { return p.codec }

// Save writes state under basename in dir.
func (p *Persister[T]) Save(dir, basename string, state *T) error {
	return SaveState(dir, basename, p.codec, state)
}

// Load reads the state stored under basename in dir.
func (p *Persister[T]) Load(dir, basename string) (*T, error) {
	var state T

	err := LoadState(dir, basename, p.codec, &state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}

// Exists reports whether a state is stored under basename in dir.
func (p *Persister[T]) Exists(dir, basename string) bool {
	_, err := os.Stat(Path(dir, basename, p.codec))

	return err == nil
}
