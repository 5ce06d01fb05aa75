package treecache

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Sumatoshi-tech/stochgrid/pkg/persist"
)

// ErrInvalidKey is returned for keys that would address a file outside the
// disk tier's directory.
var ErrInvalidKey = errors.New("treecache: invalid disk key")

// checkKey rejects empty keys, path separators and parent references.
func checkKey(key string) error {
	if key == "" || key == "." || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return nil
}

// fileTier persists values as S, their serializable form.
type fileTier[V, S any] struct {
	dir       string
	persister *persist.Persister[S]
	toState   func(V) S
	fromState func(S) (V, error)
}

// WithDisk adds a disk tier under dir. Values are converted to their state
// form S by toState before encoding with codec, and rebuilt by fromState on
// load. fromState may reject a stored state, in which case it is treated as a
// miss.
func WithDisk[V, S any](dir string, codec persist.Codec, toState func(V) S, fromState func(S) (V, error)) Option[V] {
	return func(c *Cache[V]) {
		c.disk = &fileTier[V, S]{
			dir:       dir,
			persister: persist.NewPersister[S](codec),
			toState:   toState,
			fromState: fromState,
		}
	}
}

func (f *fileTier[V, S]) load(key string) (V, bool, error) {
	var zero V

	keyErr := checkKey(key)
	if keyErr != nil {
		return zero, false, keyErr
	}

	if !f.persister.Exists(f.dir, key) {
		return zero, false, nil
	}

	state, err := f.persister.Load(f.dir, key)
	if err != nil {
		return zero, false, err
	}

	value, restoreErr := f.fromState(*state)
	if restoreErr != nil {
		return zero, false, fmt.Errorf("restore %s: %w", key, restoreErr)
	}

	return value, true, nil
}

func (f *fileTier[V, S]) store(key string, value V) error {
	keyErr := checkKey(key)
	if keyErr != nil {
		return keyErr
	}

	mkdirErr := os.MkdirAll(f.dir, 0o755)
	if mkdirErr != nil {
		return fmt.Errorf("create cache dir: %w", mkdirErr)
	}

	state := f.toState(value)

	return f.persister.Save(f.dir, key, &state)
}
