// Package file stores records as files in a directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrhy/zqueue/store"
)

// HeadFile is the name of the file holding the current head.
const HeadFile = "HEAD"

// Persist implements the store.Persist interface for storing and loading
// records from files.
type Persist struct {
	basepath string
}

// Load loads the bytes persisted in the named file.
func (p Persist) Load(ctx context.Context, name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(p.basepath, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, store.ErrNotFound)
	}
	return b, err
}

// Store persists the given bytes in a file of the given name, if it
// doesn't exist already.
func (p Persist) Store(ctx context.Context, name string, b []byte) error {
	path := filepath.Join(p.basepath, name)
	_, err := os.Stat(path)
	if !os.IsNotExist(err) {
		return err
	}
	return p.writeFile(name, b)
}

// writeFile replaces name atomically, so a crash never leaves a partial
// record behind.
func (p Persist) writeFile(name string, b []byte) error {
	f, err := os.CreateTemp(p.basepath, "."+name+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(b)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, filepath.Join(p.basepath, name))
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// LoadHead returns the head last saved with StoreHead, or "" if there is
// none.
func (p Persist) LoadHead() (string, error) {
	b, err := os.ReadFile(filepath.Join(p.basepath, HeadFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// StoreHead records head so that a later LoadHead returns it.
func (p Persist) StoreHead(head string) error {
	return p.writeFile(HeadFile, []byte(head+"\n"))
}

// NewPersistForPath returns a Persist that loads and stores records as
// files in the directory at the given path, creating it if necessary.
//
//	p, err := NewPersistForPath("/var/db/jobs")
//	blob, err := p.Load(ctx, "n4bQgYhMfWWaL-qgxVrQFaO_TxsrC4Is0V1sFbDwCgg")
func NewPersistForPath(path string) (Persist, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Persist{}, err
	}
	return Persist{path}, nil
}
