package credentials

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/ssh"
)

// KeyFile is a private key materialized on disk for exactly one remote
// execution. The caller must Release it; Release is safe to call repeatedly.
type KeyFile struct {
	path string
	size int

	once       sync.Once
	releaseErr error
}

// Materialize writes privatePEM to an owner-only temp file in dir
// (os.TempDir when dir is empty).
func Materialize(dir string, privatePEM string) (*KeyFile, error) {
	f, err := os.CreateTemp(dir, "cc-key-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create key file: %w", err)
	}
	kf := &KeyFile{path: f.Name(), size: len(privatePEM)}

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		kf.Release()
		return nil, fmt.Errorf("failed to restrict key file: %w", err)
	}
	if _, err := f.WriteString(privatePEM); err != nil {
		f.Close()
		kf.Release()
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		kf.Release()
		return nil, fmt.Errorf("failed to close key file: %w", err)
	}
	return kf, nil
}

// Path returns the on-disk location of the key.
func (k *KeyFile) Path() string {
	return k.path
}

// Signer loads the materialized key back from disk.
func (k *KeyFile) Signer() (ssh.Signer, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	defer wipe(data)
	return ParseSigner(data)
}

// Release overwrites the key file with zeros and removes it.
func (k *KeyFile) Release() error {
	k.once.Do(func() {
		k.releaseErr = shred(k.path, k.size)
	})
	return k.releaseErr
}

func shred(path string, size int) error {
	var overwriteErr error
	if f, err := os.OpenFile(path, os.O_WRONLY, 0); err == nil {
		zeros := make([]byte, size)
		if _, err := f.WriteAt(zeros, 0); err != nil {
			overwriteErr = err
		} else if err := f.Sync(); err != nil {
			overwriteErr = err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		overwriteErr = err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key file %s: %w", path, err)
	}
	if overwriteErr != nil {
		return fmt.Errorf("failed to overwrite key file %s: %w", path, overwriteErr)
	}
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
