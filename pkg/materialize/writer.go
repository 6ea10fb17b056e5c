package materialize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Layr-Labs/certreq/pkg/common/iface"
	"github.com/Layr-Labs/certreq/pkg/store"
)

var (
	ErrNotIssued = errors.New("material was not confirmed as issued")
	ErrEmptyData = errors.New("refusing to write empty file")
)

// WriteFile atomically places data at path with the given mode and ownership.
//
// The data goes to a temporary sibling which is synced, chmod'ed and chown'ed before being
// renamed over path, so path is either absent, its previous content, or the complete new content.
func WriteFile(path string, data []byte, mode os.FileMode, uid, gid int) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyData, path)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Lchown(tmpName, uid, gid); err != nil {
		return fmt.Errorf("chown temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp -> %s: %w", path, err)
	}

	// Best-effort fsync of the directory to persist the rename.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Placement records what Materialize wrote so it can be undone.
//
// A file replaced at a final path is kept as a hard-linked backup until Commit, so Rollback
// restores the previous content instead of leaving the path empty.
type Placement struct {
	Paths   []string
	backups map[string]string
}

// preserve links the current file at path to a backup sibling. It returns "" when path does
// not exist yet.
func (p *Placement) preserve(path string) (string, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", path)
	}

	reserved, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".bak-*")
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	backup := reserved.Name()
	_ = reserved.Close()
	if err := os.Remove(backup); err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	if err := os.Link(path, backup); err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	if p.backups == nil {
		p.backups = make(map[string]string)
	}
	p.backups[path] = backup
	return backup, nil
}

// place writes data to path, keeping a backup of what was there before.
func (p *Placement) place(path string, data []byte, mode os.FileMode, uid, gid int) error {
	if _, err := p.preserve(path); err != nil {
		return err
	}
	p.Paths = append(p.Paths, path)
	return WriteFile(path, data, mode, uid, gid)
}

// Rollback undoes every write of Materialize: replaced files get their previous content back,
// files that did not exist before are removed.
func (p *Placement) Rollback() error {
	var errs []error
	for i := len(p.Paths) - 1; i >= 0; i-- {
		path := p.Paths[i]
		backup, ok := p.backups[path]
		if !ok {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
			continue
		}
		if err := os.Rename(backup, path); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", path, err))
			continue
		}
		// rename is a no-op when the write never replaced path
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	p.Paths = nil
	p.backups = nil
	return errors.Join(errs...)
}

// Commit drops the backups. The placement can no longer be rolled back.
func (p *Placement) Commit() error {
	var errs []error
	for _, backup := range p.backups {
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	p.Paths = nil
	p.backups = nil
	return errors.Join(errs...)
}

// Writer materializes issued file pair material.
type Writer struct {
	log iface.Logger
}

func NewWriter(logger iface.Logger) *Writer {
	return &Writer{log: logger}
}

// Materialize writes the key then the certificate to their final paths and wipes m.
//
// Only material confirmed by the poller is accepted: writing a key before issuance is what
// leaves the daemon stuck on an empty key file. If either write fails, the paths are put back
// the way they were. On success the caller must Commit or Rollback the returned placement.
func (w *Writer) Materialize(m *store.IssuedMaterial, keyPath, certPath string) (*Placement, error) {
	if !m.Confirmed() {
		return nil, ErrNotIssued
	}
	if len(m.Key) == 0 || len(m.Certificate) == 0 {
		return nil, fmt.Errorf("%w: issued material has no key or certificate", ErrEmptyData)
	}

	placement := &Placement{}
	undo := func() {
		if rbErr := placement.Rollback(); rbErr != nil {
			w.log.Warn("Failed to restore %s and %s after error: %v", keyPath, certPath, rbErr)
		}
	}

	if err := placement.place(keyPath, m.Key, m.KeyMode, m.Owner, m.Group); err != nil {
		undo()
		return nil, fmt.Errorf("write private key: %w", err)
	}
	w.log.Debug("Wrote private key to %s", keyPath)

	if err := placement.place(certPath, m.Certificate, m.CertMode, m.Owner, m.Group); err != nil {
		undo()
		return nil, fmt.Errorf("write certificate: %w", err)
	}
	w.log.Debug("Wrote certificate to %s", certPath)

	m.Wipe()
	return placement, nil
}
