package guard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Layr-Labs/certreq/pkg/spec"
	"github.com/Layr-Labs/certreq/pkg/store"
)

const (
	// DefaultLockTTL bounds how long a crashed run can block its principal
	DefaultLockTTL = 15 * time.Minute

	lockSuffix = ".lock"
)

var (
	ErrAlreadyRequested = errors.New("certificate already requested")
	ErrInProgress       = errors.New("request already in progress")
	ErrNotRequested     = errors.New("no request recorded")
)

// Guard records which principals were already requested, using one semaphore file each.
// Every mutation is an atomic create-if-absent on the filesystem, so concurrent runs for the
// same principal cannot both succeed.
type Guard struct {
	lockTTL time.Duration
	clock   func() time.Time
}

func New() *Guard {
	return &Guard{lockTTL: DefaultLockTTL, clock: time.Now}
}

// SetClock sets the time provider (mainly for testing)
func (g *Guard) SetClock(clock func() time.Time) {
	g.clock = clock
}

// SetLockTTL changes when an abandoned lock is considered stale.
func (g *Guard) SetLockTTL(ttl time.Duration) {
	g.lockTTL = ttl
}

// AlreadyRequested reports whether the semaphore for s exists.
func (g *Guard) AlreadyRequested(s spec.CertificateRequestSpec) (bool, error) {
	_, err := os.Lstat(s.SemaphorePath())
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("check semaphore %s: %w", s.SemaphorePath(), err)
	}
}

// MarkRequested creates the semaphore for s holding rec.
//
// Call only after submission succeeded and polling confirmed a non-failed status.
// Returns ErrAlreadyRequested if another run created it first.
func (g *Guard) MarkRequested(s spec.CertificateRequestSpec, rec RequestRecord) error {
	if rec.Status == StatusFailed {
		return fmt.Errorf("refusing to mark failed request for %s", s.Principal())
	}
	rec.Principal = s.Principal()
	rec.NormalizedID = s.NormalizedID()
	rec.Kind = string(s.Kind())

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal request record: %w", err)
	}
	err = createExclusive(s.SemaphorePath(), data, store.SemaphoreFileMode, s.OwnerID(), s.GroupID())
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrAlreadyRequested, s.Principal())
	}
	return err
}

// Read returns the record stored in the semaphore for s.
func (g *Guard) Read(s spec.CertificateRequestSpec) (*RequestRecord, error) {
	return readRecord(s.SemaphorePath())
}

// Forget removes the semaphore for s so the next run submits again.
func (g *Guard) Forget(s spec.CertificateRequestSpec) error {
	err := os.Remove(s.SemaphorePath())
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotRequested, s.Principal())
	}
	return err
}

// List returns every record in markerDir ordered by principal. Unreadable entries are
// returned with only NormalizedID set.
func (g *Guard) List(markerDir string) ([]RequestRecord, error) {
	entries, err := os.ReadDir(markerDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", markerDir, err)
	}

	var records []RequestRecord
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		rec, err := readRecord(filepath.Join(markerDir, e.Name()))
		if err != nil {
			// semaphores written by older tooling are empty marker files
			records = append(records, RequestRecord{NormalizedID: e.Name()})
			continue
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].NormalizedID < records[j].NormalizedID
	})
	return records, nil
}

// Lock takes the in-flight lock for s. The returned function releases it.
// Returns ErrInProgress while another live run holds it.
func (g *Guard) Lock(s spec.CertificateRequestSpec, runID string) (func() error, error) {
	path := lockPath(s)
	data, err := yaml.Marshal(lockInfo{RunID: runID, PID: os.Getpid(), CreatedAt: g.clock().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal lock: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		err = createExclusive(path, data, store.SemaphoreFileMode, os.Geteuid(), os.Getegid())
		if err == nil {
			return func() error { return releaseLock(path, runID) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("take lock for %s: %w", s.Principal(), err)
		}
		if !g.breakStaleLock(path) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInProgress, s.Principal())
}

// breakStaleLock removes the lock at path if it is older than the TTL.
func (g *Guard) breakStaleLock(path string) bool {
	info, err := readLock(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true
		}
		return false
	}
	if g.clock().Sub(info.CreatedAt) < g.lockTTL {
		return false
	}
	// re-read right before removal so a lock replaced in between is left alone
	again, err := readLock(path)
	if err != nil || again.RunID != info.RunID {
		return os.IsNotExist(err)
	}
	return os.Remove(path) == nil
}

func lockPath(s spec.CertificateRequestSpec) string {
	return filepath.Join(s.MarkerDir(), "."+s.NormalizedID()+lockSuffix)
}

func releaseLock(path, runID string) error {
	info, err := readLock(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.RunID != runID {
		// someone broke our lock as stale and took it over
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func readLock(path string) (*lockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info lockInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse lock %s: %w", path, err)
	}
	return &info, nil
}

func readRecord(path string) (*RequestRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotRequested
		}
		return nil, fmt.Errorf("read semaphore: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("semaphore %s has no record", path)
	}
	var rec RequestRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse semaphore %s: %w", path, err)
	}
	return &rec, nil
}

// createExclusive writes data to a temp file and hard-links it to path. The link either
// succeeds with complete content in place or fails with os.ErrExist.
func createExclusive(path string, data []byte, mode os.FileMode, uid, gid int) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Lchown(tmpName, uid, gid); err != nil {
		return fmt.Errorf("chown %s: %w", tmpName, err)
	}
	if err := os.Link(tmpName, path); err != nil {
		if os.IsExist(err) {
			return os.ErrExist
		}
		return fmt.Errorf("link %s: %w", path, err)
	}
	return nil
}
