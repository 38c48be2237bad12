// Package file implements a filesystem content-addressed store. Payloads
// are ingested into a scratch area and promoted to their digest-derived path
// with an atomic rename, so readers never observe partial blobs. Blobs live
// under <root>/<algorithm>/<hex[:2]>/<hex>.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	godigest "github.com/opencontainers/go-digest"
	"github.com/spf13/afero"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/util/xio"
	"github.com/wuxler/stowage/pkg/util/xos"
	"github.com/wuxler/stowage/pkg/xlog"
)

const (
	// Name is the default component name of the driver.
	Name = "file@v1"
	// DigestXattr is the extended attribute recording the digest on promoted
	// blobs, for external tooling. Written best-effort on host filesystems.
	DigestXattr = "user.stowage.digest"

	ingestDirName = "ingest"
	lockDirName   = "locks"

	lockStripes        = 32
	lockRetryDelay     = 10 * time.Millisecond
	defaultLockTimeout = 10 * time.Second
)

// Option configures the store.
type Option func(*Storage)

// WithName overrides the component name, allowing several file stores with
// different roots in one registry.
func WithName(name string) Option {
	return func(s *Storage) {
		s.name = name
	}
}

// WithFS replaces the host filesystem, mainly with an afero.MemMapFs in
// tests. File locks and digest xattrs apply only on the host filesystem and
// are skipped on any other.
func WithFS(fsys afero.Fs) Option {
	return func(s *Storage) {
		s.fs = fsys
	}
}

// WithVerifyOnRead re-hashes payloads on every read and fails reads whose
// bytes no longer match the digest recorded in the locator.
func WithVerifyOnRead() Option {
	return func(s *Storage) {
		s.verify = true
	}
}

// WithLockTimeout bounds how long a write waits for the per-digest ingest
// lock when the caller context has no deadline of its own.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Storage) {
		s.lockTimeout = timeout
	}
}

// Locator points at a payload below the store root.
type Locator struct {
	// Path is the blob path relative to the store root, always in slash form.
	Path string `json:"path"`
	// Digest is the digest of the payload, e.g. "sha256:29fa...".
	Digest string `json:"digest"`
	// Size is the payload size in bytes.
	Size int64 `json:"size,omitempty"`
}

// Storage is a filesystem content-addressed store.
type Storage struct {
	name        string
	root        string
	fs          afero.Fs
	host        bool
	verify      bool
	lockTimeout time.Duration
	stripes     [lockStripes]sync.Mutex
}

// New returns a store rooted at root on the host filesystem. The root is
// created lazily on the first write.
func New(root string, opts ...Option) (*Storage, error) {
	if root == "" {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "empty storage root")
	}
	s := &Storage{
		name:        Name,
		root:        root,
		fs:          afero.NewOsFs(),
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := s.fs.(*afero.OsFs); ok {
		s.host = true
	}
	return s, nil
}

// Name implements stow.Component.
func (s *Storage) Name() string {
	return s.name
}

// Root returns the store root path.
func (s *Storage) Root() string {
	return s.root
}

// WriteData implements stow.Storage. Tags are ignored, the driver keeps no
// per-payload metadata beyond the digest xattr.
func (s *Storage) WriteData(ctx context.Context, data []byte, dgst stow.Digest, _ map[string]string) (stow.Locator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := dgst.Digest.Validate(); err != nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "digest: %w", err)
	}
	locator := s.newLocator(dgst.Digest, dgst.Size)
	if ok, err := afero.Exists(s.fs, s.abs(locator.Path)); err != nil {
		return nil, fmt.Errorf("probe %s: %w", locator.Path, err)
	} else if ok {
		return locator, nil
	}
	temp, err := s.ingest(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := s.promote(ctx, temp, dgst.Digest); err != nil {
		return nil, err
	}
	return locator, nil
}

// WriteDataStream implements stow.Storage. The source is drained into a
// scratch file and promoted under the digest computed while draining; on
// error or cancellation the scratch file is removed.
func (s *Storage) WriteDataStream(ctx context.Context, src *stow.StreamDigester, _ map[string]string) (stow.Locator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	temp, err := s.ingest(ctx, src)
	if err != nil {
		return nil, err
	}
	sd, err := src.Digest(false)
	if err != nil {
		s.discard(ctx, temp)
		return nil, err
	}
	if err := s.promote(ctx, temp, sd.Digest.Digest); err != nil {
		return nil, err
	}
	return s.newLocator(sd.Digest.Digest, sd.Digest.Size), nil
}

// ReadData implements stow.Storage.
func (s *Storage) ReadData(ctx context.Context, locator stow.Locator) ([]byte, error) {
	loc, err := s.locator(locator)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, s.abs(loc.Path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errdefs.Newf(errdefs.ErrNoStorageData, "no payload at %s", loc.Path)
		}
		return nil, fmt.Errorf("read %s: %w", loc.Path, err)
	}
	if s.verify {
		if err := verifyBytes(loc, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// ReadDataStream implements stow.Storage. With verification enabled the
// returned reader re-hashes the payload as it is consumed and fails the read
// that reaches EOF when the bytes do not match the locator digest.
func (s *Storage) ReadDataStream(ctx context.Context, locator stow.Locator) (io.ReadCloser, error) {
	loc, err := s.locator(locator)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.abs(loc.Path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errdefs.Newf(errdefs.ErrNoStorageData, "no payload at %s", loc.Path)
		}
		return nil, fmt.Errorf("open %s: %w", loc.Path, err)
	}
	if !s.verify {
		return f, nil
	}
	want, err := parseLocatorDigest(loc)
	if err != nil {
		xio.CloseAndSkipError(f)
		return nil, err
	}
	return &verifyReadCloser{rc: f, verifier: want.Verifier(), want: want, path: loc.Path}, nil
}

// EncodeLocator implements stow.Storage.
func (s *Storage) EncodeLocator(locator stow.Locator) (string, error) {
	loc, err := s.locator(locator)
	if err != nil {
		return "", err
	}
	return stow.EncodeLocatorJSON(loc)
}

// DecodeLocator implements stow.Storage.
func (s *Storage) DecodeLocator(encoded string) (stow.Locator, error) {
	loc, err := stow.DecodeLocatorJSON[Locator](encoded)
	if err != nil {
		return nil, err
	}
	if err := validateRelPath(loc.Path); err != nil {
		return nil, err
	}
	return loc, nil
}

// ingest drains src into a fresh scratch file and returns its path. The
// caller owns the file and must promote or discard it.
func (s *Storage) ingest(ctx context.Context, src io.Reader) (string, error) {
	dir := s.abs(ingestDirName)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create ingest dir: %w", err)
	}
	temp, err := afero.TempFile(s.fs, dir, "ingest-*")
	if err != nil {
		return "", fmt.Errorf("create ingest file: %w", err)
	}
	measured := xio.NewMeasuredReader(src)
	if _, err := io.Copy(temp, measured); err != nil {
		xio.CloseAndSkipError(temp)
		s.discard(ctx, temp.Name())
		return "", fmt.Errorf("ingest payload: %w", err)
	}
	if err := temp.Close(); err != nil {
		s.discard(ctx, temp.Name())
		return "", fmt.Errorf("flush ingest file: %w", err)
	}
	xlog.C(ctx).Debugf("ingested %d bytes into %s", measured.Total(), filepath.Base(temp.Name()))
	return temp.Name(), nil
}

// promote moves a drained scratch file to its digest-derived path. Promotion
// holds the per-digest ingest lock; when the blob already exists the scratch
// file is discarded and the existing blob wins.
func (s *Storage) promote(ctx context.Context, temp string, dgst godigest.Digest) error {
	unlock, err := s.lock(ctx, dgst)
	if err != nil {
		s.discard(ctx, temp)
		return err
	}
	defer unlock()

	target := s.abs(blobRel(dgst))
	if ok, err := afero.Exists(s.fs, target); err != nil {
		s.discard(ctx, temp)
		return fmt.Errorf("probe %s: %w", blobRel(dgst), err)
	} else if ok {
		s.discard(ctx, temp)
		return nil
	}
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		s.discard(ctx, temp)
		return fmt.Errorf("create blob dir: %w", err)
	}
	if err := s.fs.Rename(temp, target); err != nil {
		s.discard(ctx, temp)
		return fmt.Errorf("promote %s: %w", blobRel(dgst), err)
	}
	s.writeDigestXattr(ctx, target, dgst)
	return nil
}

// lock takes the in-process stripe for the digest and, on the host
// filesystem, a flock shared with other processes using the same root.
func (s *Storage) lock(ctx context.Context, dgst godigest.Digest) (func(), error) {
	stripe := &s.stripes[stripeIndex(dgst)]
	stripe.Lock()
	if !s.host {
		return stripe.Unlock, nil
	}
	lockDir := s.abs(lockDirName)
	if err := s.fs.MkdirAll(lockDir, 0o755); err != nil {
		stripe.Unlock()
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	name := dgst.Algorithm().String() + "-" + dgst.Encoded() + ".lock"
	fileLock := flock.New(filepath.Join(lockDir, name))

	lockCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	locked, err := fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		stripe.Unlock()
		return nil, fmt.Errorf("lock %s: %w", dgst, err)
	}
	if !locked {
		stripe.Unlock()
		return nil, fmt.Errorf("lock %s: not acquired", dgst)
	}
	return func() {
		if err := fileLock.Unlock(); err != nil {
			xlog.C(ctx).Debugf("unlock %s: %v", dgst, err)
		}
		stripe.Unlock()
	}, nil
}

func (s *Storage) discard(ctx context.Context, name string) {
	if err := s.fs.Remove(name); err != nil {
		xlog.C(ctx).Debugf("remove ingest file %s: %v", filepath.Base(name), err)
	}
}

// writeDigestXattr records the digest on the promoted blob. Failures are
// expected on filesystems without xattr support and only logged.
func (s *Storage) writeDigestXattr(ctx context.Context, target string, dgst godigest.Digest) {
	if !s.host {
		return
	}
	if err := xos.Lsetxattr(target, DigestXattr, []byte(dgst.String()), 0); err != nil {
		xlog.C(ctx).Debugf("set %s on %s: %v", DigestXattr, filepath.Base(target), err)
	}
}

func (s *Storage) newLocator(dgst godigest.Digest, size int64) Locator {
	return Locator{Path: blobRel(dgst), Digest: dgst.String(), Size: size}
}

func (s *Storage) locator(locator stow.Locator) (Locator, error) {
	var loc Locator
	switch l := locator.(type) {
	case Locator:
		loc = l
	case *Locator:
		loc = *l
	default:
		return Locator{}, errdefs.Newf(errdefs.ErrInvalidParameter, "locator %T is not a file locator", locator)
	}
	if err := validateRelPath(loc.Path); err != nil {
		return Locator{}, err
	}
	return loc, nil
}

func (s *Storage) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func blobRel(dgst godigest.Digest) string {
	hex := dgst.Encoded()
	return path.Join(dgst.Algorithm().String(), hex[:2], hex)
}

func stripeIndex(dgst godigest.Digest) int {
	h := fnv.New32a()
	h.Write([]byte(dgst)) // fnv.Write never returns an error
	return int(h.Sum32() % lockStripes)
}

// validateRelPath guards against locators that escape the store root.
// Locators round-trip through external records and are not trusted.
func validateRelPath(rel string) error {
	if rel == "" {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "locator has no path")
	}
	if path.IsAbs(rel) || filepath.IsAbs(rel) {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "locator path %q is absolute", rel)
	}
	clean := path.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "locator path %q escapes the store root", rel)
	}
	return nil
}

func verifyBytes(loc Locator, data []byte) error {
	want, err := parseLocatorDigest(loc)
	if err != nil {
		return err
	}
	if got := want.Algorithm().FromBytes(data); got != want {
		return errdefs.Newf(errdefs.ErrContentHashMismatch,
			"payload at %s hashes to %s, want %s", loc.Path, got, want)
	}
	return nil
}

func parseLocatorDigest(loc Locator) (godigest.Digest, error) {
	if loc.Digest == "" {
		return "", errdefs.Newf(errdefs.ErrInvalidParameter, "locator for %s has no digest to verify", loc.Path)
	}
	dgst := godigest.Digest(loc.Digest)
	if err := dgst.Validate(); err != nil {
		return "", errdefs.Newf(errdefs.ErrInvalidParameter, "locator digest %q: %w", loc.Digest, err)
	}
	return dgst, nil
}

// verifyReadCloser re-hashes a payload as it is read. The read that reaches
// EOF fails with ErrContentHashMismatch when the hash does not match.
type verifyReadCloser struct {
	rc       io.ReadCloser
	verifier godigest.Verifier
	want     godigest.Digest
	path     string
	checked  bool
}

func (v *verifyReadCloser) Read(p []byte) (int, error) {
	n, err := v.rc.Read(p)
	if n > 0 {
		v.verifier.Write(p[:n]) // hash.Hash never returns an error on Write
	}
	if errors.Is(err, io.EOF) && !v.checked {
		v.checked = true
		if !v.verifier.Verified() {
			return n, errdefs.Newf(errdefs.ErrContentHashMismatch,
				"payload at %s does not match %s", v.path, v.want)
		}
	}
	return n, err
}

func (v *verifyReadCloser) Close() error {
	return v.rc.Close()
}
