// Package localfs implements storage.CAS on a local directory tree. It is
// the one backend the trustreason CLI opens: evidence records are written
// once, read-only, and addressed strictly by CID, so a verifier run against
// the same directory is reproducible offline.
package localfs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/trustreason/chashfmt"
	"xdao.co/trustreason/storage"
)

// CAS stores each object under <dir>/<first two cid chars>/<cid>, mode
// 0444. Objects are never rewritten after the first Put.
type CAS struct {
	dir string
}

// New constructs a filesystem CAS rooted at dir, creating it if needed.
func New(dir string) (*CAS, error) {
	if dir == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &CAS{dir: dir}, nil
}

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id, err := chashfmt.OfCID(data)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	path := c.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if os.IsExist(err) {
		return c.confirmExisting(id, data)
	}
	if err != nil {
		return cid.Undef, err
	}
	if err := writeAndClose(f, data); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	return id, nil
}

// confirmExisting handles a Put that raced or repeated an earlier Put of
// the same CID: the stored bytes must still be intact and identical.
func (c *CAS) confirmExisting(id cid.Cid, data []byte) (cid.Cid, error) {
	existing, err := c.Get(id)
	if err != nil || !bytes.Equal(existing, data) {
		return cid.Undef, storage.ErrImmutable
	}
	return id, nil
}

func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	data, err := os.ReadFile(c.pathFor(id))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	got, err := chashfmt.OfCID(data)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, storage.ErrCIDMismatch
	}
	return data, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *CAS) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(c.dir, s)
	}
	return filepath.Join(c.dir, s[:2], s)
}
