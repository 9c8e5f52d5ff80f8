// Package storage provides a thin fixed-page abstraction over a single
// random-access file. It never caches page contents and never interprets
// them; callers own the meaning of every byte.
package storage

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/robwalker/pagedb/internal/dberr"
)

// PageSize is the fixed size of every page, including the header page.
const PageSize = 4096

// PageNumber is a signed 32-bit page index. Page 0 is the permanently
// reserved header page. Negative values are never valid.
type PageNumber int32

// MaxPageNumber is the largest page number the format can address.
const MaxPageNumber = PageNumber(1<<31 - 1)

// Store is a fixed-page file abstraction: read-page, write-at-offset,
// extend-file, flush. It holds no cache and makes no attempt to buffer
// writes beyond what the operating system already does for a *os.File.
type Store struct {
	file *os.File
}

// Open wraps an already-open file for page-addressed access.
func Open(file *os.File) *Store {
	return &Store{file: file}
}

// ReadPage reads the full PageSize bytes of page n.
func (s *Store) ReadPage(n PageNumber) ([]byte, error) {
	buf := make([]byte, PageSize)
	if err := s.ReadAt(n, 0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadAt reads len(buf) bytes from page n starting at byteOffset within
// the page.
func (s *Store) ReadAt(n PageNumber, byteOffset int, buf []byte) error {
	if n < 0 {
		return dberr.New("storage.ReadAt", dberr.InvalidArgument)
	}
	if byteOffset < 0 || byteOffset+len(buf) > PageSize {
		return dberr.New("storage.ReadAt", dberr.InvalidArgument)
	}
	offset := int64(n)*PageSize + int64(byteOffset)
	if _, err := s.file.ReadAt(buf, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return dberr.Wrap("storage.ReadAt", dberr.Io, errors.Wrapf(err, "page %d past end of file", n))
		}
		return dberr.Wrap("storage.ReadAt", dberr.Io, errors.Wrapf(err, "page %d", n))
	}
	return nil
}

// WriteAt writes bytes into page n starting at byteOffset within the page.
// The caller is responsible for extending the file first.
func (s *Store) WriteAt(n PageNumber, byteOffset int, bytes []byte) error {
	if n < 0 {
		return dberr.New("storage.WriteAt", dberr.InvalidArgument)
	}
	if byteOffset < 0 || byteOffset+len(bytes) > PageSize {
		return dberr.New("storage.WriteAt", dberr.InvalidArgument)
	}
	offset := int64(n)*PageSize + int64(byteOffset)
	if _, err := s.file.WriteAt(bytes, offset); err != nil {
		return dberr.Wrap("storage.WriteAt", dberr.Io, errors.Wrapf(err, "page %d", n))
	}
	return nil
}

// WritePage overwrites the full contents of page n. data must be exactly
// PageSize bytes.
func (s *Store) WritePage(n PageNumber, data []byte) error {
	if len(data) != PageSize {
		return dberr.New("storage.WritePage", dberr.InvalidArgument)
	}
	return s.WriteAt(n, 0, data)
}

// ExtendTo grows the file so that page n exists, zero-filling any new
// pages. It is a no-op if the file is already large enough.
func (s *Store) ExtendTo(n PageNumber) error {
	if n < 0 {
		return dberr.New("storage.ExtendTo", dberr.InvalidArgument)
	}
	info, err := s.file.Stat()
	if err != nil {
		return dberr.Wrap("storage.ExtendTo", dberr.Io, errors.Wrap(err, "stat"))
	}
	want := (int64(n) + 1) * PageSize
	if info.Size() >= want {
		return nil
	}
	if err := s.file.Truncate(want); err != nil {
		return dberr.Wrap("storage.ExtendTo", dberr.Io, errors.Wrapf(err, "truncate to %d bytes", want))
	}
	return nil
}

// Flush issues a durable write-out of everything written so far.
func (s *Store) Flush() error {
	if err := s.file.Sync(); err != nil {
		return dberr.Wrap("storage.Flush", dberr.Io, errors.Wrap(err, "fsync"))
	}
	return nil
}

// File exposes the underlying *os.File.
func (s *Store) File() *os.File {
	return s.file
}
