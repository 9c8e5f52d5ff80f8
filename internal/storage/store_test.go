package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robwalker/pagedb/internal/dberr"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "pagedb-store-*.db")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return Open(f)
}

func TestExtendToAndReadWritePage(t *testing.T) {
	s := newTempStore(t)

	require.NoError(t, s.ExtendTo(2))

	page := make([]byte, PageSize)
	for i := range page {
		page[i] = byte(i % 251)
	}
	require.NoError(t, s.WritePage(2, page))
	require.NoError(t, s.Flush())

	got, err := s.ReadPage(2)
	require.NoError(t, err)
	require.Equal(t, page, got)
}

func TestReadAtPastEndOfFileFails(t *testing.T) {
	s := newTempStore(t)
	require.NoError(t, s.ExtendTo(0))

	buf := make([]byte, 4)
	err := s.ReadAt(5, 0, buf)
	require.Error(t, err)
	require.True(t, dberr.Is(err, dberr.Io))
}

func TestNegativePageNumberIsInvalidArgument(t *testing.T) {
	s := newTempStore(t)
	require.True(t, dberr.Is(s.ReadAt(-1, 0, make([]byte, 4)), dberr.InvalidArgument))
	require.True(t, dberr.Is(s.WriteAt(-1, 0, make([]byte, 4)), dberr.InvalidArgument))
	require.True(t, dberr.Is(s.ExtendTo(-1), dberr.InvalidArgument))
}

func TestWriteAtOutOfPageBoundsIsInvalidArgument(t *testing.T) {
	s := newTempStore(t)
	require.NoError(t, s.ExtendTo(0))
	err := s.WriteAt(0, PageSize-2, make([]byte, 4))
	require.True(t, dberr.Is(err, dberr.InvalidArgument))
}
