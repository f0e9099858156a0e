package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/evmrpc/types"
)

func testHash(b byte) types.Hash {
	var raw [32]byte
	raw[31] = b
	h, err := types.ParseHash("0x" + hexOf(raw))
	if err != nil {
		panic(err)
	}
	return h
}

func hexOf(b [32]byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 64)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xf]
	}
	return string(out)
}

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	hash := testHash(1)
	require.NoError(t, s.Set(hash, &TxState{TxHash: hash, Status: StatusPending, FirstSeen: time.Now()}))

	got, err := s.Get(hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, StatusPending, got.Status)
}

func TestMemoryStoreGetMissingReturnsNilNotError(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Get(testHash(9))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryStoreSetStoresCopyNotAliased(t *testing.T) {
	s := NewMemoryStore()
	hash := testHash(2)
	state := &TxState{TxHash: hash, RawTx: []byte{1, 2, 3}}
	require.NoError(t, s.Set(hash, state))

	state.RawTx[0] = 0xff
	got, err := s.Get(hash)
	require.NoError(t, err)
	require.Equal(t, byte(1), got.RawTx[0])
}

func TestMemoryStoreListByStatus(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set(testHash(1), &TxState{Status: StatusPending, FirstSeen: time.Now()}))
	require.NoError(t, s.Set(testHash(2), &TxState{Status: StatusConfirmed, FirstSeen: time.Now()}))

	pending, err := s.ListByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestMemoryStoreClean(t *testing.T) {
	s := NewMemoryStore()
	old := testHash(3)
	require.NoError(t, s.Set(old, &TxState{FirstSeen: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, s.Set(testHash(4), &TxState{FirstSeen: time.Now()}))

	removed, err := s.Clean(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	got, err := s.Get(old)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Delete(testHash(5)))
}
