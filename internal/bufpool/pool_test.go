package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLengthAndClassCapacity(t *testing.T) {
	cases := []struct {
		request int
		wantCap int
	}{
		{1, 128},
		{128, 128},
		{129, 4096},
		{4096, 4096},
		{5000, 65536},
		{65536, 65536},
		{70000, 1 << 20},
	}
	p := New()
	for _, c := range cases {
		buf := p.Get(c.request)
		require.Len(t, buf, c.request)
		assert.Equal(t, c.wantCap, cap(buf), "request %d", c.request)
		p.Put(buf)
	}
}

func TestOversizedRequestBypassesPool(t *testing.T) {
	p := New()
	buf := p.Get(2 << 20)
	require.Len(t, buf, 2<<20)
	assert.Equal(t, 2<<20, cap(buf))
	p.Put(buf) // discarded silently
}

func TestPutZeroesBeforeReuse(t *testing.T) {
	p := New()
	buf := p.Get(128)
	for i := range buf {
		buf[i] = 0xAB
	}
	p.Put(buf)
	again := p.Get(128)
	for i, b := range again {
		require.Zerof(t, b, "byte %d not cleared", i)
	}
}

func TestNilAndZeroRequests(t *testing.T) {
	var p *Pool
	assert.Nil(t, p.Get(16))
	p.Put([]byte{1}) // no panic
	assert.Nil(t, New().Get(0))
}

func TestDefaultPoolHelpers(t *testing.T) {
	buf := Get(4096)
	require.Len(t, buf, 4096)
	Put(buf)
}
