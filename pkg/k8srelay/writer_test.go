package k8srelay

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/types"
)

func readBlob(t *testing.T, r *bytes.Reader) string {
	t.Helper()
	var lenBuf [2]byte
	_, err := r.Read(lenBuf[:])
	require.NoError(t, err)
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	_, err = r.Read(buf)
	require.NoError(t, err)
	return string(buf)
}

func TestFrameWriter_PodNewWithNameRoundTrips(t *testing.T) {
	var out bytes.Buffer
	w := NewFrameWriter(&out, 0)

	require.NoError(t, w.PodNewWithName(
		types.UID("pod-1"), ParseIPv4BE("10.0.0.1"), "checkout", "checkout-abc",
		KindDeployment, types.UID("deploy-1"), true, "prod", "v2",
	))
	require.NoError(t, w.Flush())

	r := bytes.NewReader(out.Bytes())
	tag, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, recordPodNewWithName, tag)
	assert.Equal(t, "pod-1", readBlob(t, r))

	var ipBuf [4]byte
	_, err = r.Read(ipBuf[:])
	require.NoError(t, err)
	assert.Equal(t, ParseIPv4BE("10.0.0.1"), binary.BigEndian.Uint32(ipBuf[:]))

	assert.Equal(t, "checkout", readBlob(t, r))
	assert.Equal(t, "checkout-abc", readBlob(t, r))

	kindByte, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(KindDeployment), kindByte)

	assert.Equal(t, "deploy-1", readBlob(t, r))

	hostNetByte, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(1), hostNetByte)

	assert.Equal(t, "prod", readBlob(t, r))
	assert.Equal(t, "v2", readBlob(t, r))
}

func TestFrameWriter_FlushesOnlyOnDemand(t *testing.T) {
	var out bytes.Buffer
	w := NewFrameWriter(&out, 4096)

	require.NoError(t, w.PodDelete(types.UID("pod-1")))
	assert.Zero(t, out.Len(), "unflushed writes must not reach the underlying transport")

	require.NoError(t, w.Flush())
	assert.NotZero(t, out.Len())
}

func TestFrameWriter_ResetDiscardsUnflushedBytes(t *testing.T) {
	var out bytes.Buffer
	w := NewFrameWriter(&out, 4096)

	require.NoError(t, w.PodDelete(types.UID("pod-1")))
	w.Reset()
	require.NoError(t, w.Flush())

	assert.Zero(t, out.Len(), "Reset must discard bytes buffered before it was called")
}

func TestParseIPv4BE(t *testing.T) {
	cases := []struct {
		name string
		ip   string
		want uint32
	}{
		{"loopback", "127.0.0.1", 0x0100007F},
		{"spec worked example", "10.0.0.1", 0x0100000A},
		{"empty", "", 0},
		{"malformed", "not-an-ip", 0},
		{"ipv6 rejected", "::1", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseIPv4BE(tc.ip))
		})
	}
}
