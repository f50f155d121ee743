package k8srelay

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"k8s.io/apimachinery/pkg/types"
)

// Writer is the typed record sink exposed to the Correlator. It is
// intentionally narrow: exactly the three record kinds the reducer
// understands. The byte-level encoding of a concrete Writer is a declared
// external concern (SPEC_FULL.md §1) — FrameWriter below is a reference
// implementation used by tests and by the default server wiring, not the
// only legal one.
type Writer interface {
	PodNewWithName(uid types.UID, ipv4BE uint32, dnsName, podName string, ownerKind OwnerKind, ownerUID types.UID, hostNetwork bool, namespace, version string) error
	PodContainer(podUID types.UID, containerID, name, image string) error
	PodDelete(uid types.UID) error

	// Flush pushes any buffered records to the underlying transport. The
	// session loop calls Flush after every dispatched event, never holding
	// records across events (SPEC_FULL.md §4.5).
	Flush() error

	// Reset discards any buffered-but-unflushed bytes without writing them.
	// Called once when a session ends, whether cleanly or via resync.
	Reset()
}

// record kinds, used only for the wire tag byte FrameWriter emits.
const (
	recordPodNewWithName byte = 1
	recordPodContainer   byte = 2
	recordPodDelete      byte = 3
)

// FrameWriter is a Writer that encodes each record as a tag byte followed by
// a sequence of length-prefixed byte blobs (uint16 length, then bytes) —
// matching the "no null-termination assumed" wire contract in
// SPEC_FULL.md §4.7. It buffers writes with bufio.Writer and reaches the
// underlying io.Writer on Flush, or earlier when the buffer fills.
type FrameWriter struct {
	buf *bufio.Writer
	out io.Writer
}

// NewFrameWriter wraps out with a buffer sized bufSize bytes.
func NewFrameWriter(out io.Writer, bufSize int) *FrameWriter {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &FrameWriter{
		buf: bufio.NewWriterSize(out, bufSize),
		out: out,
	}
}

func (w *FrameWriter) writeBlob(s string) error {
	if len(s) > 0xFFFF {
		s = s[:0xFFFF]
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	if _, err := w.buf.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.buf.WriteString(s)
	return err
}

func (w *FrameWriter) PodNewWithName(uid types.UID, ipv4BE uint32, dnsName, podName string, ownerKind OwnerKind, ownerUID types.UID, hostNetwork bool, namespace, version string) error {
	if err := w.buf.WriteByte(recordPodNewWithName); err != nil {
		return err
	}
	if err := w.writeBlob(string(uid)); err != nil {
		return err
	}
	var ipBuf [4]byte
	binary.BigEndian.PutUint32(ipBuf[:], ipv4BE)
	if _, err := w.buf.Write(ipBuf[:]); err != nil {
		return err
	}
	if err := w.writeBlob(dnsName); err != nil {
		return err
	}
	if err := w.writeBlob(podName); err != nil {
		return err
	}
	if err := w.buf.WriteByte(byte(ownerKind)); err != nil {
		return err
	}
	if err := w.writeBlob(string(ownerUID)); err != nil {
		return err
	}
	hostNetByte := byte(0)
	if hostNetwork {
		hostNetByte = 1
	}
	if err := w.buf.WriteByte(hostNetByte); err != nil {
		return err
	}
	if err := w.writeBlob(namespace); err != nil {
		return err
	}
	return w.writeBlob(version)
}

func (w *FrameWriter) PodContainer(podUID types.UID, containerID, name, image string) error {
	if err := w.buf.WriteByte(recordPodContainer); err != nil {
		return err
	}
	if err := w.writeBlob(string(podUID)); err != nil {
		return err
	}
	if err := w.writeBlob(containerID); err != nil {
		return err
	}
	if err := w.writeBlob(name); err != nil {
		return err
	}
	return w.writeBlob(image)
}

func (w *FrameWriter) PodDelete(uid types.UID) error {
	if err := w.buf.WriteByte(recordPodDelete); err != nil {
		return err
	}
	return w.writeBlob(string(uid))
}

func (w *FrameWriter) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush frame writer: %w", err)
	}
	return nil
}

func (w *FrameWriter) Reset() {
	w.buf.Reset(w.out)
}

// ParseIPv4BE parses a dotted-decimal IPv4 string into the 32-bit integer
// the source's inet_addr() produces on a little-endian host: the address
// octets read in order become the *low-order* byte first, so "10.0.0.1"
// yields 0x0100000A, not 0x0A000001. An empty or unparseable address yields
// 0 rather than an error, matching inet_addr's own failure behavior —
// flagged in SPEC_FULL.md §9 as a potential silent-data-loss path, not
// swallowed invisibly: callers that care should check ip != "" before
// relying on a non-zero result.
func ParseIPv4BE(ip string) uint32 {
	if ip == "" {
		return 0
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return 0
	}
	v4 := parsed.To4()
	if v4 == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(v4)
}
