package graph

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"

	osmparser "guard_model/pkg/osm"
)

const (
	magicBytes    = "GUARDGRF"
	version       = uint32(1)
	maxNodes      = 20_000_000
	maxEdges      = 60_000_000
	maxStrings    = 1_000_000
	maxStringSize = 1 << 12
)

// fileHeader is the binary header.
type fileHeader struct {
	Magic      [8]byte
	Version    uint32
	NumNodes   uint32
	NumEdges   uint32
	NumStrings uint32 // interned tag values, index 0 is ""
	NumTagRefs uint32 // length of the flattened per-edge tag reference list
}

// WriteBinary serializes a road graph to a binary file.
// The file is written to a temporary path and renamed into place.
func WriteBinary(path string, g *Graph) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // no-op after a successful rename
	}()

	crcWriter := crc32Writer{w: f, hash: crc32.NewIEEE()}
	w := &crcWriter

	strs, refs := encodeTags(g.Tags)

	hdr := fileHeader{
		Version:    version,
		NumNodes:   g.NumNodes,
		NumEdges:   g.NumEdges,
		NumStrings: uint32(len(strs)),
		NumTagRefs: uint32(len(refs)),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if err := writeFloat64Slice(w, g.NodeLat); err != nil {
		return fmt.Errorf("write NodeLat: %w", err)
	}
	if err := writeFloat64Slice(w, g.NodeLon); err != nil {
		return fmt.Errorf("write NodeLon: %w", err)
	}
	nodeID := g.NodeID
	if nodeID == nil {
		nodeID = make([]int64, g.NumNodes)
	}
	if err := writeInt64Slice(w, nodeID); err != nil {
		return fmt.Errorf("write NodeID: %w", err)
	}

	if g.NumNodes > 0 {
		if err := writeUint32Slice(w, g.FirstOut); err != nil {
			return fmt.Errorf("write FirstOut: %w", err)
		}
	}
	if err := writeUint32Slice(w, g.Head); err != nil {
		return fmt.Errorf("write Head: %w", err)
	}
	if err := writeUint32Slice(w, g.Length); err != nil {
		return fmt.Errorf("write Length: %w", err)
	}

	for _, s := range strs {
		if err := writeString(w, s); err != nil {
			return fmt.Errorf("write string table: %w", err)
		}
	}
	if err := writeUint32Slice(w, refs); err != nil {
		return fmt.Errorf("write tag refs: %w", err)
	}

	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ReadBinary deserializes a road graph written by WriteBinary.
func ReadBinary(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	crcReader := crc32Reader{r: f, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumNodes > maxNodes {
		return nil, fmt.Errorf("NumNodes %d exceeds limit %d", hdr.NumNodes, maxNodes)
	}
	if hdr.NumEdges > maxEdges {
		return nil, fmt.Errorf("NumEdges %d exceeds limit %d", hdr.NumEdges, maxEdges)
	}
	if hdr.NumStrings > maxStrings {
		return nil, fmt.Errorf("NumStrings %d exceeds limit %d", hdr.NumStrings, maxStrings)
	}
	if uint64(hdr.NumTagRefs) > 8*uint64(maxEdges) {
		return nil, fmt.Errorf("NumTagRefs %d exceeds limit", hdr.NumTagRefs)
	}

	g := &Graph{NumNodes: hdr.NumNodes, NumEdges: hdr.NumEdges}

	if g.NodeLat, err = readFloat64Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read NodeLat: %w", err)
	}
	if g.NodeLon, err = readFloat64Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read NodeLon: %w", err)
	}
	if g.NodeID, err = readInt64Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read NodeID: %w", err)
	}

	if hdr.NumNodes > 0 {
		if g.FirstOut, err = readUint32Slice(r, int(hdr.NumNodes+1)); err != nil {
			return nil, fmt.Errorf("read FirstOut: %w", err)
		}
	}
	if g.Head, err = readUint32Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read Head: %w", err)
	}
	if g.Length, err = readUint32Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read Length: %w", err)
	}

	strs := make([]string, hdr.NumStrings)
	for i := range strs {
		if strs[i], err = readString(r); err != nil {
			return nil, fmt.Errorf("read string %d: %w", i, err)
		}
	}
	refs, err := readUint32Slice(r, int(hdr.NumTagRefs))
	if err != nil {
		return nil, fmt.Errorf("read tag refs: %w", err)
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	if g.NumNodes > 0 {
		if err := validateCSR(g.FirstOut, g.Head, g.NumNodes); err != nil {
			return nil, fmt.Errorf("CSR invalid: %w", err)
		}
	}
	if g.Tags, err = decodeTags(strs, refs, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}

	return g, nil
}

// encodeTags interns tag values and flattens each edge's tags into
// [nSpeed, speed..., nHighway, highway..., control].
func encodeTags(tags []osmparser.EdgeTags) (strs []string, refs []uint32) {
	index := map[string]uint32{"": 0}
	strs = []string{""}
	intern := func(s string) uint32 {
		if i, ok := index[s]; ok {
			return i
		}
		i := uint32(len(strs))
		index[s] = i
		strs = append(strs, s)
		return i
	}

	for _, t := range tags {
		refs = append(refs, uint32(len(t.MaxSpeed)))
		for _, s := range t.MaxSpeed {
			refs = append(refs, intern(s))
		}
		refs = append(refs, uint32(len(t.Highway)))
		for _, s := range t.Highway {
			refs = append(refs, intern(s))
		}
		refs = append(refs, intern(t.TrafficControl))
	}
	return strs, refs
}

func decodeTags(strs []string, refs []uint32, numEdges int) ([]osmparser.EdgeTags, error) {
	tags := make([]osmparser.EdgeTags, numEdges)
	pos := 0

	next := func() (uint32, error) {
		if pos >= len(refs) {
			return 0, io.ErrUnexpectedEOF
		}
		v := refs[pos]
		pos++
		return v, nil
	}
	list := func() ([]string, error) {
		n, err := next()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		if int(n) > len(refs)-pos {
			return nil, fmt.Errorf("list length %d overruns refs", n)
		}
		out := make([]string, n)
		for i := range out {
			ref, _ := next()
			if int(ref) >= len(strs) {
				return nil, fmt.Errorf("string ref %d out of range", ref)
			}
			out[i] = strs[ref]
		}
		return out, nil
	}

	for i := range tags {
		var err error
		if tags[i].MaxSpeed, err = list(); err != nil {
			return nil, fmt.Errorf("edge %d maxspeed: %w", i, err)
		}
		if tags[i].Highway, err = list(); err != nil {
			return nil, fmt.Errorf("edge %d highway: %w", i, err)
		}
		ref, err := next()
		if err != nil {
			return nil, fmt.Errorf("edge %d control: %w", i, err)
		}
		if int(ref) >= len(strs) {
			return nil, fmt.Errorf("edge %d control ref %d out of range", i, ref)
		}
		tags[i].TrafficControl = strs[ref]
	}
	if pos != len(refs) {
		return nil, fmt.Errorf("%d trailing tag refs", len(refs)-pos)
	}
	return tags, nil
}

// validateCSR checks CSR invariants.
func validateCSR(firstOut, head []uint32, numNodes uint32) error {
	if uint32(len(firstOut)) != numNodes+1 {
		return fmt.Errorf("FirstOut length %d != NumNodes+1 %d", len(firstOut), numNodes+1)
	}
	numEdges := firstOut[numNodes]
	if uint32(len(head)) != numEdges {
		return fmt.Errorf("Head length %d != FirstOut[NumNodes] %d", len(head), numEdges)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("FirstOut not monotonic at %d: %d < %d", i, firstOut[i], firstOut[i-1])
		}
	}
	for i, h := range head {
		if h >= numNodes {
			return fmt.Errorf("Head[%d]=%d >= NumNodes=%d", i, h, numNodes)
		}
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringSize {
		return "", fmt.Errorf("string length %d exceeds limit %d", n, maxStringSize)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Zero-copy I/O helpers using unsafe.Slice.

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt64Slice(w io.Writer, s []int64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt64Slice(r io.Reader, n int) ([]int64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]int64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]float64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

// CRC32 wrapping writers/readers.

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
