// Package cogtest writes small GeoTIFF files for tests: uint16 single-band
// images, tiled or striped, with optional LZW or deflate compression and the
// horizontal predictor.
package cogtest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Compression values understood by Encode.
const (
	None    = 1
	LZW     = 5
	Deflate = 8
)

// Options describes the layout of the file to write.
type Options struct {
	Width  int
	Height int

	// Tiled selects tiles of BlockWidth x BlockHeight; otherwise strips of
	// BlockHeight rows are written.
	Tiled       bool
	BlockWidth  int
	BlockHeight int

	Compression uint16
	Predictor   bool
	BigEndian   bool

	// EPSG and Transform (a, b, c, d, e, f as in proj:transform) are written
	// as GeoTIFF tags when set.
	EPSG      int
	Transform []float64
	NoData    *float64
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Encode writes pix (row-major, Width*Height values) as a TIFF file.
func Encode(opts Options, pix []uint16) ([]byte, error) {
	if len(pix) != opts.Width*opts.Height {
		return nil, fmt.Errorf("cogtest: %d pixels for %dx%d image", len(pix), opts.Width, opts.Height)
	}
	if opts.BlockHeight <= 0 {
		opts.BlockHeight = opts.Height
	}
	if !opts.Tiled {
		opts.BlockWidth = opts.Width
	}
	if opts.Compression == 0 {
		opts.Compression = None
	}

	var bo byteOrder = binary.LittleEndian
	magic := []byte("II")
	if opts.BigEndian {
		bo = binary.BigEndian
		magic = []byte("MM")
	}

	blocks, err := encodeBlocks(opts, bo, pix)
	if err != nil {
		return nil, err
	}

	offsetsTag, countsTag := uint16(273), uint16(279)
	if opts.Tiled {
		offsetsTag, countsTag = 324, 325
	}

	counts := make([]uint32, len(blocks))
	for i, b := range blocks {
		counts[i] = uint32(len(b))
	}

	entries := []entry{
		longs(bo, 256, uint32(opts.Width)),
		longs(bo, 257, uint32(opts.Height)),
		shorts(bo, 258, 16),
		shorts(bo, 259, opts.Compression),
		shorts(bo, 262, 1),
		shorts(bo, 277, 1),
		shorts(bo, 339, 1),
		longs(bo, offsetsTag, make([]uint32, len(blocks))...),
		longs(bo, countsTag, counts...),
	}
	if opts.Tiled {
		entries = append(entries, longs(bo, 322, uint32(opts.BlockWidth)), longs(bo, 323, uint32(opts.BlockHeight)))
	} else {
		entries = append(entries, longs(bo, 278, uint32(opts.BlockHeight)))
	}
	if opts.Predictor {
		entries = append(entries, shorts(bo, 317, 2))
	}
	if len(opts.Transform) == 6 {
		t := opts.Transform
		entries = append(entries,
			doubles(bo, 33550, t[0], -t[4], 0),
			doubles(bo, 33922, 0, 0, 0, t[2], t[5], 0),
		)
	}
	if opts.EPSG != 0 {
		model, key := uint16(1), uint16(3072)
		if opts.EPSG == 4326 {
			model, key = 2, 2048
		}
		entries = append(entries, shorts(bo, 34735, 1, 1, 0, 2, 1024, 0, 1, model, key, 0, 1, uint16(opts.EPSG)))
	}
	if opts.NoData != nil {
		s := strconv.FormatFloat(*opts.NoData, 'f', -1, 64) + "\x00"
		entries = append(entries, entry{tag: 42113, typ: 2, count: uint32(len(s)), data: []byte(s)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// Layout: header, IFD, out-of-line values, block data.
	ifdSize := 2 + 12*len(entries) + 4
	extOffset := 8 + ifdSize
	extSize := 0
	for _, e := range entries {
		if len(e.data) > 4 {
			extSize += len(e.data) + len(e.data)%2
		}
	}
	dataOffset := extOffset + extSize

	offsets := make([]uint32, len(blocks))
	pos := dataOffset
	for i, b := range blocks {
		offsets[i] = uint32(pos)
		pos += len(b)
	}
	for i := range entries {
		if entries[i].tag == offsetsTag {
			entries[i] = longs(bo, offsetsTag, offsets...)
		}
	}

	var buf bytes.Buffer
	buf.Write(magic)
	writeUint16(&buf, bo, 42)
	writeUint32(&buf, bo, 8)

	writeUint16(&buf, bo, uint16(len(entries)))
	ext := extOffset
	var extData bytes.Buffer
	for _, e := range entries {
		writeUint16(&buf, bo, e.tag)
		writeUint16(&buf, bo, e.typ)
		writeUint32(&buf, bo, e.count)
		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			buf.Write(inline[:])
			continue
		}
		writeUint32(&buf, bo, uint32(ext))
		extData.Write(e.data)
		if len(e.data)%2 == 1 {
			extData.WriteByte(0)
		}
		ext += len(e.data) + len(e.data)%2
	}
	writeUint32(&buf, bo, 0)
	buf.Write(extData.Bytes())

	for _, b := range blocks {
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func encodeBlocks(opts Options, bo byteOrder, pix []uint16) ([][]byte, error) {
	bw, bh := opts.BlockWidth, opts.BlockHeight
	across := (opts.Width + bw - 1) / bw
	down := (opts.Height + bh - 1) / bh

	var blocks [][]byte
	for by := 0; by < down; by++ {
		for bx := 0; bx < across; bx++ {
			rows := bh
			if !opts.Tiled {
				rows = min(bh, opts.Height-by*bh)
			}

			raw := make([]byte, 0, bw*rows*2)
			for y := 0; y < rows; y++ {
				prev := uint16(0)
				for x := 0; x < bw; x++ {
					var v uint16
					px, py := bx*bw+x, by*bh+y
					if px < opts.Width && py < opts.Height {
						v = pix[py*opts.Width+px]
					}
					out := v
					if opts.Predictor {
						out = v - prev
						prev = v
					}
					raw = bo.AppendUint16(raw, out)
				}
			}

			b, err := compress(opts.Compression, raw)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}

func compress(scheme uint16, raw []byte) ([]byte, error) {
	switch scheme {
	case None:
		return raw, nil
	case Deflate:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case LZW:
		return encodeLZWLiterals(raw), nil
	default:
		return nil, fmt.Errorf("cogtest: unsupported compression %d", scheme)
	}
}

// encodeLZWLiterals writes a valid TIFF LZW stream made only of literal
// codes, clearing the table often enough that codes stay 9 bits wide.
func encodeLZWLiterals(data []byte) []byte {
	var out []byte
	var acc uint32
	var nbits uint
	put := func(code int) {
		acc = acc<<9 | uint32(code)
		nbits += 9
		for nbits >= 8 {
			out = append(out, byte(acc>>(nbits-8)))
			nbits -= 8
		}
	}

	put(256)
	for i, b := range data {
		if i > 0 && i%250 == 0 {
			put(256)
		}
		put(int(b))
	}
	put(257)
	if nbits > 0 {
		out = append(out, byte(acc<<(8-nbits)))
	}
	return out
}

func shorts(bo byteOrder, tag uint16, values ...uint16) entry {
	data := make([]byte, 0, 2*len(values))
	for _, v := range values {
		data = bo.AppendUint16(data, v)
	}
	return entry{tag: tag, typ: 3, count: uint32(len(values)), data: data}
}

func longs(bo byteOrder, tag uint16, values ...uint32) entry {
	data := make([]byte, 0, 4*len(values))
	for _, v := range values {
		data = bo.AppendUint32(data, v)
	}
	return entry{tag: tag, typ: 4, count: uint32(len(values)), data: data}
}

func doubles(bo byteOrder, tag uint16, values ...float64) entry {
	data := make([]byte, 0, 8*len(values))
	for _, v := range values {
		data = bo.AppendUint64(data, math.Float64bits(v))
	}
	return entry{tag: tag, typ: 12, count: uint32(len(values)), data: data}
}

func writeUint16(buf *bytes.Buffer, bo byteOrder, v uint16) {
	buf.Write(bo.AppendUint16(nil, v))
}

func writeUint32(buf *bytes.Buffer, bo byteOrder, v uint32) {
	buf.Write(bo.AppendUint32(nil, v))
}
