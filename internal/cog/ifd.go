package cog

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// TIFF tag IDs.
const (
	tagImageWidth         = 256
	tagImageLength        = 257
	tagBitsPerSample      = 258
	tagCompression        = 259
	tagPhotometric        = 262
	tagStripOffsets       = 273
	tagSamplesPerPixel    = 277
	tagRowsPerStrip       = 278
	tagStripByteCounts    = 279
	tagPlanarConfig       = 284
	tagPredictor          = 317
	tagTileWidth          = 322
	tagTileLength         = 323
	tagTileOffsets        = 324
	tagTileByteCounts     = 325
	tagSampleFormat       = 339
	tagModelPixelScaleTag = 33550
	tagModelTiepointTag   = 33922
	tagModelTransformTag  = 34264
	tagGeoKeyDirectoryTag = 34735
	tagGDALNoData         = 42113
)

// TIFF data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndef     = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

// Compression schemes.
const (
	compressionNone        = 1
	compressionLZW         = 5
	compressionDeflate     = 8
	compressionDeflateOld  = 32946
	predictorNone          = 1
	predictorHorizontal    = 2
	sampleFormatUint       = 1
	sampleFormatInt        = 2
	sampleFormatFloat      = 3
	planarConfigContiguous = 1
)

// IFD represents a parsed TIFF Image File Directory. Striped images are
// described with the same block fields as tiled ones: a strip is a block as
// wide as the image and RowsPerStrip tall.
type IFD struct {
	Width           uint32
	Height          uint32
	BlockWidth      uint32
	BlockHeight     uint32
	Tiled           bool
	BitsPerSample   []uint16
	SamplesPerPixel uint16
	SampleFormat    uint16
	Compression     uint16
	Predictor       uint16
	Photometric     uint16
	PlanarConfig    uint16
	BlockOffsets    []uint64
	BlockByteCounts []uint64
	ModelTiepoint   []float64
	ModelPixelScale []float64
	ModelTransform  []float64
	GeoKeys         []uint16
	NoData          *float64
}

// BlocksAcross returns the number of blocks in the horizontal direction.
func (ifd *IFD) BlocksAcross() int {
	return int((ifd.Width + ifd.BlockWidth - 1) / ifd.BlockWidth)
}

// BlocksDown returns the number of blocks in the vertical direction.
func (ifd *IFD) BlocksDown() int {
	return int((ifd.Height + ifd.BlockHeight - 1) / ifd.BlockHeight)
}

// BytesPerSample returns the size of one sample of the first channel.
func (ifd *IFD) BytesPerSample() int {
	if len(ifd.BitsPerSample) == 0 {
		return 1
	}
	return int(ifd.BitsPerSample[0]+7) / 8
}

// validate checks the parts of the layout the reader depends on.
func (ifd *IFD) validate() error {
	if ifd.Width == 0 || ifd.Height == 0 {
		return fmt.Errorf("%w: image has no pixels", ErrUnsupportedTIFF)
	}
	if ifd.BlockWidth == 0 || ifd.BlockHeight == 0 {
		return fmt.Errorf("%w: no tile or strip layout", ErrUnsupportedTIFF)
	}
	blocks := ifd.BlocksAcross() * ifd.BlocksDown()
	if ifd.PlanarConfig != planarConfigContiguous {
		blocks *= int(ifd.SamplesPerPixel)
	}
	if len(ifd.BlockOffsets) < blocks || len(ifd.BlockByteCounts) < blocks {
		return fmt.Errorf("%w: expected %d block offsets, got %d", ErrUnsupportedTIFF, blocks, len(ifd.BlockOffsets))
	}
	for _, bps := range ifd.BitsPerSample {
		if bps != ifd.BitsPerSample[0] {
			return fmt.Errorf("%w: mixed bits per sample %v", ErrUnsupportedTIFF, ifd.BitsPerSample)
		}
	}
	switch ifd.BytesPerSample() {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupportedTIFF, ifd.BitsPerSample[0])
	}
	return nil
}

// tiffEntry is a raw TIFF directory entry.
type tiffEntry struct {
	Tag      uint16
	DataType uint16
	Count    uint64
	Value    []byte // raw value bytes or inline value
}

// parseTIFF reads the first IFD (the full-resolution image) of a TIFF file.
// Overview IFDs are not needed for window reads at native resolution.
func parseTIFF(r io.ReadSeeker) (IFD, binary.ByteOrder, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return IFD{}, nil, fmt.Errorf("reading TIFF header: %w", err)
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return IFD{}, nil, fmt.Errorf("%w: invalid byte order %x", ErrUnsupportedTIFF, header[0:2])
	}

	magic := bo.Uint16(header[2:4])
	isBigTIFF := magic == 43
	if magic != 42 && magic != 43 {
		return IFD{}, nil, fmt.Errorf("%w: invalid magic %d", ErrUnsupportedTIFF, magic)
	}

	var firstIFDOffset uint64
	if isBigTIFF {
		// BigTIFF: bytes 4-5 = offset size (8), bytes 6-7 = always 0, bytes 8-15 = first IFD offset
		var bigHeader [8]byte
		if _, err := io.ReadFull(r, bigHeader[:]); err != nil {
			return IFD{}, nil, fmt.Errorf("reading BigTIFF header: %w", err)
		}
		firstIFDOffset = bo.Uint64(bigHeader[:])
	} else {
		firstIFDOffset = uint64(bo.Uint32(header[4:8]))
	}
	if firstIFDOffset == 0 {
		return IFD{}, nil, fmt.Errorf("%w: file contains no IFDs", ErrUnsupportedTIFF)
	}

	ifd, err := parseOneIFD(r, bo, firstIFDOffset, isBigTIFF)
	if err != nil {
		return IFD{}, nil, fmt.Errorf("parsing IFD at offset %d: %w", firstIFDOffset, err)
	}
	if err := ifd.validate(); err != nil {
		return IFD{}, nil, err
	}
	return ifd, bo, nil
}

func parseOneIFD(r io.ReadSeeker, bo binary.ByteOrder, offset uint64, bigTIFF bool) (IFD, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return IFD{}, err
	}

	var numEntries uint64
	if bigTIFF {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return IFD{}, err
		}
		numEntries = bo.Uint64(buf[:])
	} else {
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return IFD{}, err
		}
		numEntries = uint64(bo.Uint16(buf[:]))
	}

	entrySize := 12
	if bigTIFF {
		entrySize = 20
	}

	block := make([]byte, int(numEntries)*entrySize)
	if _, err := io.ReadFull(r, block); err != nil {
		return IFD{}, err
	}

	entries := make([]tiffEntry, numEntries)
	for i := range entries {
		entries[i] = parseTiffEntry(block[i*entrySize:(i+1)*entrySize], bo, bigTIFF)
	}

	// Resolve entries that point to external data.
	for i := range entries {
		if err := resolveEntry(r, bo, &entries[i], bigTIFF); err != nil {
			return IFD{}, fmt.Errorf("resolving entry tag %d: %w", entries[i].Tag, err)
		}
	}

	return buildIFD(entries, bo), nil
}

func parseTiffEntry(buf []byte, bo binary.ByteOrder, bigTIFF bool) tiffEntry {
	tag := bo.Uint16(buf[0:2])
	dt := bo.Uint16(buf[2:4])

	var count uint64
	var valueBytes []byte

	if bigTIFF {
		count = bo.Uint64(buf[4:12])
		valueBytes = make([]byte, 8)
		copy(valueBytes, buf[12:20])
	} else {
		count = uint64(bo.Uint32(buf[4:8]))
		valueBytes = make([]byte, 4)
		copy(valueBytes, buf[8:12])
	}

	return tiffEntry{
		Tag:      tag,
		DataType: dt,
		Count:    count,
		Value:    valueBytes,
	}
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndef:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble, dtLong8, dtSLong8, dtIFD8:
		return 8
	default:
		return 1
	}
}

// resolveEntry reads the actual data for an entry if it doesn't fit inline.
func resolveEntry(r io.ReadSeeker, bo binary.ByteOrder, e *tiffEntry, bigTIFF bool) error {
	totalSize := int(e.Count) * dataTypeSize(e.DataType)

	inlineSize := 4
	if bigTIFF {
		inlineSize = 8
	}

	if totalSize <= inlineSize {
		return nil
	}

	var dataOffset uint64
	if bigTIFF {
		dataOffset = bo.Uint64(e.Value)
	} else {
		dataOffset = uint64(bo.Uint32(e.Value))
	}

	if _, err := r.Seek(int64(dataOffset), io.SeekStart); err != nil {
		return err
	}

	data := make([]byte, totalSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	e.Value = data
	return nil
}

func buildIFD(entries []tiffEntry, bo binary.ByteOrder) IFD {
	var ifd IFD
	ifd.SamplesPerPixel = 1
	ifd.PlanarConfig = planarConfigContiguous
	ifd.Compression = compressionNone
	ifd.Predictor = predictorNone
	ifd.SampleFormat = sampleFormatUint

	var rowsPerStrip uint32
	var stripOffsets, stripByteCounts []uint64

	for _, e := range entries {
		switch e.Tag {
		case tagImageWidth:
			ifd.Width = getUint32(e, bo)
		case tagImageLength:
			ifd.Height = getUint32(e, bo)
		case tagTileWidth:
			ifd.BlockWidth = getUint32(e, bo)
			ifd.Tiled = true
		case tagTileLength:
			ifd.BlockHeight = getUint32(e, bo)
		case tagRowsPerStrip:
			rowsPerStrip = getUint32(e, bo)
		case tagBitsPerSample:
			ifd.BitsPerSample = getUint16Slice(e, bo)
		case tagSamplesPerPixel:
			ifd.SamplesPerPixel = getUint16Val(e, bo)
		case tagSampleFormat:
			ifd.SampleFormat = getUint16Val(e, bo)
		case tagCompression:
			ifd.Compression = getUint16Val(e, bo)
		case tagPredictor:
			ifd.Predictor = getUint16Val(e, bo)
		case tagPhotometric:
			ifd.Photometric = getUint16Val(e, bo)
		case tagPlanarConfig:
			ifd.PlanarConfig = getUint16Val(e, bo)
		case tagTileOffsets:
			ifd.BlockOffsets = getUint64Slice(e, bo)
		case tagTileByteCounts:
			ifd.BlockByteCounts = getUint64Slice(e, bo)
		case tagStripOffsets:
			stripOffsets = getUint64Slice(e, bo)
		case tagStripByteCounts:
			stripByteCounts = getUint64Slice(e, bo)
		case tagModelTiepointTag:
			ifd.ModelTiepoint = getFloat64Slice(e, bo)
		case tagModelPixelScaleTag:
			ifd.ModelPixelScale = getFloat64Slice(e, bo)
		case tagModelTransformTag:
			ifd.ModelTransform = getFloat64Slice(e, bo)
		case tagGeoKeyDirectoryTag:
			ifd.GeoKeys = getUint16Slice(e, bo)
		case tagGDALNoData:
			s := strings.TrimRight(string(e.Value[:min(int(e.Count), len(e.Value))]), "\x00 ")
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				ifd.NoData = &v
			}
		}
	}

	if len(ifd.BitsPerSample) == 0 {
		ifd.BitsPerSample = []uint16{1}
	}

	if !ifd.Tiled {
		ifd.BlockWidth = ifd.Width
		ifd.BlockHeight = rowsPerStrip
		if rowsPerStrip == 0 || rowsPerStrip > ifd.Height {
			ifd.BlockHeight = ifd.Height
		}
		ifd.BlockOffsets = stripOffsets
		ifd.BlockByteCounts = stripByteCounts
	}

	return ifd
}

func getUint16Val(e tiffEntry, bo binary.ByteOrder) uint16 {
	switch e.DataType {
	case dtShort:
		return bo.Uint16(e.Value)
	case dtLong:
		return uint16(bo.Uint32(e.Value))
	default:
		return uint16(e.Value[0])
	}
}

func getUint32(e tiffEntry, bo binary.ByteOrder) uint32 {
	switch e.DataType {
	case dtShort:
		return uint32(bo.Uint16(e.Value))
	case dtLong:
		return bo.Uint32(e.Value)
	case dtLong8:
		return uint32(bo.Uint64(e.Value))
	default:
		return uint32(e.Value[0])
	}
}

func getUint16Slice(e tiffEntry, bo binary.ByteOrder) []uint16 {
	n := int(e.Count)
	result := make([]uint16, n)
	for i := 0; i < n; i++ {
		if e.DataType == dtByte {
			result[i] = uint16(e.Value[i])
			continue
		}
		result[i] = bo.Uint16(e.Value[i*2 : i*2+2])
	}
	return result
}

func getUint64Slice(e tiffEntry, bo binary.ByteOrder) []uint64 {
	n := int(e.Count)
	result := make([]uint64, n)
	switch e.DataType {
	case dtLong:
		for i := 0; i < n; i++ {
			result[i] = uint64(bo.Uint32(e.Value[i*4 : i*4+4]))
		}
	case dtLong8, dtIFD8:
		for i := 0; i < n; i++ {
			result[i] = bo.Uint64(e.Value[i*8 : i*8+8])
		}
	case dtShort:
		for i := 0; i < n; i++ {
			result[i] = uint64(bo.Uint16(e.Value[i*2 : i*2+2]))
		}
	}
	return result
}

func getFloat64Slice(e tiffEntry, bo binary.ByteOrder) []float64 {
	n := int(e.Count)
	result := make([]float64, n)
	size := dataTypeSize(e.DataType)
	for i := 0; i < n; i++ {
		off := i * size
		switch e.DataType {
		case dtDouble:
			result[i] = math.Float64frombits(bo.Uint64(e.Value[off : off+8]))
		case dtFloat:
			result[i] = float64(math.Float32frombits(bo.Uint32(e.Value[off : off+4])))
		}
	}
	return result
}
