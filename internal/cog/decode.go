package cog

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// decompress inflates one block according to the IFD's compression scheme.
func decompress(ifd *IFD, data []byte, size int) ([]byte, error) {
	switch ifd.Compression {
	case compressionNone:
		return data, nil
	case compressionLZW:
		return decompressLZW(data, size)
	case compressionDeflate, compressionDeflateOld:
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib reader: %w", err)
		}
		defer z.Close()
		buf := bytes.NewBuffer(make([]byte, 0, size))
		if _, err := io.Copy(buf, z); err != nil {
			return nil, fmt.Errorf("failed to inflate block: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupportedTIFF, ifd.Compression)
	}
}

// decodeBlock turns the raw bytes of a block into samples of the first
// channel, one float64 per pixel in row-major order.
func decodeBlock(ifd *IFD, bo binary.ByteOrder, raw []byte) ([]float64, error) {
	w := int(ifd.BlockWidth)
	h := int(ifd.BlockHeight)
	bps := ifd.BytesPerSample()

	spp := 1
	if ifd.PlanarConfig == planarConfigContiguous {
		spp = int(ifd.SamplesPerPixel)
	}
	rowBytes := w * spp * bps
	want := rowBytes * h

	data, err := decompress(ifd, raw, want)
	if err != nil {
		return nil, err
	}
	// Strips at the bottom edge may be shorter than a full block.
	rows := min(h, len(data)/rowBytes)
	if rows == 0 {
		return nil, fmt.Errorf("block holds %d bytes, expected %d", len(data), want)
	}

	switch ifd.Predictor {
	case predictorNone:
	case predictorHorizontal:
		if ifd.SampleFormat == sampleFormatFloat {
			return nil, fmt.Errorf("%w: horizontal predictor on floating point samples", ErrUnsupportedTIFF)
		}
		if ifd.Compression == compressionNone {
			data = append([]byte(nil), data...)
		}
		undoHorizontalPredictor(data[:rows*rowBytes], bo, rowBytes, spp, bps)
	default:
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupportedTIFF, ifd.Predictor)
	}

	out := make([]float64, w*h)
	for y := 0; y < rows; y++ {
		row := data[y*rowBytes : (y+1)*rowBytes]
		for x := 0; x < w; x++ {
			v, err := sample(row[x*spp*bps:], bo, bps, ifd.SampleFormat)
			if err != nil {
				return nil, err
			}
			out[y*w+x] = v
		}
	}
	return out, nil
}

// undoHorizontalPredictor reverses horizontal differencing in place. Each
// sample is stored as the difference from the same channel of the pixel to
// its left, with wraparound in the sample's integer width.
func undoHorizontalPredictor(data []byte, bo binary.ByteOrder, rowBytes, spp, bps int) {
	stride := spp * bps
	for start := 0; start+rowBytes <= len(data); start += rowBytes {
		row := data[start : start+rowBytes]
		for i := stride; i+bps <= len(row); i += bps {
			prev := row[i-stride:]
			cur := row[i:]
			switch bps {
			case 1:
				cur[0] += prev[0]
			case 2:
				bo.PutUint16(cur, bo.Uint16(cur)+bo.Uint16(prev))
			case 4:
				bo.PutUint32(cur, bo.Uint32(cur)+bo.Uint32(prev))
			case 8:
				bo.PutUint64(cur, bo.Uint64(cur)+bo.Uint64(prev))
			}
		}
	}
}

func sample(b []byte, bo binary.ByteOrder, bps int, format uint16) (float64, error) {
	switch format {
	case sampleFormatUint, 0:
		switch bps {
		case 1:
			return float64(b[0]), nil
		case 2:
			return float64(bo.Uint16(b)), nil
		case 4:
			return float64(bo.Uint32(b)), nil
		case 8:
			return float64(bo.Uint64(b)), nil
		}
	case sampleFormatInt:
		switch bps {
		case 1:
			return float64(int8(b[0])), nil
		case 2:
			return float64(int16(bo.Uint16(b))), nil
		case 4:
			return float64(int32(bo.Uint32(b))), nil
		case 8:
			return float64(int64(bo.Uint64(b))), nil
		}
	case sampleFormatFloat:
		switch bps {
		case 4:
			return float64(math.Float32frombits(bo.Uint32(b))), nil
		case 8:
			return math.Float64frombits(bo.Uint64(b)), nil
		}
	}
	return 0, fmt.Errorf("%w: sample format %d with %d bytes per sample", ErrUnsupportedTIFF, format, bps)
}
