package cog

import "errors"

// TIFF LZW differs from the GIF flavour in compress/lzw: codes are read MSB
// first and the code width grows one code early. compress/lzw rejects these
// streams, so blocks are decoded here.

const (
	lzwClear    = 256
	lzwEOI      = 257
	lzwFirst    = 258
	lzwMaxWidth = 12
	lzwMaxCodes = 1 << lzwMaxWidth
)

var errLZWInvalidCode = errors.New("lzw: invalid code")

// lzwBits reads variable-width codes MSB first.
type lzwBits struct {
	src   []byte
	pos   int
	acc   uint32
	nbits uint
}

// next returns the next code, or ok=false when the input is exhausted.
func (b *lzwBits) next(width uint) (code int, ok bool) {
	for b.nbits < width {
		if b.pos >= len(b.src) {
			return 0, false
		}
		b.acc = b.acc<<8 | uint32(b.src[b.pos])
		b.pos++
		b.nbits += 8
	}
	b.nbits -= width
	code = int(b.acc>>b.nbits) & (1<<width - 1)
	return code, true
}

// decompressLZW decodes one TIFF LZW block. sizeHint preallocates the output.
func decompressLZW(src []byte, sizeHint int) ([]byte, error) {
	var (
		prefix [lzwMaxCodes]int32
		suffix [lzwMaxCodes]byte
		length [lzwMaxCodes]int32
	)
	for i := 0; i < 256; i++ {
		prefix[i] = -1
		suffix[i] = byte(i)
		length[i] = 1
	}

	out := make([]byte, 0, sizeHint)
	bits := &lzwBits{src: src}
	width := uint(9)
	next := lzwFirst
	prev := -1

	// emit appends the string for code and returns its first byte.
	emit := func(code int) byte {
		n := int(length[code])
		start := len(out)
		out = append(out, make([]byte, n)...)
		for i := start + n - 1; code >= 0; i-- {
			out[i] = suffix[code]
			code = int(prefix[code])
		}
		return out[start]
	}

	for {
		code, ok := bits.next(width)
		if !ok || code == lzwEOI {
			return out, nil
		}

		if code == lzwClear {
			width = 9
			next = lzwFirst
			prev = -1
			continue
		}

		if prev < 0 {
			if code > 255 {
				return nil, errLZWInvalidCode
			}
			emit(code)
			prev = code
			continue
		}

		var first byte
		switch {
		case code < next:
			first = emit(code)
		case code == next:
			first = emit(prev)
			out = append(out, first)
		default:
			return nil, errLZWInvalidCode
		}

		if next < lzwMaxCodes {
			prefix[next] = int32(prev)
			suffix[next] = first
			length[next] = length[prev] + 1
			next++
		}
		if next+1 >= 1<<width && width < lzwMaxWidth {
			width++
		}
		prev = code
	}
}
