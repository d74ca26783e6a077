package cog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// RangeReader reads byte ranges of a remote file.
type RangeReader interface {
	ReadRange(ctx context.Context, offset, length int64) ([]byte, error)
}

// HTTPRangeReader reads ranges of one URL with HTTP Range requests.
type HTTPRangeReader struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPRangeReader creates a range reader for url.
func NewHTTPRangeReader(url string, httpClient *http.Client, logger *slog.Logger) *HTTPRangeReader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPRangeReader{url: url, httpClient: httpClient, logger: logger}
}

// ReadRange fetches [offset, offset+length). Servers that ignore the Range
// header and answer 200 are handled by slicing the full body. A range that
// starts past the end of the file returns io.ErrUnexpectedEOF.
func (h *HTTPRangeReader) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	req.Header.Set("User-Agent", "imagery-check/1.0")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("range request to %s failed: %w", h.url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		data, err := io.ReadAll(io.LimitReader(resp.Body, length))
		if err != nil {
			return nil, fmt.Errorf("failed to read range body: %w", err)
		}
		return data, nil

	case http.StatusOK:
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, length))
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return data, nil

	case http.StatusRequestedRangeNotSatisfiable:
		return nil, io.ErrUnexpectedEOF

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		h.logger.ErrorContext(ctx, "asset returned non-200 status",
			slog.String("url", h.url),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("%s returned status %d: %s", h.url, resp.StatusCode, string(body))
	}
}

// BytesRangeReader serves ranges from an in-memory file.
type BytesRangeReader []byte

// ReadRange returns the requested slice, truncated at the end of the data.
func (b BytesRangeReader) ReadRange(_ context.Context, offset, length int64) ([]byte, error) {
	if offset >= int64(len(b)) {
		return nil, io.ErrUnexpectedEOF
	}
	end := min(offset+length, int64(len(b)))
	return b[offset:end], nil
}

// headerChunk is the size of the first read of a file. COG headers and tile
// indexes sit at the start of the file, so one request usually covers them.
const headerChunk = 64 << 10

// headerReader exposes the start of a remote file as an io.ReadSeeker for
// the IFD parser, extending its buffer on demand.
type headerReader struct {
	ctx context.Context
	src RangeReader
	buf []byte
	eof bool
	pos int64
}

func newHeaderReader(ctx context.Context, src RangeReader) *headerReader {
	return &headerReader{ctx: ctx, src: src}
}

func (h *headerReader) ensure(end int64) error {
	for int64(len(h.buf)) < end && !h.eof {
		want := max(int64(headerChunk), int64(len(h.buf)))
		if end-int64(len(h.buf)) > want {
			want = end - int64(len(h.buf))
		}
		data, err := h.src.ReadRange(h.ctx, int64(len(h.buf)), want)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				h.eof = true
				break
			}
			return err
		}
		if int64(len(data)) < want {
			h.eof = true
		}
		h.buf = append(h.buf, data...)
	}
	return nil
}

func (h *headerReader) Read(p []byte) (int, error) {
	if err := h.ensure(h.pos + int64(len(p))); err != nil {
		return 0, err
	}
	if h.pos >= int64(len(h.buf)) {
		return 0, io.EOF
	}
	n := copy(p, h.buf[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *headerReader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		h.pos = offset
	case io.SeekCurrent:
		h.pos += offset
	default:
		return 0, errors.New("headerReader: unsupported whence")
	}
	if h.pos < 0 {
		return 0, errors.New("headerReader: negative position")
	}
	return h.pos, nil
}
