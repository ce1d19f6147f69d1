package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var errInflatedTooLarge = errors.New("request body too large after decompression")

// GzipRequestMiddleware inflates request bodies sent with Content-Encoding
// gzip. A body that is not gzip gets 400. Reading past limit inflated bytes
// fails with errInflatedTooLarge; limit <= 0 means requestMaxSize.
func GzipRequestMiddleware(limit int64) echo.MiddlewareFunc {
	if limit <= 0 {
		limit = requestMaxSize
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isGzipEncoded(req.Header.Values(echo.HeaderContentEncoding)) {
				return next(c)
			}
			zr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				setErrorStage(c, "gzip")
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			req.Body = &inflatedBody{zr: zr, raw: req.Body, remaining: limit}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func isGzipEncoded(values []string) bool {
	for _, v := range values {
		for _, enc := range strings.Split(v, ",") {
			switch strings.ToLower(strings.TrimSpace(enc)) {
			case "gzip", "x-gzip":
				return true
			}
		}
	}
	return false
}

// inflatedBody reads through the gzip stream and stops once more than
// remaining bytes came out of it.
type inflatedBody struct {
	zr        *gzip.Reader
	raw       io.ReadCloser
	remaining int64
}

func (b *inflatedBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, errInflatedTooLarge
	}
	// one extra byte tells "exactly at the limit" apart from "over it"
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.zr.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return n + int(b.remaining), errInflatedTooLarge
	}
	return n, err
}

func (b *inflatedBody) Close() error {
	return errors.Join(b.zr.Close(), b.raw.Close())
}
