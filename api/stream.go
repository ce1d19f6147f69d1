package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

var streamHeartbeat = 25 * time.Second

// stream pushes the whole board as a server-sent event on connect and after
// every mutation. Notifications coalesce, so a slow client only ever sees
// the latest board.
func stream(b Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		res.WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		updates, cancel := b.Subscribe()
		defer cancel()
		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		entry := logger.WithField("user", userID(c))
		entry.Debug("stream opened")
		defer entry.Debug("stream closed")

		for {
			if err := writeBoardEvent(res, b); err != nil {
				entry.WithError(err).Warn("stream write failed")
				return nil
			}
			flusher.Flush()
			if !waitForUpdate(ctx.Done(), updates, heartbeat.C, res, flusher) {
				return nil
			}
		}
	}
}

// waitForUpdate blocks until the board changes, sending comment frames on
// every heartbeat tick. It reports false once the client is gone.
func waitForUpdate(done <-chan struct{}, updates <-chan struct{}, tick <-chan time.Time, res *echo.Response, flusher http.Flusher) bool {
	for {
		select {
		case <-done:
			return false
		case <-updates:
			return true
		case <-tick:
			if _, err := res.Write([]byte(": ping\n\n")); err != nil {
				return false
			}
			flusher.Flush()
		}
	}
}

func writeBoardEvent(res *echo.Response, b Board) error {
	data, err := sonic.ConfigStd.Marshal(b.Snapshot())
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+48)
	buf = append(buf, "id: "...)
	buf = strconv.AppendInt(buf, nextTimestamp(), 10)
	buf = append(buf, "\nevent: board\ndata: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	_, err = res.Write(buf)
	return err
}
