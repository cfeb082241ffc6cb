package http

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ginResponder writes archives into a gin response. Headers are only
// committed by the first body write, so a failure before any bytes go out
// can still become a JSON error.
type ginResponder struct {
	c *gin.Context
}

func (r *ginResponder) ServeFile(filename, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	r.setHeaders(filename)
	r.c.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
	r.c.Status(http.StatusOK)

	if _, err := io.Copy(r.c.Writer, f); err != nil {
		return fmt.Errorf("send archive: %w", err)
	}
	return nil
}

func (r *ginResponder) Stream(filename string, write func(w io.Writer) error) error {
	r.setHeaders(filename)
	r.c.Status(http.StatusOK)

	if err := write(r.c.Writer); err != nil {
		return err
	}
	r.c.Writer.Flush()
	return nil
}

func (r *ginResponder) setHeaders(filename string) {
	r.c.Header("Content-Type", "application/zip")
	r.c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}

// reset drops archive headers that were set but never sent
func (r *ginResponder) reset() {
	h := r.c.Writer.Header()
	h.Del("Content-Type")
	h.Del("Content-Disposition")
	h.Del("Content-Length")
}
