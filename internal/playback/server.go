// Package playback serves stored media payloads to a playback surface over
// HTTP with byte-range support.
package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Payload is an immutable stored blob. Data is served in place.
type Payload struct {
	ID          string
	ContentType string
	Data        []byte
}

func (p Payload) etag() string {
	return strconv.Quote(p.ID)
}

// ServePayload writes p, or the single range requested. Payloads never change
// after they are stored, so the id doubles as a strong ETag. Only write errors
// are returned; malformed and unsatisfiable ranges are answered directly.
func ServePayload(w http.ResponseWriter, r *http.Request, p Payload) error {
	size := int64(len(p.Data))
	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	h.Set("ETag", p.etag())
	h.Set("Cache-Control", "private, max-age=31536000, immutable")

	if match := r.Header.Get("If-None-Match"); match != "" && match == p.etag() {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	rng, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the whole payload is sent.
		rng = nil
	}

	reader := bytes.NewReader(p.Data)
	if rng == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		_, err := io.Copy(w, reader)
		return err
	}

	h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	h.Set("Content-Range", rng.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}
	_, err = io.Copy(w, io.NewSectionReader(reader, rng.Start, rng.Length()))
	return err
}
