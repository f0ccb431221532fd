// Package thumbnail renders cropped, scaled JPEG previews of photo payloads.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/heimdex/clipreel/internal/catalog"
)

const (
	DefaultSize    = 320
	DefaultQuality = 80
	MIMEType       = "image/jpeg"

	// MaxPixels caps the decoded size of a photo.
	MaxPixels = 64 << 20
)

var (
	ErrUnsupported = errors.New("thumbnail: only photos can be rendered")
	ErrTooLarge    = errors.New("thumbnail: photo dimensions too large")
)

type Renderer struct {
	size    int
	quality int
	cache   *cache.Cache
}

// NewRenderer returns a renderer fitting thumbnails into a size x size box.
// Rendered thumbnails are cached for ttl.
func NewRenderer(size int, ttl time.Duration) *Renderer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Renderer{
		size:    size,
		quality: DefaultQuality,
		cache:   cache.New(ttl, 2*ttl),
	}
}

// Render returns a JPEG of item's photo with its crop applied.
func (r *Renderer) Render(item *catalog.MediaItem) ([]byte, error) {
	if item.Type != catalog.MediaTypePhoto {
		return nil, ErrUnsupported
	}

	key := cacheKey(item)
	if x, found := r.cache.Get(key); found {
		return x.([]byte), nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(item.Payload))
	if err != nil {
		return nil, fmt.Errorf("decode photo %q: %w", item.ID, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("photo %q is %dx%d: %w", item.ID, cfg.Width, cfg.Height, ErrTooLarge)
	}

	img, _, err := image.Decode(bytes.NewReader(item.Payload))
	if err != nil {
		return nil, fmt.Errorf("decode photo %q: %w", item.ID, err)
	}

	src := img.Bounds()
	if item.Crop != nil {
		src = CropRect(src, *item.Crop)
	}
	w, h := fitWithin(src.Dx(), src.Dy(), r.size)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail %q: %w", item.ID, err)
	}

	data := buf.Bytes()
	r.cache.Set(key, data, cache.DefaultExpiration)
	return data, nil
}

// CropRect maps a normalized crop onto bounds. The result is at least one
// pixel in each dimension and never leaves bounds.
func CropRect(bounds image.Rectangle, c catalog.Crop) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())

	x0 := bounds.Min.X + int(math.Floor(c.X*w))
	y0 := bounds.Min.Y + int(math.Floor(c.Y*h))
	x1 := bounds.Min.X + int(math.Ceil((c.X+c.Width)*w))
	y1 := bounds.Min.Y + int(math.Ceil((c.Y+c.Height)*h))

	r := image.Rect(x0, y0, x1, y1).Intersect(bounds)
	if r.Dx() < 1 || r.Dy() < 1 {
		x0 = min(x0, bounds.Max.X-1)
		y0 = min(y0, bounds.Max.Y-1)
		r = image.Rect(x0, y0, x0+1, y0+1)
	}
	return r
}

func fitWithin(w, h, box int) (int, int) {
	if w <= box && h <= box {
		return w, h
	}
	if w >= h {
		return box, max(1, h*box/w)
	}
	return max(1, w*box/h), box
}

func cacheKey(item *catalog.MediaItem) string {
	if item.Crop == nil {
		return item.ID
	}
	c := item.Crop
	return fmt.Sprintf("%s|%g,%g,%g,%g", item.ID, c.X, c.Y, c.Width, c.Height)
}
