package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"

	"github.com/ibeckermayer/trendscout/internal/types"
)

// Format selects the thumbnail encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// Encoder shrinks images to fit a bounding box and returns them as data URIs.
type Encoder struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	Format    Format
}

// NewEncoder returns the 300x300 JPEG q85 encoder used for result rows.
func NewEncoder() Encoder {
	return Encoder{MaxWidth: 300, MaxHeight: 300, Quality: 85, Format: FormatJPEG}
}

// GalleryEncoder returns the 400x400 WebP encoder used by the gallery.
func GalleryEncoder() Encoder {
	return Encoder{MaxWidth: 400, MaxHeight: 400, Quality: 85, Format: FormatWebP}
}

// DataURI encodes the image at path.
func (e Encoder) DataURI(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	thumb := e.thumbnail(src)

	var buf bytes.Buffer
	mime := "image/jpeg"
	switch e.Format {
	case FormatWebP:
		mime = "image/webp"
		err = webp.Encode(&buf, thumb, webp.Options{Lossless: false, Quality: e.Quality})
	default:
		err = jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: e.Quality})
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// thumbnail scales src to fit the bounding box, keeping its aspect ratio and
// never enlarging. Transparent areas are flattened onto white.
func (e Encoder) thumbnail(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := 1.0
	if e.MaxWidth > 0 && w > e.MaxWidth {
		scale = float64(e.MaxWidth) / float64(w)
	}
	if e.MaxHeight > 0 && h > e.MaxHeight {
		scale = min(scale, float64(e.MaxHeight)/float64(h))
	}
	dw := max(1, int(float64(w)*scale))
	dh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// EncodePosts sets ImageBase64 and ImageCount on copies of posts from their
// local image paths. Unreadable images are skipped.
func (e Encoder) EncodePosts(posts []types.Post) []types.Post {
	out := make([]types.Post, len(posts))
	for i, p := range posts {
		var uris []string
		for _, path := range p.ImagePaths {
			uri, err := e.DataURI(path)
			if err != nil {
				continue
			}
			uris = append(uris, uri)
		}
		p.ImageBase64 = uris
		p.ImageCount = len(uris)
		out[i] = p
	}
	return out
}
