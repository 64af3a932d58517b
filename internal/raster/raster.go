// Package raster loads images into a canonical sample layout with explicit
// width, height, channel count, and bit depth.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/starford/pixgrade/internal/apperr"
)

// Raster holds interleaved samples in row-major order. Every sample is stored
// as uint16 regardless of Depth so 8- and 16-bit images share one layout.
type Raster struct {
	Width    int
	Height   int
	Channels int // 1 (gray) or 3 (RGB)
	Depth    int // bits per sample: 8 or 16
	Pix      []uint16
}

// New allocates a zeroed raster.
func New(width, height, channels, depth int) *Raster {
	return &Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
		Depth:    depth,
		Pix:      make([]uint16, width*height*channels),
	}
}

// Shape is (height, width, channels).
type Shape [3]int

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s[0], s[1], s[2])
}

// Shape returns the raster's (height, width, channels).
func (r *Raster) Shape() Shape {
	return Shape{r.Height, r.Width, r.Channels}
}

// MaxValue is the largest sample value representable at the raster's depth.
func (r *Raster) MaxValue() float64 {
	if r.Depth == 16 {
		return 65535
	}
	return 255
}

// Load decodes the image file at path.
func Load(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raster: open %s: %w", path, err)
	}
	defer f.Close()
	r, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("raster: %s: %w", path, err)
	}
	return r, nil
}

// Decode reads any registered image format. Gray images keep one channel;
// everything else becomes RGB with alpha dropped. 16-bit sources keep
// 16-bit samples.
func Decode(rd io.Reader) (*Raster, error) {
	img, _, err := image.Decode(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrDecode, err)
	}
	return FromImage(img), nil
}

// FromImage converts img into the canonical layout.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		r := New(w, h, 1, 8)
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w]
			for x, v := range row {
				r.Pix[y*w+x] = uint16(v)
			}
		}
		return r
	case *image.Gray16:
		r := New(w, h, 1, 16)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Pix[y*w+x] = src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			}
		}
		return r
	case *image.RGBA64, *image.NRGBA64:
		r := New(w, h, 3, 16)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
				i := (y*w + x) * 3
				r.Pix[i], r.Pix[i+1], r.Pix[i+2] = c.R, c.G, c.B
			}
		}
		return r
	}

	r := New(w, h, 3, 8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := (y*w + x) * 3
			r.Pix[i], r.Pix[i+1], r.Pix[i+2] = uint16(c.R), uint16(c.G), uint16(c.B)
		}
	}
	return r
}

// Image returns an image.Image view suitable for display or encoding.
func (r *Raster) Image() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	switch {
	case r.Channels == 1 && r.Depth == 16:
		img := image.NewGray16(rect)
		for i, v := range r.Pix {
			img.SetGray16(i%r.Width, i/r.Width, color.Gray16{Y: v})
		}
		return img
	case r.Channels == 1:
		img := image.NewGray(rect)
		for i, v := range r.Pix {
			img.Pix[i] = uint8(v)
		}
		return img
	case r.Depth == 16:
		img := image.NewNRGBA64(rect)
		for p := 0; p < r.Width*r.Height; p++ {
			i := p * r.Channels
			img.SetNRGBA64(p%r.Width, p/r.Width, color.NRGBA64{R: r.Pix[i], G: r.Pix[i+1], B: r.Pix[i+2], A: 0xffff})
		}
		return img
	default:
		img := image.NewNRGBA(rect)
		for p := 0; p < r.Width*r.Height; p++ {
			i := p * r.Channels
			img.Pix[p*4+0] = uint8(r.Pix[i])
			img.Pix[p*4+1] = uint8(r.Pix[i+1])
			img.Pix[p*4+2] = uint8(r.Pix[i+2])
			img.Pix[p*4+3] = 0xff
		}
		return img
	}
}

// EncodePNG encodes the raster as PNG.
func (r *Raster) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Image()); err != nil {
		return nil, fmt.Errorf("raster: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
