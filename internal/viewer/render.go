package viewer

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultPlaceholderWidth  = 640
	DefaultPlaceholderHeight = 480

	placeholderText = "No submission found!"
)

var placeholderColor = color.RGBA{R: 0xff, G: 0x00, B: 0xff, A: 0xff}

// Placeholder renders the frame shown when no submitted image is available:
// a magenta canvas with a centered black marker.
func Placeholder(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderColor}, image.Point{}, draw.Src)

	face, err := placeholderFace(height)
	if err != nil {
		return img
	}
	defer face.Close()

	d := &font.Drawer{Dst: img, Src: image.Black, Face: face}
	m := face.Metrics()
	textWidth := d.MeasureString(placeholderText).Round()
	x := (width - textWidth) / 2
	y := (height + m.Ascent.Round() - m.Descent.Round()) / 2
	d.Dot = fixed.P(max(x, 0), y)
	d.DrawString(placeholderText)
	return img
}

func placeholderFace(height int) (font.Face, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	size := float64(height) / 12
	if size < 8 {
		size = 8
	}
	return opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
}

// Zoom scales img by an integer factor with nearest-neighbour sampling.
func Zoom(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
