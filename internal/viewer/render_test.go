package viewer

import (
	"image"
	"image/color"
	"testing"
)

func TestPlaceholder(t *testing.T) {
	img := Placeholder(DefaultPlaceholderWidth, DefaultPlaceholderHeight)
	if got := img.Bounds(); got != image.Rect(0, 0, 640, 480) {
		t.Fatalf("bounds = %v", got)
	}

	corner := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA)
	if corner != placeholderColor {
		t.Errorf("corner = %v, want magenta", corner)
	}

	var dark int
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r < 0x4000 && g < 0x4000 && b < 0x4000 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Error("placeholder has no visible text")
	}
}

func TestZoom(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.SetGray(0, 0, color.Gray{Y: 10})
	src.SetGray(1, 0, color.Gray{Y: 200})

	if Zoom(src, 1) != image.Image(src) {
		t.Error("zoom 1 should return the input")
	}

	got := Zoom(src, 4)
	if b := got.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("bounds = %v", b)
	}
	for x := 0; x < 8; x++ {
		want := uint8(10)
		if x >= 4 {
			want = 200
		}
		c := color.GrayModel.Convert(got.At(x, 3)).(color.Gray)
		if c.Y != want {
			t.Errorf("x=%d: %d, want %d", x, c.Y, want)
		}
	}
}
