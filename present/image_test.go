package present

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func TestStride(t *testing.T) {
	tests := []struct {
		width, align, want int
	}{
		{256, 4, 1024},
		{10, 0, 40},
		{10, 64, 64},
		{16, 64, 64},
		{17, 64, 128},
	}
	for _, test := range tests {
		if got := Stride(test.width, test.align); got != test.want {
			t.Errorf("Stride(%d, %d) = %d, want %d", test.width, test.align, got, test.want)
		}
	}
}

func TestImageByteOrder(t *testing.T) {
	p, _ := newTestPool(t, Config{})
	f := mustAcquire(t, p, 4, 4)
	img := f.Image()

	img.SetARGB(1, 0, 0x80112233)
	got := img.Pix[img.PixOffset(1, 0):][:4]
	want := []byte{0x33, 0x22, 0x11, 0x80}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bytes = % x, want % x", got, want)
		}
	}

	c := img.At(1, 0).(color.RGBA)
	if c != (color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x80}) {
		t.Errorf("At = %+v", c)
	}
}

func TestImageOpaqueFormat(t *testing.T) {
	p, _ := newTestPool(t, Config{Format: FormatXRGB8888})
	img := mustAcquire(t, p, 2, 2).Image()
	img.SetARGB(0, 0, 0x00010203)
	if got := img.ARGB(0, 0); got != 0xff010203 {
		t.Errorf("ARGB = %#x, want 0xff010203", got)
	}
}

func TestImageDraw(t *testing.T) {
	p, _ := newTestPool(t, Config{})
	img := mustAcquire(t, p, 8, 8).Image()
	img.Fill(0xff000000)

	red := image.NewUniform(color.RGBA{R: 0xff, A: 0xff})
	draw.Draw(img, image.Rect(2, 2, 4, 4), red, image.Point{}, draw.Src)

	if got := img.ARGB(3, 3); got != 0xffff0000 {
		t.Errorf("inside = %#x, want 0xffff0000", got)
	}
	if got := img.ARGB(5, 5); got != 0xff000000 {
		t.Errorf("outside = %#x, want 0xff000000", got)
	}
	if got := img.ARGB(100, 100); got != 0 {
		t.Errorf("out of bounds = %#x, want 0", got)
	}
}
