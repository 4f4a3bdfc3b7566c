package photo

import (
	"image"
	"math"
)

// Frame is a decoded video frame: packed RGB24 pixels plus the position of
// the frame within its stream. Low-res and full-res frames use the same type
// but come from different streams; only timestamps correlate them.
type Frame struct {
	Pix       []uint8 // packed RGB, len == 3*Width*Height
	Width     int
	Height    int
	Timestamp float64 // seconds from stream start
	Index     int     // sampled frame index within the stream
}

// NewFrame allocates a frame of the given size with all pixels zero (black).
func NewFrame(width, height int) *Frame {
	return &Frame{
		Pix:    make([]uint8, 3*width*height),
		Width:  width,
		Height: height,
	}
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Pix: pix, Width: f.Width, Height: f.Height, Timestamp: f.Timestamp, Index: f.Index}
}

// At returns the RGB value at (x, y).
func (f *Frame) At(x, y int) (r, g, b uint8) {
	i := 3 * (y*f.Width + x)
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Set writes the RGB value at (x, y).
func (f *Frame) Set(x, y int, r, g, b uint8) {
	i := 3 * (y*f.Width + x)
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// Gray returns the frame as a row-major luma plane (ITU-R BT.601 weights).
func (f *Frame) Gray() []uint8 {
	gray := make([]uint8, f.Width*f.Height)
	for p := 0; p < len(gray); p++ {
		i := 3 * p
		r := uint32(f.Pix[i])
		g := uint32(f.Pix[i+1])
		b := uint32(f.Pix[i+2])
		gray[p] = uint8((299*r + 587*g + 114*b) / 1000)
	}
	return gray
}

// GrayImage returns the frame as an image.Gray for interop with image libraries.
func (f *Frame) GrayImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Gray())
	return img
}

// ToImage returns the frame as an image.NRGBA (alpha fully opaque).
func (f *Frame) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for p := 0; p < f.Width*f.Height; p++ {
		src := 3 * p
		dst := 4 * p
		img.Pix[dst] = f.Pix[src]
		img.Pix[dst+1] = f.Pix[src+1]
		img.Pix[dst+2] = f.Pix[src+2]
		img.Pix[dst+3] = 0xff
	}
	return img
}

// MAD is the mean absolute difference between corresponding pixels of two
// frames, averaged over every channel of every pixel, on the 0-255 scale.
// Normalizing by pixel count makes the thresholds resolution-independent.
// Frames of mismatched geometry compare as maximally different.
func MAD(a, b *Frame) float64 {
	if a.Width != b.Width || a.Height != b.Height || len(a.Pix) != len(b.Pix) {
		return 255
	}
	if len(a.Pix) == 0 {
		return 0
	}
	var sum uint64
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		sum += uint64(d)
	}
	return float64(sum) / float64(len(a.Pix))
}

// meanStd returns the mean and population standard deviation of the values.
func meanStd(values []uint8) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean = sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// grayRow returns one row of a luma plane.
func grayRow(gray []uint8, width, y int) []uint8 {
	return gray[y*width : (y+1)*width]
}

// grayCol copies one column of a luma plane.
func grayCol(gray []uint8, width, height, x int) []uint8 {
	col := make([]uint8, height)
	for y := 0; y < height; y++ {
		col[y] = gray[y*width+x]
	}
	return col
}
