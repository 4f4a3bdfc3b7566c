package photo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniformFrame fills every channel of every pixel with v.
func uniformFrame(w, h int, v uint8) *Frame {
	f := NewFrame(w, h)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

// checkerFrame alternates between a and b on pixel parity, all channels.
func checkerFrame(w, h int, a, b uint8) *Frame {
	f := NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := a
			if (x+y)%2 != 0 {
				v = b
			}
			f.Set(x, y, v, v, v)
		}
	}
	return f
}

func TestMADIdenticalFramesIsZero(t *testing.T) {
	a := checkerFrame(32, 32, 0, 200)
	b := a.Clone()
	assert.Equal(t, 0.0, MAD(a, b))
}

func TestMADUniformOffset(t *testing.T) {
	a := checkerFrame(32, 32, 0, 200)
	b := a.Clone()
	for i := range b.Pix {
		b.Pix[i] += 2
	}
	assert.InDelta(t, 2.0, MAD(a, b), 1e-9)
}

func TestMADMismatchedGeometryIsMaximal(t *testing.T) {
	a := NewFrame(32, 32)
	b := NewFrame(16, 32)
	assert.Equal(t, 255.0, MAD(a, b))
}

func TestMADIsSymmetric(t *testing.T) {
	a := checkerFrame(16, 16, 10, 240)
	b := uniformFrame(16, 16, 128)
	assert.Equal(t, MAD(a, b), MAD(b, a))
}

func TestGrayUsesLumaWeights(t *testing.T) {
	f := NewFrame(1, 1)
	f.Set(0, 0, 255, 0, 0)
	assert.Equal(t, uint8(76), f.Gray()[0]) // 299*255/1000

	f.Set(0, 0, 0, 255, 0)
	assert.Equal(t, uint8(149), f.Gray()[0]) // 587*255/1000

	f.Set(0, 0, 0, 0, 255)
	assert.Equal(t, uint8(29), f.Gray()[0]) // 114*255/1000
}

func TestCloneIsDeep(t *testing.T) {
	a := uniformFrame(8, 8, 100)
	a.Timestamp = 1.5
	a.Index = 3

	b := a.Clone()
	require.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, 1.5, b.Timestamp)
	assert.Equal(t, 3, b.Index)

	b.Pix[0] = 200
	assert.Equal(t, uint8(100), a.Pix[0])
}

func TestMeanStdAlternatingValues(t *testing.T) {
	values := make([]uint8, 100)
	for i := range values {
		if i%2 == 0 {
			values[i] = 126
		} else {
			values[i] = 130
		}
	}
	mean, std := meanStd(values)
	assert.InDelta(t, 128.0, mean, 1e-9)
	assert.InDelta(t, 2.0, std, 1e-9)
}

func TestMeanStdEmpty(t *testing.T) {
	mean, std := meanStd(nil)
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 0.0, std)
}

func TestToImagePreservesChannels(t *testing.T) {
	f := NewFrame(2, 1)
	f.Set(0, 0, 10, 20, 30)
	f.Set(1, 0, 200, 100, 50)

	img := f.ToImage()
	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(10), r>>8)
	assert.Equal(t, uint32(20), g>>8)
	assert.Equal(t, uint32(30), b>>8)
	assert.Equal(t, uint32(255), a>>8)
}
