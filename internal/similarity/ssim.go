// Package similarity scores how alike two images are.
package similarity

import (
	"errors"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

const (
	// DefaultSize is the side length both images are normalized to before scoring.
	DefaultSize = 256

	windowSize = 7
	k1         = 0.01
	k2         = 0.03
	dataRange  = 255.0
)

// ErrEmptyImage is returned when either input has no pixels.
var ErrEmptyImage = errors.New("image is empty")

// SSIM compares images with the mean structural similarity index over
// grayscale versions resized to a common square resolution.
type SSIM struct {
	size   int
	scaler draw.Scaler
}

// NewSSIM returns a comparator that normalizes images to size×size. Sizes
// smaller than the SSIM window fall back to DefaultSize.
func NewSSIM(size int) *SSIM {
	if size < windowSize {
		size = DefaultSize
	}
	return &SSIM{size: size, scaler: draw.CatmullRom}
}

// Compare returns a score in [0,1]; 1 means identical after normalization.
func (s *SSIM) Compare(a, b image.Image) (float64, error) {
	if isEmpty(a) || isEmpty(b) {
		return 0, ErrEmptyImage
	}
	x := s.luma(a)
	y := s.luma(b)
	score := meanSSIM(x, y, s.size)
	if math.IsNaN(score) || score < 0 {
		return 0, nil
	}
	if score > 1 {
		return 1, nil
	}
	return score, nil
}

func isEmpty(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}

// luma resizes img and returns its BT.601 luma, rounded to 8-bit levels,
// in row-major order. Alpha is ignored.
func (s *SSIM) luma(img image.Image) []float64 {
	src := opaque(img)
	dst := image.NewRGBA(image.Rect(0, 0, s.size, s.size))
	s.scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]float64, s.size*s.size)
	for y := 0; y < s.size; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+s.size*4]
		for x := 0; x < s.size; x++ {
			r, g, b := float64(row[x*4]), float64(row[x*4+1]), float64(row[x*4+2])
			out[y*s.size+x] = math.Round(0.299*r + 0.587*g + 0.114*b)
		}
	}
	return out
}

// opaque copies img with every pixel made fully opaque, keeping the stored
// straight colour rather than the alpha-premultiplied one. A transparent
// background therefore keeps its RGB instead of turning black.
func opaque(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()*4], row[:b.Dx()*4])
		}
		for i := 3; i < len(out.Pix); i += 4 {
			out.Pix[i] = 0xff
		}
		return out
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return out
}

// integral is a summed-area table with a zero first row and column.
type integral struct {
	stride int
	sum    []float64
}

func newIntegral(n int, value func(i int) float64) integral {
	stride := n + 1
	t := integral{stride: stride, sum: make([]float64, stride*stride)}
	for y := 0; y < n; y++ {
		var rowSum float64
		for x := 0; x < n; x++ {
			rowSum += value(y*n + x)
			t.sum[(y+1)*stride+x+1] = t.sum[y*stride+x+1] + rowSum
		}
	}
	return t
}

// box sums the window whose top-left corner is (x, y).
func (t integral) box(x, y, w int) float64 {
	s := t.stride
	return t.sum[(y+w)*s+x+w] - t.sum[y*s+x+w] - t.sum[(y+w)*s+x] + t.sum[y*s+x]
}

// meanSSIM averages SSIM over every full window inside the image, which is
// the same as computing it everywhere and cropping the half-window border.
func meanSSIM(x, y []float64, n int) float64 {
	sx := newIntegral(n, func(i int) float64 { return x[i] })
	sy := newIntegral(n, func(i int) float64 { return y[i] })
	sxx := newIntegral(n, func(i int) float64 { return x[i] * x[i] })
	syy := newIntegral(n, func(i int) float64 { return y[i] * y[i] })
	sxy := newIntegral(n, func(i int) float64 { return x[i] * y[i] })

	const np = windowSize * windowSize
	covNorm := float64(np) / float64(np-1)
	c1 := (k1 * dataRange) * (k1 * dataRange)
	c2 := (k2 * dataRange) * (k2 * dataRange)

	var total float64
	var count int
	for top := 0; top+windowSize <= n; top++ {
		for left := 0; left+windowSize <= n; left++ {
			ux := sx.box(left, top, windowSize) / np
			uy := sy.box(left, top, windowSize) / np
			uxx := sxx.box(left, top, windowSize) / np
			uyy := syy.box(left, top, windowSize) / np
			uxy := sxy.box(left, top, windowSize) / np

			vx := covNorm * (uxx - ux*ux)
			vy := covNorm * (uyy - uy*uy)
			vxy := covNorm * (uxy - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			total += num / den
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
