package vision

import (
	"image"
	"image/color"
	"math"
)

// histogram counts pixel intensities in a gray image.
func histogram(img *image.Gray) [256]int {
	var h [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride : (y-b.Min.Y)*img.Stride+b.Dx()]
		for _, v := range row {
			h[v]++
		}
	}
	return h
}

// OtsuThreshold computes the inter-class-variance-maximizing split point.
func OtsuThreshold(img *image.Gray) uint8 {
	hist := histogram(img)
	total := 0
	sum := 0.0
	for i, c := range hist {
		total += c
		sum += float64(i) * float64(c)
	}
	if total == 0 {
		return 127
	}

	var (
		best    uint8
		bestVar float64
		wB      float64
		sumB    float64
		totalF  = float64(total)
	)
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := totalF - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestVar {
			bestVar = between
			best = uint8(t)
		}
	}
	return best
}

// Binarize applies a fixed threshold. invert swaps foreground and background,
// which matters because glyph extraction assumes white-on-black.
func Binarize(img *image.Gray, threshold uint8, invert bool) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := img.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			on := v > threshold
			if invert {
				on = !on
			}
			if on {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// Otsu binarizes with the Otsu split point.
func Otsu(img *image.Gray, invert bool) *image.Gray {
	return Binarize(img, OtsuThreshold(img), invert)
}

// AdaptiveGaussian thresholds each pixel against a Gaussian-weighted local
// mean, which handles uneven lighting that defeats a global split. block must
// be odd; c is subtracted from the local mean before comparing.
func AdaptiveGaussian(img *image.Gray, block int, c float64, invert bool) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	kernel := gaussianKernel1D(block)
	half := block / 2

	// Separable convolution: horizontal pass into a float buffer, then
	// vertical pass comparing against the source pixel.
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc, wsum float64
			for k := -half; k <= half; k++ {
				xx := clampInt(x+k, 0, w-1)
				wk := kernel[k+half]
				acc += wk * float64(img.GrayAt(b.Min.X+xx, b.Min.Y+y).Y)
				wsum += wk
			}
			tmp[y*w+x] = acc / wsum
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc, wsum float64
			for k := -half; k <= half; k++ {
				yy := clampInt(y+k, 0, h-1)
				wk := kernel[k+half]
				acc += wk * tmp[yy*w+x]
				wsum += wk
			}
			mean := acc / wsum
			v := float64(img.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			on := v > mean-c
			if invert {
				on = !on
			}
			if on {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// gaussianKernel1D builds a normalized kernel of the given odd size, with
// sigma derived the same way OpenCV does for getGaussianKernel.
func gaussianKernel1D(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	half := size / 2
	kernel := make([]float64, size)
	sum := 0.0
	for i := -half; i <= half; i++ {
		v := gaussian(float64(i), sigma)
		kernel[i+half] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func gaussian(x, sigma float64) float64 {
	return math.Exp(-x * x / (2 * sigma * sigma))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
