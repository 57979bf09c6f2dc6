// Package vision turns a raw code image into binarized variants that an OCR
// engine has a fair chance at. Code renderers vary wildly in palette, noise
// and skew, so rather than one canonical pipeline we produce a family of
// candidate images and let the recognizer vote.
package vision

import (
	"image"
	"image/color"
	"math"
)

// Channel names one scalar projection of an RGBA image. Colored glyphs often
// vanish in plain luma but separate cleanly in a single color channel.
type Channel string

const (
	ChannelLuma      Channel = "luma"
	ChannelRed       Channel = "red"
	ChannelGreen     Channel = "green"
	ChannelBlue      Channel = "blue"
	ChannelLightness Channel = "lightness"
	ChannelValue     Channel = "value"
)

// segChannels is the extraction order for the segmented family.
var segChannels = []Channel{
	ChannelLuma, ChannelRed, ChannelGreen, ChannelBlue, ChannelLightness, ChannelValue,
}

// Extract projects src onto the named channel as an 8-bit grayscale image.
func Extract(src image.Image, ch Channel) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(bl>>8)

			var v uint8
			switch ch {
			case ChannelRed:
				v = r8
			case ChannelGreen:
				v = g8
			case ChannelBlue:
				v = b8
			case ChannelLightness:
				v = lightness(r8, g8, b8)
			case ChannelValue:
				v = max3(r8, g8, b8)
			default:
				v = color.GrayModel.Convert(color.RGBA{r8, g8, b8, 255}).(color.Gray).Y
			}
			dst.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: v})
		}
	}
	return dst
}

// lightness approximates the CIELAB L* component scaled to 0..255.
func lightness(r, g, b uint8) uint8 {
	// Linearize sRGB then take relative luminance.
	yl := 0.2126*srgbToLinear(r) + 0.7152*srgbToLinear(g) + 0.0722*srgbToLinear(b)

	var l float64
	if yl > 0.008856 {
		l = 116*math.Cbrt(yl) - 16
	} else {
		l = 903.3 * yl
	}
	v := l * 255.0 / 100.0
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return uint8(v + 0.5)
}

func srgbToLinear(c uint8) float64 {
	f := float64(c) / 255.0
	if f <= 0.04045 {
		return f / 12.92
	}
	return math.Pow((f+0.055)/1.055, 2.4)
}

func max3(a, b, c uint8) uint8 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
