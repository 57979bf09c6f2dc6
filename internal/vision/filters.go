package vision

import (
	"image"
	"image/color"
)

// GaussianBlur3 smooths with a 3x3 Gaussian kernel, replicating edges.
func GaussianBlur3(img *image.Gray) *image.Gray {
	kernel := [3]float64{0.25, 0.5, 0.25}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := make([]float64, w*h)
	out := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k := -1; k <= 1; k++ {
				xx := clampInt(x+k, 0, w-1)
				acc += kernel[k+1] * float64(img.GrayAt(b.Min.X+xx, b.Min.Y+y).Y)
			}
			tmp[y*w+x] = acc
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k := -1; k <= 1; k++ {
				yy := clampInt(y+k, 0, h-1)
				acc += kernel[k+1] * tmp[yy*w+x]
			}
			out.SetGray(x, y, color.Gray{Y: uint8(acc + 0.5)})
		}
	}
	return out
}

// Edges runs a Sobel gradient with hysteresis-style double thresholding: a
// pixel is an edge if its magnitude clears high, or clears low while touching
// a strong neighbor.
func Edges(img *image.Gray, low, high float64) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mag := make([]float64, w*h)

	at := func(x, y int) float64 {
		return float64(img.GrayAt(b.Min.X+clampInt(x, 0, w-1), b.Min.Y+clampInt(y, 0, h-1)).Y)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			mag[y*w+x] = gx*gx + gy*gy
		}
	}
	low, high = low*low, high*high

	out := image.NewGray(image.Rect(0, 0, w, h))
	strong := func(x, y int) bool {
		return x >= 0 && x < w && y >= 0 && y < h && mag[y*w+x] >= high
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m := mag[y*w+x]
			if m >= high {
				out.SetGray(x, y, color.Gray{Y: 255})
				continue
			}
			if m < low {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if strong(x+dx, y+dy) {
						out.SetGray(x, y, color.Gray{Y: 255})
					}
				}
			}
		}
	}
	return out
}

// Dilate2 grows foreground with a 2x2 structuring element anchored top-left.
func Dilate2(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					xx, yy := x-dx, y-dy
					if xx >= 0 && yy >= 0 && img.GrayAt(b.Min.X+xx, b.Min.Y+yy).Y > 0 {
						out.SetGray(x, y, color.Gray{Y: 255})
					}
				}
			}
		}
	}
	return out
}

// erode2 shrinks foreground with the same 2x2 element.
func erode2(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			all := true
			for dy := 0; dy < 2 && all; dy++ {
				for dx := 0; dx < 2; dx++ {
					xx, yy := x+dx, y+dy
					if xx >= w || yy >= h || img.GrayAt(b.Min.X+xx, b.Min.Y+yy).Y == 0 {
						all = false
						break
					}
				}
			}
			if all {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// Close2 fills pinholes in glyph strokes: dilate then erode with 2x2.
func Close2(img *image.Gray) *image.Gray {
	return erode2(Dilate2(img))
}

// CLAHE performs contrast-limited adaptive histogram equalization over a tile
// grid, bilinearly blending tile mappings so tile seams do not show.
func CLAHE(img *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewGray(image.Rect(0, 0, w, h))
	}

	tileW := (w + tilesX - 1) / tilesX
	tileH := (h + tilesY - 1) / tilesY

	// Per-tile clipped CDF lookup tables.
	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := minInt(x0+tileW, w), minInt(y0+tileH, h)

			var hist [256]int
			n := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[img.GrayAt(b.Min.X+x, b.Min.Y+y).Y]++
					n++
				}
			}
			if n == 0 {
				continue
			}

			// Clip and redistribute excess uniformly.
			clip := int(clipLimit * float64(n) / 256.0)
			if clip < 1 {
				clip = 1
			}
			excess := 0
			for i := range hist {
				if hist[i] > clip {
					excess += hist[i] - clip
					hist[i] = clip
				}
			}
			bonus := excess / 256
			for i := range hist {
				hist[i] += bonus
			}

			cum := 0
			scale := 255.0 / float64(n)
			for i := range hist {
				cum += hist[i]
				luts[ty*tilesX+tx][i] = uint8(float64(cum)*scale + 0.5)
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		// Position relative to tile centers.
		fy := (float64(y)-float64(tileH)/2 + 0.5) / float64(tileH)
		ty0 := clampInt(int(fy), 0, tilesY-1)
		ty1 := clampInt(ty0+1, 0, tilesY-1)
		wy := fy - float64(ty0)
		if wy < 0 {
			wy = 0
		} else if wy > 1 {
			wy = 1
		}
		for x := 0; x < w; x++ {
			fx := (float64(x)-float64(tileW)/2 + 0.5) / float64(tileW)
			tx0 := clampInt(int(fx), 0, tilesX-1)
			tx1 := clampInt(tx0+1, 0, tilesX-1)
			wx := fx - float64(tx0)
			if wx < 0 {
				wx = 0
			} else if wx > 1 {
				wx = 1
			}

			v := img.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			v00 := float64(luts[ty0*tilesX+tx0][v])
			v01 := float64(luts[ty0*tilesX+tx1][v])
			v10 := float64(luts[ty1*tilesX+tx0][v])
			v11 := float64(luts[ty1*tilesX+tx1][v])

			top := v00*(1-wx) + v01*wx
			bot := v10*(1-wx) + v11*wx
			out.SetGray(x, y, color.Gray{Y: uint8(top*(1-wy) + bot*wy + 0.5)})
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
