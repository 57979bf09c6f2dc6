package vision

import (
	"image"
	"math"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// component is one 4-connected foreground region.
type component struct {
	rect image.Rectangle
	area int
	// Raw moments for orientation estimation.
	sumX, sumY   float64
	sumXX, sumYY float64
	sumXY        float64
}

// components labels 4-connected foreground regions in a binary image.
func components(img *image.Gray) []component {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	labels := make([]int, w*h)

	var comps []component
	var queue []int

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if labels[idx] != 0 || img.GrayAt(b.Min.X+x, b.Min.Y+y).Y == 0 {
				continue
			}
			label := len(comps) + 1
			c := component{rect: image.Rect(x, y, x+1, y+1)}
			labels[idx] = label
			queue = append(queue[:0], idx)

			for len(queue) > 0 {
				cur := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				cx, cy := cur%w, cur/w

				c.area++
				fx, fy := float64(cx), float64(cy)
				c.sumX += fx
				c.sumY += fy
				c.sumXX += fx * fx
				c.sumYY += fy * fy
				c.sumXY += fx * fy
				c.rect = c.rect.Union(image.Rect(cx, cy, cx+1, cy+1))

				for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := cx+d[0], cy+d[1]
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if labels[nidx] == 0 && img.GrayAt(b.Min.X+nx, b.Min.Y+ny).Y > 0 {
						labels[nidx] = label
						queue = append(queue, nidx)
					}
				}
			}
			comps = append(comps, c)
		}
	}
	return comps
}

// orientation returns the principal-axis angle of the component in degrees,
// from central second moments.
func (c component) orientation() float64 {
	if c.area == 0 {
		return 0
	}
	n := float64(c.area)
	mx, my := c.sumX/n, c.sumY/n
	mu20 := c.sumXX/n - mx*mx
	mu02 := c.sumYY/n - my*my
	mu11 := c.sumXY/n - mx*my
	if mu20 == mu02 && mu11 == 0 {
		return 0
	}
	return 0.5 * math.Atan2(2*mu11, mu20-mu02) * 180 / math.Pi
}

// Deskew estimates skew from the largest foreground region of the Otsu
// binarization and rotates the source to level it. Angles under 5 degrees are
// left alone; small estimates on noisy glyphs are mostly noise themselves.
func Deskew(img *image.Gray) *image.Gray {
	comps := components(Otsu(img, false))
	if len(comps) == 0 {
		return img
	}
	largest := comps[0]
	for _, c := range comps[1:] {
		if c.area > largest.area {
			largest = c
		}
	}
	// Fold the principal axis onto the nearest image axis so an upright
	// glyph reads as zero skew rather than ninety degrees.
	angle := largest.orientation()
	angle -= 90 * math.Round(angle/90)
	if math.Abs(angle) <= 5 {
		return img
	}
	return rotate(img, -angle)
}

// rotate turns the image around its center by the given angle in degrees,
// keeping the original size and replicating nothing outside (transparent
// pixels come out black, which binarization then ignores).
func rotate(img *image.Gray, degrees float64) *image.Gray {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := w/2, h/2

	// Rotation about the center as an affine map of source onto dst.
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.BiLinear.Transform(out, m, img, b, draw.Src, nil)
	return out
}

// Glyph is a single extracted symbol region, normalized to the size the
// recognizer was measured to work best at.
type Glyph struct {
	Image  *image.Gray
	Bounds image.Rectangle
}

// glyph extraction size and the digit window applied to candidate regions.
const (
	glyphW = 20
	glyphH = 30

	digitMinW, digitMaxW = 8, 40
	digitMinH, digitMaxH = 12, 35
)

// SegmentGlyphs extracts digit-sized regions from a binary image, left to
// right. Regions outside the digit window are dropped as noise or border art.
func SegmentGlyphs(bin *image.Gray) []Glyph {
	comps := components(bin)
	var kept []component
	for _, c := range comps {
		w, h := c.rect.Dx(), c.rect.Dy()
		if w > digitMinW && w < digitMaxW && h > digitMinH && h < digitMaxH {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].rect.Min.X < kept[j].rect.Min.X })

	glyphs := make([]Glyph, 0, len(kept))
	for _, c := range kept {
		crop := bin.SubImage(c.rect.Add(bin.Bounds().Min)).(*image.Gray)
		norm := image.NewGray(image.Rect(0, 0, glyphW, glyphH))
		draw.ApproxBiLinear.Scale(norm, norm.Bounds(), crop, crop.Bounds(), draw.Src, nil)
		glyphs = append(glyphs, Glyph{Image: norm, Bounds: c.rect})
	}
	return glyphs
}
