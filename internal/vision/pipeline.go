package vision

import (
	"fmt"
	"image"
)

// Variant is one candidate rendering of the code image. Whole-image variants
// carry only Image; segmented variants additionally carry the per-glyph crops
// in left-to-right order.
type Variant struct {
	Strategy string
	Image    *image.Gray
	Glyphs   []Glyph
}

// Segmented reports whether this variant carries per-glyph crops.
func (v Variant) Segmented() bool { return len(v.Glyphs) > 0 }

// adaptive threshold parameters shared by the whole pipeline.
const (
	adaptiveBlock = 11
	adaptiveC     = 2.0

	claheClip  = 3.0
	claheTiles = 8

	edgeLow  = 50.0
	edgeHigh = 150.0
)

// WholeImage produces the four whole-image variants, in the order they should
// be tried: plain deskewed Otsu, adaptive with stroke closing, contrast
// boosted, and edge outline.
func WholeImage(src image.Image) []Variant {
	gray := Extract(src, ChannelLuma)

	return []Variant{
		{
			Strategy: "otsu-deskew",
			Image:    Otsu(Deskew(gray), false),
		},
		{
			Strategy: "adaptive-close",
			Image:    Close2(AdaptiveGaussian(gray, adaptiveBlock, adaptiveC, false)),
		},
		{
			Strategy: "clahe-otsu",
			Image:    Otsu(CLAHE(gray, claheClip, claheTiles, claheTiles), false),
		},
		{
			Strategy: "edge-dilate",
			Image:    Dilate2(Edges(GaussianBlur3(gray), edgeLow, edgeHigh)),
		},
	}
}

// binarizer is one thresholding mode of the segmented family.
type binarizer struct {
	name  string
	apply func(*image.Gray) *image.Gray
}

var segBinarizers = []binarizer{
	{"otsu", func(g *image.Gray) *image.Gray { return Otsu(g, false) }},
	{"adaptive", func(g *image.Gray) *image.Gray {
		return AdaptiveGaussian(g, adaptiveBlock, adaptiveC, false)
	}},
	{"otsu-inv", func(g *image.Gray) *image.Gray { return Otsu(g, true) }},
	{"adaptive-inv", func(g *image.Gray) *image.Gray {
		return AdaptiveGaussian(g, adaptiveBlock, adaptiveC, true)
	}},
}

// Segment produces the segmented family: every channel projection crossed
// with every binarizer, keeping only combinations that yield at least one
// digit-sized glyph. Colored glyphs that disappear in luma usually survive in
// one of the channel projections.
func Segment(src image.Image) []Variant {
	var out []Variant
	for _, ch := range segChannels {
		gray := Extract(src, ch)
		for _, bz := range segBinarizers {
			bin := bz.apply(gray)
			glyphs := SegmentGlyphs(bin)
			if len(glyphs) == 0 {
				continue
			}
			out = append(out, Variant{
				Strategy: fmt.Sprintf("seg-%s-%s", ch, bz.name),
				Image:    bin,
				Glyphs:   glyphs,
			})
		}
	}
	return out
}
