//go:build !gocv

package annotate

import (
	"SafeRoad/internal/entity"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Render returns a new image with one outlined, labelled box per detection.
// src is never modified.
func Render(src image.Image, dets []entity.Detection) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	face := basicfont.Face7x13
	for _, d := range dets {
		r := boxRect(d.BoundingBox, bounds)
		if r.Empty() {
			continue
		}
		c := ColorFor(d.Class)
		outline(dst, r, c)

		text := Label(d)
		width := font.MeasureString(face, text).Ceil()
		height := face.Metrics().Height.Ceil()

		top := r.Min.Y - height
		if top < bounds.Min.Y {
			top = r.Min.Y
		}
		bg := image.Rect(r.Min.X, top, r.Min.X+width+2, top+height).Intersect(bounds)
		draw.Draw(dst, bg, image.NewUniform(c), image.Point{}, draw.Src)

		drawer := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.Black),
			Face: face,
			Dot:  fixed.P(r.Min.X+1, top+face.Metrics().Ascent.Ceil()),
		}
		drawer.DrawString(text)
	}

	return dst
}

func outline(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	fill := image.NewUniform(c)
	for i := 0; i < strokeWidth; i++ {
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y+i, r.Max.X, r.Min.Y+i+1),
			image.Rect(r.Min.X, r.Max.Y-i-1, r.Max.X, r.Max.Y-i),
			image.Rect(r.Min.X+i, r.Min.Y, r.Min.X+i+1, r.Max.Y),
			image.Rect(r.Max.X-i-1, r.Min.Y, r.Max.X-i, r.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(dst, e.Intersect(r), fill, image.Point{}, draw.Src)
		}
	}
}
