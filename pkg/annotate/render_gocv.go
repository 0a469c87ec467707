//go:build gocv

package annotate

import (
	"SafeRoad/internal/entity"
	"image"
	"image/draw"

	"gocv.io/x/gocv"
)

// Render returns a new image with one outlined, labelled box per detection,
// drawn with OpenCV. src is never modified.
func Render(src image.Image, dets []entity.Detection) image.Image {
	bounds := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)

	mat, err := gocv.ImageToMatRGBA(rgba)
	if err != nil {
		return rgba
	}
	defer mat.Close()

	for _, d := range dets {
		r := boxRect(d.BoundingBox, rgba.Bounds())
		if r.Empty() {
			continue
		}
		c := ColorFor(d.Class)
		gocv.Rectangle(&mat, r, c, strokeWidth)

		origin := image.Pt(r.Min.X, r.Min.Y-4)
		if origin.Y < 12 {
			origin.Y = r.Min.Y + 12
		}
		gocv.PutText(&mat, Label(d), origin, gocv.FontHersheySimplex, 0.45, c, 1)
	}

	out, err := mat.ToImage()
	if err != nil {
		return rgba
	}
	return out
}
