// Package annotate draws detection boxes and labels onto a copy of an image.
package annotate

import (
	"SafeRoad/internal/entity"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math"
)

const strokeWidth = 2

// Label is the caption drawn above each box.
func Label(d entity.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Class, d.Confidence)
}

// ColorFor gives every class a stable, saturated colour.
func ColorFor(class string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(class))
	sum := h.Sum32()

	c := color.RGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 255}
	switch sum % 3 {
	case 0:
		c.R = 255
	case 1:
		c.G = 255
	default:
		c.B = 255
	}
	return c
}

// boxRect clamps a detection box to the image bounds.
func boxRect(b entity.BoundingBox, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		bounds.Min.X+int(math.Round(b.X1)),
		bounds.Min.Y+int(math.Round(b.Y1)),
		bounds.Min.X+int(math.Round(b.X2)),
		bounds.Min.Y+int(math.Round(b.Y2)),
	)
	return r.Intersect(bounds)
}
