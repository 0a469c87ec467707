package defectService

import (
	"SafeRoad/internal/api/defect"
	"SafeRoad/internal/entity"
	contextPkg "SafeRoad/pkg/context"
	"SafeRoad/pkg/google"
	"SafeRoad/pkg/response"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	imageSize  = 640
	imageFOV   = 90
	imagePitch = -30
)

var headings = [...]int{0, 90, 180, 270}

// acquireImages fetches four compass views per point. The result is ordered
// point-major, heading-minor regardless of fetch completion order.
func (s *defectService) acquireImages(ctx context.Context, points []entity.GeoPoint) ([]entity.CapturedImage, error) {
	images := make([]entity.CapturedImage, len(points)*len(headings))
	if len(points) == 0 {
		return images, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.AcquireConcurrency)

	for i, point := range points {
		g.Go(func() error {
			street := s.streetName(gctx, point)

			for j, heading := range headings {
				data, err := s.imagery.FetchImage(gctx, google.ImageRequest{
					Point:   point,
					Heading: heading,
					FOV:     imageFOV,
					Pitch:   imagePitch,
					Size:    imageSize,
				})
				if err != nil {
					return fmt.Errorf("fetch %.6f,%.6f heading %d: %w", point.Latitude, point.Longitude, heading, err)
				}

				pixels, _, err := s.utils.DecodeImage(data)
				if err != nil {
					return fmt.Errorf("decode %.6f,%.6f heading %d: %w", point.Latitude, point.Longitude, heading, err)
				}

				images[i*len(headings)+j] = entity.CapturedImage{
					Point:      point,
					Heading:    heading,
					StreetName: street,
					Data:       data,
					Pixels:     pixels,
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, response.Wrap(defect.ErrImageryUnavailable, err)
	}

	return images, nil
}

func (s *defectService) streetName(ctx context.Context, p entity.GeoPoint) string {
	name, err := s.imagery.ResolveStreetName(ctx, p)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"latitude":   p.Latitude,
			"longitude":  p.Longitude,
			"error":      err.Error(),
		}).Warn("Street name lookup failed")
		return google.UnknownStreet
	}
	if name == "" {
		return google.UnknownStreet
	}
	return name
}
