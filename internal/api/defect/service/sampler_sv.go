package defectService

import (
	"SafeRoad/internal/api/defect"
	"SafeRoad/internal/entity"
	contextPkg "SafeRoad/pkg/context"
	"SafeRoad/pkg/response"
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

const kmPerDegree = 111.32

// samplePoints draws n points around center, keeping only those with street
// level imagery. An oracle error aborts the whole draw.
func (s *defectService) samplePoints(ctx context.Context, center entity.GeoPoint, radiusKm float64, n int) ([]entity.GeoPoint, error) {
	points := make([]entity.GeoPoint, 0, n)
	if n == 0 {
		return points, nil
	}

	limit := s.cfg.MaxAttemptsPerPoint * n
	attempts := 0

	for len(points) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if limit > 0 && attempts >= limit {
			return nil, response.Wrap(defect.ErrCoverageExhausted,
				fmt.Errorf("found %d of %d points after %d candidates", len(points), n, attempts))
		}
		attempts++

		candidate := s.randomPoint(center, radiusKm)

		ok, err := s.imagery.HasPanorama(ctx, candidate)
		if err != nil {
			return nil, response.Wrap(defect.ErrImageryUnavailable, err)
		}
		if ok {
			points = append(points, candidate)
		}
	}

	s.log.WithFields(logrus.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"points":     n,
		"candidates": attempts,
	}).Debug("Sampled points with coverage")

	return points, nil
}

func (s *defectService) randomPoint(center entity.GeoPoint, radiusKm float64) entity.GeoPoint {
	s.rndMu.Lock()
	angle := s.rnd.Float64() * 2 * math.Pi
	distance := s.rnd.Float64() * radiusKm
	s.rndMu.Unlock()

	return offset(center, distance, angle)
}

// offset moves p by distanceKm along bearing angle (radians from north)
// using the flat-earth approximation.
func offset(p entity.GeoPoint, distanceKm, angle float64) entity.GeoPoint {
	dLat := distanceKm / kmPerDegree * math.Cos(angle)
	dLng := distanceKm / (kmPerDegree * math.Cos(p.Latitude*math.Pi/180)) * math.Sin(angle)

	return entity.GeoPoint{
		Latitude:  p.Latitude + dLat,
		Longitude: p.Longitude + dLng,
	}
}
