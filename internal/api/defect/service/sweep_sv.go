package defectService

import (
	"SafeRoad/internal/api/defect"
	"SafeRoad/internal/entity"
	contextPkg "SafeRoad/pkg/context"
	"context"
	"math"

	"github.com/sirupsen/logrus"
)

func (s *defectService) SampleAndDetect(ctx context.Context, req defect.AnalyzeRequest) ([]entity.DefectRecord, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if err := validateAnalyze(req); err != nil {
		return nil, err
	}
	threshold, err := s.resolveThreshold(req.Threshold)
	if err != nil {
		return nil, err
	}

	center := req.Center()

	points, err := s.samplePoints(ctx, center, *req.RadiusKm, *req.NumPoints)
	if err != nil {
		return nil, err
	}

	images, err := s.acquireImages(ctx, points)
	if err != nil {
		return nil, err
	}

	payloads := make([][]byte, len(images))
	for i, img := range images {
		payloads[i] = img.Data
	}

	detections, err := s.detect(ctx, payloads, threshold)
	if err != nil {
		return nil, err
	}

	items, err := s.assembleSweep(images, detections)
	if err != nil {
		return nil, err
	}

	records, err := s.commitSweep(ctx, items)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"points":     len(points),
		"images":     len(images),
		"defects":    len(records),
		"threshold":  threshold,
	}).Info("Sweep finished")

	if len(records) > 0 {
		s.broadcastDefects(ctx)
	}

	return records, nil
}

func validateAnalyze(req defect.AnalyzeRequest) error {
	if req.CenterLat == nil || req.CenterLng == nil {
		return defect.ErrInvalidCoordinates
	}
	lat, lng := *req.CenterLat, *req.CenterLng
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return defect.ErrInvalidCoordinates
	}
	if req.RadiusKm == nil || math.IsNaN(*req.RadiusKm) || math.IsInf(*req.RadiusKm, 0) || *req.RadiusKm <= 0 {
		return defect.ErrInvalidRadius
	}
	if req.NumPoints == nil || *req.NumPoints < 0 {
		return defect.ErrInvalidNumPoints
	}
	return nil
}
