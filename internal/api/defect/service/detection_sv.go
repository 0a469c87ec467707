package defectService

import (
	"SafeRoad/internal/api/defect"
	"SafeRoad/internal/entity"
	"SafeRoad/pkg/response"
	"context"
	"fmt"
)

// detect runs one detector call for the batch and keeps boxes strictly above
// threshold. The result has exactly one entry per input image.
func (s *defectService) detect(ctx context.Context, images [][]byte, threshold float64) ([][]entity.Detection, error) {
	if len(images) == 0 {
		return [][]entity.Detection{}, nil
	}

	raw, err := s.detector.Run(ctx, images)
	if err != nil {
		return nil, response.Wrap(defect.ErrDetectionFailed, err)
	}
	if len(raw) != len(images) {
		return nil, response.Wrap(defect.ErrDetectionFailed,
			fmt.Errorf("detector returned %d results for %d images", len(raw), len(images)))
	}

	out := make([][]entity.Detection, len(raw))
	for i, boxes := range raw {
		kept := make([]entity.Detection, 0, len(boxes))
		for _, b := range boxes {
			if b.Confidence <= threshold {
				continue
			}
			kept = append(kept, entity.Detection{
				Confidence: b.Confidence,
				Class:      s.detector.LabelFor(b.Class),
				BoundingBox: entity.BoundingBox{
					X1: b.XYXY[0],
					Y1: b.XYXY[1],
					X2: b.XYXY[2],
					Y2: b.XYXY[3],
				},
			})
		}
		out[i] = kept
	}

	return out, nil
}
