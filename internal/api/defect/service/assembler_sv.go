package defectService

import (
	"SafeRoad/internal/entity"
	"SafeRoad/pkg/annotate"
	"fmt"
	"image"
)

// assembledDefect is a record that has not been committed yet, together with
// the two images that back it.
type assembledDefect struct {
	record    entity.DefectRecord
	original  []byte
	annotated []byte
}

// assembleSweep builds one record per image that has at least one detection.
func (s *defectService) assembleSweep(images []entity.CapturedImage, detections [][]entity.Detection) ([]assembledDefect, error) {
	if len(images) != len(detections) {
		return nil, fmt.Errorf("assemble: %d images but %d detection lists", len(images), len(detections))
	}

	items := make([]assembledDefect, 0)
	for i, img := range images {
		dets := detections[i]
		if len(dets) == 0 {
			continue
		}

		annotated, err := s.utils.EncodeJPEG(annotate.Render(img.Pixels, dets))
		if err != nil {
			return nil, fmt.Errorf("encode annotated image: %w", err)
		}

		record := entity.NewDefectRecord(dets)
		record.Sweep = &entity.SweepLocation{
			Latitude:   img.Point.Latitude,
			Longitude:  img.Point.Longitude,
			StreetName: img.StreetName,
			Heading:    img.Heading,
		}

		items = append(items, assembledDefect{
			record:    record,
			original:  img.Data,
			annotated: annotated,
		})
	}

	return items, nil
}

// assembleReport flattens the detections of a single uploaded image. The
// boolean is false when nothing was detected.
func (s *defectService) assembleReport(pixels image.Image, detections [][]entity.Detection, details entity.ReportDetails) (assembledDefect, bool, error) {
	var flat []entity.Detection
	for _, dets := range detections {
		flat = append(flat, dets...)
	}
	if len(flat) == 0 {
		return assembledDefect{}, false, nil
	}

	original, err := s.utils.EncodeJPEG(pixels)
	if err != nil {
		return assembledDefect{}, false, fmt.Errorf("encode original image: %w", err)
	}
	annotated, err := s.utils.EncodeJPEG(annotate.Render(pixels, flat))
	if err != nil {
		return assembledDefect{}, false, fmt.Errorf("encode annotated image: %w", err)
	}

	record := entity.NewDefectRecord(flat)
	record.Report = &details

	return assembledDefect{
		record:    record,
		original:  original,
		annotated: annotated,
	}, true, nil
}
