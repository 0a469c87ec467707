package defectService

import (
	"SafeRoad/internal/api/defect"
	"SafeRoad/internal/entity"
	contextPkg "SafeRoad/pkg/context"
	"SafeRoad/pkg/response"
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

func (s *defectService) SubmitReport(ctx context.Context, in defect.ReportInput) (*defect.ReportOutcome, error) {
	requestID := contextPkg.GetRequestID(ctx)

	description := strings.TrimSpace(in.Description)
	location := strings.TrimSpace(in.Location)
	if description == "" || location == "" {
		return nil, defect.ErrMissingReportFields
	}
	if len(in.Image) == 0 {
		return nil, defect.ErrMissingImage
	}
	threshold, err := s.resolveThreshold(in.Threshold)
	if err != nil {
		return nil, err
	}

	pixels, _, err := s.utils.DecodeImage(in.Image)
	if err != nil {
		return nil, response.Wrap(defect.ErrInvalidImage, err)
	}

	detections, err := s.detect(ctx, [][]byte{in.Image}, threshold)
	if err != nil {
		return nil, err
	}

	reportedBy := in.ReportedBy
	if reportedBy == "" {
		reportedBy = defect.DefaultReporter
	}

	item, found, err := s.assembleReport(pixels, detections, entity.ReportDetails{
		Description: description,
		Location:    location,
		Status:      defect.ReportStatusUnsolved,
		ReportedBy:  reportedBy,
	})
	if err != nil {
		return nil, err
	}
	if !found {
		s.log.WithField("request_id", requestID).Info("Report image has no defects")
		return &defect.ReportOutcome{NoDefect: true}, nil
	}

	s.describe(ctx, &item)

	record, err := s.commitReport(ctx, item)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"request_id":  requestID,
		"id":          record.ID,
		"classes":     record.Classes(),
		"reported_by": reportedBy,
	}).Info("Report committed")

	return &defect.ReportOutcome{Record: &record}, nil
}

// describe attaches an AI summary when a describer is configured. Failures
// leave the report without one.
func (s *defectService) describe(ctx context.Context, item *assembledDefect) {
	if s.describer == nil {
		return
	}

	summary, err := s.describer.DescribeDefects(ctx, item.original, item.record.Classes())
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Warn("Defect description failed")
		return
	}

	item.record.Report.AISummary = summary
}
