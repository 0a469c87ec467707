package defectService

import (
	"SafeRoad/internal/api/defect"
	"SafeRoad/internal/entity"
	"SafeRoad/pkg/broker"
	contextPkg "SafeRoad/pkg/context"
	"SafeRoad/pkg/response"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	prefixOriginal  = "original"
	prefixAnnotated = "annotated"
	contentTypeJPEG = "image/jpeg"

	snapshotTimeout = 15 * time.Second
)

type commitEvent struct {
	Collection string   `json:"collection"`
	IDs        []string `json:"ids"`
	Classes    []string `json:"classes"`
}

// commitSweep uploads every item and writes the survivors in one batch.
// Items whose upload fails are logged and left out; a failed batch write
// fails the call and leaves the uploaded blobs behind.
func (s *defectService) commitSweep(ctx context.Context, items []assembledDefect) ([]entity.DefectRecord, error) {
	requestID := contextPkg.GetRequestID(ctx)
	records := make([]entity.DefectRecord, 0, len(items))

	for i, item := range items {
		record, err := s.stage(ctx, item)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"item":       i,
				"error":      err.Error(),
			}).Warn("Skipping defect after upload failure")
			continue
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return records, nil
	}

	if err := s.writeBatch(ctx, defect.CollectionDefects, records); err != nil {
		return nil, response.Wrap(defect.ErrPersistFailed, err)
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"committed":  len(records),
		"skipped":    len(items) - len(records),
	}).Info("Committed sweep defects")

	s.publish(ctx, broker.EventDefectsCommitted, defect.CollectionDefects, records)

	return records, nil
}

// commitReport is commitSweep for a single report, except that an upload
// failure is fatal.
func (s *defectService) commitReport(ctx context.Context, item assembledDefect) (entity.DefectRecord, error) {
	record, err := s.stage(ctx, item)
	if err != nil {
		return entity.DefectRecord{}, response.Wrap(defect.ErrUploadFailed, err)
	}

	if err := s.writeBatch(ctx, defect.CollectionReports, []entity.DefectRecord{record}); err != nil {
		return entity.DefectRecord{}, response.Wrap(defect.ErrPersistFailed, err)
	}

	s.publish(ctx, broker.EventReportCommitted, defect.CollectionReports, []entity.DefectRecord{record})

	return record, nil
}

// stage uploads both images of item and commits the record identity.
func (s *defectService) stage(ctx context.Context, item assembledDefect) (entity.DefectRecord, error) {
	originalURL, err := s.s3Client.Upload(ctx, item.original, prefixOriginal, contentTypeJPEG)
	if err != nil {
		return entity.DefectRecord{}, fmt.Errorf("upload original: %w", err)
	}

	annotatedURL, err := s.s3Client.Upload(ctx, item.annotated, prefixAnnotated, contentTypeJPEG)
	if err != nil {
		return entity.DefectRecord{}, fmt.Errorf("upload annotated: %w", err)
	}

	record := item.record
	err = record.Commit(s.newID(), s.now().UTC().Truncate(time.Second), entity.DefectImages{
		OriginalURL:  originalURL,
		AnnotatedURL: annotatedURL,
	})
	if err != nil {
		return entity.DefectRecord{}, err
	}

	return record, nil
}

func (s *defectService) writeBatch(ctx context.Context, collection string, records []entity.DefectRecord) error {
	requestID := contextPkg.GetRequestID(ctx)

	client, err := s.defectRepo.NewClient(true)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to start transaction")
		return err
	}

	for _, record := range records {
		if err := client.Documents.PutDocument(ctx, collection, record); err != nil {
			if rbErr := client.Rollback(); rbErr != nil {
				s.log.WithFields(logrus.Fields{
					"request_id": requestID,
					"error":      rbErr.Error(),
				}).Error("Failed to rollback transaction")
			}
			return err
		}
	}

	if err := client.Commit(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to commit transaction")
		return err
	}

	return nil
}

// fetchAll never fails: a backend error is logged and reads as empty.
func (s *defectService) fetchAll(ctx context.Context, collection string) []entity.DefectRecord {
	client, err := s.defectRepo.NewClient(false)
	if err == nil {
		var records []entity.DefectRecord
		records, err = client.Documents.GetAllDocuments(ctx, collection)
		if err == nil {
			return records
		}
	}

	s.log.WithFields(logrus.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"collection": collection,
		"error":      err.Error(),
	}).Error("Failed to read defect documents")

	return []entity.DefectRecord{}
}

func (s *defectService) publish(ctx context.Context, eventType, collection string, records []entity.DefectRecord) {
	event := commitEvent{Collection: collection, IDs: make([]string, 0, len(records))}
	seen := map[string]struct{}{}
	for _, r := range records {
		event.IDs = append(event.IDs, r.ID)
		for _, c := range r.Classes() {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				event.Classes = append(event.Classes, c)
			}
		}
	}

	if err := s.broker.Publish(ctx, eventType, event); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"event_type": eventType,
			"error":      err.Error(),
		}).Warn("Failed to publish commit event")
	}
}
