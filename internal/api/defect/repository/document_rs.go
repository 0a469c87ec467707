package defectRepository

import (
	"SafeRoad/internal/entity"
	contextPkg "SafeRoad/pkg/context"
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var ErrUncommittedRecord = errors.New("record has no id")

type DocumentDB struct {
	ID              sql.NullString `db:"id"`
	Body            []byte         `db:"body"`
	UploadTimestamp sql.NullTime   `db:"upload_timestamp"`
}

func (r *documentsRepository) PutDocument(ctx context.Context, collection string, record entity.DefectRecord) error {
	requestID := contextPkg.GetRequestID(ctx)

	if !record.IsCommitted() {
		return ErrUncommittedRecord
	}

	body, err := jsoniter.Marshal(record)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to encode defect document")
		return err
	}

	argsKV := map[string]interface{}{
		"collection":       collection,
		"id":               record.ID,
		"body":             string(body),
		"upload_timestamp": record.UploadedAt,
	}

	query, args, err := sqlx.Named(queryPutDocument, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for PutDocument")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"collection": collection,
			"id":         record.ID,
			"error":      err.Error(),
		}).Error("Database error when writing defect document")
		return err
	}

	return nil
}

func (r *documentsRepository) GetAllDocuments(ctx context.Context, collection string) ([]entity.DefectRecord, error) {
	requestID := contextPkg.GetRequestID(ctx)

	query, args, err := sqlx.Named(queryGetAllDocuments, map[string]interface{}{
		"collection": collection,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetAllDocuments named query preparation err")
		return nil, err
	}
	query = r.q.Rebind(query)

	var rows []DocumentDB
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"collection": collection,
			"error":      err.Error(),
		}).Error("Database error when reading defect documents")
		return nil, err
	}

	records := make([]entity.DefectRecord, 0, len(rows))
	for _, row := range rows {
		var record entity.DefectRecord
		if err := jsoniter.Unmarshal(row.Body, &record); err != nil {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"collection": collection,
				"id":         row.ID.String,
				"error":      err.Error(),
			}).Warn("Skipping undecodable defect document")
			continue
		}

		if record.ID == "" {
			record.ID = row.ID.String
		}
		if row.UploadTimestamp.Valid {
			record.UploadedAt = row.UploadTimestamp.Time.UTC()
		}

		records = append(records, record)
	}

	return records, nil
}
