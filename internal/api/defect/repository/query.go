package defectRepository

const (
	queryPutDocument = `
		INSERT INTO documents (
			collection,
			id,
			body,
			upload_timestamp
		) VALUES (
			:collection,
			:id,
			CAST(:body AS jsonb),
			:upload_timestamp
		)
	`

	queryGetAllDocuments = `
		SELECT
			id,
			body,
			upload_timestamp
		FROM documents
		WHERE collection = :collection
		ORDER BY upload_timestamp, id
	`
)
