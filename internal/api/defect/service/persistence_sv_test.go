package defectService

import (
	"SafeRoad/internal/api/defect"
	"SafeRoad/internal/entity"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assembledItems(n int) []assembledDefect {
	items := make([]assembledDefect, n)
	for i := range items {
		record := entity.NewDefectRecord([]entity.Detection{{Class: "pothole", Confidence: 0.8}})
		record.Sweep = &entity.SweepLocation{Latitude: float64(i), StreetName: "Jalan Gatot Subroto"}
		items[i] = assembledDefect{record: record, original: []byte("orig"), annotated: []byte("anno")}
	}
	return items
}

func TestCommitSweep_UploadFailureSkipsOnlyThatRecord(t *testing.T) {
	svc, deps := newTestService(t, testConfig())
	// Uploads run original then annotated per item, so call 3 is item 2's original.
	deps.blobs.fail = func(call int, prefix string) bool { return call == 3 }

	records, err := svc.commitSweep(context.Background(), assembledItems(5))

	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, 4, deps.store.count(defect.CollectionDefects))
	assert.Equal(t, 1, deps.store.commits)

	for _, r := range records {
		assert.True(t, r.IsCommitted())
		assert.NotEqual(t, 1.0, r.Sweep.Latitude)
		assert.Contains(t, r.Images.OriginalURL, "/original/")
		assert.Contains(t, r.Images.AnnotatedURL, "/annotated/")
		assert.Equal(t, "2026-05-04T08:30:00Z", r.Timestamp)
	}
}

func TestCommitSweep_EveryUploadFails(t *testing.T) {
	svc, deps := newTestService(t, testConfig())
	deps.blobs.fail = func(int, string) bool { return true }

	records, err := svc.commitSweep(context.Background(), assembledItems(3))

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, deps.store.commits)
}

func TestCommitSweep_BatchWriteFailureCommitsNothing(t *testing.T) {
	svc, deps := newTestService(t, testConfig())
	deps.store.putErr = errors.New("deadline exceeded")

	records, err := svc.commitSweep(context.Background(), assembledItems(3))

	assert.Nil(t, records)
	assert.ErrorIs(t, err, defect.ErrPersistFailed)
	assert.Equal(t, 0, deps.store.count(defect.CollectionDefects))
	assert.Equal(t, 1, deps.store.rollback)
	assert.Len(t, deps.blobs.uploads, 6)
}

func TestCommitSweep_Empty(t *testing.T) {
	svc, deps := newTestService(t, testConfig())

	records, err := svc.commitSweep(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, deps.blobs.calls)
	assert.Equal(t, 0, deps.store.commits)
}

func TestCommitReport_UploadFailureIsFatal(t *testing.T) {
	svc, deps := newTestService(t, testConfig())
	deps.blobs.fail = func(call int, prefix string) bool { return prefix == "annotated" }

	item := assembledItems(1)[0]
	item.record.Sweep = nil
	item.record.Report = &entity.ReportDetails{Description: "d", Location: "l", Status: "Unsolved", ReportedBy: "user"}

	_, err := svc.commitReport(context.Background(), item)

	assert.ErrorIs(t, err, defect.ErrUploadFailed)
	assert.Equal(t, 0, deps.store.count(defect.CollectionReports))
}

func TestFetchAll_BackendErrorReadsEmpty(t *testing.T) {
	svc, deps := newTestService(t, testConfig())
	deps.store.getErr = errors.New("connection refused")

	records := svc.ListDefects(context.Background())

	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFetchAll_RepeatableWithoutCommits(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	_, err := svc.commitSweep(context.Background(), assembledItems(3))
	require.NoError(t, err)

	first := svc.ListDefects(context.Background())
	second := svc.ListDefects(context.Background())

	require.Len(t, first, 3)
	assert.ElementsMatch(t, first, second)
	assert.Empty(t, svc.ListReports(context.Background()))
}
