package defectService

import (
	"SafeRoad/internal/api/defect"
	"SafeRoad/internal/entity"
	contextPkg "SafeRoad/pkg/context"
	"SafeRoad/pkg/hub"
	"context"
)

func (s *defectService) ListDefects(ctx context.Context) []entity.DefectRecord {
	return s.fetchAll(ctx, defect.CollectionDefects)
}

func (s *defectService) ListReports(ctx context.Context) []entity.DefectRecord {
	return s.fetchAll(ctx, defect.CollectionReports)
}

// Subscribe registers a live subscriber whose first item is the current
// defect list.
func (s *defectService) Subscribe(ctx context.Context) *hub.Subscriber[[]entity.DefectRecord] {
	return s.hub.Subscribe(func() []entity.DefectRecord {
		return s.snapshot(ctx)
	})
}

func (s *defectService) Unsubscribe(sub *hub.Subscriber[[]entity.DefectRecord]) {
	s.hub.Unsubscribe(sub)
}

// broadcastDefects sends the current defect list to every subscriber. The
// read and the broadcast happen under one lock, so the last list delivered
// is never older than the last commit.
func (s *defectService) broadcastDefects(ctx context.Context) {
	s.broadcastMu.Lock()
	delivered := s.hub.Broadcast(s.snapshot(ctx))
	s.broadcastMu.Unlock()

	s.log.WithField("request_id", contextPkg.GetRequestID(ctx)).
		WithField("subscribers", delivered).
		Debug("Broadcast defect snapshot")
}

// snapshot reads the full defect list outside the caller's deadline.
func (s *defectService) snapshot(ctx context.Context) []entity.DefectRecord {
	c, cancel := context.WithTimeout(contextPkg.Detached(ctx), snapshotTimeout)
	defer cancel()

	return s.fetchAll(c, defect.CollectionDefects)
}
