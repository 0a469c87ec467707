package defectService

import (
	defectRepository "SafeRoad/internal/api/defect/repository"
	"SafeRoad/internal/entity"
	"SafeRoad/pkg/google"
	"SafeRoad/pkg/hub"
	"SafeRoad/pkg/utils"
	websocketPkg "SafeRoad/pkg/websocket"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockImagery struct {
	mock.Mock
}

func (m *MockImagery) HasPanorama(ctx context.Context, p entity.GeoPoint) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

func (m *MockImagery) FetchImage(ctx context.Context, req google.ImageRequest) ([]byte, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockImagery) ResolveStreetName(ctx context.Context, p entity.GeoPoint) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

// fakeDetector answers each batch with run and names classes from names.
type fakeDetector struct {
	mu    sync.Mutex
	calls int
	sizes []int
	run   func(images [][]byte) ([][]websocketPkg.Box, error)
	names map[int]string
}

func (d *fakeDetector) Run(_ context.Context, images [][]byte) ([][]websocketPkg.Box, error) {
	d.mu.Lock()
	d.calls++
	d.sizes = append(d.sizes, len(images))
	d.mu.Unlock()
	return d.run(images)
}

func (d *fakeDetector) LabelFor(class int) string {
	if name, ok := d.names[class]; ok {
		return name
	}
	return fmt.Sprintf("class_%d", class)
}

func (d *fakeDetector) IsConnected() bool { return true }
func (d *fakeDetector) Reconnect() error  { return nil }
func (d *fakeDetector) CloseConnections() {}

// fakeBlobStore counts uploads and fails the ones fail selects.
type fakeBlobStore struct {
	mu      sync.Mutex
	calls   int
	uploads []string
	fail    func(call int, prefix string) bool
}

func (b *fakeBlobStore) Upload(_ context.Context, data []byte, prefix string, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	if b.fail != nil && b.fail(b.calls, prefix) {
		return "", errors.New("s3: access denied")
	}
	if len(data) == 0 || contentType != "image/jpeg" {
		return "", errors.New("bad upload")
	}
	url := fmt.Sprintf("https://cdn.test/%s/%d.jpg", prefix, b.calls)
	b.uploads = append(b.uploads, url)
	return url, nil
}

// memoryStore is a transactional in-memory document store.
type memoryStore struct {
	mu       sync.Mutex
	docs     map[string][]entity.DefectRecord
	putErr   error
	getErr   error
	commits  int
	rollback int
	reads    int
	// afterRead runs after each GetAllDocuments copy, outside the lock.
	afterRead func(call int)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: map[string][]entity.DefectRecord{}}
}

type pendingDoc struct {
	collection string
	record     entity.DefectRecord
}

type memoryDocuments struct {
	store   *memoryStore
	pending []pendingDoc
}

func (d *memoryDocuments) PutDocument(_ context.Context, collection string, record entity.DefectRecord) error {
	if d.store.putErr != nil {
		return d.store.putErr
	}
	d.pending = append(d.pending, pendingDoc{collection: collection, record: record})
	return nil
}

func (d *memoryDocuments) GetAllDocuments(_ context.Context, collection string) ([]entity.DefectRecord, error) {
	d.store.mu.Lock()
	if d.store.getErr != nil {
		d.store.mu.Unlock()
		return nil, d.store.getErr
	}
	d.store.reads++
	call := d.store.reads
	out := append([]entity.DefectRecord{}, d.store.docs[collection]...)
	d.store.mu.Unlock()

	if d.store.afterRead != nil {
		d.store.afterRead(call)
	}
	return out, nil
}

func (m *memoryStore) NewClient(tx bool) (defectRepository.Client, error) {
	docs := &memoryDocuments{store: m}

	commit := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, p := range docs.pending {
			m.docs[p.collection] = append(m.docs[p.collection], p.record)
		}
		docs.pending = nil
		m.commits++
		return nil
	}
	rollback := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		docs.pending = nil
		m.rollback++
		return nil
	}

	return defectRepository.Client{Documents: docs, Commit: commit, Rollback: rollback}, nil
}

func (m *memoryStore) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

type testDeps struct {
	imagery  *MockImagery
	detector *fakeDetector
	blobs    *fakeBlobStore
	store    *memoryStore
	hub      *hub.Hub[[]entity.DefectRecord]
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestService(t *testing.T, cfg Config, opts ...Option) (*defectService, *testDeps) {
	t.Helper()

	deps := &testDeps{
		imagery: new(MockImagery),
		detector: &fakeDetector{
			names: map[int]string{0: "pothole", 1: "crack"},
			run: func(images [][]byte) ([][]websocketPkg.Box, error) {
				return make([][]websocketPkg.Box, len(images)), nil
			},
		},
		blobs: &fakeBlobStore{},
		store: newMemoryStore(),
		hub:   hub.New[[]entity.DefectRecord](quietLogger()),
	}

	ids := 0
	base := []Option{
		WithRand(rand.New(rand.NewSource(7))),
		WithClock(func() time.Time { return time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { ids++; return fmt.Sprintf("rec-%d", ids) }),
	}

	svc := NewDefectService(
		quietLogger(),
		deps.store,
		deps.imagery,
		deps.detector,
		deps.blobs,
		deps.hub,
		nil,
		utils.New(),
		cfg,
		append(base, opts...)...,
	)

	return svc.(*defectService), deps
}

func testConfig() Config {
	return Config{Threshold: 0.25, MaxAttemptsPerPoint: 50, AcquireConcurrency: 3}
}

func solidJPEG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func flatDistanceKm(a, b entity.GeoPoint) float64 {
	dy := (b.Latitude - a.Latitude) * kmPerDegree
	dx := (b.Longitude - a.Longitude) * kmPerDegree * math.Cos(a.Latitude*math.Pi/180)
	return math.Hypot(dx, dy)
}

func ptr[T any](v T) *T {
	return &v
}
