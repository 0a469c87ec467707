package defectService

import (
	"SafeRoad/internal/api/defect"
	defectRepository "SafeRoad/internal/api/defect/repository"
	"SafeRoad/internal/entity"
	"SafeRoad/pkg/broker"
	"SafeRoad/pkg/gemini"
	"SafeRoad/pkg/google"
	"SafeRoad/pkg/hub"
	"SafeRoad/pkg/s3"
	"SafeRoad/pkg/utils"
	websocketPkg "SafeRoad/pkg/websocket"
	"context"
	"math"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultThreshold           = 0.25
	defaultMaxAttemptsPerPoint = 50
	defaultAcquireConcurrency  = 4
)

type IDefectService interface {
	SampleAndDetect(ctx context.Context, req defect.AnalyzeRequest) ([]entity.DefectRecord, error)
	SubmitReport(ctx context.Context, in defect.ReportInput) (*defect.ReportOutcome, error)
	ListDefects(ctx context.Context) []entity.DefectRecord
	ListReports(ctx context.Context) []entity.DefectRecord
	Subscribe(ctx context.Context) *hub.Subscriber[[]entity.DefectRecord]
	Unsubscribe(sub *hub.Subscriber[[]entity.DefectRecord])
}

// Config holds the pipeline tunables. MaxAttemptsPerPoint of 0 disables the
// sampler retry cap.
type Config struct {
	Threshold           float64
	MaxAttemptsPerPoint int
	AcquireConcurrency  int
}

func ConfigFromEnv() Config {
	cfg := Config{
		Threshold:           defaultThreshold,
		MaxAttemptsPerPoint: defaultMaxAttemptsPerPoint,
		AcquireConcurrency:  defaultAcquireConcurrency,
	}

	if v, err := strconv.ParseFloat(os.Getenv("DETECTION_THRESHOLD"), 64); err == nil && v >= 0 && v < 1 {
		cfg.Threshold = v
	}
	if v, err := strconv.Atoi(os.Getenv("SAMPLER_MAX_ATTEMPTS")); err == nil && v >= 0 {
		cfg.MaxAttemptsPerPoint = v
	}
	if v, err := strconv.Atoi(os.Getenv("ACQUIRE_CONCURRENCY")); err == nil && v > 0 {
		cfg.AcquireConcurrency = v
	}

	return cfg
}

type Option func(*defectService)

func WithClock(now func() time.Time) Option {
	return func(s *defectService) {
		s.now = now
	}
}

func WithRand(rnd *rand.Rand) Option {
	return func(s *defectService) {
		s.rnd = rnd
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *defectService) {
		s.newID = newID
	}
}

// WithDescriber enables AI summaries on submitted reports.
func WithDescriber(describer gemini.IGemini) Option {
	return func(s *defectService) {
		s.describer = describer
	}
}

type defectService struct {
	log        *logrus.Logger
	defectRepo defectRepository.Repository
	imagery    google.ItfGoogle
	detector   websocketPkg.IDetector
	s3Client   s3.ItfS3
	hub        *hub.Hub[[]entity.DefectRecord]
	broker     broker.IBroker
	describer  gemini.IGemini
	utils      utils.IUtils
	cfg        Config

	// broadcastMu orders snapshot reads with their broadcasts.
	broadcastMu sync.Mutex

	rndMu sync.Mutex
	rnd   *rand.Rand
	now   func() time.Time
	newID func() string
}

func NewDefectService(
	log *logrus.Logger,
	defectRepo defectRepository.Repository,
	imagery google.ItfGoogle,
	detector websocketPkg.IDetector,
	s3Client s3.ItfS3,
	defectHub *hub.Hub[[]entity.DefectRecord],
	eventBroker broker.IBroker,
	utils utils.IUtils,
	cfg Config,
	opts ...Option,
) IDefectService {
	if cfg.AcquireConcurrency <= 0 {
		cfg.AcquireConcurrency = defaultAcquireConcurrency
	}
	if eventBroker == nil {
		eventBroker = broker.Noop{}
	}

	s := &defectService{
		log:        log,
		defectRepo: defectRepo,
		imagery:    imagery,
		detector:   detector,
		s3Client:   s3Client,
		hub:        defectHub,
		broker:     eventBroker,
		utils:      utils,
		cfg:        cfg,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
		newID:      uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *defectService) resolveThreshold(t *float64) (float64, error) {
	if t == nil {
		return s.cfg.Threshold, nil
	}
	if math.IsNaN(*t) || *t < 0 || *t >= 1 {
		return 0, defect.ErrInvalidThreshold
	}
	return *t, nil
}
