package defectHandler

import (
	"SafeRoad/internal/api/defect"
	"SafeRoad/internal/entity"
	"SafeRoad/internal/middleware"
	"SafeRoad/pkg/hub"
	jwtPkg "SafeRoad/pkg/jwt"
	"SafeRoad/pkg/utils"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDefectService struct {
	mock.Mock
}

func (m *MockDefectService) SampleAndDetect(ctx context.Context, req defect.AnalyzeRequest) ([]entity.DefectRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.DefectRecord), args.Error(1)
}

func (m *MockDefectService) SubmitReport(ctx context.Context, in defect.ReportInput) (*defect.ReportOutcome, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*defect.ReportOutcome), args.Error(1)
}

func (m *MockDefectService) ListDefects(ctx context.Context) []entity.DefectRecord {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]entity.DefectRecord)
}

func (m *MockDefectService) ListReports(ctx context.Context) []entity.DefectRecord {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]entity.DefectRecord)
}

func (m *MockDefectService) Subscribe(ctx context.Context) *hub.Subscriber[[]entity.DefectRecord] {
	args := m.Called(ctx)
	return args.Get(0).(*hub.Subscriber[[]entity.DefectRecord])
}

func (m *MockDefectService) Unsubscribe(sub *hub.Subscriber[[]entity.DefectRecord]) {
	m.Called(sub)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestApp(t *testing.T, svc *MockDefectService) *fiber.App {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv(jwtPkg.AccessTokenSecret, "handler-test-secret")

	log := quietLogger()
	mw := middleware.New(log)

	app := fiber.New()
	app.Use(mw.NewRequestIDMiddleware())
	New(log, validator.New(), mw, svc, utils.New()).Start(app.Group("/api/v1"))

	return app
}

func committedRecord(t *testing.T, id string) entity.DefectRecord {
	t.Helper()
	r := entity.NewDefectRecord([]entity.Detection{{
		Class:       "pothole",
		Confidence:  0.8,
		BoundingBox: entity.BoundingBox{X1: 1, Y1: 2, X2: 30, Y2: 40},
	}})
	r.Sweep = &entity.SweepLocation{Latitude: -6.2, Longitude: 106.8, StreetName: "Jalan Sudirman", Heading: 90}
	require.NoError(t, r.Commit(id, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), entity.DefectImages{
		OriginalURL:  "https://cdn.example.com/originals/" + id + ".jpg",
		AnnotatedURL: "https://cdn.example.com/annotated/" + id + ".jpg",
	}))
	return r
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func multipartReport(t *testing.T, image []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="road.jpg"`)
		h.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	return &body, w.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestAnalyze_ReturnsCommittedList(t *testing.T) {
	svc := new(MockDefectService)
	app := newTestApp(t, svc)

	svc.On("SampleAndDetect", mock.Anything, mock.MatchedBy(func(req defect.AnalyzeRequest) bool {
		return *req.CenterLat == -6.2 && *req.NumPoints == 2 && req.Threshold == nil
	})).Return([]entity.DefectRecord{committedRecord(t, "a"), committedRecord(t, "b")}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze",
		strings.NewReader(`{"center_lat":-6.2,"center_lng":106.8,"radius_km":1.5,"num_points":2}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got []map[string]interface{}
	decodeBody(t, resp, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0]["id"])
	assert.Equal(t, []interface{}{"pothole"}, got[0]["defect_classes"])
	svc.AssertExpectations(t)
}

func TestAnalyze_EmptySweepIsEmptyArray(t *testing.T) {
	svc := new(MockDefectService)
	app := newTestApp(t, svc)

	svc.On("SampleAndDetect", mock.Anything, mock.Anything).Return(nil, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze",
		strings.NewReader(`{"center_lat":0,"center_lng":0,"radius_km":1,"num_points":0}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `[]`, string(body))
}

func TestAnalyze_RejectsInvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing center", body: `{"center_lng":106.8,"radius_km":1,"num_points":2}`},
		{name: "latitude out of range", body: `{"center_lat":91,"center_lng":106.8,"radius_km":1,"num_points":2}`},
		{name: "zero radius", body: `{"center_lat":1,"center_lng":1,"radius_km":0,"num_points":2}`},
		{name: "negative points", body: `{"center_lat":1,"center_lng":1,"radius_km":1,"num_points":-1}`},
		{name: "threshold of one", body: `{"center_lat":1,"center_lng":1,"radius_km":1,"num_points":1,"threshold":1}`},
		{name: "malformed json", body: `{"center_lat":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockDefectService)
			app := newTestApp(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(tt.body))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			svc.AssertNotCalled(t, "SampleAndDetect", mock.Anything, mock.Anything)
		})
	}
}

func TestAnalyze_DomainErrorStatus(t *testing.T) {
	svc := new(MockDefectService)
	app := newTestApp(t, svc)

	svc.On("SampleAndDetect", mock.Anything, mock.Anything).Return(nil, defect.ErrCoverageExhausted).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze",
		strings.NewReader(`{"center_lat":0,"center_lng":-150,"radius_km":1,"num_points":3}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	var got map[string]string
	decodeBody(t, resp, &got)
	assert.Equal(t, defect.ErrCoverageExhausted.Error(), got["error"])
}

func TestReport_Created(t *testing.T) {
	svc := new(MockDefectService)
	app := newTestApp(t, svc)

	record := committedRecord(t, "r-1")
	record.Sweep = nil
	record.Report = &entity.ReportDetails{
		Description: "Deep hole",
		Location:    "Jalan Merdeka 5",
		Status:      defect.ReportStatusUnsolved,
		ReportedBy:  defect.DefaultReporter,
	}

	img := jpegBytes(t)
	svc.On("SubmitReport", mock.Anything, mock.MatchedBy(func(in defect.ReportInput) bool {
		return bytes.Equal(in.Image, img) &&
			in.Description == "Deep hole" &&
			in.Location == "Jalan Merdeka 5" &&
			in.Threshold != nil && *in.Threshold == 0.4 &&
			in.ReportedBy == ""
	})).Return(&defect.ReportOutcome{Record: &record}, nil).Once()

	body, contentType := multipartReport(t, img, map[string]string{
		"description": "Deep hole",
		"location":    "Jalan Merdeka 5",
		"threshold":   "0.4",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/report", body)
	req.Header.Set(fiber.HeaderContentType, contentType)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var got struct {
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	decodeBody(t, resp, &got)
	assert.Equal(t, defect.ReportCreatedMessage, got.Message)
	assert.Equal(t, "r-1", got.Data["id"])
	assert.Equal(t, "Jalan Merdeka 5", got.Data["location"])
	assert.Equal(t, "Unsolved", got.Data["status"])
	svc.AssertExpectations(t)
}

func TestReport_NoDefect(t *testing.T) {
	svc := new(MockDefectService)
	app := newTestApp(t, svc)

	svc.On("SubmitReport", mock.Anything, mock.Anything).Return(&defect.ReportOutcome{NoDefect: true}, nil).Once()

	body, contentType := multipartReport(t, jpegBytes(t), map[string]string{
		"description": "Looks fine",
		"location":    "Jalan Merdeka 5",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/report", body)
	req.Header.Set(fiber.HeaderContentType, contentType)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"message":"No defects detected in the image"}`, string(raw))
}

func TestReport_UsesTokenIdentity(t *testing.T) {
	svc := new(MockDefectService)
	app := newTestApp(t, svc)

	token, _, err := jwtPkg.Sign(map[string]interface{}{"id": "u-7", "username": "siti", "email": "siti@example.com"}, time.Hour)
	require.NoError(t, err)

	svc.On("SubmitReport", mock.Anything, mock.MatchedBy(func(in defect.ReportInput) bool {
		return in.ReportedBy == "siti"
	})).Return(&defect.ReportOutcome{NoDefect: true}, nil).Once()

	body, contentType := multipartReport(t, jpegBytes(t), map[string]string{
		"description": "Crack",
		"location":    "Jalan Thamrin",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/report", body)
	req.Header.Set(fiber.HeaderContentType, contentType)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	svc.AssertExpectations(t)
}

func TestReport_MissingInput(t *testing.T) {
	tests := []struct {
		name   string
		image  bool
		fields map[string]string
	}{
		{name: "no image", image: false, fields: map[string]string{"description": "d", "location": "l"}},
		{name: "no description", image: true, fields: map[string]string{"location": "l"}},
		{name: "no location", image: true, fields: map[string]string{"description": "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockDefectService)
			app := newTestApp(t, svc)

			var img []byte
			if tt.image {
				img = jpegBytes(t)
			}
			body, contentType := multipartReport(t, img, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/report", body)
			req.Header.Set(fiber.HeaderContentType, contentType)

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			svc.AssertNotCalled(t, "SubmitReport", mock.Anything, mock.Anything)
		})
	}
}

func TestListDefects_AndReports(t *testing.T) {
	svc := new(MockDefectService)
	app := newTestApp(t, svc)

	svc.On("ListDefects", mock.Anything).Return([]entity.DefectRecord{committedRecord(t, "d-1")}).Once()
	svc.On("ListReports", mock.Anything).Return(nil).Once()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/defects", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var defects []map[string]interface{}
	decodeBody(t, resp, &defects)
	require.Len(t, defects, 1)
	assert.Equal(t, "d-1", defects[0]["id"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil), -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `[]`, string(raw))
	svc.AssertExpectations(t)
}

func TestDefectsWebsocket_RequiresUpgrade(t *testing.T) {
	svc := new(MockDefectService)
	app := newTestApp(t, svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/defects/ws", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
	svc.AssertNotCalled(t, "Subscribe", mock.Anything)
}
