package defect

import "SafeRoad/internal/entity"

const (
	CollectionDefects = "road_defects"
	CollectionReports = "defect_reports"

	ReportStatusUnsolved = "Unsolved"
	DefaultReporter      = "user"

	NoDefectMessage      = "No defects detected in the image"
	ReportCreatedMessage = "Report submitted successfully"
)

// AnalyzeRequest is the body of a sweep request. Pointer fields let the
// validator tell a missing value from an explicit zero.
type AnalyzeRequest struct {
	CenterLat *float64 `json:"center_lat" validate:"required,min=-90,max=90"`
	CenterLng *float64 `json:"center_lng" validate:"required,min=-180,max=180"`
	RadiusKm  *float64 `json:"radius_km" validate:"required,gt=0,lte=50"`
	NumPoints *int     `json:"num_points" validate:"required,gte=0,lte=50"`
	Threshold *float64 `json:"threshold,omitempty" validate:"omitempty,gte=0,lt=1"`
}

func (r AnalyzeRequest) Center() entity.GeoPoint {
	var p entity.GeoPoint
	if r.CenterLat != nil {
		p.Latitude = *r.CenterLat
	}
	if r.CenterLng != nil {
		p.Longitude = *r.CenterLng
	}
	return p
}

type ReportRequest struct {
	Description string   `form:"description" validate:"required,max=2000"`
	Location    string   `form:"location" validate:"required,max=500"`
	Threshold   *float64 `form:"threshold" validate:"omitempty,gte=0,lt=1"`
}

// ReportInput is a report after transport decoding. ReportedBy is empty for
// anonymous submissions.
type ReportInput struct {
	Image       []byte
	Description string
	Location    string
	Threshold   *float64
	ReportedBy  string
}

// ReportOutcome is either NoDefect or a committed Record, never both.
type ReportOutcome struct {
	NoDefect bool
	Record   *entity.DefectRecord
}

type ReportResponse struct {
	Message string               `json:"message"`
	Data    *entity.DefectRecord `json:"data,omitempty"`
}
