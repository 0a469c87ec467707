package entity

import (
	"errors"
	"image"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const UploadTimestampLayout = "2006-01-02 15:04:05"

var ErrRecordAlreadyCommitted = errors.New("defect record already committed")

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CapturedImage lives only for the duration of one sweep request.
type CapturedImage struct {
	Point      GeoPoint
	Heading    int
	StreetName string
	Data       []byte
	Pixels     image.Image
}

type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type Detection struct {
	Confidence  float64     `json:"confidence"`
	Class       string      `json:"class"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

type DefectImages struct {
	OriginalURL  string `json:"original_url"`
	AnnotatedURL string `json:"annotated_url"`
}

type SweepLocation struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	StreetName string  `json:"street_name"`
	Heading    int     `json:"heading"`
}

type ReportDetails struct {
	Description string `json:"description"`
	Location    string `json:"location"`
	Status      string `json:"status"`
	ReportedBy  string `json:"reported_by"`
	AISummary   string `json:"ai_summary,omitempty"`
}

type DefectKind string

const (
	SweepDefect  DefectKind = "sweep"
	ReportDefect DefectKind = "report"
)

// DefectRecord is the persisted unit of the defect ledger. Exactly one of
// Sweep or Report is set. Detections and their class set are only reachable
// through NewDefectRecord and the accessors so the two never disagree.
type DefectRecord struct {
	ID         string
	Timestamp  string
	UploadedAt time.Time
	Images     *DefectImages
	Sweep      *SweepLocation
	Report     *ReportDetails

	details []Detection
	classes []string
}

func NewDefectRecord(details []Detection) DefectRecord {
	r := DefectRecord{}
	r.setDetails(details)
	return r
}

func (r *DefectRecord) setDetails(details []Detection) {
	r.details = append([]Detection(nil), details...)
	r.classes = distinctClasses(r.details)
}

func (r DefectRecord) Details() []Detection {
	return append([]Detection(nil), r.details...)
}

func (r DefectRecord) Classes() []string {
	return append([]string(nil), r.classes...)
}

func (r DefectRecord) Kind() DefectKind {
	if r.Report != nil {
		return ReportDefect
	}
	return SweepDefect
}

func (r DefectRecord) IsCommitted() bool {
	return r.ID != ""
}

// Commit stamps identity, commit time and the durable image URLs. It may
// only happen once per record.
func (r *DefectRecord) Commit(id string, at time.Time, images DefectImages) error {
	if r.ID != "" {
		return ErrRecordAlreadyCommitted
	}
	if id == "" || images.OriginalURL == "" || images.AnnotatedURL == "" {
		return errors.New("commit requires an id and both image urls")
	}
	r.ID = id
	r.Timestamp = at.Format(time.RFC3339)
	r.UploadedAt = at
	r.Images = &images
	return nil
}

func distinctClasses(details []Detection) []string {
	seen := make(map[string]struct{}, len(details))
	classes := make([]string, 0, len(details))
	for _, d := range details {
		if _, ok := seen[d.Class]; ok {
			continue
		}
		seen[d.Class] = struct{}{}
		classes = append(classes, d.Class)
	}
	return classes
}

type defectDocument struct {
	ID              string              `json:"id"`
	Timestamp       string              `json:"timestamp"`
	UploadTimestamp string              `json:"upload_timestamp,omitempty"`
	DefectClasses   []string            `json:"defect_classes"`
	DefectDetails   []Detection         `json:"defect_details"`
	Images          *DefectImages       `json:"images,omitempty"`
	Location        jsoniter.RawMessage `json:"location,omitempty"`
	Description     string              `json:"description,omitempty"`
	Status          string              `json:"status,omitempty"`
	ReportedBy      string              `json:"reported_by,omitempty"`
	AISummary       string              `json:"ai_summary,omitempty"`
}

// MarshalJSON renders the record in its document shape: sweep records carry
// an object "location", reports carry the reporter's free-text "location".
func (r DefectRecord) MarshalJSON() ([]byte, error) {
	doc := defectDocument{
		ID:            r.ID,
		Timestamp:     r.Timestamp,
		DefectClasses: r.classes,
		DefectDetails: r.details,
		Images:        r.Images,
	}
	if doc.DefectClasses == nil {
		doc.DefectClasses = []string{}
	}
	if doc.DefectDetails == nil {
		doc.DefectDetails = []Detection{}
	}
	if !r.UploadedAt.IsZero() {
		doc.UploadTimestamp = r.UploadedAt.Format(UploadTimestampLayout)
	}

	var (
		location []byte
		err      error
	)
	switch {
	case r.Report != nil:
		location, err = jsoniter.Marshal(r.Report.Location)
		doc.Description = r.Report.Description
		doc.Status = r.Report.Status
		doc.ReportedBy = r.Report.ReportedBy
		doc.AISummary = r.Report.AISummary
	case r.Sweep != nil:
		location, err = jsoniter.Marshal(r.Sweep)
	}
	if err != nil {
		return nil, err
	}
	doc.Location = location

	return jsoniter.Marshal(doc)
}

func (r *DefectRecord) UnmarshalJSON(data []byte) error {
	var doc defectDocument
	if err := jsoniter.Unmarshal(data, &doc); err != nil {
		return err
	}

	*r = DefectRecord{
		ID:        doc.ID,
		Timestamp: doc.Timestamp,
		Images:    doc.Images,
	}
	r.setDetails(doc.DefectDetails)

	if doc.UploadTimestamp != "" {
		if at, err := time.ParseInLocation(UploadTimestampLayout, doc.UploadTimestamp, time.UTC); err == nil {
			r.UploadedAt = at
		}
	}

	if len(doc.Location) == 0 || string(doc.Location) == "null" {
		return nil
	}
	if doc.Location[0] == '"' {
		report := &ReportDetails{
			Description: doc.Description,
			Status:      doc.Status,
			ReportedBy:  doc.ReportedBy,
			AISummary:   doc.AISummary,
		}
		if err := jsoniter.Unmarshal(doc.Location, &report.Location); err != nil {
			return err
		}
		r.Report = report
		return nil
	}

	var sweep SweepLocation
	if err := jsoniter.Unmarshal(doc.Location, &sweep); err != nil {
		return err
	}
	r.Sweep = &sweep
	return nil
}
