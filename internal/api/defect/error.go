package defect

import (
	"SafeRoad/pkg/response"
	"net/http"
)

var (
	ErrInvalidCoordinates  = response.NewError(http.StatusBadRequest, "center coordinates out of range")
	ErrInvalidRadius       = response.NewError(http.StatusBadRequest, "radius must be greater than zero")
	ErrInvalidNumPoints    = response.NewError(http.StatusBadRequest, "number of points must not be negative")
	ErrInvalidThreshold    = response.NewError(http.StatusBadRequest, "threshold must be in [0, 1)")
	ErrMissingReportFields = response.NewError(http.StatusBadRequest, "description and location are required")
	ErrMissingImage        = response.NewError(http.StatusBadRequest, "image is required")
	ErrInvalidImage        = response.NewError(http.StatusBadRequest, "image could not be decoded")

	ErrCoverageExhausted  = response.NewError(http.StatusUnprocessableEntity, "not enough street view coverage in the requested area")
	ErrImageryUnavailable = response.NewError(http.StatusBadGateway, "imagery service unavailable")
	ErrDetectionFailed    = response.NewError(http.StatusBadGateway, "detection service failed")
	ErrPersistFailed      = response.NewError(http.StatusInternalServerError, "failed to store defect records")
	ErrUploadFailed       = response.NewError(http.StatusInternalServerError, "failed to upload defect images")
)
