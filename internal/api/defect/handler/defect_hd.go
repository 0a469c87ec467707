package defectHandler

import (
	"SafeRoad/internal/api/defect"
	"SafeRoad/internal/entity"
	contextPkg "SafeRoad/pkg/context"
	"SafeRoad/pkg/handlerUtil"
	jwtPkg "SafeRoad/pkg/jwt"
	"SafeRoad/pkg/log"
	"SafeRoad/pkg/response"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *DefectHandler) Analyze(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), analyzeTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing analyze request")

	var req defect.AnalyzeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	records, err := h.defectService.SampleAndDetect(c, req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "sample_and_detect")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, nonNil(records))
	}
}

func (h *DefectHandler) Report(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), reportTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing report request")

	file, err := ctx.FormFile("image")
	if err != nil {
		return errHandler.Handle(ctx, requestID, response.Wrap(defect.ErrMissingImage, err), ctx.Path(), "read_image")
	}

	image, err := h.utils.ReadImageFile(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, response.Wrap(defect.ErrInvalidImage, err), ctx.Path(), "read_image")
	}

	var req defect.ReportRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	in := defect.ReportInput{
		Image:       image,
		Description: req.Description,
		Location:    req.Location,
		Threshold:   req.Threshold,
	}
	if user, err := jwtPkg.GetUserLoginData(ctx); err == nil {
		in.ReportedBy = user.Username
	}

	outcome, err := h.defectService.SubmitReport(c, in)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "submit_report")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		if outcome.NoDefect {
			return errHandler.HandleSuccess(ctx, fiber.StatusOK, defect.ReportResponse{
				Message: defect.NoDefectMessage,
			})
		}
		return errHandler.HandleSuccess(ctx, fiber.StatusCreated, defect.ReportResponse{
			Message: defect.ReportCreatedMessage,
			Data:    outcome.Record,
		})
	}
}

func (h *DefectHandler) ListDefects(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), listTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing list defects request")

	records := h.defectService.ListDefects(c)

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, nonNil(records))
	}
}

func (h *DefectHandler) ListReports(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), listTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing list reports request")

	records := h.defectService.ListReports(c)

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, nonNil(records))
	}
}

func nonNil(records []entity.DefectRecord) []entity.DefectRecord {
	if records == nil {
		return []entity.DefectRecord{}
	}
	return records
}
