package defectHandler

import (
	"SafeRoad/internal/entity"
	"SafeRoad/internal/middleware"
	contextPkg "SafeRoad/pkg/context"
	"SafeRoad/pkg/hub"
	"SafeRoad/pkg/log"
	"bufio"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"golang.org/x/net/context"
)

// Stream pushes the defect list as server-sent events: the current snapshot
// first, then one event per committed sweep.
func (h *DefectHandler) Stream(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	sub := h.defectService.Subscribe(contextPkg.FromFiberCtx(ctx))

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"subscriber": sub.ID(),
	}).Info("Event stream subscriber connected")

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.defectService.Unsubscribe(sub)
		h.streamEvents(context.Background(), w, sub, requestID)
	}))

	return nil
}

// streamEvents writes items from sub until it is closed, ctx ends or a write
// fails. A comment line is sent whenever the heartbeat interval passes
// without an item.
func (h *DefectHandler) streamEvents(ctx context.Context, w *bufio.Writer, sub *hub.Subscriber[[]entity.DefectRecord], requestID string) {
	fields := log.Fields{
		"request_id": requestID,
		"subscriber": sub.ID(),
	}

	for {
		wait, cancel := context.WithTimeout(ctx, h.heartbeat)
		records, err := sub.Next(wait)
		cancel()

		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				h.log.WithFields(fields).Info("Event stream subscriber disconnected")
				return
			}
			if err := w.Flush(); err != nil {
				h.log.WithFields(fields).Info("Event stream subscriber disconnected")
				return
			}
			continue
		}
		if err != nil {
			return
		}

		payload, err := jsoniter.Marshal(nonNil(records))
		if err != nil {
			h.log.WithFields(fields).WithField("error", err.Error()).Error("Failed to encode defect snapshot")
			continue
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			h.log.WithFields(fields).Info("Event stream subscriber disconnected")
			return
		}
		if err := w.Flush(); err != nil {
			h.log.WithFields(fields).Info("Event stream subscriber disconnected")
			return
		}
	}
}

func (h *DefectHandler) handleWebSocket(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)

	ctx, cancel := context.WithCancel(contextPkg.WithRequestID(context.Background(), requestID))
	defer cancel()

	sub := h.defectService.Subscribe(ctx)
	defer h.defectService.Unsubscribe(sub)

	fields := log.Fields{
		"request_id": requestID,
		"subscriber": sub.ID(),
	}
	h.log.WithFields(fields).Info("Websocket subscriber connected")
	defer h.log.WithFields(fields).Info("Websocket subscriber disconnected")

	// Client messages are ignored; the read loop only notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.WithFields(fields).WithField("error", err.Error()).Warn("Websocket read failed")
				}
				return
			}
		}
	}()

	for {
		records, err := sub.Next(ctx)
		if err != nil {
			return
		}

		if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return
		}
		if err := c.WriteJSON(nonNil(records)); err != nil {
			h.log.WithFields(fields).WithField("error", err.Error()).Warn("Websocket write failed")
			return
		}
	}
}
