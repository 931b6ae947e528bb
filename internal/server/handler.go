package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facecascade/internal/cache"
	"github.com/dudu/facecascade/internal/detector"
	"github.com/dudu/facecascade/internal/imageio"
	"github.com/dudu/facecascade/internal/logger"
	"github.com/dudu/facecascade/internal/render"
)

// scanQuery holds the optional scan parameters of a request.
type scanQuery struct {
	MinSize float64 `query:"min_size" validate:"omitempty,gte=1"`
	Factor  float64 `query:"factor" validate:"omitempty,gt=0,lt=1"`
}

func (q scanQuery) params(defaults detector.ScanParams) detector.ScanParams {
	p := defaults
	if q.MinSize > 0 {
		p.MinFaceSize = q.MinSize
	}
	if q.Factor > 0 {
		p.ScaleFactor = q.Factor
	}
	return p
}

func (s *Server) detect(ctx *fiber.Ctx) error {
	reqID := requestID(ctx)

	var q scanQuery
	if err := ctx.QueryParser(&q); err != nil {
		return s.handleError(ctx, fmt.Errorf("%w: %v", detector.ErrInvalidParams, err), "parse_query")
	}
	if err := s.validator.Struct(q); err != nil {
		return s.handleError(ctx, fmt.Errorf("%w: %v", detector.ErrInvalidParams, err), "validate_query")
	}
	params := q.params(s.defaults)

	data, err := readImage(ctx)
	if err != nil {
		return s.handleError(ctx, err, "read_image")
	}

	c, cancel := context.WithTimeout(ctx.UserContext(), 30*time.Second)
	defer cancel()

	key := cache.Key(data, params)
	if s.cache != nil {
		res, ok, err := s.cache.Get(c, key)
		if err != nil {
			s.log.WithError(err).WithField(logger.RequestIDKey, reqID).Warn("cache lookup failed")
		} else if ok {
			ctx.Set("X-Cache", "hit")
			return ctx.Status(fiber.StatusOK).JSON(res)
		}
	}

	res, err := s.run(data, params)
	if err != nil {
		return s.handleError(ctx, err, "detect")
	}

	if s.cache != nil {
		if err := s.cache.Set(c, key, res); err != nil {
			s.log.WithError(err).WithField(logger.RequestIDKey, reqID).Warn("cache store failed")
		}
	}

	s.log.WithFields(logrus.Fields{
		logger.RequestIDKey: reqID,
		"faces":             res.Count,
		"total_ms":          res.Timing.TotalMS,
	}).Debug("detection finished")

	return ctx.Status(fiber.StatusOK).JSON(res)
}

// readImage returns the multipart "image" field, or the raw body when there is none.
func readImage(ctx *fiber.Ctx) ([]byte, error) {
	file, err := ctx.FormFile("image")
	if err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", detector.ErrInvalidImage, err)
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	body := ctx.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty request body", detector.ErrInvalidImage)
	}
	return append([]byte(nil), body...), nil
}

func (s *Server) run(data []byte, params detector.ScanParams) (render.Result, error) {
	img, err := imageio.DecodeBytes(data)
	if err != nil {
		return render.Result{}, fmt.Errorf("%w: %v", detector.ErrInvalidImage, err)
	}

	faces, timing, err := s.detector.DetectTimed(img, params)
	if err != nil {
		return render.Result{}, err
	}

	b := img.Bounds()
	return render.NewResult(b.Dx(), b.Dy(), faces, &timing), nil
}

func (s *Server) handleError(ctx *fiber.Ctx, err error, operation string) error {
	fields := logrus.Fields{
		logger.RequestIDKey: requestID(ctx),
		"path":              ctx.Path(),
		"operation":         operation,
		"error":             err.Error(),
	}

	if errors.Is(err, detector.ErrInvalidImage) || errors.Is(err, detector.ErrInvalidParams) {
		s.log.WithFields(fields).Warn("rejected request")
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	traceID := logger.ErrorWithTraceID(s.log, fields, "detection failed")
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":    "internal server error",
		"trace_id": traceID,
	})
}

// detectStream answers every binary frame with the JSON detections for it.
func (s *Server) detectStream(c *websocket.Conn) {
	log := s.log.WithField("remote", c.RemoteAddr().String())
	log.Info("detection stream connected")
	defer log.Info("detection stream disconnected")

	params, err := s.streamParams(c)
	if err != nil {
		s.writeStream(c, log, fiber.Map{"error": err.Error()})
		return
	}

	for {
		if err := c.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.WithError(err).Error("failed to set read deadline")
			return
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Error("detection stream error")
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			log.Warnf("unexpected message type: %d", messageType)
			continue
		}

		var payload any
		res, err := s.run(message, params)
		if err != nil {
			payload = fiber.Map{"error": err.Error()}
		} else {
			payload = res
		}
		if !s.writeStream(c, log, payload) {
			return
		}
	}
}

func (s *Server) streamParams(c *websocket.Conn) (detector.ScanParams, error) {
	var q scanQuery
	for name, dst := range map[string]*float64{"min_size": &q.MinSize, "factor": &q.Factor} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return detector.ScanParams{}, fmt.Errorf("%w: %s: %v", detector.ErrInvalidParams, name, err)
		}
		*dst = f
	}
	if err := s.validator.Struct(q); err != nil {
		return detector.ScanParams{}, fmt.Errorf("%w: %v", detector.ErrInvalidParams, err)
	}
	return q.params(s.defaults), nil
}

func (s *Server) writeStream(c *websocket.Conn, log logrus.FieldLogger, payload any) bool {
	data, err := jsonAPI.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("failed to encode response")
		return false
	}
	if err := c.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.WithError(err).Error("failed to set write deadline")
		return false
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		log.WithError(err).Error("failed to write response")
		return false
	}
	return true
}
