package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-sheet-grader/internal/dto"
	"github.com/noah-isme/gema-sheet-grader/internal/middleware"
	"github.com/noah-isme/gema-sheet-grader/internal/models"
	"github.com/noah-isme/gema-sheet-grader/internal/service"
	"github.com/noah-isme/gema-sheet-grader/internal/utils"
)

// SubmissionIDHeader lets a client pick the run id it will follow on the events stream.
const SubmissionIDHeader = "X-Submission-ID"

// SubmissionHandler accepts photographed answer sheets and streams run state.
type SubmissionHandler struct {
	pipeline  service.SubmissionPipeline
	broker    *service.StateBroker
	maxImage  int64
	openImage func(*multipart.FileHeader) (multipart.File, error)
	logger    zerolog.Logger
}

// NewSubmissionHandler builds a submission handler. A nil broker disables the events stream.
func NewSubmissionHandler(pipeline service.SubmissionPipeline, broker *service.StateBroker, maxImageBytes int64, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		pipeline: pipeline,
		broker:   broker,
		maxImage: maxImageBytes,
		openImage: func(header *multipart.FileHeader) (multipart.File, error) {
			return header.Open()
		},
		logger: logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the submission routes to the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/assessments/:assessmentId/:assessmentType/submissions", h.submit)

	if h.broker == nil {
		return
	}

	router.Use("/submissions", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/submissions/:submissionId/events", websocket.New(h.streamEvents))
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	image, err := h.readImage(c)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read uploaded image")
		rejection := &service.ValidationError{Err: service.ErrImageUnreadable}
		return utils.SendErrorWithData(c, submissionErrorStatus(rejection), service.UserMessage(rejection), dto.SubmissionResponse{
			State:          string(service.StateIdle),
			AssessmentID:   c.Params("assessmentId"),
			AssessmentType: c.Params("assessmentType"),
		})
	}

	runID := strings.TrimSpace(c.FormValue("submission_id"))
	if runID == "" {
		runID = strings.TrimSpace(c.Get(SubmissionIDHeader))
	}

	var redirect string
	request := service.SubmissionRequest{
		RunID:          runID,
		AssessmentID:   c.Params("assessmentId"),
		AssessmentType: models.AssessmentType(c.Params("assessmentType")),
		Image:          image,
		CorrelationID:  middleware.GetCorrelationID(c),
		Navigator: service.NavigatorFunc(func(_ context.Context, path string) {
			redirect = path
			c.Set(fiber.HeaderLocation, path)
		}),
	}

	outcome := h.pipeline.Submit(requestContext(c), request)
	response := newSubmissionResponse(outcome, redirect)

	if outcome.Err != nil {
		if service.IsRejected(outcome.Err) {
			logger.Info().Err(outcome.Err).Str("run_id", outcome.RunID).Msg("submission rejected")
		} else {
			logger.Warn().Err(outcome.Err).Str("run_id", outcome.RunID).Str("stage", service.FailureStage(outcome.Err)).Msg("submission failed")
		}
		return utils.SendErrorWithData(c, submissionErrorStatus(outcome.Err), outcome.Message, response)
	}

	return utils.SendSuccess(c, outcome.Summary, response)
}

// readImage returns an empty image when the form carries no file, so the pipeline reports
// the missing-image validation message.
func (h *SubmissionHandler) readImage(c *fiber.Ctx) (service.Image, error) {
	header, err := c.FormFile("image")
	if err != nil {
		return service.Image{}, nil
	}

	file, err := h.openImage(header)
	if err != nil {
		return service.Image{}, err
	}
	defer file.Close()

	reader := io.Reader(file)
	if h.maxImage > 0 {
		// one extra byte lets the pipeline see the payload is over the limit
		reader = io.LimitReader(file, h.maxImage+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return service.Image{}, err
	}

	return service.Image{FileName: header.Filename, Data: data}, nil
}

func (h *SubmissionHandler) streamEvents(conn *websocket.Conn) {
	runID := strings.TrimSpace(conn.Params("submissionId"))
	if runID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "submission id required"))
		_ = conn.Close()
		return
	}

	events, cleanup := h.broker.Subscribe(runID)
	defer cleanup()
	defer conn.Close()

	logger := h.logger.With().Str("run_id", runID).Logger()
	logger.Debug().Msg("state stream connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			logger.Debug().Msg("state stream disconnected")
			return
		case change, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				logger.Warn().Err(err).Msg("failed to write state change")
				return
			}
			if change.To.IsTerminal() {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(change.To)))
				return
			}
		}
	}
}

func newSubmissionResponse(outcome service.SubmissionOutcome, redirect string) dto.SubmissionResponse {
	response := dto.SubmissionResponse{
		RunID:          outcome.RunID,
		State:          string(outcome.State),
		AssessmentID:   outcome.AssessmentID,
		AssessmentType: outcome.AssessmentType.String(),
		ResultID:       outcome.ResultID,
		Summary:        outcome.Summary,
		Redirect:       redirect,
	}

	if outcome.Essay != nil {
		score := outcome.Essay.Overall
		response.Score = &score
	}
	if outcome.Identification != nil {
		correct := outcome.Identification.CorrectCount
		total := outcome.Identification.TotalItems
		manual := outcome.Identification.ManualCheckCount
		response.CorrectCount = &correct
		response.TotalItems = &total
		response.ManualCheckCount = &manual
	}

	return response
}

func submissionErrorStatus(err error) int {
	var (
		validationErr  *service.ValidationError
		gradingErr     *service.GradingRequestError
		scoringErr     *service.ScoringError
		persistenceErr *service.PersistenceError
	)

	switch {
	case errors.Is(err, service.ErrSubmissionInProgress):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrImageTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest
	case errors.As(err, &gradingErr):
		return fiber.StatusBadGateway
	case errors.As(err, &scoringErr):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &persistenceErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
