package service

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-sheet-grader/internal/config"
	"github.com/noah-isme/gema-sheet-grader/internal/models"
	"github.com/noah-isme/gema-sheet-grader/internal/observability"
)

// imageFieldName is the multipart field the grading service reads the answer sheet from.
const imageFieldName = "image"

// maxGradingResponseBytes caps how much of a grading response body is read.
const maxGradingResponseBytes = 8 << 20

// schemaBaseURL namespaces the embedded schemas so the compiler never fetches them.
const schemaBaseURL = "https://schemas.gema.local/"

//go:embed schemas/*.json
var schemaFS embed.FS

// Image is a captured answer sheet.
type Image struct {
	FileName string
	Data     []byte
}

// GradingResponse holds the typed grading output matching the dispatched assessment type.
type GradingResponse struct {
	Type           models.AssessmentType
	Essay          *models.EssayGradingResponse
	Identification *models.IdentificationGradingResponse
}

// GradingDispatcher sends answer sheet images to the external grading service.
type GradingDispatcher interface {
	Dispatch(ctx context.Context, assessmentType models.AssessmentType, image Image) (GradingResponse, error)
}

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type gradingDispatcher struct {
	client               HTTPDoer
	endpoints            config.Endpoints
	essaySchema          *jsonschema.Schema
	identificationSchema *jsonschema.Schema
	logger               zerolog.Logger
	tracer               trace.Tracer
}

// NewGradingDispatcher constructs a dispatcher posting to the grading endpoints derived from endpoints.
func NewGradingDispatcher(client HTTPDoer, endpoints config.Endpoints, logger zerolog.Logger) (GradingDispatcher, error) {
	if client == nil {
		client = http.DefaultClient
	}

	essaySchema, err := compileSchema("schemas/essay_grading.schema.json")
	if err != nil {
		return nil, err
	}
	identificationSchema, err := compileSchema("schemas/identification_grading.schema.json")
	if err != nil {
		return nil, err
	}

	return &gradingDispatcher{
		client:               client,
		endpoints:            endpoints,
		essaySchema:          essaySchema,
		identificationSchema: identificationSchema,
		logger:               logger.With().Str("component", "grading_dispatcher").Logger(),
		tracer:               otel.Tracer("github.com/noah-isme/gema-sheet-grader/internal/service/grading"),
	}, nil
}

func (d *gradingDispatcher) Dispatch(ctx context.Context, assessmentType models.AssessmentType, image Image) (GradingResponse, error) {
	if len(image.Data) == 0 {
		return GradingResponse{}, &ValidationError{Err: ErrImageRequired}
	}

	endpoint, schema, err := d.route(assessmentType)
	if err != nil {
		return GradingResponse{}, err
	}

	ctx, span := d.tracer.Start(ctx, "grading.dispatch", trace.WithAttributes(
		attribute.String("grading.assessment_type", assessmentType.String()),
		attribute.String("grading.endpoint", endpoint),
		attribute.Int("grading.image_bytes", len(image.Data)),
	))
	defer span.End()

	body, contentType, err := buildImageForm(image)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "form_build_failed")
		return GradingResponse{}, &GradingRequestError{Endpoint: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request_build_failed")
		return GradingResponse{}, &GradingRequestError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		observability.OutboundFailures().WithLabelValues("grading", "transport").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport_failed")
		d.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("grading request failed")
		return GradingResponse{}, &GradingRequestError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("grading.status_code", resp.StatusCode))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		observability.OutboundFailures().WithLabelValues("grading", "status").Inc()
		err := &GradingRequestError{Endpoint: endpoint, StatusCode: resp.StatusCode}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected_status")
		d.logger.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("grading service rejected image")
		return GradingResponse{}, err
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxGradingResponseBytes))
	if err != nil {
		observability.OutboundFailures().WithLabelValues("grading", "read").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "read_failed")
		return GradingResponse{}, &GradingRequestError{Endpoint: endpoint, Err: err}
	}

	result, err := decodeGradingResponse(assessmentType, schema, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema_violation")
		return GradingResponse{}, err
	}

	d.logger.Debug().
		Str("endpoint", endpoint).
		Dur("latency", time.Since(start)).
		Msg("grading response received")
	span.SetStatus(codes.Ok, "graded")

	return result, nil
}

func (d *gradingDispatcher) route(assessmentType models.AssessmentType) (string, *jsonschema.Schema, error) {
	switch assessmentType {
	case models.AssessmentTypeEssay:
		return d.endpoints.EssayGrading, d.essaySchema, nil
	case models.AssessmentTypeIdentification:
		return d.endpoints.IdentificationGrading, d.identificationSchema, nil
	default:
		return "", nil, &ValidationError{Err: models.ErrUnknownAssessmentType}
	}
}

func buildImageForm(image Image) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fileName := strings.TrimSpace(image.FileName)
	if fileName == "" {
		fileName = "answer-sheet" + mimetype.Detect(image.Data).Extension()
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, imageFieldName, escapeQuotes(fileName)))
	header.Set("Content-Type", mimetype.Detect(image.Data).String())

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func decodeGradingResponse(assessmentType models.AssessmentType, schema *jsonschema.Schema, payload []byte) (GradingResponse, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return GradingResponse{}, &ScoringError{Reason: "grading response is not valid json", Err: err}
	}
	if err := schema.Validate(raw); err != nil {
		return GradingResponse{}, &ScoringError{Reason: "grading response does not match schema", Err: err}
	}

	result := GradingResponse{Type: assessmentType}
	switch assessmentType {
	case models.AssessmentTypeEssay:
		var essay models.EssayGradingResponse
		if err := json.Unmarshal(payload, &essay); err != nil {
			return GradingResponse{}, &ScoringError{Reason: "decode essay response", Err: err}
		}
		result.Essay = &essay
	case models.AssessmentTypeIdentification:
		var identification models.IdentificationGradingResponse
		if err := json.Unmarshal(payload, &identification); err != nil {
			return GradingResponse{}, &ScoringError{Reason: "decode identification response", Err: err}
		}
		result.Identification = &identification
	}

	return result, nil
}

func compileSchema(name string) (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}

	schema, err := jsonschema.CompileString(schemaBaseURL+name, string(data))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}

	return schema, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
