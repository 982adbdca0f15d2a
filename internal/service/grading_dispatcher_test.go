package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-sheet-grader/internal/config"
	"github.com/noah-isme/gema-sheet-grader/internal/models"
)

// samplePNG carries the PNG signature followed by an IHDR chunk header.
var samplePNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53, 0xde,
}

type failingDoer struct {
	calls int32
}

func (d *failingDoer) Do(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&d.calls, 1)
	return nil, errors.New("connection refused")
}

func newTestDispatcher(t *testing.T, client HTTPDoer, base string) GradingDispatcher {
	t.Helper()

	dispatcher, err := NewGradingDispatcher(client, config.NewEndpoints(base), zerolog.Nop())
	require.NoError(t, err)
	return dispatcher
}

func TestGradingDispatcherPostsImageToEssayEndpoint(t *testing.T) {
	var (
		calls    int32
		path     string
		received []byte
		fileName string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		path = r.URL.Path

		file, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		received, _ = io.ReadAll(file)
		fileName = header.Filename

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"studentName":"Juan","essayContent":"...","criteria":[{"name":"Content","rating":8,"maxRating":10}]}`))
	}))
	defer server.Close()

	dispatcher := newTestDispatcher(t, server.Client(), server.URL+"/")

	result, err := dispatcher.Dispatch(context.Background(), models.AssessmentTypeEssay, Image{Data: samplePNG})
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, "/essay", path)
	require.Equal(t, samplePNG, received)
	require.Equal(t, "answer-sheet.png", fileName)

	require.NotNil(t, result.Essay)
	require.Nil(t, result.Identification)
	require.Equal(t, "Juan", result.Essay.StudentName)
	require.Len(t, result.Essay.Criteria, 1)
	require.Equal(t, 10.0, result.Essay.Criteria[0].MaxRating)
}

func TestGradingDispatcherRoutesIdentification(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"studentName":"Ana","items":[{"itemNumber":1,"isCorrect":true},{"itemNumber":2,"isCorrect":false,"manualCheck":true}]}`))
	}))
	defer server.Close()

	dispatcher := newTestDispatcher(t, server.Client(), server.URL)

	result, err := dispatcher.Dispatch(context.Background(), models.AssessmentTypeIdentification, Image{FileName: "sheet.png", Data: samplePNG})
	require.NoError(t, err)
	require.Equal(t, "/identification", path)
	require.NotNil(t, result.Identification)
	require.Len(t, result.Identification.Items, 2)
	require.True(t, result.Identification.Items[1].ManualCheck)
}

func TestGradingDispatcherNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dispatcher := newTestDispatcher(t, server.Client(), server.URL)

	_, err := dispatcher.Dispatch(context.Background(), models.AssessmentTypeEssay, Image{Data: samplePNG})
	var gradingErr *GradingRequestError
	require.ErrorAs(t, err, &gradingErr)
	require.Equal(t, http.StatusInternalServerError, gradingErr.StatusCode)
	require.Equal(t, MessageGradingRequest, UserMessage(err))
}

func TestGradingDispatcherTransportFailure(t *testing.T) {
	doer := &failingDoer{}
	dispatcher := newTestDispatcher(t, doer, "http://grader.invalid")

	_, err := dispatcher.Dispatch(context.Background(), models.AssessmentTypeIdentification, Image{Data: samplePNG})
	var gradingErr *GradingRequestError
	require.ErrorAs(t, err, &gradingErr)
	require.Equal(t, "http://grader.invalid/identification", gradingErr.Endpoint)
	require.Equal(t, int32(1), atomic.LoadInt32(&doer.calls))
}

func TestGradingDispatcherRejectsMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"not json":           `<html>oops</html>`,
		"missing criteria":   `{"studentName":"Juan"}`,
		"rating as string":   `{"criteria":[{"name":"Content","rating":"8","maxRating":10}]}`,
		"missing max rating": `{"criteria":[{"name":"Content","rating":8}]}`,
		"blank name":         `{"criteria":[{"name":"   ","rating":8,"maxRating":10}]}`,
	}

	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			dispatcher := newTestDispatcher(t, server.Client(), server.URL)

			_, err := dispatcher.Dispatch(context.Background(), models.AssessmentTypeEssay, Image{Data: samplePNG})
			var scoringErr *ScoringError
			require.ErrorAs(t, err, &scoringErr)
		})
	}
}

func TestGradingDispatcherRejectsFractionalItemNumber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"itemNumber":1.5,"isCorrect":true}]}`))
	}))
	defer server.Close()

	dispatcher := newTestDispatcher(t, server.Client(), server.URL)

	_, err := dispatcher.Dispatch(context.Background(), models.AssessmentTypeIdentification, Image{Data: samplePNG})
	var scoringErr *ScoringError
	require.ErrorAs(t, err, &scoringErr)
}

func TestGradingDispatcherEmptyImageSkipsNetwork(t *testing.T) {
	doer := &failingDoer{}
	dispatcher := newTestDispatcher(t, doer, "http://grader.invalid")

	_, err := dispatcher.Dispatch(context.Background(), models.AssessmentTypeEssay, Image{})
	require.ErrorIs(t, err, ErrImageRequired)
	require.Equal(t, int32(0), atomic.LoadInt32(&doer.calls))
}

func TestGradingDispatcherUnknownType(t *testing.T) {
	doer := &failingDoer{}
	dispatcher := newTestDispatcher(t, doer, "http://grader.invalid")

	_, err := dispatcher.Dispatch(context.Background(), models.AssessmentType("quiz"), Image{Data: samplePNG})
	require.ErrorIs(t, err, models.ErrUnknownAssessmentType)
	require.Equal(t, int32(0), atomic.LoadInt32(&doer.calls))
}
