package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-sheet-grader/internal/config"
	"github.com/noah-isme/gema-sheet-grader/internal/dto"
)

func TestResultSubmitterPostsEssayPayload(t *testing.T) {
	var (
		path    string
		payload dto.EssayResultRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"essay-42"}`))
	}))
	defer server.Close()

	submitter := NewResultSubmitter(server.Client(), config.NewEndpoints(server.URL), zerolog.Nop())
	response := sampleEssayResponse()
	score, err := AggregateEssay(response)
	require.NoError(t, err)

	persisted, err := submitter.SubmitEssay(context.Background(), "asm-1", response, score)
	require.NoError(t, err)
	require.Equal(t, "essay-42", persisted.ID)

	require.Equal(t, "/essay-results", path)
	require.Equal(t, "Juan Dela Cruz", payload.StudentName)
	require.Equal(t, "asm-1", payload.AssessmentID)
	require.InDelta(t, score.Overall, payload.Score, 1e-9)
	require.Len(t, payload.QuestionResults, 1)
	require.Equal(t, "1", payload.QuestionResults[0].QuestionID)
	require.InDelta(t, score.Overall, payload.QuestionResults[0].Score, 1e-9)

	criteria := payload.QuestionResults[0].EssayCriteriaResults
	require.Len(t, criteria, 3)
	require.Equal(t, "content", criteria[0].CriteriaID)
	require.Equal(t, "organization", criteria[1].CriteriaID)
	require.InDelta(t, 90, criteria[1].Score, 1e-9)
}

func TestResultSubmitterPostsIdentificationPayload(t *testing.T) {
	var payload dto.IdentificationResultRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/identification-results", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"id":"ident-7"}`))
	}))
	defer server.Close()

	submitter := NewResultSubmitter(server.Client(), config.NewEndpoints(server.URL), zerolog.Nop())
	response := sampleIdentificationResponse(4, 3)
	score, err := AggregateIdentification(response)
	require.NoError(t, err)

	persisted, err := submitter.SubmitIdentification(context.Background(), "asm-2", response, score)
	require.NoError(t, err)
	require.Equal(t, "ident-7", persisted.ID)

	require.Len(t, payload.QuestionResults, 4)
	for i, result := range payload.QuestionResults {
		require.Equal(t, []string{"1", "2", "3", "4"}[i], result.QuestionID)
		require.Equal(t, i < 3, result.IsCorrect)
	}
}

func TestResultSubmitterFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"redirect status": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotModified)
		},
		"missing id": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"id":"  "}`))
		},
		"malformed body": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`created`))
		},
	}

	for name, handler := range cases {
		handler := handler
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			submitter := NewResultSubmitter(server.Client(), config.NewEndpoints(server.URL), zerolog.Nop())
			response := sampleIdentificationResponse(2, 1)
			score, err := AggregateIdentification(response)
			require.NoError(t, err)

			_, err = submitter.SubmitIdentification(context.Background(), "asm-3", response, score)
			var persistenceErr *PersistenceError
			require.ErrorAs(t, err, &persistenceErr)
			require.Equal(t, MessagePersistence, UserMessage(err))
		})
	}
}

func TestResultSubmitterTransportFailure(t *testing.T) {
	doer := &failingDoer{}
	submitter := NewResultSubmitter(doer, config.NewEndpoints("http://store.invalid"), zerolog.Nop())
	response := sampleEssayResponse()
	score, err := AggregateEssay(response)
	require.NoError(t, err)

	_, err = submitter.SubmitEssay(context.Background(), "asm-1", response, score)
	var persistenceErr *PersistenceError
	require.ErrorAs(t, err, &persistenceErr)
	require.Equal(t, "http://store.invalid/essay-results", persistenceErr.Endpoint)
}

func TestBuiltRequestsMatchPersistenceSchemas(t *testing.T) {
	essaySchema, err := compileSchema("schemas/essay_result_request.schema.json")
	require.NoError(t, err)
	identificationSchema, err := compileSchema("schemas/identification_result_request.schema.json")
	require.NoError(t, err)

	essay := sampleEssayResponse()
	essayScore, err := AggregateEssay(essay)
	require.NoError(t, err)
	requireMatchesSchema(t, essaySchema.Validate, BuildEssayResultRequest("asm-1", essay, essayScore))

	identification := sampleIdentificationResponse(10, 7)
	identificationScore, err := AggregateIdentification(identification)
	require.NoError(t, err)
	requireMatchesSchema(t, identificationSchema.Validate, BuildIdentificationResultRequest("asm-2", identification, identificationScore))
}

func requireMatchesSchema(t *testing.T, validate func(interface{}) error, payload interface{}) {
	t.Helper()

	encoded, err := json.Marshal(payload)
	require.NoError(t, err)

	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var document interface{}
	require.NoError(t, decoder.Decode(&document))
	require.NoError(t, validate(document))
}
