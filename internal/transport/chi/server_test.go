package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clearfreight/hscodex/internal/domain"
	conversationuc "github.com/clearfreight/hscodex/internal/usecase/conversation"
	healthuc "github.com/clearfreight/hscodex/internal/usecase/health"
)

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClassify(t *testing.T) {
	var gotDescription, gotCountry string
	cls := &mockClassifier{
		classifyFn: func(_ context.Context, description, country string, _ map[string]string) ([]domain.ClassificationResult, error) {
			gotDescription, gotCountry = description, country
			return okResults(), nil
		},
	}
	router := testRouter(cls, nil, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/classify",
		`{"description":"fresh mangoes","country":"US"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotDescription != "fresh mangoes" || gotCountry != "US" {
		t.Errorf("classify called with (%q, %q)", gotDescription, gotCountry)
	}

	var resp ClassifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Code != "0804.50" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestClassifyValidation(t *testing.T) {
	router := testRouter(nil, nil, nil, nil)

	tests := []struct {
		name string
		body string
		code ErrorCode
	}{
		{"empty description", `{"description":"  "}`, ErrorCodeValidationFailed},
		{"oversized description", `{"description":"` + strings.Repeat("x", maxDescriptionLen+1) + `"}`, ErrorCodeValidationFailed},
		{"malformed body", `{"description":`, ErrorCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/classify", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestClassifyProviderError(t *testing.T) {
	cls := &mockClassifier{
		classifyFn: func(context.Context, string, string, map[string]string) ([]domain.ClassificationResult, error) {
			return nil, domain.ErrEmbeddingProviderError
		},
	}
	router := testRouter(cls, nil, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/classify", `{"description":"steel bolts"}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestStartConversationAsksQuestions(t *testing.T) {
	conv := &mockConversations{
		startFn: func(context.Context, string, string, string) (conversationuc.Response, error) {
			return conversationuc.Response{
				Type:           conversationuc.ResponseQuestions,
				ConversationID: "c-1",
				Status:         domain.ConversationActive,
				Questions: []domain.ClarifyingQuestion{
					{ID: "vehicle_type", Text: "What vehicle is it for?"},
				},
			}, nil
		},
	}
	router := testRouter(nil, conv, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/conversations", `{"description":"brake pads"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var resp conversationuc.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ConversationID != "c-1" || len(resp.Questions) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestStartConversationConfident(t *testing.T) {
	router := testRouter(nil, nil, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/conversations", `{"description":"fresh mangoes"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp conversationuc.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != conversationuc.ResponseClassification || resp.ConversationID != "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestAnswerConversation(t *testing.T) {
	var gotID string
	var gotAnswers map[string]string
	var gotSkip bool
	conv := &mockConversations{
		answerFn: func(_ context.Context, id string, answers map[string]string, skip bool) (conversationuc.Response, error) {
			gotID, gotAnswers, gotSkip = id, answers, skip
			return conversationuc.Response{
				Type:    conversationuc.ResponseClassification,
				Status:  domain.ConversationCompleted,
				Results: okResults(),
			}, nil
		},
	}
	router := testRouter(nil, conv, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/conversations/c-7/answers",
		`{"answers":{"vehicle_type":"bicycle"}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotID != "c-7" || gotAnswers["vehicle_type"] != "bicycle" || gotSkip {
		t.Errorf("answer called with (%q, %v, %v)", gotID, gotAnswers, gotSkip)
	}
}

func TestAnswerUnknownConversation(t *testing.T) {
	conv := &mockConversations{
		answerFn: func(context.Context, string, map[string]string, bool) (conversationuc.Response, error) {
			return conversationuc.Response{}, domain.ErrConversationNotFound
		},
	}
	router := testRouter(nil, conv, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/conversations/missing/answers", `{"skip":true}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != ErrorCodeNotFound {
		t.Errorf("code = %q, want %q", resp.Code, ErrorCodeNotFound)
	}
}

func TestAnswerClosedConversation(t *testing.T) {
	conv := &mockConversations{
		answerFn: func(_ context.Context, id string, _ map[string]string, _ bool) (conversationuc.Response, error) {
			return conversationuc.Response{}, domain.NewConversationStateError(id, domain.ConversationCompleted)
		},
	}
	router := testRouter(nil, conv, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/conversations/c-9/answers",
		`{"answers":{"material":"rubber"}}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != ErrorCodeConversationClosed {
		t.Errorf("code = %q, want %q", resp.Code, ErrorCodeConversationClosed)
	}
	if resp.Status != string(domain.ConversationCompleted) {
		t.Errorf("status = %q, want %q", resp.Status, domain.ConversationCompleted)
	}
}

func TestCancelConversation(t *testing.T) {
	var gotID string
	conv := &mockConversations{
		cancelFn: func(_ context.Context, id string) (conversationuc.Response, error) {
			gotID = id
			return conversationuc.Response{
				Type:    conversationuc.ResponseClassification,
				Status:  domain.ConversationAbandoned,
				Results: okResults(),
			}, nil
		},
	}
	router := testRouter(nil, conv, nil, nil)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/conversations/c-3", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotID != "c-3" {
		t.Errorf("cancel called with %q", gotID)
	}
	var resp conversationuc.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.ConversationAbandoned {
		t.Errorf("status = %q, want %q", resp.Status, domain.ConversationAbandoned)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		report healthuc.Report
		want   int
	}{
		{
			"healthy",
			healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK}},
			http.StatusOK,
		},
		{
			"degraded still serves",
			healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{
				"database": healthuc.CheckOK, "embedding": healthuc.CheckError,
			}},
			http.StatusOK,
		},
		{
			"unhealthy",
			healthuc.Report{Status: healthuc.Unhealthy, Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckError}},
			http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(nil, nil, &mockHealth{report: tt.report}, nil)
			rec := doJSON(t, router, http.MethodGet, "/healthz", "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
