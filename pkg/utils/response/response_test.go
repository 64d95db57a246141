package response_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "codelab/pkg/errors"
	"codelab/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, handler gin.HandlerFunc) (int, response.Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", func(c *gin.Context) {
		c.Set("trace_id", "trace-1")
		handler(c)
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	var resp response.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return rec.Code, resp
}

func TestResponses(t *testing.T) {
	tests := []struct {
		name     string
		handler  gin.HandlerFunc
		status   int
		code     apperrors.ErrorCode
		message  string
		hasData  bool
		hasDetai bool
	}{
		{
			name:    "success",
			handler: func(c *gin.Context) { response.Success(c, gin.H{"ok": true}) },
			status:  http.StatusOK, code: apperrors.Success, message: "Success", hasData: true,
		},
		{
			name:    "list",
			handler: func(c *gin.Context) { response.SuccessWithList(c, []int{1, 2}, 2) },
			status:  http.StatusOK, code: apperrors.Success, message: "Success", hasData: true,
		},
		{
			name:    "validation error",
			handler: func(c *gin.Context) { response.Error(c, apperrors.ValidationError("code", "required")) },
			status:  http.StatusBadRequest, code: apperrors.ValidationFailed, message: "Validation failed", hasDetai: true,
		},
		{
			name:    "uncoded error",
			handler: func(c *gin.Context) { response.Error(c, errors.New("boom")) },
			status:  http.StatusInternalServerError, code: apperrors.InternalServerError, message: "boom",
		},
		{
			name:    "code with default message",
			handler: func(c *gin.Context) { response.ErrorWithCode(c, apperrors.ExerciseNotFound, "") },
			status:  http.StatusNotFound, code: apperrors.ExerciseNotFound, message: "Exercise not found",
		},
		{
			name:    "bad request",
			handler: func(c *gin.Context) { response.BadRequest(c, "limit must be positive") },
			status:  http.StatusBadRequest, code: apperrors.InvalidParams, message: "limit must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := serve(t, tt.handler)
			if status != tt.status || resp.Code != tt.code || resp.Message != tt.message {
				t.Fatalf("got %d %d %q", status, resp.Code, resp.Message)
			}
			if resp.TraceID != "trace-1" {
				t.Fatalf("trace id missing")
			}
			if (resp.Data != nil) != tt.hasData || (resp.Details != nil) != tt.hasDetai {
				t.Fatalf("unexpected data %v details %v", resp.Data, resp.Details)
			}
		})
	}
}
