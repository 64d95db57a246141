package controller

import (
	"strconv"
	"strings"

	"codelab/internal/auth"
	"codelab/internal/engine"
	"codelab/internal/practice/catalog"
	"codelab/internal/practice/repository"
	"codelab/internal/practice/service"
	"codelab/pkg/errors"
	"codelab/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// PracticeController handles exercise, run and submission endpoints.
type PracticeController struct {
	practiceService *service.PracticeService
}

// NewPracticeController creates a new PracticeController.
func NewPracticeController(practiceService *service.PracticeService) *PracticeController {
	return &PracticeController{practiceService: practiceService}
}

// RegisterRoutes mounts the API under r. Submission routes require a token.
func (h *PracticeController) RegisterRoutes(r gin.IRouter, authService *auth.AuthService) {
	api := r.Group("/api/v1")
	api.GET("/exercises", h.ListExercises)
	api.GET("/exercises/:id", h.GetExercise)
	api.POST("/validate", h.Validate)
	api.POST("/run", h.Run)
	api.POST("/exercises/:id/check", h.Check)

	private := api.Group("", auth.AuthMiddleware(authService, true))
	private.POST("/exercises/:id/submissions", h.Submit)
	private.GET("/exercises/:id/submissions", h.ListSubmissions)
	private.GET("/submissions/:id", h.GetSubmission)
}

// ListExercises returns catalog summaries filtered by difficulty, tag and q.
func (h *PracticeController) ListExercises(c *gin.Context) {
	difficulty := catalog.Difficulty(strings.ToLower(c.Query("difficulty")))
	if difficulty == "all" {
		difficulty = ""
	}
	if difficulty != "" && !difficulty.Valid() {
		response.BadRequest(c, "Invalid difficulty")
		return
	}
	list := h.practiceService.ListExercises(catalog.Filter{
		Difficulty: difficulty,
		Tag:        c.Query("tag"),
		Query:      c.Query("q"),
	})
	items := make([]catalog.Summary, 0, len(list))
	for _, ex := range list {
		items = append(items, ex.Summary())
	}
	response.Success(c, ExerciseListResponse{
		Items: items,
		Total: len(items),
		Stats: h.practiceService.ExerciseStats(),
	})
}

// GetExercise returns one exercise with its starter code.
func (h *PracticeController) GetExercise(c *gin.Context) {
	ex, err := h.practiceService.GetExercise(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ex)
}

// Validate reports structural problems without running the program.
func (h *PracticeController) Validate(c *gin.Context) {
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.practiceService.Validate(req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Run executes code without judging it.
func (h *PracticeController) Run(c *gin.Context) {
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.practiceService.Run(c.Request.Context(), req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Check runs code against an exercise without recording it.
func (h *PracticeController) Check(c *gin.Context) {
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.practiceService.Check(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Submit records a graded attempt.
func (h *PracticeController) Submit(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		response.Error(c, errors.UnauthorizedError(""))
		return
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	out, err := h.practiceService.Submit(c.Request.Context(), service.SubmitInput{
		UserID:         userID,
		ExerciseID:     c.Param("id"),
		Code:           req.Code,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmitResponse{
		SubmissionID: out.Submission.ID,
		Passed:       out.Submission.Passed,
		Result:       out.Result,
		CreatedAt:    out.Submission.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// ListSubmissions returns the caller's attempts at an exercise.
func (h *PracticeController) ListSubmissions(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		response.Error(c, errors.UnauthorizedError(""))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}
	list, err := h.practiceService.ListSubmissions(c.Request.Context(), userID, c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []*repository.Submission{}
	}
	response.SuccessWithList(c, list, len(list))
}

// GetSubmission returns one of the caller's submissions.
func (h *PracticeController) GetSubmission(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		response.Error(c, errors.UnauthorizedError(""))
		return
	}
	submission, err := h.practiceService.GetSubmission(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submission)
}

// CodeRequest carries program source.
type CodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// ExerciseListResponse defines the exercise listing payload.
type ExerciseListResponse struct {
	Items []catalog.Summary `json:"items"`
	Total int               `json:"total"`
	Stats catalog.Stats     `json:"stats"`
}

// SubmitResponse defines the submission payload.
type SubmitResponse struct {
	SubmissionID string                 `json:"submission_id"`
	Passed       bool                   `json:"passed"`
	Result       engine.ExecutionResult `json:"result"`
	CreatedAt    string                 `json:"created_at"`
}
