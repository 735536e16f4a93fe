package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studynotes/internal/app"
	"studynotes/internal/repository"
	"studynotes/internal/transport/http/response"
)

type SearchHandler struct {
	retrievalService *app.RetrievalService
	answerService    *app.AnswerService
}

type SearchRequest struct {
	Query     string  `json:"query" binding:"required"`
	Limit     int     `json:"limit"`
	CourseTag *string `json:"course_tag"`
	From      *string `json:"from"` // RFC 3339
	To        *string `json:"to"`   // RFC 3339
}

type AskRequest struct {
	Question  string  `json:"question" binding:"required"`
	TopK      int     `json:"top_k"`
	CourseTag *string `json:"course_tag"`
}

func NewSearchHandler(retrievalService *app.RetrievalService, answerService *app.AnswerService) *SearchHandler {
	return &SearchHandler{
		retrievalService: retrievalService,
		answerService:    answerService,
	}
}

func (r *SearchRequest) filters() (repository.SearchFilters, error) {
	filters := repository.SearchFilters{CourseTag: r.CourseTag}
	if r.From != nil {
		from, err := time.Parse(time.RFC3339, *r.From)
		if err != nil {
			return filters, err
		}
		filters.From = &from
	}
	if r.To != nil {
		to, err := time.Parse(time.RFC3339, *r.To)
		if err != nil {
			return filters, err
		}
		filters.To = &to
	}
	return filters, nil
}

func (h *SearchHandler) Search(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	filters, err := req.filters()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid date filter")
		return
	}

	result, err := h.retrievalService.Retrieve(c.Request.Context(), userID, req.Query, filters, req.Limit)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "search failed")
		}
		return
	}
	response.OK(c, result)
}

func (h *SearchHandler) HybridSearch(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	filters, err := req.filters()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid date filter")
		return
	}

	chunks, err := h.retrievalService.HybridSearch(c.Request.Context(), userID, req.Query, filters, req.Limit)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "hybrid search failed")
		}
		return
	}
	response.OK(c, chunks)
}

func (h *SearchHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.answerService.Ask(c.Request.Context(), app.AskInput{
		UserID:   userID,
		Question: req.Question,
		Filters:  repository.SearchFilters{CourseTag: req.CourseTag},
		TopK:     req.TopK,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ask failed")
		}
		return
	}
	response.OK(c, result)
}
