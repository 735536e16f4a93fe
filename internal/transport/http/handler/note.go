package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"studynotes/internal/app"
	"studynotes/internal/pkg/pdfextract"
	"studynotes/internal/transport/http/response"
)

const maxPDFSize = 10 << 20 // 10 MB

type NoteHandler struct {
	noteService *app.NoteService
}

type CreateNoteRequest struct {
	Title     string  `json:"title" binding:"max=256"`
	Content   string  `json:"content" binding:"required"`
	CourseTag *string `json:"course_tag"`
}

type UpdateNoteRequest struct {
	Title     string  `json:"title" binding:"max=256"`
	Content   string  `json:"content" binding:"required"`
	CourseTag *string `json:"course_tag"`
}

func NewNoteHandler(noteService *app.NoteService) *NoteHandler {
	return &NoteHandler{noteService: noteService}
}

func (h *NoteHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	note, err := h.noteService.Create(c.Request.Context(), app.CreateNoteInput{
		UserID:    userID,
		Title:     req.Title,
		Content:   req.Content,
		CourseTag: req.CourseTag,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create note failed")
		}
		return
	}
	response.OK(c, note)
}

func (h *NoteHandler) Update(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	noteID, err := parseUintParam(c, "id")
	if err != nil || noteID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid note id")
		return
	}

	var req UpdateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	note, err := h.noteService.Update(c.Request.Context(), app.UpdateNoteInput{
		UserID:    userID,
		NoteID:    noteID,
		Title:     req.Title,
		Content:   req.Content,
		CourseTag: req.CourseTag,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNoteNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNoteNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "update note failed")
		}
		return
	}
	response.OK(c, note)
}

func (h *NoteHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	noteID, err := parseUintParam(c, "id")
	if err != nil || noteID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid note id")
		return
	}

	note, err := h.noteService.Get(c.Request.Context(), userID, noteID)
	if err != nil {
		if errors.Is(err, app.ErrNoteNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNoteNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get note failed")
		}
		return
	}
	response.OK(c, note)
}

func (h *NoteHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var courseTag *string
	if tag := strings.TrimSpace(c.Query("course_tag")); tag != "" {
		courseTag = &tag
	}

	notes, err := h.noteService.List(c.Request.Context(), userID, courseTag)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list notes failed")
		return
	}
	response.OK(c, notes)
}

func (h *NoteHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	noteID, err := parseUintParam(c, "id")
	if err != nil || noteID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid note id")
		return
	}

	if err := h.noteService.Delete(c.Request.Context(), userID, noteID); err != nil {
		if errors.Is(err, app.ErrNoteNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNoteNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete note failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_note_id": noteID})
}

// ImportPDF accepts a multipart form with "file" (PDF) and optional
// "title"/"course_tag", extracts the text and creates a note from it.
// The new note flows through the same re-index trigger as any other.
func (h *NoteHandler) ImportPDF(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > maxPDFSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 10MB)")
		return
	}
	if ext := strings.ToLower(filepath.Ext(file.Filename)); ext != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only PDF files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	text, err := pdfextract.ExtractText(f)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to extract text from PDF: "+err.Error())
		return
	}
	if text == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "PDF contains no extractable text")
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}
	var courseTag *string
	if tag := strings.TrimSpace(c.PostForm("course_tag")); tag != "" {
		courseTag = &tag
	}

	note, err := h.noteService.Create(c.Request.Context(), app.CreateNoteInput{
		UserID:    userID,
		Title:     title,
		Content:   text,
		CourseTag: courseTag,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "import failed")
		}
		return
	}
	response.OK(c, note)
}
