package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"studynotes/internal/model"
	"studynotes/internal/repository"
)

var ErrNoteNotFound = errors.New("note not found")

// NoteEventPublisher dispatches note-changed events to the re-index
// pipeline.
type NoteEventPublisher interface {
	Publish(ctx context.Context, event model.NoteChangedEvent) error
}

type NoteService struct {
	noteRepo  *repository.NoteRepository
	chunkRepo *repository.ChunkRepository
	publisher NoteEventPublisher
}

func NewNoteService(noteRepo *repository.NoteRepository, chunkRepo *repository.ChunkRepository, publisher NoteEventPublisher) *NoteService {
	return &NoteService{
		noteRepo:  noteRepo,
		chunkRepo: chunkRepo,
		publisher: publisher,
	}
}

type CreateNoteInput struct {
	UserID    uint
	Title     string
	Content   string
	CourseTag *string
}

type UpdateNoteInput struct {
	UserID    uint
	NoteID    uint
	Title     string
	Content   string
	CourseTag *string
}

func (s *NoteService) Create(ctx context.Context, input CreateNoteInput) (*model.Note, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Untitled"
	}

	note := &model.Note{
		UserID:    input.UserID,
		Title:     title,
		Content:   input.Content,
		CourseTag: input.CourseTag,
	}
	if err := s.noteRepo.Create(note); err != nil {
		return nil, err
	}

	s.emitChanged(note)
	return note, nil
}

func (s *NoteService) Update(ctx context.Context, input UpdateNoteInput) (*model.Note, error) {
	if input.UserID == 0 || input.NoteID == 0 {
		return nil, ErrInvalidInput
	}
	note, err := s.noteRepo.GetByIDAndUserID(input.NoteID, input.UserID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, ErrNoteNotFound
	}

	if title := strings.TrimSpace(input.Title); title != "" {
		note.Title = title
	}
	note.Content = input.Content
	note.CourseTag = input.CourseTag
	if err := s.noteRepo.Update(note); err != nil {
		return nil, err
	}

	s.emitChanged(note)
	return note, nil
}

func (s *NoteService) Get(ctx context.Context, userID, noteID uint) (*model.Note, error) {
	if userID == 0 || noteID == 0 {
		return nil, ErrInvalidInput
	}
	note, err := s.noteRepo.GetByIDAndUserID(noteID, userID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, ErrNoteNotFound
	}
	return note, nil
}

func (s *NoteService) List(ctx context.Context, userID uint, courseTag *string) ([]model.Note, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.noteRepo.ListByUserID(userID, courseTag)
}

// Delete removes the note and every derived chunk and embedding. The
// derived rows go first so nothing retrievable can outlive its note.
func (s *NoteService) Delete(ctx context.Context, userID, noteID uint) error {
	if userID == 0 || noteID == 0 {
		return ErrInvalidInput
	}
	note, err := s.noteRepo.GetByIDAndUserID(noteID, userID)
	if err != nil {
		return err
	}
	if note == nil {
		return ErrNoteNotFound
	}

	if err := s.chunkRepo.DeleteByNoteID(ctx, noteID); err != nil {
		return err
	}
	return s.noteRepo.DeleteByIDAndUserID(noteID, userID)
}

// emitChanged publishes the re-index trigger without blocking the write
// path: the note is already committed, and a broker outage must not
// surface as a user-facing error. Failures are only logged.
func (s *NoteService) emitChanged(note *model.Note) {
	event := model.NoteChangedEvent{
		EventID:   uuid.NewString(),
		NoteID:    note.ID,
		UserID:    note.UserID,
		Title:     note.Title,
		Content:   note.Content,
		CourseTag: note.CourseTag,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Printf("publish note changed event failed: note=%d event=%s err=%v", event.NoteID, event.EventID, err)
		}
	}()
}
