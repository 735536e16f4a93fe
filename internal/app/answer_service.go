package app

import (
	"context"
	"log"
	"strings"

	"studynotes/internal/ai"
	"studynotes/internal/model"
	"studynotes/internal/repository"
)

const answerSystemPrompt = "You are a study assistant. Answer the user's question based only on the " +
	"following excerpts from their notes. If the excerpts do not contain enough information, " +
	"say that you don't have enough information in the notes. Do not make up facts."

const noContextAnswer = "I don't have enough information in your notes to answer that."

// Phrases that mark a grounded model refusal. Heuristic substring check;
// matched case-insensitively against the generated answer.
var insufficientPhrases = []string{
	"don't have enough information",
	"do not have enough information",
	"not enough information",
	"insufficient context",
	"cannot answer",
	"can't answer",
}

// Completer is the external answer-generation capability.
type Completer interface {
	Complete(ctx context.Context, model string, messages []ai.ChatMessage) (string, error)
}

// AnswerCache memoizes generated answers per user and query. Entries are
// keyed under a per-user generation that re-indexing bumps, so a stale
// hit can only survive until the next content change.
type AnswerCache interface {
	Get(ctx context.Context, userID uint, query string, dest interface{}) (bool, error)
	Set(ctx context.Context, userID uint, query string, value interface{}) error
}

// AnswerService is the assembler at the end of the pipeline: it grounds
// a prompt in hybrid-retrieved chunks, calls the LLM, and flags answers
// the model could not ground in the notes.
type AnswerService struct {
	retrieval *RetrievalService
	llm       Completer
	cache     AnswerCache
	chatModel string
}

func NewAnswerService(retrieval *RetrievalService, llm Completer, cache AnswerCache, chatModel string) *AnswerService {
	return &AnswerService{
		retrieval: retrieval,
		llm:       llm,
		cache:     cache,
		chatModel: chatModel,
	}
}

type AskInput struct {
	UserID   uint
	Question string
	Filters  repository.SearchFilters
	TopK     int
}

type AskResult struct {
	Answer              string                 `json:"answer"`
	InsufficientContext bool                   `json:"insufficient_context"`
	Chunks              []model.RetrievedChunk `json:"chunks"`
}

func (s *AnswerService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrInvalidInput
	}

	if s.cache != nil {
		var cached AskResult
		hit, err := s.cache.Get(ctx, input.UserID, question, &cached)
		if err != nil {
			log.Printf("answer cache get failed: user=%d err=%v", input.UserID, err)
		} else if hit {
			return &cached, nil
		}
	}

	chunks, err := s.retrieval.HybridSearch(ctx, input.UserID, question, input.Filters, input.TopK)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &AskResult{
			Answer:              noContextAnswer,
			InsufficientContext: true,
			Chunks:              []model.RetrievedChunk{},
		}, nil
	}

	messages := []ai.ChatMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: buildGroundingPrompt(question, chunks)},
	}
	answer, err := s.llm.Complete(ctx, s.chatModel, messages)
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)

	result := &AskResult{
		Answer:              answer,
		InsufficientContext: detectInsufficientContext(answer),
		Chunks:              chunks,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, input.UserID, question, result); err != nil {
			log.Printf("answer cache set failed: user=%d err=%v", input.UserID, err)
		}
	}
	return result, nil
}

// buildGroundingPrompt lays out the retrieved excerpts with their note
// and section context, separated by --- markers.
func buildGroundingPrompt(question string, chunks []model.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString("Excerpts:")
	for _, rc := range chunks {
		b.WriteString("\n---\n")
		b.WriteString("Note: ")
		b.WriteString(rc.NoteTitle)
		if len(rc.SectionPath) > 0 {
			b.WriteString(" / ")
			b.WriteString(strings.Join(rc.SectionPath, " > "))
		}
		b.WriteString("\n")
		b.WriteString(rc.ContentRaw)
	}
	b.WriteString("\n---\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

func detectInsufficientContext(answer string) bool {
	lowered := strings.ToLower(answer)
	for _, phrase := range insufficientPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
