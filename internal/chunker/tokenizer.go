package chunker

import (
	"log"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many model tokens a text costs. Counts are
// heuristic inputs for chunk sizing, not billing figures; the only hard
// requirement is that longer text never counts fewer tokens.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the cl100k_base subword encoding,
// the same family the embedding models use. Safe for concurrent use.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
	mu  sync.Mutex
}

func NewTiktokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

// WordCounter approximates subword tokens from whitespace-separated
// words (~4 tokens per 3 words). Used when the BPE files cannot be
// loaded, and by tests that need deterministic counts.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	words := len(strings.Fields(text))
	return words + words/3
}

// NewTokenCounter returns the tiktoken-backed counter, falling back to
// the word estimator if the encoding is unavailable.
func NewTokenCounter() TokenCounter {
	counter, err := NewTiktokenCounter()
	if err != nil {
		log.Printf("load cl100k_base encoding failed, falling back to word estimate: %v", err)
		return WordCounter{}
	}
	return counter
}
