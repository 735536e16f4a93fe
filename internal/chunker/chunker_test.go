package chunker

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// words builds deterministic filler text: n distinct words, so the
// WordCounter sees n + n/3 tokens.
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

// sentences builds count sentences of wordsPer words each, "
// "-terminated so the sentence splitter can cut between them.
func sentences(count, wordsPer int) string {
	var b strings.Builder
	for i := 0; i < count; i++ {
		b.WriteString(words(wordsPer))
		b.WriteString(". ")
	}
	return strings.TrimSuffix(b.String(), " ")
}

func newTestChunker() *Chunker {
	return New(WordCounter{}, DefaultOptions())
}

func TestChunkEmptyInput(t *testing.T) {
	c := newTestChunker()

	assert.Empty(t, c.Chunk(1, "Note", "", nil))
	assert.Empty(t, c.Chunk(1, "Note", "   \n\n\t  ", nil))
}

func TestChunkShortInputSingleChunk(t *testing.T) {
	c := newTestChunker()

	chunks := c.Chunk(7, "Quick thought", "Just a single line of text.", nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, uint(7), chunks[0].NoteID)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Empty(t, chunks[0].SectionPath)
	assert.Equal(t, "Just a single line of text.", chunks[0].ContentRaw)
	assert.True(t, strings.HasPrefix(chunks[0].ContentEmbed, "Title: Quick thought | Section: Main\n\n"))
}

func TestChunkIndexesAreGapless(t *testing.T) {
	c := newTestChunker()
	content := "# A\n\n" + words(60) + "\n\n## B\n\n" + words(60) + "\n\n## C\n\n" + words(60) + "\n\n# D\n\n" + words(60)

	chunks := c.Chunk(1, "Note", content, nil)
	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.NotEmpty(t, chunk.ContentRaw)
	}
}

func TestSectionPathsFollowHeaderNesting(t *testing.T) {
	c := newTestChunker()
	content := "# A\n\n" + words(60) +
		"\n\n## B\n\n" + words(60) +
		"\n\n### C\n\n" + words(60) +
		"\n\n## D\n\n" + words(60)

	chunks := c.Chunk(1, "Note", content, nil)
	require.Len(t, chunks, 4)
	assert.Equal(t, []string{"A"}, chunks[0].SectionPath)
	assert.Equal(t, []string{"A", "B"}, chunks[1].SectionPath)
	assert.Equal(t, []string{"A", "B", "C"}, chunks[2].SectionPath)
	assert.Equal(t, []string{"A", "D"}, chunks[3].SectionPath)
}

func TestBodylessHeaderStillAncestors(t *testing.T) {
	c := newTestChunker()
	content := "# Calculus\n## Derivatives\n\n" + words(200)

	chunks := c.Chunk(1, "Week 3", content, nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Calculus", "Derivatives"}, chunks[0].SectionPath)
}

func TestPreambleHasEmptyPath(t *testing.T) {
	c := newTestChunker()
	content := words(80) + "\n\n# Heading\n\n" + words(160)

	chunks := c.Chunk(1, "Note", content, nil)
	require.Len(t, chunks, 2)
	assert.Empty(t, chunks[0].SectionPath)
	assert.Equal(t, []string{"Heading"}, chunks[1].SectionPath)
}

func TestTinySectionsMergeForward(t *testing.T) {
	c := newTestChunker()
	// Intro and End are tiny; Body is ~300 tokens. Intro merges into Body
	// across the section boundary (under the tiny-fragment threshold),
	// End is last and stays alone.
	content := "## Intro\n\nShort line.\n\n## Body\n\n" + words(225) + "\n\n## End\n\nTiny closer."

	chunks := c.Chunk(1, "Lecture", content, nil)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].ContentRaw, "Short line.")
	assert.Contains(t, chunks[0].ContentRaw, "w224")
	assert.Equal(t, []string{"Intro"}, chunks[0].SectionPath)
	assert.Equal(t, "Tiny closer.", chunks[1].ContentRaw)
	assert.Equal(t, []string{"End"}, chunks[1].SectionPath)
}

func TestMergeWithinSamePath(t *testing.T) {
	c := newTestChunker()
	// One section split into a 60-token and a 300-token paragraph; the
	// small leading piece folds back into its neighbour.
	content := "# Topic\n\n" + words(45) + "\n\n" + words(225)

	chunks := c.Chunk(1, "Note", content, nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Topic"}, chunks[0].SectionPath)
}

func TestNoMergeAcrossSectionsAboveTinyThreshold(t *testing.T) {
	c := newTestChunker()
	// 60 tokens is below the merge-candidate threshold but above the
	// tiny-fragment allowance, so a section boundary blocks the merge.
	content := "# X\n\n" + words(45) + "\n\n# Y\n\n" + words(225)

	chunks := c.Chunk(1, "Note", content, nil)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"X"}, chunks[0].SectionPath)
	assert.Equal(t, []string{"Y"}, chunks[1].SectionPath)
}

func TestNoMergePastCombinedCap(t *testing.T) {
	c := newTestChunker()
	// 57 + 263 words ~= 426 tokens combined, over the 1.2x ceiling.
	content := "# Topic\n\n" + words(57) + "\n\n" + words(263)

	chunks := c.Chunk(1, "Note", content, nil)
	require.Len(t, chunks, 2)
}

func TestLongParagraphSplitsBySentences(t *testing.T) {
	c := newTestChunker()
	para := sentences(60, 15) // ~900 tokens, one paragraph

	chunks := c.Chunk(1, "Note", para, nil)
	require.GreaterOrEqual(t, len(chunks), 2)
	require.LessOrEqual(t, len(chunks), 4)

	counter := WordCounter{}
	maxAllowed := DefaultOptions().TargetMaxTokens * 3 / 2
	for _, chunk := range chunks {
		assert.LessOrEqual(t, counter.Count(chunk.ContentRaw), maxAllowed)
		assert.Empty(t, chunk.SectionPath)
	}

	// Sentence splitting is lossless: the chunks concatenate back to
	// the original paragraph.
	var joined strings.Builder
	for _, chunk := range chunks {
		joined.WriteString(chunk.ContentRaw)
	}
	assert.Equal(t, para, joined.String())
}

func TestChunkingIsDeterministic(t *testing.T) {
	c := newTestChunker()
	content := "## Intro\n\nShort line.\n\n## Body\n\n" + words(225) + "\n\n## End\n\nTiny closer."

	first := c.Chunk(1, "Lecture", content, nil)
	second := c.Chunk(1, "Lecture", content, nil)
	assert.True(t, reflect.DeepEqual(first, second))
}

func TestContentEmbedHeader(t *testing.T) {
	c := newTestChunker()
	course := "MATH101"

	chunks := c.Chunk(1, "Week 3", "# Calculus\n## Derivatives\n\n"+words(200), &course)
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0].ContentEmbed,
		"Title: Week 3 | Section: Calculus > Derivatives | Course: MATH101\n\n"))
	assert.NotContains(t, chunks[0].ContentRaw, "Title: Week 3")
}

func TestHeadersNeverLeakIntoContent(t *testing.T) {
	c := newTestChunker()
	content := "# A\n\n" + words(60) + "\n\n## B\n\n" + words(60) + "\n\n## C\n\n" + words(60) + "\n\n# D\n\n" + words(60)

	for _, chunk := range c.Chunk(1, "Note", content, nil) {
		assert.NotContains(t, chunk.ContentRaw, "# ")
	}
}
