package chunker

import (
	"regexp"
	"strings"

	"studynotes/internal/model"
)

// Options bound chunk sizes in tokens. A piece below MinTokens is a
// merge candidate; TargetMaxTokens is the soft ceiling before a section
// is force-split.
type Options struct {
	MinTokens       int
	TargetMinTokens int
	TargetMaxTokens int
}

func DefaultOptions() Options {
	return Options{
		MinTokens:       80,
		TargetMinTokens: 250,
		TargetMaxTokens: 350,
	}
}

// Fragments under this many tokens may merge into the next piece even
// across a section boundary. Single forward pass, not iterative; chunk
// boundaries are load-bearing for retrieval, so don't tune this.
const tinyFragmentTokens = 40

var headerRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
var paragraphRe = regexp.MustCompile(`\n\s*\n`)

// Chunker turns markdown note content into an ordered list of
// semantically bounded chunks. It is a pure computation: no I/O, no
// external calls, and it never fails on well-formed UTF-8 input.
type Chunker struct {
	counter TokenCounter
	opts    Options
}

func New(counter TokenCounter, opts Options) *Chunker {
	def := DefaultOptions()
	if opts.MinTokens <= 0 {
		opts.MinTokens = def.MinTokens
	}
	if opts.TargetMinTokens <= 0 {
		opts.TargetMinTokens = def.TargetMinTokens
	}
	if opts.TargetMaxTokens <= 0 {
		opts.TargetMaxTokens = def.TargetMaxTokens
	}
	return &Chunker{counter: counter, opts: opts}
}

type section struct {
	level int // 0 for the implicit preamble section
	title string
	body  string
	path  []string
}

type piece struct {
	path    []string
	content string
	tokens  int
}

// Chunk produces the chunk drafts for one note generation. The caller
// owns ids and the owner column; everything else is filled in here.
// Empty or whitespace-only content yields an empty slice, any other
// content yields at least one chunk.
func (c *Chunker) Chunk(noteID uint, noteTitle, content string, courseTag *string) []model.Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	sections := parseSections(content)
	for i := range sections {
		sections[i].path = sectionPath(sections, i)
	}

	// Header-only sections are dropped, but only after path computation:
	// a bodyless header is still an ancestor of deeper sections.
	kept := sections[:0]
	totalTokens := 0
	for _, sec := range sections {
		if sec.body == "" {
			continue
		}
		kept = append(kept, sec)
		totalTokens += c.counter.Count(sec.body)
	}
	if len(kept) == 0 {
		return nil
	}

	var pieces []piece
	if totalTokens < c.opts.TargetMinTokens {
		// The whole note is smaller than one target chunk: emit it unsplit.
		bodies := make([]string, len(kept))
		for i, sec := range kept {
			bodies[i] = sec.body
		}
		joined := strings.Join(bodies, "\n\n")
		pieces = []piece{{path: nil, content: joined, tokens: c.counter.Count(joined)}}
	} else {
		for _, sec := range kept {
			pieces = append(pieces, c.splitSection(sec)...)
		}
		pieces = c.mergePass(pieces)
	}

	chunks := make([]model.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = model.Chunk{
			NoteID:       noteID,
			NoteTitle:    noteTitle,
			SectionPath:  p.path,
			CourseTag:    courseTag,
			ContentRaw:   p.content,
			ContentEmbed: contextualHeader(noteTitle, p.path, courseTag) + "\n\n" + p.content,
			ChunkIndex:   i,
		}
	}
	return chunks
}

// parseSections splits markdown into header-delimited sections. Text
// before the first header becomes an implicit level-0 section with an
// empty title.
func parseSections(content string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	current := section{level: 0, title: ""}
	var body []string

	flush := func() {
		current.body = strings.TrimSpace(strings.Join(body, "\n"))
		sections = append(sections, current)
		body = body[:0]
	}

	for _, line := range lines {
		if m := headerRe.FindStringSubmatch(line); m != nil {
			flush()
			current = section{level: len(m[1]), title: strings.TrimSpace(m[2])}
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

// sectionPath walks backwards from section i collecting the nearest
// header of each strictly lower level, outer to inner, then appends the
// section's own title. Untitled sections contribute nothing.
func sectionPath(sections []section, i int) []string {
	sec := sections[i]
	var path []string
	minLevel := sec.level
	for j := i - 1; j >= 0 && minLevel > 1; j-- {
		anc := sections[j]
		if anc.level == 0 || anc.level >= minLevel {
			continue
		}
		if anc.title != "" {
			path = append(path, anc.title)
		}
		minLevel = anc.level
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	if sec.title != "" {
		path = append(path, sec.title)
	}
	return path
}

// splitSection cuts an oversized section body first at paragraph
// boundaries, then at sentence boundaries for pieces still over 1.5x the
// ceiling.
func (c *Chunker) splitSection(sec section) []piece {
	bodyTokens := c.counter.Count(sec.body)
	if bodyTokens <= c.opts.TargetMaxTokens {
		return []piece{{path: sec.path, content: sec.body, tokens: bodyTokens}}
	}

	var out []piece
	for _, part := range c.accumulate(splitParagraphs(sec.body), "\n\n") {
		partTokens := c.counter.Count(part)
		if partTokens > c.opts.TargetMaxTokens*3/2 {
			for _, sentencePart := range c.accumulate(strings.SplitAfter(part, ". "), "") {
				out = append(out, piece{path: sec.path, content: sentencePart, tokens: c.counter.Count(sentencePart)})
			}
			continue
		}
		out = append(out, piece{path: sec.path, content: part, tokens: partTokens})
	}
	return out
}

func splitParagraphs(body string) []string {
	parts := paragraphRe.Split(body, -1)
	paras := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// accumulate greedily packs units into runs, flushing before a unit
// would push the run past TargetMaxTokens.
func (c *Chunker) accumulate(units []string, sep string) []string {
	var out []string
	var run []string
	runTokens := 0
	for _, u := range units {
		t := c.counter.Count(u)
		if len(run) > 0 && runTokens+t > c.opts.TargetMaxTokens {
			out = append(out, strings.Join(run, sep))
			run = run[:0]
			runTokens = 0
		}
		run = append(run, u)
		runTokens += t
	}
	if len(run) > 0 {
		out = append(out, strings.Join(run, sep))
	}
	return out
}

// mergePass folds undersized pieces into their right neighbour in a
// single left-to-right sweep. A merge keeps the first piece's section
// path and is never re-examined.
func (c *Chunker) mergePass(pieces []piece) []piece {
	maxMerged := c.opts.TargetMaxTokens * 12 / 10
	out := make([]piece, 0, len(pieces))
	i := 0
	for i < len(pieces) {
		cur := pieces[i]
		if cur.tokens < c.opts.MinTokens && i+1 < len(pieces) {
			next := pieces[i+1]
			crossOK := samePath(cur.path, next.path) || cur.tokens < tinyFragmentTokens
			combined := cur.content + "\n\n" + next.content
			combinedTokens := c.counter.Count(combined)
			if crossOK && combinedTokens <= maxMerged {
				out = append(out, piece{path: cur.path, content: combined, tokens: combinedTokens})
				i += 2
				continue
			}
		}
		out = append(out, cur)
		i++
	}
	return out
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// contextualHeader synthesizes the prefix that is embedded with each
// chunk but never shown to users as chunk content.
func contextualHeader(noteTitle string, path []string, courseTag *string) string {
	sectionLabel := "Main"
	if len(path) > 0 {
		sectionLabel = strings.Join(path, " > ")
	}
	header := "Title: " + noteTitle + " | Section: " + sectionLabel
	if courseTag != nil && *courseTag != "" {
		header += " | Course: " + *courseTag
	}
	return header
}
