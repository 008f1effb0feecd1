// Package index implements the in-memory inverted index and its dual-mode
// search. Documents are addressed by dense ordinals (their position in the
// document table); posting lists map tokens to ordinal sets and are only
// valid for the current ordinal assignment.
package index

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docscout/docscout/internal/tokenizer"
)

// Document is one indexed file. The path is the unique key.
type Document struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Content string    `json:"content"`
	ModTime time.Time `json:"modTime"`
}

// Hit is one matching line inside a document.
type Hit struct {
	Line    int    `json:"lineNum"`
	Content string `json:"content"`
}

// DocResult is one ranked document in a search result page.
type DocResult struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Matches int    `json:"matches"`
	Hits    []Hit  `json:"hits"`
}

// Result is one page of ranked search results.
type Result struct {
	Results    []DocResult `json:"results"`
	Page       int         `json:"page"`
	TotalPages int         `json:"totalPages"`
	Total      int         `json:"total"`
}

// Match modes reported by Classify.
const (
	ModeEmpty  = "empty"
	ModeToken  = "token"
	ModePhrase = "phrase"
)

// phraseThreshold is the number of CJK runes in a query at which matching
// switches from single-rune tokens to exact contiguous phrases. Below it,
// token matching is exact enough; at or above it, independent per-rune
// matches would produce false positives.
const phraseThreshold = 2

// Index owns the document table and the posting lists. Reads may run
// concurrently; there is a single writer.
type Index struct {
	mu       sync.RWMutex
	docs     []Document
	ordinals map[string]int   // path → ordinal
	postings map[string][]int // token → ascending ordinals
	pageSize int
	maxHits  int
}

// New creates an empty index with the given result page size and per-document
// hit cap.
func New(pageSize, maxHits int) *Index {
	return &Index{
		ordinals: make(map[string]int),
		postings: make(map[string][]int),
		pageSize: pageSize,
		maxHits:  maxHits,
	}
}

// Add appends a document under the next ordinal and inserts that ordinal into
// the posting list of every token in the content. The caller must Remove any
// previous entry for the same path first; Add never mutates in place.
func (ix *Index) Add(path, name, content string, modTime time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ord := len(ix.docs)
	ix.docs = append(ix.docs, Document{
		Path:    path,
		Name:    name,
		Content: content,
		ModTime: modTime,
	})
	ix.ordinals[path] = ord
	// A fresh ordinal is always the largest, so appending keeps the
	// posting lists sorted.
	for token := range tokenizer.Tokenize(content) {
		ix.postings[token] = append(ix.postings[token], ord)
	}
}

// Remove deletes the document for path and reports whether it was present.
// Every ordinal after the removed entry shifts down by one, which invalidates
// all posting lists, so they are rebuilt from scratch by retokenizing the
// remaining documents. O(total remaining tokens) per deletion; the simple
// ordinal bookkeeping is worth the cost at this corpus size.
func (ix *Index) Remove(path string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ord, ok := ix.ordinals[path]
	if !ok {
		return false
	}
	ix.docs = append(ix.docs[:ord], ix.docs[ord+1:]...)
	ix.rebuildLocked()
	return true
}

// rebuildLocked recomputes the ordinal map and posting lists from the current
// document table. Caller holds the write lock.
func (ix *Index) rebuildLocked() {
	ix.ordinals = make(map[string]int, len(ix.docs))
	ix.postings = make(map[string][]int)
	for ord, doc := range ix.docs {
		ix.ordinals[doc.Path] = ord
		for token := range tokenizer.Tokenize(doc.Content) {
			ix.postings[token] = append(ix.postings[token], ord)
		}
	}
}

// Len returns the number of documents in the table.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Documents returns a copy of the document table in ordinal order.
func (ix *Index) Documents() []Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	docs := make([]Document, len(ix.docs))
	copy(docs, ix.docs)
	return docs
}

// Lookup returns the document for path.
func (ix *Index) Lookup(path string) (Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ord, ok := ix.ordinals[path]
	if !ok {
		return Document{}, false
	}
	return ix.docs[ord], true
}

// ModTimes returns the path → modification-time table for every document.
func (ix *Index) ModTimes() map[string]time.Time {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	mt := make(map[string]time.Time, len(ix.docs))
	for _, doc := range ix.docs {
		mt[doc.Path] = doc.ModTime
	}
	return mt
}

// Clone returns an independent copy of the index. The synchronizer mutates a
// clone and swaps it in atomically, so queries never observe a half-rebuilt
// table.
func (ix *Index) Clone() *Index {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	clone := New(ix.pageSize, ix.maxHits)
	clone.docs = make([]Document, len(ix.docs))
	copy(clone.docs, ix.docs)
	for path, ord := range ix.ordinals {
		clone.ordinals[path] = ord
	}
	for token, ords := range ix.postings {
		clone.postings[token] = append([]int(nil), ords...)
	}
	return clone
}

// Classify reports which match mode a query will use.
func Classify(query string) string {
	query = strings.TrimSpace(query)
	switch {
	case query == "":
		return ModeEmpty
	case tokenizer.CountCJK(query) >= phraseThreshold:
		return ModePhrase
	default:
		return ModeToken
	}
}

type scoredDoc struct {
	ord     int
	matches int
}

// Search runs a query and returns the requested result page.
//
// Queries with two or more CJK runes use phrase mode: every document is
// scanned line by line for non-overlapping occurrences of the literal query.
// All other queries use token mode: the query is tokenized and the posting
// lists of its tokens are unioned, so a multi-word query matches documents
// containing any of its words. The displayed match count is always the
// line-level substring count for the whole query; in token mode a candidate
// may therefore carry a zero count and is still listed.
func (ix *Index) Search(query string, page int) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Results: []DocResult{}, Page: 1}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var candidates []scoredDoc
	phrase := tokenizer.CountCJK(query) >= phraseThreshold
	if phrase {
		for ord, doc := range ix.docs {
			if n := countOccurrences(doc.Content, query); n > 0 {
				candidates = append(candidates, scoredDoc{ord: ord, matches: n})
			}
		}
	} else {
		union := make(map[int]struct{})
		for token := range tokenizer.Tokenize(query) {
			for _, ord := range ix.postings[token] {
				union[ord] = struct{}{}
			}
		}
		ords := make([]int, 0, len(union))
		for ord := range union {
			ords = append(ords, ord)
		}
		sort.Ints(ords)
		for _, ord := range ords {
			candidates = append(candidates, scoredDoc{
				ord:     ord,
				matches: countMatchingLines(ix.docs[ord].Content, query),
			})
		}
	}

	// Descending match count; ties keep ordinal order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].matches > candidates[j].matches
	})

	total := len(candidates)
	totalPages := (total + ix.pageSize - 1) / ix.pageSize
	if totalPages == 0 {
		return Result{Results: []DocResult{}, Page: 1, Total: 0}
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * ix.pageSize
	end := start + ix.pageSize
	if end > total {
		end = total
	}

	results := make([]DocResult, 0, end-start)
	for _, cand := range candidates[start:end] {
		doc := ix.docs[cand.ord]
		results = append(results, DocResult{
			Path:    doc.Path,
			Name:    doc.Name,
			Matches: cand.matches,
			Hits:    ix.extractHits(doc.Content, query, phrase),
		})
	}
	return Result{
		Results:    results,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}
}

// extractHits collects the first maxHits lines containing the query, in file
// order, with 1-based line numbers and trimmed content.
func (ix *Index) extractHits(content, query string, phrase bool) []Hit {
	hits := []Hit{}
	for i, line := range strings.Split(content, "\n") {
		if !lineMatches(line, query, phrase) {
			continue
		}
		hits = append(hits, Hit{Line: i + 1, Content: strings.TrimSpace(line)})
		if len(hits) == ix.maxHits {
			break
		}
	}
	return hits
}

func lineMatches(line, query string, phrase bool) bool {
	if phrase {
		return strings.Contains(line, query)
	}
	return strings.Contains(strings.ToLower(line), strings.ToLower(query))
}

// countOccurrences sums non-overlapping occurrences of the literal query per
// line (phrase mode).
func countOccurrences(content, query string) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		n += strings.Count(line, query)
	}
	return n
}

// countMatchingLines counts lines containing the query, case-insensitively
// (token mode).
func countMatchingLines(content, query string) int {
	query = strings.ToLower(query)
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), query) {
			n++
		}
	}
	return n
}
