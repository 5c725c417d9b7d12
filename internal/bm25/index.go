// Package bm25 implements an in-memory BM25 ranking index with per-field
// weighting (BM25F-style term frequency).
//
//	score(D,Q) = Σ IDF(q) * tf(q,D) * (k1 + 1) / (tf(q,D) + k1 * (1 - b + b * |D|/avgdl))
//	IDF(q)     = ln((N - df + 0.5) / (df + 0.5) + 1)
//
// With field weights configured, tf(q,D) is Σ weight(f) * tf(q,f).
package bm25

import (
	"math"
	"sort"
	"strings"
)

// Wildcard is the query that matches every document without scoring.
const Wildcard = "*"

// Options configures index construction and scoring.
type Options struct {
	K1        float64
	B         float64
	Stopwords []string
	// FieldWeights boosts fields independently. Fields not listed weigh 1.0.
	// An empty map scores on the plain total term frequency.
	FieldWeights map[string]float64
}

// DefaultOptions returns k1=1.2, b=0.75 with the default stopword list.
func DefaultOptions() Options {
	return Options{K1: 1.2, B: 0.75, Stopwords: DefaultStopwords}
}

// Document is one indexable unit: an identifier and named text fields.
type Document struct {
	ID     string
	Fields map[string]string
}

// Result is one ranked match.
type Result struct {
	ID    string
	Score float64
	// Matched lists the query terms present in the document.
	Matched []string
}

type docInfo struct {
	id     string
	length int
}

type posting struct {
	total  int
	fields map[string]int
}

type termInfo struct {
	df       int
	postings map[int]*posting
}

// Index is an immutable inverted index. It is safe for concurrent readers.
type Index struct {
	opts   Options
	stop   Stopwords
	docs   []docInfo
	terms  map[string]*termInfo
	avgLen float64
}

// Build indexes docs in order. Documents with a duplicate ID after the first
// are ignored. The result depends only on the document sequence.
func Build(docs []Document, opts Options) *Index {
	idx := &Index{
		opts:  opts,
		stop:  NewStopwords(opts.Stopwords...),
		docs:  make([]docInfo, 0, len(docs)),
		terms: make(map[string]*termInfo),
	}

	seen := make(map[string]struct{}, len(docs))
	total := 0
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		n := len(idx.docs)

		postings := make(map[string]*posting)
		length := 0
		for _, field := range sortedFields(d.Fields) {
			for _, tok := range Tokenize(d.Fields[field], idx.stop) {
				p, ok := postings[tok]
				if !ok {
					p = &posting{fields: make(map[string]int)}
					postings[tok] = p
				}
				p.total++
				p.fields[field]++
				length++
			}
		}

		for term, p := range postings {
			ti, ok := idx.terms[term]
			if !ok {
				ti = &termInfo{postings: make(map[int]*posting)}
				idx.terms[term] = ti
			}
			ti.df++
			ti.postings[n] = p
		}

		idx.docs = append(idx.docs, docInfo{id: d.ID, length: length})
		total += length
	}
	if len(idx.docs) > 0 {
		idx.avgLen = float64(total) / float64(len(idx.docs))
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int { return len(idx.docs) }

// DocFreq returns the number of documents containing term (already tokenized).
func (idx *Index) DocFreq(term string) int {
	if ti, ok := idx.terms[term]; ok {
		return ti.df
	}
	return 0
}

// Tokenize applies the index's tokenizer to text.
func (idx *Index) Tokenize(text string) []string {
	return Tokenize(text, idx.stop)
}

// Search ranks documents against query, highest score first. Ties keep
// insertion order. topK <= 0 returns every match. The wildcard query returns
// all documents in insertion order with a zero score.
func (idx *Index) Search(query string, topK int) []Result {
	if strings.TrimSpace(query) == Wildcard {
		return idx.all(topK)
	}

	terms := idx.Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	candidates := make(map[int]struct{})
	for _, t := range terms {
		if ti, ok := idx.terms[t]; ok {
			for n := range ti.postings {
				candidates[n] = struct{}{}
			}
		}
	}

	order := make([]int, 0, len(candidates))
	for n := range candidates {
		order = append(order, n)
	}
	sort.Ints(order)

	results := make([]Result, 0, len(order))
	for _, n := range order {
		score, matched := idx.score(n, terms)
		if score <= 0 {
			continue
		}
		results = append(results, Result{ID: idx.docs[n].id, Score: score, Matched: matched})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

func (idx *Index) all(topK int) []Result {
	n := len(idx.docs)
	if topK > 0 && topK < n {
		n = topK
	}
	out := make([]Result, n)
	for i := range out {
		out[i] = Result{ID: idx.docs[i].id}
	}
	return out
}

func (idx *Index) idf(term string) float64 {
	ti, ok := idx.terms[term]
	if !ok || ti.df == 0 {
		return 0
	}
	n := float64(len(idx.docs))
	df := float64(ti.df)
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

func (idx *Index) score(n int, terms []string) (float64, []string) {
	k1, b := idx.opts.K1, idx.opts.B
	dl := float64(idx.docs[n].length)
	weighted := len(idx.opts.FieldWeights) > 0

	var score float64
	var matched []string
	for _, t := range terms {
		ti, ok := idx.terms[t]
		if !ok {
			continue
		}
		p, ok := ti.postings[n]
		if !ok {
			continue
		}
		matched = append(matched, t)

		tf := float64(p.total)
		if weighted {
			tf = 0
			for _, field := range sortedCounts(p.fields) {
				w, ok := idx.opts.FieldWeights[field]
				if !ok {
					w = 1.0
				}
				tf += w * float64(p.fields[field])
			}
		}
		if tf <= 0 {
			continue
		}
		score += idx.idf(t) * tf * (k1 + 1) / (tf + k1*(1-b+b*dl/idx.avgLen))
	}
	return score, matched
}

func sortedFields(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedCounts(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
