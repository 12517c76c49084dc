package assistant

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"

	"github.com/restaurant-agent/backend/internal/corpus"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Tokenizer splits text into the terms BM25 matches on.
type Tokenizer interface {
	Tokenize(text string) []string
}

// ProseTokenizer lowercases prose word tokens and drops pure punctuation.
type ProseTokenizer struct{}

func (ProseTokenizer) Tokenize(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return filterTerms(strings.Fields(text))
	}

	raw := make([]string, 0, len(doc.Tokens()))
	for _, tok := range doc.Tokens() {
		raw = append(raw, tok.Text)
	}
	return filterTerms(raw)
}

func filterTerms(raw []string) []string {
	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		if strings.IndexFunc(t, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
			continue
		}
		terms = append(terms, strings.ToLower(t))
	}
	return terms
}

type bm25Doc struct {
	restaurantID int64
	length       int
	freqs        map[string]int
}

// BM25Ranker is an Okapi BM25 index with one document per restaurant, built
// from the concatenation of all its reviews.
type BM25Ranker struct {
	tokenizer Tokenizer
	directory *corpus.Directory
	docs      []bm25Doc
	docFreq   map[string]int
	avgLen    float64
}

func NewBM25Ranker(c *corpus.Corpus, tokenizer Tokenizer) *BM25Ranker {
	if tokenizer == nil {
		tokenizer = ProseTokenizer{}
	}

	r := &BM25Ranker{
		tokenizer: tokenizer,
		directory: c.Directory(),
		docFreq:   make(map[string]int),
	}

	total := 0
	for _, id := range c.Directory().IDs() {
		reviews := c.ReviewsFor(id)
		texts := make([]string, len(reviews))
		for i, rev := range reviews {
			texts[i] = rev.Text
		}

		terms := tokenizer.Tokenize(strings.Join(texts, " "))
		doc := bm25Doc{restaurantID: id, length: len(terms), freqs: make(map[string]int)}
		for _, t := range terms {
			doc.freqs[t]++
		}
		for t := range doc.freqs {
			r.docFreq[t]++
		}
		total += doc.length
		r.docs = append(r.docs, doc)
	}

	if len(r.docs) > 0 {
		r.avgLen = float64(total) / float64(len(r.docs))
	}
	return r
}

func (r *BM25Ranker) idf(term string) float64 {
	n := float64(r.docFreq[term])
	return math.Log(1 + (float64(len(r.docs))-n+0.5)/(n+0.5))
}

// scoreAll returns the raw score of every document, in document order.
func (r *BM25Ranker) scoreAll(terms []string) []float64 {
	scores := make([]float64, len(r.docs))
	for i, doc := range r.docs {
		norm := 1.0
		if r.avgLen > 0 {
			norm = 1 - bm25B + bm25B*float64(doc.length)/r.avgLen
		}
		for _, t := range terms {
			tf := float64(doc.freqs[t])
			if tf == 0 {
				continue
			}
			scores[i] += r.idf(t) * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}
	return scores
}

// Rank normalizes scores over the whole corpus before restricting to the
// candidates, so a restaurant's score does not depend on what else is in view.
func (r *BM25Ranker) Rank(ctx context.Context, query string, candidates []int64, n int) ([]RestaurantSummary, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := r.tokenizer.Tokenize(query)
	if len(terms) == 0 || len(r.docs) == 0 {
		return []RestaurantSummary{}, nil
	}

	raw := r.scoreAll(terms)
	lo, hi := raw[0], raw[0]
	for _, s := range raw[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}

	allowed := candidateSet(candidates)
	scores := make(map[int64]float64)
	for i, doc := range r.docs {
		if raw[i] <= 0 {
			continue
		}
		if _, ok := allowed[doc.restaurantID]; !ok {
			continue
		}
		norm := 1.0
		if hi > lo {
			norm = (raw[i] - lo) / (hi - lo)
		}
		scores[doc.restaurantID] = norm
	}

	return topN(r.directory, scores, n), nil
}
