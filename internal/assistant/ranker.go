package assistant

import (
	"context"
	"fmt"
	"sort"

	"github.com/restaurant-agent/backend/internal/corpus"
)

// RestaurantSummary is one ranked recommendation with its display metadata.
type RestaurantSummary struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Location string  `json:"location"`
	Country  string  `json:"country"`
	Score    float64 `json:"score"`
}

// Ranker orders restaurants by relevance to a free-text preference. Results
// are restricted to candidates, sorted by descending score and hold at most n
// entries. An empty candidate list yields ErrNoCandidates without scoring.
type Ranker interface {
	Rank(ctx context.Context, query string, candidates []int64, n int) ([]RestaurantSummary, error)
}

// RankingStrategy selects the Ranker implementation.
type RankingStrategy string

const (
	RankByEmbedding RankingStrategy = "embedding"
	RankByBM25      RankingStrategy = "bm25"
)

// ScoreAggregation decides how several matching reviews of one restaurant
// collapse into a single restaurant score.
type ScoreAggregation string

const (
	AggregateMax   ScoreAggregation = "max"
	AggregateFirst ScoreAggregation = "first"
	AggregateMean  ScoreAggregation = "mean"
)

func ParseScoreAggregation(s string) (ScoreAggregation, error) {
	switch ScoreAggregation(s) {
	case "", AggregateMax:
		return AggregateMax, nil
	case AggregateFirst, AggregateMean:
		return ScoreAggregation(s), nil
	default:
		return "", fmt.Errorf("unknown score aggregation %q", s)
	}
}

type scoreAccumulator struct {
	policy ScoreAggregation
	sums   map[int64]float64
	counts map[int64]int
}

func newScoreAccumulator(policy ScoreAggregation) *scoreAccumulator {
	return &scoreAccumulator{
		policy: policy,
		sums:   make(map[int64]float64),
		counts: make(map[int64]int),
	}
}

func (a *scoreAccumulator) add(id int64, score float64) {
	n := a.counts[id]
	switch {
	case n == 0:
		a.sums[id] = score
	case a.policy == AggregateMax:
		if score > a.sums[id] {
			a.sums[id] = score
		}
	case a.policy == AggregateMean:
		a.sums[id] += score
	}
	a.counts[id] = n + 1
}

func (a *scoreAccumulator) scores() map[int64]float64 {
	out := make(map[int64]float64, len(a.sums))
	for id, s := range a.sums {
		if a.policy == AggregateMean {
			s /= float64(a.counts[id])
		}
		out[id] = s
	}
	return out
}

func candidateSet(candidates []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(candidates))
	for _, id := range candidates {
		set[id] = struct{}{}
	}
	return set
}

// topN joins scores with the directory and keeps the n best. Restaurants
// missing from the directory cannot be displayed and are skipped. Equal scores
// keep directory order.
func topN(dir *corpus.Directory, scores map[int64]float64, n int) []RestaurantSummary {
	out := make([]RestaurantSummary, 0, len(scores))
	for id, score := range scores {
		r, ok := dir.Get(id)
		if !ok {
			continue
		}
		out = append(out, RestaurantSummary{
			ID:       r.ID,
			Name:     r.Name,
			Location: r.Location,
			Country:  r.Country,
			Score:    score,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return dir.Position(out[i].ID) < dir.Position(out[j].ID)
	})

	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
