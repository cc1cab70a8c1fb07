package tournament

import (
	"context"
	"sort"
)

// Entry is a strategy with its population weight.
type Entry struct {
	Strategy Strategy
	Weight   float64
}

// Standing is one line of a ranking; Index points into the ranked input.
type Standing struct {
	Index     int
	Aggregate float64
}

// Pass records one elimination round of Recalculate.
type Pass struct {
	Ranking    []string  `json:"ranking"`
	Weights    []float64 `json:"weights"`
	Eliminated []string  `json:"eliminated"`
}

type Result struct {
	Order  []Strategy
	Passes []Pass
}

// IDs lists the ids of the ranked strategies, best first.
func (r Result) IDs() []string {
	ids := make([]string, len(r.Order))
	for i, s := range r.Order {
		ids[i] = s.ID
	}
	return ids
}

// Bonus is the weight change for finishing at rank (0 is best) out of total.
// Bonuses of one pass sum to -2.5.
func Bonus(rank, total int) float64 {
	return 5 * (0.5 - float64(rank+1)/float64(total))
}

type session struct {
	ctx        context.Context
	engine     *Engine
	strategies []Strategy
	cache      map[pairKey]Score
}

// Rank plays every unordered pair of entries once, self-pairs included, and
// orders them by aggregate score: each side of a pairing earns its raw total
// times the weight of the other side. Ties keep input order.
func (e *Engine) Rank(ctx context.Context, entries []Entry) ([]Standing, error) {
	strategies := make([]Strategy, len(entries))
	weights := make([]float64, len(entries))
	active := make([]int, len(entries))
	for i, entry := range entries {
		strategies[i] = entry.Strategy
		weights[i] = entry.Weight
		active[i] = i
	}
	s, err := e.newSession(ctx, strategies)
	if err != nil {
		return nil, err
	}
	return s.rank(active, weights)
}

func (s *session) fill(active []int) error {
	var missing []pairKey
	for i, a := range active {
		for _, b := range active[:i+1] {
			if _, ok := s.cache[pairKey{a, b}]; !ok {
				missing = append(missing, pairKey{a, b})
			}
		}
	}
	scores, err := s.engine.playPairs(s.ctx, s.strategies, missing)
	if err != nil {
		return err
	}
	for i, p := range missing {
		s.cache[p] = scores[i]
	}
	return nil
}

// rank orders active (indices into s.strategies, ascending) given
// per-strategy weights. Pairings are cached, so repeated passes over a
// shrinking population do not replay matches.
func (s *session) rank(active []int, weights []float64) ([]Standing, error) {
	if err := s.fill(active); err != nil {
		return nil, err
	}
	agg := make(map[int]float64, len(active))
	for i, a := range active {
		for _, b := range active[:i+1] {
			score := s.cache[pairKey{a, b}]
			agg[a] += float64(score.A) * weights[b]
			agg[b] += float64(score.B) * weights[a]
		}
	}

	standings := make([]Standing, len(active))
	for i, idx := range active {
		standings[i] = Standing{Index: idx, Aggregate: agg[idx]}
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Aggregate > standings[j].Aggregate
	})
	return standings, nil
}

// Recalculate orders the whole population best first. Every strategy starts
// at weight 1; each pass ranks the survivors, adds Bonus to their weights and
// drops those at or below zero. Strategies dropped in the same pass are
// recorded best-ranked last. The final order is the reverse of the drop
// order, so the last survivor comes first.
func (e *Engine) Recalculate(ctx context.Context, strategies []Strategy) (Result, error) {
	if len(strategies) == 0 {
		return Result{}, nil
	}
	if len(strategies) == 1 {
		return Result{Order: []Strategy{strategies[0]}}, nil
	}
	s, err := e.newSession(ctx, strategies)
	if err != nil {
		return Result{}, err
	}

	weights := make([]float64, len(strategies))
	active := make([]int, len(strategies))
	for i := range strategies {
		weights[i] = 1
		active[i] = i
	}

	var (
		dropped []int
		passes  []Pass
	)
	for len(active) > 1 {
		standings, err := s.rank(active, weights)
		if err != nil {
			return Result{}, err
		}

		pass := Pass{
			Ranking: make([]string, len(standings)),
			Weights: make([]float64, len(standings)),
		}
		out := make(map[int]bool)
		var batch []int
		for pos, st := range standings {
			weights[st.Index] += Bonus(pos, len(standings))
			pass.Ranking[pos] = strategies[st.Index].ID
			pass.Weights[pos] = weights[st.Index]
			if weights[st.Index] <= 0 {
				batch = append(batch, st.Index)
				out[st.Index] = true
			}
		}
		for i := len(batch) - 1; i >= 0; i-- {
			dropped = append(dropped, batch[i])
			pass.Eliminated = append(pass.Eliminated, strategies[batch[i]].ID)
		}
		passes = append(passes, pass)

		remaining := active[:0:0]
		for _, idx := range active {
			if !out[idx] {
				remaining = append(remaining, idx)
			}
		}
		active = remaining
	}
	dropped = append(dropped, active...)

	order := make([]Strategy, len(dropped))
	for i, idx := range dropped {
		order[len(dropped)-1-i] = strategies[idx]
	}
	return Result{Order: order, Passes: passes}, nil
}
