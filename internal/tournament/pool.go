package tournament

import (
	"context"
	"sync"

	"golang.org/x/exp/rand"
)

type pairKey struct {
	a, b int
}

// playPairs scores every pairing on a bounded worker pool. Results come back
// in the order of pairs regardless of which worker finished first.
func (e *Engine) playPairs(ctx context.Context, strategies []Strategy, pairs []pairKey) ([]Score, error) {
	type job struct {
		idx  int
		pair pairKey
	}
	type result struct {
		idx   int
		score Score
		err   error
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	jobs := make(chan job)
	results := make(chan result, len(pairs))

	workerCount := e.cfg.Workers
	if workerCount > len(pairs) {
		workerCount = len(pairs)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				rng := rand.New(rand.NewSource(pairSeed(e.cfg.Seed, j.pair.a, j.pair.b)))
				a, b := strategies[j.pair.a], strategies[j.pair.b]
				score, err := MatchScore(a.Program, b.Program, e.cfg.Games, e.cfg.Rounds, rng)
				results <- result{idx: j.idx, score: score, err: err}
			}
		}()
	}

	for i, p := range pairs {
		jobs <- job{idx: i, pair: p}
	}
	close(jobs)

	wg.Wait()
	close(results)

	scores := make([]Score, len(pairs))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		scores[res.idx] = res.score
	}
	return scores, nil
}
