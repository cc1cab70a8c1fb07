package tournament

import (
	"golang.org/x/exp/rand"

	"twotoone/internal/agent"
	"twotoone/internal/lang"
	"twotoone/internal/ops"
)

// Score is the pair of raw totals of one pairing, first player in A.
// AbortedA and AbortedB count the games in which that side failed at runtime;
// FaultA and FaultB keep the first such failure.
type Score struct {
	A        int    `json:"a"`
	B        int    `json:"b"`
	AbortedA int    `json:"aborted_a,omitempty"`
	AbortedB int    `json:"aborted_b,omitempty"`
	FaultA   string `json:"fault_a,omitempty"`
	FaultB   string `json:"fault_b,omitempty"`
}

// Aborted reports whether either side failed at runtime in any game.
func (s Score) Aborted() bool {
	return s.AbortedA > 0 || s.AbortedB > 0
}

func noteFault(err error, aborted *int, fault *string) {
	if err == nil {
		return
	}
	*aborted++
	if *fault == "" {
		*fault = err.Error()
	}
}

// Normalize maps a reported value onto a move: absent stays absent,
// anything else becomes its boolean reading.
func Normalize(v ops.Value) ops.Value {
	if v.IsAbsent() {
		return v
	}
	return ops.Bool(v.Truthy())
}

// Points is what a move earns when the two moves differ: false earns 1,
// true earns 2 and an absent move earns nothing.
func Points(move ops.Value) int {
	if move.IsAbsent() {
		return 0
	}
	if move.Truthy() {
		return 2
	}
	return 1
}

// MatchScore plays games independent matches of rounds rounds between a and
// b. Both sides are stepped with the other's move from the previous round.
// A side whose program fails at runtime plays absent moves for the rest of
// that match; the failure is counted in the score rather than returned.
func MatchScore(a, b *lang.Program, games, rounds int, rng *rand.Rand) (Score, error) {
	pa, err := agent.NewPlayer("a", a, rng)
	if err != nil {
		return Score{}, err
	}
	pb, err := agent.NewPlayer("b", b, rng)
	if err != nil {
		return Score{}, err
	}

	var s Score
	for g := 0; g < games; g++ {
		pa.Reset()
		pb.Reset()
		prevA, prevB := ops.Absent(), ops.Absent()
		for r := 0; r < rounds; r++ {
			ma, _ := pa.Step(prevB)
			mb, _ := pb.Step(prevA)
			ma, mb = Normalize(ma), Normalize(mb)
			if !ma.Equal(mb) {
				s.A += Points(ma)
				s.B += Points(mb)
			}
			prevA, prevB = ma, mb
		}
		noteFault(pa.Err(), &s.AbortedA, &s.FaultA)
		noteFault(pb.Err(), &s.AbortedB, &s.FaultB)
	}
	return s, nil
}
