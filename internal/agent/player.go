// Package agent runs parsed strategies one round at a time.
package agent

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/rand"

	"twotoone/internal/lang"
	"twotoone/internal/ops"
)

var ErrNonNumericInput = errors.New("numeric input is not a number")

// Player is the round state machine of one strategy. The first Step reports
// the seed; every later Step receives the opponent's previous move and
// reports this round's move. A Player is not safe for concurrent use; run
// one per match side.
type Player struct {
	id      string
	program *lang.Program
	rng     *rand.Rand
	env     []ops.Value
	next    []ops.Value
	pending ops.Value
	started bool
	err     error
}

func NewPlayer(id string, program *lang.Program, rng *rand.Rand) (*Player, error) {
	if program == nil {
		return nil, fmt.Errorf("program is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	return &Player{
		id:      id,
		program: program,
		rng:     rng,
		env:     make([]ops.Value, program.Slots()),
		next:    make([]ops.Value, len(program.Registers)),
	}, nil
}

func (p *Player) ID() string {
	return p.id
}

// Reset returns the player to its initial state. The random source is kept.
func (p *Player) Reset() {
	clear(p.env)
	p.pending = ops.Absent()
	p.started = false
	p.err = nil
}

// Err reports the error that stopped the player, if any.
func (p *Player) Err() error {
	return p.err
}

// Step advances one round. The opponent move is ignored on the first call.
// Once a step fails the player keeps returning that error until Reset.
func (p *Player) Step(opponent ops.Value) (ops.Value, error) {
	if p.err != nil {
		return ops.Absent(), p.err
	}
	move, err := p.step(opponent)
	if err != nil {
		p.err = err
		return ops.Absent(), err
	}
	return move, nil
}

func (p *Player) step(opponent ops.Value) (ops.Value, error) {
	prog := p.program
	if !p.started {
		for i, r := range prog.Registers {
			v, err := p.eval(r.Init)
			if err != nil {
				return ops.Absent(), fmt.Errorf("register %s: %w", r.Name, err)
			}
			p.env[lang.RegisterSlot(i)] = v
		}
		seed, err := p.eval(prog.Seed.Init)
		if err != nil {
			return ops.Absent(), fmt.Errorf("seed: %w", err)
		}
		p.pending = seed
		p.started = true
		return seed, nil
	}

	p.env[lang.OpponentSlot] = opponent
	p.env[lang.SeedSlot] = p.pending
	for i, s := range prog.Statements {
		v, err := p.call(s.Call)
		if err != nil {
			return ops.Absent(), fmt.Errorf("%s: %w", s.Name, err)
		}
		p.env[prog.StatementSlot(i)] = v
	}
	move, err := p.eval(prog.Final)
	if err != nil {
		return ops.Absent(), err
	}

	// Updates read this round's statement values, so they run before the
	// environment is cleared.
	for i, u := range prog.Updates {
		v, err := p.eval(u)
		if err != nil {
			return ops.Absent(), fmt.Errorf("update %s: %w", prog.Registers[i].Name, err)
		}
		p.next[i] = v
	}
	clear(p.env)
	for i, v := range p.next {
		p.env[lang.RegisterSlot(i)] = v
	}
	p.pending = move
	return move, nil
}

// Run plays len(opponent) rounds, feeding opponent[i-1] into round i, and
// returns the reported moves.
func (p *Player) Run(ctx context.Context, opponent []ops.Value) ([]ops.Value, error) {
	moves := make([]ops.Value, 0, len(opponent))
	prev := ops.Absent()
	for _, o := range opponent {
		if err := ctx.Err(); err != nil {
			return moves, err
		}
		move, err := p.Step(prev)
		if err != nil {
			return moves, err
		}
		moves = append(moves, move)
		prev = o
	}
	return moves, nil
}
