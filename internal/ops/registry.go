package ops

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
	ErrArity            = errors.New("operator arity mismatch")
	ErrInvalidSymbol    = errors.New("invalid operator symbol")
)

// Reserved symbols are part of the language itself and cannot be registered.
const (
	NotSymbol  = "!"
	CondSymbol = "?"
)

// Func is a pure operator over round values. It is called with exactly
// Spec.Arity arguments.
type Func func(args []Value) Value

type Spec struct {
	Symbol string
	Arity  int
	Func   Func
}

type key struct {
	symbol string
	arity  int
}

// Registry maps (symbol, arity) to operator functions. It is safe for
// concurrent use; strategies resolve their operators once at parse time.
type Registry struct {
	mu sync.RWMutex
	m  map[key]Func
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[key]Func)}
}

var defaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Default returns the process-wide registry holding the built-in operators.
func Default() *Registry {
	return defaultRegistry
}

func (r *Registry) Register(spec Spec) error {
	if !ValidSymbol(spec.Symbol) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, spec.Symbol)
	}
	if spec.Symbol == NotSymbol || spec.Symbol == CondSymbol {
		return fmt.Errorf("%w: %s is reserved", ErrInvalidSymbol, spec.Symbol)
	}
	if spec.Arity < 1 {
		return fmt.Errorf("%w: %s/%d", ErrArity, spec.Symbol, spec.Arity)
	}
	if spec.Func == nil {
		return errors.New("operator function is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{symbol: spec.Symbol, arity: spec.Arity}
	if _, exists := r.m[k]; exists {
		return fmt.Errorf("%w: %s/%d", ErrOperatorExists, spec.Symbol, spec.Arity)
	}
	r.m[k] = spec.Func
	return nil
}

func (r *Registry) MustRegister(symbol string, arity int, fn Func) {
	if err := r.Register(Spec{Symbol: symbol, Arity: arity, Func: fn}); err != nil {
		panic(err)
	}
}

// Lookup resolves symbol at the given arity. When the symbol is known under
// a different arity the error wraps ErrArity, otherwise ErrOperatorNotFound.
func (r *Registry) Lookup(symbol string, arity int) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if fn, ok := r.m[key{symbol: symbol, arity: arity}]; ok {
		return fn, nil
	}
	for k := range r.m {
		if k.symbol == symbol {
			return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrArity, symbol, k.arity, arity)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, symbol)
}

// Arities lists the registered arities of symbol in ascending order.
func (r *Registry) Arities(symbol string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []int
	for k := range r.m {
		if k.symbol == symbol {
			out = append(out, k.arity)
		}
	}
	sort.Ints(out)
	return out
}

func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Spec, 0, len(r.m))
	for k, fn := range r.m {
		out = append(out, Spec{Symbol: k.symbol, Arity: k.arity, Func: fn})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Arity < out[j].Arity
	})
	return out
}

const symbolChars = "&|^=<>+-*/%!?@$"

// IsSymbolChar reports whether c may appear in a punctuation operator.
func IsSymbolChar(c rune) bool {
	return strings.ContainsRune(symbolChars, c)
}

// ValidSymbol accepts either a run of punctuation operator characters or an
// identifier (letter or underscore, then letters, digits and underscores).
func ValidSymbol(s string) bool {
	if s == "" {
		return false
	}
	if IsSymbolChar(rune(s[0])) {
		for _, c := range s {
			if !IsSymbolChar(c) {
				return false
			}
		}
		return true
	}
	for i, c := range s {
		switch {
		case c == '_' || unicode.IsLetter(c):
		case i > 0 && unicode.IsDigit(c):
		default:
			return false
		}
	}
	return true
}
