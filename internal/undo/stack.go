package undo

import "github.com/conorfennell/flashcards/internal/domain"

// Stack is a bounded LIFO of tokens owned by the caller's session. When full,
// pushing drops the oldest token, making that review permanent. Tokens never
// expire by time.
type Stack struct {
	depth  int
	tokens []*Token
}

// NewStack returns a stack holding at most depth tokens. A depth below one is
// treated as one.
func NewStack(depth int) *Stack {
	if depth < 1 {
		depth = 1
	}
	return &Stack{depth: depth, tokens: make([]*Token, 0, depth)}
}

// Push adds t, evicting the oldest token when the stack is full.
func (s *Stack) Push(t *Token) {
	if len(s.tokens) == s.depth {
		copy(s.tokens, s.tokens[1:])
		s.tokens[len(s.tokens)-1] = nil
		s.tokens = s.tokens[:len(s.tokens)-1]
	}
	s.tokens = append(s.tokens, t)
}

// Pop removes and returns the newest token.
func (s *Stack) Pop() (*Token, bool) {
	n := len(s.tokens)
	if n == 0 {
		return nil, false
	}
	t := s.tokens[n-1]
	s.tokens[n-1] = nil
	s.tokens = s.tokens[:n-1]
	return t, true
}

// Peek returns the newest token without removing it.
func (s *Stack) Peek() (*Token, bool) {
	if len(s.tokens) == 0 {
		return nil, false
	}
	return s.tokens[len(s.tokens)-1], true
}

// Undo pops tokens until one applies. Tokens that no longer apply are
// discarded. It returns the token that was undone.
func (s *Stack) Undo() (*Token, bool) {
	for {
		t, ok := s.Pop()
		if !ok {
			return nil, false
		}
		if t.Undo() {
			return t, true
		}
	}
}

// Drop removes every token for card, keeping the order of the rest. It
// returns how many were removed.
func (s *Stack) Drop(card *domain.Card) int {
	kept := s.tokens[:0]
	for _, t := range s.tokens {
		if t.card != card {
			kept = append(kept, t)
		}
	}
	n := len(s.tokens) - len(kept)
	clear(s.tokens[len(kept):])
	s.tokens = kept
	return n
}

func (s *Stack) Len() int   { return len(s.tokens) }
func (s *Stack) Depth() int { return s.depth }

// Clear drops every token.
func (s *Stack) Clear() {
	clear(s.tokens)
	s.tokens = s.tokens[:0]
}
