package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/conorfennell/flashcards/internal/domain"
	"github.com/conorfennell/flashcards/internal/study"
)

// study runs an interactive review loop over the due cards.
func (a *app) study(ctx context.Context) error {
	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	in := bufio.NewScanner(a.in)
	ask := func(prompt string) (string, bool) {
		fmt.Fprint(a.out, prompt)
		if !in.Scan() {
			return "", false
		}
		return strings.ToLower(strings.TrimSpace(in.Text())), true
	}

	for ctx.Err() == nil {
		card, mode, ok := s.Current()
		if !ok {
			fmt.Fprintln(a.out, "Nothing left to study.")
			if s.PendingUndos() == 0 {
				return nil
			}
			answer, ok := ask("[u]ndo or [q]uit? ")
			if !ok || (answer != "u" && answer != "undo") {
				return nil
			}
			if err := a.undo(ctx, s); err != nil {
				return err
			}
			continue
		}

		fmt.Fprintf(a.out, "\n%d due\n%s\n", s.DueCount(), sideShown(card, mode))
		if _, ok := ask("(press enter to reveal) "); !ok {
			return nil
		}
		fmt.Fprintf(a.out, "%s\n", sideHidden(card, mode))
		if card.Notes != "" {
			fmt.Fprintf(a.out, "Notes: %s\n", card.Notes)
		}

	answer:
		for {
			answer, ok := ask("[o]k, [f]ail, [u]ndo or [q]uit? ")
			if !ok {
				return nil
			}
			switch answer {
			case "o", "ok":
				if _, err := s.Submit(ctx, card.ID, domain.OutcomeOK); err != nil {
					return err
				}
				break answer
			case "f", "fail":
				if _, err := s.Submit(ctx, card.ID, domain.OutcomeFail); err != nil {
					return err
				}
				break answer
			case "u", "undo":
				if err := a.undo(ctx, s); err != nil {
					return err
				}
				break answer
			case "q", "quit":
				return nil
			}
		}
	}
	return ctx.Err()
}

func (a *app) undo(ctx context.Context, s *study.Session) error {
	card, ok, err := s.Undo(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Nothing to undo.")
		return nil
	}
	fmt.Fprintf(a.out, "Undid review of %q\n", card.Front)
	return nil
}

// sideShown is the prompt side. Recall-front asks for the front given the back.
func sideShown(c *domain.Card, mode domain.StudyMode) string {
	if mode == domain.StudyModeFront {
		return c.Back
	}
	return c.Front
}

func sideHidden(c *domain.Card, mode domain.StudyMode) string {
	if mode == domain.StudyModeFront {
		return c.Front
	}
	return c.Back
}
