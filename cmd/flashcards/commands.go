package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/flashcards/internal/domain"
	"github.com/conorfennell/flashcards/internal/export"
	"github.com/conorfennell/flashcards/internal/importer"
	"github.com/conorfennell/flashcards/internal/ledger"
	"github.com/conorfennell/flashcards/internal/queue"
	"github.com/conorfennell/flashcards/internal/search"
	"github.com/conorfennell/flashcards/internal/storage"
	"github.com/conorfennell/flashcards/internal/study"
)

func (a *app) add(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("add needs FRONT BACK [NOTES]: %w", errUsage)
	}
	ids, err := a.resolveTags(ctx)
	if err != nil {
		return err
	}
	notes := ""
	if len(args) == 3 {
		notes = args[2]
	}
	card := a.sched.NewCard(args[0], args[1], notes, time.Now())
	for _, id := range ids {
		card.Tags.Add(id)
	}
	if err := a.db.InsertCard(ctx, card, nil); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added card %s\n", card.ID)
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("edit needs a card id: %w", errUsage)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid card id %q", args[0])
	}

	var edit study.CardEdit
	changed := func(name string, v *string) *string {
		if a.flags.Changed(name) {
			return v
		}
		return nil
	}
	edit.Front = changed("front", &a.front)
	edit.Back = changed("back", &a.back)
	edit.Notes = changed("notes", &a.notes)
	if a.flags.Changed("due") {
		due, err := parseDue(a.due, a.loc)
		if err != nil {
			return err
		}
		edit.NextReviewDate = &due
	}

	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	card, err := s.Edit(ctx, id, edit)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated card %s, due %s\n", card.ID, card.NextReviewDate.In(a.loc).Format(time.DateTime))
	return nil
}

// parseDue accepts a calendar day, taken as midnight in loc, or an RFC 3339
// time.
func parseDue(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q", s)
	}
	return t, nil
}

func (a *app) deleteCard(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("delete needs a card id: %w", errUsage)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid card id %q", args[0])
	}
	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	if err := s.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted card %s\n", id)
	return nil
}

func (a *app) newImporter() *importer.Importer {
	im := importer.New(a.db, a.sched, a.cfg.ReposDir, a.log)
	im.SetProgress(os.Stderr)
	return im
}

func (a *app) importFiles(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("import needs at least one file: %w", errUsage)
	}
	ids, err := a.resolveTags(ctx)
	if err != nil {
		return err
	}
	im := a.newImporter()
	req := importer.Request{Options: a.cfg.ParserOptions(), Tags: ids}

	var total importer.Report
	for _, path := range args {
		var rep importer.Report
		if path == "-" {
			rep, err = im.ImportReader(ctx, a.in, "stdin", req)
		} else {
			rep, err = im.ImportFile(ctx, path, req)
		}
		if err != nil {
			return err
		}
		total.Imported += rep.Imported
		total.Duplicates += rep.Duplicates
		total.Errors = append(total.Errors, rep.Errors...)
	}
	a.printReport(total)
	return nil
}

func (a *app) printReport(rep importer.Report) {
	fmt.Fprintf(a.out, "Imported %d cards, skipped %d duplicates, %d errors.\n",
		rep.Imported, rep.Duplicates, len(rep.Errors))
	if len(rep.Errors) > 0 {
		fmt.Fprintln(a.out, "\nErrors:")
		for _, e := range rep.Errors {
			fmt.Fprintf(a.out, "- %s\n", e)
		}
	}
}

func (a *app) source(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("source needs add, list or remove: %w", errUsage)
	}
	switch args[0] {
	case "add":
		if len(args) != 2 {
			return fmt.Errorf("source add needs a directory or Git URL: %w", errUsage)
		}
		id, err := a.newImporter().AddSource(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Added source %d\n", id)
	case "list":
		sources, err := a.db.GetAllSources(ctx)
		if err != nil {
			return err
		}
		for _, src := range sources {
			scanned := "never"
			if src.LastScanned.Valid {
				scanned = src.LastScanned.Time.In(a.loc).Format(time.DateTime)
			}
			fmt.Fprintf(a.out, "%d\t%s\t%s\t%s\n", src.ID, src.Type, src.Path, scanned)
		}
	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("source remove needs an id: %w", errUsage)
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid source id %q", args[1])
		}
		if err := a.db.DeleteSource(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Removed source %d\n", id)
	default:
		return fmt.Errorf("unknown source command %q: %w", args[0], errUsage)
	}
	return nil
}

func (a *app) sync(ctx context.Context) error {
	rep, err := a.newImporter().SyncAll(ctx, a.cfg.ParserOptions())
	if err != nil {
		return err
	}
	a.printReport(rep)
	return nil
}

func (a *app) export(ctx context.Context) (err error) {
	deck, err := export.Load(ctx, a.db)
	if err != nil {
		return err
	}

	var w io.Writer = a.out
	if a.output != "" {
		f, cerr := os.Create(a.output)
		if cerr != nil {
			return fmt.Errorf("creating %s: %w", a.output, cerr)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	switch a.format {
	case "csv":
		return export.WriteDelimited(w, deck.Cards, a.cfg.Import.Separator)
	case "json":
		return export.WriteJSON(w, deck, time.Now())
	default:
		return fmt.Errorf("unknown export format %q", a.format)
	}
}

func (a *app) list(ctx context.Context) error {
	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	for _, g := range s.Groups() {
		fmt.Fprintf(a.out, "%s (%d)\n", g.Label, len(g.Cards))
		for _, c := range g.Cards {
			last := "never"
			if at, ok := ledger.LastReviewDate(c); ok {
				last = at.In(a.loc).Format(time.DateTime)
			}
			fmt.Fprintf(a.out, "  %s\t%s\t%s\tlast reviewed %s\n", c.ID, c.Front, c.Back, last)
		}
	}
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("search needs text: %w", errUsage)
	}
	cards, err := a.db.ListCards(ctx, storage.ListOptions{})
	if err != nil {
		return err
	}
	idx := search.NewIndex(cards)
	text := strings.Join(args, " ")

	var found []*domain.Card
	if a.prefix {
		found = idx.StartingWith(text)
	} else {
		found = idx.Including(text)
	}
	queue.Sort(found)
	for _, c := range found {
		fmt.Fprintf(a.out, "%s\t%s\t%s\n", c.ID, c.Front, c.Back)
	}
	return nil
}

func (a *app) tag(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("tag needs add, list, mode, select, set or delete: %w", errUsage)
	}
	switch args[0] {
	case "add":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("tag add needs NAME [MODE]: %w", errUsage)
		}
		t := &domain.Tag{Name: args[1]}
		if len(args) == 3 {
			mode, ok := domain.ParseStudyMode(args[2])
			if !ok {
				return fmt.Errorf("unknown study mode %q", args[2])
			}
			t.StudyMode = mode
		}
		if err := a.db.InsertTag(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Added tag %s\n", t.ID)
	case "list":
		tags, err := a.db.ListTags(ctx)
		if err != nil {
			return err
		}
		for _, t := range tags {
			members, err := a.db.TagMembers(ctx, t.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s\t%s\t%s\t%d cards\n", t.Name, orNone(string(t.StudyMode)), orNone(string(t.Bucket)), len(members))
		}
	case "mode":
		if len(args) != 3 {
			return fmt.Errorf("tag mode needs NAME MODE: %w", errUsage)
		}
		mode, ok := domain.ParseStudyMode(args[2])
		if !ok {
			return fmt.Errorf("unknown study mode %q", args[2])
		}
		return a.updateTag(ctx, args[1], func(t *domain.Tag) { t.StudyMode = mode })
	case "select":
		if len(args) != 3 {
			return fmt.Errorf("tag select needs NAME all|any|exclude|none: %w", errUsage)
		}
		bucket, ok := domain.ParseBucket(args[2])
		if !ok {
			return fmt.Errorf("unknown bucket %q", args[2])
		}
		return a.updateTag(ctx, args[1], func(t *domain.Tag) { t.Bucket = bucket })
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("tag set needs CARD [NAME...]: %w", errUsage)
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid card id %q", args[1])
		}
		tagIDs := make([]uuid.UUID, 0, len(args)-2)
		for _, name := range args[2:] {
			t, err := a.tagByName(ctx, name)
			if err != nil {
				return err
			}
			tagIDs = append(tagIDs, t.ID)
		}
		s, err := a.session(ctx)
		if err != nil {
			return err
		}
		if _, err := s.SetTags(ctx, id, tagIDs); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Card %s has %d tags\n", id, len(tagIDs))
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("tag delete needs NAME: %w", errUsage)
		}
		t, err := a.tagByName(ctx, args[1])
		if err != nil {
			return err
		}
		if err := a.db.DeleteTag(ctx, t.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted tag %s\n", t.Name)
	default:
		return fmt.Errorf("unknown tag command %q: %w", args[0], errUsage)
	}
	return nil
}

func (a *app) updateTag(ctx context.Context, name string, change func(*domain.Tag)) error {
	t, err := a.tagByName(ctx, name)
	if err != nil {
		return err
	}
	change(t)
	return a.db.UpdateTag(ctx, t)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
