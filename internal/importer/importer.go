// Package importer turns delimited text files and deck sources into cards.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/flashcards/internal/dedupe"
	"github.com/conorfennell/flashcards/internal/gitsource"
	"github.com/conorfennell/flashcards/internal/parser"
	"github.com/conorfennell/flashcards/internal/scheduler"
	"github.com/conorfennell/flashcards/internal/storage"
)

const (
	SourceLocal = "local"
	SourceGit   = "git"
)

var deckExtensions = map[string]bool{".csv": true, ".tsv": true, ".txt": true, ".md": true}

// Report summarizes one import.
type Report struct {
	Imported   int
	Duplicates int
	// Errors holds per-line and per-file failures. None of them stopped the
	// import.
	Errors []error
}

func (r *Report) merge(o Report) {
	r.Imported += o.Imported
	r.Duplicates += o.Duplicates
	r.Errors = append(r.Errors, o.Errors...)
}

// Importer writes parsed rows into the store as new cards.
type Importer struct {
	db       *storage.DB
	sched    *scheduler.Scheduler
	log      *slog.Logger
	reposDir string
	now      func() time.Time
	progress io.Writer
}

// New returns an Importer. Git sources are checked out below reposDir.
func New(db *storage.DB, sched *scheduler.Scheduler, reposDir string, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{db: db, sched: sched, log: log, reposDir: reposDir, now: time.Now}
}

// SetProgress sends git transfer progress to w.
func (im *Importer) SetProgress(w io.Writer) {
	im.progress = w
}

// Request describes what to import and how.
type Request struct {
	Options  parser.Options
	Tags     []uuid.UUID
	SourceID *int64
}

// ImportReader imports every row read from r. name is used in error messages.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader, name string, req Request) (Report, error) {
	res, err := parser.Parse(r, req.Options)
	if err != nil {
		return Report{}, fmt.Errorf("parsing %s: %w", name, err)
	}
	idx, err := im.index(ctx)
	if err != nil {
		return Report{}, err
	}
	return im.insert(ctx, name, res, idx, req), nil
}

// ImportFile imports a single file. .tsv files are always tab separated and
// .md files use the Q:/A:/N: block format.
func (im *Importer) ImportFile(ctx context.Context, path string, req Request) (Report, error) {
	idx, err := im.index(ctx)
	if err != nil {
		return Report{}, err
	}
	res, err := parser.ParseFile(path, optionsFor(path, req.Options))
	if err != nil {
		return Report{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return im.insert(ctx, path, res, idx, req), nil
}

// AddSource registers a local directory or Git URL for SyncAll.
func (im *Importer) AddSource(ctx context.Context, location string) (int64, error) {
	sourceType := SourceLocal
	if gitsource.IsGitURL(location) {
		sourceType = SourceGit
	} else {
		abs, err := filepath.Abs(location)
		if err != nil {
			return 0, fmt.Errorf("resolving %s: %w", location, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return 0, fmt.Errorf("checking source %s: %w", abs, err)
		}
		if !info.IsDir() {
			return 0, fmt.Errorf("source %s is not a directory", abs)
		}
		location = abs
	}
	id, err := im.db.InsertSource(ctx, location, sourceType)
	if err != nil {
		return 0, err
	}
	im.log.Info("Added source", "id", id, "type", sourceType, "path", location)
	return id, nil
}

// SyncAll iterates over all sources and imports any new cards they hold.
// A failing source is logged and skipped.
func (im *Importer) SyncAll(ctx context.Context, opts parser.Options) (Report, error) {
	im.log.Info("Starting sync process for all sources...")
	sources, err := im.db.GetAllSources(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		im.log.Info("No sources configured. Add one with: source add <path/or/url.git>")
		return Report{}, nil
	}

	var total Report
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		im.log.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == SourceGit {
			dir, err = gitsource.LocalPath(im.reposDir, source.Path)
			if err != nil {
				im.log.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				total.Errors = append(total.Errors, err)
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, dir, im.progress); err != nil {
				im.log.Error("Error syncing git repo", "url", source.Path, "error", err)
				total.Errors = append(total.Errors, err)
				continue
			}
		}

		rep, err := im.importDir(ctx, dir, Request{Options: opts, SourceID: &source.ID})
		if err != nil {
			im.log.Error("Error walking directory", "path", dir, "error", err)
			total.Errors = append(total.Errors, err)
			continue
		}
		total.merge(rep)

		if err := im.db.UpdateSourceLastScanned(ctx, source.ID, im.now()); err != nil {
			im.log.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
		}
	}
	im.log.Info("Sync process complete.",
		"imported", total.Imported,
		"duplicates", total.Duplicates,
		"errors", len(total.Errors),
	)
	return total, nil
}

func (im *Importer) importDir(ctx context.Context, dir string, req Request) (Report, error) {
	idx, err := im.index(ctx)
	if err != nil {
		return Report{}, err
	}
	var rep Report
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !deckExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		res, parseErr := parser.ParseFile(path, optionsFor(path, req.Options))
		if parseErr != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		rep.merge(im.insert(ctx, path, res, idx, req))
		return ctx.Err()
	})
	if walkErr != nil {
		return rep, walkErr
	}

	im.log.Info("reconciliation complete",
		"path", dir,
		"imported", rep.Imported,
		"duplicates", rep.Duplicates,
		"errors", len(rep.Errors),
	)
	return rep, nil
}

func (im *Importer) index(ctx context.Context) (*dedupe.Index, error) {
	texts, err := im.db.FindDuplicateTexts(ctx)
	if err != nil {
		return nil, err
	}
	return dedupe.NewIndex(texts...), nil
}

func (im *Importer) insert(ctx context.Context, name string, res parser.Result, idx *dedupe.Index, req Request) Report {
	var rep Report
	for _, rowErr := range res.Errors {
		rep.Errors = append(rep.Errors, fmt.Errorf("%s: %w", name, rowErr))
	}
	for _, row := range res.Rows {
		if idx.Seen(row.Front, row.Back) {
			rep.Duplicates++
			continue
		}
		card := im.sched.NewCard(row.Front, row.Back, row.Notes, im.now())
		for _, id := range req.Tags {
			card.Tags.Add(id)
		}
		if err := im.db.InsertCard(ctx, card, req.SourceID); err != nil {
			if errors.Is(err, storage.ErrEmptyCard) {
				err = parser.RowError{Line: row.Line, Err: err}
			}
			im.log.Warn("Failed to insert card", "file", name, "line", row.Line, "error", err)
			rep.Errors = append(rep.Errors, fmt.Errorf("%s: %w", name, err))
			continue
		}
		idx.Add(row.Front, row.Back)
		rep.Imported++
	}
	return rep
}

func optionsFor(path string, opts parser.Options) parser.Options {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		opts.Separator = "\t"
	}
	return opts
}
