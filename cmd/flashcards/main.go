package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/conorfennell/flashcards/internal/config"
	"github.com/conorfennell/flashcards/internal/domain"
	"github.com/conorfennell/flashcards/internal/ledger"
	"github.com/conorfennell/flashcards/internal/scheduler"
	"github.com/conorfennell/flashcards/internal/storage"
	"github.com/conorfennell/flashcards/internal/study"
)

const usage = `Usage: flashcards [flags] <command> [args]

Commands:
  add FRONT BACK [NOTES]        Add a card
  edit CARD                     Change a card with --front, --back, --notes, --due
  delete CARD                   Delete a card and its reviews
  import FILE...                Import delimited or .md files ("-" reads stdin)
  source add|list|remove        Manage synced deck sources
  sync                          Import new cards from every source
  export                        Write the deck as csv or json
  list                          List cards grouped by due day
  search TEXT                   Find cards containing TEXT
  tag add|list|mode|select|set|delete
  study                         Review due cards interactively
  serve                         Serve the JSON API

Flags:
`

var errUsage = errors.New("invalid usage")

// app carries what every command needs.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	db    *storage.DB
	sched *scheduler.Scheduler
	loc   *time.Location
	in    io.Reader
	out   io.Writer

	flags  *pflag.FlagSet
	tags   []string
	format string
	output string
	prefix bool
	front  string
	back   string
	notes  string
	due    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	a := &app{in: in, out: out}

	fs := pflag.NewFlagSet("flashcards", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	config.RegisterFlags(fs)
	fs.StringSliceVar(&a.tags, "tag", nil, "Tag names for add and import (created when missing)")
	fs.StringVar(&a.format, "format", "csv", "Export format: csv or json")
	fs.StringVarP(&a.output, "output", "o", "", "Export destination file (default: stdout)")
	fs.BoolVar(&a.prefix, "prefix", false, "Search fronts and backs by prefix")
	fs.StringVar(&a.front, "front", "", "New front for edit")
	fs.StringVar(&a.back, "back", "", "New back for edit")
	fs.StringVar(&a.notes, "notes", "", "New notes for edit")
	fs.StringVar(&a.due, "due", "", "New due date for edit (YYYY-MM-DD or RFC 3339)")
	a.flags = fs
	fs.Usage = func() {
		fmt.Fprint(errOut, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = config.NewLogger(cfg.Log, errOut)
	if a.loc, err = cfg.Location(); err != nil {
		return err
	}
	if a.sched, err = cfg.NewScheduler(); err != nil {
		return err
	}

	a.db, err = storage.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer a.db.Close()
	a.log.Debug("Database opened", "path", cfg.DB, "algorithm", a.sched.Algorithm().Name())

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "add":
		return a.add(ctx, rest)
	case "edit":
		return a.edit(ctx, rest)
	case "delete":
		return a.deleteCard(ctx, rest)
	case "import":
		return a.importFiles(ctx, rest)
	case "source":
		return a.source(ctx, rest)
	case "sync":
		return a.sync(ctx)
	case "export":
		return a.export(ctx)
	case "list":
		return a.list(ctx)
	case "search":
		return a.search(ctx, rest)
	case "tag":
		return a.tag(ctx, rest)
	case "study":
		return a.study(ctx)
	case "serve":
		return a.serve(ctx)
	default:
		fmt.Fprintf(errOut, "Unknown command %q\n\n", cmd)
		fs.Usage()
		return errUsage
	}
}

// session loads the whole deck into a study session.
func (a *app) session(ctx context.Context) (*study.Session, error) {
	cards, err := a.db.ListCards(ctx, storage.ListOptions{})
	if err != nil {
		return nil, err
	}
	tags, err := a.db.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	return study.New(ledger.New(a.sched), a.db, cards, tags, study.Options{
		UndoDepth: a.cfg.Undo.Depth,
		Mode:      a.cfg.QueueMode(),
		Location:  a.loc,
		Logger:    a.log,
	}), nil
}

// tagByName finds exactly one tag called name.
func (a *app) tagByName(ctx context.Context, name string) (*domain.Tag, error) {
	found, err := a.db.FindTagsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("no tag named %q", name)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%d tags are named %q", len(found), name)
	}
}

// resolveTags maps --tag names to ids, creating missing tags.
func (a *app) resolveTags(ctx context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(a.tags))
	for _, name := range a.tags {
		found, err := a.db.FindTagsByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(found) > 1 {
			return nil, fmt.Errorf("%d tags are named %q", len(found), name)
		}
		if len(found) == 1 {
			ids = append(ids, found[0].ID)
			continue
		}
		t := &domain.Tag{Name: name}
		if err := a.db.InsertTag(ctx, t); err != nil {
			return nil, err
		}
		a.log.Info("Created tag", "name", name, "id", t.ID)
		ids = append(ids, t.ID)
	}
	return ids, nil
}
