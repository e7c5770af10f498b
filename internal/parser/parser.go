// Package parser reads flashcard rows from delimited text and from
// Q:/A:/N: block files.
package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotEnoughValues = errors.New("not enough values")
	ErrTooManyValues   = errors.New("too many values")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options describes the text dialect of an import.
type Options struct {
	// Separator must be exactly one character.
	Separator string `validate:"required,len=1"`
	// Quoted enables CSV-style double quoting of fields.
	Quoted bool
}

// DefaultOptions splits on commas with CSV quoting.
func DefaultOptions() Options {
	return Options{Separator: ",", Quoted: true}
}

// Validate checks the options before any input is read.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid import options: %w", err)
	}
	return nil
}

// Row is one parsed card.
type Row struct {
	Line  int
	Front string
	Back  string
	Notes string
}

// RowError reports a line that could not be turned into a card.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Result holds what a parse produced. A bad line never stops the lines after
// it from being read.
type Result struct {
	Rows   []Row
	Errors []RowError
}

// ParseFile parses the file at path, choosing the block format for .md files
// and opts otherwise.
func ParseFile(path string, opts Options) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer file.Close()

	if strings.HasSuffix(strings.ToLower(path), ".md") {
		return ParseBlocks(file)
	}
	return Parse(file, opts)
}

// Parse reads delimited rows of front, back and optional notes.
func Parse(r io.Reader, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	sep, _ := utf8.DecodeRuneInString(opts.Separator)
	if opts.Quoted {
		return parseQuoted(r, sep)
	}
	return parsePlain(r, opts.Separator)
}

func parsePlain(r io.Reader, sep string) (Result, error) {
	var res Result
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		res.add(line, strings.Split(text, sep))
	}
	if err := scanner.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func parseQuoted(r io.Reader, sep rune) (Result, error) {
	var res Result
	reader := csv.NewReader(r)
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.Errors = append(res.Errors, RowError{Line: perr.StartLine, Err: perr.Err})
				continue
			}
			return res, err
		}
		line, _ := reader.FieldPos(0)
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}
		res.add(line, fields)
	}
	return res, nil
}

func (res *Result) add(line int, fields []string) {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	switch {
	case len(fields) < 2:
		res.Errors = append(res.Errors, RowError{Line: line, Err: ErrNotEnoughValues})
		return
	case len(fields) > 3:
		res.Errors = append(res.Errors, RowError{Line: line, Err: ErrTooManyValues})
		return
	}
	row := Row{Line: line, Front: fields[0], Back: fields[1]}
	if len(fields) == 3 {
		row.Notes = fields[2]
	}
	if row.Front == "" && row.Back == "" {
		res.Errors = append(res.Errors, RowError{Line: line, Err: ErrNotEnoughValues})
		return
	}
	res.Rows = append(res.Rows, row)
}

const (
	frontPrefix = "Q:"
	backPrefix  = "A:"
	notesPrefix = "N:"
)

type field int

const (
	seeking field = iota
	readingFront
	readingBack
	readingNotes
)

// ParseBlocks reads cards written as Q:, A: and N: prefixed blocks separated
// by blank lines or "---". Lines without a prefix continue the current block.
func ParseBlocks(r io.Reader) (Result, error) {
	var res Result
	scanner := bufio.NewScanner(r)

	var (
		current   Row
		block     []string
		state     = seeking
		line      int
		startLine int
	)

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(block, "\n"))
		switch state {
		case readingFront:
			current.Front = content
		case readingBack:
			current.Back = content
		case readingNotes:
			current.Notes = content
		}
		block = nil
	}
	finishCard := func() {
		flushBlock()
		if state != seeking {
			switch {
			case current.Front == "" || current.Back == "":
				res.Errors = append(res.Errors, RowError{Line: startLine, Err: ErrNotEnoughValues})
			default:
				current.Line = startLine
				res.Rows = append(res.Rows, current)
			}
		}
		current = Row{}
		state = seeking
	}

	for scanner.Scan() {
		line++
		text := scanner.Text()

		if text == "---" {
			finishCard()
			continue
		}

		var next field
		var rest string
		switch {
		case strings.HasPrefix(text, frontPrefix):
			next, rest = readingFront, text[len(frontPrefix):]
		case strings.HasPrefix(text, backPrefix):
			next, rest = readingBack, text[len(backPrefix):]
		case strings.HasPrefix(text, notesPrefix):
			next, rest = readingNotes, text[len(notesPrefix):]
		default:
			if state != seeking {
				block = append(block, text)
			}
			continue
		}

		flushBlock()
		if next == readingFront && state != seeking {
			finishCard()
		}
		if state == seeking {
			startLine = line
		}
		state = next
		block = append(block, strings.TrimPrefix(rest, " "))
	}
	finishCard()

	if err := scanner.Err(); err != nil {
		return res, err
	}
	return res, nil
}
