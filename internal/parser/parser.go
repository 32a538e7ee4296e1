package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	frontPrefix    = "F:"
	backPrefix     = "B:"
	categoryPrefix = "C:"
	separator      = "---"

	// MaxLineSize is the longest line a deck file may contain.
	MaxLineSize = 1 << 20
)

// ErrUnreadable marks a deck that could not be read to the end. Entries
// returned alongside it are not the whole deck.
var ErrUnreadable = errors.New("deck file unreadable")

type field int

const (
	none field = iota
	front
	back
	category
)

// Entry is one vocabulary item read from a deck file.
type Entry struct {
	Front    string
	Back     string
	Category string
	Line     int // line on which the entry's front text starts
}

// MissingBackError reports an entry that has a front but no translation.
type MissingBackError struct {
	Front string
	Line  int
}

func (e *MissingBackError) Error() string {
	return fmt.Sprintf("line %d: entry %q has no translation", e.Line, e.Front)
}

// ParseFile reads a deck file from the given path.
func ParseFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads entries written as
//
//	F: la estación
//	B: the station
//	C: transport
//
// Fields may span several lines; a new F: line or a "---" separator ends
// the current entry. Entries without a translation are dropped and
// reported through the returned error, alongside the entries that parsed.
func Parse(r io.Reader) ([]Entry, error) {
	p := &deckParser{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		p.line(scanner.Text(), lineNo)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: line %d: %w", ErrUnreadable, lineNo+1, err)
	}
	p.flushEntry()

	if len(p.problems) > 0 {
		return p.entries, errors.Join(p.problems...)
	}
	return p.entries, nil
}

type deckParser struct {
	entries  []Entry
	problems []error

	cur     Entry
	field   field
	pending []string
}

func (p *deckParser) line(text string, lineNo int) {
	if strings.TrimSpace(text) == separator {
		p.flushEntry()
		return
	}

	if f, rest, ok := splitPrefix(text); ok {
		p.flushField()
		if f == front && p.cur.Front != "" {
			p.flushEntry()
		}
		if f == front {
			p.cur.Line = lineNo
		}
		p.field = f
		p.pending = append(p.pending, rest)
		return
	}

	if p.field != none {
		p.pending = append(p.pending, text)
	}
}

func splitPrefix(text string) (field, string, bool) {
	for _, candidate := range []struct {
		prefix string
		f      field
	}{
		{frontPrefix, front},
		{backPrefix, back},
		{categoryPrefix, category},
	} {
		if rest, ok := strings.CutPrefix(text, candidate.prefix); ok {
			return candidate.f, strings.TrimPrefix(rest, " "), true
		}
	}
	return none, "", false
}

func (p *deckParser) flushField() {
	if len(p.pending) > 0 {
		content := strings.TrimRight(strings.Join(p.pending, "\n"), "\n ")
		switch p.field {
		case front:
			p.cur.Front = content
		case back:
			p.cur.Back = content
		case category:
			p.cur.Category = content
		}
	}
	p.pending = nil
}

func (p *deckParser) flushEntry() {
	p.flushField()
	switch {
	case p.cur.Front == "":
	case p.cur.Back == "":
		p.problems = append(p.problems, &MissingBackError{Front: p.cur.Front, Line: p.cur.Line})
	default:
		p.entries = append(p.entries, p.cur)
	}
	p.cur = Entry{}
	p.field = none
}
