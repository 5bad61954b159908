// Package index reads and writes APT style package indexes: blank line
// separated stanzas of "Key: Value" lines.
package index

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ralt/debmirror/internal/models"
)

// maxLineSize bounds a single index line. Description fields in real
// indexes can run to tens of kilobytes.
const maxLineSize = 1024 * 1024

// Document is the ordered list of stanzas of one index, in file order
type Document []models.PackageRecord

// Parser converts index text into a Document.
type Parser struct {
	// DropUnterminated discards a final stanza that is not followed by a
	// blank line. By default such a stanza is kept when it has any field.
	DropUnterminated bool

	// Continuations joins lines starting with a space or tab onto the
	// previous field, as Release checksum lists and multi-line
	// descriptions need. Otherwise such lines are read like any other.
	Continuations bool
}

// Parse parses r with the default parser
func Parse(r io.Reader) (Document, error) {
	return (&Parser{}).Parse(r)
}

// ParseFile parses the index stored at path with the default parser
func ParseFile(path string) (Document, error) {
	return (&Parser{}).ParseFile(path)
}

// ParseFile opens path and parses it. A missing or unreadable file is
// reported as ErrNotFound.
func (p *Parser) ParseFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.MirrorError{
			Type:    models.ErrNotFound,
			Package: path,
			Err:     fmt.Errorf("cannot open index: %w", err),
		}
	}
	defer f.Close()

	return p.Parse(f)
}

// Parse reads r line by line and folds the lines into stanzas.
//
// A line of at most one character ends the current stanza, which is emitted
// even when empty. Other lines are split on their first colon; lines without
// a colon or with an empty key or value are ignored. With Continuations set,
// lines starting with a space or tab continue the previous field instead.
func (p *Parser) Parse(r io.Reader) (Document, error) {
	doc := Document{}
	current := models.PackageRecord{}
	var lastKey string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()

		// Blank line = end of stanza
		if utf8.RuneCountInString(line) <= 1 {
			doc = append(doc, current)
			current = models.PackageRecord{}
			lastKey = ""
			continue
		}

		if p.Continuations && (line[0] == ' ' || line[0] == '\t') {
			appendContinuation(current, lastKey, line)
			continue
		}

		key, value, ok := splitField(line)
		if !ok {
			lastKey = ""
			continue
		}
		if value == "" {
			// "SHA256:" heads a list made of continuation lines
			if p.Continuations {
				lastKey = key
			}
			continue
		}
		lastKey = key
		current[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, &models.MirrorError{
			Type: models.ErrIOFailure,
			Err:  fmt.Errorf("failed to read index: %w", err),
		}
	}

	if len(current) > 0 && !p.DropUnterminated {
		doc = append(doc, current)
	}

	return doc, nil
}

// splitField splits "Key: Value" on the first colon and trims both parts.
// ok is false when there is no colon or the key is empty.
func splitField(line string) (key, value string, ok bool) {
	key, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func appendContinuation(rec models.PackageRecord, key, line string) {
	if key == "" {
		return
	}
	text := strings.TrimSpace(line)
	if text == "" {
		return
	}
	if prev, ok := rec[key]; ok {
		rec[key] = prev + "\n" + text
		return
	}
	rec[key] = text
}
