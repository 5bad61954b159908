package index

import (
	"bufio"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/ralt/debmirror/internal/models"
	"github.com/sirupsen/logrus"
)

// leadingFields are written first, in this order, when present
var leadingFields = []string{
	models.FieldPackage,
	models.FieldVersion,
	models.FieldArchitecture,
	models.FieldFilename,
	models.FieldSize,
	models.FieldMD5,
	models.FieldSHA1,
	models.FieldSHA256,
}

// Serialize writes doc in index format: one "Key: Value" line per field and
// a blank line after every stanza. Multi-line values are written as
// continuation lines so that Parse reads them back unchanged.
func Serialize(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)

	for _, rec := range doc {
		for _, key := range orderedKeys(rec) {
			writeField(bw, key, rec[key])
		}

		// Blank line between packages
		bw.WriteString("\n")
	}

	return bw.Flush()
}

func orderedKeys(rec models.PackageRecord) []string {
	keys := make([]string, 0, len(rec))
	seen := make(map[string]bool, len(leadingFields))
	for _, key := range leadingFields {
		if _, ok := rec[key]; ok {
			keys = append(keys, key)
			seen[key] = true
		}
	}

	var rest []string
	for key := range rec {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)

	return append(keys, rest...)
}

func writeField(w *bufio.Writer, key, value string) {
	lines := strings.Split(value, "\n")
	w.WriteString(key)
	w.WriteString(": ")
	w.WriteString(lines[0])
	w.WriteString("\n")
	for _, line := range lines[1:] {
		w.WriteString(" ")
		w.WriteString(line)
		w.WriteString("\n")
	}
}

// Dedupe returns the records that declare a Filename. When several records
// share a Filename (compared after path cleaning, so "./a.deb" and "a.deb"
// are the same file) the last one wins, at the position of the first, so
// that no two downloads target the same local file.
func Dedupe(doc Document) Document {
	out := make(Document, 0, len(doc))
	position := make(map[string]int)

	for _, rec := range doc {
		if rec.Filename() == "" {
			continue
		}
		filename := path.Clean(rec.Filename())
		if i, ok := position[filename]; ok {
			logrus.Debugf("Duplicate index entry for %s (%s %s replaces %s %s)",
				filename, rec.Name(), rec.Version(), out[i].Name(), out[i].Version())
			out[i] = rec
			continue
		}
		position[filename] = len(out)
		out = append(out, rec)
	}

	return out
}
