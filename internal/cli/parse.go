package cli

import (
	"os"

	"github.com/ralt/debmirror/internal/archive"
	"github.com/ralt/debmirror/internal/index"
	"github.com/ralt/debmirror/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewParseCmd creates the parse command
func NewParseCmd() *cobra.Command {
	var parser index.Parser
	var dedupe bool

	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse a package index and print its normalised stanzas",
		Long: `Parses a Packages index, decompressing it first when its name ends
in .bz2, .gz, .xz or .zst, and prints every stanza with its fields in a
stable order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return &models.MirrorError{Type: models.ErrNotFound, Package: args[0], Err: err}
			}
			defer f.Close()

			r, err := archive.DetectCompression(args[0]).NewReader(f)
			if err != nil {
				return &models.MirrorError{Type: models.ErrDecompress, Package: args[0], Err: err}
			}
			defer r.Close()

			doc, err := parser.Parse(r)
			if err != nil {
				return err
			}
			if dedupe {
				doc = index.Dedupe(doc)
			}
			logrus.Debugf("Parsed %d stanzas from %s", len(doc), args[0])

			return index.Serialize(cmd.OutOrStdout(), doc)
		},
	}

	cmd.Flags().BoolVar(&parser.Continuations, "continuations", false, "Join indented lines onto the previous field")
	cmd.Flags().BoolVar(&parser.DropUnterminated, "drop-unterminated", false, "Discard a final stanza not followed by a blank line")
	cmd.Flags().BoolVar(&dedupe, "dedupe", false, "Keep one stanza per Filename and drop stanzas without one")

	return cmd
}
