package cli

import (
	"fmt"

	"github.com/ralt/debmirror/internal/models"
	"github.com/ralt/debmirror/internal/verify"
	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	var expected models.ExpectedDigests
	var strict bool

	cmd := &cobra.Command{
		Use:   "verify FILE",
		Short: "Check a file against expected checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := verify.Lenient
			if strict {
				policy = verify.Strict
			}

			actual, err := verify.ComputeDigests(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "MD5sum: %s\n", actual.MD5)
			fmt.Fprintf(out, "SHA1: %s\n", actual.SHA1)
			fmt.Fprintf(out, "SHA256: %s\n", actual.SHA256)

			if !verify.Matches(actual, expected, policy) {
				fmt.Fprintf(out, "%s: MISMATCH (%s)\n", args[0], policy)
				return fmt.Errorf("%s does not match the expected checksums", args[0])
			}
			fmt.Fprintf(out, "%s: OK (%s)\n", args[0], policy)
			return nil
		},
	}

	cmd.Flags().StringVar(&expected.MD5, "md5", "", "Expected MD5 digest")
	cmd.Flags().StringVar(&expected.SHA1, "sha1", "", "Expected SHA1 digest")
	cmd.Flags().StringVar(&expected.SHA256, "sha256", "", "Expected SHA256 digest")
	cmd.Flags().BoolVar(&strict, "strict", false, "Require all three digests to match")

	return cmd
}
