package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tether/internal/anchor"
)

// NewAnchorCommand creates the anchor command group.
func NewAnchorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "Publish and fetch content-addressed snapshots",
		Long: `Store full snapshots in the configured content anchor (a local bbolt
file or an S3 bucket) under their content id, and fetch them back.`,
	}

	cmd.AddCommand(newAnchorPutCommand(rootOpts))
	cmd.AddCommand(newAnchorGetCommand(rootOpts))

	return cmd
}

type receiptResult anchor.Receipt

func (r receiptResult) Text() string {
	return fmt.Sprintf("%s\n%s (%d bytes)", r.CID, r.URL, r.Size)
}

func newAnchorPutCommand(rootOpts *RootOptions) *cobra.Command {
	var pw string

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Publish a snapshot and print its content id",
		Long: `Publish the full state as a snapshot. With a password (--password or
$TETHER_PASSWORD) the snapshot is encrypted before it leaves the device.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			receipt, err := a.orch.PublishSnapshot(cmd.Context(), password(pw))
			if err != nil {
				return WrapExitError(ExitFailure, "publish failed", err)
			}
			return a.out.Success(receiptResult(receipt))
		},
	}

	cmd.Flags().StringVar(&pw, "password", "", "encryption password (default $TETHER_PASSWORD)")

	return cmd
}

type anchorGetOptions struct {
	*RootOptions
	Password string
	Output   string
	Restore  bool
}

func newAnchorGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &anchorGetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <cid>",
		Short: "Fetch a snapshot, or restore it with --restore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnchorGet(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Password, "password", "", "decryption password for --restore (default $TETHER_PASSWORD)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the snapshot to a file (default stdout)")
	cmd.Flags().BoolVar(&opts.Restore, "restore", false, "import the snapshot instead of printing it")
	cmd.MarkFlagsMutuallyExclusive("output", "restore")

	return cmd
}

func runAnchorGet(opts *anchorGetOptions, cid string, cmd *cobra.Command) error {
	if !anchor.ValidCID(cid) {
		return NewExitError(ExitCommandError, fmt.Sprintf("malformed content id %q", cid))
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Restore {
		result, err := a.orch.RestoreSnapshot(cmd.Context(), cid, password(opts.Password))
		if err != nil {
			return WrapExitError(ExitFailure, "fetch failed", err)
		}
		if !result.Success {
			return &ExitError{
				Code:    ExitFailure,
				Message: "restore failed: " + strings.Join(result.Errors, "; "),
				Details: result.Errors,
			}
		}
		return a.out.Success(importResult(result))
	}

	data, err := a.orch.FetchSnapshot(cmd.Context(), cid)
	if err != nil {
		return WrapExitError(ExitFailure, "fetch failed", err)
	}
	if opts.Output == "" {
		return writeOutput(cmd, "", append(data, '\n'))
	}
	if err := writeOutput(cmd, opts.Output, data); err != nil {
		return WrapExitError(ExitCommandError, "failed to write snapshot", err)
	}
	return a.out.Success(fmt.Sprintf("Wrote %d bytes to %s", len(data), opts.Output))
}
