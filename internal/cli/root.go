package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/local-scope/localscope/internal/navigation"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	// At is the location the shell opens at.
	At      string
	Timeout time.Duration
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the localscope command tree. factory builds the
// shell each subcommand runs against.
func NewRootCommand(factory Factory) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "localscope",
		Short: "LocalScope session shell",
		Long: `Sign in to a LocalScope backend and see where the app would take you.

Every command resolves the current session and profile, runs the role-based
navigation guard at --at and prints the resulting identity and location.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.At, "at", navigation.RouteHome, "location the shell opens at")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "overall command timeout")

	cmd.AddCommand(newWhoAmICommand(opts, factory))
	cmd.AddCommand(newRouteCommand(opts, factory))
	cmd.AddCommand(newLoginCommand(opts, factory))
	cmd.AddCommand(newSignupCommand(opts, factory))
	cmd.AddCommand(newVerifyCommand(opts, factory))
	cmd.AddCommand(newLogoutCommand(opts, factory))
	cmd.AddCommand(newUpdateProfileCommand(opts, factory))
	cmd.AddCommand(newUpgradeCommand(opts, factory))
	cmd.AddCommand(newRefreshCommand(opts, factory))

	return cmd
}

// action is the part of a command that runs between opening and reporting.
type action func(ctx context.Context, shell *Shell) error

// run opens a shell, performs act and prints the report.
func run(cmd *cobra.Command, opts *RootOptions, factory Factory, act action) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	shell, err := factory(ctx, opts)
	if err != nil {
		code, message := describe(err)
		return formatter.Failure(GetExitCode(err), code, message, err)
	}
	defer shell.Close()

	if err := shell.Open(ctx, opts.At); err != nil {
		code, message := describe(err)
		return formatter.Failure(ExitCommandError, code, message, err)
	}
	if act != nil {
		if err := act(ctx, shell); err != nil {
			code, message := describe(err)
			return formatter.Failure(ExitFailure, code, message, err)
		}
	}

	report, err := shell.Report(ctx)
	if err != nil {
		code, message := describe(err)
		return formatter.Failure(ExitCommandError, code, message, err)
	}
	return formatter.Success(report)
}
