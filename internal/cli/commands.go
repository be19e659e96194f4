package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/local-scope/localscope/internal/domain"
)

func newWhoAmICommand(opts *RootOptions, factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the resolved identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, factory, nil)
		},
	}
}

func newRouteCommand(opts *RootOptions, factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "route <location>",
		Short: "Navigate to a location and show where the guard sends you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, factory, func(ctx context.Context, shell *Shell) error {
				return shell.Navigate(ctx, args[0])
			})
		},
	}
}

func newLoginCommand(opts *RootOptions, factory Factory) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, factory, func(ctx context.Context, shell *Shell) error {
				return shell.Resolver.Login(ctx, email, password)
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newSignupCommand(opts *RootOptions, factory Factory) *cobra.Command {
	var email, password, name, role string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.Valid() {
				return WrapExitError(ExitCommandError, "role must be customer, business_user or admin", nil)
			}
			return run(cmd, opts, factory, func(ctx context.Context, shell *Shell) error {
				_, err := shell.Resolver.Signup(ctx, email, password, name, r)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVarP(&name, "name", "n", "", "full name")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleCustomer), "customer, business_user or admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newVerifyCommand(opts *RootOptions, factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Confirm an email address with the token from the confirmation link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, factory, func(ctx context.Context, shell *Shell) error {
				return shell.VerifyEmail(ctx, args[0])
			})
		},
	}
}

func newLogoutCommand(opts *RootOptions, factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, factory, func(ctx context.Context, shell *Shell) error {
				return shell.Resolver.Logout(ctx)
			})
		},
	}
}

func newUpdateProfileCommand(opts *RootOptions, factory Factory) *cobra.Command {
	var name, phone string
	cmd := &cobra.Command{
		Use:   "update-profile",
		Short: "Change the name or phone on your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var update domain.ProfileUpdate
			if cmd.Flags().Changed("name") {
				update.FullName = &name
			}
			if cmd.Flags().Changed("phone") {
				update.Phone = &phone
			}
			if update.Empty() {
				return WrapExitError(ExitCommandError, "nothing to update: pass --name or --phone", nil)
			}
			return run(cmd, opts, factory, func(ctx context.Context, shell *Shell) error {
				return shell.Resolver.UpdateProfile(ctx, update)
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "new full name")
	cmd.Flags().StringVar(&phone, "phone", "", "new phone number")
	return cmd
}

func newUpgradeCommand(opts *RootOptions, factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Move to the pro subscription tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, factory, func(ctx context.Context, shell *Shell) error {
				return shell.Resolver.UpgradeSubscription(ctx)
			})
		},
	}
}

func newRefreshCommand(opts *RootOptions, factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the profile again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, factory, func(ctx context.Context, shell *Shell) error {
				return shell.Resolver.RefreshIdentity(ctx)
			})
		},
	}
}
