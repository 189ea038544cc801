package cli

import (
	"eventmaster/auth"
	"eventmaster/domain"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewSessionCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Sign in and out; the signed-in user selects the namespace",
	}
	cmd.AddCommand(newSessionLoginCommand(opts))
	cmd.AddCommand(newSessionLogoutCommand(opts))
	cmd.AddCommand(newSessionWhoAmICommand(opts))
	return cmd
}

type loginResult struct {
	User  auth.User `json:"user"`
	Token string    `json:"token"`
}

func newSessionLoginCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in locally with an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			token, user, err := app.Sessions.Login(ctx, args[0])
			if err != nil {
				return out.Fail("login failed", err)
			}
			return out.Render(loginResult{User: user, Token: token.String()}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Signed in as %s (namespace %s)\n", user.Email, user.ID)
				out.VerboseLog("token: %s", token)
			})
		},
	}
}

func newSessionLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out; anonymous data stays separate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			if err = app.Sessions.Logout(ctx); err != nil {
				return out.Fail("logout failed", err)
			}
			return out.Success("Signed out", nil)
		},
	}
}

type whoAmIResult struct {
	User      *auth.User       `json:"user"`
	Namespace domain.Namespace `json:"namespace"`
}

func newSessionWhoAmICommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user and namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			user, ns := app.Sessions.WhoAmI(ctx)
			return out.Render(whoAmIResult{User: user, Namespace: ns}, func(w io.Writer) {
				if user == nil {
					fmt.Fprintf(w, "Anonymous (namespace %s)\n", ns)
					return
				}
				fmt.Fprintf(w, "%s <%s> (namespace %s)\n", user.Name, user.Email, ns)
			})
		},
	}
}
