package cli

import (
	"context"
	"eventmaster/auth"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the lazily built App shared by all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	User    string
	Token   string

	newApp func(ctx context.Context) (*App, error)
	app    *App
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand builds the CLI. newApp is called once, by the first command that needs storage.
func NewRootCommand(newApp func(ctx context.Context) (*App, error)) *cobra.Command {
	opts := &RootOptions{newApp: newApp}

	cmd := &cobra.Command{
		Use:   "eventmaster",
		Short: "EventMaster - local-first events",
		Long:  "Plan events, chat about them and keep every device in sync, offline first.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !lo.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.User, "user", "", "act as this user id instead of the signed-in one")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "session token issued by 'session login'")

	cmd.AddCommand(NewEventCommand(opts))
	cmd.AddCommand(NewChatCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))

	return cmd
}

// App returns the shared application, building it on first use.
func (o *RootOptions) App(ctx context.Context) (*App, error) {
	if o.app != nil {
		return o.app, nil
	}
	app, err := o.newApp(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start", err)
	}
	o.app = app
	return app, nil
}

// Context carries the --user and --token identities to the namespace resolver.
func (o *RootOptions) Context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.User != "" {
		ctx = auth.WithUser(ctx, auth.User{ID: o.User})
	}
	if o.Token != "" {
		ctx = auth.WithToken(ctx, o.Token)
	}
	return ctx
}

func (o *RootOptions) Formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) close() error {
	if o.app == nil {
		return nil
	}
	err := o.app.Close()
	o.app = nil
	return err
}
