package cli

import (
	"eventmaster/domain"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func NewChatCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Read and write an event's chat",
	}
	cmd.AddCommand(newChatSendCommand(opts))
	cmd.AddCommand(newChatListCommand(opts))
	return cmd
}

func newChatSendCommand(opts *RootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "send <event-id> <text...>",
		Short: "Append a message to an event's chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			message, err := app.Chats.AppendChatMessage(ctx, args[0], domain.ChatDraft{
				Text:   strings.Join(args[1:], " "),
				UserID: userID,
			})
			if err != nil {
				return out.Fail("message not sent", err)
			}
			return out.Render(message, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Sent: %s\n", message.Text)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "as", "", "author shown on the message (defaults to the namespace)")
	return cmd
}

func newChatListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <event-id>",
		Short: "Show an event's messages, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			messages := app.Chats.GetChatMessages(ctx, args[0])
			return out.Render(messages, func(w io.Writer) {
				if len(messages) == 0 {
					fmt.Fprintln(w, "No messages.")
					return
				}
				for _, m := range messages {
					fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.In(app.Agenda.Location()).Format("2006-01-02 15:04"), m.UserID, m.Text)
				}
			})
		},
	}
}
