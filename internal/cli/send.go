package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/inboxsync/internal/gateway"
)

var sendMarkRead bool

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendMarkRead, "mark-read", false, "also mark the conversation read on the server")
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text...>",
	Short: "Send a message to a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGatewayClient(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		return sendMessage(cmd.Context(), client, cmd.OutOrStdout(), args[0], strings.Join(args[1:], " "), sendMarkRead)
	},
}

func sendMessage(ctx context.Context, gw gateway.Gateway, out io.Writer, conversationID, text string, markRead bool) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	req := gateway.SendRequest{Text: text}
	if err := req.Validate(); err != nil {
		return err
	}
	if err := gw.Send(ctx, conversationID, req); err != nil {
		return fmt.Errorf("send to %s: %w", conversationID, err)
	}
	if markRead {
		if err := gw.MarkRead(ctx, conversationID); err != nil {
			return fmt.Errorf("mark %s read: %w", conversationID, err)
		}
	}
	_, err := fmt.Fprintf(out, "sent to %s\n", conversationID)
	return err
}
