package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/inboxsync/internal/inbox"
	"github.com/tOgg1/inboxsync/internal/models"
)

var (
	listUnread   bool
	listArchived string
	listTag      string
	listQuery    string
	listJSON     bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	flags := listCmd.Flags()
	flags.BoolVar(&listUnread, "unread", false, "only conversations with unread messages")
	flags.StringVar(&listArchived, "archived", "exclude", "archived conversations: exclude, include or only")
	flags.StringVar(&listTag, "tag", "", "only conversations carrying this tag")
	flags.StringVar(&listQuery, "query", "", "match id, name or preview")
	flags.BoolVar(&listJSON, "json", false, "output JSON")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Fetch and print the conversation list once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := inbox.Filter{UnreadOnly: listUnread, Tag: listTag, Query: listQuery}
		switch listArchived {
		case "exclude", "":
			filter.Archived = inbox.ArchivedExclude
		case "include":
			filter.Archived = inbox.ArchivedInclude
		case "only":
			filter.Archived = inbox.ArchivedOnly
		default:
			return fmt.Errorf("invalid --archived %q (want exclude, include or only)", listArchived)
		}

		client, err := newGatewayClient(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		engine, err := inbox.NewEngine(engineConfig(GetConfig()), client, nil)
		if err != nil {
			return err
		}
		return listConversations(cmd.Context(), engine, cmd.OutOrStdout(), filter, listJSON)
	},
}

type conversationLister interface {
	Refresh(ctx context.Context) error
	Conversations(filter inbox.Filter) []models.ConversationSummary
	AggregateUnread() int
}

func listConversations(ctx context.Context, engine conversationLister, out io.Writer, filter inbox.Filter, asJSON bool) error {
	if err := engine.Refresh(ctx); err != nil {
		return err
	}
	convs := engine.Conversations(filter)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Unread        int                          `json:"unread"`
			Conversations []models.ConversationSummary `json:"conversations"`
		}{engine.AggregateUnread(), convs})
	}

	rows := make([][]string, 0, len(convs))
	for _, c := range convs {
		rows = append(rows, []string{
			c.ID,
			truncateCell(c.Name(), 24),
			strconv.Itoa(c.UnreadCount),
			formatAge(c.LastMessageAt),
			formatYesNo(c.IsArchived),
			truncateCell(c.LastMessagePreview, 48),
		})
	}
	if err := writeTable(out, []string{"ID", "NAME", "UNREAD", "LAST", "ARCHIVED", "PREVIEW"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%d unread\n", engine.AggregateUnread())
	return err
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func truncateCell(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
