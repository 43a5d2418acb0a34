package inboxtui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/inboxsync/internal/inbox"
	"github.com/tOgg1/inboxsync/internal/models"
)

const (
	minListWidth = 24
	maxListWidth = 40
)

func (m *Model) View() string {
	header := m.renderHeader()
	footer := m.renderFooter()
	bodyHeight := max(0, m.height-lipgloss.Height(header)-lipgloss.Height(footer))

	listWidth := clampInt(m.width/3, minListWidth, maxListWidth)
	threadWidth := max(0, m.width-listWidth)

	list := m.renderList(listWidth, bodyHeight)
	thread := m.renderThread(threadWidth, bodyHeight)
	body := lipgloss.JoinHorizontal(lipgloss.Top, list, thread)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderHeader() string {
	right := ""
	if m.loading {
		right = "loading..."
	}
	line := joinHeader(m.title, m.filterLabel(), right, m.width)
	return m.styles.header.Width(max(0, m.width)).Render(line)
}

func (m *Model) filterLabel() string {
	var parts []string
	if m.filter.UnreadOnly {
		parts = append(parts, "unread")
	}
	switch m.filter.Archived {
	case inbox.ArchivedInclude:
		parts = append(parts, "+archived")
	case inbox.ArchivedOnly:
		parts = append(parts, "archived")
	}
	return strings.Join(parts, " ")
}

func (m *Model) renderFooter() string {
	text := "enter open  esc close  c compose  r refresh  a archived  u unread  q quit"
	switch {
	case m.focus == focusCompose:
		text = "> " + string(m.draft) + "_  (enter send, esc cancel)"
	case m.errText != "":
		return m.styles.footer.Width(max(0, m.width)).Render(m.styles.err.Render(truncate(m.errText, max(0, m.width-2))))
	case m.sending:
		text = "sending..."
	case m.status != "":
		text = m.status + "  |  " + text
	}
	return m.styles.footer.Width(max(0, m.width)).Render(truncate(text, max(0, m.width-2)))
}

func (m *Model) renderList(width, height int) string {
	inner := max(0, width-4)
	rows := make([]string, 0, len(m.list))
	if len(m.list) == 0 {
		rows = append(rows, m.styles.muted.Render("no conversations"))
	}
	for i, c := range m.list {
		rows = append(rows, m.renderRow(c, i == m.cursor, inner))
	}
	rows = visibleWindow(rows, m.cursor, max(1, height-2))
	return m.styles.pane.Width(max(0, width-2)).Height(max(0, height-2)).Render(strings.Join(rows, "\n"))
}

func (m *Model) renderRow(c models.ConversationSummary, selected bool, width int) string {
	marker := "  "
	if c.ID == m.active {
		marker = "> "
	}
	badge := ""
	if c.UnreadCount > 0 {
		badge = fmt.Sprintf(" (%d)", c.UnreadCount)
	}
	name := truncate(c.Name(), max(0, width-len(marker)-len(badge)))
	preview := truncate(c.LastMessagePreview, max(0, width-2))

	first := marker + name
	switch {
	case selected:
		first = m.styles.selected.Render(first)
	case c.UnreadCount > 0:
		first = m.styles.unread.Render(first)
	}
	if badge != "" {
		first += m.styles.unread.Render(badge)
	}
	return first + "\n  " + m.styles.muted.Render(preview)
}

func (m *Model) renderThread(width, height int) string {
	inner := max(0, width-4)
	var lines []string
	if m.active == "" {
		lines = append(lines, m.styles.muted.Render("select a conversation"))
	} else {
		lines = append(lines, m.styles.selected.Render(truncate(m.activeName(), inner)), "")
		for _, msg := range m.msgs {
			lines = append(lines, m.renderMessage(msg, inner))
		}
	}
	lines = tail(lines, max(1, height-2))
	return m.styles.pane.Width(max(0, width-2)).Height(max(0, height-2)).Render(strings.Join(lines, "\n"))
}

func (m *Model) activeName() string {
	for _, c := range m.list {
		if c.ID == m.active {
			return c.Name()
		}
	}
	return m.active
}

func (m *Model) renderMessage(msg models.Message, width int) string {
	stamp := msg.CreatedAt.Local().Format("15:04")
	if time.Since(msg.CreatedAt) > 24*time.Hour {
		stamp = msg.CreatedAt.Local().Format("Jan 02 15:04")
	}
	text := msg.Preview()
	style := m.styles.inbound
	prefix := "<"
	if msg.Direction == models.DirectionOutbound {
		style = m.styles.outbound
		prefix = ">"
		if msg.DeliveryStatus != "" {
			text += " [" + string(msg.DeliveryStatus) + "]"
		}
	}
	line := fmt.Sprintf("%s %s %s", m.styles.muted.Render(stamp), prefix, text)
	return style.Render(truncate(line, width))
}

func joinHeader(left, center, right string, width int) string {
	left = strings.TrimSpace(left)
	center = strings.TrimSpace(center)
	right = strings.TrimSpace(right)
	if width <= 0 {
		return left
	}

	space := width - lipgloss.Width(left) - lipgloss.Width(center) - lipgloss.Width(right) - 2
	if space < 2 {
		return truncate(left, max(0, width-2))
	}
	leftGap := space / 2
	rightGap := space - leftGap
	return left + strings.Repeat(" ", leftGap) + center + strings.Repeat(" ", rightGap) + right
}

func visibleWindow(rows []string, cursor, height int) []string {
	// Each row renders as two lines.
	perPage := max(1, height/2)
	if len(rows) <= perPage {
		return rows
	}
	start := clampInt(cursor-perPage/2, 0, len(rows)-perPage)
	return rows[start : start+perPage]
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= 3 || len(runes) <= 3 {
		return string(runes[:min(len(runes), limit)])
	}
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
