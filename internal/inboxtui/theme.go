package inboxtui

import "github.com/charmbracelet/lipgloss"

// Palette holds the color tokens of one theme.
type Palette struct {
	Name       string
	Foreground string
	Muted      string
	Accent     string
	Border     string
	Header     string
	Footer     string
	Selected   string
	Unread     string
	Inbound    string
	Outbound   string
	Error      string
}

var defaultPalette = Palette{
	Name:       "default",
	Foreground: "252",
	Muted:      "245",
	Accent:     "75",
	Border:     "240",
	Header:     "111",
	Footer:     "110",
	Selected:   "75",
	Unread:     "214",
	Inbound:    "147",
	Outbound:   "81",
	Error:      "203",
}

var highContrastPalette = Palette{
	Name:       "high-contrast",
	Foreground: "231",
	Muted:      "250",
	Accent:     "51",
	Border:     "231",
	Header:     "117",
	Footer:     "159",
	Selected:   "51",
	Unread:     "226",
	Inbound:    "225",
	Outbound:   "87",
	Error:      "196",
}

// Palettes lists available themes by name.
var Palettes = map[string]Palette{
	"default":       defaultPalette,
	"high-contrast": highContrastPalette,
}

type styles struct {
	header   lipgloss.Style
	footer   lipgloss.Style
	pane     lipgloss.Style
	muted    lipgloss.Style
	selected lipgloss.Style
	unread   lipgloss.Style
	inbound  lipgloss.Style
	outbound lipgloss.Style
	err      lipgloss.Style
}

func newStyles(p Palette) styles {
	return styles{
		header: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.Foreground)).
			Background(lipgloss.Color(p.Header)).
			Bold(true).
			Padding(0, 1),
		footer: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.Foreground)).
			Background(lipgloss.Color(p.Footer)).
			Padding(0, 1),
		pane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.Border)),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color(p.Selected)).Bold(true),
		unread:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.Unread)).Bold(true),
		inbound:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Inbound)),
		outbound: lipgloss.NewStyle().Foreground(lipgloss.Color(p.Outbound)),
		err:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)),
	}
}
