// Package theme holds the palette and shared lipgloss styles of the
// terminal views.
package theme

import (
	"os"
	"runtime"

	"github.com/charmbracelet/lipgloss"
)

// Colors is the palette shared by every view.
type Colors struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Accent     lipgloss.Color
	Background lipgloss.Color
	Muted      lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
}

// Badge selects a badge color.
type Badge int

const (
	BadgeInfo Badge = iota
	BadgeSuccess
	BadgeWarning
	BadgeError
	BadgeMuted
)

// Theme bundles colors and icons. The zero value is not usable; build one
// with New or Default.
type Theme struct {
	colors Colors
	icons  map[string]string
	ascii  bool
}

// Option configures a Theme.
type Option func(*Theme)

// WithColors replaces the palette.
func WithColors(c Colors) Option {
	return func(t *Theme) { t.colors = c }
}

// WithASCII forces the plain icon set.
func WithASCII(ascii bool) Option {
	return func(t *Theme) { t.ascii = ascii }
}

// New builds a Theme. Plain icons are used over SSH and on Windows unless
// an option says otherwise.
func New(opts ...Option) Theme {
	t := Theme{
		colors: Colors{
			Primary:    lipgloss.Color("#3a6b4a"),
			Secondary:  lipgloss.Color("#5a8c6a"),
			Accent:     lipgloss.Color("#8fc279"),
			Background: lipgloss.Color("#f8f8f8"),
			Muted:      lipgloss.Color("#9ba8c0"),
			Success:    lipgloss.Color("#5dc796"),
			Warning:    lipgloss.Color("#e0a43a"),
			Error:      lipgloss.Color("#f04c56"),
		},
		ascii: limitedTerminal(),
	}
	for _, opt := range opts {
		opt(&t)
	}
	t.icons = emojiIcons
	if t.ascii {
		t.icons = asciiIcons
	}
	return t
}

// Default returns New().
func Default() Theme {
	return New()
}

func (t Theme) Colors() Colors {
	return t.colors
}

// Icon returns the icon for name, or "" when there is none.
func (t Theme) Icon(name string) string {
	return t.icons[name]
}

func (t Theme) HeaderStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Background(t.colors.Primary).
		Foreground(t.colors.Background).
		Align(lipgloss.Center)
}

func (t Theme) StatusBarStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Background(t.colors.Secondary).
		Foreground(t.colors.Background).
		Padding(0, 1)
}

func (t Theme) PanelStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.colors.Accent).
		Padding(0, 1)
}

// BadgeStyle returns the inline label style for kind.
func (t Theme) BadgeStyle(kind Badge) lipgloss.Style {
	base := lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(t.colors.Background)
	switch kind {
	case BadgeSuccess:
		return base.Background(t.colors.Success)
	case BadgeWarning:
		return base.Background(t.colors.Warning)
	case BadgeError:
		return base.Background(t.colors.Error)
	case BadgeMuted:
		return base.Background(t.colors.Muted)
	}
	return base.Background(t.colors.Accent)
}

// TextStyle colors plain text like the badge of the same kind.
func (t Theme) TextStyle(kind Badge) lipgloss.Style {
	switch kind {
	case BadgeSuccess:
		return lipgloss.NewStyle().Foreground(t.colors.Success)
	case BadgeWarning:
		return lipgloss.NewStyle().Foreground(t.colors.Warning)
	case BadgeError:
		return lipgloss.NewStyle().Foreground(t.colors.Error)
	case BadgeMuted:
		return lipgloss.NewStyle().Foreground(t.colors.Muted)
	}
	return lipgloss.NewStyle().Foreground(t.colors.Accent)
}

// ProgressGradient returns the two gradient stops of progress bars.
func (t Theme) ProgressGradient() (string, string) {
	return string(t.colors.Primary), string(t.colors.Accent)
}

func limitedTerminal() bool {
	if os.Getenv("SSH_CLIENT") != "" || os.Getenv("SSH_TTY") != "" || os.Getenv("SSH_CONNECTION") != "" {
		return true
	}
	return runtime.GOOS == "windows"
}

var emojiIcons = map[string]string{
	"movie":     "🎬",
	"episode":   "📺",
	"resolved":  "✅",
	"ambiguous": "🤔",
	"no-match":  "❓",
	"failed":    "❌",
	"skipped":   "⏭",
	"stats":     "📊",
}

var asciiIcons = map[string]string{
	"movie":     "[M]",
	"episode":   "[E]",
	"resolved":  "[v]",
	"ambiguous": "[~]",
	"no-match":  "[?]",
	"failed":    "[!]",
	"skipped":   "[-]",
	"stats":     "[*]",
}
