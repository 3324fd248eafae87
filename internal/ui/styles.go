package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

type palette struct {
	Bg, Border, Text, TextDim lipgloss.Color
	Accent, Cyan, Green       lipgloss.Color
	Yellow, Red               lipgloss.Color
}

// Dark Theme - Tokyo Night
var darkColors = palette{
	Bg:      lipgloss.Color("#1a1b26"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Cyan:    lipgloss.Color("#7dcfff"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Red:     lipgloss.Color("#f7768e"),
}

// Light Theme - Tokyo Night Light variant
var lightColors = palette{
	Bg:      lipgloss.Color("#d5d6db"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Cyan:    lipgloss.Color("#166775"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Red:     lipgloss.Color("#8c4351"),
}

var (
	themeMu      sync.RWMutex
	currentTheme = ThemeDark
	colors       = darkColors
)

// Styles, rebuilt by InitTheme
var (
	TitleStyle        lipgloss.Style
	SectionTitleStyle lipgloss.Style
	ItemStyle         lipgloss.Style
	SelectedItemStyle lipgloss.Style
	DimStyle          lipgloss.Style
	StatusStyle       lipgloss.Style
	ErrorStyle        lipgloss.Style
	FilterPromptStyle lipgloss.Style
	SeparatorStyle    lipgloss.Style

	BadgeSessionOut     lipgloss.Style
	BadgeSessionIn      lipgloss.Style
	BadgeServiceOffline lipgloss.Style
	BadgeServiceOnline  lipgloss.Style
)

// InitTheme sets the active palette. Unknown names select dark.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	if theme == string(ThemeLight) {
		currentTheme, colors = ThemeLight, lightColors
	} else {
		currentTheme, colors = ThemeDark, darkColors
	}
	initStyles()
}

// GetCurrentTheme returns the active theme
func GetCurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

func init() {
	InitTheme(string(ThemeDark))
}

func initStyles() {
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colors.Accent)
	SectionTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colors.Cyan).PaddingLeft(1)
	ItemStyle = lipgloss.NewStyle().Foreground(colors.Text).PaddingLeft(2)
	SelectedItemStyle = lipgloss.NewStyle().
		Foreground(colors.Bg).
		Background(colors.Accent).
		PaddingLeft(2)
	DimStyle = lipgloss.NewStyle().Foreground(colors.TextDim)
	StatusStyle = lipgloss.NewStyle().Foreground(colors.TextDim).Italic(true)
	ErrorStyle = lipgloss.NewStyle().Foreground(colors.Red)
	FilterPromptStyle = lipgloss.NewStyle().Foreground(colors.Yellow).Bold(true)
	SeparatorStyle = lipgloss.NewStyle().Foreground(colors.Border)

	badge := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	BadgeSessionOut = badge.Foreground(colors.Bg).Background(colors.Accent)
	BadgeSessionIn = badge.Foreground(colors.Bg).Background(colors.Yellow)
	BadgeServiceOffline = badge.Foreground(colors.Bg).Background(colors.Red)
	BadgeServiceOnline = badge.Foreground(colors.Bg).Background(colors.Green)
}
