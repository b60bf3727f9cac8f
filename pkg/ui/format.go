package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/convsync"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	sentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("118"))
)

// Formatter turns messages and notices into display lines.
type Formatter struct {
	Markdown bool
	Color    bool
}

func (f Formatter) Message(user, body string) string {
	if f.Markdown {
		if rendered, err := glamour.Render(body, "dark"); err == nil {
			body = strings.Trim(rendered, "\n")
		} else {
			log.Debug().Err(err).Str("component", "ui").Msg("markdown render failed")
		}
	}
	if !f.Color {
		return fmt.Sprintf("%s: %s", user, body)
	}
	style := userStyle
	if strings.HasPrefix(user, convsync.SentPrefix) {
		style = sentStyle
	}
	return style.Render(user+":") + " " + body
}

func (f Formatter) Notice(category, detail string) string {
	line := "-- " + category
	if detail != "" {
		line += ": " + detail
	}
	if !f.Color {
		return line
	}
	if category == chat.NoticeConnected {
		return okStyle.Render(line)
	}
	return noticeStyle.Render(line)
}
