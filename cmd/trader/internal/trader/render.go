package trader

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/shubham-shewale/stock-rooms/pkg/models"
	"github.com/shubham-shewale/stock-rooms/pkg/protocol"
	"github.com/shubham-shewale/stock-rooms/pkg/syncagent"
)

var (
	upColor      = lipgloss.Color("#10B981")
	downColor    = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	primaryColor = lipgloss.Color("#7C3AED")

	upStyle      = lipgloss.NewStyle().Foreground(upColor)
	downStyle    = lipgloss.NewStyle().Foreground(downColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	badgeStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	timeStyle    = mutedStyle.Width(10)
	tradeSideCol = lipgloss.NewStyle().Width(5)
)

// Render formats one agent event as a single terminal line. Unknown events
// render as "".
func Render(e syncagent.Event) string {
	switch p := e.Payload.(type) {
	case syncagent.State:
		style := mutedStyle
		if p == syncagent.FallbackSimulated {
			style = downStyle
		} else if p == syncagent.Connected {
			style = upStyle
		}
		return badgeStyle.Inherit(style).Render(strings.ToUpper(p.String()))

	case *protocol.Identity:
		return headerStyle.Render(fmt.Sprintf("%s (%s)", p.Name, p.SessionID)) +
			" balance " + p.Wallet.Balance.StringFixed(2)

	case *protocol.PriceSnapshot:
		return headerStyle.Render(p.Instrument) +
			fmt.Sprintf(" %s  %s", p.Price.StringFixed(2), mutedStyle.Render(fmt.Sprintf("%d points", len(p.History))))

	case *protocol.PriceUpdated:
		style, arrow := upStyle, "▲"
		if p.Price.LessThan(p.PreviousPrice) {
			style, arrow = downStyle, "▼"
		}
		return stamp(p.Timestamp) + headerStyle.Render(p.Instrument) + " " +
			style.Render(fmt.Sprintf("%s %s %+d (%+.2f%%)", arrow, p.Price.StringFixed(2), p.Delta, p.PercentChange))

	case *protocol.OrderResult:
		line := stamp(p.Trade.Timestamp) + renderTrade(p.Trade)
		if !p.Trade.Executed() {
			return line + " " + downStyle.Render("rejected: "+p.Reason)
		}
		return line + " " + mutedStyle.Render("balance "+p.Wallet.Balance.StringFixed(2))

	case *protocol.LiveTrade:
		return stamp(p.Trade.Timestamp) + mutedStyle.Render("live ") + renderTrade(p.Trade) + " " + mutedStyle.Render("by "+p.Trade.User)

	case *protocol.RoomNotice:
		return stamp(p.Timestamp) + mutedStyle.Italic(true).Render(p.Message)
	}
	return ""
}

// RenderHistory lays out past trades under a header, one per line.
func RenderHistory(trades []models.Trade) string {
	lines := []string{headerStyle.Render("Recent transactions")}
	for _, t := range trades {
		line := stamp(t.Timestamp) + renderTrade(t)
		if !t.Executed() {
			line += " " + downStyle.Render(string(t.Status))
		}
		lines = append(lines, line)
	}
	if len(trades) == 0 {
		lines = append(lines, mutedStyle.Render("none"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderTrade(t models.Trade) string {
	side := upStyle
	if t.Side == models.SideSell {
		side = downStyle
	}
	return tradeSideCol.Inherit(side).Render(strings.ToUpper(string(t.Side))) +
		fmt.Sprintf(" %d %s @ %s", t.Quantity, t.Symbol, t.Price.StringFixed(2))
}

func stamp(ts time.Time) string {
	if ts.IsZero() {
		return timeStyle.Render("")
	}
	return timeStyle.Render(ts.Format("15:04:05"))
}
