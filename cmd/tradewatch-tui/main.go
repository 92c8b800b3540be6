// tradewatch-tui is a terminal monitor for a running tradewatch
// server. It polls the dashboard JSON API and renders portfolio,
// positions and the decision tail in place.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	gainStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	staleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type portfolioResp struct {
	Portfolio struct {
		CashBalance    string `json:"cash_balance"`
		PositionsValue string `json:"positions_value"`
		TotalEquity    string `json:"total_equity"`
		UnrealizedPnL  string `json:"unrealized_pnl"`
	} `json:"portfolio"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type positionsResp struct {
	Positions []struct {
		ID            string `json:"id"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Size          string `json:"size"`
		EntryPrice    string `json:"entry_price"`
		MarkPrice     string `json:"mark_price"`
		StopLoss      string `json:"stop_loss"`
		TakeProfit    string `json:"take_profit"`
		UnrealizedPnL string `json:"unrealized_pnl"`
	} `json:"positions"`
	Status string `json:"status"`
}

type decisionsResp struct {
	Decisions []struct {
		TS     time.Time `json:"ts"`
		Action string    `json:"action"`
		Symbol string    `json:"symbol"`
		Reason string    `json:"reason"`
	} `json:"decisions"`
}

type pollMsg struct {
	portfolio portfolioResp
	positions positionsResp
	decisions decisionsResp
	err       error
}

type tickMsg time.Time

type model struct {
	baseURL string
	client  *http.Client

	portfolio portfolioResp
	positions positionsResp
	decisions decisionsResp

	lastUpdate time.Time
	err        error
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.poll, tick())
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) poll() tea.Msg {
	var msg pollMsg
	if err := m.getJSON("/api/portfolio", &msg.portfolio); err != nil {
		msg.err = err
		return msg
	}
	if err := m.getJSON("/api/positions", &msg.positions); err != nil {
		msg.err = err
		return msg
	}
	if err := m.getJSON("/api/decisions?limit=8", &msg.decisions); err != nil {
		msg.err = err
		return msg
	}
	return msg
}

func (m model) getJSON(path string, out any) error {
	resp, err := m.client.Get(m.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("%s: %s", path, e.Error)
		}
		return fmt.Errorf("%s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m model) forceRefresh() tea.Msg {
	resp, err := m.client.Post(m.baseURL+"/api/refresh", "application/json", nil)
	if err == nil {
		_ = resp.Body.Close()
	}
	return m.poll()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.forceRefresh
		}
	case tickMsg:
		return m, tea.Batch(m.poll, tick())
	case pollMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.portfolio = msg.portfolio
		m.positions = msg.positions
		m.decisions = msg.decisions
		m.lastUpdate = time.Now()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(" tradewatch ") + "  ")
	if m.err != nil {
		b.WriteString(lossStyle.Render("error: " + m.err.Error()))
	} else if !m.lastUpdate.IsZero() {
		note := fmt.Sprintf("updated %s", m.lastUpdate.Format("15:04:05"))
		if m.portfolio.Status == "stale" || m.portfolio.Status == "error" {
			note += " (" + m.portfolio.Status + ")"
			b.WriteString(staleStyle.Render(note))
		} else {
			b.WriteString(mutedStyle.Render(note))
		}
	}
	b.WriteString("\n\n")

	p := m.portfolio.Portfolio
	pnlStyle := gainStyle
	if strings.HasPrefix(p.UnrealizedPnL, "-") {
		pnlStyle = lossStyle
	}
	summary := fmt.Sprintf("equity %s   cash %s   positions %s   uPnL %s",
		titleStyle.Render(p.TotalEquity),
		p.CashBalance,
		p.PositionsValue,
		pnlStyle.Render(p.UnrealizedPnL))
	b.WriteString(borderStyle.Render(summary) + "\n\n")

	b.WriteString(titleStyle.Render("Open positions") + "\n")
	if len(m.positions.Positions) == 0 {
		b.WriteString(mutedStyle.Render("  none") + "\n")
	} else {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  %-10s %-5s %10s %10s %10s %10s %10s %10s",
			"symbol", "side", "size", "entry", "mark", "uPnL", "SL", "TP")) + "\n")
		for _, pos := range m.positions.Positions {
			style := gainStyle
			if strings.HasPrefix(pos.UnrealizedPnL, "-") {
				style = lossStyle
			}
			b.WriteString(fmt.Sprintf("  %-10s %-5s %10s %10s %10s %10s %10s %10s\n",
				pos.Symbol, pos.Side, pos.Size, pos.EntryPrice, pos.MarkPrice,
				style.Render(pos.UnrealizedPnL), pos.StopLoss, pos.TakeProfit))
		}
	}
	b.WriteString("\n")

	b.WriteString(titleStyle.Render("Decisions") + "\n")
	if len(m.decisions.Decisions) == 0 {
		b.WriteString(mutedStyle.Render("  none recorded") + "\n")
	} else {
		for _, d := range m.decisions.Decisions {
			b.WriteString(fmt.Sprintf("  %s  %-7s %-10s %s\n",
				mutedStyle.Render(d.TS.Format("01/02 15:04")),
				strings.ToUpper(d.Action), d.Symbol, d.Reason))
		}
	}

	b.WriteString("\n" + mutedStyle.Render("q quit · r refresh") + "\n")
	return b.String()
}

func main() {
	base := flag.String("url", envOr("TRADEWATCH_URL", "http://127.0.0.1:8080"), "tradewatch server base URL")
	flag.Parse()

	m := model{
		baseURL: strings.TrimRight(*base, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tradewatch-tui: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
