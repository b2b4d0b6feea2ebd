// Package tui renders the live order book in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"spotbook/internal/store"
	"spotbook/internal/types"
	"spotbook/internal/units"
)

const maxTrades = 15

var (
	boldStyle    = lipgloss.NewStyle().Bold(true)
	greenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	redStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	yellowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	magentaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Options configures the terminal view
type Options struct {
	Top             int
	RefreshInterval time.Duration
}

type tickMsg time.Time

type marketChangedMsg struct {
	market types.Market
	err    error
}

// Model is the bubbletea model of the order book view
type Model struct {
	ctx  context.Context
	root *store.RootStore
	opts Options

	snap   store.OrderBookSnapshot
	trades []types.SpotMarketTrade
	status string
	width  int
}

// View runs the terminal program against a root store
type View struct {
	root *store.RootStore
	opts Options
}

var _ types.View = (*View)(nil)

func New(root *store.RootStore, opts Options) *View {
	if opts.Top <= 0 {
		opts.Top = 15
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 200 * time.Millisecond
	}
	return &View{root: root, opts: opts}
}

// Run blocks until the user quits or ctx is cancelled
func (v *View) Run(ctx context.Context) error {
	p := tea.NewProgram(NewModel(ctx, v.root, v.opts), tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal view failed: %w", err)
	}
	return nil
}

func NewModel(ctx context.Context, root *store.RootStore, opts Options) Model {
	m := Model{ctx: ctx, root: root, opts: opts}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) refresh() {
	m.snap = m.root.OrderBook.Snapshot(m.opts.Top)
	trades := m.root.OrderBook.Trades()
	if len(trades) > maxTrades {
		trades = trades[:maxTrades]
	}
	m.trades = trades
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case marketChangedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.status = "switched to " + msg.market.Symbol()
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ob := m.root.OrderBook
	market := m.snap.Market

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "+", "=":
		ob.SetDecimalGroup(types.NextPrecision(ob.DecimalGroup(), market.PriceDecimals))
	case "-", "_":
		ob.SetDecimalGroup(types.PreviousPrecision(ob.DecimalGroup(), market.PriceDecimals))
	case "f":
		ob.SetOrderFilter(types.NextOrderFilter(ob.OrderFilter()))
	case "tab":
		next, ok := m.root.Trade.NextMarket()
		if !ok {
			return m, nil
		}
		m.status = "switching to " + next.Symbol() + "..."
		return m, m.changeMarket(next.ContractID)
	default:
		return m, nil
	}
	m.refresh()
	return m, nil
}

func (m Model) changeMarket(contractID string) tea.Cmd {
	root, ctx := m.root, m.ctx
	return func() tea.Msg {
		market, err := root.ChangeMarket(ctx, contractID)
		return marketChangedMsg{market: market, err: err}
	}
}

func (m Model) View() string {
	snap := m.snap
	var b strings.Builder

	b.WriteString(boldStyle.Render(snap.Market.Symbol()))
	fmt.Fprintf(&b, "  %s │ group %d │ filter %s │ last %s │ market %s\n",
		snap.State, snap.DecimalGroup, snap.Filter,
		yellowStyle.Render(units.FormatUnits(snap.LastTradePrice, snap.Market.PriceDecimals).String()),
		yellowStyle.Render(orDash(snap.MarketPrice)))
	b.WriteString(m.statsView())
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(m.bookView()),
		panelStyle.Render(m.tradesView()),
	))
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(dimStyle.Render(m.status) + "\n")
	}
	b.WriteString(dimStyle.Render("+/- precision • tab market • f filter • q quit"))
	return b.String()
}

func (m Model) statsView() string {
	stats := m.snap.Stats
	if !stats.SpreadValid {
		return dimStyle.Render("  waiting for both sides of the book") + "\n"
	}

	mid := stats.BestBuy.Add(stats.BestSell).Div(decimal.NewFromInt(2))
	delta05 := stats.BidLiquidity05Pct.Sub(stats.AskLiquidity05Pct)
	delta2 := stats.BidLiquidity2Pct.Sub(stats.AskLiquidity2Pct)

	var b strings.Builder
	fmt.Fprintf(&b, "  Mid: %10s │ Spread: %8s | BB: %10s │ BS: %10s\n",
		yellowStyle.Render(mid.StringFixed(2)),
		magentaStyle.Render(stats.Spread.StringFixed(4)),
		greenStyle.Render(stats.BestBuy.StringFixed(2)),
		redStyle.Render(stats.BestSell.StringFixed(2)))
	fmt.Fprintf(&b, "  DEPTH 0.5%% Bids: %9s │ Sells: %9s │ Δ: %10s\n",
		greenStyle.Render(stats.BidLiquidity05Pct.StringFixed(4)),
		redStyle.Render(stats.AskLiquidity05Pct.StringFixed(4)),
		deltaStyle(delta05).Render(delta05.StringFixed(4)))
	fmt.Fprintf(&b, "  DEPTH 2%%:  Bids: %9s │ Sells: %9s │ Δ: %10s\n",
		greenStyle.Render(stats.BidLiquidity2Pct.StringFixed(4)),
		redStyle.Render(stats.AskLiquidity2Pct.StringFixed(4)),
		deltaStyle(delta2).Render(delta2.StringFixed(4)))
	fmt.Fprintf(&b, "  TOTAL QTY: Bids: %9s │ Sells: %9s │ Δ: %10s\n",
		greenStyle.Render(stats.TotalBuyQty.StringFixed(4)),
		redStyle.Render(stats.TotalSellQty.StringFixed(4)),
		deltaStyle(stats.TotalDelta).Render(stats.TotalDelta.StringFixed(4)))
	return b.String()
}

func (m Model) bookView() string {
	snap := m.snap
	market := snap.Market

	var b strings.Builder
	fmt.Fprintf(&b, "%14s %14s %14s\n", "PRICE", "SIZE", "TOTAL")

	// best sell sits next to the spread line
	for i := len(snap.Sells) - 1; i >= 0; i-- {
		b.WriteString(redStyle.Render(levelLine(snap.Sells[i], market)) + "\n")
	}

	spread := "-"
	if snap.SpreadValid {
		spread = snap.SpreadPrice + " (" + snap.SpreadPercent + "%)"
	}
	b.WriteString(magentaStyle.Render(fmt.Sprintf("%14s %s", "spread", spread)) + "\n")

	for _, l := range snap.Buys {
		b.WriteString(greenStyle.Render(levelLine(l, market)) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func levelLine(l types.PriceLevel, market types.Market) string {
	return fmt.Sprintf("%14s %14s %14s",
		units.ToFormat(units.FormatUnits(l.Price, market.PriceDecimals), market.Precision),
		units.ToSignificant(units.FormatUnits(l.Quantity, market.BaseToken.Decimals), 4),
		units.ToFormat(units.FormatUnits(l.QuoteQuantity, market.QuoteToken.Decimals), 2))
}

func (m Model) tradesView() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%14s %12s %9s\n", "PRICE", "SIZE", "TIME")
	if len(m.trades) == 0 {
		b.WriteString(dimStyle.Render("no trades yet"))
		return b.String()
	}
	for _, t := range m.trades {
		line := fmt.Sprintf("%14s %12s %9s",
			units.ToFormat(units.FormatUnits(t.TradePrice, t.PriceDecimals), 2),
			units.ToSignificant(units.FormatUnits(t.TradeSize, t.BaseToken.Decimals), 4),
			t.Timestamp.Format("15:04:05"))
		switch t.Side {
		case types.TradeBuy:
			line = greenStyle.Render(line)
		case types.TradeSell:
			line = redStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func deltaStyle(delta decimal.Decimal) lipgloss.Style {
	if delta.GreaterThan(decimal.Zero) {
		return greenStyle
	} else if delta.LessThan(decimal.Zero) {
		return redStyle
	}
	return yellowStyle
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
