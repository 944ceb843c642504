package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyRun imprime una línea por batch y, en modo tabla, los fills del batch.
func (c *Console) NotifyRun(_ context.Context, s domain.RunSummary) error {
	now := s.StartedAt.Format("15:04:05")
	if s.Processed == 0 && s.Rejected == nil {
		fmt.Fprintf(c.out, "[%s][PAPER] no new trades | cursor %d | eq %s\n",
			now, s.LastTradeID, usd(s.Valuation.Equity))
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][PAPER] %d trades | +%d fills | %d skips",
		now, s.Processed, s.Filled, s.Skipped())
	if reasons := skipLabel(s.Skips); reasons != "" {
		fmt.Fprintf(&sb, " (%s)", reasons)
	}
	fmt.Fprintf(&sb, " | cursor %d | eq %s cash %s unr %s real %s | %s",
		s.LastTradeID,
		usd(s.Valuation.Equity), usd(s.Valuation.Cash),
		usd(s.Valuation.Unrealized), usd(s.Valuation.Realized),
		s.Duration.Round(time.Millisecond))
	if s.Rejected != nil {
		fmt.Fprintf(&sb, "\n  !! trade %d rejected: %s", s.Rejected.TradeID, s.Rejected.Reason)
	}
	fmt.Fprintln(c.out, sb.String())

	if c.table && len(s.Fills) > 0 {
		views := make([]domain.FillView, len(s.Fills))
		for i, f := range s.Fills {
			views[i] = domain.FillView{Fill: f}
		}
		c.PrintFills(views)
	}
	return nil
}

// ReportInput agrupa lo que necesita PrintReport.
type ReportInput struct {
	Initialized bool
	State       domain.LedgerState
	Valuation   domain.Valuation
	StartEquity decimal.Decimal
	Backlog     int64
	Positions   []domain.PositionView
	Leaders     []domain.LeaderSummary
	Fills       []domain.FillView
	LiveFills   []domain.LiveFill
	Rejections  []domain.Rejection
	Series      []domain.PortfolioSnapshot
}

// PrintReport imprime el informe completo del ledger paper.
func (c *Console) PrintReport(in ReportInput) {
	if !in.Initialized {
		fmt.Fprintln(c.out, "\n  No paper ledger yet. Run `polycopy paper` first.")
		return
	}

	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  PAPER COPY-TRADING REPORT\n")
	fmt.Fprintf(c.out, "  epoch since %s | cursor %d | backlog %d\n",
		in.State.EpochStart.UTC().Format("2006-01-02 15:04"), in.State.LastTradeID, in.Backlog)
	fmt.Fprintf(c.out, "========================================================\n\n")

	v := in.Valuation
	fmt.Fprintf(c.out, "  Equity:       %s\n", usd(v.Equity))
	fmt.Fprintf(c.out, "  Cash:         %s\n", usd(v.Cash))
	fmt.Fprintf(c.out, "  Positions:    %s\n", usd(v.PositionValue))
	fmt.Fprintf(c.out, "  Unrealized:   %s\n", usd(v.Unrealized))
	fmt.Fprintf(c.out, "  Realized:     %s\n", usd(v.Realized))
	if in.StartEquity.IsPositive() {
		ret := v.Equity.Sub(in.StartEquity).Div(in.StartEquity).Mul(decimal.NewFromInt(100))
		fmt.Fprintf(c.out, "  Return:       %s%% (start %s)\n", ret.StringFixed(2), usd(in.StartEquity))
	}

	if len(in.Leaders) > 0 {
		fmt.Fprintf(c.out, "\n  --- BY LEADER ---\n")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Leader", "Pos", "Cost", "Value", "Unreal", "Realized")
		for _, l := range in.Leaders {
			tbl.Append(
				shortWallet(l.Leader),
				fmt.Sprintf("%d", l.Positions),
				usd(l.Notional),
				usd(l.Value),
				usd(l.Unrealized),
				usd(l.Realized),
			)
		}
		tbl.Render()
	}

	fmt.Fprintf(c.out, "\n  --- OPEN POSITIONS (%d) ---\n", len(in.Positions))
	c.PrintPositions(in.Positions)

	if len(in.Fills) > 0 {
		fmt.Fprintf(c.out, "\n  --- RECENT FILLS ---\n")
		c.PrintFills(in.Fills)
	}

	if len(in.Series) > 1 {
		first, last := in.Series[0], in.Series[len(in.Series)-1]
		fmt.Fprintf(c.out, "\n  --- EQUITY ---\n")
		fmt.Fprintf(c.out, "  %s  %s\n", first.Timestamp.UTC().Format("01-02 15:04"), usd(first.Equity))
		fmt.Fprintf(c.out, "  %s  %s (%d samples)\n", last.Timestamp.UTC().Format("01-02 15:04"), usd(last.Equity), len(in.Series))
	}

	if len(in.LiveFills) > 0 {
		fmt.Fprintf(c.out, "\n  --- LIVE SUBMISSIONS ---\n")
		c.PrintLiveFills(in.LiveFills)
	}

	if len(in.Rejections) > 0 {
		fmt.Fprintf(c.out, "\n  --- REJECTED TRADES ---\n")
		for _, r := range in.Rejections {
			fmt.Fprintf(c.out, "  !! trade %d at %s: %s\n", r.TradeID, r.RejectedAt.UTC().Format("01-02 15:04:05"), r.Reason)
		}
		fmt.Fprintf(c.out, "  The cursor is held until the rejected trade is resolved.\n")
	}

	fmt.Fprintln(c.out)
}

// PrintPositions imprime las posiciones abiertas con su mark.
func (c *Console) PrintPositions(positions []domain.PositionView) {
	if len(positions) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Leader", "Market", "Outcome", "Size", "Avg", "Mark", "Cost", "Unreal")
	for _, p := range positions {
		tbl.Append(
			shortWallet(p.Leader),
			marketLabel(p.Title, p.ConditionID),
			outcomeLabel(p.Outcome),
			p.Size.StringFixed(2),
			p.AvgPrice.StringFixed(4),
			p.MarkPrice.StringFixed(4),
			usd(p.Notional),
			usd(p.Unrealized),
		)
	}
	tbl.Render()
}

// PrintFills imprime fills del más reciente al más antiguo.
func (c *Console) PrintFills(fills []domain.FillView) {
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Trade", "Time", "Leader", "Market", "Side", "Size", "Price", "Notional")
	for _, f := range fills {
		tbl.Append(
			fmt.Sprintf("%d", f.SourceTradeID),
			f.Timestamp.UTC().Format("01-02 15:04:05"),
			shortWallet(f.Leader),
			marketLabel(f.Title, f.ConditionID),
			string(f.Side),
			f.Size.StringFixed(2),
			f.Price.StringFixed(4),
			usd(f.SignedNotional),
		)
	}
	tbl.Render()
}

// PrintLiveFills imprime los envíos al CLOB.
func (c *Console) PrintLiveFills(fills []domain.LiveFill) {
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Trade", "Side", "Size", "Price", "Status", "Ref", "Error")
	for _, f := range fills {
		tbl.Append(
			fmt.Sprintf("%d", f.SourceTradeID),
			string(f.Side),
			f.Size.StringFixed(2),
			f.Price.StringFixed(4),
			string(f.Result.Status),
			truncate(f.Result.Reference, 18),
			truncate(f.Result.Error, 40),
		)
	}
	tbl.Render()
}

// EquityInput es la salida del comando equity.
type EquityInput struct {
	Wallet    string
	Value     decimal.Decimal
	Leaders   []string
	PerLeader decimal.Decimal
}

// PrintEquity imprime el valor de la wallet propia y la asignación por leader.
func (c *Console) PrintEquity(in EquityInput) {
	fmt.Fprintf(c.out, "Current portfolio value for %s: %s USDC\n", in.Wallet, in.Value.StringFixed(2))
	fmt.Fprintf(c.out, "Leaders configured: %d\n", len(in.Leaders))
	fmt.Fprintf(c.out, "Target allocation per leader: %s USDC\n", in.PerLeader.StringFixed(2))
	fmt.Fprintln(c.out, "Leaders:")
	for _, w := range in.Leaders {
		fmt.Fprintf(c.out, "- %s\n", w)
	}
}

// PrintTracked imprime las posiciones abiertas de los leaders seguidos. Las no
// leídas llevan un asterisco.
func (c *Console) PrintTracked(view domain.TrackerView) {
	if view.LastSuccess.IsZero() {
		fmt.Fprintln(c.out, "Tracker has not completed a poll yet.")
	} else {
		fmt.Fprintf(c.out, "Tracked positions: %d | unread %d | last poll %s\n",
			len(view.Positions), view.Unread, view.LastSuccess.UTC().Format("2006-01-02 15:04:05"))
	}
	if len(view.Positions) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("", "Market", "Outcome", "Leaders", "Size", "Mark", "Value", "First seen")
	for _, p := range view.Positions {
		flag := ""
		if p.Unread {
			flag = "*"
		}
		tbl.Append(
			flag,
			marketLabel(p.Title, p.ConditionID),
			outcomeLabel(p.Outcome),
			fmt.Sprintf("%d", p.WalletCount),
			p.TotalSize.StringFixed(2),
			p.MarkPrice.StringFixed(4),
			usd(p.TotalUSD),
			p.FirstSeen.UTC().Format("01-02 15:04"),
		)
	}
	tbl.Render()
}

// PrintIntents imprime intents simulados, del más reciente al más antiguo.
func (c *Console) PrintIntents(intents []domain.CopyIntent) {
	if len(intents) == 0 {
		fmt.Fprintln(c.out, "  (no intents)")
		return
	}
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Trade", "Rule", "Leader", "Market", "Side", "Size", "Notional")
	for _, in := range intents {
		tbl.Append(
			fmt.Sprintf("%d", in.LeaderTradeID),
			in.RuleLabel,
			shortWallet(in.Wallet),
			truncate(in.ConditionID, 14),
			string(in.Side),
			in.DesiredSize.StringFixed(2),
			usd(in.DesiredNotional),
		)
	}
	tbl.Render()
}

// --- helpers ---

func usd(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func skipLabel(skips map[domain.SkipReason]int) string {
	if len(skips) == 0 {
		return ""
	}
	parts := make([]string, 0, len(skips))
	for reason, n := range skips {
		parts = append(parts, fmt.Sprintf("%s:%d", reason, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func marketLabel(title, conditionID string) string {
	if title != "" {
		return compactName(title, 40)
	}
	return truncate(conditionID, 14)
}

func outcomeLabel(o string) string {
	if o == "" {
		return "-"
	}
	return o
}

func shortWallet(w string) string {
	if len(w) <= 12 {
		return w
	}
	return w[:6] + ".." + w[len(w)-4:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
