// Package notify presenta los informes de ciclo a un operador humano.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// Console implementa ports.Notifier sobre stdout. Por defecto imprime una
// línea compacta por ciclo con actividad; en modo tabla imprime cada enlace
// vivo.
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

// Notify imprime el informe del ciclo. Los ciclos sin actividad no
// imprimen nada en modo compacto, así un copiador ocioso no arrastra el
// terminal.
func (c *Console) Notify(_ context.Context, report domain.CycleReport) error {
	if c.table {
		c.printFull(report)
		return nil
	}
	if report.Quiet() {
		return nil
	}
	c.printCompact(report)
	return nil
}

func (c *Console) printCompact(r domain.CycleReport) {
	now := r.At.Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] donors:%d pos:%d links:%d", now, r.DonorsOnline, r.DonorPositions, len(r.Links))
	if r.OpenInFlight > 0 || r.CloseInFlight > 0 {
		fmt.Fprintf(&sb, " inflight:%d/%d", r.OpenInFlight, r.CloseInFlight)
	}
	if r.NewCopies > 0 {
		fmt.Fprintf(&sb, " +%d copy", r.NewCopies)
	}
	if r.Fills > 0 {
		fmt.Fprintf(&sb, " +%d fill", r.Fills)
	}
	if r.ClosedLinks > 0 {
		fmt.Fprintf(&sb, " -%d close", r.ClosedLinks)
	}
	if r.CloseBys > 0 {
		fmt.Fprintf(&sb, " %d close-by", r.CloseBys)
	}
	if r.Reprices > 0 {
		fmt.Fprintf(&sb, " %d reprice", r.Reprices)
	}
	if r.Cancels > 0 {
		fmt.Fprintf(&sb, " %d cancel", r.Cancels)
	}

	for i, warn := range r.Warnings {
		if i >= 2 {
			break
		}
		fmt.Fprintf(&sb, "\n  !! %s", warn)
	}

	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printFull(r domain.CycleReport) {
	now := r.At.Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] cycle %d — donors:%d positions:%d links:%d mirrors:%d (%.0fms)\n",
		now, r.Cycle, r.DonorsOnline, r.DonorPositions, len(r.Links), r.MirroredOrders,
		float64(r.Duration)/float64(time.Millisecond))

	if len(r.Links) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Source", "Donor", "Client", "Symbol", "Side", "Lots", "Donor@", "Client@", "P/L")

		for _, row := range r.Links {
			table.Append(
				row.SourceID,
				fmt.Sprintf("%d", row.DonorTicket),
				fmt.Sprintf("%d", row.ClientTicket),
				row.Symbol,
				row.Direction.String(),
				fmt.Sprintf("%.2f", row.Volume),
				fmt.Sprintf("%.5f", row.DonorPrice),
				fmt.Sprintf("%.5f", row.ClientPrice),
				fmt.Sprintf("%.2f", row.Profit),
			)
		}
		table.Render()
	}

	if r.OpenInFlight > 0 || r.CloseInFlight > 0 {
		fmt.Fprintf(c.out, "  in flight: %d opening, %d closing\n", r.OpenInFlight, r.CloseInFlight)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(c.out, "  !! %s\n", warn)
	}
}

var _ ports.Notifier = (*Console)(nil)
