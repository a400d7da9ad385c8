package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/service"
	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/store/postgres"
	"github.com/google/subcommands"
)

// stdout is where command output goes.
var stdout io.Writer = os.Stdout

func commands(rt *runtime) []subcommands.Command {
	return []subcommands.Command{
		&openCmd{rt: rt},
		&balanceCmd{rt: rt},
		&orderCmd{rt: rt, side: domain.OrderSideBuy},
		&orderCmd{rt: rt, side: domain.OrderSideSell},
		&historyCmd{rt: rt},
		&portfolioCmd{rt: rt},
		&quotesCmd{rt: rt},
	}
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

func usage(c subcommands.Command) subcommands.ExitStatus {
	fmt.Fprint(os.Stderr, c.Usage())
	return subcommands.ExitUsageError
}

// withApp opens the ledger, runs fn and closes it.
func withApp(ctx context.Context, rt *runtime, fn func(*app) error) subcommands.ExitStatus {
	a, err := rt.open(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.Close()
	if err := fn(a); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type openCmd struct {
	rt *runtime
	id string
}

func (*openCmd) Name() string     { return "open" }
func (*openCmd) Synopsis() string { return "open a new account funded with START_BALANCE" }
func (*openCmd) Usage() string {
	return `papertrading open [-id <user_id>]

  Creates an account and prints its id. Without -id a random id is used.
`
}

func (c *openCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "user id for the new account")
}

func (c *openCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, c.rt, func(a *app) error {
		acct, err := a.accounts.Open(ctx, service.OpenAccountRequest{UserID: c.id})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s\t%s\n", acct.ID, domain.Rounded(acct.Balance))
		return nil
	})
}

type balanceCmd struct {
	rt *runtime
}

func (*balanceCmd) Name() string           { return "balance" }
func (*balanceCmd) Synopsis() string       { return "print a user's cash balance" }
func (*balanceCmd) Usage() string          { return "papertrading balance <user_id>\n" }
func (*balanceCmd) SetFlags(*flag.FlagSet) {}

func (c *balanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage(c)
	}
	return withApp(ctx, c.rt, func(a *app) error {
		bal, err := a.accounts.Balance(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, domain.Rounded(bal))
		return nil
	})
}

// orderCmd is both "buy" and "sell".
type orderCmd struct {
	rt    *runtime
	side  domain.OrderSide
	typ   string
	notes string
}

func (c *orderCmd) Name() string { return string(c.side) }
func (c *orderCmd) Synopsis() string {
	return c.Name() + " shares at the current market price"
}
func (c *orderCmd) Usage() string {
	return fmt.Sprintf(`papertrading %s [-type <order_type>] [-notes <text>] <user_id> <symbol> <shares>

  Settles the order immediately against the current quote. Buys use the
  ask and shrink to what the balance affords; sells use the bid and
  consume the cheapest lots first.
`, c.Name())
}

func (c *orderCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.typ, "type", "market", "order type recorded with the order (market, limit, stop, stop_limit)")
	f.StringVar(&c.notes, "notes", "", "free-form notes stored with the record")
}

func (c *orderCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 3 {
		return usage(c)
	}
	shares, err := strconv.ParseFloat(f.Arg(2), 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid share count %q: %v\n", f.Arg(2), err)
		return subcommands.ExitUsageError
	}

	return withApp(ctx, c.rt, func(a *app) error {
		res, err := a.orders.PlaceOrder(ctx, service.PlaceOrderRequest{
			UserID: f.Arg(0),
			Symbol: f.Arg(1),
			Side:   c.side,
			Type:   domain.OrderType(c.typ),
			Shares: shares,
			Notes:  c.notes,
		})
		fmt.Fprintf(stdout, "%s: %s\n", res.Kind, res.Message)
		if res.Order != nil {
			fmt.Fprintf(stdout, "order %s, balance %s\n", res.Order.ID, domain.Rounded(res.Balance))
		}
		return err
	})
}

type historyCmd struct {
	rt *runtime
}

func (*historyCmd) Name() string           { return "history" }
func (*historyCmd) Synopsis() string       { return "list a user's transaction records, newest first" }
func (*historyCmd) Usage() string          { return "papertrading history <user_id>\n" }
func (*historyCmd) SetFlags(*flag.FlagSet) {}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage(c)
	}
	return withApp(ctx, c.rt, func(a *app) error {
		recs, err := a.orders.History(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSIDE\tSYMBOL\tSHARES\tPRICE\tTOTAL\tSTATUS\tID")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.CreatedAt.Format("2006-01-02 15:04:05"), r.Side, r.Symbol,
				domain.Rounded(r.Shares), domain.Rounded(r.CostPerShare), domain.Rounded(r.TotalCost),
				r.Status, r.ID)
		}
		return w.Flush()
	})
}

type portfolioCmd struct {
	rt *runtime
}

func (*portfolioCmd) Name() string           { return "portfolio" }
func (*portfolioCmd) Synopsis() string       { return "show a user's open positions per symbol" }
func (*portfolioCmd) Usage() string          { return "papertrading portfolio <user_id>\n" }
func (*portfolioCmd) SetFlags(*flag.FlagSet) {}

func (c *portfolioCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage(c)
	}
	return withApp(ctx, c.rt, func(a *app) error {
		holdings, err := a.orders.Portfolio(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		bal, err := a.accounts.Balance(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tSHARES\tAVG COST\tCOST BASIS\tLOTS")
		for _, h := range holdings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
				h.Symbol, domain.Rounded(h.Shares), domain.Rounded(h.AverageCost), domain.Rounded(h.CostBasis), h.Lots)
		}
		fmt.Fprintf(w, "CASH\t\t\t%s\t\n", domain.Rounded(bal))
		return w.Flush()
	})
}

type quotesCmd struct {
	rt    *runtime
	watch bool
}

func (*quotesCmd) Name() string     { return "quotes" }
func (*quotesCmd) Synopsis() string { return "fetch quotes for symbols, once or continuously" }
func (*quotesCmd) Usage() string {
	return `papertrading quotes [-watch] <symbol>...

  Fetches quotes with QUOTE_CONCURRENCY requests in flight. With -watch the
  quotes are refreshed every QUOTE_REFRESH_INTERVAL until interrupted.
`
}

func (c *quotesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.watch, "watch", false, "keep refreshing until interrupted")
}

func (c *quotesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		return usage(c)
	}
	symbols := make([]string, f.NArg())
	for i, s := range f.Args() {
		symbols[i] = strings.ToUpper(s)
	}
	cache := c.rt.quoteCache()

	if c.watch {
		cache.Run(ctx, symbols, c.rt.cfg.QuoteRefreshInterval, c.rt.cfg.QuoteConcurrency)
		return subcommands.ExitSuccess
	}

	err := cache.Refresh(ctx, symbols, c.rt.cfg.QuoteConcurrency)
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tBID\tASK\tLAST")
	for _, s := range symbols {
		if q, ok := cache.Get(s); ok {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", q.Symbol, domain.Rounded(q.Bid), domain.Rounded(q.Ask), domain.Rounded(q.Last))
		}
	}
	_ = w.Flush()
	if err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type reconcileCmd struct {
	rt     *runtime
	repair bool
}

func (*reconcileCmd) Name() string { return "reconcile" }
func (*reconcileCmd) Synopsis() string {
	return "find lots and records left out of step by failed settlements"
}
func (*reconcileCmd) Usage() string {
	return `papertrading reconcile [-repair] <user_id>

  Reports orphan lots (no record), stale lots (record archived) and dangling
  records (tracked buy without a lot). With -repair, removes the lots and
  archives the records. Balances are never changed.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.repair, "repair", false, "fix what is found")
}

func (c *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage(c)
	}
	return withApp(ctx, c.rt, func(a *app) error {
		report, err := a.orders.Reconcile(ctx, f.Arg(0), c.repair)
		if report != nil {
			fmt.Fprintf(stdout, "orphan lots: %s\n", strings.Join(report.OrphanLots, ", "))
			fmt.Fprintf(stdout, "stale lots: %s\n", strings.Join(report.StaleLots, ", "))
			fmt.Fprintf(stdout, "dangling records: %s\n", strings.Join(report.DanglingRecords, ", "))
			fmt.Fprintf(stdout, "repaired: %t\n", report.Repaired)
		}
		return err
	})
}

type deleteUserCmd struct {
	rt *runtime
}

func (*deleteUserCmd) Name() string           { return "delete-user" }
func (*deleteUserCmd) Synopsis() string       { return "remove a user from every store" }
func (*deleteUserCmd) Usage() string          { return "papertrading delete-user <user_id>\n" }
func (*deleteUserCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteUserCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage(c)
	}
	return withApp(ctx, c.rt, func(a *app) error {
		report, err := a.accounts.ForceDelete(ctx, f.Arg(0))
		if report != nil {
			fmt.Fprintf(stdout, "account: %t, positions: %t, records: %t\n",
				report.Account, report.Positions, report.Records)
		}
		return err
	})
}

type migrateCmd struct {
	rt *runtime
}

func (*migrateCmd) Name() string           { return "migrate" }
func (*migrateCmd) Synopsis() string       { return "create the database tables" }
func (*migrateCmd) Usage() string          { return "papertrading migrate\n" }
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	pool, err := c.rt.connect(ctx)
	if err != nil {
		return fail(err)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		return fail(err)
	}
	fmt.Fprintln(stdout, "migrated")
	return subcommands.ExitSuccess
}
