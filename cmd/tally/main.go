package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/backend"
	"tally/internal/cache"
	"tally/internal/config"
	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/services"
)

const usage = `Usage: tally <command> [flags]

Commands:
  record       record a transaction
  process-due  materialize due recurring schedules
  pause        take a schedule out of batch processing
  resume       reactivate a paused schedule
  recalculate  rebuild an account balance from its transactions
  overview     print a budget overview
`

func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	factory := backend.NewFactory(logger.Logger)
	result, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	app := newApp(result)

	var runErr error
	switch os.Args[1] {
	case "record":
		runErr = app.record(ctx, os.Args[2:])
	case "process-due":
		runErr = app.processDue(ctx, os.Args[2:])
	case "pause":
		runErr = app.setScheduleState(ctx, os.Args[2:], "pause")
	case "resume":
		runErr = app.setScheduleState(ctx, os.Args[2:], "resume")
	case "recalculate":
		runErr = app.recalculate(ctx, os.Args[2:])
	case "overview":
		runErr = app.overview(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if runErr != nil {
		logger.Error("Command failed", "command", os.Args[1], "error", runErr)
		os.Exit(1)
	}
}

type app struct {
	ledger       *services.LedgerService
	transactions *services.TransactionService
	budgets      *services.BudgetService
	processor    *services.RecurringProcessor
}

func newApp(result *backend.BackendResult) *app {
	ledger := services.NewLedgerService(result.Backend, result.Backend)
	transactions := services.NewTransactionService(result.Backend, ledger, result.Publisher)
	overviews := cache.NewLRUCache[core.BudgetOverview](100, 5*time.Minute)
	budgets := services.NewBudgetService(result.Backend, result.Backend, overviews)
	processor := services.NewRecurringProcessor(result.Backend, transactions)
	return &app{
		ledger:       ledger,
		transactions: transactions,
		budgets:      budgets,
		processor:    processor,
	}
}

func (a *app) record(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant ID")
	account := fs.String("account", "", "account ID (optional)")
	description := fs.String("description", "", "transaction description")
	amount := fs.String("amount", "", "amount, e.g. 12.50")
	kind := fs.String("kind", "expense", "income or expense")
	status := fs.String("status", "completed", "pending, completed or failed")
	date := fs.String("date", "", "transaction date YYYY-MM-DD (default today)")
	budgetItem := fs.String("budget-item", "", "budget item ID (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cents, err := core.ParseDecimalToCents(*amount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}

	txDate := core.DateOf(time.Now())
	if *date != "" {
		txDate, err = core.ParseDate(*date)
		if err != nil {
			return fmt.Errorf("parse date: %w", err)
		}
	}

	tx, created, err := a.transactions.Record(ctx, core.Transaction{
		TenantID:     *tenant,
		AccountID:    *account,
		Description:  *description,
		Amount:       core.Money{Cents: cents},
		Kind:         core.TransactionKind(*kind),
		Status:       core.TransactionStatus(*status),
		Date:         txDate,
		BudgetItemID: *budgetItem,
	})
	if err != nil {
		return err
	}
	if !created {
		fmt.Println("already recorded")
		return nil
	}
	fmt.Printf("recorded %s %s %s\n", tx.ID, tx.Kind, core.FormatCents(tx.Amount.Cents))
	return nil
}

func (a *app) processDue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process-due", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant ID (default: all tenants)")
	asOf := fs.String("as-of", "", "process schedules due on or before this date YYYY-MM-DD (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now()
	if *asOf != "" {
		d, err := core.ParseDate(*asOf)
		if err != nil {
			return fmt.Errorf("parse as-of date: %w", err)
		}
		now = d.Time
	}

	var (
		batch services.BatchResult
		err   error
	)
	if *tenant != "" {
		batch, err = a.processor.ProcessDue(ctx, *tenant, now)
	} else {
		batch, err = a.processor.ProcessAllTenants(ctx, now)
	}
	if err != nil {
		return err
	}

	fmt.Printf("processed %d schedules: %d succeeded, %d failed\n",
		batch.ProcessedCount, batch.SuccessCount, batch.FailureCount)
	for _, r := range batch.Results {
		if r.Success {
			fmt.Printf("  %s -> transaction %s, next due %s\n", r.ScheduleID, r.TransactionID, r.NextDueDate)
		} else {
			fmt.Printf("  %s -> FAILED: %v\n", r.ScheduleID, r.Error)
		}
	}
	return nil
}

func (a *app) setScheduleState(ctx context.Context, args []string, verb string) error {
	fs := flag.NewFlagSet(verb, flag.ExitOnError)
	schedule := fs.String("schedule", "", "schedule ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *schedule == "" {
		return fmt.Errorf("schedule ID is required")
	}

	var err error
	if verb == "pause" {
		err = a.processor.PauseSchedule(ctx, *schedule)
	} else {
		err = a.processor.ResumeSchedule(ctx, *schedule)
	}
	if err != nil {
		return err
	}
	fmt.Printf("schedule %s %sd\n", *schedule, verb)
	return nil
}

func (a *app) recalculate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("recalculate", flag.ExitOnError)
	account := fs.String("account", "", "account ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *account == "" {
		return fmt.Errorf("account ID is required")
	}

	acct, err := a.ledger.Recalculate(ctx, *account)
	if err != nil {
		return err
	}
	fmt.Printf("account %s balance %s (version %d)\n",
		acct.ID, core.FormatCents(acct.Balance), acct.Version)
	return nil
}

func (a *app) overview(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("overview", flag.ExitOnError)
	budget := fs.String("budget", "", "budget ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *budget == "" {
		return fmt.Errorf("budget ID is required")
	}

	ov, err := a.budgets.Overview(ctx, *budget)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s of %s spent (%.1f%%, %s)\n",
		ov.Budget.Name,
		core.FormatCents(ov.Budget.TotalSpent),
		core.FormatCents(ov.Budget.TotalBudget),
		ov.SpentPercentage,
		ov.Health)
	for _, item := range ov.Items {
		fmt.Printf("  %-24s %s of %s (%.1f%%, %s)\n",
			item.Item.Name,
			core.FormatCents(item.Item.Spent),
			core.FormatCents(item.Item.Amount),
			item.SpentPercentage,
			item.Health)
	}
	return nil
}
