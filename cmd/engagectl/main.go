// main.go - Admin control tool for engagely
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"gorm.io/gorm"

	"engagely/internal"
	"engagely/internal/aggregation"
	"engagely/internal/models"
	"engagely/internal/retention"
	"engagely/internal/seeder"
	"engagely/internal/timeframe"
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&AggregateCommand{},
	&BackfillCommand{},
	&CleanupCommand{},
	&MigrateCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs(os.Args[1:])

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	var app *internal.Application
	if _, ok := cmd.(*HelpCommand); !ok {
		var err error
		app, err = internal.NewApp()
		if err != nil {
			log.Fatalf("Failed to initialize app: %v", err)
		}
	}

	err := cmd.Execute(ctx, app, args)

	// The server was never started, only the services need closing
	if app != nil {
		if serr := app.Services.Close(); serr != nil {
			log.Printf("Warning: Cleanup error: %v", serr)
		}
	}

	if err != nil {
		log.Fatalf("Command failed: %v", err)
	}
	log.Printf("Command %s completed successfully", cmd.Name())
}

// AggregateCommand rebuilds base aggregates and optionally purges old or
// orphaned analytics afterwards.
type AggregateCommand struct {
	// In is read for confirmations; os.Stdin when nil.
	In io.Reader
}

func (c *AggregateCommand) Name() string { return "aggregate" }
func (c *AggregateCommand) Description() string {
	return "Rebuilds base aggregates (--type, --id, --recent, --cleanup, --orphaned, --days)"
}

func (c *AggregateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ContinueOnError)
	entityType := fs.String("type", "", "entity type to aggregate")
	entityID := fs.String("id", "", "entity id to aggregate (requires --type)")
	recent := fs.Bool("recent", false, "only entities active within --hours")
	hours := fs.Int("hours", 0, "recent window in hours (defaults to the configured window)")
	cleanup := fs.Bool("cleanup", false, "purge expired rows after aggregating")
	orphaned := fs.Bool("orphaned", false, "purge analytics of entities that no longer exist")
	days := fs.Int("days", 0, "retention in days for --cleanup (defaults to the configured retention)")
	yes := fs.Bool("yes", false, "skip confirmation prompts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *entityID != "" && *entityType == "" {
		return fmt.Errorf("--id requires --type")
	}
	if *days < 0 {
		return fmt.Errorf("--days must be positive")
	}

	svc := app.Services
	builder := svc.Builder

	switch {
	case *entityID != "":
		base, err := builder.RebuildBase(ctx, *entityType, *entityID)
		if errors.Is(err, aggregation.ErrNothingToAggregate) {
			log.Printf("Nothing to aggregate for %s:%s", *entityType, *entityID)
			break
		}
		if err != nil {
			return err
		}
		log.Printf("Aggregated %s:%s (views=%d, unique=%d)", base.EntityType, base.EntityID, base.ViewsCount, base.UniqueViewers)
	case *entityType != "":
		result, err := builder.RebuildAllForType(ctx, *entityType)
		if err != nil {
			return err
		}
		printResult("type "+*entityType, result)
	case *recent:
		window := svc.Config.RecentWindow()
		if *hours > 0 {
			window = time.Duration(*hours) * time.Hour
		}
		result, err := builder.RebuildRecent(ctx, window)
		if err != nil {
			return err
		}
		printResult("recent", result)
	default:
		result, err := builder.RebuildAll(ctx)
		if err != nil {
			return err
		}
		printResult("all", result)
	}

	if *cleanup {
		if err := purge(ctx, svc.Sweeper, "", *days); err != nil {
			return err
		}
	}

	if *orphaned {
		types := svc.Resolvers.Types()
		prompt := "No entity tables are registered: every analytic row counts as orphaned. Continue?"
		if len(types) > 0 {
			prompt = fmt.Sprintf("Delete analytics of entity types other than %s and of missing entities?", strings.Join(types, ", "))
		}
		if !*yes && !confirm(c.In, prompt) {
			log.Println("Orphan cleanup cancelled")
			return nil
		}
		deleted, err := svc.Sweeper.PurgeOrphaned(ctx, svc.Resolvers)
		if err != nil {
			return err
		}
		log.Printf("Deleted %d orphaned analytic rows", deleted)
	}
	return nil
}

// BackfillCommand materialises missing period rows for one entity.
type BackfillCommand struct{}

func (c *BackfillCommand) Name() string { return "backfill" }
func (c *BackfillCommand) Description() string {
	return "Backfills period rollups for an entity (--type, --id, --from, --to)"
}

func (c *BackfillCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	entityType := fs.String("type", "", "entity type")
	entityID := fs.String("id", "", "entity id")
	from := fs.String("from", "", "first day (YYYY-MM-DD)")
	to := fs.String("to", "", "last day (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ref, err := models.ValidateEntity(models.EntityRef{Type: *entityType, ID: *entityID})
	if err != nil {
		return err
	}
	engine := app.Services.Builder.Rollup()
	r, err := timeframe.NewRangeParser().Parse(timeframe.RangeParams{
		FromDate: *from,
		ToDate:   *to,
		Tz:       engine.Location().String(),
	})
	if err != nil {
		return err
	}

	created, err := engine.BackfillEntity(ctx, ref, r.From, r.To)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s has not been aggregated yet, run aggregate first", ref)
	}
	if err != nil {
		return err
	}
	log.Printf("Created %d period rows for %s between %s and %s",
		created, ref, r.From.Format(time.DateOnly), r.To.Format(time.DateOnly))
	return nil
}

// CleanupCommand purges rows past their retention.
type CleanupCommand struct {
	In io.Reader
}

func (c *CleanupCommand) Name() string { return "cleanup" }
func (c *CleanupCommand) Description() string {
	return "Deletes expired views, periods and analytics (--kind, --days)"
}

func (c *CleanupCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	kind := fs.String("kind", "", "views, periods or analytics (all kinds when empty)")
	days := fs.Int("days", 0, "retention in days (defaults to the configured retention)")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days < 0 {
		return fmt.Errorf("--days must be positive")
	}
	if *days > 0 && *kind == "" {
		*kind = string(retention.KindViews)
	}
	if *kind != "" {
		if _, err := retention.ParseKind(*kind); err != nil {
			return err
		}
	}

	if *days > 0 && !*yes && !confirm(c.In, fmt.Sprintf("Delete %s older than %d days?", *kind, *days)) {
		log.Println("Cleanup cancelled")
		return nil
	}
	return purge(ctx, app.Services.Sweeper, *kind, *days)
}

// purge deletes expired rows. With no kind every table is swept with its
// configured retention; days overrides the retention of a single kind.
func purge(ctx context.Context, sweeper *retention.Sweeper, kind string, days int) error {
	now := time.Now().UTC()
	if kind == "" && days == 0 {
		deleted, err := sweeper.PurgeExpired(ctx, now)
		if err != nil {
			return err
		}
		for _, k := range retention.Kinds {
			log.Printf("Deleted %d expired %s rows", deleted[k], k)
		}
		return nil
	}

	if kind == "" {
		kind = string(retention.KindViews)
	}
	k, err := retention.ParseKind(kind)
	if err != nil {
		return err
	}
	if days == 0 {
		days = sweeper.Days(k)
	}
	deleted, err := sweeper.PurgeOlderThan(ctx, k, now.AddDate(0, 0, -days))
	if err != nil {
		return err
	}
	log.Printf("Deleted %d %s rows older than %d days", deleted, k, days)
	return nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with demo traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with demo traffic" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	views := fs.Int("views", 2000, "number of page views to generate")
	days := fs.Int("days", 30, "spread views over this many days")
	seed := fs.Uint64("seed", 0, "random seed for reproducible data (random when 0)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *views <= 0 || *days <= 0 {
		return fmt.Errorf("--views and --days must be positive")
	}

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	svc := app.Services
	se := seeder.NewSeeder(svc.Tracker, svc.Builder, svc.Logger, *views)
	se.Days = *days
	if *seed != 0 {
		se.WithSeed(*seed)
	}

	stats, err := se.Run(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows aggregate and database status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	summary, err := app.Services.Builder.Summary(ctx)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	if err := printJSON(summary); err != nil {
		return err
	}

	sqlDB, err := app.DBManager.GetConnection().DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	stats := sqlDB.Stats()
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConnections)
	log.Printf("- Open Connections: %d", stats.OpenConnections)
	log.Printf("- In Use: %d", stats.InUse)
	log.Printf("- Idle: %d", stats.Idle)

	types := app.Services.Resolvers.Types()
	sort.Strings(types)
	log.Printf("- Registered entity tables: %d %v", len(types), types)
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(os.Stdout)
	return nil
}

func printResult(scope string, result aggregation.Result) {
	log.Printf("Aggregated %s: processed=%d failed=%d skipped=%d in %s",
		scope, result.Processed, result.Failed, result.Skipped, result.Duration.Round(time.Millisecond))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirm asks a yes/no question on in. A non-interactive stdin never
// confirms; use --yes in scripts.
func confirm(in io.Reader, question string) bool {
	if in == nil {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			log.Printf("%s Refusing without a terminal, pass --yes", question)
			return false
		}
		in = os.Stdin
	}
	fmt.Printf("%s [y/N]: ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// parseArgs splits the command name from its arguments
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: engagectl [command] [args...]")
	fmt.Fprintln(w, "Available commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage(os.Stdout)
	os.Exit(1)
}
