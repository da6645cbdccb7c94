package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/doodoori/doodoori-go/internal/batch"
	"github.com/doodoori/doodoori-go/internal/config"
	"github.com/doodoori/doodoori-go/internal/costs"
	"github.com/doodoori/doodoori-go/internal/loop"
	"github.com/doodoori/doodoori-go/internal/scheduler"
	"github.com/doodoori/doodoori-go/internal/spec"
	"github.com/doodoori/doodoori-go/internal/templates"
	"github.com/doodoori/doodoori-go/tui"
)

var (
	costDays   int
	costTask   string
	costLimit  int
	costFormat string

	templateVars     []string
	templateCategory string
	templateTag      string
)

func init() {
	costCmd := &cobra.Command{
		Use:   "cost",
		Short: "Show recorded run costs",
		RunE:  runCostShow,
	}
	costCmd.Flags().IntVar(&costDays, "days", 7, "days of history to show")
	costCmd.Flags().StringVar(&costTask, "task", "", "show entries for one task")
	costCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all cost history",
		RunE:  runCostClear,
	})
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent runs",
		RunE:  runCostRecent,
	}
	recentCmd.Flags().IntVar(&costLimit, "limit", 20, "number of entries to show")
	costCmd.AddCommand(recentCmd)
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export cost entries as JSON or YAML",
		RunE:  runCostExport,
	}
	exportCmd.Flags().StringVar(&costFormat, "format", "json", "output format (json or yaml)")
	costCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(costCmd)

	templateCmd := &cobra.Command{
		Use:   "template",
		Short: "Manage task templates",
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available templates",
		RunE:  runTemplateList,
	}
	listCmd.Flags().StringVar(&templateCategory, "category", "", "filter by category")
	listCmd.Flags().StringVar(&templateTag, "tag", "", "filter by tag")
	templateCmd.AddCommand(listCmd)

	templateCmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Show a template's prompt and variables",
		Args:  cobra.ExactArgs(1),
		RunE:  runTemplateShow,
	})

	renderCmd := &cobra.Command{
		Use:   "render NAME",
		Short: "Render a template with variables",
		Args:  cobra.ExactArgs(1),
		RunE:  runTemplateRender,
	}
	renderCmd.Flags().StringArrayVar(&templateVars, "var", nil, "variable as name=value")
	templateCmd.AddCommand(renderCmd)

	templateCmd.AddCommand(&cobra.Command{
		Use:   "save FILE",
		Short: "Save a template YAML file into the user template directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runTemplateSave,
	})

	templateCmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a user template",
		Args:  cobra.ExactArgs(1),
		RunE:  runTemplateDelete,
	})
	rootCmd.AddCommand(templateCmd)

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Run specs on cron schedules",
	}
	batchCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured batch entries",
		RunE:  runBatchList,
	})
	batchCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the batch scheduler in the foreground",
		RunE:  runBatchStart,
	})
	rootCmd.AddCommand(batchCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "dashboard [SPEC_FILE]",
		Short: "Run a spec with the live dashboard",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDashboard,
	})
}

func runCostShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	if costTask != "" {
		entries, err := ledger.TaskEntries(costTask)
		if err != nil {
			return err
		}
		total, err := ledger.TaskTotal(costTask)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tMODEL\tSTATUS\tCOST")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t$%.4f\n",
				e.RecordedAt.Format("2006-01-02 15:04"), e.Model, e.Status, e.CostUSD)
		}
		w.Flush()
		fmt.Printf("\nTotal for %s: $%.4f\n", costTask, total)
		return nil
	}

	summaries, err := ledger.DailySummaries(costDays)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No cost history yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tCOST\tRUNS\tINPUT TOK\tOUTPUT TOK")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t$%.4f\t%d\t%d\t%d\n",
			s.Date, s.TotalCostUSD, s.TaskCount, s.InputTokens, s.OutputTokens)
	}
	w.Flush()

	total, err := ledger.TotalCost()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	monthly, err := ledger.MonthlyTotal(now.Year(), now.Month())
	if err != nil {
		return err
	}
	fmt.Printf("\nThis month: $%.4f  All time: $%.4f\n", monthly, total)
	return nil
}

func runCostClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	if err := ledger.Clear(); err != nil {
		return err
	}
	fmt.Println("Cost history cleared.")
	return nil
}

func runCostRecent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	entries, err := ledger.Recent(costLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No cost history yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTASK\tMODEL\tSTATUS\tCOST")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t$%.4f\n",
			e.RecordedAt.Format("2006-01-02 15:04"), e.TaskID, e.Model, e.Status, e.CostUSD)
	}
	return w.Flush()
}

func runCostExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	entries, err := ledger.Recent(0)
	if err != nil {
		return err
	}

	switch costFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(entries)
	default:
		return fmt.Errorf("unknown format %q, expected json or yaml", costFormat)
	}
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	storage, err := templates.NewStorage()
	if err != nil {
		return err
	}

	var list []templates.Template
	switch {
	case templateCategory != "":
		list = storage.ByCategory(templates.Category(templateCategory))
	case templateTag != "":
		list = storage.ByTag(templateTag)
	default:
		list = storage.List()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tDESCRIPTION")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.Category, t.Description)
	}
	return w.Flush()
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	storage, err := templates.NewStorage()
	if err != nil {
		return err
	}
	t, ok := storage.Get(args[0])
	if !ok {
		return fmt.Errorf("template not found: %s", args[0])
	}

	fmt.Printf("Name:        %s\n", t.Name)
	fmt.Printf("Category:    %s\n", t.Category)
	fmt.Printf("Description: %s\n", t.Description)
	if len(t.Tags) > 0 {
		fmt.Printf("Tags:        %s\n", strings.Join(t.Tags, ", "))
	}
	if len(t.Variables) > 0 {
		fmt.Println("Variables:")
		for _, v := range t.Variables {
			required := ""
			if v.Required {
				required = " (required)"
			}
			if v.Default != "" {
				required = fmt.Sprintf(" (default: %s)", v.Default)
			}
			fmt.Printf("  {%s}%s - %s\n", v.Name, required, v.Description)
		}
	}
	fmt.Printf("\n%s\n", t.Prompt)
	return nil
}

func runTemplateRender(cmd *cobra.Command, args []string) error {
	storage, err := templates.NewStorage()
	if err != nil {
		return err
	}
	t, ok := storage.Get(args[0])
	if !ok {
		return fmt.Errorf("template not found: %s", args[0])
	}

	values := make(map[string]string, len(templateVars))
	for _, pair := range templateVars {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("invalid --var %q, expected name=value", pair)
		}
		values[name] = value
	}

	if err := t.ValidateVariables(values); err != nil {
		return err
	}
	rendered, err := t.Render(values)
	if err != nil {
		return err
	}
	fmt.Print(rendered)
	return nil
}

func runTemplateSave(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var t templates.Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}
	if t.Name == "" {
		return fmt.Errorf("template in %s has no name", args[0])
	}

	storage, err := templates.NewStorage()
	if err != nil {
		return err
	}
	if err := storage.SaveUser(t); err != nil {
		return err
	}
	fmt.Printf("Saved template %s\n", t.Name)
	return nil
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	storage, err := templates.NewStorage()
	if err != nil {
		return err
	}
	if err := storage.DeleteUser(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted template %s\n", args[0])
	return nil
}

func runBatchList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := batch.FromConfig(cfg.Batch)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No enabled batch entries in doodoori.toml.")
		return nil
	}

	sched, err := batch.NewScheduler(entries)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSPEC\tSCHEDULE\tNEXT RUN")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Name, e.SpecFile, e.Schedule,
			sched.NextRun(e.Name).Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runBatchStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := batch.FromConfig(cfg.Batch)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no enabled batch entries in doodoori.toml")
	}

	sched, err := batch.NewScheduler(entries)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	fmt.Printf("Batch scheduler started with %d entrie(s). Ctrl+C to stop.\n", len(entries))
	sched.Start(ctx, func(entry batch.Entry) error {
		fmt.Printf("Starting batch %s (%s)\n", entry.Name, entry.SpecFile)
		s, err := spec.ParseFile(entry.SpecFile)
		if err != nil {
			return err
		}
		if result := spec.Validate(s); !result.Valid() {
			return fmt.Errorf("spec %s is invalid", entry.SpecFile)
		}
		if s.IsMultiTask() {
			return runMultiTask(ctx, cfg, s, ledger)
		}
		result := executeLoop(ctx, cfg, loopConfigFromSpec(cfg, s), s.ToPrompt(), entry.Name, ledger, s.Title)
		notifyResult(cfg, entry.Name, result)
		return resultError(result)
	})
	return nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	summaries, err := ledger.DailySummaries(14)
	if err != nil {
		return err
	}

	var s *spec.Spec
	if len(args) == 1 {
		s, err = spec.ParseFile(args[0])
		if err != nil {
			return err
		}
		if result := spec.Validate(s); !result.Valid() {
			for _, issue := range result.Errors {
				fmt.Fprintf(os.Stderr, "error: %s\n", issue)
			}
			return fmt.Errorf("spec has %d error(s)", len(result.Errors))
		}
	}

	model := tui.NewModel(tui.ModelConfig{
		Spec:       s,
		MaxWorkers: cfg.Parallel.Workers,
		Summaries:  summaries,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s != nil {
		go runSpecForDashboard(ctx, cfg, s, ledger, program)
	}

	_, err = program.Run()
	return err
}

// runSpecForDashboard executes the spec while forwarding loop events
// to the TUI program.
func runSpecForDashboard(ctx context.Context, cfg *config.Config, s *spec.Spec, ledger *costs.Ledger, program *tea.Program) {
	forward := func(taskID string, events <-chan loop.Event) {
		for ev := range events {
			program.Send(tui.LoopEventMsg{TaskID: taskID, Event: ev})
		}
	}

	runTask := func(ctx context.Context, taskID string, lc loop.Config, prompt, description string) *loop.Result {
		engine := loop.New(lc)
		events := make(chan loop.Event, 64)
		done := make(chan *loop.Result, 1)
		go func() {
			done <- engine.Run(ctx, prompt, events)
			close(events)
		}()
		forward(taskID, events)
		result := <-done

		ledger.Record(costs.Entry{
			TaskID:      taskID,
			Model:       string(lc.Model),
			CostUSD:     result.TotalUsage.TotalCostUSD,
			Status:      string(result.Status),
			Description: description,
		})
		return result
	}

	if !s.IsMultiTask() {
		result := runTask(ctx, "main", loopConfigFromSpec(cfg, s), s.ToPrompt(), s.Title)
		program.Send(tui.RunFinishedMsg{Status: result.Status})
		return
	}

	promise := spec.DefaultGlobalPromise
	defaultModel := cfg.Model()
	workers := cfg.Parallel.Workers
	if gs := s.GlobalSettings; gs != nil {
		if gs.CompletionPromise != "" {
			promise = gs.CompletionPromise
		}
		if gs.DefaultModel != nil {
			defaultModel = *gs.DefaultModel
		}
		if gs.MaxParallelWorkers != nil && *gs.MaxParallelWorkers > 0 {
			workers = *gs.MaxParallelWorkers
		}
	}

	sched := scheduler.New(s)
	err := sched.Run(ctx, workers, func(ctx context.Context, task spec.TaskSpec) error {
		lc := loop.DefaultConfig()
		lc.Model = task.EffectiveModel(defaultModel)
		lc.MaxIterations = task.EffectiveMaxIterations()
		lc.Completion = loop.Promise(promise)
		lc.BudgetLimit = cfg.BudgetLimit
		lc.YoloMode = cfg.YoloMode
		lc.SessionKey = task.ID

		result := runTask(ctx, task.ID, lc, task.ToPrompt(promise), task.Description)
		return resultError(result)
	})

	status := loop.StatusCompleted
	if err != nil {
		status = loop.StatusError
	}
	program.Send(tui.RunFinishedMsg{Status: status})
}
