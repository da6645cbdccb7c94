package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/doodoori/doodoori-go/internal/claude"
	"github.com/doodoori/doodoori-go/internal/config"
	"github.com/doodoori/doodoori-go/internal/costs"
	"github.com/doodoori/doodoori-go/internal/loop"
	"github.com/doodoori/doodoori-go/internal/notify"
	"github.com/doodoori/doodoori-go/internal/scheduler"
	"github.com/doodoori/doodoori-go/internal/secrets"
	"github.com/doodoori/doodoori-go/internal/spec"
	"github.com/doodoori/doodoori-go/internal/templates"
	"github.com/doodoori/doodoori-go/internal/watch"
)

var (
	genModel    string
	genOutput   string
	genTemplate string
	genVars     []string

	runModel      string
	runIterations int
	runBudget     float64
	runYolo       bool
	runSession    string
	runWorkers    int
	runPrompt     string

	watchPatterns []string
	watchIgnores  []string
	watchDebounce int
	watchClear    bool
	watchInitial  bool
	watchSpecFile string
	watchPrompt   string
)

func init() {
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Work with task spec files",
	}

	generateCmd := &cobra.Command{
		Use:   "generate [DESCRIPTION]",
		Short: "Generate a spec skeleton from a description or template",
		RunE:  runSpecGenerate,
	}
	generateCmd.Flags().StringVar(&genModel, "model", "", "model to pin in the spec (haiku, sonnet, opus)")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "write to file instead of stdout")
	generateCmd.Flags().StringVar(&genTemplate, "template", "", "generate from a task template instead of a description")
	generateCmd.Flags().StringArrayVar(&genVars, "var", nil, "template variable as name=value")
	specCmd.AddCommand(generateCmd)

	specCmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a spec file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSpecValidate,
	})

	specCmd.AddCommand(&cobra.Command{
		Use:   "info FILE",
		Short: "Show a parsed spec's contents and execution order",
		Args:  cobra.ExactArgs(1),
		RunE:  runSpecInfo,
	})
	rootCmd.AddCommand(specCmd)

	runCmd := &cobra.Command{
		Use:   "run [SPEC_FILE]",
		Short: "Run a spec (or ad-hoc prompt) in the completion loop",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&runModel, "model", "", "model override")
	runCmd.Flags().IntVar(&runIterations, "max-iterations", 0, "iteration cap override")
	runCmd.Flags().Float64Var(&runBudget, "budget", 0, "budget limit in USD")
	runCmd.Flags().BoolVar(&runYolo, "yolo", false, "skip permission prompts")
	runCmd.Flags().StringVar(&runSession, "session", "", "session key for a resumable session id")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "parallel workers for multi-task specs")
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "ad-hoc prompt instead of a spec file")
	rootCmd.AddCommand(runCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run a task whenever watched files change",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringArrayVar(&watchPatterns, "pattern", nil, "glob patterns to watch")
	watchCmd.Flags().StringArrayVar(&watchIgnores, "ignore", nil, "glob patterns to ignore")
	watchCmd.Flags().IntVar(&watchDebounce, "debounce", 0, "debounce window in milliseconds")
	watchCmd.Flags().BoolVar(&watchClear, "clear", false, "clear the screen before each run")
	watchCmd.Flags().BoolVar(&watchInitial, "initial", false, "run once immediately on start")
	watchCmd.Flags().StringVar(&watchSpecFile, "spec", "", "spec file to run on changes")
	watchCmd.Flags().StringVar(&watchPrompt, "prompt", "", "prompt to run on changes")
	rootCmd.AddCommand(watchCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultFileName
	}
	return config.Load(path)
}

func runSpecGenerate(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")
	templateIterations := 0

	if genTemplate != "" {
		storage, err := templates.NewStorage()
		if err != nil {
			return err
		}
		t, ok := storage.Get(genTemplate)
		if !ok {
			return fmt.Errorf("template not found: %s", genTemplate)
		}

		values := make(map[string]string, len(genVars))
		for _, pair := range genVars {
			name, value, found := strings.Cut(pair, "=")
			if !found {
				return fmt.Errorf("invalid --var %q, expected name=value", pair)
			}
			values[name] = value
		}
		if err := t.ValidateVariables(values); err != nil {
			return err
		}
		description, err = t.Render(values)
		if err != nil {
			return err
		}
		if genModel == "" {
			genModel = t.DefaultModel
		}
		templateIterations = t.DefaultMaxIterations
	} else if description == "" {
		return fmt.Errorf("a description or --template is required")
	}

	var model *claude.Model
	if genModel != "" {
		parsed, err := claude.ParseModel(genModel)
		if err != nil {
			return err
		}
		model = &parsed
	}

	s := spec.Generate(description, model)
	if templateIterations > 0 {
		s.MaxIterations = &templateIterations
	}
	markdown := s.ToMarkdown()

	if genOutput != "" {
		if err := os.WriteFile(genOutput, []byte(markdown), 0o644); err != nil {
			return err
		}
		fmt.Printf("Spec written to %s\n", genOutput)
		return nil
	}
	fmt.Print(markdown)
	return nil
}

func runSpecValidate(cmd *cobra.Command, args []string) error {
	s, err := spec.ParseFile(args[0])
	if err != nil {
		return err
	}

	result := spec.Validate(s)
	for _, issue := range result.Warnings {
		fmt.Printf("warning: %s\n", issue)
	}
	for _, issue := range result.Errors {
		fmt.Printf("error: %s\n", issue)
	}

	if !result.Valid() {
		return fmt.Errorf("spec has %d error(s)", len(result.Errors))
	}
	fmt.Println("Spec is valid.")
	return nil
}

func runSpecInfo(cmd *cobra.Command, args []string) error {
	s, err := spec.ParseFile(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Title:           %s\n", s.Title)
	fmt.Printf("Objective:       %s\n", firstLine(s.Objective))
	fmt.Printf("Model:           %s\n", s.EffectiveModel())
	fmt.Printf("Max iterations:  %d\n", s.EffectiveMaxIterations())
	fmt.Printf("Promise:         %s\n", s.EffectiveCompletionPromise())
	fmt.Printf("Requirements:    %d\n", len(s.Requirements))
	fmt.Printf("Constraints:     %d\n", len(s.Constraints))
	if s.Budget != nil {
		fmt.Printf("Budget:          $%.2f\n", *s.Budget)
	}

	if !s.IsMultiTask() {
		return nil
	}

	fmt.Printf("Tasks:           %d\n", len(s.Tasks))
	sched := scheduler.New(s)
	order, err := sched.TopologicalSort()
	if err != nil {
		return err
	}
	fmt.Println("Execution order:")
	for i, task := range order {
		deps := ""
		if len(task.DependsOn) > 0 {
			deps = " (after " + strings.Join(task.DependsOn, ", ") + ")"
		}
		fmt.Printf("  %d. %s%s\n", i+1, task.ID, deps)
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
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

	if runPrompt != "" {
		if len(args) > 0 {
			return fmt.Errorf("use either a spec file or --prompt, not both")
		}
		result := executeLoop(ctx, cfg, loopConfigFromFlags(cfg, nil), runPrompt, "adhoc", ledger, firstLine(runPrompt))
		notifyResult(cfg, "adhoc", result)
		return resultError(result)
	}

	if len(args) == 0 {
		return fmt.Errorf("a spec file or --prompt is required")
	}

	s, err := spec.ParseFile(args[0])
	if err != nil {
		return err
	}
	validation := spec.Validate(s)
	for _, issue := range validation.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", issue)
	}
	if !validation.Valid() {
		for _, issue := range validation.Errors {
			fmt.Fprintf(os.Stderr, "error: %s\n", issue)
		}
		return fmt.Errorf("spec has %d error(s)", len(validation.Errors))
	}

	if s.IsMultiTask() {
		return runMultiTask(ctx, cfg, s, ledger)
	}

	taskID := taskIDFor(s)
	result := executeLoop(ctx, cfg, loopConfigFromSpec(cfg, s), s.ToPrompt(), taskID, ledger, s.Title)
	notifyResult(cfg, taskID, result)
	return resultError(result)
}

func runMultiTask(ctx context.Context, cfg *config.Config, s *spec.Spec, ledger *costs.Ledger) error {
	workers := runWorkers
	if workers <= 0 {
		if gs := s.GlobalSettings; gs != nil && gs.MaxParallelWorkers != nil && *gs.MaxParallelWorkers > 0 {
			workers = *gs.MaxParallelWorkers
		} else {
			workers = cfg.Parallel.Workers
		}
	}

	promise := spec.DefaultGlobalPromise
	defaultModel := cfg.Model()
	if gs := s.GlobalSettings; gs != nil {
		if gs.CompletionPromise != "" {
			promise = gs.CompletionPromise
		}
		if gs.DefaultModel != nil {
			defaultModel = *gs.DefaultModel
		}
	}

	fmt.Printf("Running %d tasks with %d worker(s)\n", len(s.Tasks), workers)

	sched := scheduler.New(s)
	err := sched.Run(ctx, workers, func(ctx context.Context, task spec.TaskSpec) error {
		lc := loopConfigFromFlags(cfg, nil)
		lc.Model = task.EffectiveModel(defaultModel)
		lc.MaxIterations = task.EffectiveMaxIterations()
		lc.Completion = loop.Promise(promise)
		lc.SessionKey = task.ID

		result := executeLoop(ctx, cfg, lc, task.ToPrompt(promise), task.ID, ledger, task.Description)
		notifyResult(cfg, task.ID, result)
		return resultError(result)
	})
	if err != nil {
		return err
	}
	fmt.Println("All tasks completed.")
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchSpecFile == "" && watchPrompt == "" {
		return fmt.Errorf("--spec or --prompt is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	wc := watch.DefaultConfig()
	if len(cfg.Watch.Patterns) > 0 {
		wc.Patterns = cfg.Watch.Patterns
	}
	if len(cfg.Watch.IgnorePatterns) > 0 {
		wc.IgnorePatterns = cfg.Watch.IgnorePatterns
	}
	if cfg.Watch.DebounceMS > 0 {
		wc.Debounce = time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
	}
	if len(watchPatterns) > 0 {
		wc.Patterns = watchPatterns
	}
	if len(watchIgnores) > 0 {
		wc.IgnorePatterns = watchIgnores
	}
	if watchDebounce > 0 {
		wc.Debounce = time.Duration(watchDebounce) * time.Millisecond
	}
	wc.ClearScreen = watchClear || cfg.Watch.ClearScreen
	wc.RunInitial = watchInitial || cfg.Watch.RunInitial

	runOnce := func() {
		if wc.ClearScreen {
			fmt.Print("\x1B[2J\x1B[1;1H")
		}
		prompt := watchPrompt
		taskID := "watch"
		description := firstLine(watchPrompt)
		if watchSpecFile != "" {
			s, err := spec.ParseFile(watchSpecFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return
			}
			prompt = s.ToPrompt()
			taskID = taskIDFor(s)
			description = s.Title
		}
		result := executeLoop(ctx, cfg, loopConfigFromFlags(cfg, nil), prompt, taskID, ledger, description)
		fmt.Printf("Run finished: %s. Waiting for changes...\n", result.Status)
	}

	changes := make(chan []string, 1)
	watcher, err := watch.New(wc, func(paths []string) {
		select {
		case changes <- paths:
		default:
		}
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Printf("Watching %s (patterns: %v)\n", wc.BaseDir, wc.Patterns)
	fmt.Println("Waiting for file changes... (Ctrl+C to stop)")

	if wc.RunInitial {
		runOnce()
	}

	runs := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\nWatch stopped after %d run(s).\n", runs)
			return nil
		case paths := <-changes:
			runs++
			fmt.Printf("\nFiles changed (run #%d):\n", runs)
			for _, p := range paths {
				fmt.Printf("  - %s\n", p)
			}
			runOnce()
		}
	}
}

// executeLoop runs one loop to completion, streaming masked output and
// recording the cost entry.
func executeLoop(ctx context.Context, cfg *config.Config, lc loop.Config, prompt, taskID string, ledger *costs.Ledger, description string) *loop.Result {
	masker := secrets.New()
	engine := loop.New(lc)

	events := make(chan loop.Event, 64)
	done := make(chan *loop.Result, 1)
	go func() {
		done <- engine.Run(ctx, prompt, events)
		close(events)
	}()

	for ev := range events {
		switch ev.Kind {
		case loop.EventIterationStarted:
			fmt.Printf("--- iteration %d/%d ---\n", ev.Iteration+1, lc.MaxIterations)
		case loop.EventAgent:
			if ev.Agent != nil && ev.Agent.Text != "" {
				fmt.Println(masker.Mask(ev.Agent.Text))
			}
		case loop.EventIterationCompleted:
			fmt.Printf("    cost so far: $%.4f\n", ev.Usage.TotalCostUSD)
		}
	}
	result := <-done

	entry := costs.Entry{
		TaskID:              taskID,
		Model:               string(lc.Model),
		InputTokens:         int64(result.TotalUsage.InputTokens),
		OutputTokens:        int64(result.TotalUsage.OutputTokens),
		CacheReadTokens:     int64(result.TotalUsage.CacheReadTokens),
		CacheCreationTokens: int64(result.TotalUsage.CacheCreationTokens),
		CostUSD:             result.TotalUsage.TotalCostUSD,
		Status:              string(result.Status),
		Description:         description,
	}
	if err := ledger.Record(entry); err != nil {
		fmt.Fprintf(os.Stderr, "warning: recording cost entry: %v\n", err)
	}

	fmt.Printf("Status: %s (%d iteration(s), $%.4f)\n",
		result.Status, result.Iterations, result.TotalUsage.TotalCostUSD)
	return result
}

func loopConfigFromFlags(cfg *config.Config, model *claude.Model) loop.Config {
	lc := loop.DefaultConfig()
	lc.Model = cfg.Model()
	lc.MaxIterations = cfg.MaxIterations
	lc.BudgetLimit = cfg.BudgetLimit
	lc.YoloMode = cfg.YoloMode

	if model != nil {
		lc.Model = *model
	}
	if runModel != "" {
		if parsed, err := claude.ParseModel(runModel); err == nil {
			lc.Model = parsed
		}
	}
	if runIterations > 0 {
		lc.MaxIterations = runIterations
	}
	if runBudget > 0 {
		budget := runBudget
		lc.BudgetLimit = &budget
	}
	if runYolo {
		lc.YoloMode = true
	}
	lc.SessionKey = runSession
	return lc
}

func loopConfigFromSpec(cfg *config.Config, s *spec.Spec) loop.Config {
	model := s.EffectiveModel()
	lc := loopConfigFromFlags(cfg, &model)
	if runIterations <= 0 {
		lc.MaxIterations = s.EffectiveMaxIterations()
	}
	if runBudget <= 0 && s.Budget != nil {
		budget := *s.Budget
		lc.BudgetLimit = &budget
	}
	lc.Completion = loop.Promise(s.EffectiveCompletionPromise())
	return lc
}

func openLedger(cfg *config.Config) (*costs.Ledger, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return costs.Open(cfg.DatabasePath)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	nc := cfg.Notifications
	if !nc.Enabled {
		return notify.Noop{}
	}

	var notifiers []notify.Notifier
	if nc.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlack(nc.SlackWebhook))
	}
	if nc.Desktop {
		notifiers = append(notifiers, notify.NewDesktop(true))
	}
	if len(notifiers) == 0 {
		return notify.Noop{}
	}
	return notify.NewFiltered(notify.NewMulti(notifiers...), nc.Events)
}

func notifyResult(cfg *config.Config, taskID string, result *loop.Result) {
	if err := buildNotifier(cfg).Send(notify.FromResult(taskID, result)); err != nil {
		fmt.Fprintf(os.Stderr, "warning: notification failed: %v\n", err)
	}
}

func resultError(result *loop.Result) error {
	switch result.Status {
	case loop.StatusCompleted:
		return nil
	case loop.StatusError:
		return fmt.Errorf("run failed: %w", result.Err)
	default:
		return fmt.Errorf("run ended with status %s", result.Status)
	}
}

func taskIDFor(s *spec.Spec) string {
	if s.Title == "" {
		return "spec"
	}
	slug := strings.ToLower(s.Title)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	return strings.Trim(slug, "-")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
