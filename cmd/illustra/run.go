package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/illustra/internal/api"
	"github.com/jackzampolin/illustra/internal/book"
	"github.com/jackzampolin/illustra/internal/config"
	"github.com/jackzampolin/illustra/internal/dashboard"
	"github.com/jackzampolin/illustra/internal/entities"
	"github.com/jackzampolin/illustra/internal/orchestrator"
	"github.com/jackzampolin/illustra/internal/outdir"
	"github.com/jackzampolin/illustra/internal/phases/analyze"
	"github.com/jackzampolin/illustra/internal/phases/enrich"
	"github.com/jackzampolin/illustra/internal/phases/extract"
	"github.com/jackzampolin/illustra/internal/phases/illustrate"
	"github.com/jackzampolin/illustra/internal/progress"
	"github.com/jackzampolin/illustra/internal/providers"
	"github.com/jackzampolin/illustra/internal/retryexec"
	"github.com/jackzampolin/illustra/internal/scene"
	"github.com/jackzampolin/illustra/internal/state"
	"github.com/jackzampolin/illustra/internal/tokens"
)

var runFlags struct {
	book string

	text     bool
	elements bool
	enrich   bool
	images   bool

	chapters       string
	elementsFilter string
	limit          int

	cont        bool
	force       bool
	skipFailed  bool
	retryFailed bool
	clearErrors bool

	model     string
	apiKey    string
	imageKey  string
	provider  string
	outputDir string

	dashboardOn   bool
	dashboardPort int
	dashboardHost string

	dryRun      bool
	check       bool
	healthCheck bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the illustration pipeline over a book",
	Long: `Run ingests a pre-parsed book descriptor and drives it through the
analyze, extract, enrich, and illustrate phases.

Exactly which phases run is selected with --text/--elements/--enrich/--images;
when none are given, --text (analyze) runs alone. A run is always scoped to
one output directory, which holds all of that book's durable state, catalogs,
and generated images; a later run over the same directory resumes rather
than redoing completed work.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.book, "book", "", "path to a parsed book descriptor (JSON) (required)")

	runCmd.Flags().BoolVar(&runFlags.text, "text", false, "run phase analyze")
	runCmd.Flags().BoolVar(&runFlags.elements, "elements", false, "run phase extract")
	runCmd.Flags().BoolVar(&runFlags.enrich, "enrich", false, "run phase enrich")
	runCmd.Flags().BoolVar(&runFlags.images, "images", false, "run phase illustrate")

	runCmd.Flags().StringVar(&runFlags.chapters, "chapters", "", "chapter selection, e.g. 1-3,5 (reading-order positions; default: all)")
	runCmd.Flags().StringVar(&runFlags.elementsFilter, "elements-filter", "", "restrict enrichment to matching entities, syntax type:name (wildcards allowed)")
	runCmd.Flags().IntVar(&runFlags.limit, "limit", 0, "cap the number of chapters processed (0: no cap)")

	runCmd.Flags().BoolVar(&runFlags.cont, "continue", false, "resume from existing state")
	runCmd.Flags().BoolVar(&runFlags.force, "force", false, "reprocess the selected scope even if already completed")
	runCmd.Flags().BoolVar(&runFlags.skipFailed, "skip-failed", false, "keep scheduling remaining chapters after a failure instead of halting")
	runCmd.Flags().BoolVar(&runFlags.retryFailed, "retry-failed", false, "clear failed status for the phases about to run, then retry them")
	runCmd.Flags().BoolVar(&runFlags.clearErrors, "clear-errors", false, "clear failed status across every phase before running")

	runCmd.Flags().StringVar(&runFlags.model, "model", "", "override the text model of the selected text provider")
	runCmd.Flags().StringVar(&runFlags.apiKey, "api-key", "", "override the text-endpoint API key")
	runCmd.Flags().StringVar(&runFlags.imageKey, "image-key", "", "override the image-endpoint API key (defaults to --api-key)")
	runCmd.Flags().StringVar(&runFlags.provider, "provider", "", "provider to use for both text and image calls (default: config defaults)")
	runCmd.Flags().StringVar(&runFlags.outputDir, "output-dir", "", "output directory for this book (default: config defaults.output_dir)")

	runCmd.Flags().BoolVar(&runFlags.dashboardOn, "dashboard", false, "serve a live progress dashboard")
	runCmd.Flags().IntVar(&runFlags.dashboardPort, "dashboard-port", 3000, "dashboard port")
	runCmd.Flags().StringVar(&runFlags.dashboardHost, "dashboard-host", "localhost", "dashboard host")

	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "estimate tokens and cost for the selected scope and exit, making no AI calls")
	runCmd.Flags().BoolVar(&runFlags.check, "check", false, "report state-store consistency problems and exit without running any phase")
	runCmd.Flags().BoolVar(&runFlags.healthCheck, "health-check", false, "probe the configured providers are reachable before running")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: GetLogLevel()}))

	if runFlags.book == "" {
		return fmt.Errorf("illustra: --book is required")
	}

	descriptor, err := book.Load(runFlags.book)
	if err != nil {
		return err
	}

	configFile := cfgFile
	if configFile == "" {
		if _, statErr := os.Stat("config.yaml"); statErr == nil {
			configFile = "config.yaml"
		}
	}
	cfgMgr, err := config.NewManager(configFile)
	if err != nil {
		logger.Warn("config not loaded, using defaults", "error", err)
		cfgMgr = nil
	}
	var cfg *config.Config
	if cfgMgr != nil {
		cfg = cfgMgr.Get()
	} else {
		cfg = config.DefaultConfig()
	}

	outputDirPath := runFlags.outputDir
	if outputDirPath == "" {
		outputDirPath = cfg.Defaults.OutputDir
	}
	dir, err := outdir.New(outputDirPath)
	if err != nil {
		return err
	}
	if err := dir.EnsureExists(); err != nil {
		return err
	}

	providerConfigs := cfg.ToProviderRegistryConfig()

	textProvider := runFlags.provider
	if textProvider == "" {
		textProvider = cfg.Defaults.TextProvider
	}
	imageProvider := runFlags.provider
	if imageProvider == "" {
		imageProvider = cfg.Defaults.ImageProvider
	}

	// --model/--api-key/--image-key override the resolved config+env
	// values for just the providers this run actually uses: CLI flags
	// take precedence over environment and config file values.
	if runFlags.model != "" {
		overrideModel(providerConfigs, textProvider, runFlags.model)
	}
	if runFlags.apiKey != "" {
		overrideAPIKey(providerConfigs, textProvider, runFlags.apiKey)
	}
	if runFlags.imageKey != "" {
		overrideAPIKey(providerConfigs, imageProvider, runFlags.imageKey)
	} else if runFlags.apiKey != "" {
		overrideAPIKey(providerConfigs, imageProvider, runFlags.apiKey)
	}

	providerRegistry, err := providers.NewRegistryFromConfig(logger, providerConfigs)
	if err != nil {
		return err
	}

	if runFlags.healthCheck {
		if err := providerRegistry.HealthCheck(ctx, textProvider); err != nil {
			return err
		}
		if imageProvider != textProvider {
			if err := providerRegistry.HealthCheck(ctx, imageProvider); err != nil {
				return err
			}
		}
	}

	llmClient, err := providerRegistry.LLM(textProvider)
	if err != nil {
		return fmt.Errorf("illustra: text provider: %w", err)
	}
	imageClient, err := providerRegistry.Image(imageProvider)
	if err != nil {
		return fmt.Errorf("illustra: image provider: %w", err)
	}

	model := runFlags.model
	if model == "" {
		model = providerConfigs[textProvider].DefaultModel
	}
	imageModel := providerConfigs[imageProvider].ImageModel

	ledger := tokens.NewCostLedger()
	llmClient = providers.WithLedger(llmClient, textProvider, ledger)
	imageClient = providers.WithLedgerImage(imageClient, imageProvider, ledger)

	var stateStore *state.Store
	if state.Exists(dir.StatePath()) {
		stateStore, err = state.Load(dir.StatePath())
		if err != nil {
			return err
		}
	} else {
		stateStore = state.New(dir.StatePath(), descriptor.SourcePath)
	}

	if runFlags.check {
		_, chaptersErr := os.Stat(dir.ChaptersPath())
		_, elementsErr := os.Stat(dir.ElementsPath())
		problems := stateStore.ValidateConsistency(chaptersErr == nil, elementsErr == nil)
		if saveErr := stateStore.Save(); saveErr != nil {
			logger.Warn("failed to save state after consistency check", "error", saveErr)
		}
		if len(problems) == 0 {
			fmt.Fprintln(os.Stdout, "state store consistent, no problems found")
			return nil
		}
		for _, p := range problems {
			fmt.Fprintln(os.Stdout, p)
		}
		return fmt.Errorf("illustra: %d consistency problem(s) found", len(problems))
	}

	if runFlags.dryRun {
		return runDryRun(descriptor, providerConfigs, textProvider, model)
	}

	var registry *entities.Registry
	if _, statErr := os.Stat(dir.RegistryPath()); statErr == nil {
		registry, err = entities.Load(dir.RegistryPath())
		if err != nil {
			return err
		}
	} else {
		registry = entities.New(dir.RegistryPath())
	}

	var catalog *scene.Catalog
	if _, statErr := os.Stat(dir.ChaptersPath()); statErr == nil {
		catalog, err = scene.LoadCatalog(dir.ChaptersPath())
		if err != nil {
			return err
		}
	} else {
		catalog = scene.NewCatalog(dir.ChaptersPath())
	}

	bus := progress.NewBus()
	bus.Subscribe(progress.NewLogSink(dir.ProgressPath()))
	var dashSink *progress.DashboardSink
	if runFlags.dashboardOn {
		dashSink = progress.NewDashboardSink(logger)
		bus.Subscribe(dashSink)
	}

	matchCache := entities.NewMatchCache(1000, 24*time.Hour)
	matcher := entities.NewMatcher(llmClient, matchCache, logger)
	executor := retryexec.New(retryexec.Config{Logger: logger})

	var elementsFilter *book.ElementsFilter
	if runFlags.elementsFilter != "" {
		parsed, err := book.ParseElementsFilter(runFlags.elementsFilter)
		if err != nil {
			return err
		}
		elementsFilter = &parsed
	}

	analyzePhase := analyze.New(analyze.Config{
		LLM: llmClient, Model: model, Executor: executor,
		Registry: registry, Matcher: matcher, State: stateStore, Bus: bus, Catalog: catalog,
		Concurrency: cfg.Defaults.Concurrency,
		Force:       runFlags.force, SkipFailed: runFlags.skipFailed,
		Logger: logger,
	})
	extractPhase := extract.New(extract.Config{
		LLM: llmClient, Model: model, Executor: executor,
		Registry: registry, Matcher: matcher, State: stateStore, Bus: bus,
		Logger: logger,
	})
	enrichPhase := enrich.New(enrich.Config{
		Registry: registry, State: stateStore, Bus: bus, Catalog: catalog,
		Filter: elementsFilter,
	})
	illustratePhase := illustrate.New(illustrate.Config{
		LLM: llmClient, Model: model, ImageClient: imageClient, ImageModel: imageModel,
		Executor: executor, State: stateStore, Bus: bus, Catalog: catalog, OutDir: dir,
		Concurrency: cfg.Defaults.Concurrency, StyleBootstrapCount: cfg.Defaults.StyleBootstrapCount,
		Force: runFlags.force, SkipFailed: runFlags.skipFailed,
		Logger: logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Descriptor: descriptor, State: stateStore, Bus: bus,
		Analyze: analyzePhase, Extract: extractPhase, Enrich: enrichPhase, Illustrate: illustratePhase,
		Out: os.Stdout,
	})

	var dashServer *dashboard.Server
	if runFlags.dashboardOn {
		dashServer, err = dashboard.New(dashboard.Config{
			Addr:          fmt.Sprintf("%s:%d", runFlags.dashboardHost, runFlags.dashboardPort),
			Logger:        logger,
			State:         stateStore,
			Entities:      registry,
			DashboardSink: dashSink,
			Ledger:        ledger,
			BookTitle:     descriptor.Title,
			StartTime:     time.Now(),
		})
		if err != nil {
			return err
		}
		bus.Subscribe(dashServer)
		go func() {
			if startErr := dashServer.Start(ctx); startErr != nil {
				logger.Warn("dashboard server stopped", "error", startErr)
			}
		}()
	}

	summary, runErr := orch.Run(ctx, orchestrator.Options{
		RunText: runFlags.text, RunElements: runFlags.elements, RunEnrich: runFlags.enrich, RunImages: runFlags.images,
		ChapterSelection: runFlags.chapters, Limit: runFlags.limit,
		Continue: runFlags.cont, RetryFailed: runFlags.retryFailed, ClearErrors: runFlags.clearErrors,
	})

	stateStore.SetStats(toProviderStats(ledger.Totals()))
	if saveErr := stateStore.Save(); saveErr != nil {
		logger.Warn("failed to save state", "error", saveErr)
	}
	if saveErr := registry.Save(); saveErr != nil {
		logger.Warn("failed to save entity registry", "error", saveErr)
	}
	if saveErr := registry.SaveMarkdown(dir.ElementsPath()); saveErr != nil {
		logger.Warn("failed to save Elements.md", "error", saveErr)
	}
	if saveErr := catalog.Save(); saveErr != nil {
		logger.Warn("failed to save Chapters.md", "error", saveErr)
	}
	if saveErr := writeContentsIndex(dir, descriptor, summary); saveErr != nil {
		logger.Warn("failed to save Contents.md", "error", saveErr)
	}

	if runErr != nil {
		return runErr
	}

	return api.Output(summary)
}

// overrideModel sets provider's DefaultModel in place, adding an entry
// if the named provider wasn't already configured (e.g. an ad hoc
// --provider pointed at something not in the config file).
func overrideModel(configs map[string]providers.ClientConfig, provider, model string) {
	c := configs[provider]
	c.DefaultModel = model
	configs[provider] = c
}

// overrideAPIKey sets provider's APIKey in place.
func overrideAPIKey(configs map[string]providers.ClientConfig, provider, key string) {
	c := configs[provider]
	c.APIKey = key
	configs[provider] = c
}

// toProviderStats converts a cost ledger's snapshot to the shape
// persisted in the state document, keeping internal/tokens and
// internal/state decoupled from one another.
func toProviderStats(totals map[string]tokens.ProviderTotal) map[string]state.ProviderStats {
	out := make(map[string]state.ProviderStats, len(totals))
	for provider, t := range totals {
		out[provider] = state.ProviderStats{
			Calls:            t.Calls,
			PromptTokens:     t.PromptTokens,
			CompletionTokens: t.CompletionTokens,
			CostUSD:          t.CostUSD,
		}
	}
	return out
}

// dryRunReport is the --dry-run CLI output: a per-chapter token/cost
// estimate for the analyze and extract phases (the two that send full
// chapter content to the text model), with a combined total. It never
// touches state, the entity registry, or any provider.
type dryRunReport struct {
	Provider          string                  `json:"provider" yaml:"provider"`
	Model             string                  `json:"model" yaml:"model"`
	Chapters          []dryRunChapterEstimate `json:"chapters" yaml:"chapters"`
	TotalTokens       int                     `json:"totalTokens" yaml:"totalTokens"`
	EstimatedCost     float64                 `json:"estimatedCostUsd" yaml:"estimatedCostUsd"`
	ChaptersOverLimit int                     `json:"chaptersOverLimit,omitempty" yaml:"chaptersOverLimit,omitempty"`
}

type dryRunChapterEstimate struct {
	Chapter  int                 `json:"chapter" yaml:"chapter"`
	Title    string              `json:"title" yaml:"title"`
	Estimate tokens.CallEstimate `json:"estimate" yaml:"estimate"`
}

// expectedSceneOutputTokens assumes a bounded-size structured JSON
// response per chapter (scene breakdown + entity list), since the
// actual output is unknown until the call is made.
const expectedSceneOutputTokens = 1500

// runDryRun estimates tokens/cost for every selected chapter against
// the resolved text provider/model without making any AI calls, and
// prints the report via the configured output format.
func runDryRun(descriptor book.Descriptor, providerConfigs map[string]providers.ClientConfig, textProvider, model string) error {
	numbers := descriptor.AllNumbers()
	if runFlags.chapters != "" {
		positions, err := book.ParseChapterSelection(runFlags.chapters)
		if err != nil {
			return err
		}
		numbers = descriptor.ResolveSelection(positions)
	}
	if runFlags.limit > 0 && len(numbers) > runFlags.limit {
		numbers = numbers[:runFlags.limit]
	}

	pricing := tokens.PricingFor(model)
	contextLength := tokens.ContextLengthFor(model)

	report := dryRunReport{Provider: textProvider, Model: model}
	for _, n := range numbers {
		ch, ok := descriptor.ByNumber(n)
		if !ok {
			continue
		}
		est := tokens.EstimateCall(ch.Content, expectedSceneOutputTokens, contextLength, pricing, 0.9)
		report.Chapters = append(report.Chapters, dryRunChapterEstimate{Chapter: n, Title: ch.Title, Estimate: est})
		report.TotalTokens += est.TotalTokens
		report.EstimatedCost += est.EstimatedCost
		if est.WillExceedLimit {
			report.ChaptersOverLimit++
		}
	}

	return api.Output(report)
}

// writeContentsIndex writes the top-level run index: book identity, the
// number of chapters processed this run, and pointers to the scene and
// entity catalogs. It lists no per-chapter scene or entity counts.
func writeContentsIndex(dir *outdir.Dir, descriptor book.Descriptor, summary orchestrator.Summary) error {
	var b []byte
	b = append(b, []byte(fmt.Sprintf("# %s\n\n", descriptor.Title))...)
	if descriptor.Author != "" {
		b = append(b, []byte(fmt.Sprintf("*by %s*\n\n", descriptor.Author))...)
	}
	b = append(b, []byte(fmt.Sprintf("%d chapters processed this run.\n\n", len(summary.ChapterNumbers)))...)
	b = append(b, []byte("See `Chapters.md` for the scene catalog and `Elements.md` for the entity catalog.\n")...)
	return os.WriteFile(dir.ContentsPath(), b, 0o644)
}
