package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/llmgate/catalog"
	"github.com/aschepis/backscratcher/llmgate/config"
	"github.com/aschepis/backscratcher/llmgate/credentials"
	"github.com/aschepis/backscratcher/llmgate/factory"
	"github.com/aschepis/backscratcher/llmgate/gateway"
	llmgatelogger "github.com/aschepis/backscratcher/llmgate/logger"
	"github.com/aschepis/backscratcher/llmgate/middleware"
	"github.com/aschepis/backscratcher/llmgate/provider"
	"github.com/aschepis/backscratcher/llmgate/providererrors"
	"github.com/aschepis/backscratcher/llmgate/quota"
	"github.com/aschepis/backscratcher/llmgate/reasoning"
)

const usage = `Usage: llmgate [flags] <command> [args]

Commands:
  generate   Generate text with a model
  providers  List providers and the models they serve
  validate   Check the format of the API keys found in the environment

Flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("llmgate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", config.GetConfigPath(), "Path to config file")
		envFile    = fs.String("env", ".env", "Path to a .env file loaded before the config")
		logFile    = fs.String("logfile", "", "Path to log file. If not set, logs to stdout")
		pretty     = fs.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if *logFile == "" {
		*logFile = cfg.Log.File
	}
	logger, err := llmgatelogger.InitWithLevel(cfg.Log.Level, *logFile, *pretty || cfg.Log.Pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "generate":
		return runGenerate(ctx, cfg, rest, stdout, stderr, logger)
	case "providers":
		return runProviders(rest, stdout, logger)
	case "validate":
		return runValidate(rest, stdout, logger)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command: %q", cmd)
	}
}

// envBag collects the provider credentials present in the environment.
func envBag() credentials.Bag {
	raw := make(map[string]string)
	for _, p := range provider.All() {
		if v, ok := os.LookupEnv(credentials.KeyName(p)); ok {
			raw[credentials.KeyName(p)] = v
		}
	}
	return credentials.MapFrontendToProvider(raw)
}

func newGateway(cfg *config.Config, logger zerolog.Logger) (*gateway.Gateway, func() error, error) {
	validator, err := credentials.NewValidator(0, logger)
	if err != nil {
		return nil, nil, err
	}
	resolver := credentials.NewResolver(credentials.StaticServerCredentials{
		provider.Google: cfg.ServerCredentials.GeminiAPIKey,
	}, logger)

	baseURLs := make(map[provider.Provider]string, len(cfg.BaseURLs))
	for id, u := range cfg.BaseURLs {
		p, err := provider.Parse(id)
		if err != nil {
			return nil, nil, fmt.Errorf("base_urls: %w", err)
		}
		baseURLs[p] = u
	}
	f := factory.New(resolver, validator, factory.Config{
		AllowRemoteLMStudio: cfg.AllowRemoteLMStudio,
		BaseURLs:            baseURLs,
	}, logger)

	var ledger quota.Consumer
	closer := func() error { return nil }
	switch cfg.Quota.Driver {
	case config.QuotaDriverSQLite:
		l, err := quota.OpenSQLite(cfg.Quota.DSN, cfg.QuotaLimits(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open quota ledger: %w", err)
		}
		ledger, closer = l, l.Close
	default:
		ledger = quota.NewMemoryLedger(cfg.QuotaLimits())
	}

	g := gateway.New(f, resolver, gateway.Config{
		Composer: middleware.NewComposer(middleware.ComposerOptions{
			CacheSize: cfg.Middleware.CacheSize,
			CacheTTL:  cfg.Middleware.CacheTTL,
		}, logger),
		Quota:           ledger,
		ResultCacheSize: cfg.Generation.CacheSize,
		ResultCacheTTL:  cfg.Generation.CacheTTL,
	}, logger)
	return g, closer, nil
}

func runGenerate(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		model        = fs.String("model", "", "Model id (defaults to the model serving -mode)")
		mode         = fs.String("mode", "", "Chat mode: deep, pro or a model id")
		tier         = fs.String("tier", string(gateway.TierFree), "Subscription tier: FREE or PLUS")
		userID       = fs.String("user", "", "User id for quota accounting")
		think        = fs.Bool("think", false, "Request reasoning")
		budget       = fs.Int("budget", 0, "Reasoning token budget")
		showThinking = fs.Bool("show-thinking", false, "Print reasoning to stderr")
		search       = fs.Bool("search", false, "Enable search grounding on Gemini models")
		maxSteps     = fs.Int("max-steps", gateway.DefaultMaxSteps, "Maximum model round trips")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return fmt.Errorf("generate needs a prompt")
	}
	if *model == "" {
		*model = catalog.FromChatMode(*mode)
	}

	g, closeLedger, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLedger() //nolint:errcheck // No remedy for ledger close errors

	bag := envBag()
	req := gateway.TextRequest{
		Prompt:      prompt,
		Model:       *model,
		Credentials: bag,
		Thinking:    reasoning.ThinkingMode{Enabled: *think, Budget: *budget},
		Tier:        gateway.Tier(strings.ToUpper(*tier)),
		UserID:      *userID,
		Mode:        *mode,
		MaxSteps:    *maxSteps,

		SearchGrounding:  *search,
		MiddlewareConfig: cfg.MiddlewarePreset(),
		OnChunk: func(chunk, _ string) {
			fmt.Fprint(stdout, chunk)
		},
	}
	if *showThinking {
		req.OnReasoning = func(chunk, _ string) {
			fmt.Fprint(stderr, chunk)
		}
	}

	if _, err := g.GenerateText(ctx, req); err != nil {
		m, _ := catalog.Lookup(*model)
		msg := providererrors.GenerateErrorMessage(err, providererrors.Context{
			Provider:   m.Provider,
			Model:      *model,
			UserID:     *userID,
			HasAPIKey:  bag.Has(m.Provider),
			Privileged: req.Tier.Privileged(),
		})
		fmt.Fprintf(stderr, "%s: %s\n", msg.Title, msg.Message)
		if msg.Action != "" {
			fmt.Fprintln(stderr, msg.Action)
		}
		return err
	}
	fmt.Fprintln(stdout)
	return nil
}

func runProviders(args []string, stdout io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("providers", flag.ContinueOnError)
	models := fs.Bool("models", false, "List the models of each provider")
	if err := fs.Parse(args); err != nil {
		return err
	}

	validator, err := credentials.NewValidator(0, logger)
	if err != nil {
		return err
	}
	available := lo.SliceToMap(validator.AvailableProviders(envBag()), func(p provider.Provider) (provider.Provider, bool) {
		return p, true
	})
	byProvider := lo.GroupBy(catalog.Models(), func(m catalog.Model) provider.Provider { return m.Provider })

	for _, p := range provider.All() {
		status := "no key"
		if available[p] {
			status = "ready"
		}
		fmt.Fprintf(stdout, "%-12s %-22s %-8s %d models\n", p, p.DisplayName(), status, len(byProvider[p]))
		if *models {
			for _, m := range byProvider[p] {
				fmt.Fprintf(stdout, "  %-45s %s\n", m.ID, m.Name)
			}
		}
	}
	return nil
}

func runValidate(args []string, stdout io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	validator, err := credentials.NewValidator(0, logger)
	if err != nil {
		return err
	}
	bag := envBag()
	invalid := 0
	for _, p := range provider.All() {
		if !bag.Has(p) {
			continue
		}
		res := validator.ValidateProviderKey(p, bag)
		if res.Valid {
			fmt.Fprintf(stdout, "%-12s ok\n", p)
			continue
		}
		invalid++
		fmt.Fprintf(stdout, "%-12s invalid: %s (expected %s)\n", p, res.Error, res.ExpectedFormat)
	}
	if invalid > 0 {
		return fmt.Errorf("%d invalid key(s)", invalid)
	}
	return nil
}
