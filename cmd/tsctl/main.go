// Command tsctl runs threadsense operations from the terminal: one-off
// scrapes and analyses, cookie capture and maintenance tasks.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/ibeckermayer/threadsense/internal/app"
	"github.com/ibeckermayer/threadsense/internal/auth"
	browseropts "github.com/ibeckermayer/threadsense/internal/browser"
	"github.com/ibeckermayer/threadsense/internal/config"
	"github.com/ibeckermayer/threadsense/internal/logging"
	"github.com/ibeckermayer/threadsense/internal/scraper"
	"github.com/ibeckermayer/threadsense/internal/store"
	"github.com/ibeckermayer/threadsense/internal/types"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "scrape":
		err = runScrape(ctx, args)
	case "analyze":
		err = runAnalyze(ctx, args)
	case "replay":
		err = runReplay(ctx, args)
	case "predict":
		err = runPredict(ctx, args)
	case "login":
		err = runLogin(ctx, args)
	case "logout":
		err = runLogout()
	case "bot-test":
		err = runBotTest(ctx)
	case "init-config":
		err = runInitConfig(args)
	case "open":
		if len(args) < 1 {
			fmt.Println("Usage: tsctl open <config|cache|report>")
			os.Exit(1)
		}
		err = runOpen(args[0])
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "tsctl %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: tsctl <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  scrape <url>       Scrape a post and its comments, print JSON")
	fmt.Println("  analyze <url>      Scrape and classify comments (--format json|text|html, --insights)")
	fmt.Println("  replay [file]      Classify a dumped scrape result again (latest by default)")
	fmt.Println("  predict <text>     Classify a single text")
	fmt.Println("  login              Log in by hand in a visible browser and save cookies")
	fmt.Println("  logout             Delete saved cookies")
	fmt.Println("  bot-test           Open bot.sannysoft.com to audit browser fingerprint")
	fmt.Println("  init-config        Write the default config file (--force to overwrite)")
	fmt.Println("  open config        Open config file in default editor")
	fmt.Println("  open cache         Open cache directory in file explorer")
	fmt.Println("  open report        Open the latest HTML report")
}

// setup loads config and a logger; overrides run on the config first
func setup(overrides ...func(*config.Config)) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// scrapeFlags are shared by scrape and analyze
type scrapeFlags struct {
	email       string
	password    string
	maxComments int
	headful     bool
	verbose     bool
}

func (f *scrapeFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.email, "email", "", "Facebook email (defaults to config / FB_EMAIL)")
	fs.StringVar(&f.password, "password", "", "Facebook password (defaults to config / FB_PASSWORD)")
	fs.IntVarP(&f.maxComments, "max-comments", "n", 0, "comment cap (defaults to config)")
	fs.BoolVar(&f.headful, "headful", false, "show the browser window")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
}

func (f *scrapeFlags) apply(cfg *config.Config) {
	if f.maxComments > 0 {
		cfg.Scraping.MaxComments = f.maxComments
	}
	if f.headful {
		cfg.Scraping.Headless = false
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}
}

func (f *scrapeFlags) request(postURL string) scraper.Request {
	return scraper.Request{
		PostURL:     postURL,
		Credentials: auth.Credentials{Email: f.email, Password: f.password},
	}
}

// newApp builds the application the same way the server does
func newApp(cfg *config.Config, log *logrus.Logger) (*app.App, func(), error) {
	cleanup := func() {}
	var archive app.Archive
	if cfg.Archive.Enabled {
		dbPath, err := cfg.Archive.DBPath()
		if err != nil {
			return nil, nil, err
		}
		st, err := store.New(dbPath)
		if err != nil {
			return nil, nil, err
		}
		archive = st
		cleanup = func() { st.Close() }
	}

	a, err := app.New(cfg, app.NewFactory(log), archive, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}

func runScrape(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("scrape", pflag.ExitOnError)
	var sf scrapeFlags
	sf.register(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tsctl scrape <post-url> [flags]")
	}

	cfg, log, err := setup(sf.apply)
	if err != nil {
		return err
	}
	a, cleanup, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := a.ScrapePost(ctx, sf.request(fs.Arg(0)))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("analyze", pflag.ExitOnError)
	var sf scrapeFlags
	sf.register(fs)
	format := fs.StringP("format", "f", "json", "output format: json, text or html")
	withInsights := fs.Bool("insights", false, "add a Claude summary to the report")
	open := fs.Bool("open", false, "open the html report in the browser")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tsctl analyze <post-url> [flags]")
	}
	if err := checkFormat(*format); err != nil {
		return err
	}

	cfg, log, err := setup(sf.apply, func(c *config.Config) {
		if *withInsights {
			c.Insights.Enabled = true
		}
	})
	if err != nil {
		return err
	}
	a, cleanup, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	an, err := a.AnalyzePost(ctx, sf.request(fs.Arg(0)))
	if err != nil {
		return err
	}

	summary := ""
	if *withInsights {
		if summary, err = a.Summarize(ctx, nil, an.Comments); err != nil {
			log.WithError(err).Warn("insights failed, continuing without")
		}
	}

	return writeAnalysis(a, an, summary, *format, *open)
}

// runReplay classifies a scrape result from the step cache without opening
// a browser
func runReplay(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("replay", pflag.ExitOnError)
	format := fs.StringP("format", "f", "json", "output format: json, text or html")
	open := fs.Bool("open", false, "open the html report in the browser")
	fs.Parse(args)
	if fs.NArg() > 1 {
		return fmt.Errorf("usage: tsctl replay [result.json] [flags]")
	}
	if err := checkFormat(*format); err != nil {
		return err
	}

	var (
		result types.ScrapeResult
		path   string
		err    error
	)
	if fs.NArg() == 1 {
		path = fs.Arg(0)
		result, err = store.LoadStepOutput[types.ScrapeResult](path)
	} else {
		result, path, err = store.LoadLatestStepOutput[types.ScrapeResult](store.StepResult)
	}
	if err != nil {
		return fmt.Errorf("failed to load scrape result: %w", err)
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	log.WithField("path", path).Info("replaying scrape result")

	a, cleanup, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	an, err := a.AnalyzeResult(ctx, &result)
	if err != nil {
		return err
	}
	return writeAnalysis(a, an, "", *format, *open)
}

func checkFormat(format string) error {
	switch format {
	case "json", "text", "html":
		return nil
	}
	return fmt.Errorf("unknown format: %s", format)
}

// writeAnalysis prints an analysis as JSON or text, or saves an html report
func writeAnalysis(a *app.App, an *app.Analysis, summary, format string, open bool) error {
	if format == "json" {
		return printJSON(an.Comments)
	}

	r, err := a.Report(an, summary)
	if err != nil {
		return err
	}

	switch format {
	case "text":
		fmt.Print(r.PlainBody)
	case "html":
		path, err := store.SaveRawOutput(store.StepReport, []byte(r.HTMLBody), ".html")
		if err != nil {
			return err
		}
		fmt.Println(path)
		if open {
			return browser.OpenFile(path)
		}
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}

func runPredict(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: tsctl predict <text>")
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	a, cleanup, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := a.Classify(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(s)
}

func runLogin(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ExitOnError)
	timeout := fs.Duration("timeout", 5*time.Minute, "how long to wait for the login to finish")
	fs.Parse(args)

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	authManager, err := app.NewAuthManager(cfg, log)
	if err != nil {
		return err
	}

	sess, err := browseropts.NewSession(ctx, browseropts.SessionOptions{
		Headless:  false,
		UserAgent: cfg.Scraping.UserAgent,
	}, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Println("Log in to Facebook in the browser window...")
	return authManager.Capture(ctx, sess, *timeout, 2*time.Second)
}

func runLogout() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cookies, err := app.OpenCookieStore(cfg.Facebook)
	if err != nil {
		return err
	}
	if err := cookies.Clear(); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", cookies.Path())
	return nil
}

func runBotTest(ctx context.Context) error {
	fmt.Println("Opening bot.sannysoft.com with stealth browser options...")

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	// non-headless so you can see it
	sess, err := browseropts.NewSession(ctx, browseropts.SessionOptions{
		Headless:  false,
		UserAgent: cfg.Scraping.UserAgent,
	}, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, "https://bot.sannysoft.com"); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	fmt.Println("Press Enter to close the browser...")
	bufio.NewReader(os.Stdin).ReadString('\n')
	return nil
}

func runInitConfig(args []string) error {
	fs := pflag.NewFlagSet("init-config", pflag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing config")
	fs.Parse(args)

	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force)", path)
	}
	if err := config.Default().SaveTo(path); err != nil {
		return err
	}
	fmt.Printf("Created default config at: %s\n", path)
	return nil
}

func runOpen(target string) error {
	var path string
	var err error

	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "cache":
		path, err = config.CacheDir()
	case "report":
		path, err = store.LatestStepFile(store.StepReport, ".html")
	default:
		return fmt.Errorf("unknown target: %s", target)
	}

	if err != nil {
		return fmt.Errorf("failed to get path: %w", err)
	}

	return browser.OpenFile(path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
