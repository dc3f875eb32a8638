// Package main is the digital twin CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/flatplanetpl/poc-digital-twin/internal/cli"
	"github.com/flatplanetpl/poc-digital-twin/internal/config"
	"github.com/flatplanetpl/poc-digital-twin/internal/indexer"
	"github.com/flatplanetpl/poc-digital-twin/internal/llm"
	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/rag"
	"github.com/flatplanetpl/poc-digital-twin/internal/search"
	"github.com/flatplanetpl/poc-digital-twin/internal/server"
	"github.com/flatplanetpl/poc-digital-twin/internal/watcher"
	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/digital-twin/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if present, and when neither exists the defaults
// are used with paths relative to the current directory. Returns the config
// and the path that was loaded, empty when running on defaults.
func loadConfig(path string) (*config.Config, string, error) {
	cfg, resolved, err := readConfig(path)
	if err != nil {
		return nil, "", err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, "", fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return cfg, resolved, nil
}

func readConfig(path string) (*config.Config, string, error) {
	if path != defaultConfigPath {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, candidate := range []string{filepath.Join(cwd, "config.yaml"), defaultConfigPath} {
		if _, statErr := os.Stat(candidate); statErr == nil {
			cfg, loadErr := config.Load(candidate)
			if loadErr != nil {
				return nil, "", loadErr
			}
			return cfg, candidate, nil
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return nil, "", statErr
		}
	}
	cfg, err := config.Default(cwd)
	if err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "ask":
		err = runAsk(args)
	case "search":
		err = runSearch(args)
	case "index":
		err = runIndex(args)
	case "forget":
		err = runForget(args)
	case "report":
		err = runReport(args)
	case "providers":
		err = runProviders(args)
	case "version", "--version", "-v":
		fmt.Printf("twin version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// setup loads the config and builds the logger and components for a one-shot
// command.
func setup(configPath string, debug, needLLM bool) (*config.Config, *zap.Logger, *Components, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || debug)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	components, err := initializeComponents(context.Background(), cfg, logger, needLLM)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return cfg, logger, components, nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("offline_mode", cfg.LLM.OfflineMode))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if n, err := components.Stores.Audit.CleanupOldEntries(ctx, cfg.Audit.RetentionDays); err != nil {
		logger.Warn("audit cleanup failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("audit entries expired", zap.Int("removed", n), zap.Int("retention_days", cfg.Audit.RetentionDays))
	}

	watchSvc := watcher.NewWatcher(
		existingDirs(cfg.Watch.Directories, logger),
		components.Indexer,
		components.Forget,
		watcher.WithExtensions(cfg.Watch.Extensions),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		watcher.WithDebounce(cfg.Watch.Debounce),
		watcher.WithLogger(logger),
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExistingFiles(ctx)

	srv := server.NewServer(&cfg.Server, components.Engine, components.Forget,
		server.WithDocuments(components.Stores.Registry),
		server.WithConversations(components.Stores.History),
		server.WithProviders(func() []llm.ProviderInfo { return llm.Providers(cfg.LLM) }),
		server.WithIndexStats(components.Search.Stats),
		server.WithDataPaths(map[string]string{
			"database":      cfg.Storage.DatabasePath,
			"keyword_index": cfg.Storage.BleveIndexPath,
			"vector_index":  cfg.Storage.VectorIndexPath,
		}),
		server.WithWatch(watchSvc, resolvedConfigPath, cfg),
		server.WithLogger(logger),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	watchSvc.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the
// question to the front so that flag.Parse sees them. The flag package stops
// at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func outputFormat(asJSON bool) cli.OutputFormat {
	if asJSON {
		return cli.OutputJSON
	}
	return cli.OutputText
}

// queryFlags are shared by ask and search.
type queryFlags struct {
	configPath *string
	serverURL  *string
	topK       *int
	source     *string
	sender     *string
	asJSON     *bool
	debug      *bool
}

func addQueryFlags(fs *flag.FlagSet) queryFlags {
	return queryFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		serverURL:  fs.String("server", "", "server URL; empty queries the local index directly"),
		topK:       fs.Int("top-k", 0, "number of fragments to retrieve (default from config)"),
		source:     fs.String("source", "", "only search this source type (email, messenger, text, ...)"),
		sender:     fs.String("sender", "", "only search fragments from this sender"),
		asJSON:     fs.Bool("json", false, "print JSON instead of text"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

func (q queryFlags) filters() search.Filters {
	return search.Filters{SourceType: *q.source, Sender: *q.sender}
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	qf := addQueryFlags(fs)
	explainFlag := fs.Bool("explain", false, "include the retrieval explanation")
	conversation := fs.Int64("conversation", 0, "continue this conversation")
	stream := fs.Bool("stream", false, "print the answer as it is generated")
	_ = fs.Parse(argsReorder(args))

	question := buildQuestion(fs.Args())
	if question == "" {
		return errors.New("usage: twin ask [flags] <question>")
	}
	req := rag.QueryRequest{
		Question:       question,
		ConversationID: *conversation,
		TopK:           *qf.topK,
		Explain:        *explainFlag,
		Filters:        qf.filters(),
	}
	format := outputFormat(*qf.asJSON)

	if *qf.serverURL != "" {
		var resp models.GroundedResponse
		if err := postJSON(*qf.serverURL+"/api/v1/query", askBody(req), &resp); err != nil {
			return err
		}
		return cli.WriteAnswer(os.Stdout, &resp, format)
	}

	_, logger, components, err := setup(*qf.configPath, *qf.debug, true)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *stream && format == cli.OutputText {
		resp, err := components.Engine.Stream(ctx, req, func(chunk string) error {
			_, err := fmt.Fprint(os.Stdout, chunk)
			return err
		})
		fmt.Println()
		if err != nil {
			return err
		}
		// The answer was already printed; show only the grounding report.
		resp.Answer = ""
		return cli.WriteAnswer(os.Stdout, resp, format)
	}
	resp, err := components.Engine.Query(ctx, req)
	if err != nil {
		return err
	}
	return cli.WriteAnswer(os.Stdout, resp, format)
}

// askBody is the server request for req.
func askBody(req rag.QueryRequest) map[string]interface{} {
	body := map[string]interface{}{"question": req.Question}
	if req.ConversationID != 0 {
		body["conversation_id"] = req.ConversationID
	}
	if req.TopK != 0 {
		body["top_k"] = req.TopK
	}
	if req.Explain {
		body["explain"] = true
	}
	if req.Filters.SourceType != "" {
		body["source_type"] = req.Filters.SourceType
	}
	if req.Filters.Sender != "" {
		body["sender"] = req.Filters.Sender
	}
	return body
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	qf := addQueryFlags(fs)
	_ = fs.Parse(argsReorder(args))

	question := buildQuestion(fs.Args())
	if question == "" {
		return errors.New("usage: twin search [flags] <query>")
	}
	format := outputFormat(*qf.asJSON)
	req := rag.QueryRequest{Question: question, TopK: *qf.topK, Filters: qf.filters()}

	if *qf.serverURL != "" {
		var res rag.SearchResult
		if err := postJSON(*qf.serverURL+"/api/v1/search", askBody(req), &res); err != nil {
			return err
		}
		return cli.WriteSearchResults(os.Stdout, &res, format)
	}

	_, logger, components, err := setup(*qf.configPath, *qf.debug, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	res, err := components.Engine.Search(context.Background(), req.Question, req.TopK, req.Filters)
	if err != nil {
		return err
	}
	return cli.WriteSearchResults(os.Stdout, res, format)
}

// postJSON posts body to url and decodes a 200 response into out. Other
// statuses are returned as errors carrying the server's message.
func postJSON(url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request to server failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var msg struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &msg) == nil && msg.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	verbose := fs.Bool("verbose", false, "list every file")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() < 1 {
		return errors.New("usage: twin index [flags] <file-or-directory>")
	}
	path := fs.Arg(0)

	_, logger, components, err := setup(*configPath, *debug, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	files, err := components.Indexer.Files(path)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	bar := cli.NewProgressBar(os.Stderr, len(files), "Indexing")
	var results []indexer.FileResult
	sum, err := components.Indexer.IndexPath(ctx, path, func(res indexer.FileResult) {
		_ = bar.Add(1)
		if *verbose || res.Err != nil {
			results = append(results, res)
		}
	})
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	for _, res := range results {
		cli.WriteFileResult(os.Stdout, res)
	}
	if sum != nil {
		cli.WriteIndexSummary(os.Stdout, sum)
	}
	return err
}

func runForget(args []string) error {
	fs := flag.NewFlagSet("forget", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	document := fs.String("document", "", "forget a document by id")
	file := fs.String("file", "", "forget the document indexed from this path")
	sender := fs.String("sender", "", "forget every message from this sender")
	source := fs.String("source", "", "forget every document of this source type")
	reason := fs.String("reason", rag.ReasonUserRequest, "reason recorded in the audit log")
	asJSON := fs.Bool("json", false, "print JSON instead of text")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	target, err := forgetTarget(*document, *file, *sender, *source)
	if err != nil {
		return err
	}

	_, logger, components, err := setup(*configPath, *debug, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	var res *models.ForgetResult
	switch target {
	case "document":
		res = components.Forget.ForgetDocument(ctx, *document, *reason)
	case "file":
		res = components.Forget.ForgetByFilePath(ctx, *file, *reason)
	case "sender":
		res = components.Forget.ForgetSender(ctx, *sender, *reason)
	case "source":
		res = components.Forget.ForgetBySourceType(ctx, *source, *reason)
	}
	if err := cli.WriteForgetResult(os.Stdout, res, outputFormat(*asJSON)); err != nil {
		return err
	}
	if !res.Success {
		return errors.New("forget did not complete")
	}
	return nil
}

// forgetTarget returns which of the forget flags is set. Exactly one must be.
func forgetTarget(document, file, sender, source string) (string, error) {
	var set []string
	for _, f := range []struct{ name, value string }{
		{"document", document}, {"file", file}, {"sender", sender}, {"source", source},
	} {
		if strings.TrimSpace(f.value) != "" {
			set = append(set, f.name)
		}
	}
	if len(set) != 1 {
		return "", errors.New("usage: twin forget exactly one of --document, --file, --sender or --source")
	}
	return set[0], nil
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	days := fs.Int("days", 30, "report period in days")
	asJSON := fs.Bool("json", false, "print JSON instead of text")
	_ = fs.Parse(args)

	_, logger, components, err := setup(*configPath, false, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	report, err := components.Forget.DeletionReport(context.Background(), *days)
	if err != nil {
		return err
	}
	return cli.WriteDeletionReport(os.Stdout, report, outputFormat(*asJSON))
}

func runProviders(args []string) error {
	fs := flag.NewFlagSet("providers", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	for _, p := range llm.Providers(cfg.LLM) {
		marker := " "
		if p.Current {
			marker = "*"
		}
		where := "cloud"
		if p.Local {
			where = "local"
		}
		line := fmt.Sprintf("%s %-10s %-24s %s", marker, p.Name, p.Model, where)
		if p.Available {
			color.Green("%s", line)
		} else {
			color.Yellow("%s (%s)", line, p.Reason)
		}
	}
	return nil
}

func printUsage() {
	fmt.Println(`twin - personal data assistant with grounded answers

Usage:
  twin server [flags]              Start the HTTP server and directory watcher
  twin ask [flags] <question>      Answer a question from your data, with sources
  twin search [flags] <query>      Show the ranked fragments for a query
  twin index [flags] <path>        Index a file or directory
  twin forget [flags]              Delete a document, file, sender or source type
  twin report [flags]              Summarize recent deletions
  twin providers [flags]           List completion providers
  twin version                     Show version
  twin help                        Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/digital-twin/config.yaml,
                     or ./config.yaml when present)
  --debug            Enable debug logging

Ask / Search Flags:
  --server string    Server URL; empty queries the local index directly
  --top-k int        Number of fragments to retrieve
  --source string    Only search one source type
  --sender string    Only search one sender
  --json             Print JSON
  --explain          (ask) Include the retrieval explanation
  --stream           (ask) Print the answer as it is generated
  --conversation n   (ask) Continue a conversation

Forget Flags:
  --document id | --file path | --sender name | --source type
  --reason string    Reason recorded in the audit log (default: user_request)

Examples:
  twin index ~/exports/mail
  twin ask "when is the dentist appointment?"
  twin ask --source email --explain what did Anna say about the trip
  twin search --sender "Jan Kowalski" budget
  twin forget --sender "Jan Kowalski" --reason gdpr
  twin report --days 7`)
}
