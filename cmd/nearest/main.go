// Package main is the nearest CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/nearest/internal/cli"
	"github.com/hyperjump/nearest/internal/config"
	"github.com/hyperjump/nearest/internal/loader"
	"github.com/hyperjump/nearest/internal/models"
	"github.com/hyperjump/nearest/internal/search"
	"github.com/hyperjump/nearest/internal/server"
	"github.com/hyperjump/nearest/internal/storage"
	"github.com/hyperjump/nearest/internal/vector"
	"github.com/hyperjump/nearest/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/nearest/config.yaml"

// configPathDefault returns NEAREST_CONFIG when set, else the default path.
func configPathDefault() string {
	if p := os.Getenv("NEAREST_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists, and a missing default file yields the built-in defaults so
// that data files can be given on the command line alone.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	args := os.Args[2:]
	switch command := os.Args[1]; command {
	case "session":
		os.Exit(runSession(args, os.Stdin, os.Stdout))
	case "query":
		os.Exit(runQuery(args, os.Stdout))
	case "word":
		os.Exit(runWord(args, os.Stdout))
	case "server":
		os.Exit(runServer(args))
	case "import":
		os.Exit(runImport(args, os.Stdout))
	case "status":
		os.Exit(runStatus(args, os.Stdout))
	case "version", "--version", "-v":
		fmt.Printf("nearest version %s\n", version)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage(os.Stdout)
		os.Exit(1)
	}
}

// commonFlags are the flags every command that loads embeddings accepts.
type commonFlags struct {
	configPath string
	debug      bool
	text       string
	words      string
	binary     string
	database   string
	norm       string
	backend    string
	workers    int
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", configPathDefault(), "config file path (env NEAREST_CONFIG)")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	fs.StringVar(&f.text, "text", "", "text embeddings file (word v1 ... vd per line)")
	fs.StringVar(&f.words, "words", "", "words file for binary embeddings")
	fs.StringVar(&f.binary, "binary", "", "binary embeddings and norms file")
	fs.StringVar(&f.database, "db", "", "SQLite embeddings database created by 'nearest import'")
	fs.StringVar(&f.norm, "norm", "", "norm convention: sumabs or euclidean")
	fs.StringVar(&f.backend, "backend", "", "search backend: parallel or sequential")
	fs.IntVar(&f.workers, "workers", -1, "parallel backend workers (0 = one per CPU)")
	return f
}

// apply overrides config values with flags the user set. A source given on the command line
// replaces every configured source.
func (f *commonFlags) apply(cfg *config.Config) {
	if f.debug {
		cfg.Debug = true
	}
	if f.text != "" || f.database != "" || (f.words != "" && f.binary != "") {
		cfg.Embedding.TextPath = f.text
		cfg.Embedding.WordsPath = f.words
		cfg.Embedding.BinaryPath = f.binary
		cfg.Embedding.DatabasePath = f.database
	}
	if f.norm != "" {
		cfg.Embedding.Norm = f.norm
	}
	if f.backend != "" {
		cfg.Search.Backend = f.backend
	}
	if f.workers >= 0 {
		cfg.Search.Workers = f.workers
	}
}

// setup loads config and applies flags.
func (f *commonFlags) setup() (*config.Config, string, error) {
	cfg, path, err := loadConfig(f.configPath)
	if err != nil {
		return nil, "", err
	}
	f.apply(cfg)
	return cfg, path, nil
}

// sourceFromArgs reads the positional data files accepted by session:
// one text file, or a words file followed by a binary file.
func sourceFromArgs(cfg *config.Config, args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 1:
		cfg.Embedding = config.EmbeddingConfig{
			TextPath:   args[0],
			Dimensions: cfg.Embedding.Dimensions,
			Norm:       cfg.Embedding.Norm,
		}
		return nil
	case 2:
		cfg.Embedding = config.EmbeddingConfig{
			WordsPath:  args[0],
			BinaryPath: args[1],
			Dimensions: cfg.Embedding.Dimensions,
			Norm:       cfg.Embedding.Norm,
		}
		return nil
	default:
		return fmt.Errorf("expected [text file] or [words file] [binary file], got %d arguments", len(args))
	}
}

// openStorage opens the embeddings database at path.
func openStorage(path string) (storage.Storage, error) {
	db, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// loadDataset reads embeddings from the configured source.
func loadDataset(ctx context.Context, emb config.EmbeddingConfig, kind vector.NormKind) (*loader.Dataset, error) {
	switch emb.Source() {
	case "database":
		db, err := openStorage(emb.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", loader.ErrLoad, err)
		}
		defer db.Close()
		return db.LoadDataset(ctx, kind)
	case "binary":
		return loader.LoadBinaryFiles(emb.WordsPath, emb.BinaryPath, kind)
	case "text":
		return loader.LoadTextFile(emb.TextPath, emb.Dimensions)
	default:
		return nil, fmt.Errorf("%w: no embedding source configured (use -text, -words/-binary or -db)", loader.ErrLoad)
	}
}

// newEngine loads embeddings and wires the engine. Backends are not set up yet.
func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...search.Option) (*search.Engine, error) {
	kind, err := vector.ParseNormKind(cfg.Embedding.Norm)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	d, err := loadDataset(ctx, cfg.Embedding, kind)
	if err != nil {
		return nil, err
	}
	store, words, err := loader.Build(d, kind)
	if err != nil {
		return nil, err
	}
	logger.Info("embeddings loaded",
		zap.String("source", cfg.Embedding.Source()),
		zap.Int("words", store.Len()),
		zap.Int("dimensions", store.Dimensions()),
		zap.Int("duplicates", d.Duplicates),
		zap.Duration("elapsed", time.Since(start)))

	primary, err := vector.NewBackend(cfg.Search.Backend, cfg.Search.Workers)
	if err != nil {
		return nil, err
	}
	opts = append([]search.Option{search.WithLogger(logger)}, opts...)
	return search.NewEngine(store, words, primary, vector.NewSequentialBackend(), &cfg.Search, opts...), nil
}

// exitCode maps a failure to the process exit code: backend failures exit with their code,
// everything else with 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var be *vector.BackendError
	if errors.As(err, &be) {
		return int(be.Code)
	}
	return 1
}

func runSession(args []string, in io.Reader, out io.Writer) int {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	flags := addCommonFlags(fs)
	k := fs.Int("k", 0, "ranked slots per query; k-1 neighbours are shown (default from config)")
	_ = fs.Parse(args)

	cfg, _, err := flags.setup()
	if err != nil {
		fmt.Fprintf(out, "Failed to load config: %v\n", err)
		return 1
	}
	if err := sourceFromArgs(cfg, fs.Args()); err != nil {
		fmt.Fprintln(out, err)
		printUsage(out)
		return 1
	}
	logger, err := utils.NewConsoleLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(out, "Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	engine, err := newEngine(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(out, "ERROR: embeddings not loaded: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "Embeddings loaded")
	elapsed, err := engine.Open()
	if err != nil {
		fmt.Fprintf(out, "ERROR: %v\n", err)
		return exitCode(err)
	}
	fmt.Fprintf(out, "Data preloading took: %d milliseconds\n", elapsed.Milliseconds())

	slots := cfg.Search.K
	if *k > 0 {
		slots = *k
	}
	sess := cli.NewSession(engine, in, out, cli.WithK(slots), cli.WithSessionLogger(logger))
	code := sess.Run(context.Background())

	elapsed, err = engine.Close()
	if err != nil {
		logger.Warn("teardown failed", zap.Error(err))
	}
	fmt.Fprintf(out, "Unloaded data = %d us\n", elapsed.Microseconds())
	return int(code)
}

func runQuery(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	flags := addCommonFlags(fs)
	k := fs.Int("k", 0, "ranked slots; k-1 neighbours are shown (default from config)")
	compare := fs.Bool("compare", false, "also run the sequential backend and compare rankings")
	serverURL := fs.String("server", "", "query a running 'nearest server' at this URL instead of loading embeddings")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		printQueryUsage(fs)
		return 1
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	query, err := models.ParseExpression(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid query: %v\n", err)
		return 1
	}
	query.K = *k
	query.Compare = *compare

	var resp *models.QueryResponse
	if *serverURL != "" {
		resp, err = queryViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			return 1
		}
	} else {
		cfg, _, err := flags.setup()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		if cfg.Search.Compare {
			query.Compare = true
		}
		logger, err := utils.NewConsoleLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			return 1
		}
		defer logger.Sync()
		engine, err := newEngine(context.Background(), cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load embeddings: %v\n", err)
			return 1
		}
		if _, err := engine.Open(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start backend: %v\n", err)
			return exitCode(err)
		}
		defer engine.Close()
		resp, err = engine.Search(context.Background(), query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			return exitCode(err)
		}
	}

	if err := cli.WriteQueryResponse(out, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

func runWord(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("word", flag.ExitOnError)
	flags := addCommonFlags(fs)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: nearest word [flags] <word>")
		return 1
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, _, err := flags.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	engine, err := newEngine(context.Background(), cfg, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load embeddings: %v\n", err)
		return 1
	}
	info := engine.Info(fs.Arg(0))
	if err := cli.WriteWordInfo(out, info, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		return 1
	}
	if !info.Found {
		return 1
	}
	return 0
}

func runServer(args []string) int {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	flags := addCommonFlags(fs)
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := flags.setup()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return 1
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
	)

	engine, err := newEngine(context.Background(), cfg, logger, search.WithResultCache(cfg.Search.CacheSize))
	if err != nil {
		logger.Error("Failed to load embeddings", zap.Error(err))
		return 1
	}
	elapsed, err := engine.Open()
	if err != nil {
		logger.Error("Failed to start backend", zap.Error(err))
		return exitCode(err)
	}
	logger.Info("backend ready", zap.Duration("preload", elapsed))

	srv := server.NewServer(engine, cfg, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	code := 0
	select {
	case <-sigChan:
		logger.Info("Shutting down...")
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
		code = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	elapsed, _ = engine.Close()
	logger.Info("backend released", zap.Duration("unload", elapsed))
	return code
}

func runImport(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "config file path (env NEAREST_CONFIG)")
	dbPath := fs.String("db", "", "database to write (default: embedding.database_path)")
	wordsOut := fs.String("words-out", "", "also write a words file")
	binaryOut := fs.String("binary-out", "", "also write a binary embeddings file (needs -words-out)")
	dims := fs.Int("dimensions", 0, "embedding width (default: embedding.dimensions)")
	norm := fs.String("norm", "", "norm convention: sumabs or euclidean")
	writeConfig := fs.String("write-config", "", "write a config file that loads the imported data")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: nearest import [flags] <text embeddings file>")
		fs.PrintDefaults()
		return 1
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *dbPath == "" {
		*dbPath = cfg.Embedding.DatabasePath
	}
	if *dims > 0 {
		cfg.Embedding.Dimensions = *dims
	}
	if *norm != "" {
		cfg.Embedding.Norm = *norm
	}
	if *dbPath == "" && (*wordsOut == "" || *binaryOut == "") {
		fmt.Fprintln(os.Stderr, "Nothing to write: set -db or both -words-out and -binary-out")
		return 1
	}

	n, err := importText(context.Background(), fs.Arg(0), *dbPath, *wordsOut, *binaryOut, cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Imported %d words\n", n)
	if *writeConfig != "" {
		if err := writeImportConfig(*writeConfig, cfg, *dbPath, *wordsOut, *binaryOut); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "Wrote config %s\n", *writeConfig)
	}
	return 0
}

// writeImportConfig saves cfg at path with the embedding source pointing at the import
// outputs. The database wins over binary files when both were written.
func writeImportConfig(path string, cfg *config.Config, dbPath, wordsOut, binaryOut string) error {
	out := *cfg
	out.Embedding.TextPath = ""
	out.Embedding.DatabasePath = absPath(dbPath)
	out.Embedding.WordsPath = ""
	out.Embedding.BinaryPath = ""
	if wordsOut != "" && binaryOut != "" {
		out.Embedding.WordsPath = absPath(wordsOut)
		out.Embedding.BinaryPath = absPath(binaryOut)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return config.Save(path, &out)
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// importText converts a text embeddings file into a database and/or binary files, storing
// norms computed under emb.Norm. It returns the number of words written.
func importText(ctx context.Context, textPath, dbPath, wordsOut, binaryOut string, emb config.EmbeddingConfig) (int, error) {
	kind, err := vector.ParseNormKind(emb.Norm)
	if err != nil {
		return 0, err
	}
	d, err := loader.LoadTextFile(textPath, emb.Dimensions)
	if err != nil {
		return 0, err
	}
	norms := make([]float32, d.Len())
	for i, vec := range d.Vectors {
		norms[i] = vector.Norm(vec, kind)
	}
	if dbPath != "" {
		db, err := openStorage(dbPath)
		if err != nil {
			return 0, err
		}
		defer db.Close()
		if err := db.SaveDataset(ctx, d, norms, kind); err != nil {
			return 0, err
		}
	}
	if wordsOut != "" && binaryOut != "" {
		if err := loader.SaveBinaryFiles(wordsOut, binaryOut, d, norms, kind); err != nil {
			return 0, err
		}
	}
	return d.Len(), nil
}

func runStatus(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	flags := addCommonFlags(fs)
	serverURL := fs.String("server", "", "ask a running 'nearest server' at this URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	var status models.Status
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			return 1
		}
		status = *res
	} else {
		cfg, _, err := flags.setup()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		engine, err := newEngine(context.Background(), cfg, zap.NewNop())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load embeddings: %v\n", err)
			return 1
		}
		status = engine.Status()
		status.Source = cfg.Embedding.Source()
		if status.Source == "database" {
			if err := addStoredSummary(context.Background(), &status, cfg.Embedding.DatabasePath); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to read database: %v\n", err)
				return 1
			}
		}
	}
	if err := cli.WriteStatus(out, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

// addStoredSummary fills in what the embeddings database reports about its last import.
func addStoredSummary(ctx context.Context, status *models.Status, dbPath string) error {
	db, err := openStorage(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	n, err := db.CountWords(ctx)
	if err != nil {
		return fmt.Errorf("count words: %w", err)
	}
	status.Stored = n
	if at, err := db.Metadata(ctx, "imported_at"); err == nil {
		status.ImportedAt = at
	}
	return nil
}

func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: nearest query [flags] <word> [+|- word]...\n\n")
	fmt.Fprintf(fs.Output(), "Flags must come before the query.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  nearest query -text vectors.txt king
  nearest query -db vectors.db king - man + woman
  nearest query -k 21 -compare -output json paris - france + italy
  nearest query -server http://localhost:8080 king -man +woman
`)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `nearest - exact nearest-neighbour search over word embeddings

Usage:
  nearest session [flags] [text file | words file binary file]
                                  Interactive query loop
  nearest query [flags] <query>   Run one query, e.g. king - man + woman
  nearest word [flags] <word>     Look up a word (with spelling suggestions)
  nearest server [flags]          Start the HTTP API
  nearest import [flags] <file>   Import a text embeddings file into SQLite and/or binary files
  nearest status [flags]          Show vocabulary size, dimensions, norm and backend
  nearest version                 Show version
  nearest help                    Show this help

Common Flags:
  --config string    Config file path (default: $NEAREST_CONFIG or /usr/local/etc/nearest/config.yaml)
  --debug            Enable debug logging
  --text string      Text embeddings file
  --words string     Words file (with --binary)
  --binary string    Binary embeddings and norms file
  --db string        SQLite embeddings database
  --norm string      sumabs (default) or euclidean
  --backend string   parallel (default) or sequential
  --workers int      Parallel backend workers (0 = one per CPU)

Session Input:
  word 0                  neighbours of word
  word 1                  same, and also run the sequential backend for comparison
  king - man + woman ! 0  analogy query; terms end with !

Examples:
  nearest session vectors.txt
  nearest session words.txt vectors.bin
  nearest import -db vectors.db -dimensions 300 vectors.txt
  nearest import -db vectors.db -write-config ./config.yaml vectors.txt
  nearest query -db vectors.db king - man + woman
  nearest server -db vectors.db
  nearest status -output json`)
}
