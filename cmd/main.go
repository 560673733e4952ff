package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"question-rag/internal/cache"
	"question-rag/internal/chromemdb"
	"question-rag/internal/config"
	"question-rag/internal/db"
	"question-rag/internal/helper"
	"question-rag/internal/parser"
	"question-rag/internal/rag"
	"question-rag/internal/render"
	"question-rag/internal/server"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", envOr("CONFIG_FILE", defaultConfigPath), "Path to the YAML config file")
	serve := flag.Bool("serve", false, "Run the HTTP server (default when no other mode is given)")
	filePath := flag.String("file", "", "Generate questions for a document and print them")
	name := flag.String("name", "", "Display name for -file, defaults to the file name")
	regenerate := flag.Bool("regenerate", false, "With -file, generate a new set even if one is stored")
	history := flag.Bool("history", false, "Print every stored question set")
	dryRun := flag.Bool("dry-run", false, "With -file, only extract and print the chunks")
	reset := flag.Bool("reset", false, "Drop the documents table and create it again")
	htmlOut := flag.Bool("html", false, "With -file, print the questions rendered as HTML")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// dry runs only read the document, they need no credentials
	if *dryRun {
		if *filePath == "" {
			log.Fatal().Msg("-dry-run needs a document, pass it with -file")
		}
		if err := extractOnly(cfg, *filePath); err != nil {
			log.Fatal().Err(err).Msg("Error extracting document")
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := checkExtensions(cfg.Upload.AllowedExtensions); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	switch {
	case *serve:
		err = runServer(ctx, cfg)
	case *reset:
		err = resetStore(ctx, cfg)
	case *history:
		err = printHistory(ctx, cfg)
	case *filePath != "":
		err = generateOnce(ctx, cfg, rag.Input{Path: *filePath, Name: *name, Regenerate: *regenerate}, *htmlOut)
	default:
		err = runServer(ctx, cfg)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Exiting")
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func extractOnly(cfg *config.Config, filePath string) error {
	extractor := parser.NewExtractor(&cfg.RAG)
	chunks, fullText, err := extractor.Extract(filePath, true)
	if err != nil {
		return err
	}
	log.Info().Int("chunks", len(chunks)).Int("chars", len(fullText)).Msg("Extracted document")
	helper.PrettyPrint(chunks)
	return nil
}

// resetStep is one store wiped by -reset.
type resetStep struct {
	name string
	run  func(ctx context.Context) error
}

// runResetSteps runs every step even when an earlier one fails, so a
// broken cache cannot leave the chunk index behind.
func runResetSteps(ctx context.Context, steps []resetStep) error {
	var errs []error
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		log.Info().Str("store", step.name).Msg("Reset")
	}
	return errors.Join(errs...)
}

func resetStore(ctx context.Context, cfg *config.Config) error {
	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	bunDB := db.NewDB(sqldb, cfg.Database.Debug)
	defer bunDB.Close()

	steps := []resetStep{{name: "documents table", run: func(ctx context.Context) error {
		if err := db.DropDocuments(ctx, bunDB); err != nil {
			return fmt.Errorf("drop documents: %w", err)
		}
		return db.InitDB(ctx, bunDB, cfg.RAG.VectorSize)
	}}}

	// cached sets and chromem chunks outlive the table, drop them too
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		questions := cache.NewQuestionCache(client, cfg.Redis.CacheTTL)
		steps = append(steps, resetStep{name: "question cache", run: func(ctx context.Context) error {
			n, err := questions.Clear(ctx)
			log.Debug().Int("keys", n).Msg("Cleared cached question sets")
			return err
		}})
	}
	if cfg.VectorStore.Backend == config.BackendChromem {
		manager, err := chromemdb.NewVectorDBManager(&cfg.VectorStore.Chromem)
		if err != nil {
			return err
		}
		steps = append(steps, resetStep{name: "chromem collection", run: func(context.Context) error {
			return manager.Reset()
		}})
	}
	return runResetSteps(ctx, steps)
}

// checkExtensions rejects upload extensions the extractor cannot read.
func checkExtensions(exts []string) error {
	var bad []string
	for _, ext := range exts {
		if !parser.SupportedExtension(ext) {
			bad = append(bad, ext)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("unsupported document extensions: %s", strings.Join(bad, ", "))
	}
	return nil
}

func printHistory(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.rag.History(ctx)
	if err != nil {
		return err
	}
	helper.PrettyPrint(entries)
	return nil
}

func generateOnce(ctx context.Context, cfg *config.Config, in rag.Input, asHTML bool) error {
	if err := checkExtensions([]string{filepath.Ext(in.Path)}); err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.rag.Generate(ctx, in)
	if err != nil {
		return err
	}
	if res.PersistErr != nil {
		log.Warn().Err(res.PersistErr).Msg("Questions generated but not stored")
	}
	log.Info().
		Str("hash", res.ContentHash).
		Str("id", res.ID).
		Bool("cache_hit", res.CacheHit).
		Bool("regenerated", res.Regenerated).
		Msg("Questions ready")

	if asHTML {
		fmt.Println(render.Format(res.Questions))
	} else {
		fmt.Println(res.Questions)
	}
	return nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewRouter(a.rag, a.store, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
