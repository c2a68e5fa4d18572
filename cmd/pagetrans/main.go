// Command pagetrans runs the in-page translation pipeline against a live
// page or a static HTML file.
//
// Usage:
//
//	pagetrans -file page.html -source en -target fr    # offline, prints rewritten HTML
//	pagetrans -url https://example.com -target fr      # live page via Chrome
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-rod/rod"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/browser"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/pipeline"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/translate"
)

func main() {
	filePath := flag.String("file", "", "translate a static HTML file and print the result")
	pageURL := flag.String("url", "", "attach to a live page at this URL")
	sourceLang := flag.String("source", "en", "source language code")
	targetLang := flag.String("target", "fr", "target language code")
	configPath := flag.String("config", "", "path to pipeline YAML config")
	bilingual := flag.Bool("bilingual", false, "enable bilingual annotation mode")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *filePath, *pageURL, *sourceLang, *targetLang, *configPath, *bilingual); err != nil {
		logger.Error("pagetrans: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, filePath, pageURL, sourceLang, targetLang, configPath string, bilingual bool) error {
	cfg := pipeline.Config{}
	if configPath != "" {
		loaded, err := pipeline.LoadConfigFile(configPath)
		if err != nil {
			return err
		}
		cfg = *loaded
	}

	switch {
	case filePath != "":
		return runFile(ctx, logger, cfg, filePath, sourceLang, targetLang, bilingual)
	case pageURL != "":
		return runPage(ctx, logger, cfg, pageURL, sourceLang, targetLang, bilingual)
	}
	fmt.Fprintln(os.Stderr, "usage: pagetrans -file <html> | -url <url> [-source en] [-target fr]")
	return fmt.Errorf("no input given")
}

// marker is the dry-run translator: it wraps each text with the target
// language so the pipeline's behaviour is visible without a real endpoint.
func marker(ctx context.Context, texts []string, p translate.Params) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = fmt.Sprintf("[%s] %s", strings.ToUpper(p.TargetLang), t)
	}
	return out, nil
}

func runFile(ctx context.Context, logger *slog.Logger, cfg pipeline.Config, path, sourceLang, targetLang string, bilingual bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("pagetrans: open: %w", err)
	}
	defer f.Close()

	doc, err := dom.Parse(f, dom.Options{})
	if err != nil {
		return err
	}

	ctrl := pipeline.New(doc, translate.Func(marker), nil, cfg, logger)
	if bilingual {
		ctrl.ToggleBilingual()
	}
	summary, err := ctrl.TranslatePage(ctx, pipeline.Settings{SourceLang: sourceLang, TargetLang: targetLang})
	if err != nil {
		return err
	}
	logger.Info("pagetrans: done",
		"translated", summary.Translated, "failed", summary.Failed, "deferred", summary.Deferred)
	ctrl.Stop()

	html, err := doc.HTML()
	if err != nil {
		return err
	}
	fmt.Println(html)
	return nil
}

func runPage(ctx context.Context, logger *slog.Logger, cfg pipeline.Config, pageURL, sourceLang, targetLang string, bilingual bool) error {
	b := rod.New().Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("pagetrans: connect browser: %w", err)
	}
	defer b.Close()

	page, err := browser.Open(ctx, b, pageURL)
	if err != nil {
		return err
	}
	defer page.Close()

	host, err := browser.Attach(ctx, page, logger)
	if err != nil {
		return err
	}

	ctrl := pipeline.New(host.Document(), translate.Func(marker), nil, cfg, logger)
	if bilingual {
		ctrl.ToggleBilingual()
	}
	summary, err := ctrl.TranslatePage(ctx, pipeline.Settings{SourceLang: sourceLang, TargetLang: targetLang})
	if err != nil {
		return err
	}
	logger.Info("pagetrans: page translated; watching for changes (ctrl-c to undo and exit)",
		"translated", summary.Translated, "failed", summary.Failed, "deferred", summary.Deferred)

	<-ctx.Done()
	restored := ctrl.Undo()
	logger.Info("pagetrans: undone", "restored", restored)
	return nil
}
