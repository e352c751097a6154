package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/marcinparda/actual/internal/ledger"
	"github.com/marcinparda/actual/internal/receipt"
	"github.com/marcinparda/actual/internal/reconcile"
	"github.com/marcinparda/actual/internal/scanning"
)

func main() {
	// .env is optional; real deployments set environment variables directly.
	godotenv.Load()

	fs := ff.NewFlagSet("receipt-scanner")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "receipts.db", "Receipt index database path")
		storagePath = fs.StringLong("storage", "./receipts", "Storage directory path")
		maxUpload   = fs.IntLong("max-upload", 20<<20, "Maximum upload size in bytes")
		scanTimeout = fs.DurationLong("scan-timeout", 2*time.Minute, "Timeout for one model extraction call")
		ledgerURL   = fs.StringLong("ledger-url", "http://localhost:5006", "Base URL of the ledger API")
		scannerType = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'openai' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		openaiKey   = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY)")
		openaiModel = fs.StringLong("openai-model", "gpt-4o", "OpenAI model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g. llava, qwen2-vl)")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	slog.Info("Initializing receipt index...")
	index, err := receipt.NewBoltIndex(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize receipt index", "error", err)
		os.Exit(1)
	}
	defer index.Close()

	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
	case "openai":
		apiKey := *openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI scanner...", "model", *openaiModel)
		scanner, err = scanning.NewOpenAI(apiKey, *openaiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini, openai or ollama")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize scanner", "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	ledgerClient := ledger.NewClient(*ledgerURL)
	service := receipt.NewService(index, store, scanner, int64(*maxUpload))
	engine := reconcile.NewEngine(ledgerClient, service)
	server := receipt.NewServer(service, ledgerClient, engine, *scanTimeout)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "ledger", *ledgerURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
