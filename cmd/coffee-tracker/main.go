package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/coffee-tracker/internal/purchase"
	"github.com/zombor/coffee-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("coffee-tracker")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "coffee-tracker.db", "Database file path")
		engineType    = fs.StringLong("engine", "tesseract", "OCR engine: 'tesseract', 'gemini' or 'ollama'")
		tesseractBin  = fs.StringLong("tesseract-bin", "tesseract", "Tesseract binary")
		tesseractLang = fs.StringLong("tesseract-lang", "chi_sim+eng", "Tesseract recognition languages")
		tesseractPSM  = fs.IntLong("tesseract-psm", 0, "Tesseract page segmentation mode (0 keeps tesseract's default)")
		tessdataDir   = fs.StringLong("tessdata-dir", "", "Tesseract tessdata directory (optional)")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		stagingDir    = fs.StringLong("staging-dir", "", "Directory for images staged during OCR (default: OS temp dir)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("COFFEE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize the OCR engine factory; engines are acquired per scan
	var engines scanning.EngineFactory
	switch *engineType {
	case "tesseract":
		slog.Info("Initializing tesseract engine...", "binary", *tesseractBin, "lang", *tesseractLang)
		engines = scanning.NewTesseractFactory(scanning.TesseractConfig{
			Binary:      *tesseractBin,
			Lang:        *tesseractLang,
			TessdataDir: *tessdataDir,
			PSM:         *tesseractPSM,
		}, slog.Default())
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini engine...", "model", *geminiModel)
		factory, err := scanning.NewGeminiFactory(apiKey, *geminiModel, slog.Default())
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		engines = factory
	case "ollama":
		slog.Info("Initializing Ollama engine...", "url", *ollamaURL, "model", *ollamaModel)
		engines = scanning.NewOllamaFactory(*ollamaURL, *ollamaModel, slog.Default())
	default:
		slog.Error("Invalid engine type", "type", *engineType, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}

	stager, err := scanning.NewStager(*stagingDir)
	if err != nil {
		slog.Error("Failed to initialize staging directory", "error", err)
		os.Exit(1)
	}
	pipeline := scanning.NewPipeline(engines, stager, slog.Default())

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	blobs, err := purchase.NewBoltBlobStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	store, err := purchase.OpenStore(blobs, purchase.WithLogger(slog.Default()))
	if err != nil {
		slog.Error("Failed to load records", "error", err)
		blobs.Close()
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Loaded records", "count", len(store.Records()))

	// Initialize service
	purchaseService := purchase.NewService(store, pipeline, purchase.NewExporter(slog.Default()))

	// Initialize server
	basicAuth := purchase.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := purchase.NewServer(purchaseService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
