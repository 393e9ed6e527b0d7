// Package main is the Yomitori CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/cli"
	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/ingest"
	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/ocr"
	"github.com/hyperjump/yomitori/internal/query"
	"github.com/hyperjump/yomitori/internal/server"
	"github.com/hyperjump/yomitori/internal/storage"
	"github.com/hyperjump/yomitori/internal/watcher"
	"github.com/hyperjump/yomitori/internal/worker"
	"github.com/hyperjump/yomitori/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/yomitori/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so "yomitori server" from the project dir uses the project's
// config. Returns the config and the path that was actually loaded.
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
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "upload":
		runUpload()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "delete":
		runDelete()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("yomitori version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (uploads, job lifecycle, watch events)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	idx, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		logger.Fatal("Failed to initialize keyword index", zap.Error(err))
	}
	defer idx.Close()

	engine := ocr.NewTesseractEngine()
	processor := worker.NewProcessor(store, engine, cfg.OCR.Languages, logger,
		worker.WithKeywordIndex(idx),
		worker.WithTimeout(cfg.OCR.Timeout()),
	)
	pool := worker.NewPool(processor, cfg.Worker.Count, cfg.Worker.QueueSize, logger)

	ing := ingest.NewService(store, pool, cfg.Ingest.MaxUploadBytes, logger)
	qry := query.NewService(store, idx, logger)

	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watchSvc = watcher.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				if _, err := ing.IngestFile(context.Background(), path); err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				}
			},
			logger,
		)
		watchCtx, watchCancel := context.WithCancel(context.Background())
		defer watchCancel()
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(ing, qry, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if watchSvc != nil {
		watchSvc.Stop()
	}
	_ = srv.Stop(ctx)
	// Let in-flight recognitions finish so their documents reach a terminal
	// status instead of sticking at processing.
	if err := pool.Stop(ctx); err != nil {
		logger.Warn("worker pool drain timed out", zap.Error(err))
	}
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: yomitori upload [flags] <image-file>")
		os.Exit(1)
	}
	format, ok := parseFormat(*outputFormat)
	if !ok {
		os.Exit(1)
	}

	path := fs.Arg(0)
	resp, err := uploadViaHTTP(*serverURL, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Printf("Accepted %s as document %d (status: %s)\n",
		resp.Document.OriginalName, resp.Document.ID, resp.Document.Status)
	fmt.Printf("Poll with: yomitori status --server %s, or GET %s/documents/%d\n",
		*serverURL, *serverURL, resp.Document.ID)
}

// uploadResponse mirrors the POST /documents response body.
type uploadResponse struct {
	Success  bool                   `json:"success"`
	Document models.DocumentSummary `json:"document"`
}

func uploadViaHTTP(serverURL, path string) (*uploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := http.Post(serverURL+"/documents", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// buildSearchQuery joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
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

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	ranked := fs.Bool("ranked", false, "use the ranked full-text index instead of exact substring match")
	limit := fs.Int("limit", 10, "number of results (ranked mode only)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgs)

	if fs.NArg() < 1 {
		fmt.Println("Usage: yomitori search [flags] <query>")
		os.Exit(1)
	}
	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: yomitori search [flags] <query>")
		os.Exit(1)
	}
	format, ok := parseFormat(*outputFormat)
	if !ok {
		os.Exit(1)
	}

	if *ranked {
		hits, err := rankedSearchViaHTTP(*serverURL, queryStr, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteRankedHits(os.Stdout, hits, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	docs, err := searchViaHTTP(*serverURL, queryStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, queryStr string) ([]*models.Document, error) {
	resp, err := http.Get(serverURL + "/documents/search/" + url.PathEscape(queryStr))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var docs []*models.Document
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return docs, nil
}

// rankedSearchResponse is the shape of the POST /api/v1/search response.
type rankedSearchResponse struct {
	Hits  []*query.RankedHit `json:"hits"`
	Total int                `json:"total"`
}

func rankedSearchViaHTTP(serverURL, queryStr string, limit int) ([]*query.RankedHit, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query": queryStr,
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out rankedSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Hits, nil
}

// statusResponse is the shape of the GET /api/v1/status response.
type statusResponse struct {
	Documents      int64            `json:"documents"`
	ByStatus       map[string]int64 `json:"by_status"`
	Indexed        uint64           `json:"indexed"`
	DiskUsageBytes *int64           `json:"disk_usage_bytes,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:         %d\n", status.Documents)
		for _, st := range []models.Status{
			models.StatusPending, models.StatusProcessing,
			models.StatusCompleted, models.StatusFailed,
		} {
			if n, ok := status.ByStatus[string(st)]; ok && n > 0 {
				fmt.Printf("  %-16s %d\n", string(st)+":", n)
			}
		}
		fmt.Printf("indexed:           %d\n", status.Indexed)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:  %d\n", *status.DiskUsageBytes)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: yomitori delete [flags] <document-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	req, err := http.NewRequest(http.MethodDelete, *serverURL+"/documents/"+url.PathEscape(id), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Delete failed: server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("Deleted document %s\n", id)
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: yomitori watch <add|remove|list> [path]")
		fmt.Println("  yomitori watch add <path>     Add directory to watch")
		fmt.Println("  yomitori watch remove <path>  Remove directory from watch")
		fmt.Println("  yomitori watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[3:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: yomitori watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		for _, d := range cfg.Watch.Directories {
			if d == path {
				fmt.Printf("Already watched: %s\n", path)
				return
			}
		}
		cfg.Watch.Directories = append(cfg.Watch.Directories, path)
		if err := config.Save(resolvedConfigPath, cfg); err != nil {
			fmt.Printf("Save failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added: %s (restart the server to apply)\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: yomitori watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		kept := cfg.Watch.Directories[:0]
		found := false
		for _, d := range cfg.Watch.Directories {
			if d == path {
				found = true
				continue
			}
			kept = append(kept, d)
		}
		if !found {
			fmt.Printf("Not watched: %s\n", path)
			os.Exit(1)
		}
		cfg.Watch.Directories = kept
		if err := config.Save(resolvedConfigPath, cfg); err != nil {
			fmt.Printf("Save failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed: %s (restart the server to apply)\n", path)
	case "list":
		for _, d := range cfg.Watch.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func parseFormat(s string) (cli.OutputFormat, bool) {
	switch s {
	case "json":
		return cli.OutputJSON, true
	case "text":
		return cli.OutputText, true
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", s)
		return cli.OutputText, false
	}
}

func printUsage() {
	fmt.Println(`yomitori - OCR document service for uploaded images

Usage:
  yomitori server [flags]            Start the HTTP server
  yomitori upload [flags] <file>     Upload an image for text extraction
  yomitori search [flags] <query>    Search extracted text
  yomitori status [flags]            Show document and index counts
  yomitori delete [flags] <id>       Delete a document
  yomitori watch <add|remove|list>   Manage watched ingest directories
  yomitori version                   Show version
  yomitori help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/yomitori/config.yaml)
  --debug            Enable debug logging (uploads, job lifecycle, watch events)

Upload Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Search Flags:
  --server string    Server URL (default: http://localhost:8080)
  --ranked           Use the ranked full-text index instead of exact substring match
  --limit int        Number of results in ranked mode (default: 10)
  --output string    Output format: text or json (default: text)

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Examples:
  yomitori server
  yomitori upload receipt.png
  yomitori search "total due"
  yomitori search --ranked --limit 5 invoice
  yomitori status --output json
  yomitori delete 42`)
}
