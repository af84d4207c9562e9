package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"recall/internal/di"
	"recall/internal/infra"
	"recall/internal/infra/config"
	"recall/internal/infra/logger"
)

var rootCmd = &cobra.Command{
	Use:           "recallctl",
	Short:         "Operations CLI for the recall index",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-derive every chunk and vector from the stored page contents",
	RunE:  runRebuild,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index bookkeeping summary",
	RunE:  runStatus,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest-file <path>",
	Short: "Enqueue pages from an NDJSON file via the running server",
	Long: `Reads one JSON object per line with url, title, content and an
optional visited_at timestamp, and posts each to the server's ingest
endpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestFile,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("server", "http://localhost:9020", "base URL of the running server")
	ingestCmd.Flags().Duration("delay", 100*time.Millisecond, "pause between requests")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// wireComponents connects to the store and builds the application graph the
// same way the server does, minus the HTTP surface.
func wireComponents(ctx context.Context) (*di.ApplicationComponents, func(), error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log := logger.New()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := infra.NewPostgresDB(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	if err := infra.EnsureSchema(ctx, pool, cfg.EmbeddingDim); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	components, err := di.NewApplicationComponents(cfg, pool, log)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	return components, pool.Close, nil
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	components, cleanup, err := wireComponents(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	if err := components.IndexUsecase.RebuildAll(ctx); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	size, err := components.IndexUsecase.Size(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Rebuild complete. Chunks: %d, Elapsed: %s\n", size, time.Since(start).Round(time.Millisecond))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	components, cleanup, err := wireComponents(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	status, err := components.IndexUsecase.Status(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]interface{}{
		"chunk_count":      status.ChunkCount,
		"last_indexed_at":  status.LastIndexedAt,
		"embedder_version": status.EmbedderVersion,
		"chunker_version":  status.ChunkerVersion,
		"embedding_dim":    status.EmbeddingDim,
	}, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}

type ingestLine struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	VisitedAt *time.Time `json:"visited_at,omitempty"`
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server")
	delay, _ := cmd.Flags().GetDuration("delay")

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer file.Close()

	client := &http.Client{Timeout: 10 * time.Second}

	count := 0
	success := 0
	failed := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		count++

		var page ingestLine
		if err := json.Unmarshal(line, &page); err != nil {
			fmt.Printf("Skipping malformed line %d: %v\n", count, err)
			failed++
			continue
		}

		body, _ := json.Marshal(page)
		resp, err := client.Post(serverURL+"/internal/pages", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Failed to enqueue %s: %v\n", page.URL, err)
			failed++
			continue
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			fmt.Printf("Failed to enqueue %s: status %d\n", page.URL, resp.StatusCode)
			failed++
			continue
		}

		success++
		if success%100 == 0 {
			fmt.Printf("Enqueued %d pages...\n", success)
		}

		time.Sleep(delay)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	fmt.Printf("Ingest complete. Total: %d, Enqueued: %d, Failed: %d\n", count, success, failed)
	return nil
}
