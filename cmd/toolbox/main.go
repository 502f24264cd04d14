package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"pr-reaction-bridge/internal/auth"
	"pr-reaction-bridge/internal/config"
	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/models"
	"pr-reaction-bridge/internal/services"
)

const (
	minArgsRequired   = 2
	filePermReadWrite = 0600
)

var (
	ErrOperationCancelled = errors.New("operation cancelled by user")
	ErrMemoryBackend      = errors.New("the memory backend only lives inside the server process")
)

func main() {
	if len(os.Args) < minArgsRequired {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "dump-records":
		handleDumpRecords()
	case "wipe-records":
		handleWipeRecords()
	case "migrate-sql":
		handleMigrateSQL()
	case "sign-github":
		handleSignGitHub()
	case "sign-slack":
		handleSignSlack()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Toolbox - Utility commands for pr-reaction-bridge")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  toolbox <command> [flags]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  dump-records       Export tracking records from the configured store as JSON")
	fmt.Println("  wipe-records       Delete every tracking record from the configured store")
	fmt.Println("  migrate-sql        Create the tracking table and indexes in the SQL store")
	fmt.Println("  sign-github        Print the signature header GitHub would send for a payload")
	fmt.Println("  sign-slack         Print the signature headers Slack would send for a payload")
	fmt.Println("  help               Show this help message")
	fmt.Println("")
	fmt.Println("Flags for dump-records:")
	fmt.Println("  --output FILE      Write output to file instead of stdout")
	fmt.Println("  --pretty           Pretty-print JSON output")
	fmt.Println("  --url URL          Only dump records for one pull request")
	fmt.Println("")
	fmt.Println("Flags for wipe-records:")
	fmt.Println("  --force            Skip confirmation prompt (DANGEROUS!)")
	fmt.Println("")
	fmt.Println("Flags for sign-github and sign-slack:")
	fmt.Println("  --file FILE        Payload to sign (default: stdin)")
	fmt.Println("  --timestamp UNIX   Request timestamp for sign-slack (default: now)")
	fmt.Println("")
}

// setup loads configuration and installs the logger. Logs go to stderr so stdout stays clean.
func setup() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log.Setup(os.Stderr, cfg.LogLevel, cfg.GinMode == "release")
	return cfg
}

// openStore opens the configured durable store, refusing the memory backend.
func openStore(ctx context.Context, cfg *config.Config) (services.TrackingStore, io.Closer) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		log.Error(ctx, "No durable store configured", "error", ErrMemoryBackend, "store_backend", cfg.StoreBackend)
		os.Exit(1)
	}
	store, closer, err := services.OpenTrackingStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "Failed to open tracking store", "error", err)
		os.Exit(1)
	}
	return store, closer
}

func closeStore(ctx context.Context, closer io.Closer) {
	if err := closer.Close(); err != nil {
		log.Error(ctx, "Error closing tracking store", "error", err)
	}
}

func handleDumpRecords() {
	var outputFile, url string
	var prettyPrint bool

	fs := flag.NewFlagSet("dump-records", flag.ExitOnError)
	fs.StringVar(&outputFile, "output", "", "Write output to file instead of stdout")
	fs.BoolVar(&prettyPrint, "pretty", false, "Pretty-print JSON output")
	fs.StringVar(&url, "url", "", "Only dump records for one pull request")
	_ = fs.Parse(os.Args[2:])

	cfg := setup()
	ctx := context.Background()
	store, closer := openStore(ctx, cfg)
	defer closeStore(ctx, closer)

	var records []*models.TrackingRecord
	var err error
	if url != "" {
		records, err = store.FindByURL(ctx, url)
	} else {
		records, err = store.ListAll(ctx)
	}
	if err != nil {
		log.Error(ctx, "Failed to load tracking records", "error", err)
		os.Exit(1)
	}

	var jsonData []byte
	if prettyPrint {
		jsonData, err = json.MarshalIndent(records, "", "  ")
	} else {
		jsonData, err = json.Marshal(records)
	}
	if err != nil {
		log.Error(ctx, "Failed to marshal JSON", "error", err)
		os.Exit(1)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, jsonData, filePermReadWrite); err != nil {
			log.Error(ctx, "Failed to write output file", "file", outputFile, "error", err)
			os.Exit(1)
		}
		log.Info(ctx, "Exported tracking records", "file", outputFile, "records", len(records), "size_bytes", len(jsonData))
		return
	}
	fmt.Println(string(jsonData))
}

func handleWipeRecords() {
	var force bool

	fs := flag.NewFlagSet("wipe-records", flag.ExitOnError)
	fs.BoolVar(&force, "force", false, "Skip confirmation prompt (DANGEROUS!)")
	_ = fs.Parse(os.Args[2:])

	cfg := setup()
	ctx := context.Background()
	store, closer := openStore(ctx, cfg)
	defer closeStore(ctx, closer)

	if !force {
		if err := confirmWipeOperation(cfg, os.Stdin); err != nil {
			if errors.Is(err, ErrOperationCancelled) {
				log.Info(ctx, "Operation cancelled by user")
				return
			}
			log.Error(ctx, "Failed to get confirmation", "error", err)
			os.Exit(1)
		}
	}

	deleted, err := wipeRecords(ctx, store)
	if err != nil {
		log.Error(ctx, "Failed to wipe tracking records", "error", err, "records_deleted", deleted)
		os.Exit(1)
	}
	log.Info(ctx, "Wiped tracking records", "records_deleted", deleted)
}

func confirmWipeOperation(cfg *config.Config, in io.Reader) error {
	fmt.Printf("\nWARNING: This will DELETE ALL tracking records!\n")
	fmt.Printf("   Backend: %s\n", cfg.StoreBackend)
	switch cfg.StoreBackend {
	case config.StoreBackendFirestore:
		fmt.Printf("   Project: %s\n", cfg.FirestoreProjectID)
		fmt.Printf("   Database: %s\n", cfg.FirestoreDatabaseID)
	case config.StoreBackendSQL:
		fmt.Printf("   Driver: %s\n", cfg.DatabaseDriver)
	}
	fmt.Printf("\nThis operation cannot be undone!\n\n")

	fmt.Print("Are you absolutely sure you want to continue? (type 'DELETE' to confirm): ")

	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read user input: %w", err)
	}

	if strings.TrimSpace(response) != "DELETE" {
		return ErrOperationCancelled
	}
	return nil
}

// wipeRecords deletes every record, one DeleteAll per chat location.
func wipeRecords(ctx context.Context, store services.TrackingStore) (int, error) {
	records, err := store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tracking records: %w", err)
	}

	byLocation := make(map[models.ChatLocation][]string)
	var order []models.ChatLocation
	for _, r := range records {
		loc := r.Location()
		if _, ok := byLocation[loc]; !ok {
			order = append(order, loc)
		}
		byLocation[loc] = append(byLocation[loc], r.URL)
	}

	deleted := 0
	for _, loc := range order {
		urls := byLocation[loc]
		if err := store.DeleteAll(ctx, urls, loc); err != nil {
			return deleted, fmt.Errorf("failed to delete records at %s/%s: %w", loc.Channel, loc.Timestamp, err)
		}
		deleted += len(urls)
		log.Debug(ctx, "Deleted records for message", "channel", loc.Channel, "message_timestamp", loc.Timestamp, "records", len(urls))
	}
	return deleted, nil
}

func handleMigrateSQL() {
	cfg := setup()
	ctx := context.Background()

	if cfg.StoreBackend != config.StoreBackendSQL {
		log.Error(ctx, "migrate-sql requires STORE_BACKEND=sql", "store_backend", cfg.StoreBackend)
		os.Exit(1)
	}

	store, closer := openStore(ctx, cfg)
	defer closeStore(ctx, closer)

	sqlStore, ok := store.(*services.SQLService)
	if !ok {
		log.Error(ctx, "Configured store is not SQL backed")
		os.Exit(1)
	}
	if err := sqlStore.Migrate(ctx); err != nil {
		log.Error(ctx, "Failed to migrate tracking schema", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "Tracking schema is up to date", "driver", cfg.DatabaseDriver)
}

func readPayload(fs *flag.FlagSet, file string) []byte {
	var (
		body []byte
		err  error
	)
	if file == "" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(file)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to read payload: %v\n", fs.Name(), err)
		os.Exit(1)
	}
	return body
}

func handleSignGitHub() {
	var file string

	fs := flag.NewFlagSet("sign-github", flag.ExitOnError)
	fs.StringVar(&file, "file", "", "Payload to sign (default: stdin)")
	_ = fs.Parse(os.Args[2:])

	cfg := setup()
	body := readPayload(fs, file)

	fmt.Printf("%s: %s\n", auth.GitHubSignatureHeader, auth.GitHubSignature([]byte(cfg.GitHubWebhookSecret), body))
}

func handleSignSlack() {
	var file string
	var timestamp int64

	fs := flag.NewFlagSet("sign-slack", flag.ExitOnError)
	fs.StringVar(&file, "file", "", "Payload to sign (default: stdin)")
	fs.Int64Var(&timestamp, "timestamp", 0, "Request timestamp in unix seconds (default: now)")
	_ = fs.Parse(os.Args[2:])

	cfg := setup()
	body := readPayload(fs, file)

	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}
	ts := strconv.FormatInt(timestamp, 10)

	fmt.Printf("%s: %s\n", auth.SlackTimestampHeader, ts)
	fmt.Printf("%s: %s\n", auth.SlackSignatureHeader, auth.SlackSignature(cfg.SlackSigningSecret, ts, body))
}
