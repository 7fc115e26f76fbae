package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"sheetsync/internal/ingest"
	"sheetsync/internal/publish"
	"sheetsync/internal/sheets"
	"sheetsync/internal/store"
)

const (
	defaultRange    = "Sheet1!A1:H100"
	defaultDBPath   = "sheetsync.db"
	defaultEndpoint = "https://caldav.icloud.com/"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "sheetsync",
		Usage: "Ingest events and tasks from a Google Sheet into the tracker store.",
		Commands: []*cli.Command{
			authCommand(),
			syncCommand(),
			runsCommand(),
			publishCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account for reading private spreadsheets.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			config, err := sheets.GetOAuthConfigForAuthFlow(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := sheets.TokenFromWeb(config, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			if err := sheets.SaveToken("token.json", token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", "token.json")
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run the spreadsheet ingestion pipeline.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run one ingestion pass and exit (default)."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Re-run ingestion every N seconds. Overrides --once."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			sheetID := os.Getenv("SHEETSYNC_SPREADSHEET_ID")
			if sheetID == "" {
				return fmt.Errorf("SHEETSYNC_SPREADSHEET_ID environment variable not set")
			}

			readRange := os.Getenv("SHEETSYNC_RANGE")
			if readRange == "" {
				readRange = defaultRange
			}

			client, err := sheets.NewClient(c.Context, logger,
				os.Getenv("SHEETS_API_KEY"),
				os.Getenv("GOOGLE_CLIENT_ID"),
				os.Getenv("GOOGLE_CLIENT_SECRET"),
				sheetID, readRange)
			if err != nil {
				return fmt.Errorf("failed to create sheets client: %w", err)
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ingestor := ingest.NewIngestor(logger, client, st, sheetID, assumedYear())

			if c.IsSet("watch") {
				interval := time.Duration(c.Int("watch")) * time.Second
				logger.Info("Starting watcher.", "interval", interval)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for ; true; <-ticker.C {
					result, err := ingestor.Run(c.Context)
					switch {
					case errors.Is(err, store.ErrRunInProgress):
						logger.Warn("Skipping cycle, a run is already in progress.")
					case err != nil:
						logger.Error("Ingestion run failed", "error", err)
					default:
						printResult(result)
					}
				}
				return nil
			}

			logger.Info("Running a single ingestion pass.")
			result, err := ingestor.Run(c.Context)
			if err != nil {
				return fmt.Errorf("ingestion run failed: %w", err)
			}
			printResult(result)
			return nil
		},
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recent ingestion runs.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum number of runs to show."},
		},
		Action: func(c *cli.Context) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(c.Context, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			for _, run := range runs {
				line := fmt.Sprintf("%s  %-7s  started=%s  processed=%d created=%d updated=%d",
					run.ID, run.Status, run.StartedAt.Format(time.RFC3339),
					run.ItemsProcessed, run.ItemsCreated, run.ItemsUpdated)
				if run.ErrorMessage != "" {
					line += "  error=" + run.ErrorMessage
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish ingested events to a CalDAV calendar.",
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			sheetID := os.Getenv("SHEETSYNC_SPREADSHEET_ID")
			if sheetID == "" {
				return fmt.Errorf("SHEETSYNC_SPREADSHEET_ID environment variable not set")
			}

			endpoint := os.Getenv("CALDAV_ENDPOINT")
			if endpoint == "" {
				endpoint = defaultEndpoint
			}

			client, err := publish.NewClient(logger, endpoint,
				os.Getenv("CALDAV_USERNAME"),
				os.Getenv("CALDAV_PASSWORD"),
				os.Getenv("CALDAV_CALENDAR_NAME"))
			if err != nil {
				return fmt.Errorf("failed to create caldav client: %w", err)
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			events, err := st.ListIngestedEvents(c.Context, sheetID)
			if err != nil {
				return fmt.Errorf("failed to load ingested events: %w", err)
			}

			published, err := client.PublishEvents(c.Context, events)
			if err != nil {
				return fmt.Errorf("failed to publish events: %w", err)
			}
			fmt.Printf("Published %d of %d events.\n", published, len(events))
			return nil
		},
	}
}

func openStore() (*store.Store, error) {
	path := os.Getenv("SHEETSYNC_DB")
	if path == "" {
		path = defaultDBPath
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

// assumedYear is the year combined with day-month date cells ("28-Apr").
func assumedYear() int {
	if v := os.Getenv("SHEETSYNC_YEAR"); v != "" {
		if year, err := strconv.Atoi(v); err == nil {
			return year
		}
	}
	return time.Now().Year()
}

func printResult(result *ingest.Result) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(out))
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
