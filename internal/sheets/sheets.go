package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const tokenFile = "token.json"

// Client fetches the raw cell range of one spreadsheet via the Google
// Sheets API. It implements ingest.SourceFetcher.
type Client struct {
	service       *sheetsapi.Service
	logger        *slog.Logger
	spreadsheetID string
	readRange     string
}

// NewClient creates a Sheets client for the given spreadsheet and range.
// Auth is resolved in priority order: apiKey (public sheets), then an OAuth
// token previously saved by the 'auth' command (private sheets). A missing
// credential is a configuration error and is reported before any run
// bookkeeping happens.
func NewClient(ctx context.Context, logger *slog.Logger, apiKey, clientID, clientSecret, spreadsheetID, readRange string) (*Client, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}

	var opts []option.ClientOption
	switch {
	case apiKey != "":
		opts = append(opts, option.WithAPIKey(apiKey))
	default:
		config, err := getOAuthConfig(clientID, clientSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to get OAuth config: %w", err)
		}
		token, err := tokenFromFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("no API key and no saved token: %w. Set SHEETS_API_KEY or run the 'auth' command first", err)
		}
		opts = append(opts, option.WithHTTPClient(config.Client(ctx, token)))
	}

	service, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		service:       service,
		logger:        logger,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
	}, nil
}

// SpreadsheetID returns the source document identifier used for provenance.
func (c *Client) SpreadsheetID() string {
	return c.spreadsheetID
}

// Fetch retrieves the configured cell range as rows of stringified cells.
// The first row is the sheet header. An empty or single-row response means
// there is nothing to ingest and is returned as an empty slice, not an error.
func (c *Client) Fetch(ctx context.Context) ([][]string, error) {
	c.logger.Debug("Fetching spreadsheet values", "spreadsheetID", c.spreadsheetID, "range", c.readRange)

	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, c.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve spreadsheet values: %w", err)
	}

	if len(resp.Values) < 2 {
		c.logger.Info("Spreadsheet has no data rows, nothing to ingest", "spreadsheetID", c.spreadsheetID)
		return nil, nil
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		cells := make([]string, 0, len(raw))
		for _, v := range raw {
			cells = append(cells, fmt.Sprint(v))
		}
		rows = append(rows, cells)
	}

	c.logger.Info("Successfully fetched spreadsheet values", "rows", len(rows), "spreadsheetID", c.spreadsheetID)
	return rows, nil
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config
// for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig builds an OAuth2 config for read-only spreadsheet access
// from the client credentials in the environment.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Scopes:       []string{sheetsapi.SpreadsheetsReadonlyScope},
		Endpoint:     google.Endpoint,
	}, nil
}

// TokenFromWeb is called by the auth flow to exchange an authorization code.
func TokenFromWeb(config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(context.Background(), authCode)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
