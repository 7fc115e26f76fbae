// Package publish pushes ingested events from the store to a CalDAV
// calendar, so records pulled from the spreadsheet show up in the user's
// regular calendar client. It reads the store only; reconciliation stays
// the store's job.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"sheetsync/internal/models"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "sheetsync/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient is a client for publishing events to a CalDAV server.
type CalDAVClient struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	endpoint     string
	calendarURL  string
}

// NewClient creates a CalDAVClient against the given endpoint and resolves
// the calendar with the given display name.
func NewClient(logger *slog.Logger, endpoint, username, password, calendarName string) (*CalDAVClient, error) {
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	c := &CalDAVClient{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		endpoint:     endpoint,
	}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarURL, err := c.findCalendar(context.Background(), calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	c.calendarURL = calendarURL
	logger.Info("Successfully found CalDAV calendar", "url", calendarURL)

	return c, nil
}

// PublishEvents pushes the given events one at a time. A failure on one
// event is logged and does not stop the rest; the number of events that
// made it is returned.
func (c *CalDAVClient) PublishEvents(ctx context.Context, events []models.Event) (int, error) {
	published := 0
	for _, ev := range events {
		if err := c.publishEvent(ctx, ev); err != nil {
			c.logger.Error("Failed to publish event", "title", ev.Title, "error", err)
			continue
		}
		published++
	}
	c.logger.Info("Finished publishing events", "published", published, "total", len(events))
	return published, nil
}

func (c *CalDAVClient) publishEvent(ctx context.Context, event models.Event) error {
	c.logger.Debug("Publishing event", "title", event.Title, "id", event.ID)

	uid := event.ID
	if uid == "" {
		uid = uuid.New().String()
	}

	vevent, err := c.toICal(event, uid)
	if err != nil {
		return err
	}
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//sheetsync//EN")
	cal.Children = append(cal.Children, vevent)

	// The event path must be relative to the endpoint for the webdav client.
	eventPath := path.Join(strings.TrimPrefix(c.calendarURL, c.endpoint), fmt.Sprintf("%s.ics", uid))

	writer, err := c.webdavClient.Create(ctx, eventPath)
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	defer writer.Close()

	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	return nil
}

// toICal converts a canonical event to an ical VEVENT. The stored ISO date
// and time strings are combined into local wall-clock timestamps.
func (c *CalDAVClient) toICal(event models.Event, uid string) (*ical.Component, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04:05", event.Date+" "+event.StartTime, time.Local)
	if err != nil {
		return nil, fmt.Errorf("event has invalid start: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02 15:04:05", event.Date+" "+event.EndTime, time.Local)
	if err != nil {
		return nil, fmt.Errorf("event has invalid end: %w", err)
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, end)

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.MeetingLink != "" {
		ve.Props.SetText(ical.PropURL, event.MeetingLink)
	}
	return ve, nil
}

// findCalendar discovers the account's calendars and returns the URL for
// the one with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return fmt.Sprintf("%s%s", strings.TrimSuffix(c.endpoint, "/"), cal.Path), nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
