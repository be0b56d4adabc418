// Package google binds a Google Calendar as one side of the engine.
// Identity metadata is persisted in extended private properties.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calsync/internal/model"
	"calsync/internal/provider"
	"calsync/pkg/log"
)

const listPageSize = 250

type Config struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
	CalendarID      string `mapstructure:"calendar_id"`

	// RequestsPerSecond throttles all API calls. Zero means the default.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type Client struct {
	svc        *calendar.Service
	calendarID string
	limiter    *rate.Limiter
	l          log.Logger
}

var _ provider.Client = (*Client)(nil)

// NewFromCredentialsFile creates a client from a credentials JSON file,
// either a service account key or OAuth installed-app credentials.
func NewFromCredentialsFile(ctx context.Context, cfg Config, l log.Logger) (*Client, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return NewFromCredentialsJSON(ctx, cfg, data, l)
}

// NewFromCredentialsJSON creates a client from raw credentials bytes.
// Service account keys are tried first; installed-app credentials need
// a previously stored token file.
func NewFromCredentialsJSON(ctx context.Context, cfg Config, credentialsJSON []byte, l log.Logger) (*Client, error) {
	config, err := goauth.JWTConfigFromJSON(credentialsJSON, calendar.CalendarScope)
	if err == nil {
		svc, svcErr := calendar.NewService(ctx, option.WithTokenSource(config.TokenSource(ctx)))
		if svcErr != nil {
			return nil, fmt.Errorf("new calendar service: %w", svcErr)
		}
		return newClient(svc, cfg, l), nil
	}

	oauthConfig, err := InstalledAppConfig(credentialsJSON)
	if err != nil {
		return nil, err
	}

	tokenData, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("credentials are OAuth installed-app type but token file is missing, run gcal-auth first: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenData, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(oauthConfig.TokenSource(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("new calendar service from token: %w", err)
	}
	return newClient(svc, cfg, l), nil
}

// NewFromHTTP creates a client from a pre-configured HTTP client.
func NewFromHTTP(ctx context.Context, cfg Config, httpClient *http.Client, l log.Logger) (*Client, error) {
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("new calendar service: %w", err)
	}
	return newClient(svc, cfg, l), nil
}

// InstalledAppConfig parses OAuth installed-app credentials. The
// gcal-auth command uses it to run the initial consent flow.
func InstalledAppConfig(credentialsJSON []byte) (*oauth2.Config, error) {
	var creds struct {
		Installed struct {
			ClientID     string   `json:"client_id"`
			ClientSecret string   `json:"client_secret"`
			RedirectURIs []string `json:"redirect_uris"`
		} `json:"installed"`
	}
	if err := json.Unmarshal(credentialsJSON, &creds); err != nil || creds.Installed.ClientID == "" {
		return nil, fmt.Errorf("unsupported credentials format")
	}
	redirect := "urn:ietf:wg:oauth:2.0:oob"
	if len(creds.Installed.RedirectURIs) > 0 {
		redirect = creds.Installed.RedirectURIs[0]
	}
	return &oauth2.Config{
		ClientID:     creds.Installed.ClientID,
		ClientSecret: creds.Installed.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       []string{calendar.CalendarScope},
		Endpoint:     goauth.Endpoint,
	}, nil
}

func newClient(svc *calendar.Service, cfg Config, l log.Logger) *Client {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	qps := cfg.RequestsPerSecond
	if qps <= 0 {
		qps = 5
	}
	return &Client{
		svc:        svc,
		calendarID: cfg.CalendarID,
		limiter:    rate.NewLimiter(rate.Limit(qps), 1),
		l:          l,
	}
}

func (c *Client) CollectionID() string {
	return c.calendarID
}

// ListEvents reads the window without expanding series: masters come
// back with their recurrence, diverged occurrences come back as
// separate items and are folded into their master's exception list.
func (c *Client) ListEvents(ctx context.Context, win provider.TimeWindow) ([]*model.Event, error) {
	var items []*calendar.Event
	pageToken := ""
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := c.svc.Events.List(c.calendarID).
			Context(ctx).
			TimeMin(win.Start.Format(time.RFC3339)).
			TimeMax(win.End.Format(time.RFC3339)).
			SingleEvents(false).
			ShowDeleted(true).
			MaxResults(listPageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list events in %s: %w", c.calendarID, err)
		}
		items = append(items, page.Items...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	byID := make(map[string]*model.Event)
	var events []*model.Event
	var instances []*calendar.Event
	for _, item := range items {
		if item.RecurringEventId != "" {
			instances = append(instances, item)
			continue
		}
		if item.Status == "cancelled" {
			continue
		}
		ev, err := fromGoogleEvent(item, c.calendarID)
		if err != nil {
			c.l.Warnf(ctx, "google.Client.ListEvents skipping %s: %v", item.Id, err)
			continue
		}
		byID[item.Id] = ev
		events = append(events, ev)
	}

	for _, item := range instances {
		master, ok := byID[item.RecurringEventId]
		if !ok {
			// Master outside the window; the occurrence has no home.
			c.l.Debugf(ctx, "google.Client.ListEvents orphan occurrence %s of %s", item.Id, item.RecurringEventId)
			continue
		}
		orig, err := parseOriginalStart(item)
		if err != nil {
			c.l.Warnf(ctx, "google.Client.ListEvents occurrence %s: %v", item.Id, err)
			continue
		}
		if item.Status == "cancelled" {
			master.Exceptions = append(master.Exceptions, model.Exception{OriginalStart: orig, Cancelled: true})
			continue
		}
		override, err := fromGoogleEvent(item, c.calendarID)
		if err != nil {
			c.l.Warnf(ctx, "google.Client.ListEvents occurrence %s: %v", item.Id, err)
			continue
		}
		master.Exceptions = append(master.Exceptions, model.Exception{OriginalStart: orig, Override: override})
	}
	return events, nil
}

func (c *Client) CreateEvent(ctx context.Context, ev *model.Event) (*model.Event, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	created, err := c.svc.Events.Insert(c.calendarID, toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	ev.ID = created.Id
	ev.CollectionID = c.calendarID
	return ev, nil
}

// SaveEvent writes the full item back. Occurrence overrides are their
// own resources on this provider and are not written here.
func (c *Client) SaveEvent(ctx context.Context, ev *model.Event) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.svc.Events.Update(c.calendarID, ev.ID, toGoogleEvent(ev)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("update event %s: %w", ev.ID, err)
	}
	return nil
}

// PatchMeta writes only the item's metadata map, leaving every other
// field untouched. Cheaper than SaveEvent for link stamping.
func (c *Client) PatchMeta(ctx context.Context, ev *model.Event) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	patch := &calendar.Event{
		ExtendedProperties: &calendar.EventExtendedProperties{Private: ev.Meta},
	}
	if _, err := c.svc.Events.Patch(c.calendarID, ev.ID, patch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("patch event %s: %w", ev.ID, err)
	}
	return nil
}

func (c *Client) DeleteEvent(ctx context.Context, ev *model.Event) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.svc.Events.Delete(c.calendarID, ev.ID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", ev.ID, err)
	}
	return nil
}

// Watch registers a push notification channel for the calendar. The
// returned channel carries the id and expiration needed to stop it.
func (c *Client) Watch(ctx context.Context, address, token string) (*calendar.Channel, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ch := &calendar.Channel{
		Id:      uuid.NewString(),
		Type:    "web_hook",
		Address: address,
		Token:   token,
	}
	out, err := c.svc.Events.Watch(c.calendarID, ch).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("watch calendar %s: %w", c.calendarID, err)
	}
	return out, nil
}

// StopWatch tears down a push channel created by Watch.
func (c *Client) StopWatch(ctx context.Context, ch *calendar.Channel) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.svc.Channels.Stop(ch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("stop channel %s: %w", ch.Id, err)
	}
	return nil
}
