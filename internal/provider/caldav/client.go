// Package caldav binds a CalDAV collection as one side of the engine.
// Identity metadata is persisted as X-CALSYNC-* properties on the
// stored VEVENTs, so linkage survives restarts without local state.
package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"calsync/internal/model"
	"calsync/internal/provider"
	"calsync/pkg/log"
)

type Config struct {
	Endpoint string `mapstructure:"endpoint"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// CalendarPath is the collection path on the server. Empty means
	// discover and use the principal's first calendar.
	CalendarPath string `mapstructure:"calendar_path"`
}

type Client struct {
	cfg Config
	cd  *caldav.Client
	l   log.Logger

	mu    sync.Mutex
	paths map[string]string // event UID -> object path
}

var _ provider.Client = (*Client)(nil)

func New(cfg Config, l log.Logger) (*Client, error) {
	hc := webdav.HTTPClientWithBasicAuth(
		&http.Client{Timeout: 30 * time.Second},
		cfg.Username, cfg.Password,
	)
	cd, err := caldav.NewClient(hc, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("new caldav client: %w", err)
	}
	return &Client{
		cfg:   cfg,
		cd:    cd,
		l:     l,
		paths: make(map[string]string),
	}, nil
}

// Discover resolves the collection path when none was configured.
func (c *Client) Discover(ctx context.Context) error {
	if c.cfg.CalendarPath != "" {
		return nil
	}
	principal, err := c.cd.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := c.cd.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return fmt.Errorf("find calendar home set: %w", err)
	}
	calendars, err := c.cd.FindCalendars(ctx, homeSet)
	if err != nil {
		return fmt.Errorf("find calendars: %w", err)
	}
	if len(calendars) == 0 {
		return fmt.Errorf("no calendars under %s", homeSet)
	}
	c.cfg.CalendarPath = calendars[0].Path
	c.l.Infof(ctx, "caldav.Client.Discover using calendar %s (%s)", calendars[0].Name, calendars[0].Path)
	return nil
}

func (c *Client) CollectionID() string {
	return c.cfg.CalendarPath
}

func (c *Client) ListEvents(ctx context.Context, win provider.TimeWindow) ([]*model.Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			Comps:    []caldav.CalendarCompRequest{{Name: "VEVENT", AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: win.Start,
				End:   win.End,
			}},
		},
	}
	objs, err := c.cd.QueryCalendar(ctx, c.cfg.CalendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar %s: %w", c.cfg.CalendarPath, err)
	}

	events := make([]*model.Event, 0, len(objs))
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range objs {
		ev, err := decodeObject(objs[i].Data, c.cfg.CalendarPath)
		if err != nil {
			c.l.Warnf(ctx, "caldav.Client.ListEvents skipping %s: %v", objs[i].Path, err)
			continue
		}
		if ev.Updated.IsZero() {
			ev.Updated = objs[i].ModTime
		}
		c.paths[ev.ID] = objs[i].Path
		events = append(events, ev)
	}
	return events, nil
}

func (c *Client) CreateEvent(ctx context.Context, ev *model.Event) (*model.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.CollectionID = c.cfg.CalendarPath
	path := c.objectPath(ev.ID)

	if _, err := c.cd.PutCalendarObject(ctx, path, encodeObject(ev)); err != nil {
		return nil, fmt.Errorf("put calendar object %s: %w", path, err)
	}
	c.mu.Lock()
	c.paths[ev.ID] = path
	c.mu.Unlock()
	return ev, nil
}

func (c *Client) SaveEvent(ctx context.Context, ev *model.Event) error {
	path, ok := c.lookupPath(ev.ID)
	if !ok {
		return fmt.Errorf("save event %s: unknown object path", ev.ID)
	}
	if _, err := c.cd.PutCalendarObject(ctx, path, encodeObject(ev)); err != nil {
		return fmt.Errorf("put calendar object %s: %w", path, err)
	}
	return nil
}

func (c *Client) DeleteEvent(ctx context.Context, ev *model.Event) error {
	path, ok := c.lookupPath(ev.ID)
	if !ok {
		return fmt.Errorf("delete event %s: unknown object path", ev.ID)
	}
	if err := c.cd.RemoveAll(ctx, path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	c.mu.Lock()
	delete(c.paths, ev.ID)
	c.mu.Unlock()
	return nil
}

func (c *Client) lookupPath(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path, ok := c.paths[id]
	return path, ok
}

func (c *Client) objectPath(id string) string {
	return strings.TrimSuffix(c.cfg.CalendarPath, "/") + "/" + id + ".ics"
}
