package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/planward/planward/internal/planning/domain"
)

// PropXPlanward marks events created by the executor so later collection
// cycles can tell them apart from foreign calendar entries.
const PropXPlanward = "X-PLANWARD"

// Client reads busy blocks from a CalDAV calendar and writes scheduled
// assignments back as events.
type Client struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	logger       *slog.Logger
}

// NewClient creates a CalDAV client. calendarPath may be empty, in which
// case the first calendar of the account is discovered and used.
func NewClient(baseURL, username, password, calendarPath string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      baseURL,
		username:     username,
		password:     password,
		calendarPath: calendarPath,
		logger:       logger,
	}
}

// Events returns the calendar events intersecting the given window.
func (c *Client) Events(ctx context.Context, window domain.TimeRange) ([]domain.CalendarEvent, error) {
	client, err := c.getClient()
	if err != nil {
		return nil, err
	}

	calPath, err := c.findCalendarPath(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar: %w", err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{
				{
					Name:  "VEVENT",
					Props: []string{"SUMMARY", "DTSTART", "DTEND", "UID", "TRANSP", PropXPlanward},
				},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: window.Start,
					End:   window.End,
				},
			},
		},
	}

	objects, err := client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	events := make([]domain.CalendarEvent, 0, len(objects))
	for _, obj := range objects {
		if event, ok := parseCalendarObject(&obj); ok {
			events = append(events, event)
		}
	}

	return events, nil
}

// CreateEvent writes one plan assignment to the calendar.
func (c *Client) CreateEvent(ctx context.Context, assignment domain.Assignment) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}

	calPath, err := c.findCalendarPath(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to find calendar: %w", err)
	}

	eventPath := fmt.Sprintf("%s%s.ics", calPath, assignment.TaskID.String())
	cal := toICalendar(assignment)

	if _, err := client.PutCalendarObject(ctx, eventPath, cal); err != nil {
		return fmt.Errorf("failed to put calendar object: %w", err)
	}

	c.logger.Debug("calendar event created",
		"path", eventPath,
		"start", assignment.Slot.Start,
	)
	return nil
}

// RemoveEvent deletes a previously created assignment event.
func (c *Client) RemoveEvent(ctx context.Context, taskID string) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}

	calPath, err := c.findCalendarPath(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to find calendar: %w", err)
	}

	return client.RemoveAll(ctx, fmt.Sprintf("%s%s.ics", calPath, taskID))
}

func (c *Client) getClient() (*caldav.Client, error) {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
			base:     http.DefaultTransport,
		},
	}

	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, c.username, c.password), c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	return client, nil
}

func (c *Client) findCalendarPath(ctx context.Context, client *caldav.Client) (string, error) {
	if c.calendarPath != "" {
		return c.calendarPath, nil
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars found")
	}

	// Use first calendar as default
	return cals[0].Path, nil
}

// toICalendar converts an assignment to an ical.Calendar.
func toICalendar(assignment domain.Assignment) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Planward//Scheduler//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, assignment.TaskID.String())
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, assignment.Slot.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, assignment.Slot.End.UTC())
	event.Props.SetText(ical.PropSummary, assignment.Title)

	prop := ical.NewProp(PropXPlanward)
	prop.Value = "1"
	event.Props[PropXPlanward] = []ical.Prop{*prop}

	cal.Children = append(cal.Children, event.Component)

	return cal
}

func parseCalendarObject(obj *caldav.CalendarObject) (domain.CalendarEvent, bool) {
	if obj == nil || obj.Data == nil {
		return domain.CalendarEvent{}, false
	}

	for _, child := range obj.Data.Children {
		if child.Name != ical.CompEvent {
			continue
		}

		event := domain.CalendarEvent{
			ID:   obj.Path,
			Busy: true,
		}

		if props := child.Props[ical.PropUID]; len(props) > 0 {
			event.ID = props[0].Value
		}
		if props := child.Props[ical.PropSummary]; len(props) > 0 {
			event.Title = props[0].Value
		}
		// TRANSP:TRANSPARENT events do not block the schedule.
		if props := child.Props[ical.PropTransparency]; len(props) > 0 {
			event.Busy = props[0].Value != "TRANSPARENT"
		}

		icalEvent := &ical.Event{Component: child}
		start, err := icalEvent.DateTimeStart(time.UTC)
		if err != nil {
			return domain.CalendarEvent{}, false
		}
		end, err := icalEvent.DateTimeEnd(time.UTC)
		if err != nil {
			return domain.CalendarEvent{}, false
		}
		event.Slot = domain.NewTimeRange(start, end)

		return event, true
	}

	return domain.CalendarEvent{}, false
}

type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}
