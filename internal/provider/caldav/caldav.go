// Package caldav adapts a permissioned CalDAV calendar store (the local
// Apple-style source) to the common provider interface. Unlike the OAuth
// providers there is no token lifecycle: access is granted or refused as a
// whole by the server, which plays the role of the OS permission prompt.
package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/upnext/upnextd/internal/domain"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/provider"
)

// Config locates the CalDAV store and its credentials.
type Config struct {
	ServerURL string
	Username  string
	Password  string
	// HomeSet is the calendar home collection path; empty means server root.
	HomeSet string
}

// Provider is the CalDAV-backed calendar provider.
type Provider struct {
	id     string
	cfg    Config
	client *caldav.Client
	log    logger.Logger

	mu    sync.Mutex
	state provider.AuthState
}

// New builds the provider. The server is not contacted until Authorize.
func New(id string, cfg Config, log logger.Logger) (*Provider, error) {
	if cfg.ServerURL == "" {
		return nil, domain.ErrConfigMissing
	}

	var httpClient webdav.HTTPClient = http.DefaultClient
	if cfg.Username != "" && cfg.Password != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password)
	}

	client, err := caldav.NewClient(httpClient, cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &Provider{
		id:     id,
		cfg:    cfg,
		client: client,
		log:    log,
		state:  provider.StateUnauthorized,
	}, nil
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) Status() provider.AuthState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Authorize probes the configured home set. A successful listing is the
// permission grant; a 401/403 answer is the user (or server policy) refusing
// access and requires reconfiguration to leave.
func (p *Provider) Authorize(ctx context.Context) (string, error) {
	_, err := p.client.FindCalendars(ctx, p.cfg.HomeSet)
	if err != nil {
		state := provider.StateError
		if isAccessRefused(err) {
			state = provider.StateDenied
		}
		p.setState(state)
		return "", fmt.Errorf("caldav probe failed: %w", err)
	}

	p.setState(provider.StateAuthorized)
	p.log.Info("caldav store accessible", logger.String("provider", p.id))
	return "", nil
}

// Disconnect forgets the granted state. The server credentials come from
// configuration, so there is nothing to revoke remotely.
func (p *Provider) Disconnect(context.Context) error {
	p.setState(provider.StateUnauthorized)
	return nil
}

// FetchRange queries every calendar in the home set for VEVENTs overlapping
// [start, end) and maps them onto Meetings.
func (p *Provider) FetchRange(ctx context.Context, start, end time.Time) ([]domain.Meeting, error) {
	calendars, err := p.client.FindCalendars(ctx, p.cfg.HomeSet)
	if err != nil {
		if isAccessRefused(err) {
			p.setState(provider.StateDenied)
			return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("%w: finding calendars: %v", domain.ErrNetwork, err)
	}

	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start,
				End:   end,
			}},
		},
	}

	var meetings []domain.Meeting
	for _, cal := range calendars {
		objects, err := p.client.QueryCalendar(ctx, cal.Path, query)
		if err != nil {
			return nil, fmt.Errorf("%w: querying calendar %s: %v", domain.ErrNetwork, cal.Path, err)
		}
		for _, obj := range objects {
			for _, comp := range obj.Data.Component.Children {
				if comp.Name != ical.CompEvent {
					continue
				}
				m, err := p.mapEvent(comp, cal.Name, start.Location())
				if err != nil {
					p.log.Debug("skipping unparseable event",
						logger.String("provider", p.id),
						logger.Error(err))
					continue
				}
				meetings = append(meetings, m)
			}
		}
	}

	// A full fetch proves access; clears a transient probe failure.
	p.setState(provider.StateAuthorized)
	return meetings, nil
}

func (p *Provider) mapEvent(comp *ical.Component, calendarName string, loc *time.Location) (domain.Meeting, error) {
	startTime, err := comp.Props.DateTime(ical.PropDateTimeStart, loc)
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("DTSTART: %w", err)
	}
	endTime, err := comp.Props.DateTime(ical.PropDateTimeEnd, loc)
	if err != nil || endTime.Before(startTime) {
		// Zero-length placeholder when DTEND is absent or nonsensical.
		endTime = startTime
	}

	allDay := false
	if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil && prop.ValueType() == ical.ValueDate {
		allDay = true
	}

	location := textProp(comp.Props, ical.PropLocation)
	notes := textProp(comp.Props, ical.PropDescription)
	eventURL := textProp(comp.Props, ical.PropURL)

	return domain.Meeting{
		ID:           domain.MeetingID(p.id, textProp(comp.Props, ical.PropUID)),
		Title:        domain.TitleOrDefault(textProp(comp.Props, ical.PropSummary)),
		StartTime:    startTime,
		EndTime:      endTime,
		IsAllDay:     allDay,
		Location:     location,
		JoinURL:      domain.ExtractJoinURL(eventURL, location, notes),
		Provider:     p.id,
		CalendarName: calendarName,
	}, nil
}

func (p *Provider) setState(s provider.AuthState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func textProp(props ical.Props, name string) string {
	prop := props.Get(name)
	if prop == nil {
		return ""
	}
	return prop.Value
}

// isAccessRefused spots authentication/authorization rejections in webdav
// client errors, which only surface as formatted HTTP status text. Matching
// whole tokens keeps status digits embedded in URLs or calendar names from
// counting as a rejection.
func isAccessRefused(err error) bool {
	for _, field := range strings.Fields(err.Error()) {
		switch strings.Trim(field, ":(),.") {
		case "401", "403", "Unauthorized", "Forbidden":
			return true
		}
	}
	return false
}
