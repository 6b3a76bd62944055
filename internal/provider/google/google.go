// Package google adapts the Google Calendar API to the common provider
// interface. Authorization runs through the shared OAuth token lifecycle
// manager; every fetch obtains a currently-valid token from it first.
package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/upnext/upnextd/internal/credstore"
	"github.com/upnext/upnextd/internal/domain"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/provider"
	"github.com/upnext/upnextd/internal/token"
)

// Config carries the OAuth client registration for this deployment.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Provider is the Google Calendar provider.
type Provider struct {
	id  string
	mgr *token.Manager
	log logger.Logger

	// newService is swapped in tests to point the client at a fake API.
	newService func(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error)
}

// New builds the provider. An empty ClientID is allowed; the config error
// surfaces when the user tries to connect.
func New(id string, cfg Config, store credstore.Store, log logger.Logger) *Provider {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{calendar.CalendarReadonlyScope},
		Endpoint:     googleoauth.Endpoint,
	}
	return &Provider{
		id:  id,
		mgr: token.NewManager(id, oauthCfg, store, log),
		log: log,
		newService: func(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error) {
			return calendar.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
		},
	}
}

func (p *Provider) ID() string                 { return p.id }
func (p *Provider) Status() provider.AuthState { return p.mgr.State() }

// Authorize starts the consent flow and returns the URL the user must visit.
func (p *Provider) Authorize(context.Context) (string, error) {
	return p.mgr.BeginAuth()
}

// CompleteAuth finishes the flow when the OAuth redirect is captured.
func (p *Provider) CompleteAuth(ctx context.Context, state, code string) error {
	return p.mgr.CompleteAuth(ctx, state, code)
}

// Restore resumes a persisted session after a restart.
func (p *Provider) Restore(ctx context.Context) error { return p.mgr.Restore(ctx) }

// MarkDenied records a declined consent screen.
func (p *Provider) MarkDenied() { p.mgr.MarkDenied() }

// Disconnect revokes the stored token set. Idempotent.
func (p *Provider) Disconnect(ctx context.Context) error {
	return p.mgr.Revoke(ctx)
}

// FetchRange lists events overlapping [start, end) across all calendars the
// account can see, recurring events expanded into instances.
func (p *Provider) FetchRange(ctx context.Context, start, end time.Time) ([]domain.Meeting, error) {
	tok, err := p.mgr.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := p.newService(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	var calendars []*calendar.CalendarListEntry
	err = svc.CalendarList.List().
		Fields("items(id,summary,backgroundColor),nextPageToken").
		Pages(ctx, func(page *calendar.CalendarList) error {
			calendars = append(calendars, page.Items...)
			return nil
		})
	if err != nil {
		return nil, p.classify(ctx, "listing calendars", err)
	}

	loc := start.Location()
	var meetings []domain.Meeting
	for _, cal := range calendars {
		err := svc.Events.List(cal.Id).
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Fields("items(id,summary,location,description,hangoutLink,start,end,status),nextPageToken").
			Pages(ctx, func(page *calendar.Events) error {
				for _, ev := range page.Items {
					if ev.Status == "cancelled" {
						continue
					}
					m, err := p.mapEvent(ev, cal, loc)
					if err != nil {
						p.log.Debug("skipping unparseable event",
							logger.String("provider", p.id),
							logger.Error(err))
						continue
					}
					meetings = append(meetings, m)
				}
				return nil
			})
		if err != nil {
			return nil, p.classify(ctx, "listing events for "+cal.Id, err)
		}
	}
	return meetings, nil
}

func (p *Provider) mapEvent(ev *calendar.Event, cal *calendar.CalendarListEntry, loc *time.Location) (domain.Meeting, error) {
	startTime, allDay, err := parseEventTime(ev.Start, loc)
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("start of %s: %w", ev.Id, err)
	}
	endTime, _, err := parseEventTime(ev.End, loc)
	if err != nil {
		endTime = startTime
	}

	return domain.Meeting{
		ID:            domain.MeetingID(p.id, ev.Id),
		Title:         domain.TitleOrDefault(ev.Summary),
		StartTime:     startTime,
		EndTime:       endTime,
		IsAllDay:      allDay,
		Location:      ev.Location,
		JoinURL:       domain.ExtractJoinURL(ev.HangoutLink, ev.Location, ev.Description),
		Provider:      p.id,
		CalendarName:  cal.Summary,
		CalendarColor: cal.BackgroundColor,
	}, nil
}

// parseEventTime handles both forms the API returns: a dateTime for timed
// events and a bare date for all-day events.
func parseEventTime(edt *calendar.EventDateTime, loc *time.Location) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, errors.New("missing event time")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.In(loc), false, nil
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", edt.Date, loc)
		if err != nil {
			return time.Time{}, false, err
		}
		return t, true, nil
	}
	return time.Time{}, false, errors.New("event time has neither date nor dateTime")
}

// classify maps API failures onto the shared fetch error taxonomy. A 401 means
// the provider stopped honoring our token mid-flight, which invalidates the
// whole token set.
func (p *Provider) classify(ctx context.Context, op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			p.mgr.Invalidate(ctx)
			return fmt.Errorf("%w: %s: %v", domain.ErrUnauthorized, op, err)
		case 403:
			return fmt.Errorf("%w: %s: %v", domain.ErrUnauthorized, op, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", domain.ErrTimeout, op)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrNetwork, op, err)
}
