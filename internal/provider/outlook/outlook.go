// Package outlook adapts the Microsoft Graph calendar API to the common
// provider interface. Graph is spoken over plain REST: calendars via
// /me/calendars, events via the per-calendar calendarView, which expands
// recurring series into concrete instances for the requested window.
package outlook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/upnext/upnextd/internal/credstore"
	"github.com/upnext/upnextd/internal/domain"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/provider"
	"github.com/upnext/upnextd/internal/token"
	"github.com/upnext/upnextd/internal/utils"
)

const (
	msGraphBaseURL = "https://graph.microsoft.com/v1.0"

	// Graph renders dateTime with fractional seconds and no zone designator;
	// the Prefer header below pins the zone to UTC.
	graphTimeFormat = "2006-01-02T15:04:05.9999999"
)

// Config carries the OAuth client registration for this deployment.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Tenant scopes the authority; "common" covers both work and personal
	// accounts.
	Tenant string
}

// Provider is the Microsoft Graph calendar provider.
type Provider struct {
	id      string
	mgr     *token.Manager
	log     logger.Logger
	baseURL string

	// httpClient is swapped in tests; production uses the default client,
	// with the bearer token attached per request.
	httpClient *http.Client
}

// New builds the provider. An empty ClientID is allowed; the config error
// surfaces when the user tries to connect.
func New(id string, cfg Config, store credstore.Store, log logger.Logger) *Provider {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"Calendars.Read", "offline_access"},
		Endpoint:     microsoft.AzureADEndpoint(tenant),
	}
	return &Provider{
		id:         id,
		mgr:        token.NewManager(id, oauthCfg, store, log),
		log:        log,
		baseURL:    msGraphBaseURL,
		httpClient: http.DefaultClient,
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

type graphCalendar struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	HexColor  string `json:"hexColor"`
	IsDefault bool   `json:"isDefaultCalendar"`
}

type graphEvent struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	BodyPreview string `json:"bodyPreview"`
	Start       struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"end"`
	Location struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	IsAllDay      bool   `json:"isAllDay"`
	IsCancelled   bool   `json:"isCancelled"`
	OnlineMeeting *struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
}

// FetchRange lists events overlapping [start, end) across all calendars the
// account can see.
func (p *Provider) FetchRange(ctx context.Context, start, end time.Time) ([]domain.Meeting, error) {
	tok, err := p.mgr.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	calendars, err := p.listCalendars(ctx, tok)
	if err != nil {
		return nil, err
	}

	loc := start.Location()
	var meetings []domain.Meeting
	for _, cal := range calendars {
		events, err := p.listCalendarView(ctx, tok, cal.ID, start, end)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.IsCancelled {
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
	}
	return meetings, nil
}

func (p *Provider) listCalendars(ctx context.Context, tok *oauth2.Token) ([]graphCalendar, error) {
	endpoint := p.baseURL + "/me/calendars?" + url.Values{
		"$select": {"id,name,hexColor,isDefaultCalendar"},
	}.Encode()

	var calendars []graphCalendar
	for endpoint != "" {
		var page struct {
			Value    []graphCalendar `json:"value"`
			NextLink string          `json:"@odata.nextLink"`
		}
		if err := p.get(ctx, tok, endpoint, &page); err != nil {
			return nil, fmt.Errorf("listing calendars: %w", err)
		}
		calendars = append(calendars, page.Value...)
		endpoint = page.NextLink
	}
	return calendars, nil
}

func (p *Provider) listCalendarView(ctx context.Context, tok *oauth2.Token, calendarID string, start, end time.Time) ([]graphEvent, error) {
	params := url.Values{}
	params.Set("startDateTime", start.UTC().Format(time.RFC3339))
	params.Set("endDateTime", end.UTC().Format(time.RFC3339))
	params.Set("$select", "id,subject,bodyPreview,start,end,location,isAllDay,isCancelled,onlineMeeting")
	params.Set("$orderby", "start/dateTime")
	endpoint := p.baseURL + "/me/calendars/" + url.PathEscape(calendarID) + "/calendarView?" + params.Encode()

	var events []graphEvent
	for endpoint != "" {
		var page struct {
			Value    []graphEvent `json:"value"`
			NextLink string       `json:"@odata.nextLink"`
		}
		if err := p.get(ctx, tok, endpoint, &page); err != nil {
			return nil, fmt.Errorf("listing calendar view for %s: %w", calendarID, err)
		}
		events = append(events, page.Value...)
		endpoint = page.NextLink
	}
	return events, nil
}

// get performs one authenticated Graph request and decodes the body into out.
func (p *Provider) get(ctx context.Context, tok *oauth2.Token, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", domain.ErrTimeout, endpoint)
		}
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer utils.Close(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		p.mgr.Invalidate(ctx)
		return fmt.Errorf("%w: graph returned 401", domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: graph returned 403", domain.ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: graph returned %d", domain.ErrNetwork, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	return nil
}

func (p *Provider) mapEvent(ev graphEvent, cal graphCalendar, loc *time.Location) (domain.Meeting, error) {
	startTime, err := parseGraphTime(ev.Start.DateTime, loc)
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("start of %s: %w", ev.ID, err)
	}
	endTime, err := parseGraphTime(ev.End.DateTime, loc)
	if err != nil {
		endTime = startTime
	}

	joinURL := ""
	if ev.OnlineMeeting != nil {
		joinURL = ev.OnlineMeeting.JoinURL
	}

	return domain.Meeting{
		ID:            domain.MeetingID(p.id, ev.ID),
		Title:         domain.TitleOrDefault(ev.Subject),
		StartTime:     startTime,
		EndTime:       endTime,
		IsAllDay:      ev.IsAllDay,
		Location:      ev.Location.DisplayName,
		JoinURL:       domain.ExtractJoinURL(joinURL, ev.Location.DisplayName, ev.BodyPreview),
		Provider:      p.id,
		CalendarName:  cal.Name,
		CalendarColor: cal.HexColor,
	}, nil
}

// parseGraphTime reads the UTC-pinned Graph timestamp and converts it to the
// caller's display location.
func parseGraphTime(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(graphTimeFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}
