package domain

import (
	"net/url"
	"regexp"
	"strings"
)

// meetingHosts are the video-conference platforms we recognize. Matching is a
// dot-boundary suffix match so subdomains (us02web.zoom.us, company.webex.com)
// qualify while lookalike hosts (notzoom.us.evil.example) do not.
var meetingHosts = []string{
	"zoom.us",
	"meet.google.com",
	"teams.microsoft.com",
	"webex.com",
	"gotomeeting.com",
	"chime.aws",
	"whereby.com",
}

// maxNotesScan bounds how much free-text body we scan for links. Provider
// notes can be arbitrarily large (embedded HTML invites), so the scan is
// capped rather than unbounded.
const maxNotesScan = 4096

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractJoinURL finds the first recognized conference link, checking the
// explicit URL field first, then the location, then the notes body. The
// structured online-meeting field, when a provider exposes one, is handled by
// the adapter before this fallback runs. Empty result means no join link.
func ExtractJoinURL(explicitURL, location, notes string) string {
	if u := firstMeetingURL(explicitURL); u != "" {
		return u
	}
	if u := firstMeetingURL(location); u != "" {
		return u
	}
	if len(notes) > maxNotesScan {
		notes = notes[:maxNotesScan]
	}
	return firstMeetingURL(notes)
}

func firstMeetingURL(text string) string {
	if text == "" {
		return ""
	}
	for _, raw := range urlPattern.FindAllString(text, -1) {
		raw = strings.TrimRight(raw, ".,;")
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if isMeetingHost(parsed.Hostname()) {
			return raw
		}
	}
	return ""
}

func isMeetingHost(host string) bool {
	host = strings.ToLower(host)
	for _, known := range meetingHosts {
		if host == known || strings.HasSuffix(host, "."+known) {
			return true
		}
	}
	return false
}
