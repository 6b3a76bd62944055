package deps

import (
	"time"

	"github.com/upnext/upnextd/internal/aggregator"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/scheduler"
)

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time     // for testing, defaults to time.Now
	AllowedCIDRS []string             // networks allowed to reach the API
	TrustProxy   bool                 // true if running behind a trusted reverse proxy
	Engine       *aggregator.Engine   // aggregation engine (snapshot + control ops)
	Refresher    *scheduler.Refresher // refresh loop (force, cadence inputs)
}
