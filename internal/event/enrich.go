package event

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mssola/user_agent"

	"github.com/shortontech/featurefp/pkg/config"
)

// EnrichServerFields fills what only the server can see.
func EnrichServerFields(r *http.Request, e *Event, cfg config.Config) {
	if e.TS == "" {
		e.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if e.Server.UA == "" {
		e.Server.UA = r.UserAgent()
	}
	e.Server.ParsedUA = ParseUA(e.Server.UA)
	if e.Server.Referrer == "" {
		e.Server.Referrer = r.Referer()
	}
	e.Server.IP = clientIPFromRequest(r, cfg.TrustProxy)
	e.Server.Signals = AnalyzeHeaders(r.Header)
}

// ParseUA splits a User-Agent into browser family, version and platform.
func ParseUA(s string) ParsedUA {
	if s == "" {
		return ParsedUA{}
	}
	ua := user_agent.New(s)
	name, version := ua.Browser()
	major, _, _ := strings.Cut(version, ".")
	return ParsedUA{
		Browser: name,
		Version: version,
		Major:   major,
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}

func clientIPFromRequest(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
		if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			return strings.TrimSpace(xrip)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
