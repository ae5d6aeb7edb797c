package event

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
)

// HeaderSignals are raw observations about the report request's headers.
// They complement the page-side automation checks and carry no verdict.
type HeaderSignals struct {
	Fingerprint       string   `json:"header_fingerprint"`
	Names             []string `json:"header_names"`
	MissingExpected   []string `json:"missing_expected,omitempty"`
	AutomationHeaders []string `json:"automation_headers,omitempty"`
}

var expectedHeaders = []string{"User-Agent", "Accept", "Accept-Language", "Accept-Encoding"}

var automationKeywords = []string{"headless", "selenium", "webdriver", "puppeteer", "playwright"}

// Headers whose mere presence points at tooling.
var toolingHeaders = []string{"X-DevTools-Emulate-Network-Conditions-Client-Id", "Chrome-Proxy"}

// AnalyzeHeaders records the header names, a short hash over names and value
// prefixes, the usual browser headers that are missing and any header that
// names an automation tool.
func AnalyzeHeaders(h http.Header) HeaderSignals {
	s := HeaderSignals{Names: make([]string, 0, len(h))}
	for k := range h {
		s.Names = append(s.Names, strings.ToLower(k))
	}
	sort.Strings(s.Names)
	s.Fingerprint = headerFingerprint(h, s.Names)

	for _, k := range expectedHeaders {
		if h.Get(k) == "" {
			s.MissingExpected = append(s.MissingExpected, k)
		}
	}

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			if containsAny(strings.ToLower(v), automationKeywords) {
				s.AutomationHeaders = append(s.AutomationHeaders, k+": "+v)
				break
			}
		}
	}
	for _, k := range toolingHeaders {
		if v := h.Get(k); v != "" {
			s.AutomationHeaders = append(s.AutomationHeaders, http.CanonicalHeaderKey(k)+": "+v)
		}
	}
	return s
}

func headerFingerprint(h http.Header, sortedNames []string) string {
	parts := make([]string, 0, len(sortedNames))
	for _, k := range sortedNames {
		v := h.Get(k)
		if len(v) > 20 {
			v = v[:20] + "..."
		}
		parts = append(parts, k+":"+v)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
