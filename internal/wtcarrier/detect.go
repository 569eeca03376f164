package wtcarrier

import (
	"net/http"
	"strings"
)

// DetectCarrier inspects an incoming HTTP request and reports which
// carrier it is asking for: "webtransport" for an HTTP/3 WebTransport
// CONNECT-style request (handled upstream by webtransport.Server before
// this ever runs), "websocket" for a classic Upgrade: websocket
// request, matching spec.md §4.3's server-observable half of carrier
// detection. The client-side "try WebTransport, fall back to
// WebSocket, apply a 2s delay on Chrome" logic is browser UI, out of
// scope per spec.md §1.
func DetectCarrier(r *http.Request) string {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return "websocket"
	}
	return "webtransport"
}

// chromeUserAgentMarkers are substrings spec.md §4.3 uses to identify
// Chrome/Chromium user agents client-side, where the 2s
// pre-WebTransport delay applies. Recorded here only so a server log
// line can note which carrier a given client is expected to have
// chosen; the delay itself is never executed server-side.
var chromeUserAgentMarkers = []string{"Chrome/", "Chromium/", "CriOS/"}

// IsChromeUA reports whether ua matches a known Chrome/Chromium marker.
func IsChromeUA(ua string) bool {
	for _, m := range chromeUserAgentMarkers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}
