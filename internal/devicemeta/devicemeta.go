// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package devicemeta derives device context for offline events from the
// submitting request: user agent breakdown plus GeoIP country.
package devicemeta

import (
	"net"
	"net/http"
	"strings"

	"github.com/mileusna/useragent"

	"github.com/olegiv/fieldops-go/internal/geoip"
)

// Context describes the device that submitted an offline event batch.
type Context struct {
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	Country    string `json:"country,omitempty"`
	IP         string `json:"ip,omitempty"`
}

// FromRequest builds the device context for an incoming request. geo may
// be nil when GeoIP is not configured.
func FromRequest(r *http.Request, geo *geoip.Lookup) Context {
	dc := parseUserAgent(r.UserAgent())
	dc.AppVersion = r.Header.Get("X-App-Version")
	dc.IP = clientIP(r)
	if geo != nil && dc.IP != "" {
		dc.Country = geo.LookupCountry(dc.IP)
	}
	return dc
}

func parseUserAgent(uaString string) Context {
	ua := useragent.Parse(uaString)

	dc := Context{
		Browser: ua.Name,
		OS:      ua.OS,
	}
	switch {
	case ua.Mobile:
		dc.DeviceType = "mobile"
	case ua.Tablet:
		dc.DeviceType = "tablet"
	case ua.Bot:
		dc.DeviceType = "bot"
	default:
		dc.DeviceType = "desktop"
	}
	return dc
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" && net.ParseIP(rip) != nil {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
