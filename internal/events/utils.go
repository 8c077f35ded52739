package events

import (
	"net/url"
	"strings"

	"wpinsight/internal/models"
)

// IsSelfReferral checks if a referrer hostname belongs to the site itself.
// A leading "www." is ignored on both sides; other subdomains are distinct sites.
func IsSelfReferral(hostname, siteHostname string) bool {
	if hostname == "" || siteHostname == "" {
		return false
	}

	lowerHostname := strings.TrimPrefix(strings.ToLower(hostname), "www.")
	lowerSite := strings.TrimPrefix(strings.ToLower(siteHostname), "www.")

	return lowerHostname == lowerSite
}

// PageInfo is the parsed page URL of a hit.
type PageInfo struct {
	URL      string
	Hostname string
	Pathname string
	UTM      models.UTM
}

// ParsePage splits a page URL. Relative URLs and paths are accepted; a URL
// that does not parse keeps only its raw text as the path.
func ParsePage(rawURL string) PageInfo {
	rawURL = strings.TrimSpace(rawURL)
	info := PageInfo{URL: rawURL}
	if rawURL == "" {
		return info
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		info.Pathname = rawURL
		return info
	}
	info.Hostname = strings.ToLower(u.Hostname())
	info.Pathname = u.Path
	if info.Pathname == "" {
		info.Pathname = "/"
	}
	info.UTM = models.UTMFromQuery(u.Query())
	return info
}

// ReferrerHostname returns the lowercase hostname of a referrer URL, or "".
func ReferrerHostname(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
