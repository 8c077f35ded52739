package referrers

import "strings"

// Mediums assigned to referrer hostnames.
const (
	MediumDirect   = "(none)"
	MediumSearch   = "organic"
	MediumSocial   = "social"
	MediumEmail    = "email"
	MediumReferral = "referral"
)

type knownReferrer struct {
	name   string
	medium string
}

// Common referrer hostnames mapped to friendly display names and a medium
var knownReferrers = map[string]knownReferrer{
	// Search engines
	"google.com":     {"Google", MediumSearch},
	"google.co.uk":   {"Google", MediumSearch},
	"google.de":      {"Google", MediumSearch},
	"google.fr":      {"Google", MediumSearch},
	"google.es":      {"Google", MediumSearch},
	"google.ca":      {"Google", MediumSearch},
	"google.com.au":  {"Google", MediumSearch},
	"google.com.br":  {"Google", MediumSearch},
	"bing.com":       {"Bing", MediumSearch},
	"duckduckgo.com": {"DuckDuckGo", MediumSearch},
	"yahoo.com":      {"Yahoo", MediumSearch},
	"baidu.com":      {"Baidu", MediumSearch},
	"yandex.ru":      {"Yandex", MediumSearch},
	"ecosia.org":     {"Ecosia", MediumSearch},
	"kagi.com":       {"Kagi", MediumSearch},

	// Social media
	"x.com":                {"X/Twitter", MediumSocial},
	"twitter.com":          {"X/Twitter", MediumSocial},
	"t.co":                 {"X/Twitter", MediumSocial},
	"facebook.com":         {"Facebook", MediumSocial},
	"fb.com":               {"Facebook", MediumSocial},
	"instagram.com":        {"Instagram", MediumSocial},
	"linkedin.com":         {"LinkedIn", MediumSocial},
	"lnkd.in":              {"LinkedIn", MediumSocial},
	"tiktok.com":           {"TikTok", MediumSocial},
	"pinterest.com":        {"Pinterest", MediumSocial},
	"reddit.com":           {"Reddit", MediumSocial},
	"threads.net":          {"Threads", MediumSocial},
	"bsky.app":             {"Bluesky", MediumSocial},
	"mastodon.social":      {"Mastodon", MediumSocial},
	"youtube.com":          {"YouTube", MediumSocial},
	"youtu.be":             {"YouTube", MediumSocial},
	"news.ycombinator.com": {"Hacker News", MediumSocial},

	// Email providers (newsletter clicks)
	"mail.google.com":    {"Gmail", MediumEmail},
	"outlook.live.com":   {"Outlook", MediumEmail},
	"outlook.office.com": {"Outlook", MediumEmail},
	"mail.yahoo.com":     {"Yahoo Mail", MediumEmail},
	"mail.proton.me":     {"Proton Mail", MediumEmail},
}

// DirectSource is the source reported for hits without a referrer.
const DirectSource = "direct"

func lookup(hostname string) (knownReferrer, string, bool) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if ref, ok := knownReferrers[hostname]; ok {
		return ref, hostname, true
	}

	hostname = strings.TrimPrefix(hostname, "www.")
	if ref, ok := knownReferrers[hostname]; ok {
		return ref, hostname, true
	}

	// Subdomains of known referrers; the longest matching domain wins
	var best knownReferrer
	bestLen := 0
	for domain, ref := range knownReferrers {
		if len(domain) > bestLen && strings.HasSuffix(hostname, "."+domain) {
			best, bestLen = ref, len(domain)
		}
	}
	return best, hostname, bestLen > 0
}

// FriendlyName returns a human-friendly name for a referrer hostname.
// Unknown hostnames are returned without "www." and with the first letter capitalized.
func FriendlyName(hostname string) string {
	ref, stripped, ok := lookup(hostname)
	if ok {
		return ref.name
	}
	return capitalizeFirst(stripped)
}

// Medium classifies a referrer hostname. An empty hostname is direct traffic,
// unknown hostnames are plain referrals.
func Medium(hostname string) string {
	if strings.TrimSpace(hostname) == "" {
		return MediumDirect
	}
	if ref, _, ok := lookup(hostname); ok {
		return ref.medium
	}
	return MediumReferral
}

// Source returns the attribution source for a referrer hostname: the lowercase
// hostname without "www.", or DirectSource when there is none.
func Source(hostname string) string {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return DirectSource
	}
	return strings.TrimPrefix(hostname, "www.")
}

// capitalizeFirst capitalizes the first letter of a string
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
