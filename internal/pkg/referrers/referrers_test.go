package referrers

import "testing"

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		// Known referrers
		{"google.com", "Google"},
		{"news.ycombinator.com", "Hacker News"},
		{"t.co", "X/Twitter"},

		// With www prefix
		{"www.google.com", "Google"},

		// Subdomains of known referrers
		{"m.facebook.com", "Facebook"},
		{"mobile.twitter.com", "X/Twitter"},

		// Unknown referrers (capitalized)
		{"example.com", "Example.com"},
		{"www.example.com", "Example.com"}, // www. stripped

		// Case insensitive
		{"GOOGLE.COM", "Google"},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			got := FriendlyName(tt.hostname)
			if got != tt.expected {
				t.Errorf("FriendlyName(%q) = %q, want %q", tt.hostname, got, tt.expected)
			}
		})
	}
}

func TestMedium(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		{"", MediumDirect},
		{"www.google.de", MediumSearch},
		{"l.facebook.com", MediumSocial},
		{"mail.google.com", MediumEmail},
		{"someblog.net", MediumReferral},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			if got := Medium(tt.hostname); got != tt.expected {
				t.Errorf("Medium(%q) = %q, want %q", tt.hostname, got, tt.expected)
			}
		})
	}
}

func TestSource(t *testing.T) {
	if got := Source(""); got != DirectSource {
		t.Errorf("Source(\"\") = %q, want %q", got, DirectSource)
	}
	if got := Source("WWW.Example.com"); got != "example.com" {
		t.Errorf("Source = %q, want example.com", got)
	}
}
