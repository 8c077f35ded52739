package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSelfReferral(t *testing.T) {
	assert.True(t, IsSelfReferral("www.Example.com", "example.com"))
	assert.True(t, IsSelfReferral("example.com", "www.example.com"))
	assert.False(t, IsSelfReferral("blog.example.com", "example.com"))
	assert.False(t, IsSelfReferral("", "example.com"))
	assert.False(t, IsSelfReferral("example.com", ""))
}

func TestParsePage(t *testing.T) {
	info := ParsePage("https://Shop.Example.com/cart?utm_source=x&utm_campaign=y")
	assert.Equal(t, "shop.example.com", info.Hostname)
	assert.Equal(t, "/cart", info.Pathname)
	assert.Equal(t, "x", info.UTM.Source)
	assert.Equal(t, "y", info.UTM.Campaign)

	assert.Equal(t, "/", ParsePage("https://example.com").Pathname)
	assert.Equal(t, "/quiz", ParsePage("/quiz").Pathname)
	assert.Equal(t, PageInfo{}, ParsePage(""))
}

func TestReferrerHostname(t *testing.T) {
	assert.Equal(t, "google.com", ReferrerHostname("https://Google.com/search?q=x"))
	assert.Equal(t, "news.ycombinator.com", ReferrerHostname("news.ycombinator.com/item?id=1"))
	assert.Equal(t, "", ReferrerHostname(""))
}
