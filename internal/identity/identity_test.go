package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wpinsight/internal/identity"
)

func TestResolve(t *testing.T) {
	resolver := identity.NewResolver("test-secret", 30*time.Minute)
	at := time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC)
	salt := identity.DaySalt("test-secret", at)
	ipAddress := "192.168.1.77"
	userAgent := "Mozilla/5.0"

	t.Run("deterministic within a rotation window", func(t *testing.T) {
		id1 := resolver.Resolve(ipAddress, userAgent, salt, at)
		id2 := resolver.Resolve(ipAddress, userAgent, salt, at.Add(time.Minute))

		assert.Equal(t, id1, id2)
		assert.Len(t, id1.VisitorID, 64, "SHA-256 hash should be 64 hex characters")
		assert.Len(t, id1.SessionID, 32)
	})

	t.Run("same /24 network maps to the same visitor", func(t *testing.T) {
		id1 := resolver.Resolve("192.168.1.77", userAgent, salt, at)
		id2 := resolver.Resolve("192.168.1.12", userAgent, salt, at)

		assert.Equal(t, id1.VisitorID, id2.VisitorID)
	})

	t.Run("different user agents give different visitors", func(t *testing.T) {
		id1 := resolver.Resolve(ipAddress, userAgent, salt, at)
		id2 := resolver.Resolve(ipAddress, "Different Agent", salt, at)

		assert.NotEqual(t, id1.VisitorID, id2.VisitorID)
	})

	t.Run("unlinkable across days", func(t *testing.T) {
		nextDay := at.AddDate(0, 0, 1)
		id1 := resolver.ResolveAt(ipAddress, userAgent, at)
		id2 := resolver.ResolveAt(ipAddress, userAgent, nextDay)

		assert.NotEqual(t, id1.VisitorID, id2.VisitorID)
	})

	t.Run("session id changes with the time bucket", func(t *testing.T) {
		id1 := resolver.Resolve(ipAddress, userAgent, salt, at)
		id2 := resolver.Resolve(ipAddress, userAgent, salt, at.Add(2*time.Hour))

		assert.Equal(t, id1.VisitorID, id2.VisitorID)
		assert.NotEqual(t, id1.SessionID, id2.SessionID)
	})

	t.Run("empty inputs still produce an identity", func(t *testing.T) {
		id := resolver.Resolve("", "", "", time.Time{})

		assert.Len(t, id.VisitorID, 64)
		assert.NotEmpty(t, id.SessionID)
	})
}

func TestDaySalt(t *testing.T) {
	morning := time.Date(2025, 3, 10, 0, 1, 0, 0, time.UTC)
	evening := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, identity.DaySalt("secret", morning), identity.DaySalt("secret", evening))
	assert.NotEqual(t, identity.DaySalt("secret", morning), identity.DaySalt("secret", morning.AddDate(0, 0, 1)))
	assert.NotEqual(t, identity.DaySalt("secret", morning), identity.DaySalt("other", morning))
}

func TestTruncateIP(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"203.0.113.195", "203.0.113.0"},
		{"2001:db8:85a3:1234::8a2e:370:7334", "2001:db8:85a3::"},
		{"not-an-ip", "not-an-ip"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, identity.TruncateIP(tt.input))
		})
	}
}
