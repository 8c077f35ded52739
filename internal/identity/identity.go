// Package identity derives cookie-less visitor and session identifiers.
//
// Visitor ids are a hash of the truncated IP address, the user agent and a salt
// that rotates every UTC day, so the same browser gets a new, unlinkable id each
// day. IP addresses are never stored, only hashed.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/hkdf"
)

// DefaultSessionTimeout is the inactivity gap after which a new session starts.
const DefaultSessionTimeout = 30 * time.Minute

const saltInfo = "visitor-salt"

// Identity is the resolved pair for a single hit.
type Identity struct {
	VisitorID string
	SessionID string
}

// Resolver computes identities for hits. It holds no mutable state.
type Resolver struct {
	secret         string
	sessionTimeout time.Duration
}

// NewResolver creates a Resolver. Timeouts under a second fall back to
// DefaultSessionTimeout.
func NewResolver(secret string, sessionTimeout time.Duration) *Resolver {
	if sessionTimeout < time.Second {
		sessionTimeout = DefaultSessionTimeout
	}
	return &Resolver{secret: secret, sessionTimeout: sessionTimeout}
}

// SessionTimeout returns the configured inactivity gap.
func (r *Resolver) SessionTimeout() time.Duration {
	return r.sessionTimeout
}

// DaySalt derives the rotating salt for the UTC day containing at.
func DaySalt(secret string, at time.Time) string {
	day := at.UTC().Format("2006-01-02")
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(day), []byte(saltInfo))
	out := make([]byte, 32)
	if _, err := io.ReadFull(kdf, out); err != nil {
		// hkdf only fails past 255*HashLen bytes
		panic(fmt.Sprintf("identity: hkdf: %v", err))
	}
	return hex.EncodeToString(out)
}

// Resolve returns the identity for a hit. It is a pure function of its inputs:
// the same ip, user agent and salt always give the same visitor id, and the
// session id additionally changes with the session time bucket containing at.
func (r *Resolver) Resolve(ipAddress, userAgent, daySalt string, at time.Time) Identity {
	visitorID := VisitorID(ipAddress, userAgent, daySalt)
	return Identity{
		VisitorID: visitorID,
		SessionID: r.SessionID(visitorID, at),
	}
}

// ResolveAt resolves a hit using the salt for the day containing at.
func (r *Resolver) ResolveAt(ipAddress, userAgent string, at time.Time) Identity {
	return r.Resolve(ipAddress, userAgent, DaySalt(r.secret, at), at)
}

// VisitorID hashes the truncated IP and user agent with the day salt.
func VisitorID(ipAddress, userAgent, daySalt string) string {
	data := fmt.Sprintf("%s.%s.%s", daySalt, TruncateIP(ipAddress), userAgent)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// SessionID derives the session id for the time bucket containing at.
func (r *Resolver) SessionID(visitorID string, at time.Time) string {
	bucket := at.Unix() / int64(r.sessionTimeout/time.Second)
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s.%d", visitorID, bucket)))
	return hex.EncodeToString(hash[:16])
}

// TruncateIP drops the host part of an address: /24 for IPv4, /48 for IPv6.
// Input that does not parse as an IP is returned unchanged.
func TruncateIP(ipAddress string) string {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return ipAddress
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}
