package user_agent

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device types reported by DeviceType.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

type UserAgent struct {
	UserAgent string
	OS        string
	Browser   string
	Device    string
	Mobile    bool
	Tablet    bool
	Desktop   bool
	Bot       bool
}

// DeviceType collapses the flags into a single dimension value.
// Anything that is not recognised as mobile or tablet counts as desktop.
func (ua UserAgent) DeviceType() string {
	switch {
	case ua.Bot:
		return DeviceBot
	case ua.Mobile:
		return DeviceMobile
	case ua.Tablet:
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

//go:embed rules.yml
var rulesFile []byte

// Rule is a single regex entry from rules.yml.
type Rule struct {
	Regex  string `yaml:"regex"`
	Name   string `yaml:"name"`
	Device string `yaml:"device"`
}

type ruleSet struct {
	Bots     []Rule `yaml:"bots"`
	Browsers []Rule `yaml:"browsers"`
	OSs      []Rule `yaml:"oss"`
	Devices  []Rule `yaml:"devices"`
}

// Compiled regex cache
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Parser matches user agents against the embedded rule set.
type Parser struct {
	rules      ruleSet
	regexCache *RegexCache
	logger     *slog.Logger
}

// NewParser loads the embedded rules. A nil logger uses slog.Default.
func NewParser(logger *slog.Logger) (*Parser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{regexCache: newRegexCache(), logger: logger}
	if err := yaml.Unmarshal(rulesFile, &p.rules); err != nil {
		return nil, fmt.Errorf("failed to parse user agent rules: %w", err)
	}
	return p, nil
}

var (
	defaultParser *Parser
	once          sync.Once
)

func getParser() *Parser {
	once.Do(func() {
		p, err := NewParser(nil)
		if err != nil {
			// The rules are embedded; a parse failure is a build defect.
			panic(err)
		}
		defaultParser = p
	})
	return defaultParser
}

// ParseUserAgent parses with the shared default parser.
func ParseUserAgent(userAgent string) UserAgent {
	return getParser().Parse(userAgent)
}

func (p *Parser) match(rules []Rule, userAgent string) (Rule, bool) {
	for _, rule := range rules {
		regex, err := p.regexCache.get(rule.Regex)
		if err != nil {
			p.logger.Warn("Skipping invalid user agent rule", slog.String("regex", rule.Regex), slog.Any("error", err))
			continue
		}
		if regex.MatchString(userAgent) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Parse never fails: unknown parts are reported as "Unknown" and the device
// falls back to desktop.
func (p *Parser) Parse(userAgent string) UserAgent {
	if bot, ok := p.match(p.rules.Bots, userAgent); ok {
		return UserAgent{
			UserAgent: userAgent,
			OS:        "Unknown",
			Browser:   bot.Name,
			Device:    "Bot",
			Bot:       true,
		}
	}

	result := UserAgent{
		UserAgent: userAgent,
		OS:        "Unknown",
		Browser:   "Unknown",
	}
	if browser, ok := p.match(p.rules.Browsers, userAgent); ok {
		result.Browser = browser.Name
	}
	if os, ok := p.match(p.rules.OSs, userAgent); ok {
		result.OS = os.Name
	}

	device, ok := p.match(p.rules.Devices, userAgent)
	switch {
	case ok && device.Device == "tablet":
		result.Device, result.Tablet = "Tablet", true
	case ok && device.Device == "smartphone":
		result.Device, result.Mobile = "Mobile", true
	default:
		result.Device, result.Desktop = "Desktop", true
	}

	return result
}
