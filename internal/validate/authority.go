package validate

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/triage/internal/model"
)

// TierClassifier classifies monitoring links by publisher
type TierClassifier struct {
	domainMap     map[string]string
	officialMap   map[string]bool
	institutional map[string]bool
	pathPatterns  []*compiledPattern
}

type compiledPattern struct {
	pattern *regexp.Regexp
	tier    model.SourceTier
}

// NewTierClassifier creates a classifier from the link configuration
func NewTierClassifier(config *model.LinkCheckConfig) *TierClassifier {
	if config == nil {
		config = &model.DefaultConfig().Links
	}

	classifier := &TierClassifier{
		domainMap:     config.DomainMap,
		officialMap:   make(map[string]bool),
		institutional: make(map[string]bool),
	}

	for _, domain := range config.OfficialDomains {
		classifier.officialMap[strings.ToLower(domain)] = true
	}
	for _, domain := range config.InstitutionalDomains {
		classifier.institutional[strings.ToLower(domain)] = true
	}

	for _, p := range config.PathPatterns {
		if re, err := regexp.Compile(p.Pattern); err == nil {
			classifier.pathPatterns = append(classifier.pathPatterns, &compiledPattern{
				pattern: re,
				tier:    parseTierString(p.Tier),
			})
		}
	}

	return classifier
}

// Classify returns the tier of rawURL
func (c *TierClassifier) Classify(rawURL string) model.SourceTier {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.TierThirdParty
	}

	host := strings.ToLower(parsed.Hostname())

	if tier, ok := c.domainMap[host]; ok {
		return parseTierString(tier)
	}

	if matchesDomain(host, c.officialMap) {
		return model.TierOfficial
	}
	if matchesDomain(host, c.institutional) {
		return model.TierInstitutional
	}

	for _, cp := range c.pathPatterns {
		if cp.pattern.MatchString(parsed.Path) {
			return cp.tier
		}
	}

	// Italian public administration
	if strings.HasSuffix(host, ".gov.it") {
		return model.TierOfficial
	}

	return model.TierThirdParty
}

// matchesDomain reports whether host equals or is a subdomain of a listed domain
func matchesDomain(host string, domains map[string]bool) bool {
	if domains[host] {
		return true
	}
	for domain := range domains {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func parseTierString(tier string) model.SourceTier {
	switch strings.ToLower(tier) {
	case "official", "1":
		return model.TierOfficial
	case "institutional", "2":
		return model.TierInstitutional
	default:
		return model.TierThirdParty
	}
}
