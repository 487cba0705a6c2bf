package model

import "time"

// SourceTier ranks who publishes a monitoring link
type SourceTier int

const (
	TierOfficial      SourceTier = iota + 1 // regional or national health authority
	TierInstitutional                       // local health trust or hospital
	TierThirdParty
)

func (t SourceTier) String() string {
	switch t {
	case TierOfficial:
		return "official"
	case TierInstitutional:
		return "institutional"
	case TierThirdParty:
		return "third_party"
	default:
		return "unknown"
	}
}

// LinkResult is the outcome of probing one facility monitoring link
type LinkResult struct {
	Facility     string     `json:"facility"`
	City         string     `json:"city"`
	URL          string     `json:"url"`
	Tier         SourceTier `json:"tier"`
	StatusCode   int        `json:"status_code,omitempty"`
	IsAccessible bool       `json:"is_accessible"`
	IsDead       bool       `json:"is_dead"`
	Disallowed   bool       `json:"disallowed,omitempty"` // robots.txt forbids probing
	RedirectURL  string     `json:"redirect_url,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	IsStale      bool       `json:"is_stale,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// PathTier maps a URL path pattern to a tier
type PathTier struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	Tier    string `mapstructure:"tier" yaml:"tier"`
}
