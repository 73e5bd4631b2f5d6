// Package spec defines the validated crawl specification submitted to the
// ingestion endpoint, plus the template resolver used by service-backed
// jobs.
package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid reports a crawl spec that failed schema validation. This is
// the single gate preventing malformed specs from reaching the fleet.
var ErrInvalid = errors.New("invalid crawl spec")

// DefaultUserAgent is applied when a spec does not set user_agent.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_13_1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/80.0.3987.132 Safari/537.36"

// DefaultPriority is applied when a spec does not set priority.
const DefaultPriority = 50

// CrawlSpec is the wire-exact configuration for one crawl. It is
// immutable once attached to a run log.
type CrawlSpec struct {
	AppID          string         `json:"app_id" validate:"required"`
	CrawlID        string         `json:"crawl_id" validate:"required"`
	SpiderID       string         `json:"spider_id" validate:"required"`
	URL            string         `json:"url" validate:"required"`
	Priority       int            `json:"priority" validate:"min=1"`
	MaxDepth       int            `json:"max_depth" validate:"min=0,max=10000000"`
	AllowedDomains []string       `json:"allowed_domains,omitempty" validate:"omitempty,unique"`
	AllowPatterns  []string       `json:"allow_patterns,omitempty" validate:"omitempty,unique"`
	DenyPatterns   []string       `json:"deny_patterns,omitempty" validate:"omitempty,unique"`
	DenyExtensions []string       `json:"deny_extensions,omitempty" validate:"omitempty,unique"`
	Expires        int            `json:"expires"`
	UserAgent      string         `json:"user_agent" validate:"min=3,max=1000"`
	Cookie         string         `json:"cookie,omitempty" validate:"omitempty,min=3,max=1000"`
	Attrs          map[string]any `json:"attrs,omitempty"`
}

// Param declares one substitutable parameter of a service's spec template.
type Param struct {
	Name        string `json:"name"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ApplyDefaults fills zero-valued optional fields with schema defaults.
// The wire format carries plain values, not pointers, so an explicit
// "priority": 0 or "user_agent": "" is indistinguishable from an absent
// field and is coerced to the default rather than rejected. Priority 0
// is below the schema minimum and an empty user agent is never valid,
// so no legal spec loses meaning in the coercion.
func (s CrawlSpec) ApplyDefaults() CrawlSpec {
	if s.Priority == 0 {
		s.Priority = DefaultPriority
	}
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}
	return s
}

// Validate runs the full schema over a spec that already has defaults
// applied. Failures wrap ErrInvalid.
func (s CrawlSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Parse strictly decodes raw JSON into a validated spec. Unknown fields
// are rejected; defaults are applied before validation.
func Parse(data []byte) (CrawlSpec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var s CrawlSpec
	if err := dec.Decode(&s); err != nil {
		return CrawlSpec{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	s = s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return CrawlSpec{}, err
	}
	return s, nil
}
