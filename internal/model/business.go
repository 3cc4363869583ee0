package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Business is a record to be enriched. It is never mutated by the pipeline.
type Business struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Locality        string `json:"locality" yaml:"locality"`
	Province        string `json:"provincia,omitempty" yaml:"provincia,omitempty"`
	ExistingWebsite string `json:"existing_website,omitempty" yaml:"existing_website,omitempty"`
	ExistingPhone   string `json:"existing_phone,omitempty" yaml:"existing_phone,omitempty"`
	ExistingEmail   string `json:"existing_email,omitempty" yaml:"existing_email,omitempty"`
}

// EnrichRequest is a batch of businesses submitted under one job.
type EnrichRequest struct {
	JobID      int64      `json:"job_id" yaml:"job_id"`
	SearchID   string     `json:"search_id" yaml:"search_id"`
	Businesses []Business `json:"businesses" yaml:"businesses"`
}

// Validate checks the request carries the identifiers the pipeline needs.
func (r EnrichRequest) Validate() error {
	if r.JobID <= 0 {
		return eris.New("job_id must be positive")
	}
	if strings.TrimSpace(r.SearchID) == "" {
		return eris.New("search_id is required")
	}
	for i, b := range r.Businesses {
		if strings.TrimSpace(b.ID) == "" {
			return eris.Errorf("businesses[%d]: id is required", i)
		}
		if strings.TrimSpace(b.Name) == "" {
			return eris.Errorf("businesses[%d]: name is required", i)
		}
	}
	return nil
}
