// Package model defines the persisted and transient record types shared
// across the prospecting API.
package model

import "time"

// Company is the persisted record for a prospect company.
type Company struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Size        string    `json:"size,omitempty" db:"size"`
	Website     string    `json:"website,omitempty" db:"website"`
	Founded     int       `json:"founded,omitempty" db:"founded"`
	Locality    string    `json:"locality,omitempty" db:"locality"`
	Region      string    `json:"region,omitempty" db:"region"`
	Country     string    `json:"country,omitempty" db:"country"`
	Industry    string    `json:"industry,omitempty" db:"industry"`
	LinkedInURL string    `json:"linkedin_url,omitempty" db:"linkedin_url"`
	// LinkedInKey is the normalized form of LinkedInURL used as the primary
	// reconciliation key. Populated on every write path.
	LinkedInKey string    `json:"-" db:"linkedin_key"`
	Description string    `json:"description,omitempty" db:"description"`
	Saved       bool      `json:"saved" db:"saved"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Candidate is a company-shaped record sourced from an external search
// result. It exists only for the duration of one AI-search request and is
// either merged into an existing Company or persisted as a new one.
type Candidate struct {
	Name        string `json:"name"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	Website     string `json:"website,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Size        string `json:"size,omitempty"`
	Locality    string `json:"locality,omitempty"`
	Region      string `json:"region,omitempty"`
	Country     string `json:"country,omitempty"`
	Founded     int    `json:"founded,omitempty"`
	Description string `json:"description,omitempty"`
}

// Valid reports whether the candidate carries enough identity to be
// reconciled. Name is the fallback match key, so it is required.
func (c Candidate) Valid() bool {
	return c.Name != ""
}

// ToCompany converts a candidate into a Company ready for insertion.
func (c Candidate) ToCompany() Company {
	return Company{
		Name:        c.Name,
		Size:        c.Size,
		Website:     c.Website,
		Founded:     c.Founded,
		Locality:    c.Locality,
		Region:      c.Region,
		Country:     c.Country,
		Industry:    c.Industry,
		LinkedInURL: c.LinkedInURL,
		Description: c.Description,
	}
}
