package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestJobStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		ok       bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusPending, JobStatusFailed, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusProcessing, false},
		{JobStatusFailed, JobStatusCompleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestNewPage(t *testing.T) {
	tests := []struct {
		name       string
		itemCount  int
		page       int
		limit      int
		total      int
		wantPages  int
	}{
		{"exact fit", 10, 1, 10, 30, 3},
		{"partial last page", 5, 3, 10, 25, 3},
		{"beyond last page", 0, 5, 10, 25, 3},
		{"empty", 0, 1, 10, 0, 0},
		{"single item", 1, 1, 10, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.itemCount)
			p := NewPage(items, tt.page, tt.limit, tt.total)
			assert.Equal(t, tt.wantPages, p.TotalPages)
			assert.Equal(t, tt.total, p.TotalItems)
			assert.Equal(t, tt.page, p.CurrentPage)
			assert.NotNil(t, p.Items)
		})
	}
}

func TestNewPageInvariant(t *testing.T) {
	// For all valid pages, item count is min(limit, total-(page-1)*limit).
	total, limit := 25, 10
	for page := 1; page <= 3; page++ {
		want := total - (page-1)*limit
		if want > limit {
			want = limit
		}
		items := make([]string, want)
		p := NewPage(items, page, limit, total)
		assert.Len(t, p.Items, want)
		assert.Equal(t, 3, p.TotalPages)
	}
}

func TestClampPagination(t *testing.T) {
	page, limit := ClampPagination(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 10, limit)

	page, limit = ClampPagination(-3, 500)
	assert.Equal(t, 1, page)
	assert.Equal(t, 100, limit)

	page, limit = ClampPagination(7, 25)
	assert.Equal(t, 7, page)
	assert.Equal(t, 25, limit)
}

func TestCandidateValid(t *testing.T) {
	assert.False(t, Candidate{}.Valid())
	assert.True(t, Candidate{Name: "Acme"}.Valid())
}

func TestCandidateToCompany(t *testing.T) {
	c := Candidate{
		Name:        "Acme",
		LinkedInURL: "linkedin.com/company/acme",
		Website:     "acme.example",
		Industry:    "manufacturing",
		Country:     "united states",
		Founded:     1999,
	}
	co := c.ToCompany()
	assert.Equal(t, "Acme", co.Name)
	assert.Equal(t, "linkedin.com/company/acme", co.LinkedInURL)
	assert.Equal(t, 1999, co.Founded)
	assert.Empty(t, co.ID)
	assert.False(t, co.Saved)
}
