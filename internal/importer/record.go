// Package importer loads company records from JSONL, JSON, CSV, and XLSX
// files into the store in batches.
package importer

import (
	"strconv"
	"strings"

	"github.com/sells-group/prospect-api/internal/model"
)

// Record is the raw shape of one imported company row before defaults are
// applied. Field names follow the export format of the common data vendors.
type Record struct {
	Name        string `json:"name"`
	Size        string `json:"size,omitempty"`
	Website     string `json:"website,omitempty"`
	Founded     any    `json:"founded,omitempty"`
	Locality    string `json:"locality,omitempty"`
	Region      string `json:"region,omitempty"`
	Country     string `json:"country,omitempty"`
	Industry    string `json:"industry,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Valid reports whether the record can be imported at all. Name is the only
// required field; everything else defaults to empty.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.Name) != ""
}

// ToCompany converts the record to a Company, trimming fields and coercing
// the founded year, which vendors emit as number, string, or not at all.
func (r Record) ToCompany() model.Company {
	return model.Company{
		Name:        strings.TrimSpace(r.Name),
		Size:        strings.TrimSpace(r.Size),
		Website:     strings.TrimSpace(r.Website),
		Founded:     foundedYear(r.Founded),
		Locality:    strings.TrimSpace(r.Locality),
		Region:      strings.TrimSpace(r.Region),
		Country:     strings.TrimSpace(r.Country),
		Industry:    strings.TrimSpace(r.Industry),
		LinkedInURL: strings.TrimSpace(r.LinkedInURL),
		Description: strings.TrimSpace(r.Description),
	}
}

func foundedYear(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(t, ".0")))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// columnAliases maps header spellings seen in vendor exports onto record
// fields. Headers are matched case-insensitively with surrounding space and
// underscores normalized.
var columnAliases = map[string]string{
	"name":         "name",
	"company":      "name",
	"company name": "name",
	"size":         "size",
	"company size": "size",
	"employees":    "size",
	"website":      "website",
	"domain":       "website",
	"url":          "website",
	"founded":      "founded",
	"founded year": "founded",
	"year founded": "founded",
	"locality":     "locality",
	"city":         "locality",
	"region":       "region",
	"state":        "region",
	"country":      "country",
	"industry":     "industry",
	"linkedin url": "linkedin_url",
	"linkedin":     "linkedin_url",
	"description":  "description",
	"about":        "description",
}

// headerIndex maps each recognized column of a header row to its field
// name. Unrecognized columns are ignored.
func headerIndex(header []string) map[int]string {
	idx := make(map[int]string, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, "_", " ")
		if field, ok := columnAliases[strings.TrimSpace(key)]; ok {
			idx[i] = field
		}
	}
	return idx
}

// recordFromRow builds a Record from one positional row using the header
// index.
func recordFromRow(idx map[int]string, row []string) Record {
	var r Record
	for i, field := range idx {
		if i >= len(row) {
			continue
		}
		val := row[i]
		switch field {
		case "name":
			r.Name = val
		case "size":
			r.Size = val
		case "website":
			r.Website = val
		case "founded":
			r.Founded = val
		case "locality":
			r.Locality = val
		case "region":
			r.Region = val
		case "country":
			r.Country = val
		case "industry":
			r.Industry = val
		case "linkedin_url":
			r.LinkedInURL = val
		case "description":
			r.Description = val
		}
	}
	return r
}
