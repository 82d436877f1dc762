package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/model"
	"github.com/sells-group/prospect-api/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func allCompanies(t *testing.T, st store.Store) []model.Company {
	t.Helper()
	companies, _, err := st.SearchCompanies(context.Background(), store.CompanyFilter{}, store.SortNewest, 1, 100)
	require.NoError(t, err)
	return companies
}

func TestImportFile_JSONL(t *testing.T) {
	st := newTestStore(t)
	path := writeFile(t, "companies.jsonl", `
{"name":"Acme","industry":"Robotics","founded":2015,"linkedin_url":"https://linkedin.com/company/acme"}

{"name":"Globex","country":"Germany","founded":"2001"}
{"name":""}
`)

	report, err := New(st, 0).ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	companies := allCompanies(t, st)
	require.Len(t, companies, 2)

	acme, err := st.CompaniesByLinkedInKeys(context.Background(), []string{"linkedin.com/company/acme"})
	require.NoError(t, err)
	require.Len(t, acme, 1)
	assert.Equal(t, 2015, acme["linkedin.com/company/acme"].Founded)

	globex, err := st.CompaniesByNameKeys(context.Background(), []string{"globex"})
	require.NoError(t, err)
	assert.Equal(t, 2001, globex["globex"].Founded)
}

func TestImportFile_JSONArray(t *testing.T) {
	st := newTestStore(t)
	path := writeFile(t, "companies.json",
		`[{"name":"Acme"},{"name":"Globex","size":"11-50"}]`)

	report, err := New(st, 0).ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Len(t, allCompanies(t, st), 2)
}

func TestImportFile_CSVHeaderAliases(t *testing.T) {
	st := newTestStore(t)
	path := writeFile(t, "companies.csv",
		"Company Name,City,State,LinkedIn URL,Year Founded,Notes\n"+
			"Acme, Berlin ,BE,https://linkedin.com/company/acme,2015,ignored\n"+
			"Globex,Paris,,,not-a-year,ignored\n")

	report, err := New(st, 0).ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)

	acme, err := st.CompaniesByNameKeys(context.Background(), []string{"acme"})
	require.NoError(t, err)
	require.Len(t, acme, 1)
	assert.Equal(t, "Berlin", acme["acme"].Locality)
	assert.Equal(t, "BE", acme["acme"].Region)
	assert.Equal(t, 2015, acme["acme"].Founded)

	globex, err := st.CompaniesByNameKeys(context.Background(), []string{"globex"})
	require.NoError(t, err)
	assert.Equal(t, 0, globex["globex"].Founded)
}

func TestImportFile_CSVNoRecognizedColumns(t *testing.T) {
	st := newTestStore(t)
	path := writeFile(t, "bad.csv", "foo,bar\n1,2\n")

	_, err := New(st, 0).ImportFile(context.Background(), path)
	require.Error(t, err)
}

func TestImportFile_XLSX(t *testing.T) {
	st := newTestStore(t)

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Companies")
	require.NoError(t, err)
	for _, rowData := range [][]string{
		{"Name", "Industry", "Country"},
		{"Acme", "Robotics", "Germany"},
		{"", "Orphan", "Nowhere"},
		{"Globex", "Software", "France"},
	} {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "companies.xlsx")
	require.NoError(t, f.Save(path))

	report, err := New(st, 0).ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 1, report.Skipped)

	industries, err := st.DistinctIndustries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Robotics", "Software"}, industries)
}

func TestImportFile_BatchesLargerThanBatchSize(t *testing.T) {
	st := newTestStore(t)

	content := ""
	for i := 0; i < 7; i++ {
		content += `{"name":"Company ` + string(rune('A'+i)) + `"}` + "\n"
	}
	path := writeFile(t, "companies.jsonl", content)

	report, err := New(st, 3).ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, report.Imported)
	assert.Len(t, allCompanies(t, st), 7)
}

func TestImportFile_DuplicateLinkedInResolvesToOneRow(t *testing.T) {
	st := newTestStore(t)
	path := writeFile(t, "companies.jsonl",
		`{"name":"Acme","linkedin_url":"https://linkedin.com/company/acme"}
{"name":"Acme GmbH","linkedin_url":"https://www.linkedin.com/company/acme/"}
`)

	report, err := New(st, 0).ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Len(t, allCompanies(t, st), 1)
}

func TestImportFile_UnsupportedExtension(t *testing.T) {
	st := newTestStore(t)
	path := writeFile(t, "companies.xml", "<companies/>")

	_, err := New(st, 0).ImportFile(context.Background(), path)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestImportFile_MalformedJSONLLine(t *testing.T) {
	st := newTestStore(t)
	path := writeFile(t, "companies.jsonl",
		`{"name":"Acme"}
{not json}
`)

	report, err := New(st, 0).ImportFile(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, 1, report.Total)
}
