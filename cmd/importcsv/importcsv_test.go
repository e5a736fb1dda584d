package importcsv

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverect-tools/catalog-importer/cmd/common"
	"deliverect-tools/catalog-importer/cmd/root"
	"deliverect-tools/catalog-importer/internal/config"
	"deliverect-tools/catalog-importer/internal/container"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"
)

// stubAPI serves one account with one product, PLU100. Account "acc-404"
// does not exist.
func stubAPI(t *testing.T) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("GET /accounts/acc-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"_id": "acc-1", "name": "Pizza Place"})
	})
	mux.HandleFunc("GET /accounts/acc-404", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"_error":"not found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("GET /catalog/accounts/acc-1/menus", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"_items": []interface{}{}})
	})
	mux.HandleFunc("POST /catalog/accounts/acc-1/menus", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"_id": "menu-1"})
	})
	created := 0
	mux.HandleFunc("POST /catalog/accounts/acc-1/categories", func(w http.ResponseWriter, r *http.Request) {
		created++
		writeJSON(w, map[string]interface{}{"_id": "cat-" + string(rune('0'+created))})
	})
	mux.HandleFunc("POST /catalog/accounts/acc-1/items", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"_items": []map[string]string{{"_id": "prod-1", "plu": "PLU100"}},
		})
	})
	mux.HandleFunc("GET /catalog/categories/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"_id": r.PathValue("id"), "_etag": "e1"})
	})
	mux.HandleFunc("PATCH /catalog/categories/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"_id": r.PathValue("id")})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setup(t *testing.T, baseURL string, flags root.CommonFlags, csv string) *bytes.Buffer {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.CSV.Delimiter = ","
	cfg.Deliverect.BaseURL = baseURL
	cfg.Deliverect.ClientID = "id"
	cfg.Deliverect.ClientSecret = "secret"
	cfg.Deliverect.TimeoutSeconds = 5
	cfg.Deliverect.RequestsPerSecond = 100
	cfg.Deliverect.ProductPageSize = 100
	cfg.Import.Concurrency = 1
	cfg.Import.MaxAttempts = 1
	cfg.Report.Format = "json"
	c, err := container.NewContainerWithLogger(cfg, logging.NewMockLogger(), nil)
	require.NoError(t, err)

	if flags.Input == "" && csv != "" {
		flags.Input = filepath.Join(dir, "catalog.csv")
		require.NoError(t, os.WriteFile(flags.Input, []byte(csv), 0600))
	}

	originalContainer := root.AppContainer
	originalFlags := root.SharedFlags
	t.Cleanup(func() {
		root.AppContainer = originalContainer
		root.SharedFlags = originalFlags
		concurrency, errorsCSV = 0, ""
		Cmd.SetOut(nil)
	})
	root.AppContainer = c
	root.SharedFlags = flags

	var out bytes.Buffer
	Cmd.SetOut(&out)
	return &out
}

func TestImportCommand_Metadata(t *testing.T) {
	assert.Equal(t, "import", Cmd.Use)
	assert.Contains(t, Cmd.Short, "Import a catalog CSV")
	assert.Contains(t, Cmd.Long, "reused")
	assert.NotNil(t, Cmd.RunE)
	assert.NotNil(t, Cmd.Flags().Lookup("concurrency"))
	assert.NotNil(t, Cmd.Flags().Lookup("errors-csv"))
}

func TestImportCommand_RequiredFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags root.CommonFlags
		want  string
	}{
		{"no account", root.CommonFlags{Menu: "Summer Menu", Input: "x.csv"}, "--account is required"},
		{"no menu", root.CommonFlags{Account: "acc-1", Input: "x.csv"}, "--menu is required"},
		{"no input", root.CommonFlags{Account: "acc-1", Menu: "Summer Menu"}, "--input is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup(t, "http://127.0.0.1:0", tt.flags, "")
			err := importFunc(Cmd, nil)
			assert.EqualError(t, err, tt.want)
			assert.Equal(t, common.ExitUsage, common.ExitCode(err))
		})
	}
}

func TestImportCommand_Success(t *testing.T) {
	server := stubAPI(t)
	problems := filepath.Join(t.TempDir(), "problems.csv")
	out := setup(t, server.URL, root.CommonFlags{Account: "acc-1", Menu: "Summer Menu"},
		"Category 1,Category 2,Plu\nDrinks,Soda,PLU100\n")
	errorsCSV = problems

	require.NoError(t, importFunc(Cmd, nil))

	var report models.ImportReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, models.StatusSuccess, report.Status)
	assert.Equal(t, "Pizza Place", report.AccountName)
	assert.Equal(t, 1, report.ProductsAttached)

	data, err := os.ReadFile(problems)
	require.NoError(t, err)
	assert.Equal(t, "kind,row,context,message\n", string(data))
}

func TestImportCommand_UnknownPLUIsPartial(t *testing.T) {
	server := stubAPI(t)
	out := setup(t, server.URL, root.CommonFlags{Account: "acc-1", Menu: "Summer Menu"},
		"Category 1,Category 2,Plu\nDrinks,Soda,PLU100\nDrinks,Soda,PLU999\n")

	err := importFunc(Cmd, nil)
	assert.Equal(t, common.ExitPartial, common.ExitCode(err))

	var report models.ImportReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, models.StatusPartialSuccess, report.Status)
	require.Len(t, report.APIErrors, 1)
	assert.Equal(t, models.ProductContext("PLU999", "Drinks", "Soda"), report.APIErrors[0].Context)
}

func TestImportCommand_UnknownAccountFails(t *testing.T) {
	server := stubAPI(t)
	out := setup(t, server.URL, root.CommonFlags{Account: "acc-404", Menu: "Summer Menu"},
		"Category 1,Category 2,Plu\nDrinks,Soda,PLU100\n")

	err := importFunc(Cmd, nil)
	assert.ErrorContains(t, err, "account acc-404 not found")
	assert.Equal(t, common.ExitFailure, common.ExitCode(err))

	var report models.ImportReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Equal(t, "account acc-404 not found", report.FatalError)
}

func TestImportCommand_InvalidConcurrency(t *testing.T) {
	setup(t, "http://127.0.0.1:0", root.CommonFlags{Account: "acc-1", Menu: "Summer Menu"},
		"Category 1,Category 2,Plu\nDrinks,Soda,PLU100\n")
	require.NoError(t, Cmd.Flags().Set("concurrency", "0"))
	t.Cleanup(func() { Cmd.Flags().Lookup("concurrency").Changed = false })

	err := importFunc(Cmd, nil)
	assert.Equal(t, common.ExitUsage, common.ExitCode(err))
}
