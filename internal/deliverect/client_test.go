package deliverect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/logging"
)

// fakeAPI is an in-memory Deliverect backend issuing numbered tokens.
type fakeAPI struct {
	mux        *http.ServeMux
	tokenCalls atomic.Int32
	tokenCode  int
}

func newFakeAPI() *fakeAPI {
	f := &fakeAPI{mux: http.NewServeMux(), tokenCode: http.StatusOK}
	f.mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if f.tokenCode != http.StatusOK || req.ClientSecret != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		n := f.tokenCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": fmt.Sprintf("tok-%d", n),
			"token_type":   "Bearer",
			"expires_at":   time.Now().Add(time.Hour).Unix(),
		})
	})
	return f
}

func (f *fakeAPI) client(t *testing.T, opts Options) *Client {
	t.Helper()
	server := httptest.NewServer(f.mux)
	t.Cleanup(server.Close)

	opts.BaseURL = server.URL
	if opts.ClientID == "" {
		opts.ClientID = "id"
	}
	if opts.ClientSecret == "" {
		opts.ClientSecret = "secret"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	opts.RequestsPerSecond = 1000

	c, err := NewClient(opts, logging.NewMockLogger())
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Options{ClientID: "id"}, logging.NewMockLogger())
	assert.Error(t, err)

	c, err := NewClient(Options{ClientID: "id", ClientSecret: "s"}, logging.NewMockLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultDeveloperAccountID, c.DeveloperAccountID())
	assert.Equal(t, DefaultAuthURL, c.opts.AuthURL)
	assert.Equal(t, DefaultTimeout, c.opts.Timeout)
	assert.Equal(t, DefaultProductPageSize, c.opts.ProductPageSize)
}

func TestValidateAccountAccess(t *testing.T) {
	api := newFakeAPI()
	var gotAuth string
	api.mux.HandleFunc("GET /accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.PathValue("id") {
		case "acc-1":
			writeJSON(w, http.StatusOK, map[string]string{"_id": "acc-1", "name": "Pizza Place"})
		case "acc-forbidden":
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		}
	})
	c := api.client(t, Options{})

	account, err := c.ValidateAccountAccess(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)
	assert.Equal(t, "Pizza Place", account.Name)
	assert.Equal(t, "Bearer tok-1", gotAuth)

	tests := []struct {
		name      string
		accountID string
		kind      importerror.AccessKind
	}{
		{"unlinked account", "acc-forbidden", importerror.AccessUnlinked},
		{"unknown account", "acc-missing", importerror.AccessNotFound},
		{"empty account id", "", importerror.AccessNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ValidateAccountAccess(context.Background(), tt.accountID)
			var accessErr *importerror.AccessError
			require.ErrorAs(t, err, &accessErr)
			assert.Equal(t, tt.kind, accessErr.Kind)
			assert.Equal(t, DefaultDeveloperAccountID, accessErr.DeveloperAccountID)
			assert.True(t, importerror.IsFatal(err))
		})
	}

	assert.Equal(t, int32(1), api.tokenCalls.Load(), "token should be cached across calls")
}

func TestValidateAccountAccess_RefreshesOnceOn401(t *testing.T) {
	api := newFakeAPI()
	api.mux.HandleFunc("GET /accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		// only the second token is accepted
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"_id": r.PathValue("id"), "name": "Burger Bar"})
	})
	c := api.client(t, Options{})

	account, err := c.ValidateAccountAccess(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "Burger Bar", account.Name)
	assert.Equal(t, int32(2), api.tokenCalls.Load())
}

func TestValidateAccountAccess_AuthFailed(t *testing.T) {
	t.Run("401 after refresh", func(t *testing.T) {
		api := newFakeAPI()
		var calls atomic.Int32
		api.mux.HandleFunc("GET /accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		})
		c := api.client(t, Options{})

		_, err := c.ValidateAccountAccess(context.Background(), "acc-1")
		var accessErr *importerror.AccessError
		require.ErrorAs(t, err, &accessErr)
		assert.Equal(t, importerror.AccessAuthFailed, accessErr.Kind)
		assert.Equal(t, int32(2), calls.Load(), "exactly one retry after refresh")
		assert.Equal(t, int32(2), api.tokenCalls.Load())
	})

	t.Run("token endpoint rejects credentials", func(t *testing.T) {
		api := newFakeAPI()
		api.tokenCode = http.StatusUnauthorized
		c := api.client(t, Options{})

		_, err := c.ValidateAccountAccess(context.Background(), "acc-1")
		var accessErr *importerror.AccessError
		require.ErrorAs(t, err, &accessErr)
		assert.Equal(t, importerror.AccessAuthFailed, accessErr.Kind)
	})
}

func TestValidateAccountAccess_ServerErrorIsNotAccessError(t *testing.T) {
	api := newFakeAPI()
	api.mux.HandleFunc("GET /accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "maintenance"})
	})
	c := api.client(t, Options{})

	_, err := c.ValidateAccountAccess(context.Background(), "acc-1")
	var apiErr *importerror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, importerror.APIRejected, apiErr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, 3*time.Second, apiErr.RetryAfter)
	assert.True(t, importerror.IsRetryable(err))
	assert.False(t, importerror.IsFatal(err))
}

func TestListCatalogs_Paginates(t *testing.T) {
	api := newFakeAPI()
	var pages []string
	api.mux.HandleFunc("GET /catalog/accounts/{id}/menus", func(w http.ResponseWriter, r *http.Request) {
		pageNum := r.URL.Query().Get("page")
		pages = append(pages, pageNum)
		assert.Equal(t, "100", r.URL.Query().Get("max_results"))

		var items []map[string]string
		switch pageNum {
		case "1":
			for i := 0; i < listPageSize; i++ {
				items = append(items, map[string]string{"_id": fmt.Sprintf("m%d", i), "name": fmt.Sprintf("Menu %d", i)})
			}
		case "2":
			items = append(items, map[string]string{"_id": "last", "name": "Summer Menu"})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"_items": items,
			"_meta":  map[string]int{"page": 2, "max_results": 100, "total": 101},
		})
	})
	c := api.client(t, Options{})

	menus, err := c.ListCatalogs(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Len(t, menus, 101)
	assert.Equal(t, "Summer Menu", menus[100].Name)
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestCreateCatalogAndCategories(t *testing.T) {
	api := newFakeAPI()
	var bodies []map[string]interface{}
	var mu sync.Mutex
	api.mux.HandleFunc("POST /catalog/accounts/{id}/menus", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"_id": "menu-1"})
	})
	api.mux.HandleFunc("POST /catalog/accounts/{id}/categories", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		bodies = append(bodies, body)
		n := len(bodies)
		mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]string{"_id": fmt.Sprintf("cat-%d", n)})
	})
	c := api.client(t, Options{})
	ctx := context.Background()

	menu, err := c.CreateCatalog(ctx, "acc-1", "Summer Menu")
	require.NoError(t, err)
	assert.Equal(t, "menu-1", menu.ID)
	assert.Equal(t, "Summer Menu", menu.Name)

	food, err := c.CreateCategory(ctx, "acc-1", menu.ID, "Food", "")
	require.NoError(t, err)
	assert.Equal(t, "cat-1", food.ID)
	assert.Empty(t, food.ParentID)

	pizza, err := c.CreateCategory(ctx, "acc-1", menu.ID, "Pizza", food.ID)
	require.NoError(t, err)
	assert.Equal(t, "cat-2", pizza.ID)
	assert.Equal(t, food.ID, pizza.ParentID)

	require.Len(t, bodies, 2)
	assert.Equal(t, "Food", bodies[0]["name"])
	assert.Equal(t, "menu-1", bodies[0]["menu"])
	assert.NotContains(t, bodies[0], "parentCategory")
	assert.Equal(t, "cat-1", bodies[1]["parentCategory"])
}

func TestCreateCategory_Rejected(t *testing.T) {
	api := newFakeAPI()
	api.mux.HandleFunc("POST /catalog/accounts/{id}/categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "name too long"})
	})
	c := api.client(t, Options{})

	_, err := c.CreateCategory(context.Background(), "acc-1", "menu-1", "Drinks", "")
	var apiErr *importerror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, importerror.APIRejected, apiErr.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "name too long")
	assert.Equal(t, "create category", apiErr.Operation)
	assert.False(t, importerror.IsRetryable(err))
}

func TestListCategories(t *testing.T) {
	api := newFakeAPI()
	api.mux.HandleFunc("GET /catalog/accounts/{id}/categories", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `{"menu":"menu-1"}`, r.URL.Query().Get("where"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"_items": []map[string]string{
				{"_id": "c1", "name": "Food", "menu": "menu-1"},
				{"_id": "c2", "name": "Pizza", "menu": "menu-1", "parentCategory": "c1"},
			},
			"_meta": map[string]int{"page": 1, "total_pages": 1},
		})
	})
	c := api.client(t, Options{})

	cats, err := c.ListCategories(context.Background(), "acc-1", "menu-1")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Food", cats[0].Name)
	assert.Empty(t, cats[0].ParentID)
	assert.Equal(t, "c1", cats[1].ParentID)
}

func TestTimeout(t *testing.T) {
	api := newFakeAPI()
	api.mux.HandleFunc("GET /catalog/accounts/{id}/menus", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c := api.client(t, Options{Timeout: 50 * time.Millisecond})

	_, err := c.ListCatalogs(context.Background(), "acc-1")
	var apiErr *importerror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, importerror.APITimeout, apiErr.Kind)
	assert.True(t, importerror.IsRetryable(err))
}

func TestCancelledContextIsNotTimeout(t *testing.T) {
	api := newFakeAPI()
	c := api.client(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListCatalogs(ctx, "acc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, importerror.IsRetryable(err))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "7", 7 * time.Second},
		{"negative", "-1", 0},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			assert.Equal(t, tt.want, parseRetryAfter(h, now))
		})
	}
}

func TestTokenSource_DeduplicatesRefresh(t *testing.T) {
	var fetches atomic.Int32
	release := make(chan struct{})
	ts := newTokenSource(func(ctx context.Context) (string, time.Time, error) {
		fetches.Add(1)
		<-release
		return "shared", time.Now().Add(time.Hour), nil
	})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := ts.Token(context.Background())
			assert.NoError(t, err)
			results[i] = tok
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load())
	for _, tok := range results {
		assert.Equal(t, "shared", tok)
	}
}

func TestTokenSource_RefreshSkipsWhenAlreadyReplaced(t *testing.T) {
	var fetches atomic.Int32
	ts := newTokenSource(func(ctx context.Context) (string, time.Time, error) {
		n := fetches.Add(1)
		return fmt.Sprintf("t%d", n), time.Now().Add(time.Hour), nil
	})
	ctx := context.Background()

	first, err := ts.Token(ctx)
	require.NoError(t, err)
	second, err := ts.Refresh(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "t2", second)

	// a caller still holding the first token must not trigger another fetch
	again, err := ts.Refresh(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "t2", again)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestTokenSource_ExpiredTokenIsRefetched(t *testing.T) {
	now := time.Now()
	var fetches atomic.Int32
	ts := newTokenSource(func(ctx context.Context) (string, time.Time, error) {
		n := fetches.Add(1)
		return fmt.Sprintf("t%d", n), now.Add(time.Minute), nil
	})
	ts.now = func() time.Time { return now }

	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", tok)

	ts.now = func() time.Time { return now.Add(45 * time.Second) }
	tok, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t2", tok, "token inside the expiry skew is refreshed")
}
