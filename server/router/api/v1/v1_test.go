package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshcoop/coopchat/server/chat"
	"github.com/freshcoop/coopchat/server/queryengine"
	"github.com/freshcoop/coopchat/server/resolver"
	"github.com/freshcoop/coopchat/server/retrieval"
	"github.com/freshcoop/coopchat/server/session"
	"github.com/freshcoop/coopchat/store"
	"github.com/freshcoop/coopchat/store/cache"
)

func newTestService(t *testing.T) (*APIV1Service, *echo.Echo) {
	t.Helper()

	catalog, err := store.NewCatalog([]store.ProductRow{
		{Name: "草莓", Specification: "500g/盒", Price: 25, Unit: "盒", Category: "水果"},
	})
	require.NoError(t, err)
	corpus, err := store.NewPolicyCorpus(
		[]string{"配送费为每单5元。"}, store.DefaultPolicyCategories())
	require.NoError(t, err)
	classifier, err := queryengine.NewClassifier()
	require.NoError(t, err)

	mgr := cache.NewManager(cache.Config{MaintenanceInterval: time.Hour})
	t.Cleanup(mgr.Close)

	router, err := chat.NewRouter(chat.Config{
		Classifier: classifier,
		Resolver:   resolver.New(catalog),
		Policies:   retrieval.NewEngine(corpus),
		Catalog:    catalog,
		Corpus:     corpus,
		Cache:      mgr,
		Sessions:   session.NewMockService(),
	})
	require.NoError(t, err)

	svc := NewAPIV1Service(router, mgr, nil)
	e := echo.New()
	svc.Register(e)
	return svc, e
}

func TestHandleChat(t *testing.T) {
	_, e := newTestService(t)

	body := `{"message":"有草莓吗","user_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp chat.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Text, "草莓")
}

func TestHandleChatRequiresUserID(t *testing.T) {
	_, e := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCacheStats(t *testing.T) {
	_, e := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var st cache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.GreaterOrEqual(t, st.HitRate, 0.0)
}
