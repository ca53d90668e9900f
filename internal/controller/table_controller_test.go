package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deltaframe/internal/delta"
	"deltaframe/internal/delta/deltatest"
	"deltaframe/internal/metrics"
	"deltaframe/internal/middleware"
	"deltaframe/internal/repository"
	"deltaframe/internal/security"
	"deltaframe/internal/service"
	"deltaframe/internal/storage"
)

type readingRow struct {
	Sensor string  `parquet:"sensor"`
	Value  float64 `parquet:"value"`
}

func buildReadingsTable(t *testing.T) *deltatest.Table {
	rows := make([]readingRow, 0, 8)
	for i := 0; i < 8; i++ {
		rows = append(rows, readingRow{Sensor: fmt.Sprintf("s%d", i%2), Value: float64(i) / 2})
	}

	table := deltatest.New(t)
	table.Commit(
		deltatest.CommitInfo("CREATE TABLE", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		deltatest.Protocol(),
		deltatest.MetaData(nil,
			deltatest.Column{Name: "sensor", Type: "string"},
			deltatest.Column{Name: "value", Type: "double"}),
		deltatest.WriteRows(table, "part-0.parquet", rows),
	)
	return table
}

type testServer struct {
	router   *gin.Engine
	jwt      *security.JWTManager
	registry *prometheus.Registry
	table    *deltatest.Table
}

func newTestServer(t *testing.T, withAuth bool) *testServer {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	cache := delta.NewSnapshotCache(time.Minute)
	resolver := delta.NewResolver(storage.NewRegistry(),
		delta.WithCache(cache),
		delta.WithMetrics(metrics.NewReaderMetrics(registry)))
	usage := service.NewUsageCollector(time.Hour)
	tableService := service.NewTableService(repository.NewMemoryTableRepository(), resolver, cache, usage,
		service.TableServiceConfig{MaxReadRows: 100}, zap.NewNop())

	cfg := RouterConfig{
		Tables:   NewTableController(tableService, usage, zap.NewNop()),
		Health:   NewHealthController(nil, cache),
		Metrics:  middleware.NewHTTPMetrics(registry),
		Gatherer: registry,
	}
	jwtManager := security.NewJWTManager("test-secret", "deltaframe", time.Hour)
	if withAuth {
		cfg.Auth = security.NewAuthMiddleware(jwtManager)
	}

	return &testServer{
		router:   NewRouter(cfg),
		jwt:      jwtManager,
		registry: registry,
		table:    buildReadingsTable(t),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) token(t *testing.T, roles, tables []string) map[string]string {
	token, err := s.jwt.GenerateToken("u1", "tester", roles, tables)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Fields  []struct {
			Field string `json:"field"`
			Rule  string `json:"rule"`
		} `json:"fields"`
	} `json:"error"`
	CorrelationID string `json:"correlationId"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestTableLifecycle(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/v1/tables", map[string]string{"name": "readings", "location": s.table.Root}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, decode(t, w).Success)

	w = s.do(t, http.MethodPost, "/api/v1/tables", map[string]string{"name": "readings", "location": s.table.Root}, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "TABLE_EXISTS", decode(t, w).Error.Code)

	w = s.do(t, http.MethodPost, "/api/v1/tables", map[string]string{"name": "bad/name", "location": s.table.Root}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decode(t, w)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	require.Len(t, env.Error.Fields, 1)
	require.Equal(t, "name", env.Error.Fields[0].Field)
	require.Equal(t, "excludesall", env.Error.Fields[0].Rule)

	w = s.do(t, http.MethodGet, "/api/v1/tables?limit=500", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env = decode(t, w)
	require.Len(t, env.Error.Fields, 1)
	require.Equal(t, "limit", env.Error.Fields[0].Field)
	require.Equal(t, "max", env.Error.Fields[0].Rule)

	w = s.do(t, http.MethodGet, "/api/v1/tables", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list service.ListTablesResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, "readings", list.Tables[0].Name)

	w = s.do(t, http.MethodGet, "/api/v1/tables/readings/history?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var commits []delta.CommitRecord
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &commits))
	require.Len(t, commits, 1)
	require.Equal(t, "CREATE TABLE", commits[0].Operation)

	w = s.do(t, http.MethodGet, "/api/v1/tables/readings/history?limit=x", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/tables/readings", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/tables/readings", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "TABLE_NOT_FOUND", decode(t, w).Error.Code)
}

func TestResolveEndpoint(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/v1/resolve", map[string]interface{}{"location": s.table.Root}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var set delta.ResolvedFileSet
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &set))
	require.EqualValues(t, 0, set.Version)
	require.Equal(t, []string{"sensor", "value"}, set.Columns)
	require.Len(t, set.Files, 1)

	w = s.do(t, http.MethodPost, "/api/v1/resolve", map[string]interface{}{"location": s.table.Root, "version": 3}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "VERSION_OUT_OF_RANGE", decode(t, w).Error.Code)

	w = s.do(t, http.MethodPost, "/api/v1/resolve", map[string]interface{}{"location": s.table.Root, "checkpoint": 30}, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "DELTA_ARTIFACT_NOT_FOUND", decode(t, w).Error.Code)

	w = s.do(t, http.MethodPost, "/api/v1/resolve", map[string]interface{}{"location": s.table.Root, "columns": []string{"nope"}}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "UNKNOWN_COLUMN", decode(t, w).Error.Code)

	w = s.do(t, http.MethodPost, "/api/v1/resolve", map[string]interface{}{}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/resolve", map[string]interface{}{"table": "a", "location": s.table.Root}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decode(t, w)
	require.Len(t, env.Error.Fields, 1)
	require.Equal(t, "table", env.Error.Fields[0].Field)
	require.Equal(t, "excluded_with", env.Error.Fields[0].Rule)
}

func TestReadEndpointJSON(t *testing.T) {
	s := newTestServer(t, false)

	body := map[string]interface{}{
		"location": s.table.Root,
		"filter":   [][]interface{}{{"sensor", "==", "s1"}},
		"limit":    3,
	}
	w := s.do(t, http.MethodPost, "/api/v1/read", body, map[string]string{"X-Correlation-ID": "corr-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decode(t, w)
	require.Equal(t, "corr-1", env.CorrelationID)
	var read struct {
		Columns []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"columns"`
		Rows     [][]interface{} `json:"rows"`
		Metadata struct {
			RowCount  int  `json:"rowCount"`
			Truncated bool `json:"truncated"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &read))
	require.Equal(t, "value", read.Columns[1].Name)
	require.Equal(t, "double", read.Columns[1].Type)
	require.Len(t, read.Rows, 3)
	require.Equal(t, []interface{}{"s1", 0.5}, read.Rows[0])
	require.True(t, read.Metadata.Truncated)
}

func TestReadEndpointArrow(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/v1/read", map[string]interface{}{"location": s.table.Root},
		map[string]string{"Accept": ArrowStreamMediaType})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, ArrowStreamMediaType, w.Header().Get("Content-Type"))
	require.Equal(t, "0", w.Header().Get("X-Delta-Version"))

	reader, err := ipc.NewReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer reader.Release()

	require.True(t, reader.Next())
	rec := reader.Record()
	require.EqualValues(t, 8, rec.NumRows())
	require.Equal(t, "sensor", rec.ColumnName(0))
	values := rec.Column(1).(*array.Float64)
	require.Equal(t, 3.5, values.Value(7))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	require.Equal(t, "healthy", health.Status)
	require.Equal(t, "memory", health.Catalog.Driver)
	require.NotNil(t, health.Cache)

	s.do(t, http.MethodPost, "/api/v1/resolve", map[string]interface{}{"location": s.table.Root}, nil)

	w = s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "deltaframe_resolve_total")
	require.Contains(t, w.Body.String(), "deltaframe_http_requests_total")

	w = s.do(t, http.MethodGet, "/api/v1/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/nowhere", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthorization(t *testing.T) {
	s := newTestServer(t, true)
	admin := s.token(t, []string{security.RoleAdmin}, []string{security.AllTables})
	reader := s.token(t, nil, []string{"readings"})
	stranger := s.token(t, nil, []string{"orders"})

	w := s.do(t, http.MethodGet, "/api/v1/tables", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/tables", map[string]string{"name": "readings", "location": s.table.Root}, reader)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/tables", map[string]string{"name": "readings", "location": s.table.Root}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/read", map[string]interface{}{"table": "readings"}, reader)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/read", map[string]interface{}{"table": "readings"}, stranger)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "FORBIDDEN", decode(t, w).Error.Code)

	// raw locations need the wildcard grant
	w = s.do(t, http.MethodPost, "/api/v1/resolve", map[string]interface{}{"location": s.table.Root}, reader)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/resolve", map[string]interface{}{"location": s.table.Root}, admin)
	require.Equal(t, http.StatusOK, w.Code)
}
