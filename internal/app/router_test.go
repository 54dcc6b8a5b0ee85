package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"examgate/internal/auth"
	internaldb "examgate/internal/db"
)

const testSecret = "router-test-secret"

type apiEnvelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func (c apiClient) do(method, path, token, body string) (int, apiEnvelope) {
	c.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rdr)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		c.t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return res.StatusCode, env
}

func newTestServer(t *testing.T) (apiClient, *auth.Verifier) {
	t.Helper()
	conn, err := internaldb.Open(context.Background(), internaldb.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	handler, err := NewRouter(Config{
		DBDriver:             "sqlite",
		AuthHMACSecret:       testSecret,
		AdmitRateLimitPerMin: 20,
		CatalogCacheSize:     16,
		CatalogCacheTTLSecs:  60,
		MaxAdmitRetries:      1,
	}, conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	v, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return apiClient{t: t, srv: srv}, v
}

func issue(t *testing.T, v *auth.Verifier, id, role string) string {
	t.Helper()
	tok, err := v.Issue(auth.User{ID: id, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	c, v := newTestServer(t)
	teacher := issue(t, v, "tch-1", auth.RoleTeacher)
	student := issue(t, v, "stu-1", auth.RoleStudent)

	if code, _ := c.do(http.MethodGet, "/api/v1/tests/algebra/status", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("anonymous status: %d", code)
	}
	if code, _ := c.do(http.MethodPut, "/api/v1/tests/algebra", student, `{"max_attempts":1}`); code != http.StatusForbidden {
		t.Fatalf("student catalog write: %d", code)
	}

	code, _ := c.do(http.MethodPut, "/api/v1/tests/algebra", teacher, `{"title":"Algebra","max_attempts":2,"allow_retrial":true,"passing_score_percent":70}`)
	if code != http.StatusOK {
		t.Fatalf("upsert test: %d", code)
	}

	code, env := c.do(http.MethodGet, "/api/v1/tests/algebra/status", student, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"status":"available"`) || !strings.Contains(string(env.Data), `"can_start":true`) {
		t.Fatalf("initial status: %d %s", code, env.Data)
	}

	code, env = c.do(http.MethodPost, "/api/v1/tests/algebra/attempts", student, "")
	if code != http.StatusCreated {
		t.Fatalf("start: %d %+v", code, env.Error)
	}
	var adm struct {
		Attempt struct {
			ID            string `json:"id"`
			AttemptNumber int    `json:"attempt_number"`
		} `json:"attempt"`
		Resumed bool `json:"resumed"`
	}
	if err := json.Unmarshal(env.Data, &adm); err != nil {
		t.Fatalf("decode admission: %v", err)
	}
	if adm.Attempt.AttemptNumber != 1 || adm.Resumed {
		t.Fatalf("unexpected admission: %+v", adm)
	}
	attemptPath := "/api/v1/attempts/" + adm.Attempt.ID

	code, env = c.do(http.MethodPost, "/api/v1/tests/algebra/attempts", student, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), adm.Attempt.ID) {
		t.Fatalf("resume: %d %s", code, env.Data)
	}

	if code, env = c.do(http.MethodPost, attemptPath+"/release", teacher, ""); code != http.StatusConflict || env.Error.Code != "not_graded" {
		t.Fatalf("release before grading: %d %+v", code, env.Error)
	}

	if code, _ = c.do(http.MethodPost, attemptPath+"/submit", student, ""); code != http.StatusOK {
		t.Fatalf("submit: %d", code)
	}
	if code, _ = c.do(http.MethodPost, attemptPath+"/grade", student, `{"score":42,"total_points":50}`); code != http.StatusForbidden {
		t.Fatalf("student grading: %d", code)
	}
	if code, env = c.do(http.MethodPost, attemptPath+"/grade", teacher, `{"score":42,"total_points":50}`); code != http.StatusOK {
		t.Fatalf("grade: %d %+v", code, env.Error)
	}

	code, env = c.do(http.MethodGet, attemptPath+"/result", student, "")
	if code != http.StatusOK || strings.Contains(string(env.Data), `"score"`) {
		t.Fatalf("hidden result leaked: %d %s", code, env.Data)
	}

	if code, _ = c.do(http.MethodPost, attemptPath+"/release", teacher, ""); code != http.StatusOK {
		t.Fatalf("release: %d", code)
	}
	code, env = c.do(http.MethodGet, attemptPath+"/result", student, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"percentage":84`) {
		t.Fatalf("released result: %d %s", code, env.Data)
	}

	code, env = c.do(http.MethodGet, "/api/v1/tests/algebra/cohort-scores?scope=best", teacher, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"passed_count":1`) {
		t.Fatalf("cohort scores: %d %s", code, env.Data)
	}

	code, env = c.do(http.MethodPost, "/api/v1/tests/algebra/hide", teacher, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"affected":1`) {
		t.Fatalf("bulk hide: %d %s", code, env.Data)
	}

	code, env = c.do(http.MethodGet, attemptPath+"/events", teacher, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"event_type":"admitted"`) {
		t.Fatalf("events: %d %s", code, env.Data)
	}

	other := issue(t, v, "stu-2", auth.RoleStudent)
	if code, _ = c.do(http.MethodGet, attemptPath+"/result", other, ""); code != http.StatusForbidden {
		t.Fatalf("other student result: %d", code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	c, _ := newTestServer(t)

	if code, env := c.do(http.MethodGet, "/healthz", "", ""); code != http.StatusOK || !env.OK {
		t.Fatalf("healthz: %d", code)
	}

	res, err := c.srv.Client().Get(c.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "examgate_http_requests_total") {
		t.Fatalf("metrics: %d %s", res.StatusCode, body)
	}
}

func TestNewRouterRequiresSecret(t *testing.T) {
	if _, err := NewRouter(Config{}, nil, nil); err == nil {
		t.Fatalf("expected error without auth secret")
	}
}
