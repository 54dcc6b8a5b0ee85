package apiresp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestWriteErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		code     string
		msg      string
		wantCode string
		wantMsg  string
	}{
		{name: "explicit code", status: http.StatusConflict, code: "past_due", msg: "too late", wantCode: "past_due", wantMsg: "too late"},
		{name: "derived code", status: http.StatusNotFound, msg: "attempt not found", wantCode: "not_found", wantMsg: "attempt not found"},
		{name: "default message", status: http.StatusTooManyRequests, wantCode: "rate_limited", wantMsg: "Too Many Requests"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			WriteErrorCode(rr, req, tc.status, tc.code, tc.msg)

			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			var env Envelope
			if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.OK || env.Error == nil {
				t.Fatalf("expected error envelope, got %+v", env)
			}
			if env.Error.Code != tc.wantCode || env.Error.Message != tc.wantMsg {
				t.Fatalf("error = %+v, want code=%q message=%q", env.Error, tc.wantCode, tc.wantMsg)
			}
		})
	}
}

func TestWriteOKCarriesRequestID(t *testing.T) {
	var rr *httptest.ResponseRecorder
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteOK(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	var env Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.OK {
		t.Fatalf("expected ok envelope")
	}
	if env.Meta.RequestID == "" {
		t.Fatalf("expected request id in meta")
	}
	if env.Error != nil {
		t.Fatalf("unexpected error payload: %+v", env.Error)
	}
}
