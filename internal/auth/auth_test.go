package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	v, err := NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	v.now = func() time.Time { return now }
	return v
}

func TestVerifierRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	tok, err := v.Issue(User{ID: "stu-1", Role: RoleStudent}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	user, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if user.ID != "stu-1" || user.Role != RoleStudent {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestVerifierRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	expired, err := v.Issue(User{ID: "stu-1", Role: RoleStudent}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	later := newTestVerifier(t, now.Add(time.Hour))

	other, err := NewVerifier("another-secret")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	other.now = v.now
	forged, err := other.Issue(User{ID: "stu-1", Role: RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name    string
		v       *Verifier
		token   string
		wantErr error
	}{
		{name: "empty", v: v, token: "", wantErr: ErrMissingToken},
		{name: "garbage", v: v, token: "not-a-jwt", wantErr: ErrInvalidToken},
		{name: "expired", v: later, token: expired, wantErr: ErrInvalidToken},
		{name: "wrong secret", v: v, token: forged, wantErr: ErrInvalidToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.v.Verify(tc.token)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	v := newTestVerifier(t, time.Now())
	if _, err := v.Issue(User{ID: "x", Role: "proctor"}, time.Hour); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestRequireAuthAndRoles(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(t, now)
	h := NewHandler(v)

	studentTok, err := v.Issue(User{ID: "stu-1", Role: RoleStudent}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	teacherTok, err := v.Issue(User{ID: "tch-1", Role: RoleTeacher}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var seen *User
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CurrentUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	chain := h.RequireAuth(h.RequireRoles(RoleTeacher, RoleAdmin)(final))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "student forbidden", header: "Bearer " + studentTok, want: http.StatusForbidden},
		{name: "teacher allowed", header: "bearer " + teacherTok, want: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			chain.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d body=%s", rr.Code, tc.want, rr.Body.String())
			}
			if tc.want == http.StatusNoContent && (seen == nil || seen.ID != "tch-1") {
				t.Fatalf("user not propagated: %+v", seen)
			}
		})
	}
}
