package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveWithCaller(t *testing.T, req *http.Request) (Caller, *httptest.ResponseRecorder) {
	t.Helper()
	var got Caller
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return got, w
}

func TestMiddlewareIssuesAnonCookie(t *testing.T) {
	t.Parallel()

	caller, w := serveWithCaller(t, httptest.NewRequest(http.MethodGet, "/", nil))

	if !isValidAnonID(caller.ID) {
		t.Fatalf("expected generated anon id, got %q", caller.ID)
	}
	if caller.SessionID != DefaultSessionIDValue {
		t.Fatalf("expected default session, got %q", caller.SessionID)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != caller.ID {
		t.Fatalf("expected anon cookie to be set, got %+v", cookies)
	}
}

func TestMiddlewareReusesCookieAndHeader(t *testing.T) {
	t.Parallel()

	id := "anon_" + strings.Repeat("ab", 16)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	req.Header.Set(SessionHeaderName, "tab-1")

	caller, _ := serveWithCaller(t, req)
	if caller.ID != id || caller.SessionID != "tab-1" {
		t.Fatalf("unexpected caller %+v", caller)
	}
	if caller.SessionKey() != id+":tab-1" {
		t.Fatalf("unexpected session key %q", caller.SessionKey())
	}
}

func TestMiddlewareRejectsForgedValues(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?session_id=../../etc", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "admin"})

	caller, _ := serveWithCaller(t, req)
	if caller.ID == "admin" {
		t.Fatal("invalid cookie value must be replaced")
	}
	if caller.SessionID != DefaultSessionIDValue {
		t.Fatalf("invalid session id must fall back to default, got %q", caller.SessionID)
	}
}

func TestFromContextWithoutMiddleware(t *testing.T) {
	t.Parallel()

	c := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	if !c.Anonymous() || c.SessionKey() != DefaultSessionIDValue {
		t.Fatalf("unexpected default caller %+v", c)
	}
}
