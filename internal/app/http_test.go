package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"qartha/api/internal/authpw"
)

func newTestHandler(t *testing.T) (http.Handler, *Service, *fakeStore) {
	t.Helper()
	svc, fake := newTestService(t)
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	server := NewHTTPServer(svc, "*", "/static", "")
	return server.Handler(), svc, fake
}

func login(t *testing.T, handler http.Handler, email, password string) *http.Cookie {
	t.Helper()
	body := strings.NewReader(`{"email": "` + email + `", "password": "` + password + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == accessTokenCookie && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatal("login did not set the session cookie")
	return nil
}

func doJSON(handler http.Handler, method, target string, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := doJSON(handler, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestReadyEndpoint(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := doJSON(handler, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"ready"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestTenantRoutesRequireSession(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := doJSON(handler, http.MethodGet, "/api/Trinity/sabinas/idfs", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "UNAUTHORIZED") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestBearerTokenFallback(t *testing.T) {
	handler, svc, _ := newTestHandler(t)

	sess, err := svc.Login(context.Background(), "admin@qartha.local", "admin123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/Trinity/sabinas/idfs", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestViewerCannotMutate(t *testing.T) {
	handler, _, fake := newTestHandler(t)

	hash, err := authpw.HashPassword("viewer-pass")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if err := fake.InsertUser(context.Background(), "viewer@qartha.local", hash, "viewer"); err != nil {
		t.Fatalf("InsertUser failed: %v", err)
	}
	cookie := login(t, handler, "viewer@qartha.local", "viewer-pass")

	rec := doJSON(handler, http.MethodGet, "/api/Trinity/sabinas/idfs", "", cookie)
	if rec.Code != http.StatusOK {
		t.Errorf("viewer read status = %d", rec.Code)
	}

	rec = doJSON(handler, http.MethodPost, "/api/Trinity/sabinas/idfs", `{"code": "IDF-1", "title": "x"}`, cookie)
	if rec.Code != http.StatusForbidden {
		t.Errorf("viewer create status = %d, want 403", rec.Code)
	}
}

func TestCreateAndFetchIDF(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	cookie := login(t, handler, "admin@qartha.local", "admin123")

	rec := doJSON(handler, http.MethodPost, "/api/Trinity/sabinas/idfs", `{"code": "IDF-7", "title": "Seventh frame"}`, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/Trinity/sabinas/idfs/IDF-7", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", rec.Code, rec.Body.String())
	}

	var detail IdfDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("bad detail body: %v", err)
	}
	if detail.Project != "Sabinas Project" {
		t.Errorf("project = %q, want canonical", detail.Project)
	}
	if detail.Images == nil || detail.Documents == nil {
		t.Error("media lists should serialize as arrays, not null")
	}
	if detail.Health.Level != "gray" {
		t.Errorf("health = %q, want gray for no table", detail.Health.Level)
	}
}

func TestGetMissingIDF(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	cookie := login(t, handler, "admin@qartha.local", "admin123")

	rec := doJSON(handler, http.MethodGet, "/api/Trinity/sabinas/idfs/IDF-404", "", cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUnknownClusterOverHTTP(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	cookie := login(t, handler, "admin@qartha.local", "admin123")

	rec := doJSON(handler, http.MethodGet, "/api/intruder/sabinas/idfs", "", cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUploadAssetMultipart(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	cookie := login(t, handler, "admin@qartha.local", "admin123")

	rec := doJSON(handler, http.MethodPost, "/api/Trinity/sabinas/idfs", `{"code": "IDF-1", "title": "Frame"}`, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="photo.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart failed: %v", err)
	}
	if _, err := part.Write([]byte("fake png bytes")); err != nil {
		t.Fatalf("part write failed: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/Trinity/sabinas/assets/IDF-1/images", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(cookie)
	uploadRec := httptest.NewRecorder()
	handler.ServeHTTP(uploadRec, req)
	if uploadRec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", uploadRec.Code, uploadRec.Body.String())
	}

	var detail IdfDetail
	if err := json.Unmarshal(uploadRec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("bad detail body: %v", err)
	}
	if len(detail.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(detail.Images))
	}
	if !strings.Contains(detail.Images[0].URL, "/static/Trinity/sabinas/IDF-1/images/") {
		t.Errorf("url = %q", detail.Images[0].URL)
	}
}

func TestReplaceDevicesCSV(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	cookie := login(t, handler, "admin@qartha.local", "admin123")

	rec := doJSON(handler, http.MethodPost, "/api/Trinity/sabinas/idfs", `{"code": "IDF-1", "title": "Frame"}`, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	csvBody := "name,model,serial\nSW-01,Catalyst 9300,FCW1\n,orphan,row\nSW-02,Catalyst 9200,FCW2\n"
	req := httptest.NewRequest(http.MethodPost, "/api/Trinity/sabinas/idfs/IDF-1/devices", strings.NewReader(csvBody))
	req.Header.Set("Content-Type", "text/csv")
	req.AddCookie(cookie)
	csvRec := httptest.NewRecorder()
	handler.ServeHTTP(csvRec, req)
	if csvRec.Code != http.StatusOK {
		t.Fatalf("csv upload status = %d: %s", csvRec.Code, csvRec.Body.String())
	}
	if !strings.Contains(csvRec.Body.String(), `"count":2`) {
		t.Errorf("body = %s", csvRec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/Trinity/sabinas/idfs/IDF-1/devices", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list devices status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SW-01") || !strings.Contains(rec.Body.String(), "SW-02") {
		t.Errorf("devices body = %s", rec.Body.String())
	}
}

func TestAuthMeAndLogout(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	cookie := login(t, handler, "admin@qartha.local", "admin123")

	rec := doJSON(handler, http.MethodGet, "/api/auth/me", "", cookie)
	if !strings.Contains(rec.Body.String(), `"authenticated":true`) {
		t.Errorf("me body = %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"role":"admin"`) {
		t.Errorf("me body = %s", rec.Body.String())
	}

	rec = doJSON(handler, http.MethodPost, "/api/auth/logout", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}

	rec = doJSON(handler, http.MethodGet, "/api/Trinity/sabinas/idfs", "", cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked session still accepted: %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/Trinity/sabinas/idfs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS headers: %v", rec.Header())
	}
}

func TestRequestIDPropagation(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := doJSON(handler, http.MethodGet, "/api/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
