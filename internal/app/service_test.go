package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"qartha/api/internal/assets"
	"qartha/api/internal/authpw"
	"qartha/api/internal/config"
	"qartha/api/internal/export"
	"qartha/api/internal/media"
	"qartha/api/internal/session"
	"qartha/api/internal/store"
	"qartha/api/internal/tenant"
)

const testBase = "http://api.test"

type fakeStore struct {
	mu      sync.Mutex
	idfs    map[string]store.IDFRecord
	devices map[string][]store.Device
	users   map[string]store.User
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		idfs:    make(map[string]store.IDFRecord),
		devices: make(map[string][]store.Device),
		users:   make(map[string]store.User),
	}
}

func key(cluster, project, code string) string {
	return cluster + "|" + project + "|" + code
}

func (f *fakeStore) GetIDF(_ context.Context, cluster, project, code string) (store.IDFRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.idfs[key(cluster, project, code)]
	if !ok {
		return store.IDFRecord{}, sql.ErrNoRows
	}
	return rec, nil
}

func (f *fakeStore) IDFExists(_ context.Context, cluster, project, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.idfs[key(cluster, project, code)]
	return ok, nil
}

func (f *fakeStore) ListIDFs(_ context.Context, cluster, project, q string, limit, skip int) ([]store.IDFRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var records []store.IDFRecord
	for _, rec := range f.idfs {
		if rec.Cluster != cluster || rec.Project != project {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(rec.Code+" "+rec.Title), strings.ToLower(q)) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (f *fakeStore) InsertIDF(_ context.Context, rec store.IDFRecord) (store.IDFRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(rec.Cluster, rec.Project, rec.Code)
	if _, ok := f.idfs[k]; ok {
		return store.IDFRecord{}, fmt.Errorf("duplicate idf")
	}
	f.nextID++
	rec.ID = f.nextID
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	f.idfs[k] = rec
	return rec, nil
}

func (f *fakeStore) UpdateIDF(_ context.Context, rec store.IDFRecord) (store.IDFRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(rec.Cluster, rec.Project, rec.Code)
	existing, ok := f.idfs[k]
	if !ok {
		return store.IDFRecord{}, sql.ErrNoRows
	}
	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now()
	f.idfs[k] = rec
	return rec, nil
}

func (f *fakeStore) UpdateMediaColumn(_ context.Context, cluster, project, code, column string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(cluster, project, code)
	rec, ok := f.idfs[k]
	if !ok {
		return sql.ErrNoRows
	}
	value := sql.NullString{String: string(raw), Valid: true}
	switch column {
	case "gallery":
		rec.Gallery = value
	case "documents":
		rec.Documents = value
	case "diagrams":
		rec.Diagrams = value
	case "dfo":
		rec.DFO = value
	case "location":
		rec.Location = value
	case "logo":
		rec.Logo = value
	case "table_data":
		rec.TableData = value
	default:
		return fmt.Errorf("unknown column %q", column)
	}
	rec.UpdatedAt = time.Now()
	f.idfs[k] = rec
	return nil
}

func (f *fakeStore) DeleteIDF(_ context.Context, cluster, project, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(cluster, project, code)
	if _, ok := f.idfs[k]; !ok {
		return false, nil
	}
	delete(f.idfs, k)
	return true, nil
}

func (f *fakeStore) ReplaceDevices(_ context.Context, cluster, project, code string, devices []store.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[key(cluster, project, code)] = devices
	return nil
}

func (f *fakeStore) ListDevices(_ context.Context, cluster, project, code string) ([]store.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[key(cluster, project, code)], nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[strings.ToLower(email)]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) TouchUserLogin(_ context.Context, _ int64) error { return nil }

func (f *fakeStore) CountUsers(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

func (f *fakeStore) InsertUser(_ context.Context, email, passwordHash, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.users[strings.ToLower(email)] = store.User{
		ID:           f.nextID,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
	}
	return nil
}

func (f *fakeStore) SeedIDFs(_ context.Context) error { return nil }

func (f *fakeStore) Ping(_ context.Context) error { return nil }

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	fake := newFakeStore()
	cfg := config.Config{
		AllowedClusters: []string{"Trinity", "trk"},
		StaticMount:     "/static",
		JWTSecret:       "test-secret",
		AccessTTL:       time.Hour,
		AdminEmail:      "admin@qartha.local",
		AdminPassword:   "admin123",
	}
	svc := NewService(
		fake,
		tenant.NewResolver(cfg.AllowedClusters),
		assets.NewService(assets.NewFSStore(t.TempDir()), cfg.StaticMount),
		media.NewProjector("", cfg.StaticMount),
		session.NewMemoryStore(),
		authpw.NewService(fake),
		nil,
		export.NewService(),
		cfg,
	)
	return svc, fake
}

func strPtr(s string) *string { return &s }

func mustCreate(t *testing.T, svc *Service, code string) IdfDetail {
	t.Helper()
	detail, err := svc.CreateIDF(context.Background(), testBase, "Trinity", "sabinas", IdfUpsert{
		Code:  code,
		Title: strPtr("Test frame"),
	})
	if err != nil {
		t.Fatalf("CreateIDF(%s) failed: %v", code, err)
	}
	return detail
}

func TestCreateIDFResolvesProjectAlias(t *testing.T) {
	svc, fake := newTestService(t)

	detail := mustCreate(t, svc, "IDF-1")
	if detail.Project != "Sabinas Project" {
		t.Errorf("project = %q, want canonical name", detail.Project)
	}
	if _, ok := fake.idfs[key("Trinity", "Sabinas Project", "IDF-1")]; !ok {
		t.Error("record not stored under canonical project")
	}
}

func TestCreateIDFConflict(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "IDF-1")

	_, err := svc.CreateIDF(context.Background(), testBase, "Trinity", "Sabinas Project", IdfUpsert{
		Code:  "IDF-1",
		Title: strPtr("Duplicate"),
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "CONFLICT" {
		t.Errorf("expected CONFLICT, got %v", err)
	}
}

func TestCreateIDFValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateIDF(context.Background(), testBase, "Trinity", "sabinas", IdfUpsert{Title: strPtr("No code")})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR for missing code, got %v", err)
	}

	_, err = svc.CreateIDF(context.Background(), testBase, "Trinity", "sabinas", IdfUpsert{Code: "IDF-9"})
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR for missing title, got %v", err)
	}
}

func TestUnknownClusterIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetIDF(context.Background(), testBase, "nonexistent", "sabinas", "IDF-1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Errorf("unknown cluster leaked a different error: %v", err)
	}
}

func TestPartialUpdatePreservesMediaAndTable(t *testing.T) {
	svc, fake := newTestService(t)
	mustCreate(t, svc, "IDF-1")

	k := key("Trinity", "Sabinas Project", "IDF-1")
	fake.mu.Lock()
	rec := fake.idfs[k]
	rec.Gallery = sql.NullString{String: `[{"url": "a.png"}, {"url": "b.png"}]`, Valid: true}
	rec.Documents = sql.NullString{String: `[{"url": "manual.pdf"}]`, Valid: true}
	rec.TableData = sql.NullString{String: `{"columns": [{"key": "status", "type": "status"}], "rows": [{"status": "ok"}]}`, Valid: true}
	fake.idfs[k] = rec
	fake.mu.Unlock()

	detail, err := svc.UpdateIDF(context.Background(), testBase, "Trinity", "sabinas", "IDF-1", IdfUpsert{
		Title: strPtr("Renamed frame"),
	})
	if err != nil {
		t.Fatalf("UpdateIDF failed: %v", err)
	}

	if detail.Title != "Renamed frame" {
		t.Errorf("title = %q", detail.Title)
	}
	if len(detail.Images) != 2 {
		t.Errorf("images = %d, want 2 preserved", len(detail.Images))
	}
	if len(detail.Documents) != 1 {
		t.Errorf("documents = %d, want 1 preserved", len(detail.Documents))
	}
	if detail.Table == nil {
		t.Error("table was dropped by partial update")
	}
	if detail.Health.Level != "green" {
		t.Errorf("health level = %q, want green", detail.Health.Level)
	}
}

func TestUpdateNormalizesSuppliedMedia(t *testing.T) {
	svc, fake := newTestService(t)
	mustCreate(t, svc, "IDF-1")

	_, err := svc.UpdateIDF(context.Background(), testBase, "Trinity", "sabinas", "IDF-1", IdfUpsert{
		Images: &[]media.Item{{URL: "Trinity/sabinas/IDF-1/images/x.png"}},
	})
	if err != nil {
		t.Fatalf("UpdateIDF failed: %v", err)
	}

	fake.mu.Lock()
	stored := fake.idfs[key("Trinity", "Sabinas Project", "IDF-1")].Gallery.String
	fake.mu.Unlock()
	if !strings.Contains(stored, `"kind":"image"`) {
		t.Errorf("stored gallery not canonicalized: %s", stored)
	}
}

func TestUploadImageAppends(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "IDF-1")
	ctx := context.Background()

	detail, err := svc.UploadAsset(ctx, testBase, "Trinity", "sabinas", "IDF-1", "images", "first.png", []byte("1"), "image/png")
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	if len(detail.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(detail.Images))
	}
	if detail.Images[0].Kind != media.KindImage {
		t.Errorf("kind = %q, want image", detail.Images[0].Kind)
	}
	if !strings.HasPrefix(detail.Images[0].URL, testBase+"/static/") {
		t.Errorf("url not projected: %q", detail.Images[0].URL)
	}

	detail, err = svc.UploadAsset(ctx, testBase, "Trinity", "sabinas", "IDF-1", "images", "second.png", []byte("2"), "image/png")
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if len(detail.Images) != 2 {
		t.Fatalf("images = %d, want 2", len(detail.Images))
	}
	if detail.Images[0].Name != "first.png" {
		t.Errorf("first image lost on append: %+v", detail.Images)
	}
}

func TestUploadLogoReplaces(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "IDF-1")
	ctx := context.Background()

	if _, err := svc.UploadAsset(ctx, testBase, "Trinity", "sabinas", "IDF-1", "logo", "old.png", []byte("old"), "image/png"); err != nil {
		t.Fatalf("first logo upload failed: %v", err)
	}
	detail, err := svc.UploadAsset(ctx, testBase, "Trinity", "sabinas", "IDF-1", "logo", "new.png", []byte("new"), "image/png")
	if err != nil {
		t.Fatalf("second logo upload failed: %v", err)
	}
	if detail.Logo == nil {
		t.Fatal("logo missing after upload")
	}
	if detail.Logo.Name != "new.png" {
		t.Errorf("logo = %+v, want replacement", detail.Logo)
	}
}

func TestUploadRejectsWrongContentType(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "IDF-1")

	_, err := svc.UploadAsset(context.Background(), testBase, "Trinity", "sabinas", "IDF-1", "images", "notes.txt", []byte("x"), "text/plain")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestUploadUnknownKind(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "IDF-1")

	_, err := svc.UploadAsset(context.Background(), testBase, "Trinity", "sabinas", "IDF-1", "videos", "v.png", []byte("x"), "image/png")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestDeleteAssetByIndex(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "IDF-1")
	ctx := context.Background()

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if _, err := svc.UploadAsset(ctx, testBase, "Trinity", "sabinas", "IDF-1", "images", name, []byte(name), "image/png"); err != nil {
			t.Fatalf("upload %s failed: %v", name, err)
		}
	}

	detail, err := svc.DeleteAsset(ctx, testBase, "Trinity", "sabinas", "IDF-1", "images", 2)
	if err != nil {
		t.Fatalf("DeleteAsset failed: %v", err)
	}
	if len(detail.Images) != 2 {
		t.Fatalf("images = %d, want 2", len(detail.Images))
	}
	if detail.Images[0].Name != "a.png" || detail.Images[1].Name != "b.png" {
		t.Errorf("remaining order wrong: %+v", detail.Images)
	}

	_, err = svc.DeleteAsset(ctx, testBase, "Trinity", "sabinas", "IDF-1", "images", 5)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND for out of bounds, got %v", err)
	}

	got, err := svc.GetIDF(ctx, testBase, "Trinity", "sabinas", "IDF-1")
	if err != nil {
		t.Fatalf("GetIDF failed: %v", err)
	}
	if len(got.Images) != 2 {
		t.Errorf("failed delete mutated the list: %d items", len(got.Images))
	}
}

func TestReplaceDevicesSkipsNameless(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "IDF-1")
	ctx := context.Background()

	count, err := svc.ReplaceDevices(ctx, "Trinity", "sabinas", "IDF-1", []store.Device{
		{Name: "SW-01", Model: "Catalyst"},
		{Name: "  "},
		{Name: "SW-02"},
	})
	if err != nil {
		t.Fatalf("ReplaceDevices failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	devices, err := svc.ListDevices(ctx, "Trinity", "sabinas", "IDF-1")
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("devices = %d, want 2", len(devices))
	}
}

func TestReplaceDevicesUnknownFrame(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ReplaceDevices(context.Background(), "Trinity", "sabinas", "IDF-404", nil)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestBootstrapCreatesAdminOnce(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if len(fake.users) != 1 {
		t.Fatalf("users = %d, want 1", len(fake.users))
	}

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap failed: %v", err)
	}
	if len(fake.users) != 1 {
		t.Errorf("Bootstrap duplicated the admin")
	}
}

func TestLoginSessionLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	sess, err := svc.Login(ctx, "admin@qartha.local", "admin123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !sess.IsAdmin() {
		t.Errorf("role = %q, want admin", sess.Role)
	}

	got, err := svc.SessionFromToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	if got.Email != "admin@qartha.local" {
		t.Errorf("email = %q", got.Email)
	}

	svc.Logout(ctx, sess.Token)
	if _, err := svc.SessionFromToken(ctx, sess.Token); err == nil {
		t.Error("session survived logout")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	_, err := svc.Login(ctx, "admin@qartha.local", "wrong")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestDeleteIDF(t *testing.T) {
	svc, fake := newTestService(t)
	mustCreate(t, svc, "IDF-1")
	ctx := context.Background()

	if err := svc.DeleteIDF(ctx, "Trinity", "sabinas", "IDF-1"); err != nil {
		t.Fatalf("DeleteIDF failed: %v", err)
	}
	if len(fake.idfs) != 0 {
		t.Error("record not removed")
	}

	err := svc.DeleteIDF(ctx, "Trinity", "sabinas", "IDF-1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
