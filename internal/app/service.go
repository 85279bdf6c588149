package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"qartha/api/internal/assets"
	"qartha/api/internal/auth"
	"qartha/api/internal/authpw"
	"qartha/api/internal/config"
	"qartha/api/internal/export"
	"qartha/api/internal/health"
	"qartha/api/internal/media"
	"qartha/api/internal/search"
	"qartha/api/internal/session"
	"qartha/api/internal/store"
	"qartha/api/internal/tenant"
)

// Session is the authenticated caller attached to a request.
type Session struct {
	Token     string
	Email     string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

func (s Session) IsAdmin() bool {
	return s.Role == "admin"
}

type dataStore interface {
	GetIDF(ctx context.Context, cluster, project, code string) (store.IDFRecord, error)
	IDFExists(ctx context.Context, cluster, project, code string) (bool, error)
	ListIDFs(ctx context.Context, cluster, project, q string, limit, skip int) ([]store.IDFRecord, error)
	InsertIDF(ctx context.Context, rec store.IDFRecord) (store.IDFRecord, error)
	UpdateIDF(ctx context.Context, rec store.IDFRecord) (store.IDFRecord, error)
	UpdateMediaColumn(ctx context.Context, cluster, project, code, column string, raw []byte) error
	DeleteIDF(ctx context.Context, cluster, project, code string) (bool, error)
	ReplaceDevices(ctx context.Context, cluster, project, code string, devices []store.Device) error
	ListDevices(ctx context.Context, cluster, project, code string) ([]store.Device, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	TouchUserLogin(ctx context.Context, userID int64) error
	CountUsers(ctx context.Context) (int, error)
	InsertUser(ctx context.Context, email, passwordHash, role string) error
	SeedIDFs(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Service is the application facade: every route handler goes through here.
type Service struct {
	store     dataStore
	resolver  *tenant.Resolver
	assets    *assets.Service
	projector *media.Projector
	sessions  session.Store
	passwords *authpw.Service
	search    *search.Service
	exporter  *export.Service
	cfg       config.Config

	// locks serializes read-modify-write cycles per frame identity. Uploads
	// and asset deletes race on the same media column otherwise.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(
	st dataStore,
	resolver *tenant.Resolver,
	assetSvc *assets.Service,
	projector *media.Projector,
	sessions session.Store,
	passwords *authpw.Service,
	searchSvc *search.Service,
	exporter *export.Service,
	cfg config.Config,
) *Service {
	return &Service{
		store:     st,
		resolver:  resolver,
		assets:    assetSvc,
		projector: projector,
		sessions:  sessions,
		passwords: passwords,
		search:    searchSvc,
		exporter:  exporter,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Projector exposes the URL projector for request-base derivation.
func (s *Service) Projector() *media.Projector {
	return s.projector
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions reports session backend health for readiness checks.
func (s *Service) PingSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *Service) lockFor(id tenant.Identity) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.String()
	if lock, ok := s.locks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[key] = lock
	return lock
}

func (s *Service) resolve(clusterRaw, projectRaw string) (string, string, error) {
	cluster, project, err := s.resolver.Resolve(clusterRaw, projectRaw)
	if err != nil {
		// Valid cluster names are not leaked through the error.
		return "", "", notFound("Not found")
	}
	return cluster, project, nil
}

// Bootstrap prepares a fresh deployment: default admin account, sample
// frames, and a search reindex when Meilisearch is up.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		hash, err := authpw.HashPassword(s.cfg.AdminPassword)
		if err != nil {
			return err
		}
		if err := s.store.InsertUser(ctx, s.cfg.AdminEmail, hash, "admin"); err != nil {
			return err
		}
		log.Printf("app: created default admin %s", s.cfg.AdminEmail)
	}

	if err := s.store.SeedIDFs(ctx); err != nil {
		return err
	}

	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

// CreateIDF registers a new frame. The identity must not exist yet.
func (s *Service) CreateIDF(ctx context.Context, base, clusterRaw, projectRaw string, input IdfUpsert) (IdfDetail, error) {
	cluster, project, err := s.resolve(clusterRaw, projectRaw)
	if err != nil {
		return IdfDetail{}, err
	}

	code := strings.TrimSpace(input.Code)
	if code == "" {
		return IdfDetail{}, invalidInput("code is required", nil)
	}
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		return IdfDetail{}, invalidInput("title is required", nil)
	}

	exists, err := s.store.IDFExists(ctx, cluster, project, code)
	if err != nil {
		return IdfDetail{}, err
	}
	if exists {
		return IdfDetail{}, conflict(fmt.Sprintf("idf %s already exists", code))
	}

	rec := store.IDFRecord{
		Cluster:   cluster,
		Project:   project,
		Code:      code,
		Title:     strings.TrimSpace(*input.Title),
		Gallery:   sql.NullString{String: "[]", Valid: true},
		Documents: sql.NullString{String: "[]", Valid: true},
		Diagrams:  sql.NullString{String: "[]", Valid: true},
		DFO:       sql.NullString{String: "[]", Valid: true},
	}
	if err := applyUpsert(&rec, input); err != nil {
		return IdfDetail{}, err
	}

	created, err := s.store.InsertIDF(ctx, rec)
	if err != nil {
		return IdfDetail{}, err
	}

	s.indexRecord(created)
	return s.detail(created, base), nil
}

// GetIDF returns one frame by identity.
func (s *Service) GetIDF(ctx context.Context, base, clusterRaw, projectRaw, code string) (IdfDetail, error) {
	cluster, project, err := s.resolve(clusterRaw, projectRaw)
	if err != nil {
		return IdfDetail{}, err
	}

	rec, err := s.store.GetIDF(ctx, cluster, project, code)
	if errors.Is(err, sql.ErrNoRows) {
		return IdfDetail{}, notFound(fmt.Sprintf("idf %s not found", code))
	}
	if err != nil {
		return IdfDetail{}, err
	}
	return s.detail(rec, base), nil
}

// ListIDFs lists a tenant's frames with optional filtering and health.
func (s *Service) ListIDFs(ctx context.Context, clusterRaw, projectRaw, q string, limit, skip int, includeHealth bool) ([]IdfSummary, error) {
	cluster, project, err := s.resolve(clusterRaw, projectRaw)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	records, err := s.store.ListIDFs(ctx, cluster, project, q, limit, skip)
	if err != nil {
		return nil, err
	}

	summaries := make([]IdfSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, summary(rec, includeHealth))
	}
	return summaries, nil
}

// UpdateIDF applies a partial update. Fields absent from the request keep
// their stored value, media and table included.
func (s *Service) UpdateIDF(ctx context.Context, base, clusterRaw, projectRaw, code string, input IdfUpsert) (IdfDetail, error) {
	cluster, project, err := s.resolve(clusterRaw, projectRaw)
	if err != nil {
		return IdfDetail{}, err
	}

	id := tenant.Identity{Cluster: cluster, Project: project, Code: code}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.GetIDF(ctx, cluster, project, code)
	if errors.Is(err, sql.ErrNoRows) {
		return IdfDetail{}, notFound(fmt.Sprintf("idf %s not found", code))
	}
	if err != nil {
		return IdfDetail{}, err
	}

	if err := applyUpsert(&rec, input); err != nil {
		return IdfDetail{}, err
	}

	updated, err := s.store.UpdateIDF(ctx, rec)
	if err != nil {
		return IdfDetail{}, err
	}

	s.indexRecord(updated)
	return s.detail(updated, base), nil
}

// applyUpsert merges the supplied fields onto a record. Media lists arriving
// in the request body are normalized and re-serialized so every write heals
// the column shape.
func applyUpsert(rec *store.IDFRecord, input IdfUpsert) error {
	if input.Title != nil {
		rec.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		rec.Description = nullText(*input.Description)
	}
	if input.Site != nil {
		rec.Site = nullText(*input.Site)
	}
	if input.Room != nil {
		rec.Room = nullText(*input.Room)
	}
	if input.Images != nil {
		rec.Gallery = sql.NullString{String: string(media.Serialize(media.Normalize(*input.Images, media.ArityMany))), Valid: true}
	}
	if input.Documents != nil {
		rec.Documents = sql.NullString{String: string(media.Serialize(media.Normalize(*input.Documents, media.ArityMany))), Valid: true}
	}
	if input.Diagrams != nil {
		rec.Diagrams = sql.NullString{String: string(media.Serialize(media.Normalize(*input.Diagrams, media.ArityMany))), Valid: true}
	}
	if input.DFO != nil {
		rec.DFO = sql.NullString{String: string(media.Serialize(media.Normalize(*input.DFO, media.ArityMany))), Valid: true}
	}
	if input.Location != nil {
		rec.Location = sql.NullString{String: string(media.SerializeSingle(media.Normalize(*input.Location, media.AritySingle))), Valid: true}
	}
	if input.Logo != nil {
		rec.Logo = sql.NullString{String: string(media.SerializeSingle(media.Normalize(*input.Logo, media.AritySingle))), Valid: true}
	}
	if len(input.Table) > 0 {
		if string(input.Table) == "null" {
			rec.TableData = sql.NullString{}
		} else {
			var table health.Table
			if err := json.Unmarshal(input.Table, &table); err != nil {
				return invalidInput("table must be an object with columns and rows", nil)
			}
			rec.TableData = serializeTable(&table)
		}
	}
	return nil
}

// DeleteIDF removes a frame, its index entry, and best-effort its files.
func (s *Service) DeleteIDF(ctx context.Context, clusterRaw, projectRaw, code string) error {
	cluster, project, err := s.resolve(clusterRaw, projectRaw)
	if err != nil {
		return err
	}

	rec, err := s.store.GetIDF(ctx, cluster, project, code)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(fmt.Sprintf("idf %s not found", code))
	}
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteIDF(ctx, cluster, project, code)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound(fmt.Sprintf("idf %s not found", code))
	}

	for _, column := range []sql.NullString{rec.Gallery, rec.Documents, rec.Diagrams, rec.DFO, rec.Location, rec.Logo} {
		for _, item := range media.Normalize(rawText(column), media.ArityMany) {
			s.assets.Remove(ctx, item.URL)
		}
	}

	if s.search != nil {
		s.search.Delete(search.DocID(cluster, project, code))
	}
	return nil
}

// UploadAsset stores a file and records it on the frame: appended for list
// kinds, replacing the previous file for single-slot kinds.
func (s *Service) UploadAsset(ctx context.Context, base, clusterRaw, projectRaw, code, kindRaw, filename string, data []byte, contentType string) (IdfDetail, error) {
	cluster, project, err := s.resolve(clusterRaw, projectRaw)
	if err != nil {
		return IdfDetail{}, err
	}

	kind, ok := assets.ParseKind(kindRaw)
	if !ok {
		return IdfDetail{}, invalidInput(fmt.Sprintf("unknown asset kind %q", kindRaw), nil)
	}
	if len(data) == 0 {
		return IdfDetail{}, invalidInput("empty upload", nil)
	}

	id := tenant.Identity{Cluster: cluster, Project: project, Code: code}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.GetIDF(ctx, cluster, project, code)
	if errors.Is(err, sql.ErrNoRows) {
		return IdfDetail{}, notFound(fmt.Sprintf("idf %s not found", code))
	}
	if err != nil {
		return IdfDetail{}, err
	}

	column, raw, arity := mediaColumn(&rec, kind)
	existing := media.Normalize(rawText(raw), arity)

	item, err := s.assets.Store(ctx, id, kind, filename, data, contentType)
	if err != nil {
		if errors.Is(err, assets.ErrUnsupportedContentType) {
			return IdfDetail{}, invalidInput(err.Error(), nil)
		}
		return IdfDetail{}, err
	}

	var updated []media.Item
	var serialized []byte
	if kind.Single() {
		// Replace slot: old files leave disk too, not just the record.
		for _, old := range existing {
			if old.URL != item.URL {
				s.assets.Remove(ctx, old.URL)
			}
		}
		updated = []media.Item{item}
		serialized = media.SerializeSingle(updated)
	} else {
		updated = append(existing, item)
		serialized = media.Serialize(updated)
	}

	if err := s.store.UpdateMediaColumn(ctx, cluster, project, code, column, serialized); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return IdfDetail{}, notFound(fmt.Sprintf("idf %s not found", code))
		}
		return IdfDetail{}, err
	}

	rec, err = s.store.GetIDF(ctx, cluster, project, code)
	if err != nil {
		return IdfDetail{}, err
	}
	return s.detail(rec, base), nil
}

// DeleteAsset removes the item at index from the kind's list and best-effort
// deletes the stored file.
func (s *Service) DeleteAsset(ctx context.Context, base, clusterRaw, projectRaw, code, kindRaw string, index int) (IdfDetail, error) {
	cluster, project, err := s.resolve(clusterRaw, projectRaw)
	if err != nil {
		return IdfDetail{}, err
	}

	kind, ok := assets.ParseKind(kindRaw)
	if !ok {
		return IdfDetail{}, invalidInput(fmt.Sprintf("unknown asset kind %q", kindRaw), nil)
	}

	id := tenant.Identity{Cluster: cluster, Project: project, Code: code}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.GetIDF(ctx, cluster, project, code)
	if errors.Is(err, sql.ErrNoRows) {
		return IdfDetail{}, notFound(fmt.Sprintf("idf %s not found", code))
	}
	if err != nil {
		return IdfDetail{}, err
	}

	column, raw, arity := mediaColumn(&rec, kind)
	items := media.Normalize(rawText(raw), arity)

	removed, rest, err := assets.DeleteAt(items, index)
	if err != nil {
		return IdfDetail{}, notFound(fmt.Sprintf("asset %d not found", index))
	}

	var serialized []byte
	if kind.Single() {
		serialized = media.SerializeSingle(rest)
	} else {
		serialized = media.Serialize(rest)
	}
	if err := s.store.UpdateMediaColumn(ctx, cluster, project, code, column, serialized); err != nil {
		return IdfDetail{}, err
	}

	s.assets.Remove(ctx, removed.URL)

	rec, err = s.store.GetIDF(ctx, cluster, project, code)
	if err != nil {
		return IdfDetail{}, err
	}
	return s.detail(rec, base), nil
}

// mediaColumn maps an asset kind to its record column.
func mediaColumn(rec *store.IDFRecord, kind assets.Kind) (column string, raw sql.NullString, arity media.Arity) {
	switch kind {
	case assets.KindImages:
		return "gallery", rec.Gallery, media.ArityMany
	case assets.KindDocuments:
		return "documents", rec.Documents, media.ArityMany
	case assets.KindDiagrams:
		return "diagrams", rec.Diagrams, media.ArityMany
	case assets.KindDFO:
		return "dfo", rec.DFO, media.ArityMany
	case assets.KindLocation:
		return "location", rec.Location, media.AritySingle
	default:
		return "logo", rec.Logo, media.AritySingle
	}
}

// ReplaceDevices swaps a frame's device inventory wholesale.
func (s *Service) ReplaceDevices(ctx context.Context, clusterRaw, projectRaw, code string, devices []store.Device) (int, error) {
	cluster, project, err := s.resolve(clusterRaw, projectRaw)
	if err != nil {
		return 0, err
	}

	exists, err := s.store.IDFExists(ctx, cluster, project, code)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, notFound(fmt.Sprintf("idf %s not found", code))
	}

	kept := make([]store.Device, 0, len(devices))
	for _, d := range devices {
		if strings.TrimSpace(d.Name) == "" {
			continue
		}
		kept = append(kept, d)
	}

	if err := s.store.ReplaceDevices(ctx, cluster, project, code, kept); err != nil {
		return 0, err
	}
	return len(kept), nil
}

func (s *Service) ListDevices(ctx context.Context, clusterRaw, projectRaw, code string) ([]store.Device, error) {
	cluster, project, err := s.resolve(clusterRaw, projectRaw)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.IDFExists(ctx, cluster, project, code)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound(fmt.Sprintf("idf %s not found", code))
	}

	devices, err := s.store.ListDevices(ctx, cluster, project, code)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []store.Device{}
	}
	return devices, nil
}

// SearchIDFs runs a tenant-scoped text search.
func (s *Service) SearchIDFs(ctx context.Context, clusterRaw, projectRaw, q string, limit, offset int) (search.Response, error) {
	cluster, project, err := s.resolve(clusterRaw, projectRaw)
	if err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{Results: []search.Record{}, Query: q}, nil
	}
	return s.search.Search(search.Query{
		Cluster: cluster,
		Project: project,
		Text:    q,
		Limit:   limit,
		Offset:  offset,
	}), nil
}

func (s *Service) indexRecord(rec store.IDFRecord) {
	if s.search == nil {
		return
	}
	s.search.Index(search.Record{
		ID:          search.DocID(rec.Cluster, rec.Project, rec.Code),
		Cluster:     rec.Cluster,
		Project:     rec.Project,
		Code:        rec.Code,
		Title:       rec.Title,
		Site:        text(rec.Site),
		Room:        text(rec.Room),
		Description: text(rec.Description),
	})
}

// FrameSheet renders the printable PDF for one frame.
func (s *Service) FrameSheet(ctx context.Context, base, clusterRaw, projectRaw, code string) (*export.Result, error) {
	detail, err := s.GetIDF(ctx, base, clusterRaw, projectRaw, code)
	if err != nil {
		return nil, err
	}
	devices, err := s.ListDevices(ctx, clusterRaw, projectRaw, code)
	if err != nil {
		return nil, err
	}

	sheet := export.Sheet{
		Cluster:     detail.Cluster,
		Project:     detail.Project,
		Code:        detail.Code,
		Title:       detail.Title,
		Description: detail.Description,
		Site:        detail.Site,
		Room:        detail.Room,
		Images:      detail.Images,
		Documents:   detail.Documents,
		Diagrams:    detail.Diagrams,
		DFO:         detail.DFO,
		Health:      detail.Health,
		Table:       detail.Table,
		Devices:     devices,
		GeneratedAt: time.Now(),
	}
	if detail.Logo != nil {
		sheet.LogoURL = detail.Logo.URL
	}
	if detail.Location != nil {
		sheet.LocationURL = detail.Location.URL
	}

	return s.exporter.FrameSheet(sheet)
}

// Login verifies credentials and opens a server-side session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, unauthorized()
	}

	jti, err := auth.NewJTI()
	if err != nil {
		return Session{}, err
	}

	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.Email,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	if err := s.sessions.Save(ctx, jti, session.Session{
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: time.Now().UTC(),
	}, s.cfg.AccessTTL); err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout revokes the server-side session behind a token. Invalid tokens are
// a no-op; logout never fails the client.
func (s *Service) Logout(ctx context.Context, token string) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return
	}
	if err := s.sessions.Revoke(ctx, claims.JTI); err != nil {
		log.Printf("app: revoke session %s: %v", claims.JTI, err)
	}
}

// SessionFromToken validates a token against both its signature and the
// server-side session store, so revocation takes effect immediately.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	sess, err := s.sessions.Lookup(ctx, claims.JTI)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		Email:     sess.Email,
		Role:      sess.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}
