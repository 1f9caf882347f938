package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-sync/internal/auth"
	"contact-sync/internal/carddav"
	"contact-sync/internal/carddav/carddavtest"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/pagination"
	"contact-sync/internal/common/utils"
	"contact-sync/internal/conflicts"
	"contact-sync/internal/crypto"
	"contact-sync/internal/locks"
	"contact-sync/internal/merge"
	"contact-sync/internal/models"
	"contact-sync/internal/photos"
	"contact-sync/internal/storage/sqlite"
	"contact-sync/internal/storage/sqlstore"
	"contact-sync/internal/syncengine"
)

const (
	testUser   = "user-1"
	testSecret = "handlers-test-secret-0123456789abcdef"
)

type memoryRevocations struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryRevocations) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = "1"
	return nil
}

func (m *memoryRevocations) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

type apiFixture struct {
	t        *testing.T
	ctx      context.Context
	srv      *carddavtest.Server
	store    *sqlstore.Store
	secrets  *crypto.AESSecretStore
	auth     *auth.Auth
	resolver *conflicts.Resolver
	router   *mux.Router
	token    string
}

func newAPIFixture(t *testing.T, policy carddav.URLPolicy) *apiFixture {
	t.Helper()
	ctx := context.Background()
	srv := carddavtest.NewServer(t)

	store, err := sqlite.Open(&sqlite.Config{DatabasePath: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	secrets, err := crypto.NewSecretStore("handlers-test-passphrase")
	require.NoError(t, err)
	photoStore, err := photos.NewFileStore(filepath.Join(t.TempDir(), "photos"))
	require.NoError(t, err)

	connector := carddav.NewConnector(secrets, carddav.ConnectorConfig{
		Policy: policy,
		Retry:  utils.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, BackoffFactor: 1},
		Logger: logging.NewNopLogger(),
	})
	engine := syncengine.New(store, connector, locks.NewLocalManager(), photoStore, syncengine.Config{Logger: logging.NewNopLogger()})
	resolver := conflicts.NewResolver(store, engine, conflicts.Config{Logger: logging.NewNopLogger()})
	t.Cleanup(resolver.Wait)

	authenticator, err := auth.New(testSecret, &memoryRevocations{keys: map[string]string{}})
	require.NoError(t, err)
	token, err := authenticator.GenerateJWT(testUser, time.Hour)
	require.NoError(t, err)

	h := New(Deps{
		Store:     store,
		Sync:      engine,
		Conflicts: resolver,
		Merge:     merge.NewEngine(store, connector, merge.Config{Logger: logging.NewNopLogger()}),
		Secrets:   secrets,
		Clients:   connector,
		Policy:    policy,
		Auth:      authenticator,
		Logger:    logging.NewNopLogger(),
	})

	router := mux.NewRouter()
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	api := router.PathPrefix("/api").Subrouter()
	api.Use(authenticator.RequireAuth)
	api.HandleFunc("/auth/logout", h.Logout).Methods("POST")
	api.HandleFunc("/carddav/connection", h.GetConnection).Methods("GET")
	api.HandleFunc("/carddav/connection", h.PutConnection).Methods("PUT")
	api.HandleFunc("/carddav/sync", h.TriggerSync).Methods("POST")
	api.HandleFunc("/carddav/conflicts", h.ListConflicts).Methods("GET")
	api.HandleFunc("/carddav/conflicts/{id}/resolve", h.ResolveConflict).Methods("POST")
	api.HandleFunc("/carddav/imports", h.ListImports).Methods("GET")
	api.HandleFunc("/carddav/imports", h.UploadImport).Methods("POST")
	api.HandleFunc("/carddav/imports/{id}", h.ImportPending).Methods("POST")
	api.HandleFunc("/carddav/imports/{id}", h.DismissPending).Methods("DELETE")
	api.HandleFunc("/people/{id}/merge", h.MergePeople).Methods("POST")

	return &apiFixture{
		t:        t,
		ctx:      ctx,
		srv:      srv,
		store:    store,
		secrets:  secrets,
		auth:     authenticator,
		resolver: resolver,
		router:   router,
		token:    token,
	}
}

func openPolicy() carddav.URLPolicy {
	return carddav.URLPolicy{AllowInsecure: true, AllowPrivateHosts: true}
}

func (f *apiFixture) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(f.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if _, ok := body.(map[string]interface{}); ok {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) connect(extra map[string]interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	body := map[string]interface{}{
		"server_url": f.srv.URL,
		"username":   carddavtest.Username,
		"password":   carddavtest.Password,
	}
	for k, v := range extra {
		body[k] = v
	}
	return f.do(http.MethodPut, "/api/carddav/connection", body)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func vcardText(uid, first, last string) string {
	return "BEGIN:VCARD\r\nVERSION:3.0\r\nUID:" + uid + "\r\nN:" + last + ";" + first + ";;;\r\nFN:" +
		first + " " + last + "\r\nEND:VCARD\r\n"
}

func TestConnection_PutAndGet(t *testing.T) {
	f := newAPIFixture(t, openPolicy())

	rec := f.connect(map[string]interface{}{"auto_sync_interval": "30m", "import_mode": "auto"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	saved := decode[connectionResponse](t, rec)
	assert.Equal(t, "30m0s", saved.AutoSyncInterval)
	assert.Equal(t, models.ImportModeAuto, saved.ImportMode)
	assert.True(t, saved.SyncEnabled)

	stored, err := f.store.GetConnectionByUser(f.ctx, testUser)
	require.NoError(t, err)
	assert.NotEqual(t, carddavtest.Password, stored.EncryptedPassword)
	plain, err := f.secrets.Decrypt(stored.EncryptedPassword)
	require.NoError(t, err)
	assert.Equal(t, carddavtest.Password, plain)

	// Updating without a password keeps the stored one and the settings.
	rec = f.do(http.MethodPut, "/api/carddav/connection", map[string]interface{}{
		"server_url":   f.srv.URL,
		"username":     carddavtest.Username,
		"sync_enabled": false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated, err := f.store.GetConnectionByUser(f.ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, updated.ID)
	assert.Equal(t, stored.EncryptedPassword, updated.EncryptedPassword)
	assert.False(t, updated.SyncEnabled)
	assert.Equal(t, 30*time.Minute, updated.AutoSyncInterval)

	rec = f.do(http.MethodGet, "/api/carddav/connection", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[connectionResponse](t, rec)
	assert.Equal(t, stored.ID, got.ID)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestGetConnection_NotConfigured(t *testing.T) {
	f := newAPIFixture(t, openPolicy())

	rec := f.do(http.MethodGet, "/api/carddav/connection", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutConnection_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		policy carddav.URLPolicy
		body   func(f *apiFixture) map[string]interface{}
		query  string
	}{
		{
			name:   "password required on create",
			policy: openPolicy(),
			body: func(f *apiFixture) map[string]interface{} {
				return map[string]interface{}{"server_url": f.srv.URL, "username": "alice"}
			},
		},
		{
			name:   "insecure url under strict policy",
			policy: carddav.URLPolicy{},
			body: func(f *apiFixture) map[string]interface{} {
				return map[string]interface{}{"server_url": f.srv.URL, "username": "alice", "password": "x"}
			},
		},
		{
			name:   "loopback host under strict policy",
			policy: carddav.URLPolicy{},
			body: func(f *apiFixture) map[string]interface{} {
				return map[string]interface{}{"server_url": "https://127.0.0.1/dav/", "username": "alice", "password": "x"}
			},
		},
		{
			name:   "unknown import mode",
			policy: openPolicy(),
			body: func(f *apiFixture) map[string]interface{} {
				return map[string]interface{}{"server_url": f.srv.URL, "username": "alice", "password": "x", "import_mode": "eager"}
			},
		},
		{
			name:   "wrong credentials with verify",
			policy: openPolicy(),
			query:  "?verify=true",
			body: func(f *apiFixture) map[string]interface{} {
				return map[string]interface{}{"server_url": f.srv.URL, "username": "alice", "password": "wrong"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, tt.policy)
			rec := f.do(http.MethodPut, "/api/carddav/connection"+tt.query, tt.body(f))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			_, err := f.store.GetConnectionByUser(f.ctx, testUser)
			assert.Error(t, err, "nothing is stored")
		})
	}
}

func TestPutConnection_Verify(t *testing.T) {
	f := newAPIFixture(t, openPolicy())

	rec := f.do(http.MethodPut, "/api/carddav/connection?verify=true", map[string]interface{}{
		"server_url": f.srv.URL,
		"username":   carddavtest.Username,
		"password":   carddavtest.Password,
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Positive(t, f.srv.CountRequests("PROPFIND"))
}

func TestTriggerSync_StagesAndImports(t *testing.T) {
	f := newAPIFixture(t, openPolicy())
	require.Equal(t, http.StatusOK, f.connect(nil).Code)
	f.srv.Put("ada.vcf", vcardText("uid-ada", "Ada", "Lovelace"))

	rec := f.do(http.MethodPost, "/api/carddav/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[syncengine.Result](t, rec)
	assert.Equal(t, 1, result.PendingImports)

	rec = f.do(http.MethodGet, "/api/carddav/imports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[pagination.Response[models.CardDavPendingImport]](t, rec).Results
	require.Len(t, pending, 1)
	assert.Equal(t, "uid-ada", pending[0].UID)

	rec = f.do(http.MethodPost, "/api/carddav/imports/"+pending[0].ID, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	person := decode[models.Person](t, rec)
	assert.Equal(t, "Ada", person.Name)
	assert.Equal(t, "Lovelace", person.Surname)

	rec = f.do(http.MethodGet, "/api/carddav/imports", nil)
	page := decode[pagination.Response[models.CardDavPendingImport]](t, rec)
	assert.Empty(t, page.Results)
	assert.Zero(t, page.TotalResults)
}

func TestTriggerSync_Stream(t *testing.T) {
	f := newAPIFixture(t, openPolicy())
	require.Equal(t, http.StatusOK, f.connect(map[string]interface{}{"import_mode": "auto"}).Code)
	f.srv.Put("ada.vcf", vcardText("uid-ada", "Ada", "Lovelace"))
	f.srv.Put("alan.vcf", vcardText("uid-alan", "Alan", "Turing"))

	rec := f.do(http.MethodPost, "/api/carddav/sync", nil, "Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: progress\n"), body)
	require.Contains(t, body, "event: result\n")

	final := body[strings.LastIndex(body, "data: ")+len("data: "):]
	var result syncengine.Result
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(final)), &result))
	assert.Equal(t, 2, result.Imported)
}

func TestTriggerSync_StreamReportsFailure(t *testing.T) {
	f := newAPIFixture(t, openPolicy())

	rec := f.do(http.MethodPost, "/api/carddav/sync", nil, "Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: error\n")
	assert.Contains(t, rec.Body.String(), `"status":404`)
}

func TestTriggerSync_RemoteAuthFailure(t *testing.T) {
	f := newAPIFixture(t, openPolicy())
	require.Equal(t, http.StatusOK, f.connect(map[string]interface{}{"password": "rotated"}).Code)

	rec := f.do(http.MethodPost, "/api/carddav/sync", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
}

type ctxRecordingSync struct {
	SyncService
	userID string
	err    error
}

func (s *ctxRecordingSync) Sync(ctx context.Context, userID string, opts syncengine.RunOptions) (*syncengine.Result, error) {
	s.userID = userID
	s.err = ctx.Err()
	return &syncengine.Result{Exported: 1}, nil
}

func TestTriggerSync_OutlivesClientDisconnect(t *testing.T) {
	svc := &ctxRecordingSync{}
	h := New(Deps{Sync: svc, Logger: logging.NewNopLogger()})

	ctx, cancel := context.WithCancel(auth.WithUserID(context.Background(), testUser))
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/carddav/sync", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.TriggerSync(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, testUser, svc.userID)
	assert.NoError(t, svc.err)
	assert.Equal(t, 1, decode[syncengine.Result](t, rec).Exported)
}

func TestUploadImport(t *testing.T) {
	f := newAPIFixture(t, openPolicy())
	text := vcardText("uid-ada", "Ada", "Lovelace") + vcardText("uid-alan", "Alan", "Turing")

	rec := f.do(http.MethodPost, "/api/carddav/imports", text, "Content-Type", "text/vcard")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	staged := decode[[]models.CardDavPendingImport](t, rec)
	require.Len(t, staged, 2)
	assert.Empty(t, staged[0].ConnectionID)

	rec = f.do(http.MethodDelete, "/api/carddav/imports/"+staged[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/carddav/imports", nil)
	remaining := decode[pagination.Response[models.CardDavPendingImport]](t, rec)
	require.Len(t, remaining.Results, 1)
	assert.Equal(t, staged[1].ID, remaining.Results[0].ID)
}

func TestListImports_Paginates(t *testing.T) {
	f := newAPIFixture(t, openPolicy())
	var text strings.Builder
	for _, uid := range []string{"a", "b", "c"} {
		text.WriteString(vcardText("uid-"+uid, "First", uid))
	}
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/carddav/imports", text.String()).Code)

	rec := f.do(http.MethodGet, "/api/carddav/imports?page=2&per_page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[pagination.Response[models.CardDavPendingImport]](t, rec)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 3, page.TotalResults)
	assert.Len(t, page.Results, 1)
}

func TestUploadImport_Multipart(t *testing.T) {
	f := newAPIFixture(t, openPolicy())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "contacts.vcf")
	require.NoError(t, err)
	_, err = part.Write([]byte(vcardText("uid-ada", "Ada", "Lovelace")))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := f.do(http.MethodPost, "/api/carddav/imports", buf.Bytes(), "Content-Type", mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]models.CardDavPendingImport](t, rec), 1)
}

func TestUploadImport_Empty(t *testing.T) {
	f := newAPIFixture(t, openPolicy())

	rec := f.do(http.MethodPost, "/api/carddav/imports", "  ", "Content-Type", "text/vcard")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportPending_Unknown(t *testing.T) {
	f := newAPIFixture(t, openPolicy())

	rec := f.do(http.MethodPost, "/api/carddav/imports/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// seedConflict records an open conflict on a connection owned by userID.
func (f *apiFixture) seedConflict(userID string) *models.CardDavConflict {
	f.t.Helper()
	conn := &models.CardDavConnection{UserID: userID, ServerURL: "https://dav.example.com/", Username: "u", SyncEnabled: true}
	require.NoError(f.t, f.store.UpsertConnection(f.ctx, conn))

	person := &models.Person{UserID: userID, UID: "uid-" + userID, Name: "John", Surname: "Smyth", SyncEnabled: true}
	require.NoError(f.t, f.store.CreatePerson(f.ctx, person))

	mapping := &models.CardDavMapping{
		ConnectionID: conn.ID,
		PersonID:     person.ID,
		Href:         "https://dav.example.com/book/" + person.UID + ".vcf",
		ETag:         `"1"`,
		UID:          person.UID,
		SyncStatus:   models.SyncStatusConflict,
	}
	require.NoError(f.t, f.store.CreateMapping(f.ctx, mapping))

	conflict := &models.CardDavConflict{
		MappingID:     mapping.ID,
		LocalVersion:  "BEGIN:VCARD\r\nVERSION:3.0\r\nN:Smyth;John;;;\r\nEND:VCARD\r\n",
		RemoteVersion: vcardText(person.UID, "John", "Smith"),
		RemoteETag:    `"2"`,
	}
	require.NoError(f.t, f.store.CreateConflict(f.ctx, conflict))
	return conflict
}

func TestResolveConflict(t *testing.T) {
	f := newAPIFixture(t, openPolicy())
	conflict := f.seedConflict(testUser)

	rec := f.do(http.MethodGet, "/api/carddav/conflicts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]models.CardDavConflict](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, conflict.ID, listed[0].ID)

	path := "/api/carddav/conflicts/" + conflict.ID + "/resolve"
	rec = f.do(http.MethodPost, path, map[string]interface{}{"resolution": "keep_both"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, path, map[string]interface{}{"resolution": models.ResolutionKeepRemote})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decode[models.CardDavConflict](t, rec)
	assert.Equal(t, models.ResolutionKeepRemote, resolved.Resolution)
	assert.NotNil(t, resolved.ResolvedAt)

	rec = f.do(http.MethodPost, path, map[string]interface{}{"resolution": models.ResolutionKeepLocal})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/api/carddav/conflicts", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestResolveConflict_Ownership(t *testing.T) {
	f := newAPIFixture(t, openPolicy())
	foreign := f.seedConflict("user-2")

	rec := f.do(http.MethodPost, "/api/carddav/conflicts/"+foreign.ID+"/resolve",
		map[string]interface{}{"resolution": models.ResolutionKeepLocal})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/carddav/conflicts/missing/resolve",
		map[string]interface{}{"resolution": models.ResolutionKeepLocal})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMergePeople(t *testing.T) {
	f := newAPIFixture(t, openPolicy())
	primary := &models.Person{UserID: testUser, Name: "Ada", Surname: "Lovelace", SyncEnabled: true,
		Emails: []models.Email{{Type: "home", Email: "ada@example.com"}}}
	secondary := &models.Person{UserID: testUser, Name: "Augusta", Surname: "King", SyncEnabled: true,
		Emails: []models.Email{{Type: "work", Email: "countess@example.com"}}}
	require.NoError(t, f.store.CreatePerson(f.ctx, primary))
	require.NoError(t, f.store.CreatePerson(f.ctx, secondary))

	rec := f.do(http.MethodPost, "/api/people/"+primary.ID+"/merge", map[string]interface{}{
		"secondary_id": secondary.ID,
		"overrides":    map[string]interface{}{"nickname": "Countess"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, primary.ID, decode[mergeResponse](t, rec).PersonID)

	merged, err := f.store.GetPerson(f.ctx, testUser, primary.ID)
	require.NoError(t, err)
	assert.Equal(t, "Countess", merged.Nickname)
	assert.Len(t, merged.Emails, 2)

	_, err = f.store.GetPerson(f.ctx, testUser, secondary.ID)
	assert.Error(t, err, "secondary is soft-deleted")
}

func TestMergePeople_Invalid(t *testing.T) {
	f := newAPIFixture(t, openPolicy())

	rec := f.do(http.MethodPost, "/api/people/p1/merge", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/people/p1/merge", map[string]interface{}{"secondary_id": "p1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/people/p1/merge", map[string]interface{}{"secondary_id": "p2"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/people/p1/merge", `{"secondary_id": "p2", "extra": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t, openPolicy())

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","database":"ok"}`, rec.Body.String())

	f.store.Close()
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthentication(t *testing.T) {
	f := newAPIFixture(t, openPolicy())

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/carddav/conflicts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/carddav/conflicts", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/auth/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/carddav/conflicts", nil).Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
