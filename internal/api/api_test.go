package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/logger"
	"alcyxob/notes-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDocuments struct {
	service.DocumentService
	upload      func(in service.UploadInput) (*domain.Document, error)
	review      func(id uuid.UUID, action service.ReviewAction, reason string) (*domain.Document, error)
	favorites   map[uuid.UUID]bool
	downloadURL string
}

func (f *fakeDocuments) Upload(_ context.Context, in service.UploadInput) (*domain.Document, error) {
	return f.upload(in)
}

func (f *fakeDocuments) Review(_ context.Context, id uuid.UUID, action service.ReviewAction, reason string) (*domain.Document, error) {
	return f.review(id, action, reason)
}

func (f *fakeDocuments) AddFavorite(_ context.Context, _, documentID uuid.UUID) error {
	f.favorites[documentID] = true
	return nil
}

func (f *fakeDocuments) RemoveFavorite(_ context.Context, _, documentID uuid.UUID) error {
	delete(f.favorites, documentID)
	return nil
}

func (f *fakeDocuments) DownloadURL(context.Context, uuid.UUID) (string, error) {
	return f.downloadURL, nil
}

type fakeVersions struct {
	service.VersionService
	submit  func(docID uuid.UUID, uploader domain.Identity, title string, file []byte) (*domain.DocumentVersion, error)
	promote func(id uuid.UUID) (*domain.Document, *domain.DocumentVersion, error)
}

func (f *fakeVersions) SubmitVersion(_ context.Context, docID uuid.UUID, uploader domain.Identity, title string, file []byte, _ string) (*domain.DocumentVersion, error) {
	return f.submit(docID, uploader, title, file)
}

func (f *fakeVersions) PromoteVersion(_ context.Context, id uuid.UUID) (*domain.Document, *domain.DocumentVersion, error) {
	return f.promote(id)
}

type fakeViews struct {
	render func(docID uuid.UUID, viewer domain.Identity) ([]byte, string, string, error)
}

func (f *fakeViews) RenderForViewer(_ context.Context, docID uuid.UUID, viewer domain.Identity) ([]byte, string, string, error) {
	return f.render(docID, viewer)
}

func (f *fakeViews) Wait() {}

type fakeDeadLetters struct {
	service.DeadLetterService
	replay func(id string) (string, error)
}

func (f *fakeDeadLetters) Replay(_ context.Context, id string) (string, error) {
	return f.replay(id)
}

type fixture struct {
	router  *gin.Engine
	docs    *fakeDocuments
	vers    *fakeVersions
	views   *fakeViews
	letters *fakeDeadLetters
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		docs:    &fakeDocuments{favorites: map[uuid.UUID]bool{}},
		vers:    &fakeVersions{},
		views:   &fakeViews{},
		letters: &fakeDeadLetters{},
	}
	f.router = gin.New()
	SetupRoutes(f.router, testSecret, 1<<20, Services{
		Documents:   f.docs,
		Versions:    f.vers,
		Views:       f.views,
		DeadLetters: f.letters,
	}, logger.Discard())
	return f
}

func token(t *testing.T, id domain.Identity) string {
	t.Helper()
	claims := &service.Claims{
		UserID: id.UserID.String(),
		Role:   id.Role,
		Name:   id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func identity(name string, role domain.Role) domain.Identity {
	return domain.Identity{UserID: uuid.New(), Username: name, Role: role}
}

func (f *fixture) do(t *testing.T, req *http.Request, as *domain.Identity) *httptest.ResponseRecorder {
	t.Helper()
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *as))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a form with an optional PDF part named "file".
func multipartRequest(t *testing.T, path string, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="notes.pdf"`)
		h.Set("Content-Type", "application/pdf")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
