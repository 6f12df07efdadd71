package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slop-factory-server/internal/model"
	"slop-factory-server/internal/service"
	"slop-factory-server/pkg/response"
)

// fakeStore is a minimal in-memory backend for handler tests.
type fakeStore struct {
	mu       sync.Mutex
	projects map[int64]*model.Project
	messages []model.Message
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{projects: make(map[int64]*model.Project)}
}

func (s *fakeStore) Create(ctx context.Context, project *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	project.ID = s.nextID
	project.CreatedAt = time.Now()
	s.projects[project.ID] = project
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id int64) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) List(ctx context.Context) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	return out, nil
}

// fakeMessages adapts fakeStore to the message side.
type fakeMessages struct{ *fakeStore }

func (s fakeMessages) Create(ctx context.Context, message *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message.ID = s.nextID
	message.CreatedAt = time.Now()
	s.messages = append(s.messages, *message)
	return nil
}

func (s fakeMessages) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			cp := s.messages[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s fakeMessages) GetByProjectID(ctx context.Context, projectID int64) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.messages {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s fakeMessages) ListUnprocessedUser(ctx context.Context, limit int) ([]model.Message, error) {
	return nil, nil
}

func (s fakeMessages) CompleteGeneration(ctx context.Context, userMessageID int64, reply *model.Message) error {
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newFakeStore()
	svc := service.NewProjectService(store, fakeMessages{store}, zap.NewNop())
	h := NewProjectHandler(svc)

	r := gin.New()
	projects := r.Group("/api/v1/projects")
	{
		projects.POST("", h.CreateProject)
		projects.GET("", h.ListProjects)
		projects.GET("/:id", h.GetProject)
		projects.GET("/:id/preview", h.GetProjectPreview)
		projects.POST("/:id/messages", h.CreateMessage)
		projects.GET("/:id/messages", h.GetMessages)
	}
	return r, store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateProjectEndpoint(t *testing.T) {
	r, store := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/projects", gin.H{
		"name":        "my-cafe",
		"description": "a coffee shop site",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, response.CodeSuccess, resp.Code)

	// The project and its seed message both landed in the store.
	require.Len(t, store.projects, 1)
	require.Len(t, store.messages, 1)
	require.Equal(t, model.MessageRoleUser, store.messages[0].Role)
}

func TestCreateProjectValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	// Missing description.
	w := doJSON(t, r, http.MethodPost, "/api/v1/projects", gin.H{"name": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, response.CodeBadRequest, resp.Code)
}

func TestGetProjectNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/projects/404", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, response.CodeProjectNotFound, resp.Code)
}

func TestGetProjectPreviewServesRawHTML(t *testing.T) {
	r, store := newTestRouter(t)
	store.Create(context.Background(), &model.Project{Name: "p", HTMLContent: "<html><body>hi</body></html>"})

	w := doJSON(t, r, http.MethodGet, "/api/v1/projects/1/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	require.Equal(t, "<html><body>hi</body></html>", w.Body.String())
}

func TestCreateMessageEndpoint(t *testing.T) {
	r, store := newTestRouter(t)
	store.Create(context.Background(), &model.Project{Name: "p"})

	w := doJSON(t, r, http.MethodPost, "/api/v1/projects/1/messages", gin.H{"content": "make it blue"})
	require.Equal(t, http.StatusCreated, w.Code)

	// Unknown project yields the specific business code.
	w = doJSON(t, r, http.MethodPost, "/api/v1/projects/99/messages", gin.H{"content": "hi"})
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, response.CodeProjectNotFound, resp.Code)
}

func TestGetMessagesEndpoint(t *testing.T) {
	r, store := newTestRouter(t)
	store.Create(context.Background(), &model.Project{Name: "p"})
	fakeMessages{store}.Create(context.Background(), &model.Message{ProjectID: 1, Role: model.MessageRoleUser, Content: "hello"})

	w := doJSON(t, r, http.MethodGet, "/api/v1/projects/1/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int `json:"code"`
		Data struct {
			Messages []MessageResponse `json:"messages"`
			Total    int               `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Total)
	require.Equal(t, "hello", resp.Data.Messages[0].Content)
}
