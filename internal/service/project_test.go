package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slop-factory-server/internal/model"
)

// captureTrigger records messages handed to the dispatcher.
type captureTrigger struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (c *captureTrigger) DispatchMessageAsync(msg *model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, *msg)
}

func newTestProjectService(t *testing.T, store *memStore) *ProjectService {
	t.Helper()
	return NewProjectService(store, messageStoreView{store}, zap.NewNop())
}

func TestCreateProjectSeedsInitialMessage(t *testing.T) {
	store := newMemStore()
	svc := newTestProjectService(t, store)

	trigger := &captureTrigger{}
	svc.SetTrigger(trigger)

	project, err := svc.CreateProject(context.Background(), "my-cafe", "a cozy coffee shop site")
	require.NoError(t, err)
	require.NotZero(t, project.ID)
	require.Equal(t, "a cozy coffee shop site", project.InitialPrompt)

	// One user message with the fixed initial content, dispatched immediately.
	history, err := svc.GetMessages(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, model.MessageRoleUser, history[0].Role)
	require.Equal(t,
		"Create a website named my-cafe with the following description: a cozy coffee shop site",
		history[0].Content)
	require.False(t, history[0].Processed)

	require.Len(t, trigger.msgs, 1)
	require.Equal(t, history[0].ID, trigger.msgs[0].ID)
}

func TestCreateMessageRequiresProject(t *testing.T) {
	store := newMemStore()
	svc := newTestProjectService(t, store)

	_, err := svc.CreateMessage(context.Background(), 404, "hello")
	require.ErrorIs(t, err, ErrProjectNotFound)

	// Nothing was inserted for the missing project.
	require.Empty(t, store.messages)
}

func TestCreateMessageDispatches(t *testing.T) {
	store := newMemStore()
	project := store.addProject("site", "")
	svc := newTestProjectService(t, store)

	trigger := &captureTrigger{}
	svc.SetTrigger(trigger)

	msg, err := svc.CreateMessage(context.Background(), project.ID, "add a contact form")
	require.NoError(t, err)
	require.Equal(t, model.MessageRoleUser, msg.Role)
	require.False(t, msg.Processed)

	require.Len(t, trigger.msgs, 1)
	require.Equal(t, msg.ID, trigger.msgs[0].ID)
}

func TestGetProjectHTMLPrefersCache(t *testing.T) {
	store := newMemStore()
	project := store.addProject("site", "<html>db</html>")
	svc := newTestProjectService(t, store)

	htmlCache := &captureCache{}
	svc.SetHTMLCache(htmlCache)

	// Cold read falls back to the database and warms the cache.
	html, err := svc.GetProjectHTML(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, "<html>db</html>", html)

	cached, ok, _ := htmlCache.GetProjectHTML(context.Background(), project.ID)
	require.True(t, ok)
	require.Equal(t, "<html>db</html>", cached)

	// A hit short-circuits the database read.
	htmlCache.SetProjectHTML(context.Background(), project.ID, "<html>cached</html>", htmlCacheTTL)
	html, err = svc.GetProjectHTML(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, "<html>cached</html>", html)
}

func TestGetProjectHTMLMissingProject(t *testing.T) {
	store := newMemStore()
	svc := newTestProjectService(t, store)

	_, err := svc.GetProjectHTML(context.Background(), 404)
	require.ErrorIs(t, err, ErrProjectNotFound)
}
