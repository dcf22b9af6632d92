package inapp

import (
	"context"
	"testing"

	"claims_backend/internal/notification/sse"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	Store
	created []CreateParams
}

func (s *memStore) Create(_ context.Context, p CreateParams) (Notification, error) {
	s.created = append(s.created, p)
	return Notification{ID: uuid.New(), UserID: p.UserID, Audience: p.Audience, Title: p.Title, Content: p.Content, Severity: p.Severity}, nil
}

type recordingPusher struct {
	users []uuid.UUID
	roles []string
}

func (p *recordingPusher) Publish(userID uuid.UUID, _ sse.Event) int {
	p.users = append(p.users, userID)
	return 1
}

func (p *recordingPusher) PublishToRole(role string, _ sse.Event) int {
	p.roles = append(p.roles, role)
	return 1
}

func TestNotifyUserPersistsAndPushes(t *testing.T) {
	store, push := &memStore{}, &recordingPusher{}
	svc := NewService(store, push, logger.Discard())
	userID := uuid.New()

	err := svc.Notify(context.Background(), Message{UserID: userID, Title: "Claim approved", Body: "paid soon", ResourceType: "claim", ResourceID: uuid.New()})
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	require.NotNil(t, store.created[0].UserID)
	assert.Equal(t, userID, *store.created[0].UserID)
	assert.Nil(t, store.created[0].Audience)
	assert.Equal(t, SeverityInfo, store.created[0].Severity)
	assert.Equal(t, []uuid.UUID{userID}, push.users)
}

func TestNotifyAudienceBroadcastsToRole(t *testing.T) {
	store, push := &memStore{}, &recordingPusher{}
	svc := NewService(store, push, logger.Discard())

	require.NoError(t, svc.Notify(context.Background(), Message{Audience: "admin", Title: "AI ready", Body: "review"}))
	require.NotNil(t, store.created[0].Audience)
	assert.Nil(t, store.created[0].UserID)
	assert.Equal(t, []string{"admin"}, push.roles)
}

func TestNotifyRequiresExactlyOneTarget(t *testing.T) {
	svc := NewService(&memStore{}, nil, logger.Discard())

	assert.Error(t, svc.Notify(context.Background(), Message{Title: "x", Body: "y"}))
	assert.Error(t, svc.Notify(context.Background(), Message{UserID: uuid.New(), Audience: "admin", Title: "x", Body: "y"}))
	assert.Error(t, svc.Notify(context.Background(), Message{UserID: uuid.New(), Title: " "}))
}
