package sse

import (
	"testing"

	"claims_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func connect(s *Service, userID uuid.UUID, roles ...string) *client {
	c := &client{userID: userID, roles: roles, events: make(chan Event, 1)}
	s.addClient(c)
	return c
}

func TestPublishReachesEveryStreamOfUser(t *testing.T) {
	s := New(logger.Discard())
	user := uuid.New()
	a, b := connect(s, user), connect(s, user)

	assert.Equal(t, 2, s.Publish(user, Event{Type: EventNotification}))
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Equal(t, 0, s.Publish(uuid.New(), Event{Type: EventNotification}))
}

func TestPublishToRoleFiltersByRole(t *testing.T) {
	s := New(logger.Discard())
	admin := connect(s, uuid.New(), "admin")
	farmer := connect(s, uuid.New(), "farmer")

	assert.Equal(t, 1, s.PublishToRole("admin", Event{Type: EventNotification}))
	assert.Len(t, admin.events, 1)
	assert.Empty(t, farmer.events)
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	s := New(logger.Discard())
	user := uuid.New()
	connect(s, user)

	assert.Equal(t, 1, s.Publish(user, Event{Type: EventNotification}))
	assert.Equal(t, 0, s.Publish(user, Event{Type: EventNotification}))
}

func TestRemoveClientForgetsUser(t *testing.T) {
	s := New(logger.Discard())
	user := uuid.New()
	c := connect(s, user)

	s.removeClient(c)
	assert.Equal(t, 0, s.Connected(user))
	_, open := <-c.events
	assert.False(t, open)
}
