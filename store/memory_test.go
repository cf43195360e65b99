package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroshield/neuroshield/automation"
)

func TestSaveAndGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a := automation.NewAction(automation.KindQoSUpdate, "Router_A",
		map[string]any{"traffic_class": "voice"}, 1, true)
	require.NoError(t, s.SaveAction(ctx, a))

	// Mutating the original after save must not leak into the store.
	a.Status = automation.StatusFailed
	a.Parameters["traffic_class"] = "bulk"

	got, err := s.GetAction(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, automation.StatusQueued, got.Status)
	assert.Equal(t, "voice", got.Parameters["traffic_class"])

	// And mutating the returned copy must not change later reads.
	got.Status = automation.StatusCancelled
	again, err := s.GetAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, automation.StatusQueued, again.Status)
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.GetAction(context.Background(), "no_such_action")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a := automation.NewAction(automation.KindDeviceRestart, "Router_B", nil, 1, true)
	require.NoError(t, s.SaveAction(ctx, a))

	a.Status = automation.StatusCompleted
	a.Result = map[string]any{"message": "restart complete"}
	require.NoError(t, s.UpdateAction(ctx, a))

	got, err := s.GetAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, automation.StatusCompleted, got.Status)
	assert.Equal(t, "restart complete", got.Result["message"])
}

func TestListNewestFirstWithDeviceFilterAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	devices := []string{"Router_A", "Router_B", "Router_A", "Router_A"}
	ids := make([]string, len(devices))
	for i, dev := range devices {
		a := automation.NewAction(automation.KindConfigUpdate, dev, nil, 1, true)
		a.CreatedAt = base.Add(time.Duration(i) * time.Second)
		ids[i] = a.ID
		require.NoError(t, s.SaveAction(ctx, a))
	}

	all, err := s.ListActions(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].ID)
	assert.Equal(t, ids[0], all[3].ID)

	routerA, err := s.ListActions(ctx, "Router_A", 0)
	require.NoError(t, err)
	require.Len(t, routerA, 3)
	for _, a := range routerA {
		assert.Equal(t, "Router_A", a.Device)
	}

	limited, err := s.ListActions(ctx, "Router_A", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, ids[3], limited[0].ID)
	assert.Equal(t, ids[2], limited[1].ID)
}
