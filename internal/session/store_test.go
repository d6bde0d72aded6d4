package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrandao/opchat/internal/models"
)

func TestMemoryStore_LoadMissing(t *testing.T) {
	m := NewMemoryStore()
	sess, err := m.Load(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	client := "Acme"
	sess := models.NewSession("5511999")
	sess.State = models.StateAwaitingCreate
	sess.Draft = &models.OrderDraft{ClientName: &client}
	sess.StagedParts = []models.PartDraft{{Name: "nipple", Quantity: 10}}
	sess.ActiveOrderCode = "ABC123"
	sess.AppendTurn(models.RoleUser, "create an order for Acme", 10)
	sess.AppendTurn(models.RoleAssistant, "Confirm?", 10)

	require.NoError(t, m.Save(ctx, sess))

	got, err := m.Load(ctx, "5511999")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StateAwaitingCreate, got.State)
	require.NotNil(t, got.Draft)
	assert.Equal(t, "Acme", *got.Draft.ClientName)
	assert.Equal(t, "ABC123", got.ActiveOrderCode)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, models.RoleUser, got.Turns[0].Role)
}

func TestMemoryStore_SaveIsolatesCaller(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sess := models.NewSession("a")
	sess.ActiveOrderCode = "ABC123"
	require.NoError(t, m.Save(ctx, sess))

	// Mutating after save must not affect what was stored.
	sess.ActiveOrderCode = "CHANGED"

	got, err := m.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", got.ActiveOrderCode)
}

func TestSession_AppendTurnBounded(t *testing.T) {
	sess := models.NewSession("x")
	for i := 0; i < 25; i++ {
		sess.AppendTurn(models.RoleUser, "msg", 10)
	}
	assert.Len(t, sess.Turns, 10)
}

func TestSession_ClearPendingKeepsContext(t *testing.T) {
	client := "Acme"
	sess := models.NewSession("x")
	sess.State = models.StateAwaitingDelete
	sess.Draft = &models.OrderDraft{ClientName: &client}
	sess.Candidates = []models.Candidate{{Kind: models.CandidateOrder}}
	sess.ActiveOrderCode = "ABC123"
	sess.AppendTurn(models.RoleUser, "delete it", 10)

	sess.ClearPending()

	assert.Equal(t, models.StateIdle, sess.State)
	assert.Nil(t, sess.Draft)
	assert.Nil(t, sess.Candidates)
	assert.Equal(t, "ABC123", sess.ActiveOrderCode, "active order survives cancel")
	assert.Len(t, sess.Turns, 1, "history survives cancel")
}
