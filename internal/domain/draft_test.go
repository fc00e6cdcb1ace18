package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDraftStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusSent.Valid())
	assert.True(t, StatusRejected.Valid())
	assert.False(t, DraftStatus("archived").Valid())
	assert.False(t, DraftStatus("").Valid())
}

func TestDraftStatusTransitions(t *testing.T) {
	// pending 可以迁移到两个终态
	assert.True(t, StatusPending.CanTransition(StatusSent))
	assert.True(t, StatusPending.CanTransition(StatusRejected))

	// 终态之间以及回到 pending 均不允许
	assert.False(t, StatusSent.CanTransition(StatusRejected))
	assert.False(t, StatusSent.CanTransition(StatusPending))
	assert.False(t, StatusRejected.CanTransition(StatusSent))
	assert.False(t, StatusRejected.CanTransition(StatusPending))
	assert.False(t, StatusPending.CanTransition(StatusPending))
}

func TestDraftHelpers(t *testing.T) {
	d := &Draft{Status: StatusPending}
	assert.True(t, d.Pending())
	assert.False(t, d.HasProviderDraft())

	d.ProviderDraftID = "42/1001"
	assert.True(t, d.HasProviderDraft())

	d.Status = StatusSent
	assert.False(t, d.Pending())
}
