package model

import (
	"context"
)

// RunRepository persists run checkpoints and their audit trail.
type RunRepository interface {
	// SaveState stores the full state under its run id and marks it as the
	// latest run of its conversation.
	SaveState(ctx context.Context, state *ConversationState) error

	// LoadState retrieves a run checkpoint. Missing runs yield ErrRunNotFound.
	LoadState(ctx context.Context, runID string) (*ConversationState, error)

	// LatestRunID returns the most recent run of a conversation, or "" when none.
	LatestRunID(ctx context.Context, conversationID string) (string, error)

	// AppendTransition records one stage transition for a run.
	AppendTransition(ctx context.Context, t StageTransition) error

	// ListTransitions returns the recorded transitions of a run in order.
	ListTransitions(ctx context.Context, runID string) ([]StageTransition, error)

	// UpdateSuspended atomically applies fn to a run awaiting review and
	// stores it. Runs that are not suspended yield ErrRunNotSuspended.
	UpdateSuspended(ctx context.Context, runID string, fn func(*ConversationState)) (*ConversationState, error)
}
