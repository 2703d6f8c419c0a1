package nodes

import (
	"context"

	"github.com/Chative-triage/server/internal/agent/model"
)

// Ingress is the graph entry; routing happens on its outgoing branch.
func Ingress(_ context.Context, in *model.ConversationState) (*model.ConversationState, error) {
	st := in.Clone()
	if st.ToolCallCounts == nil {
		st.ToolCallCounts = map[string]int{}
	}
	return st, nil
}
