package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Chative-triage/server/internal/agent/model"
	errx "github.com/Chative-triage/server/internal/core/error"
	logx "github.com/Chative-triage/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type RedisRunRepository struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisRunRepository(rdb redis.UniversalClient, ttl time.Duration) *RedisRunRepository {
	return &RedisRunRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisRunRepository) stateKey(runID string) string {
	return fmt.Sprintf("triage:run:%s:state", runID)
}

func (r *RedisRunRepository) transitionsKey(runID string) string {
	return fmt.Sprintf("triage:run:%s:transitions", runID)
}

func (r *RedisRunRepository) latestKey(conversationID string) string {
	return fmt.Sprintf("triage:conversation:%s:latest_run", conversationID)
}

func (r *RedisRunRepository) SaveState(ctx context.Context, state *model.ConversationState) error {
	if state == nil || state.RunID == "" {
		return errx.BadRequest("state without run id")
	}
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("run_id", state.RunID).Msg("failed to marshal run state")
		return fmt.Errorf("marshal run state: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.stateKey(state.RunID), b, r.ttl)
	if state.ConversationID != "" {
		pipe.Set(ctx, r.latestKey(state.ConversationID), state.RunID, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("run_id", state.RunID).Msg("failed to save run state to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisRunRepository) LoadState(ctx context.Context, runID string) (*model.ConversationState, error) {
	key := r.stateKey(runID)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errx.NotFound(fmt.Errorf("%w: %s", errx.ErrRunNotFound, runID))
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load run state from redis")
		return nil, errx.WrapRedis(err)
	}

	return decodeState(runID, raw)
}

func decodeState(runID string, raw []byte) (*model.ConversationState, error) {
	var state model.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		logx.Error().Err(err).Str("run_id", runID).Msg("failed to unmarshal run state")
		return nil, fmt.Errorf("unmarshal run state %s: %w", runID, err)
	}
	if state.ToolCallCounts == nil {
		state.ToolCallCounts = map[string]int{}
	}
	if state.ToolCallLimits == nil {
		state.ToolCallLimits = map[string]int{}
	}
	return &state, nil
}

// UpdateSuspended applies fn to a run parked at the review gate and stores
// the result in one optimistic transaction. The conversation pointer is left
// alone. A run that is not suspended, or that another caller updated between
// the read and the write, yields ErrRunNotSuspended.
func (r *RedisRunRepository) UpdateSuspended(ctx context.Context, runID string, fn func(*model.ConversationState)) (*model.ConversationState, error) {
	key := r.stateKey(runID)
	notSuspended := errx.Conflict(fmt.Errorf("%w: %s", errx.ErrRunNotSuspended, runID))

	var updated *model.ConversationState
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errx.NotFound(fmt.Errorf("%w: %s", errx.ErrRunNotFound, runID))
			}
			return err
		}
		st, err := decodeState(runID, raw)
		if err != nil {
			return err
		}
		if !st.Suspended() {
			return notSuspended
		}
		fn(st)

		b, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshal run state: %w", err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, r.ttl)
			return nil
		}); err != nil {
			return err
		}
		updated = st
		return nil
	}, key)

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, redis.TxFailedErr):
		logx.Warn().Str("run_id", runID).Msg("suspended run changed concurrently")
		return nil, notSuspended
	default:
		return nil, errx.WrapRedis(err)
	}
}

func (r *RedisRunRepository) LatestRunID(ctx context.Context, conversationID string) (string, error) {
	id, err := r.rdb.Get(ctx, r.latestKey(conversationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errx.WrapRedis(err)
	}
	return id, nil
}

func (r *RedisRunRepository) AppendTransition(ctx context.Context, t model.StageTransition) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}
	key := r.transitionsKey(t.RunID)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push transition to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on transitions key")
		}
	}
	return nil
}

func (r *RedisRunRepository) ListTransitions(ctx context.Context, runID string) ([]model.StageTransition, error) {
	key := r.transitionsKey(runID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("key", key).Msg("failed to load transitions from redis")
		return nil, errx.WrapRedis(err)
	}

	out := make([]model.StageTransition, 0, len(rows))
	for i, s := range rows {
		var t model.StageTransition
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			logx.Error().Err(err).Str("run_id", runID).Int("index", i).Msg("failed to unmarshal transition")
			return nil, fmt.Errorf("unmarshal transition at index %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

var _ model.RunRepository = (*RedisRunRepository)(nil)
