package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// QuestionDetailsRepository caches correct-option sets in Redis and falls back
// to a backing loader on cache miss. One key per question:
//
//	SET quiz:question:{questionID}:correct {json array of option IDs}
type QuestionDetailsRepository struct {
	client *redis.Client
	loader app.QuestionDetailsRepository
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

var _ app.QuestionDetailsRepository = (*QuestionDetailsRepository)(nil)

func NewQuestionDetailsRepository(client *redis.Client, loader app.QuestionDetailsRepository, ttl time.Duration) *QuestionDetailsRepository {
	return &QuestionDetailsRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionDetailsRepository) GetQuestionDetails(ctx context.Context, questionID string) (domain.QuestionDetails, error) {
	if details, ok := r.cached(ctx, questionID); ok {
		return details, nil
	}

	result, err, _ := r.sf.Do(questionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if details, ok := r.cached(ctx, questionID); ok {
			return details, nil
		}
		details, err := r.loader.GetQuestionDetails(ctx, questionID)
		if err != nil {
			return domain.QuestionDetails{}, err
		}
		r.fill(ctx, details)
		return details, nil
	})
	if err != nil {
		return domain.QuestionDetails{}, err
	}
	return result.(domain.QuestionDetails), nil
}

// GetMultipleQuestionDetails resolves all ids in one MGET, then fetches the
// misses from the loader in a single batched call. Questions the loader does
// not know stay absent from the result map.
func (r *QuestionDetailsRepository) GetMultipleQuestionDetails(ctx context.Context, questionIDs []string) (map[string]domain.QuestionDetails, error) {
	result := make(map[string]domain.QuestionDetails, len(questionIDs))
	if len(questionIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(questionIDs))
	for i, id := range questionIDs {
		keys[i] = r.key(id)
	}

	misses := questionIDs
	if values, err := r.client.MGet(ctx, keys...).Result(); err == nil {
		misses = misses[:0:0]
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				misses = append(misses, questionIDs[i])
				continue
			}
			var optionIDs []string
			if err := json.Unmarshal([]byte(raw), &optionIDs); err != nil {
				misses = append(misses, questionIDs[i])
				continue
			}
			result[questionIDs[i]] = domain.QuestionDetails{
				ID:               questionIDs[i],
				CorrectOptionIDs: optionIDs,
			}
		}
	}
	if len(misses) == 0 {
		return result, nil
	}

	loaded, err := r.loader.GetMultipleQuestionDetails(ctx, misses)
	if err != nil {
		return nil, err
	}
	pipe := r.client.Pipeline()
	for id, details := range loaded {
		result[id] = details
		if data, err := json.Marshal(details.CorrectOptionIDs); err == nil {
			pipe.Set(ctx, r.key(id), data, r.ttlWithJitter())
		}
	}
	// best-effort fill
	_, _ = pipe.Exec(ctx)
	return result, nil
}

func (r *QuestionDetailsRepository) cached(ctx context.Context, questionID string) (domain.QuestionDetails, bool) {
	raw, err := r.client.Get(ctx, r.key(questionID)).Result()
	if err != nil {
		return domain.QuestionDetails{}, false
	}
	var optionIDs []string
	if err := json.Unmarshal([]byte(raw), &optionIDs); err != nil {
		return domain.QuestionDetails{}, false
	}
	return domain.QuestionDetails{ID: questionID, CorrectOptionIDs: optionIDs}, true
}

func (r *QuestionDetailsRepository) fill(ctx context.Context, details domain.QuestionDetails) {
	data, err := json.Marshal(details.CorrectOptionIDs)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, r.key(details.ID), data, r.ttlWithJitter()).Err()
}

func (r *QuestionDetailsRepository) key(questionID string) string {
	return "quiz:question:" + questionID + ":correct"
}

func (r *QuestionDetailsRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
