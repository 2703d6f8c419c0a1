// Package retrieval is the knowledge-base search service used by the
// technical and billing responders. Documents live in Redis hashes keyed by
// category and are ranked by keyword overlap with the query.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/Chative-triage/server/internal/agent/model"
	errx "github.com/Chative-triage/server/internal/core/error"
	logx "github.com/Chative-triage/server/pkg/logger"
)

const DefaultTopK = 3

type cachedResult struct {
	text  string
	found bool
}

// RedisStore implements model.KnowledgeSearcher.
type RedisStore struct {
	rdb   redis.Cmdable
	topK  int
	cache *expirable.LRU[string, cachedResult]
}

// Options tune ranking and caching; zero values pick defaults.
type Options struct {
	TopK      int
	CacheSize int
	CacheTTL  time.Duration
}

func NewRedisStore(rdb redis.Cmdable, opts Options) *RedisStore {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &RedisStore{
		rdb:   rdb,
		topK:  opts.TopK,
		cache: expirable.NewLRU[string, cachedResult](opts.CacheSize, nil, opts.CacheTTL),
	}
}

func (s *RedisStore) docsKey(category string) string {
	return fmt.Sprintf("triage:kb:%s:docs", normalizeCategory(category))
}

// Add stores a document and drops cached search results.
func (s *RedisStore) Add(ctx context.Context, doc model.KnowledgeDocument) (string, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return "", errx.BadRequest("document content must not be empty")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Category = normalizeCategory(doc.Category)

	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.docsKey(doc.Category), doc.ID, b).Err(); err != nil {
		logx.Error().Err(err).Str("category", doc.Category).Msg("failed to store kb document")
		return "", errx.WrapRedis(err)
	}
	s.cache.Purge()
	return doc.ID, nil
}

// Documents returns the top ranked documents of category matching query.
func (s *RedisStore) Documents(ctx context.Context, query, category string) ([]model.KnowledgeDocument, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := s.rdb.HGetAll(ctx, s.docsKey(category)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("category", category).Msg("failed to read kb documents")
		return nil, errx.WrapRedis(err)
	}

	var hits []model.KnowledgeDocument
	for id, raw := range rows {
		var doc model.KnowledgeDocument
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			logx.Warn().Err(err).Str("doc_id", id).Msg("skipping malformed kb document")
			continue
		}
		doc.Score = score(terms, doc)
		if doc.Score > 0 {
			hits = append(hits, doc)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > s.topK {
		hits = hits[:s.topK]
	}
	return hits, nil
}

// Search returns formatted articles, or found=false when nothing matched.
func (s *RedisStore) Search(ctx context.Context, query, category string) (string, bool, error) {
	cacheKey := normalizeCategory(category) + "\x00" + strings.Join(tokenize(query), " ")
	if res, ok := s.cache.Get(cacheKey); ok {
		return res.text, res.found, nil
	}

	docs, err := s.Documents(ctx, query, category)
	if err != nil {
		return "", false, err
	}
	text, found := FormatArticles(docs)
	s.cache.Add(cacheKey, cachedResult{text: text, found: found})

	logx.Debug().Str("category", category).Int("hits", len(docs)).Msg("knowledge base search")
	return text, found, nil
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return "general"
	}
	return c
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "you": {}, "your": {}, "with": {}, "can": {}, "are": {},
	"not": {}, "how": {}, "what": {}, "this": {}, "that": {}, "have": {}, "my": {}, "i": {},
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func score(terms []string, doc model.KnowledgeDocument) float64 {
	var b strings.Builder
	b.WriteString(strings.ToLower(doc.Content))
	for k, v := range doc.Metadata {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(k + " " + v))
	}
	haystack := b.String()

	var n float64
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			n++
		}
	}
	return n / float64(len(terms))
}

var _ model.KnowledgeSearcher = (*RedisStore)(nil)
