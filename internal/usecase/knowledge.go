package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

// RetrieveOptions tune a cache retrieval.
type RetrieveOptions struct {
	Complexity domain.ComplexityLevel
	Limit      int
}

const defaultRetrieveLimit = 5

// domainKeywords classifies a query into a knowledge domain.
var domainKeywords = []struct {
	domain   string
	keywords []string
}{
	{"research", []string{"research", "find", "search", "latest", "discover"}},
	{"analysis", []string{"analyze", "analyse", "data", "statistics", "metric"}},
	{"creative", []string{"create", "write", "story", "generate", "design"}},
	{"development", []string{"code", "program", "develop", "implement", "bug"}},
	{"planning", []string{"plan", "strategy", "schedule", "roadmap"}},
}

const generalDomain = "general"

// KnowledgeCache is the content-addressed read/write facade over the
// knowledge store. It never propagates backing-store failures: retrieval
// degrades to a safe default and storage failures are logged and swallowed.
type KnowledgeCache struct {
	store  domain.KnowledgeStore
	bus    domain.EventBus
	logger *slog.Logger
	newID  func() string
}

// NewKnowledgeCache creates a cache over store. bus may be nil.
func NewKnowledgeCache(store domain.KnowledgeStore, bus domain.EventBus, logger *slog.Logger) *KnowledgeCache {
	return &KnowledgeCache{store: store, bus: bus, logger: logger, newID: NewID}
}

// Retrieve looks up prior insights for the query. On any backing-store
// failure it logs and returns the safe default: domain "general", empty
// result sets, empty hash.
func (c *KnowledgeCache) Retrieve(ctx context.Context, query, knowledgeDomain string, opts RetrieveOptions) domain.KnowledgeContext {
	ctx, span := tracer.StartSpan(ctx, "knowledge.retrieve",
		trace.WithAttributes(tracer.StringAttr("knowledge.domain", knowledgeDomain)),
	)
	defer span.End()

	if knowledgeDomain == "" {
		knowledgeDomain = ClassifyDomain(query)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	entries, err := c.store.Search(ctx, query, knowledgeDomain, limit)
	if err != nil {
		tracer.RecordError(span, err)
		c.logger.Warn("knowledge retrieval degraded to empty context",
			"domain", knowledgeDomain, "error", err)
		return domain.KnowledgeContext{
			Domain:         generalDomain,
			SimilarResults: []domain.KnowledgeEntry{},
			Entities:       []string{},
		}
	}

	entities := make([]string, 0, len(entries))
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.PatternType != "" && !seen[e.PatternType] {
			entities = append(entities, e.PatternType)
			seen[e.PatternType] = true
		}
	}

	tracer.SetOK(span)
	return domain.KnowledgeContext{
		Domain:         knowledgeDomain,
		SimilarResults: entries,
		Entities:       entities,
		QueryHash:      QueryHash(query),
	}
}

// Store extracts insight fragments from resultText and writes each, keyed by
// the content hash of the normalized query. Fragments are kept verbatim,
// tagged "{domain}_pattern". Returns false when nothing was persisted.
// Storing the same query/result twice is idempotent: the store upserts by
// hash and content.
func (c *KnowledgeCache) Store(ctx context.Context, query, resultText, sessionID string) bool {
	ctx, span := tracer.StartSpan(ctx, "knowledge.store")
	defer span.End()

	insights := splitInsights(resultText)
	if len(insights) == 0 {
		return false
	}

	knowledgeDomain := ClassifyDomain(query)
	hash := QueryHash(query)
	now := time.Now().UTC()

	stored := 0
	for _, insight := range insights {
		entry := domain.KnowledgeEntry{
			ID:          c.newID(),
			QueryHash:   hash,
			Domain:      knowledgeDomain,
			PatternType: knowledgeDomain + "_pattern",
			Content:     insight,
			SessionID:   sessionID,
			CreatedAt:   now,
		}
		if err := c.store.Write(ctx, entry); err != nil {
			tracer.RecordError(span, err)
			c.logger.Warn("knowledge insight not stored",
				"domain", knowledgeDomain, "query_hash", hash, "error", err)
			continue
		}
		stored++
	}

	if stored > 0 && c.bus != nil {
		c.bus.Publish(ctx, domain.Event{
			Type:      domain.EventKnowledgeStored,
			Timestamp: now,
			Payload:   map[string]any{"domain": knowledgeDomain, "insights": stored},
		})
	}
	tracer.SetOK(span)
	return stored > 0
}

// NormalizeQuery lowercases and collapses whitespace so that trivially
// different spellings of the same query hash identically.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// QueryHash returns the stable content hash of the normalized query text.
// Identical normalized queries always yield the same hash, independent of
// call order or time.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

// ClassifyDomain buckets a query into a knowledge domain by keyword.
func ClassifyDomain(query string) string {
	lower := strings.ToLower(query)
	for _, dk := range domainKeywords {
		if containsAny(lower, dk.keywords) {
			return dk.domain
		}
	}
	return generalDomain
}

// maxInsights caps how many fragments one result contributes.
const maxInsights = 5

// splitInsights splits text into sentence fragments on terminal punctuation,
// keeping each fragment verbatim. Short fragments are dropped.
func splitInsights(text string) []string {
	var insights []string
	var b strings.Builder
	flush := func() {
		fragment := strings.TrimSpace(b.String())
		b.Reset()
		if len(fragment) >= 20 {
			insights = append(insights, fragment)
		}
	}
	for _, r := range text {
		b.WriteRune(r)
		switch r {
		case '.', '!', '?':
			flush()
		}
	}
	flush()
	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}
	return insights
}
