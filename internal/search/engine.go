// Package search composes analogy queries and coordinates the search backends.
package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/nearest/internal/config"
	"github.com/hyperjump/nearest/internal/models"
	"github.com/hyperjump/nearest/internal/vector"
	"github.com/hyperjump/nearest/internal/vocab"
)

// Engine answers neighbour queries against one store. The primary backend always runs;
// the reference backend only runs for queries that ask for a comparison.
type Engine struct {
	store     *vector.Store
	vocab     *vocab.Vocabulary
	composer  *Composer
	primary   vector.Backend
	reference vector.Backend
	config    *config.SearchConfig
	logger    *zap.Logger
	// cache maps canonical query text to the last response computed for it.
	cache *lru.Cache[string, *models.QueryResponse]
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithResultCache enables an LRU cache of up to n responses. n <= 0 disables it.
func WithResultCache(n int) Option {
	return func(e *Engine) {
		if n <= 0 {
			return
		}
		if c, err := lru.New[string, *models.QueryResponse](n); err == nil {
			e.cache = c
		}
	}
}

// NewEngine creates an engine. reference may be nil, in which case comparisons are skipped.
func NewEngine(
	store *vector.Store,
	v *vocab.Vocabulary,
	primary vector.Backend,
	reference vector.Backend,
	cfg *config.SearchConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:     store,
		vocab:     v,
		primary:   primary,
		reference: reference,
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	var suggestOpts []vocab.SuggesterOption
	if cfg != nil {
		suggestOpts = append(suggestOpts,
			vocab.WithMaxDistance(cfg.MaxDistance),
			vocab.WithMaxSuggestions(cfg.Suggestions))
	}
	e.composer = NewComposer(store, v, vocab.NewSuggester(v, suggestOpts...))
	return e
}

// Open hands the store to the backends and reports how long that took.
func (e *Engine) Open() (time.Duration, error) {
	start := time.Now()
	if err := e.primary.Setup(e.store); err != nil {
		return time.Since(start), fmt.Errorf("setup %s backend: %w", e.primary.Type(), err)
	}
	if e.reference != nil {
		if err := e.reference.Setup(e.store); err != nil {
			_ = e.primary.Teardown()
			return time.Since(start), fmt.Errorf("setup %s backend: %w", e.reference.Type(), err)
		}
	}
	elapsed := time.Since(start)
	e.logger.Debug("backends ready",
		zap.String("backend", e.primary.Type()),
		zap.Int("words", e.store.Len()),
		zap.Duration("elapsed", elapsed))
	return elapsed, nil
}

// Close releases both backends and reports how long that took.
func (e *Engine) Close() (time.Duration, error) {
	start := time.Now()
	err := e.primary.Teardown()
	if e.reference != nil {
		if rerr := e.reference.Teardown(); err == nil {
			err = rerr
		}
	}
	return time.Since(start), err
}

// Lookup resolves word to its store index. Misses return a *WordNotFoundError.
func (e *Engine) Lookup(word string) (int, error) {
	return e.composer.Lookup(word)
}

// Compose builds the query vector for q without searching.
func (e *Engine) Compose(q *models.Query) (*Composition, error) {
	return e.composer.Compose(q)
}

// Search validates q, composes it and ranks the store. Returned neighbours exclude the base
// word and hold at most K-1 entries.
func (e *Engine) Search(ctx context.Context, q *models.Query) (*models.QueryResponse, error) {
	if err := q.Validate(e.defaultK(), e.maxK()); err != nil {
		return nil, err
	}
	key := cacheKey(q)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			resp := *cached
			resp.ID = uuid.New().String()
			resp.Cached = true
			return &resp, nil
		}
	}

	start := time.Now()
	comp, err := e.composer.Compose(q)
	if err != nil {
		return nil, err
	}
	resp := &models.QueryResponse{
		ID:        uuid.New().String(),
		Query:     q.String(),
		Word:      q.Word,
		BaseIndex: comp.BaseIndex,
		Applied:   comp.Applied,
		Skipped:   comp.Skipped,
		Backend:   e.primary.Type(),
	}
	resp.Timings.ComposeMicros = time.Since(start).Microseconds()

	var reference []vector.Neighbor
	if q.Compare && e.reference != nil {
		start = time.Now()
		reference, err = e.reference.Search(ctx, comp.Vector, comp.Norm, q.K)
		if err != nil {
			return nil, fmt.Errorf("%s search: %w", e.reference.Type(), err)
		}
		resp.Timings.SequentialMicros = time.Since(start).Microseconds()
		resp.Reference = e.display(reference, comp.BaseIndex, q.K)
	}

	start = time.Now()
	ranked, err := e.primary.Search(ctx, comp.Vector, comp.Norm, q.K)
	if err != nil {
		e.logger.Error("backend search failed",
			zap.String("backend", e.primary.Type()),
			zap.String("word", q.Word),
			zap.Error(err))
		return nil, fmt.Errorf("%s search: %w", e.primary.Type(), err)
	}
	resp.Timings.PrimaryMicros = time.Since(start).Microseconds()
	resp.Neighbors = e.display(ranked, comp.BaseIndex, q.K)

	if reference != nil {
		agree := sameRanking(reference, ranked)
		resp.Agree = &agree
		if !agree {
			e.logger.Warn("backends disagree",
				zap.String("query", resp.Query),
				zap.Int("reference_top", reference[0].Index),
				zap.Int("primary_top", ranked[0].Index))
		}
	}

	e.logger.Debug("query",
		zap.String("query_id", resp.ID),
		zap.String("word", q.Word),
		zap.String("backend", resp.Backend),
		zap.Duration("elapsed", time.Duration(resp.Timings.PrimaryMicros)*time.Microsecond))

	if e.cache != nil {
		e.cache.Add(key, resp)
	}
	return resp, nil
}

// Info describes word, with suggestions when it is not in the vocabulary.
func (e *Engine) Info(word string) models.WordInfo {
	i, err := e.composer.Lookup(word)
	if err != nil {
		info := models.WordInfo{Word: word, Index: -1}
		var nf *WordNotFoundError
		if errors.As(err, &nf) {
			info.Suggestions = nf.Suggestions
		}
		return info
	}
	return models.WordInfo{Word: word, Index: i, Norm: e.store.Norm(i), Found: true}
}

// Status summarizes the loaded store and the primary backend.
func (e *Engine) Status() models.Status {
	return models.Status{
		Words:      e.store.Len(),
		Dimensions: e.store.Dimensions(),
		Norm:       string(e.store.NormKind()),
		Backend:    e.primary.Type(),
		K:          e.defaultK(),
	}
}

// display drops the base index and keeps at most k-1 neighbours.
func (e *Engine) display(ranked []vector.Neighbor, base, k int) []models.Neighbor {
	out := make([]models.Neighbor, 0, max(k-1, 0))
	for _, n := range ranked {
		if len(out) >= k-1 {
			break
		}
		if n.Index == base {
			continue
		}
		out = append(out, models.Neighbor{
			Rank:  len(out) + 1,
			Index: n.Index,
			Word:  e.vocab.Word(n.Index),
			Score: n.Score,
		})
	}
	return out
}

func (e *Engine) defaultK() int {
	if e.config == nil || e.config.K <= 0 {
		return 11
	}
	return e.config.K
}

func (e *Engine) maxK() int {
	if e.config == nil {
		return 0
	}
	return e.config.MaxK
}

func sameRanking(a, b []vector.Neighbor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Index != b[i].Index {
			return false
		}
	}
	return true
}

func cacheKey(q *models.Query) string {
	return q.String() + "|" + strconv.Itoa(q.K) + "|" + strconv.FormatBool(q.Compare)
}
