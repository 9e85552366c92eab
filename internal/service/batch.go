package service

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/samber/lo"
)

// Pair binds one post to one destination account.
type Pair struct {
	Account      models.Account
	Intent       models.PostIntent
	WatermarkURL string
}

// BatchContext holds the pairs of one scheduling run.
type BatchContext struct {
	pairs []Pair
}

// NewBatchContext pairs every intent with every account, intents first.
func NewBatchContext(accounts []models.Account, intents []models.PostIntent) *BatchContext {
	pairs := make([]Pair, 0, len(accounts)*len(intents))
	for _, intent := range intents {
		for _, acct := range accounts {
			pairs = append(pairs, Pair{Account: acct, Intent: intent})
		}
	}
	return &BatchContext{pairs: pairs}
}

func (b *BatchContext) Len() int {
	return len(b.pairs)
}

func (b *BatchContext) Pairs() []Pair {
	return append([]Pair(nil), b.pairs...)
}

// ApplyWatermarks records each account's overlay url on its pairs. A lookup
// failure leaves the pair without an overlay.
func (b *BatchContext) ApplyWatermarks(ctx context.Context, w WatermarkService) {
	if w == nil {
		return
	}
	accountIDs := lo.Uniq(lo.Map(b.pairs, func(p Pair, _ int) string { return p.Account.ID }))

	resolved := make(map[string]string, len(accountIDs))
	for _, id := range accountIDs {
		url, err := w.Resolve(ctx, id)
		if err != nil {
			slog.Warn("watermark lookup failed", "account_id", id, "error", err)
			continue
		}
		resolved[id] = url
	}
	for i := range b.pairs {
		b.pairs[i].WatermarkURL = resolved[b.pairs[i].Account.ID]
	}
}
