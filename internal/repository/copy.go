package repository

import (
	"context"
	"fmt"
)

// CopyReport summarizes a document copy
type CopyReport struct {
	TotalVisitors int64
	TotalViews    int64
	Visitors      int
	OnlineUsers   int
}

// CopyDocuments loads the counters, ledger and presence from src and saves them to dst.
// Documents pass through their typed form, so legacy encodings come out normalized.
func CopyDocuments(ctx context.Context, src, dst *Repositories) (*CopyReport, error) {
	counters, err := src.Counters.Load(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := src.Ledger.Load(ctx)
	if err != nil {
		return nil, err
	}
	presence, err := src.Presence.Load(ctx)
	if err != nil {
		return nil, err
	}

	if err := dst.Ledger.Save(ctx, ledger); err != nil {
		return nil, fmt.Errorf("failed to copy ledger: %w", err)
	}
	if err := dst.Counters.Save(ctx, counters); err != nil {
		return nil, fmt.Errorf("failed to copy counters: %w", err)
	}
	if err := dst.Presence.Save(ctx, presence); err != nil {
		return nil, fmt.Errorf("failed to copy presence: %w", err)
	}

	return &CopyReport{
		TotalVisitors: counters.TotalVisitors,
		TotalViews:    counters.TotalViews,
		Visitors:      len(ledger),
		OnlineUsers:   len(presence),
	}, nil
}
