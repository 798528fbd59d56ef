package router

import (
	"context"

	"github.com/tobennaogbu/kobocart-backend/internal/analytics/types"
)

type fakeWriter struct {
	inserted []types.RevenueRow
	err      error
}

func (f *fakeWriter) InsertRevenue(_ context.Context, row types.RevenueRow) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, row)
	return nil
}
