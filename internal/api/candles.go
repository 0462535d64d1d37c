package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/rickgao/okx-stream/internal/channel"
	"github.com/rickgao/okx-stream/internal/model"
	"github.com/rickgao/okx-stream/internal/router"
)

// GetHistoricalCandles fetches up to limit trade candles for instID opening
// before the given unix second (zero for most recent), oldest first.
func (c *Client) GetHistoricalCandles(ctx context.Context, instID, bar string, limit int, before int64) ([]model.Candle, error) {
	return c.GetCandles(ctx, CandlesOptions{
		InstID: instID,
		Bar:    bar,
		Limit:  limit,
		Before: before,
	})
}

// GetCandles fetches candle history, paging backwards with the "after"
// cursor. The result is ascending by time with no duplicates.
func (c *Client) GetCandles(ctx context.Context, opts CandlesOptions) ([]model.Candle, error) {
	if strings.TrimSpace(opts.InstID) == "" {
		return nil, errors.New("get candles: instrument id is required")
	}
	if opts.Limit <= 0 {
		return nil, nil
	}

	sub := model.Subscription{
		Family:         model.FamilyCandle,
		InstrumentID:   opts.InstID,
		Interval:       opts.Bar,
		InstrumentType: opts.InstType,
	}
	ch := channel.WireChannel(sub)
	path := candlePath(opts.InstType)
	withVolume := channel.ReportsVolume(ch)

	query := url.Values{}
	query.Set("instId", channel.NormalizeInstID(opts.InstID, ch))
	query.Set("bar", channel.CandleInterval(ch))

	// OKX cursors are milliseconds; "after" returns rows older than it.
	cursor := int64(0)
	if opts.Before > 0 {
		cursor = opts.Before * 1000
	}

	var out []model.Candle
	for len(out) < opts.Limit {
		page := min(opts.Limit-len(out), maxCandlePage)
		query.Set("limit", strconv.Itoa(page))
		if cursor > 0 {
			query.Set("after", strconv.FormatInt(cursor, 10))
		} else {
			query.Del("after")
		}

		var rows []candleRow
		if err := c.get(ctx, path, query, &rows); err != nil {
			return nil, fmt.Errorf("get candles %s %s: %w", query.Get("instId"), query.Get("bar"), err)
		}
		if len(rows) == 0 {
			break
		}

		oldest := cursor
		for _, row := range rows {
			candle, err := router.ParseCandleRow(row, withVolume)
			if err != nil {
				return nil, fmt.Errorf("parse candle row: %w", err)
			}
			out = append(out, candle)

			ts, err := strconv.ParseInt(row[0], 10, 64)
			if err == nil && (oldest == 0 || ts < oldest) {
				oldest = ts
			}
		}

		if oldest == cursor || len(rows) < page {
			break
		}
		cursor = oldest
	}

	return ascendingUnique(out, opts.Limit), nil
}

func candlePath(instType string) string {
	switch strings.ToUpper(strings.TrimSpace(instType)) {
	case channel.InstTypeIndex:
		return pathHistoryIndexCandles
	case channel.InstTypeMark:
		return pathHistoryMarkPriceCandles
	}
	return pathHistoryCandles
}

// ascendingUnique sorts by time, drops repeated timestamps and keeps the
// newest limit candles.
func ascendingUnique(candles []model.Candle, limit int) []model.Candle {
	slices.SortStableFunc(candles, func(a, b model.Candle) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	candles = slices.CompactFunc(candles, func(a, b model.Candle) bool { return a.Time == b.Time })
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles
}
