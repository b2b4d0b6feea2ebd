package spark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spotbook/internal/sdk"
	"spotbook/internal/sentio"
)

var errNoSentio = errors.New("sentio client not configured")

var pnlColumns = map[string]string{
	"1d":  "pnl1",
	"7d":  "pnl7",
	"31d": "pnl31",
	"all": "pnlInfinity",
}

func sortSide(side sdk.SortSide) string {
	if strings.EqualFold(string(side), string(sdk.SortAsc)) {
		return "ASC"
	}
	return "DESC"
}

func (c *Client) sentioQuery(ctx context.Context, operation, sql string, rows any) error {
	if c.cfg.Sentio == nil {
		return errNoSentio
	}
	start := time.Now()
	err := c.cfg.Sentio.Query(ctx, sql, rows)
	c.metrics.RecordRequest(operation, time.Since(start).Seconds(), err)
	return err
}

// GetSortedLeaderboard pages traders by volume over params.Interval
func (c *Client) GetSortedLeaderboard(ctx context.Context, params sdk.LeaderboardParams) ([]sdk.TraderVolume, error) {
	from := int64(0)
	if params.Interval > 0 {
		from = params.CurrentTimestamp - params.Interval
	}

	search := ""
	if s := sentio.SanitizeAddress(params.Search); s != "" {
		search = fmt.Sprintf("WHERE walletId ILIKE '%%%s%%'", s)
	}

	sql := fmt.Sprintf(`SELECT * FROM (
  SELECT row_number() OVER (ORDER BY traderVolume DESC) AS id, walletId, traderVolume, count() OVER () AS totalCount
  FROM (SELECT user AS walletId, sum(volume) AS traderVolume FROM TradeVolume WHERE timestamp > %d GROUP BY user)
) %s ORDER BY traderVolume %s LIMIT %d OFFSET %d`,
		from, search, sortSide(params.Side), params.Limit, params.Page*params.Limit)

	var rows []LeaderboardRow
	if err := c.sentioQuery(ctx, "leaderboard", sql, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}

	out := make([]sdk.TraderVolume, len(rows))
	for i, r := range rows {
		out[i] = sdk.TraderVolume{
			ID:           r.ID.String(),
			WalletID:     r.WalletID,
			TraderVolume: r.TraderVolume,
			TotalCount:   int(r.TotalCount.IntPart()),
		}
	}
	return out, nil
}

// GetSortedLeaderboardPnl pages traders by pnl over a timeline (1d, 7d, 31d, all)
func (c *Client) GetSortedLeaderboardPnl(ctx context.Context, params sdk.PnlLeaderboardParams) ([]sdk.TraderPnl, error) {
	column, ok := pnlColumns[params.Timeline]
	if !ok {
		return nil, fmt.Errorf("unknown pnl timeline %q", params.Timeline)
	}

	sql := fmt.Sprintf(`SELECT user, pnl1, pnl7, pnl31, pnlInfinity FROM UserPnl ORDER BY %s %s LIMIT %d OFFSET %d`,
		column, sortSide(params.Side), params.Limit, params.Page*params.Limit)

	return c.queryPnl(ctx, sql)
}

// FetchLeaderboardPnl returns pnl rows for the given wallets
func (c *Client) FetchLeaderboardPnl(ctx context.Context, wallets []string) ([]sdk.TraderPnl, error) {
	if len(wallets) == 0 {
		return nil, nil
	}
	sql := fmt.Sprintf(`SELECT user, pnl1, pnl7, pnl31, pnlInfinity FROM UserPnl WHERE user IN (%s)`,
		sentio.AddressList(wallets))
	return c.queryPnl(ctx, sql)
}

func (c *Client) queryPnl(ctx context.Context, sql string) ([]sdk.TraderPnl, error) {
	var rows []PnlRow
	if err := c.sentioQuery(ctx, "pnl", sql, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch pnl: %w", err)
	}

	out := make([]sdk.TraderPnl, len(rows))
	for i, r := range rows {
		out[i] = sdk.TraderPnl{
			User:     r.User,
			PnlDay:   r.PnlDay,
			PnlWeek:  r.PnlWeek,
			PnlMonth: r.PnlMonth,
			PnlAll:   r.PnlAll,
		}
	}
	return out, nil
}

// FetchAllTimeStats returns the exchange-wide volume and trade count
func (c *Client) FetchAllTimeStats(ctx context.Context) (sdk.AllTimeStats, error) {
	var rows []StatsRow
	sql := `SELECT sum(volume) AS total_volume, count() AS total_trades FROM TradeVolume`
	if err := c.sentioQuery(ctx, "all_time_stats", sql, &rows); err != nil {
		return sdk.AllTimeStats{}, fmt.Errorf("failed to fetch all time stats: %w", err)
	}
	if len(rows) == 0 {
		return sdk.AllTimeStats{}, nil
	}
	return sdk.AllTimeStats{
		TotalVolume: rows[0].TotalVolume,
		TotalTrades: rows[0].TotalTrades.IntPart(),
	}, nil
}
