package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"spotbook/internal/logger"
	"spotbook/internal/network"
	"spotbook/internal/sdk"
)

const (
	searchDebounce = 250 * time.Millisecond
	meRankCap      = 100
)

// LeaderboardFilter is a ranking period
type LeaderboardFilter struct {
	Title    string
	Hours    int64
	Timeline string
}

// Interval returns the period in seconds, 0 for all time
func (f LeaderboardFilter) Interval() int64 {
	return f.Hours * 3600
}

var LeaderboardFilters = []LeaderboardFilter{
	{Title: "24h", Hours: 24, Timeline: "1d"},
	{Title: "7d", Hours: 168, Timeline: "7d"},
	{Title: "30d", Hours: 720, Timeline: "31d"},
	{Title: "All", Hours: 0, Timeline: "all"},
}

// PerPageOptions are the accepted page sizes
var PerPageOptions = []int{10, 25, 50, 100}

// SortField is the leaderboard ranking column
type SortField string

const (
	SortVolume SortField = "volume"
	SortPnl    SortField = "pnl"
)

type LeaderboardSort struct {
	Field SortField
	Side  sdk.SortSide
}

// LeaderboardStore pages the trader rankings and prepends the connected trader's own row
type LeaderboardStore struct {
	net     *network.Network
	account *AccountStore
	log     *logrus.Entry
	now     func() time.Time

	mu             sync.RWMutex
	initialized    bool
	activeUserStat int
	activeTime     int64
	page           int
	filter         LeaderboardFilter
	perPage        int
	search         string
	sort           LeaderboardSort
	rows           []sdk.TraderVolume
	pnl            []sdk.TraderPnl
	stats          sdk.AllTimeStats
	loading        bool
	seq            uint64
	debounce       *time.Timer
}

func NewLeaderboardStore(net *network.Network, account *AccountStore) *LeaderboardStore {
	return &LeaderboardStore{
		net:     net,
		account: account,
		log:     logger.WithComponent("leaderboard"),
		now:     time.Now,
		page:    1,
		filter:  LeaderboardFilters[0],
		perPage: PerPageOptions[0],
		sort:    LeaderboardSort{Field: SortVolume, Side: sdk.SortDesc},
	}
}

// Init marks the store initialized and loads the first page
func (s *LeaderboardStore) Init(ctx context.Context) error {
	s.mu.Lock()
	s.initialized = true
	s.activeTime = s.now().Add(-24 * time.Hour).Unix()
	s.mu.Unlock()
	return s.Refetch(ctx)
}

// Close stops a pending debounced search
func (s *LeaderboardStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

// Disconnect resets the per-user state
func (s *LeaderboardStore) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.activeUserStat = 0
	s.activeTime = 0
	s.filter = LeaderboardFilters[0]
}

// Refetch loads the current page in the current sort mode. Responses of superseded requests are dropped.
func (s *LeaderboardStore) Refetch(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.loading = true
	page, perPage, filter, search, sort := s.page, s.perPage, s.filter, s.search, s.sort
	s.mu.Unlock()

	var (
		rows []sdk.TraderVolume
		pnl  []sdk.TraderPnl
		err  error
	)
	if sort.Field == SortVolume {
		rows, pnl, err = s.fetchVolume(ctx, sdk.LeaderboardParams{
			Limit:            perPage,
			Page:             page - 1,
			Search:           search,
			CurrentTimestamp: s.now().Unix(),
			Interval:         filter.Interval(),
			Side:             sort.Side,
		})
	} else {
		rows, pnl, err = s.fetchPnl(ctx, sdk.PnlLeaderboardParams{
			Limit:    perPage,
			Page:     page - 1,
			Side:     sort.Side,
			Timeline: filter.Timeline,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return err
	}
	s.loading = false
	if err != nil {
		s.log.WithError(err).Error("failed to fetch leaderboard")
		return err
	}
	s.rows, s.pnl = rows, pnl
	return nil
}

func (s *LeaderboardStore) fetchVolume(ctx context.Context, params sdk.LeaderboardParams) ([]sdk.TraderVolume, []sdk.TraderPnl, error) {
	rows, err := s.net.GetSortedLeaderboard(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch volume leaderboard: %w", err)
	}

	if params.Page == 0 {
		me, ok, err := s.fetchMe(ctx, params)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			rows = append([]sdk.TraderVolume{me}, rows...)
		}
	}

	wallets := make([]string, 0, len(rows))
	for _, r := range rows {
		wallets = append(wallets, r.WalletID)
	}
	pnl, err := s.net.FetchLeaderboardPnl(ctx, wallets)
	if err != nil {
		s.log.WithError(err).Warn("failed to fetch leaderboard pnl")
		pnl = nil
	}
	return rows, pnl, nil
}

// fetchMe looks the connected trader up. A trader outside the first hundred shows as "+100", and a
// trader without volume gets a placeholder row.
func (s *LeaderboardStore) fetchMe(ctx context.Context, params sdk.LeaderboardParams) (sdk.TraderVolume, bool, error) {
	address := s.account.Address()
	if address == "" {
		return sdk.TraderVolume{}, false, nil
	}

	params.Search = address
	found, err := s.net.GetSortedLeaderboard(ctx, params)
	if err != nil {
		return sdk.TraderVolume{}, false, fmt.Errorf("failed to fetch own leaderboard row: %w", err)
	}

	if len(found) == 0 {
		return sdk.TraderVolume{ID: "N/A", WalletID: address, IsYour: true}, true, nil
	}

	me := found[0]
	if rank, err := strconv.Atoi(me.ID); err == nil && rank > meRankCap {
		me.ID = "+" + strconv.Itoa(meRankCap)
	}
	me.IsYour = true
	return me, true, nil
}

func (s *LeaderboardStore) fetchPnl(ctx context.Context, params sdk.PnlLeaderboardParams) ([]sdk.TraderVolume, []sdk.TraderPnl, error) {
	pnl, err := s.net.GetSortedLeaderboardPnl(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch pnl leaderboard: %w", err)
	}

	address := s.account.Address()
	rows := make([]sdk.TraderVolume, 0, len(pnl))
	for i, p := range pnl {
		rows = append(rows, sdk.TraderVolume{
			ID:       strconv.Itoa(params.Page*params.Limit + i + 1),
			WalletID: p.User,
			IsYour:   address != "" && strings.EqualFold(p.User, address),
		})
	}
	return rows, pnl, nil
}

// SetPage loads a page, starting at 1
func (s *LeaderboardStore) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	return s.Refetch(ctx)
}

// SetFilter switches the ranking period and returns to the first page
func (s *LeaderboardStore) SetFilter(ctx context.Context, title string) error {
	var filter LeaderboardFilter
	found := false
	for _, f := range LeaderboardFilters {
		if strings.EqualFold(f.Title, title) {
			filter, found = f, true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown leaderboard filter %q", title)
	}

	s.mu.Lock()
	s.filter = filter
	s.page = 1
	s.mu.Unlock()
	return s.Refetch(ctx)
}

// SetPerPage changes the page size and returns to the first page
func (s *LeaderboardStore) SetPerPage(ctx context.Context, perPage int) error {
	valid := false
	for _, n := range PerPageOptions {
		if n == perPage {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unsupported page size %d", perPage)
	}

	s.mu.Lock()
	s.perPage = perPage
	s.page = 1
	s.mu.Unlock()
	return s.Refetch(ctx)
}

// OnAddressChange returns to the first page and reloads it for the new trader
func (s *LeaderboardStore) OnAddressChange(ctx context.Context) error {
	s.mu.Lock()
	s.page = 1
	s.mu.Unlock()
	return s.Refetch(ctx)
}

// SetSearch filters by wallet. The fetch runs once input has been quiet for 250ms.
func (s *LeaderboardStore) SetSearch(ctx context.Context, wallet string) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = wallet
	s.page = 1
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(searchDebounce, func() {
		_ = s.Refetch(ctx)
	})
}

// MakeSort sorts by field. The same field flips the direction, a new field starts ascending.
func (s *LeaderboardStore) MakeSort(ctx context.Context, field SortField) error {
	s.mu.Lock()
	if field == s.sort.Field {
		s.sort.Side = flipSide(s.sort.Side)
	} else {
		s.sort = LeaderboardSort{Field: field, Side: sdk.SortAsc}
	}
	s.mu.Unlock()
	return s.Refetch(ctx)
}

func flipSide(side sdk.SortSide) sdk.SortSide {
	if sdk.SortSide(strings.ToUpper(string(side))) == sdk.SortAsc {
		return sdk.SortDesc
	}
	return sdk.SortAsc
}

// FetchAllTimeStats refreshes the platform totals
func (s *LeaderboardStore) FetchAllTimeStats(ctx context.Context) (sdk.AllTimeStats, error) {
	stats, err := s.net.FetchAllTimeStats(ctx)
	if err != nil {
		return sdk.AllTimeStats{}, fmt.Errorf("failed to fetch all-time stats: %w", err)
	}
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
	return stats, nil
}

// Rows returns the volume rows of the current page
func (s *LeaderboardStore) Rows() []sdk.TraderVolume {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]sdk.TraderVolume(nil), s.rows...)
}

// Pnl returns the pnl rows of the current page
func (s *LeaderboardStore) Pnl() []sdk.TraderPnl {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]sdk.TraderPnl(nil), s.pnl...)
}

// PnlFor returns the pnl row of wallet on the current page
func (s *LeaderboardStore) PnlFor(wallet string) (sdk.TraderPnl, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pnl {
		if strings.EqualFold(p.User, wallet) {
			return p, true
		}
	}
	return sdk.TraderPnl{}, false
}

// MaxTotalCount is the largest total count reported by the rows
func (s *LeaderboardStore) MaxTotalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	highest := 0
	for _, r := range s.rows {
		if r.TotalCount > highest {
			highest = r.TotalCount
		}
	}
	return highest
}

// AllTimeStats returns the last fetched all-time totals
func (s *LeaderboardStore) AllTimeStats() sdk.AllTimeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Page returns the current page, starting at 1
func (s *LeaderboardStore) Page() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

// PerPage returns the page size
func (s *LeaderboardStore) PerPage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.perPage
}

// Filter returns the selected timeline filter
func (s *LeaderboardStore) Filter() LeaderboardFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// Search returns the wallet search term
func (s *LeaderboardStore) Search() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

// Sort returns the selected sort field and direction
func (s *LeaderboardStore) Sort() LeaderboardSort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sort
}

// Loading reports whether a page fetch is in flight
func (s *LeaderboardStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Initialized reports whether Init ran since the last Disconnect
func (s *LeaderboardStore) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// ActiveTime is the unix second 24 hours before Init, zero after Disconnect
func (s *LeaderboardStore) ActiveTime() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTime
}

// ActiveUserStat is the active user counter, reset by Disconnect
func (s *LeaderboardStore) ActiveUserStat() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeUserStat
}
