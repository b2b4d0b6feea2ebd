package websocket

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"spotbook/internal/sdk"
	"spotbook/internal/units"
)

type marketResponse struct {
	ContractID    string `json:"contractId"`
	Symbol        string `json:"symbol"`
	BaseAsset     string `json:"baseAsset"`
	QuoteAsset    string `json:"quoteAsset"`
	PriceDecimals int32  `json:"priceDecimals"`
	Precision     int32  `json:"precision"`
	MarketPrice   string `json:"marketPrice"`
	Selected      bool   `json:"selected"`
}

type tradeResponse struct {
	ID        string `json:"id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type candleResponse struct {
	Time   int64  `json:"time"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
	Color  string `json:"color"`
}

type balanceResponse struct {
	AssetID  string `json:"assetId"`
	Symbol   string `json:"symbol"`
	Wallet   string `json:"wallet"`
	Contract string `json:"contract"`
}

type leaderboardRow struct {
	Rank       string `json:"rank"`
	Wallet     string `json:"wallet"`
	Volume     string `json:"volume"`
	TotalCount int    `json:"totalCount"`
	Pnl        string `json:"pnl,omitempty"`
	IsYour     bool   `json:"isYour"`
}

type leaderboardResponse struct {
	Filter  string           `json:"filter"`
	Page    int              `json:"page"`
	PerPage int              `json:"perPage"`
	Sort    string           `json:"sort"`
	Rows    []leaderboardRow `json:"rows"`
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.Handle("/metrics", s.metrics.Handler())

	// method mismatches only surface as 405 on routes registered on the root router
	r.HandleFunc("/api/markets", s.handleMarkets).Methods(http.MethodGet)
	r.HandleFunc("/api/markets/{market}", s.handleSelectMarket).Methods(http.MethodPost)
	r.HandleFunc("/api/orderbook", s.handleOrderbook).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/trades", s.handleTrades).Methods(http.MethodGet)
	r.HandleFunc("/api/candles", s.handleCandles).Methods(http.MethodGet)
	r.HandleFunc("/api/balances", s.handleBalances).Methods(http.MethodGet)
	r.HandleFunc("/api/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications", s.handleNotifications).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorMessage{Type: MessageTypeError, Error: err.Error()})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	selected, _ := s.root.Trade.Market()
	markets := s.root.Trade.Markets()
	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		price := s.root.OrderBook.MarketPriceByContractID(m.ContractID)
		if price == "" {
			price = "0.00"
		}
		out = append(out, marketResponse{
			ContractID:    m.ContractID,
			Symbol:        m.Symbol(),
			BaseAsset:     m.BaseToken.AssetID,
			QuoteAsset:    m.QuoteToken.AssetID,
			PriceDecimals: m.PriceDecimals,
			Precision:     m.Precision,
			MarketPrice:   price,
			Selected:      m.ContractID == selected.ContractID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSelectMarket(w http.ResponseWriter, r *http.Request) {
	market, err := s.root.ChangeMarket(r.Context(), mux.Vars(r)["market"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"market": market.Symbol()})
}

func (s *Server) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	top := s.opts.Top
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid top", http.StatusBadRequest)
			return
		}
		top = n
	}
	snap := s.root.OrderBook.Snapshot(top)
	writeJSON(w, http.StatusOK, buildOrderbookMessage(snap, 0))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.root.OrderBook.Snapshot(0)
	writeJSON(w, http.StatusOK, buildStatsMessage(snap, 0))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.root.OrderBook.Trades()
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeResponse{
			ID:        t.ID,
			Price:     units.FormatUnits(t.TradePrice, t.PriceDecimals).String(),
			Size:      units.FormatUnits(t.TradeSize, t.BaseToken.Decimals).String(),
			Side:      string(t.Side),
			Timestamp: t.Timestamp.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	candles, histogram := s.root.OrderBook.OHLCV()
	out := make([]candleResponse, 0, len(candles))
	for i, c := range candles {
		cr := candleResponse{
			Time:   c.Time,
			Open:   c.Open.String(),
			High:   c.High.String(),
			Low:    c.Low.String(),
			Close:  c.Close.String(),
			Volume: c.Volume.String(),
		}
		if i < len(histogram) {
			cr.Color = histogram[i].Color
		}
		out = append(out, cr)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	tokens := s.root.Network().GetTokenList()
	out := make([]balanceResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, balanceResponse{
			AssetID:  t.AssetID,
			Symbol:   t.Symbol,
			Wallet:   s.root.Balances.FormatBalance(t.AssetID, t.Decimals),
			Contract: s.root.Balances.FormatContractBalanceInfo(t.AssetID, t.Decimals),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb := s.root.Leaderboard
	rows := lb.Rows()
	out := leaderboardResponse{
		Filter:  lb.Filter().Title,
		Page:    lb.Page(),
		PerPage: lb.PerPage(),
		Sort:    string(lb.Sort().Field) + ":" + string(lb.Sort().Side),
		Rows:    make([]leaderboardRow, 0, len(rows)),
	}
	for _, row := range rows {
		lr := leaderboardRow{
			Rank:       row.ID,
			Wallet:     row.WalletID,
			Volume:     row.TraderVolume.String(),
			TotalCount: row.TotalCount,
			IsYour:     row.IsYour,
		}
		if p, ok := lb.PnlFor(row.WalletID); ok {
			lr.Pnl = pnlForTimeline(p, lb.Filter().Timeline).String()
		}
		out.Rows = append(out.Rows, lr)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.root.Notifications.Toasts())
}

func pnlForTimeline(p sdk.TraderPnl, timeline string) decimal.Decimal {
	switch timeline {
	case "7d":
		return p.PnlWeek
	case "31d":
		return p.PnlMonth
	case "all":
		return p.PnlAll
	default:
		return p.PnlDay
	}
}
