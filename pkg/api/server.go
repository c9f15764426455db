package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/openvenue/matchd/pkg/book"
	"github.com/openvenue/matchd/pkg/txlog"
)

// Server exposes the ingestion surface and operational state over REST,
// Prometheus and WebSocket. The matching path never depends on it.
type Server struct {
	book     *book.Book
	reporter *txlog.Reporter
	router   *mux.Router
	hub      *Hub
	log      *zap.SugaredLogger
}

func NewServer(b *book.Book, reporter *txlog.Reporter, log *zap.SugaredLogger) *Server {
	s := &Server{
		book:     b,
		reporter: reporter,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/rounds/latest", s.handleGetLatestRound).Methods("GET")
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// RoundSink adapts the WebSocket hub into a round-log sink so connected
// clients see each settled round as it happens.
func (s *Server) RoundSink() txlog.Sink {
	return &hubSink{hub: s.hub}
}

// Start runs the HTTP server. Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	bidLevels := s.book.BidLevels()
	askLevels := s.book.AskLevels()

	bids := make([]PriceLevel, len(bidLevels))
	for i, l := range bidLevels {
		bids[i] = PriceLevel{Price: l.Price, Orders: l.Orders}
	}
	asks := make([]PriceLevel, len(askLevels))
	for i, l := range askLevels {
		asks[i] = PriceLevel{Price: l.Price, Orders: l.Orders}
	}

	buys, sells := s.book.Depth()
	respondJSON(w, OrderbookSnapshot{
		Bids:      bids,
		Asks:      asks,
		BuyDepth:  buys,
		SellDepth: sells,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetLatestRound(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.reporter.Latest()
	if !ok {
		respondError(w, http.StatusNotFound, "no rounds settled yet", "")
		return
	}
	respondJSON(w, latest)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	var side book.Side
	switch req.Side {
	case "buy":
		side = book.Buy
	case "sell":
		side = book.Sell
	default:
		respondError(w, http.StatusBadRequest, "side must be buy or sell", "")
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be a positive decimal string", "")
		return
	}

	// Venue order ids are 32-byte tokens; hash a fresh uuid into one.
	id := crypto.Keccak256Hash([]byte(uuid.NewString())).Hex()

	order := &book.Order{ID: id, Side: side, Price: req.Price, Amount: amount}
	if !s.book.Add(order) {
		respondError(w, http.StatusUnprocessableEntity, "order rejected", "price and amount must be positive")
		return
	}

	s.log.Infow("order_rested", "id", id, "side", req.Side, "price", req.Price, "amount", req.Amount)
	respondJSON(w, SubmitOrderResponse{ID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !s.book.Cancel(req.ID) {
		respondError(w, http.StatusNotFound, "order not found", req.ID)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r)
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Details: details})
}
