package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/projection"
	"VaultLedger/internal/query"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer wraps the gRPC server (health + reflection) and the HTTP/JSON
// API mux. The JSON surface is the primary query API; gRPC carries health
// checks for orchestration and reflection for tooling.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	deps          *ServerDeps
	healthChecker *observability.HealthChecker
}

// ServerDeps holds all dependencies needed by the API handlers.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	IngestService *ingestion.GRPCIngestService
	SnapshotMgr   *persistence.SnapshotManager
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

// NewGRPCServer creates the server pair.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		deps:          deps,
		healthChecker: deps.HealthChecker,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.grpcAddr)
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON API (blocking). Routes are
// registered on a gateway ServeMux so path templates and error shapes stay
// consistent with the gRPC ecosystem tooling.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	mux := runtime.NewServeMux()

	if err := s.registerRoutes(mux); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP gateway shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP API listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *GRPCServer) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/balances/{user_id}/{asset}", s.handleGetBalance},
		{"GET", "/v1/positions/{user_id}", s.handleListPositions},
		{"GET", "/v1/position/{position_id}", s.handleGetPosition},
		{"GET", "/v1/interest-history", s.handleInterestHistory},
		{"GET", "/v1/liquidation-history", s.handleLiquidationHistory},
		{"GET", "/v1/journals/{user_id}", s.handleListJournals},
		{"GET", "/v1/treasury", s.handleGetTreasury},
		{"GET", "/v1/admin/event-log", s.handleEventLogInfo},
		{"GET", "/v1/admin/integrity", s.handleVerifyIntegrity},
		{"POST", "/v1/admin/rebuild-projections", s.handleRebuildProjections},
		{"POST", "/v1/ingest/fund", s.handleInjectFund},
		{"POST", "/v1/ingest/price", s.handleInjectPrice},
		{"POST", "/v1/ingest/interest-sweep", s.handleInjectSweep},
		{"POST", "/v1/ingest/treasury-withdraw", s.handleInjectTreasuryWithdraw},
		{"POST", "/v1/ingest/stray-sweep", s.handleInjectStraySweep},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("route %s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

// ============================================================================
// Query handlers
// ============================================================================

func (s *GRPCServer) handleGetBalance(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	bal, err := s.deps.QueryService.GetBalance(r.Context(), userID, pathParams["asset"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, bal)
}

func (s *GRPCServer) handleListPositions(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	positions, err := s.deps.QueryService.GetPositions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"positions": positions})
}

func (s *GRPCServer) handleGetPosition(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	positionID, err := strconv.ParseInt(pathParams["position_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid position_id")
		return
	}

	pos, err := s.deps.QueryService.GetPosition(r.Context(), positionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, pos)
}

func (s *GRPCServer) handleInterestHistory(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	vaultID := optionalString(r, "vault_id")
	positionID := optionalInt64(r, "position_id")
	afterSeq := optionalInt64(r, "from_sequence")
	limit := pageSize(r, 50, 100)

	history, err := s.deps.QueryService.GetInterestHistory(r.Context(), vaultID, positionID, limit, afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"charges": history})
}

func (s *GRPCServer) handleLiquidationHistory(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	vaultID := optionalString(r, "vault_id")
	afterSeq := optionalInt64(r, "from_sequence")
	limit := pageSize(r, 50, 100)

	history, err := s.deps.QueryService.GetLiquidationHistory(r.Context(), vaultID, limit, afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"flows": history})
}

func (s *GRPCServer) handleListJournals(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	afterSeq := optionalInt64(r, "from_sequence")
	limit := pageSize(r, 100, 500)

	entries, err := s.deps.QueryService.GetJournalHistory(r.Context(), userID, limit, afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"journals": entries})
}

func (s *GRPCServer) handleGetTreasury(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	balances, err := s.deps.QueryService.GetTreasury(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"balances": balances})
}

// ============================================================================
// Admin handlers
// ============================================================================

func (s *GRPCServer) handleEventLogInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	latestSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"last_sequence":  latestSeq,
		"uptime_seconds": int64(time.Since(s.deps.StartTime).Seconds()),
	})
}

func (s *GRPCServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, report)
}

func (s *GRPCServer) handleRebuildProjections(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"rebuilt": true})
}

// ============================================================================
// Ingest handlers (admin/manual injection — rate limited downstream)
// ============================================================================

func (s *GRPCServer) handleInjectFund(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		UserID string `json:"user_id"`
		Asset  string `json:"asset"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if err := s.deps.IngestService.InjectWalletFund(r.Context(), userID, req.Asset, req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

func (s *GRPCServer) handleInjectPrice(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Asset        string `json:"asset"`
		RawPrice     int64  `json:"raw_price"`
		Decimals     uint8  `json:"decimals"`
		FeedSequence int64  `json:"feed_sequence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.deps.IngestService.InjectPriceUpdate(r.Context(), req.Asset, req.RawPrice, req.Decimals, req.FeedSequence); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

func (s *GRPCServer) handleInjectSweep(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Vault       string `json:"vault"`
		BlockHeight int64  `json:"block_height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.deps.IngestService.InjectInterestSweep(r.Context(), req.Vault, req.BlockHeight); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

func (s *GRPCServer) handleInjectTreasuryWithdraw(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Asset     string `json:"asset"`
		Amount    int64  `json:"amount"`
		Recipient string `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	recipient, err := uuid.Parse(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}
	if err := s.deps.IngestService.InjectTreasuryWithdraw(r.Context(), req.Asset, req.Amount, recipient); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

func (s *GRPCServer) handleInjectStraySweep(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Asset     string `json:"asset"`
		Recipient string `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	recipient, err := uuid.Parse(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}
	if err := s.deps.IngestService.InjectStraySweep(r.Context(), req.Asset, recipient); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"accepted": true})
}

// ============================================================================
// Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func optionalString(r *http.Request, key string) *string {
	if v := r.URL.Query().Get(key); v != "" {
		return &v
	}
	return nil
}

func optionalInt64(r *http.Request, key string) *int64 {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return &n
		}
	}
	return nil
}

func pageSize(r *http.Request, def, max int) int {
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}
