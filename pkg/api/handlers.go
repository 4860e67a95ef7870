package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/din-network/din-monitor/pkg/memory"
	"github.com/din-network/din-monitor/pkg/staking"
	"github.com/din-network/din-monitor/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxRequestBytes = 1 << 20

func (s *Server) respondOK(w http.ResponseWriter, response any) {
	s.respond(w, http.StatusOK, response)
}

func (s *Server) respond(w http.ResponseWriter, code int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Sugar().Warnw("could not encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, ErrorResponse{Code: code, Message: message})
}

// respondErr maps domain errors onto status codes.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Sugar().Errorw("request failed", "error", err)
	}
	s.respondError(w, code, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(dst); err != nil {
		return badRequest("could not decode request: %v", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, HealthResponse{Status: "ok", Time: s.now().UTC()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.registry.Status(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, status)
}

///
/// Operators and staking
///

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if req.OperatorID == "" {
		s.respondErr(w, badRequest("operatorId is required"))
		return
	}

	operator, err := s.ledger.Register(r.Context(), staking.RegistrationRequest{
		OperatorID:    req.OperatorID,
		WalletAddress: req.WalletAddress,
		InitialStake:  req.InitialStake,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respond(w, http.StatusCreated, operator)
}

func (s *Server) handleListOperators(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		operators []*types.Operator
		err       error
	)
	switch filter := r.URL.Query().Get("filter"); filter {
	case "":
		operators, err = s.registry.ListAll(ctx)
	case "active":
		operators, err = s.registry.ListActive(ctx)
	case "slashed":
		operators, err = s.registry.ListSlashed(ctx)
	default:
		err = badRequest("unknown filter %q", filter)
	}
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, operators)
}

func (s *Server) handleTotalStaked(w http.ResponseWriter, r *http.Request) {
	total, err := s.ledger.GetTotalStaked(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, TotalStakedResponse{TotalStaked: total})
}

func (s *Server) handleGetOperator(w http.ResponseWriter, r *http.Request) {
	operator, err := s.registry.MustGet(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, operator)
}

func (s *Server) decodeAmount(w http.ResponseWriter, r *http.Request) (types.Amount, error) {
	var req AmountRequest
	if err := decode(w, r, &req); err != nil {
		return types.Amount{}, err
	}
	if req.Amount == nil {
		return types.Amount{}, badRequest("amount is required")
	}
	return *req.Amount, nil
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	amount, err := s.decodeAmount(w, r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	operator, err := s.ledger.Stake(r.Context(), mux.Vars(r)["id"], amount)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, operator)
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	amount, err := s.decodeAmount(w, r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	operator, err := s.ledger.Unstake(r.Context(), mux.Vars(r)["id"], amount)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, operator)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.ledger.GetEvents(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, events)
}

///
/// Violations and slashing
///

func (s *Server) handleGetViolations(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := types.TimeFromString(raw)
		if err != nil {
			s.respondErr(w, badRequest("%v", err))
			return
		}
		since = &t
	}

	violations, err := s.slashing.GetViolations(r.Context(), mux.Vars(r)["id"], since)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, violations)
}

func (s *Server) handleRecordViolation(w http.ResponseWriter, r *http.Request) {
	var violation types.Violation
	if err := decode(w, r, &violation); err != nil {
		s.respondErr(w, err)
		return
	}
	if err := violation.Validate(); err != nil {
		s.respondErr(w, badRequest("%v", err))
		return
	}

	id := mux.Vars(r)["id"]
	err := s.slashing.RecordViolation(r.Context(), id, violation)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	violations, err := s.slashing.GetViolations(r.Context(), id, nil)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respond(w, http.StatusAccepted, violations)
}

func (s *Server) handleSlash(w http.ResponseWriter, r *http.Request) {
	var req SlashRequest
	if err := decode(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if len(req.Violations) == 0 {
		s.respondErr(w, badRequest("at least one violation is required"))
		return
	}
	for i := range req.Violations {
		v := &req.Violations[i]
		if err := v.Validate(); err != nil {
			s.respondErr(w, badRequest("violation %d: %v", i, err))
			return
		}
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.Timestamp.IsZero() {
			v.Timestamp = s.now().UTC()
		}
	}

	id := mux.Vars(r)["id"]
	amount, err := s.slashing.Slash(r.Context(), id, req.Violations, req.Reason)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, SlashResponse{OperatorID: id, Amount: amount})
}

func (s *Server) handleOutboxStats(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, s.slashing.Outbox().Stats())
}

///
/// Performance
///

func (s *Server) handleRecordMetrics(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if err := decode(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if req.OperatorID == "" || req.Metrics == nil {
		s.respondErr(w, badRequest("operatorId and metrics are required"))
		return
	}
	if req.Metrics.Timestamp.IsZero() {
		req.Metrics.Timestamp = s.now().UTC()
	}

	report, err := s.performance.RecordMetrics(r.Context(), req.OperatorID, *req.Metrics)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, report)
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.registry.MustGet(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondErr(w, badRequest("invalid limit %q", raw))
			return
		}
		limit = n
	}
	s.respondOK(w, s.performance.GetMetrics(id, limit))
}

func (s *Server) handleGetLatestMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.registry.MustGet(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}

	latest, ok := s.performance.GetLatestMetrics(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "no metrics recorded for operator "+id)
		return
	}
	s.respondOK(w, latest)
}

///
/// Reports
///

func (s *Server) handleOperatorReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reporter.GetOperatorReport(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, report)
}

func (s *Server) handleOperatorsReport(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reporter.GetOperatorsReport(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, reports)
}

func (s *Server) handleViolationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reporter.GetViolationStats(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, stats)
}

func (s *Server) handleBusStats(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, s.bus.GetStats())
}

///
/// Shared memory
///

func (s *Server) handleGetKV(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var value any
	ok, err := s.memory.KV.Get(r.Context(), key, &value)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "no value for key "+key)
		return
	}
	s.respondOK(w, KVResponse{Key: key, Value: value})
}

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	doc, ok := s.memory.Docs.Read(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "no document "+id)
		return
	}
	s.respondOK(w, doc)
}

func (s *Server) handleQueryDocs(w http.ResponseWriter, r *http.Request) {
	var filter memory.Document
	if err := decode(w, r, &filter); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondOK(w, s.memory.Docs.Query(filter))
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var req VectorSearchRequest
	if err := decode(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}

	embedding := req.Embedding
	if len(embedding) == 0 && req.OperatorID != "" {
		latest, ok := s.performance.GetLatestMetrics(req.OperatorID)
		if !ok {
			s.respondError(w, http.StatusNotFound, "no metrics recorded for operator "+req.OperatorID)
			return
		}
		embedding = memory.Embedding(latest)
	}
	if len(embedding) == 0 {
		s.respondErr(w, badRequest("embedding or operatorId is required"))
		return
	}
	k := req.K
	if k <= 0 {
		k = 5
	}

	results, err := s.memory.Vec.Search(r.Context(), embedding, k, req.Filter)
	if err != nil {
		s.respondErr(w, badRequest("%v", err))
		return
	}
	s.respondOK(w, VectorSearchResponse{Results: results})
}
