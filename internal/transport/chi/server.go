// Package chi exposes the admin/observability HTTP surface and the
// websocket attach endpoint.
package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/db"
	"github.com/homewatch/homewatch/internal/domain"
	"github.com/homewatch/homewatch/internal/pipeline"
	"github.com/homewatch/homewatch/internal/session"
)

// Server wires the pipeline into HTTP handlers.
type Server struct {
	pipeline *pipeline.Pipeline
	hub      *session.Hub
	store    db.Store
	wsCfg    session.WSConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates the HTTP API server.
func NewServer(p *pipeline.Pipeline, hub *session.Hub, store db.Store, wsCfg session.WSConfig, logger *zap.Logger) *Server {
	return &Server{
		pipeline: p,
		hub:      hub,
		store:    store,
		wsCfg:    wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy belongs to the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Mount registers all routes on the router.
func (s *Server) Mount(r chi.Router) {
	r.Get("/healthz", s.healthCheck)
	r.Get("/metrics", s.metrics)
	r.Get("/v1/ws", s.attachWebsocket)

	r.Route("/v1/pipeline", func(r chi.Router) {
		r.Get("/metrics", s.pipelineMetrics)
		r.Get("/streams", s.listStreams)
		r.Post("/loops/start", s.startLoops)
		r.Post("/loops/stop", s.stopLoops)
		r.Post("/cache/clear", s.clearCache)
		r.Post("/updates", s.injectUpdate)
		r.Get("/updates/recent", s.recentUpdates)
	})
}

// pipelineMetrics handles GET /v1/pipeline/metrics.
func (s *Server) pipelineMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Snapshot())
}

// listStreams handles GET /v1/pipeline/streams.
func (s *Server) listStreams(w http.ResponseWriter, r *http.Request) {
	streams := s.pipeline.Registry.Streams()
	writeJSON(w, http.StatusOK, map[string]any{
		"streams": streams,
		"count":   len(streams),
	})
}

// startLoops handles POST /v1/pipeline/loops/start.
func (s *Server) startLoops(w http.ResponseWriter, r *http.Request) {
	// Loops outlive the request; detach from the request context.
	s.pipeline.StartLoops(context.Background())
	writeJSON(w, http.StatusOK, map[string]bool{"running": s.pipeline.LoopsRunning()})
}

// stopLoops handles POST /v1/pipeline/loops/stop.
func (s *Server) stopLoops(w http.ResponseWriter, r *http.Request) {
	s.pipeline.StopLoops()
	writeJSON(w, http.StatusOK, map[string]bool{"running": s.pipeline.LoopsRunning()})
}

// clearCache handles POST /v1/pipeline/cache/clear.
func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Cache.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "cache clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// injectUpdate handles POST /v1/pipeline/updates, the ingestion hook
// for upstream listing feeds.
func (s *Server) injectUpdate(w http.ResponseWriter, r *http.Request) {
	var ev domain.PropertyUpdateEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	switch ev.Kind {
	case domain.UpdateNewListing, domain.UpdatePriceChange, domain.UpdateStatusChange, domain.UpdateRemoved:
	default:
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown update kind")
		return
	}
	if ev.ListingID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "listing_id is required")
		return
	}

	s.pipeline.Fanout.ProcessUpdate(ev)
	w.WriteHeader(http.StatusAccepted)
}

// recentUpdates handles GET /v1/pipeline/updates/recent.
func (s *Server) recentUpdates(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	updates := s.pipeline.Fanout.RecentUpdates(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"updates": updates,
		"count":   len(updates),
	})
}

// healthCheck handles GET /healthz.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "ok"}
	status := http.StatusOK

	if err := s.store.Ping(r.Context()); err != nil {
		checks["store"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	writeJSON(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}

// metrics handles GET /metrics.
func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// attachWebsocket handles GET /v1/ws?user_id=... — upgrades the
// connection, registers the channel in the session hub, and routes
// inbound messages until the connection closes. Streams opened over
// this connection are closed on session loss.
func (s *Server) attachWebsocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}

	ch := session.NewWSChannel(conn, userID, s.wsCfg, s.logger)
	s.hub.Register(ch)
	defer func() {
		s.hub.Unregister(ch.ID())
		ch.Close()
	}()

	_ = ch.Send(domain.StreamMessage{
		Type: domain.MsgWelcome,
		Info: "connected",
	})

	owned := make(map[string]bool)
	ch.Run(func(in session.Inbound) {
		s.handleInbound(ch, userID, in, owned)
	})

	for id := range owned {
		s.pipeline.Registry.CloseStream(id)
	}
}

func (s *Server) handleInbound(ch *session.WSChannel, userID string, in session.Inbound, owned map[string]bool) {
	ctx := context.Background()

	switch in.Type {
	case session.InOpenStream:
		filters := domain.SearchFilters{}
		if in.Filters != nil {
			filters = *in.Filters
		}
		info, err := s.pipeline.Registry.OpenStream(ctx, userID, in.Query, filters, ch)
		if err != nil {
			s.logger.Warn("open stream failed",
				zap.String("user_id", userID), zap.Error(err))
			return
		}
		owned[info.ID] = true

	case session.InUpdateFilters:
		if in.Filters == nil {
			s.logger.Warn("update_filters without filters, ignoring",
				zap.String("user_id", userID))
			return
		}
		if err := s.pipeline.Registry.UpdateFilters(ctx, userID, *in.Filters); err != nil {
			s.logger.Warn("filter update failed",
				zap.String("user_id", userID), zap.Error(err))
		}

	case session.InForceRefresh:
		if err := s.pipeline.Registry.ForceRefresh(ctx, userID); err != nil {
			s.logger.Warn("forced refresh failed",
				zap.String("user_id", userID), zap.Error(err))
		}

	case session.InCloseStream:
		if in.StreamID == "" {
			return
		}
		s.pipeline.Registry.CloseStream(in.StreamID)
		delete(owned, in.StreamID)

	case session.InAction:
		if in.Action == nil {
			return
		}
		s.pipeline.Registry.RecordAction(ctx, userID, *in.Action)

	default:
		s.logger.Debug("unknown inbound message type, ignoring",
			zap.String("user_id", userID),
			zap.String("type", in.Type))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
