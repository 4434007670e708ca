package api

import (
	"encoding/json"
	"time"

	"CopyRelay/internal/domain/models"
	smetrics "CopyRelay/internal/service/metrics"
	"CopyRelay/internal/service/ratelimit"
	"CopyRelay/internal/service/stream"
	"CopyRelay/internal/usecase"
	"CopyRelay/pkg/cache"
	xhttp "CopyRelay/pkg/http"
	xlogger "CopyRelay/pkg/logger"
	"CopyRelay/pkg/metrics"
	"CopyRelay/pkg/queue"

	"github.com/labstack/echo/v4"
)

// serverVersion is reported by the banner endpoint.
const serverVersion = "1.0.0"

// RelayConfig carries the handler's collaborators and tunables.
type RelayConfig struct {
	Logger   *xlogger.Logger
	Registry *usecase.Registry
	Signals  *usecase.SignalLog
	Recorder *metrics.Recorder

	// Optional collaborators; nil disables the feature.
	Hub     *stream.Hub
	Queue   queue.QueueService
	Cache   cache.Service
	Limiter *ratelimit.Limiter

	APIKey        string
	QueryCacheTTL time.Duration
	RateCapacity  float64
	RateRefill    float64
}

// RelayHandler implements the copy-trade relay HTTP surface. Response
// bodies are the contract deployed master/slave terminals parse; handlers
// translate requests into registry/log calls and nothing else.
type RelayHandler struct {
	cfg RelayConfig
}

func NewRelayHandler(cfg RelayConfig) *RelayHandler {
	smetrics.Register()
	return &RelayHandler{cfg: cfg}
}

func (h *RelayHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Home)
	e.POST("/signal", h.Signal)
	e.GET("/signals", h.Signals)
	e.POST("/register", h.Register)
	e.GET("/connected-accounts", h.ConnectedAccounts)
	e.POST("/heartbeat", h.Heartbeat)
	e.POST("/disconnect", h.Disconnect)
	e.GET("/master/status", h.MasterStatus)
	e.GET("/health", h.Health)
	e.GET("/debug/accounts", h.DebugAccounts)
	if h.cfg.Hub != nil {
		e.GET("/ws/signals", h.StreamSignals)
	}
}

func (h *RelayHandler) Home(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"message": "Copy Trading Server is running",
		"version": serverVersion,
		"endpoints": map[string]string{
			"signal":   "POST /signal",
			"signals":  "GET /signals",
			"register": "POST /register",
			"accounts": "GET /connected-accounts",
			"health":   "GET /health",
			"debug":    "GET /debug/accounts",
		},
	})
}

// Signal accepts a trade instruction from the master terminal.
func (h *RelayHandler) Signal(c echo.Context) error {
	defer observe("signal", time.Now())

	key := c.Request().Header.Get("x-api-key")
	if key != h.cfg.APIKey {
		smetrics.EndpointErrors.WithLabelValues("signal").Inc()
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("Invalid API key"))
	}
	if h.cfg.Limiter != nil && !h.cfg.Limiter.Allow(key, h.cfg.RateCapacity, h.cfg.RateRefill) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("Rate limit exceeded"))
	}

	var fields map[string]interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&fields); err != nil || len(fields) == 0 {
		smetrics.EndpointErrors.WithLabelValues("signal").Inc()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("No data provided"))
	}

	// The master id is a snapshot copied into the signal, not a live
	// reference; it stays meaningful after the master changes.
	sig := h.cfg.Signals.Publish(fields, h.cfg.Registry.MasterID())

	action, _ := fields["action"].(string)
	symbol, _ := fields["symbol"].(string)
	h.cfg.Recorder.RecordSignal(action, symbol)
	h.cfg.Recorder.SetRetainedSignals(h.cfg.Signals.Len())
	h.cfg.Logger.Info("signal received",
		xlogger.String("signal_id", sig.ID),
		xlogger.String("action", action),
		xlogger.String("symbol", symbol),
		xlogger.String("master_account", sig.Master),
	)

	h.invalidateSignalsCache(c)
	if h.cfg.Queue != nil {
		if err := h.cfg.Queue.PublishMessage(c.Request().Context(), usecase.MsgSignalAccepted, sig); err != nil {
			h.cfg.Logger.Warn("archive dispatch failed", xlogger.Error(err))
		}
	}
	if h.cfg.Hub != nil {
		h.cfg.Hub.Broadcast(sig)
	}

	return xhttp.SuccessResponse(c, models.SignalAcceptedResponse{
		Status:   "success",
		SignalID: sig.ID,
		Message:  "Signal processed",
	})
}

// Signals returns signals published within the last `hours` hours.
func (h *RelayHandler) Signals(c echo.Context) error {
	defer observe("signals", time.Now())

	hours := xhttp.ParseIntDefault(c.QueryParam("hours"), 24)
	cacheKey := cache.GenerateKeyWithParams("signals", hours)

	if h.cacheEnabled() {
		var cached models.SignalsResponse
		if err := h.cfg.Cache.Get(c.Request().Context(), cacheKey, &cached); err == nil {
			return xhttp.SuccessResponse(c, cached)
		}
	}

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	sigs := h.cfg.Signals.Since(cutoff)
	resp := models.SignalsResponse{Signals: sigs, Count: len(sigs)}

	if h.cacheEnabled() {
		if err := h.cfg.Cache.Set(c.Request().Context(), cacheKey, resp, h.cfg.QueryCacheTTL); err != nil {
			h.cfg.Logger.Warn("signals cache set failed", xlogger.Error(err))
		}
	}
	return xhttp.SuccessResponse(c, resp)
}

// Register connects a master or slave terminal.
func (h *RelayHandler) Register(c echo.Context) error {
	defer observe("register", time.Now())

	req := new(models.RegisterRequest)
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		smetrics.EndpointErrors.WithLabelValues("register").Inc()
		return xhttp.ValidationFailedResponse(c, verr)
	}

	acc, err := h.cfg.Registry.Register(usecase.RegisterParams{
		AccountID:    req.AccountID,
		Name:         req.Name,
		IsMaster:     req.IsMaster,
		Equity:       req.Equity,
		Profit:       req.Profit,
		IPAddress:    c.RealIP(),
		LicenseOwner: req.LicenseOwner,
		LicenseKey:   req.LicenseKey,
	})
	if err != nil {
		smetrics.EndpointErrors.WithLabelValues("register").Inc()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("Account ID required").WithError(err))
	}

	role := "slave"
	if acc.IsMaster {
		role = "master"
	}
	h.cfg.Recorder.RecordRegistration(role)
	total, _, _ := h.cfg.Registry.Counts()
	h.cfg.Recorder.SetConnectedAccounts(total)
	h.cfg.Logger.Info("account registered",
		xlogger.String("role", role),
		xlogger.String("account_id", acc.AccountID),
		xlogger.String("name", acc.Name),
		xlogger.String("license_owner", acc.LicenseOwner),
		xlogger.Int("total_accounts", total),
	)

	return xhttp.SuccessResponse(c, models.RegisterResponse{
		Status:    "success",
		AccountID: acc.AccountID,
		IsMaster:  acc.IsMaster,
	})
}

func (h *RelayHandler) ConnectedAccounts(c echo.Context) error {
	defer observe("connected_accounts", time.Now())
	return xhttp.SuccessResponse(c, h.accountsSnapshot())
}

// DebugAccounts mirrors /connected-accounts; kept for the operator scripts
// that query it.
func (h *RelayHandler) DebugAccounts(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.accountsSnapshot())
}

// Heartbeat refreshes an account's liveness. Unknown accounts are logged
// and acked: terminals retry registration on their own schedule and a hard
// error here would make them disconnect instead.
func (h *RelayHandler) Heartbeat(c echo.Context) error {
	defer observe("heartbeat", time.Now())

	req := new(models.HeartbeatRequest)
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationFailedResponse(c, verr)
	}

	if h.cfg.Registry.Heartbeat(req.AccountID, req.Equity, req.Profit) {
		h.cfg.Recorder.RecordHeartbeat("known")
	} else {
		h.cfg.Recorder.RecordHeartbeat("unknown")
		h.cfg.Logger.Warn("heartbeat from unknown account",
			xlogger.String("account_id", req.AccountID),
		)
	}
	return xhttp.SuccessResponse(c, models.StatusResponse{Status: "success"})
}

// Disconnect marks an account disconnected. Idempotent for unknown ids.
func (h *RelayHandler) Disconnect(c echo.Context) error {
	defer observe("disconnect", time.Now())

	req := new(models.DisconnectRequest)
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationFailedResponse(c, verr)
	}

	if h.cfg.Registry.Disconnect(req.AccountID) {
		h.cfg.Logger.Info("account disconnected",
			xlogger.String("account_id", req.AccountID),
		)
	}
	total, _, _ := h.cfg.Registry.Counts()
	h.cfg.Recorder.SetConnectedAccounts(total)
	return xhttp.SuccessResponse(c, models.StatusResponse{Status: "success"})
}

func (h *RelayHandler) MasterStatus(c echo.Context) error {
	defer observe("master_status", time.Now())

	resp := models.MasterStatusResponse{}
	if m, ok := h.cfg.Registry.Master(); ok {
		resp.MasterAccount = &m
		resp.HasMaster = true
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *RelayHandler) Health(c echo.Context) error {
	total, masters, slaves := h.cfg.Registry.Counts()
	return xhttp.SuccessResponse(c, models.HealthResponse{
		Status:        "healthy",
		Timestamp:     models.UnixSeconds(time.Now()),
		AccountsCount: total,
		SlaveCount:    slaves,
		MasterCount:   masters,
		SignalsCount:  h.cfg.Signals.Len(),
		MasterOnline:  h.cfg.Registry.MasterID() != models.NoMaster,
	})
}

// StreamSignals upgrades to a WebSocket carrying every accepted signal.
func (h *RelayHandler) StreamSignals(c echo.Context) error {
	return h.cfg.Hub.Subscribe(c.Response(), c.Request())
}

func (h *RelayHandler) accountsSnapshot() models.AccountsResponse {
	accounts, master := h.cfg.Registry.Snapshot()
	resp := models.AccountsResponse{
		Accounts:   accounts,
		TotalCount: len(accounts),
		Timestamp:  models.UnixSeconds(time.Now()),
	}
	if master != "" {
		resp.MasterAccount = &master
	}
	return resp
}

func (h *RelayHandler) cacheEnabled() bool {
	return h.cfg.Cache != nil && h.cfg.QueryCacheTTL > 0
}

func (h *RelayHandler) invalidateSignalsCache(c echo.Context) {
	if !h.cacheEnabled() {
		return
	}
	if err := h.cfg.Cache.DeleteByPattern(c.Request().Context(), "signals:*"); err != nil {
		h.cfg.Logger.Warn("signals cache invalidation failed", xlogger.Error(err))
	}
}

func observe(endpoint string, start time.Time) {
	smetrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
