package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"guildhall.org/internal/auth"
	"guildhall.org/internal/guild"
	"guildhall.org/internal/height"
	"guildhall.org/internal/obs"
	"guildhall.org/internal/stream"
)

const (
	serviceName  = "guildhall"
	maxBodyBytes = 1 << 20
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe reports whether the storage backend behind the registry answers.
type ReadyProbe struct {
	Registry *guild.Registry
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Registry == nil {
		return nil
	}
	return rp.Registry.Ping(ctx)
}

// Options tunes the optional parts of the API.
type Options struct {
	Version string
	// Stream enables GET /v1/events.
	Stream *stream.Stream
	// ManualHeight enables POST /v1/height/advance for the contract admin.
	ManualHeight *height.Manual
	// IssueTokens enables POST /v1/auth/token. Dev setups only.
	IssueTokens   bool
	RateBurst     int
	RatePerSecond float64
}

// API is the HTTP layer over the guild registry.
type API struct {
	mux        *http.ServeMux
	reg        *guild.Registry
	issuer     *auth.Issuer
	stream     *stream.Stream
	manual     *height.Manual
	readyProbe readinessChecker
	version    string

	issueTokens bool
	rateBurst   int
	ratePerSec  float64
}

// New builds the API. reg and issuer are required.
func New(reg *guild.Registry, issuer *auth.Issuer, opts Options) *API {
	a := &API{
		mux:         http.NewServeMux(),
		reg:         reg,
		issuer:      issuer,
		stream:      opts.Stream,
		manual:      opts.ManualHeight,
		readyProbe:  ReadyProbe{Registry: reg},
		version:     opts.Version,
		issueTokens: opts.IssueTokens,
		rateBurst:   opts.RateBurst,
		ratePerSec:  opts.RatePerSecond,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	if a.issueTokens {
		a.mux.HandleFunc("POST /v1/auth/token", a.handleAuthToken)
	}
	a.mux.HandleFunc("GET /v1/height", a.getHeight)
	if a.manual != nil {
		a.mux.HandleFunc("POST /v1/height/advance", a.advanceHeight)
	}
	a.mux.HandleFunc("GET /v1/admin", a.getAdmin)
	a.mux.HandleFunc("PUT /v1/admin", a.setAdmin)
	a.mux.HandleFunc("GET /v1/events", a.Stream)

	a.mux.HandleFunc("POST /v1/guilds", a.createGuild)
	a.mux.HandleFunc("GET /v1/guilds/count", a.guildCount)
	a.mux.HandleFunc("GET /v1/guilds/{id}", a.getGuild)
	a.mux.HandleFunc("PATCH /v1/guilds/{id}", a.updateGuild)
	a.mux.HandleFunc("POST /v1/guilds/{id}/join", a.joinGuild)
	a.mux.HandleFunc("POST /v1/guilds/{id}/leave", a.leaveGuild)
	a.mux.HandleFunc("POST /v1/guilds/{id}/invite", a.inviteMember)
	a.mux.HandleFunc("POST /v1/guilds/{id}/contribute", a.contribute)
	a.mux.HandleFunc("POST /v1/guilds/{id}/transfer-ownership", a.transferOwnership)
	a.mux.HandleFunc("POST /v1/guilds/{id}/reputation", a.awardReputation)
	a.mux.HandleFunc("GET /v1/guilds/{id}/members/{principal}", a.getMember)
	a.mux.HandleFunc("PUT /v1/guilds/{id}/members/{principal}/role", a.setMemberRole)
	a.mux.HandleFunc("GET /v1/guilds/{id}/members/{principal}/voting-power", a.votingPower)

	a.mux.HandleFunc("POST /v1/guilds/{id}/proposals", a.createProposal)
	a.mux.HandleFunc("GET /v1/guilds/{id}/proposals/{pid}", a.getProposal)
	a.mux.HandleFunc("POST /v1/guilds/{id}/proposals/{pid}/votes", a.vote)
	a.mux.HandleFunc("GET /v1/guilds/{id}/proposals/{pid}/votes/{principal}", a.getVote)
	a.mux.HandleFunc("POST /v1/guilds/{id}/proposals/{pid}/finalize", a.finalizeProposal)
	a.mux.HandleFunc("POST /v1/guilds/{id}/proposals/{pid}/execute", a.executeProposal)

	a.mux.HandleFunc("POST /v1/guilds/{id}/assets", a.addAsset)
	a.mux.HandleFunc("GET /v1/guilds/{id}/assets/{aid}", a.getAsset)
	a.mux.HandleFunc("GET /v1/guilds/{id}/assets/{aid}/permissions/{role}", a.getPermissions)
	a.mux.HandleFunc("PUT /v1/guilds/{id}/assets/{aid}/permissions/{role}", a.setPermissions)
	a.mux.HandleFunc("GET /v1/guilds/{id}/assets/{aid}/access", a.canAccess)
}

// Handler returns the fully wrapped handler for the HTTP server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, maxBodyBytes)
	if a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorBody(w, r, code, map[string]any{"error": msg})
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, code int, payload map[string]any) {
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func pathUint(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, errors.New(name + " must be an unsigned integer")
	}
	return v, nil
}

// handleGuildError maps registry failures onto HTTP statuses. Domain errors
// carry their numeric code in the body.
func handleGuildError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *guild.Error
	if !errors.As(err, &derr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, r, http.StatusServiceUnavailable, "request cancelled")
			return
		}
		obs.Logger().ErrorContext(r.Context(), "registry failure",
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeErrorBody(w, r, statusFor(derr), map[string]any{
		"error": derr.Msg,
		"code":  derr.Code,
	})
}

func statusFor(err *guild.Error) int {
	switch err {
	case guild.ErrNotAuthorized, guild.ErrNotMember:
		return http.StatusForbidden
	case guild.ErrGuildNotFound, guild.ErrProposalNotFound, guild.ErrAssetNotFound:
		return http.StatusNotFound
	case guild.ErrAlreadyMember, guild.ErrAlreadyVoted, guild.ErrGuildAlreadyExists, guild.ErrConflict,
		guild.ErrVotingClosed, guild.ErrProposalNotPassed:
		return http.StatusConflict
	case guild.ErrInsufficientStake, guild.ErrInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusBadRequest
	}
}
