// Package server exposes the census verifier over HTTP.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/netstatehq/zk-census/verifier"
)

const defaultListLimit = 100

type Handler struct {
	log           zerolog.Logger
	svc           *verifier.Service
	scopeDuration int64
}

func NewHandler(log zerolog.Logger, svc *verifier.Service, scopeDuration int64) *Handler {
	return &Handler{log: log, svc: svc, scopeDuration: scopeDuration}
}

// Routes installs the full HTTP surface on the router.
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/root", h.Root)
	r.GET("/proof/:leafIndex", h.Proof)
	r.GET("/proof-by-commitment/:commitment", h.ProofByCommitment)
	r.GET("/citizens", h.Citizens)
	r.GET("/citizens/:index", h.Citizen)
	r.POST("/citizens", h.Register)
	r.GET("/scope", h.Scope)
	r.POST("/scope/advance", h.AdvanceScope)
	r.GET("/stats", h.Stats)
	r.GET("/health", h.Health)
	r.GET("/verifier-pubkey", h.VerifierPubkey)
	r.POST("/verify", h.Verify)
}

// abortErr maps the error taxonomy onto status codes. Anything that is
// not a *verifier.Error is an internal failure.
func (h *Handler) abortErr(c *gin.Context, err error) {
	var ve *verifier.Error
	if !errors.As(err, &ve) {
		h.log.Error().Err(err).Msg("unclassified failure")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Kind: "InternalError"})
		return
	}

	status := http.StatusInternalServerError
	switch ve.Kind {
	case verifier.KindInput, verifier.KindCrypto, verifier.KindReplay:
		status = http.StatusBadRequest
	case verifier.KindConfig:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, ErrorResponse{Error: ve.Error(), Code: ve.Code, Kind: ve.Kind.String()})
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, RootResponse{
		Root:      elementHex(h.svc.Tree().Root()),
		LeafCount: h.svc.Tree().LeafCount(),
	})
}

func (h *Handler) Proof(c *gin.Context) {
	idx, err := strconv.ParseUint(c.Param("leafIndex"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "leafIndex must be a non-negative integer"})
		return
	}
	p, perr := h.svc.InclusionProof(uint32(idx))
	if perr != nil {
		h.notFoundOr(c, perr)
		return
	}
	c.JSON(http.StatusOK, proofResponse(p, nil))
}

func (h *Handler) ProofByCommitment(c *gin.Context) {
	p, rec, err := h.svc.InclusionProofByCommitment(c.Param("commitment"))
	if err != nil {
		h.notFoundOr(c, err)
		return
	}
	c.JSON(http.StatusOK, proofResponse(p, rec))
}

// notFoundOr renders not-found style input errors as 404 and defers the
// rest to the taxonomy mapping.
func (h *Handler) notFoundOr(c *gin.Context, err error) {
	var ve *verifier.Error
	if errors.As(err, &ve) &&
		(ve.Code == verifier.CodeLeafOutOfRange || ve.Code == verifier.CodeCitizenNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: ve.Error(), Code: ve.Code, Kind: ve.Kind.String()})
		return
	}
	h.abortErr(c, err)
}

func (h *Handler) Citizens(c *gin.Context) {
	offset, err := strconv.ParseUint(c.DefaultQuery("offset", "0"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "offset must be a non-negative integer", Kind: "InputError"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Kind: "InputError"})
		return
	}
	if limit > defaultListLimit {
		limit = defaultListLimit
	}

	recs, rerr := h.svc.Store().Citizens(uint32(offset), limit)
	if rerr != nil {
		h.abortErr(c, rerr)
		return
	}
	views := make([]CitizenView, len(recs))
	for i, rec := range recs {
		views[i] = citizenView(rec)
	}
	c.JSON(http.StatusOK, gin.H{"citizens": views, "count": len(views)})
}

func (h *Handler) Citizen(c *gin.Context) {
	idx, err := strconv.ParseUint(c.Param("index"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "index must be a non-negative integer"})
		return
	}
	rec, rerr := h.svc.Store().CitizenByIndex(uint32(idx))
	if rerr != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "citizen not found", Code: verifier.CodeCitizenNotFound})
		return
	}
	c.JSON(http.StatusOK, citizenView(rec))
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "InputError"})
		return
	}
	rec, root, err := h.svc.Register(req.Commitment, req.Name)
	if err != nil {
		h.abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, RegisterResponse{
		Success: true,
		Citizen: citizenView(rec),
		Root:    elementHex(root),
	})
}

func (h *Handler) Scope(c *gin.Context) {
	ss, err := h.svc.CurrentScope()
	if err != nil {
		h.abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ScopeResponse{
		Scope:      ss.Scope,
		StartedAt:  ss.StartedAt,
		Duration:   h.scopeDuration,
		Population: ss.Population,
	})
}

func (h *Handler) AdvanceScope(c *gin.Context) {
	old, cur, err := h.svc.AdvanceScope()
	if err != nil {
		h.abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, AdvanceScopeResponse{
		OldScope:        old.Scope,
		NewScope:        cur.Scope,
		FinalPopulation: old.Population,
	})
}

// Stats is a peripheral read endpoint: on store failure it substitutes
// safe defaults and logs the substitution instead of erroring.
func (h *Handler) Stats(c *gin.Context) {
	resp := StatsResponse{LeafCount: h.svc.Tree().LeafCount()}

	ss, err := h.svc.CurrentScope()
	if err != nil {
		h.log.Warn().Err(err).Msg("stats: scope state unavailable, substituting defaults")
		resp.Degraded = true
		c.JSON(http.StatusOK, resp)
		return
	}
	resp.Scope = ss.Scope
	resp.Population = ss.Population

	if total, err := h.svc.Store().CitizenCount(); err == nil {
		resp.TotalRegistered = total
	} else {
		h.log.Warn().Err(err).Msg("stats: citizen count unavailable, substituting defaults")
		resp.Degraded = true
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Health(c *gin.Context) {
	consumed, err := h.svc.Store().ConsumedCount()
	if err != nil {
		h.log.Warn().Err(err).Msg("health: consumed count unavailable")
	}

	status := "ok"
	if !h.svc.Ready() {
		status = "degraded"
	}
	pubkey := ""
	if pk := h.svc.SignerPublicKey(); pk != nil {
		pubkey = hexutil.Encode(pk)
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:                 status,
		VerifierPubkey:         pubkey,
		HasVerificationKey:     h.svc.HasVerifyingKey(),
		ConsumedNullifierCount: consumed,
	})
}

func (h *Handler) VerifierPubkey(c *gin.Context) {
	pk := h.svc.SignerPublicKey()
	if pk == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "signer keypair not loaded", Code: verifier.CodeNotReady, Kind: "ConfigError",
		})
		return
	}
	c.JSON(http.StatusOK, PubkeyResponse{
		PublicKey: hexutil.Encode(pk),
		Encoded:   base58.CheckEncode(pk, 0),
	})
}

func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "InputError"})
		return
	}

	proofBytes, err := hexutil.Decode(req.Proof)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "proof must be 0x-prefixed hex", Code: verifier.CodeMissingProof, Kind: "InputError",
		})
		return
	}

	start := time.Now()
	att, verr := h.svc.Verify(&verifier.ProofBundle{
		Proof:         proofBytes,
		PublicSignals: req.PublicSignals,
	})
	if verr != nil {
		h.abortErr(c, verr)
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{
		Success:            true,
		Attestation:        attestationView(att),
		VerificationTimeMs: time.Since(start).Milliseconds(),
	})
}
