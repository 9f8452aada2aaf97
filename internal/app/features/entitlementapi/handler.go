// internal/app/features/entitlementapi/handler.go

// Package entitlementapi exposes the entitlement engine operations as a
// small JSON surface for page guards and server actions. Authentication
// happens in front of this service; handlers trust the X-Actor-ID and
// X-Super-Admin headers the guard layer sets.
package entitlementapi

import (
	"encoding/json"
	"net/http"

	"github.com/commonward/communitygate/internal/app/entitlement"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler holds the engine and request plumbing for the JSON surface.
type Handler struct {
	Engine   *entitlement.Engine
	Log      *zap.Logger
	validate *validator.Validate
}

// NewHandler constructs the API handler.
func NewHandler(engine *entitlement.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		Engine:   engine,
		Log:      logger,
		validate: validator.New(),
	}
}

/* -------------------------------------------------------------------------- */
/* Request/response shapes                                                    */
/* -------------------------------------------------------------------------- */

type inviteRequest struct {
	TenantID      string  `json:"tenant_id" validate:"required,len=24,hexadecimal"`
	Email         string  `json:"email" validate:"required"`
	FullName      string  `json:"full_name"`
	Role          string  `json:"role" validate:"required,oneof=resident community_manager guard head_of_security"`
	Unit          *string `json:"unit,omitempty"`
	HouseholdName string  `json:"household_name,omitempty"`
}

type joinRequest struct {
	TenantID string  `json:"tenant_id" validate:"required,len=24,hexadecimal"`
	Unit     *string `json:"unit,omitempty"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved suspended rejected"`
}

type householdRequest struct {
	HouseholdName string `json:"household_name" validate:"required"`
}

type accessCheckRequest struct {
	TenantID   string `json:"tenant_id" validate:"required,len=24,hexadecimal"`
	Role       string `json:"role" validate:"required,oneof=resident community_manager guard head_of_security"`
	FeatureKey string `json:"feature_key" validate:"required"`
}

type paymentCheckRequest struct {
	OwnerUserID string `json:"owner_user_id" validate:"required,len=24,hexadecimal"`
}

type paymentCheckResponse struct {
	PaymentRequired bool `json:"payment_required"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

/* -------------------------------------------------------------------------- */
/* Plumbing                                                                   */
/* -------------------------------------------------------------------------- */

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := entitlement.CodeFor(err)
	status := statusFor(code)
	switch {
	case code == entitlement.CodeCrossTenant:
		// Tenant-boundary violations outrank ordinary user errors even
		// though the caller sees a 4xx.
		h.Log.Error("cross-tenant violation rejected", zap.Error(err))
	case status >= http.StatusInternalServerError:
		h.Log.Error("entitlement operation failed", zap.String("code", code), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// statusFor maps stable error codes to HTTP statuses. The code, not the
// status, is the contract callers branch on.
func statusFor(code string) int {
	switch code {
	case entitlement.CodeForbidden:
		return http.StatusForbidden
	case entitlement.CodeAlreadyMember:
		return http.StatusConflict
	case entitlement.CodeInvalidTransition,
		entitlement.CodeInvalidEmail,
		entitlement.CodeInvalidRole,
		entitlement.CodeCrossTenant:
		return http.StatusUnprocessableEntity
	case entitlement.CodeNotFound:
		return http.StatusNotFound
	case entitlement.CodeStoreUnavailable,
		entitlement.CodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: "invalid JSON body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()})
		return false
	}
	return true
}

// actorRef builds the actor claim from the guard-layer headers. Returns
// false (and responds) when X-Actor-ID is missing or malformed.
func (h *Handler) actorRef(w http.ResponseWriter, r *http.Request) (entitlement.ActorRef, bool) {
	id, err := primitive.ObjectIDFromHex(r.Header.Get("X-Actor-ID"))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthenticated", Message: "missing or invalid X-Actor-ID header"})
		return entitlement.ActorRef{}, false
	}
	return entitlement.ActorRef{
		UserID:     id,
		SuperAdmin: r.Header.Get("X-Super-Admin") == "true",
	}, true
}

func pathID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: "invalid membership id"})
		return primitive.NilObjectID, false
	}
	return id, true
}

/* -------------------------------------------------------------------------- */
/* Handlers                                                                   */
/* -------------------------------------------------------------------------- */

// Invite handles POST /api/invites.
func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorRef(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if !h.decode(w, r, &req) {
		return
	}
	tenantID, _ := primitive.ObjectIDFromHex(req.TenantID)

	res, err := h.Engine.InviteOrJoin(r.Context(), tenantID, actor, entitlement.InviteRequest{
		Email:         req.Email,
		FullName:      req.FullName,
		Role:          req.Role,
		Unit:          req.Unit,
		HouseholdName: req.HouseholdName,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// RequestToJoin handles POST /api/join-requests: the acting user asks to
// join the tenant and gets a pending membership.
func (h *Handler) RequestToJoin(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorRef(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}
	tenantID, _ := primitive.ObjectIDFromHex(req.TenantID)

	m, err := h.Engine.RequestToJoin(r.Context(), tenantID, actor.UserID, req.Unit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Transition handles POST /api/memberships/{id}/transition.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorRef(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}

	m, err := h.Engine.TransitionMembership(r.Context(), actor, id, req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Remove handles DELETE /api/memberships/{id}. Idempotent; an absent
// membership still yields 204.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorRef(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Engine.RemoveMembership(r.Context(), actor, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachHousehold handles POST /api/memberships/{id}/household.
func (h *Handler) AttachHousehold(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorRef(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req householdRequest
	if !h.decode(w, r, &req) {
		return
	}

	m, err := h.Engine.AttachHousehold(r.Context(), actor, id, req.HouseholdName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DetachHousehold handles DELETE /api/memberships/{id}/household.
func (h *Handler) DetachHousehold(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorRef(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	m, err := h.Engine.DetachHousehold(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// PaymentCheck handles POST /api/payment-checks. The external tenant
// provisioning flow asks whether the owner's next community needs a
// paid subscription before it creates the tenant.
func (h *Handler) PaymentCheck(w http.ResponseWriter, r *http.Request) {
	var req paymentCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	ownerID, _ := primitive.ObjectIDFromHex(req.OwnerUserID)

	required, err := h.Engine.PaymentRequired(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentCheckResponse{PaymentRequired: required})
}

// CheckAccess handles POST /api/access-checks. Always 200 when the
// decision was computed; allowed/denied lives in the body.
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	var req accessCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	tenantID, _ := primitive.ObjectIDFromHex(req.TenantID)

	d, err := h.Engine.CheckAccess(r.Context(), tenantID, req.Role, req.FeatureKey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
