// internal/app/features/entitlementapi/routes.go
package entitlementapi

import "github.com/go-chi/chi/v5"

// Routes returns the subrouter for the entitlement operation surface.
// Mounted under /api.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/invites", h.Invite)
	r.Post("/join-requests", h.RequestToJoin)
	r.Post("/access-checks", h.CheckAccess)
	r.Post("/payment-checks", h.PaymentCheck)

	r.Route("/memberships/{id}", func(r chi.Router) {
		r.Post("/transition", h.Transition)
		r.Delete("/", h.Remove)
		r.Post("/household", h.AttachHousehold)
		r.Delete("/household", h.DetachHousehold)
	})

	return r
}
