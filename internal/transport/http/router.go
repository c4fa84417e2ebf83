package http

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterDeps collects everything the HTTP surface needs.
type RouterDeps struct {
	Listings  ListingCatalog
	Search    Searcher
	Offers    Negotiator
	Contracts EscrowEngine
	Admin     ReferenceAdmin

	// Limiter is optional; nil disables the search quota.
	Limiter SearchLimiter

	CORSOrigins []string
	Logger      *log.Logger
}

// NewRouter wires the full HTTP surface.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", HealthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/listings", func(r chi.Router) {
			r.Post("/", HandleCreateListing(deps.Listings))
			r.Post("/search", HandleSearch(deps.Search, deps.Limiter, deps.Logger))
			r.Get("/{id}", HandleGetListing(deps.Listings))
			r.Patch("/{id}", HandleUpdateListing(deps.Listings))
			r.Post("/{id}/withdraw", HandleWithdrawListing(deps.Listings))
		})
		r.Get("/sellers/{id}/listings", HandleSellerListings(deps.Listings))

		r.Route("/offers", func(r chi.Router) {
			r.Post("/", HandleCreateOffer(deps.Offers))
			r.Get("/{id}", HandleGetOffer(deps.Offers))
			r.Post("/{id}/respond", HandleRespondOffer(deps.Offers))
			r.Post("/{id}/cancel", HandleCancelOffer(deps.Offers))
		})

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/{id}", HandleGetContract(deps.Contracts))
			r.Post("/{id}/deposit", HandlePayDeposit(deps.Contracts))
			r.Post("/{id}/cancel", HandleCancelContract(deps.Contracts))
			r.Post("/{id}/dispatch", HandleStartDelivery(deps.Contracts))
			r.Post("/{id}/confirm-delivery", HandleConfirmDelivery(deps.Contracts))
			r.Post("/{id}/confirm-receipt", HandleConfirmReceipt(deps.Contracts))
			r.Post("/{id}/dispute", HandleOpenDispute(deps.Contracts))
			r.Post("/{id}/resolution", HandleRecordResolution(deps.Contracts))
		})
		r.Get("/parties/{id}/contracts", HandlePartyContracts(deps.Contracts))

		r.Route("/admin", func(r chi.Router) {
			r.Handle("/regions", HandleAdminRegions(deps.Admin))
			r.Post("/parties", HandleCreateParty(deps.Admin))
			r.Get("/parties/{id}", HandleGetParty(deps.Admin))
			r.Post("/parties/{id}/verification", HandleSetVerification(deps.Admin))
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})

	return RequestLogger(CORS(deps.CORSOrigins, r), deps.Logger)
}
