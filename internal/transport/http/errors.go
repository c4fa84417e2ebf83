package http

import (
	"encoding/json"
	"net/http"

	"github.com/agropulse/marketplace/internal/domain"
)

const (
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidID            = "invalid_id"
	codeInvalidQuantity      = "invalid_quantity"
	codeInvalidPrice         = "invalid_price"
	codeInvalidGrade         = "invalid_grade"
	codeInvalidRole          = "invalid_role"
	codeInvalidStatus        = "invalid_status"
	codeListingNotActive     = "listing_not_active"
	codeInsufficientQuantity = "insufficient_quantity"
	codeBelowMinimumOrder    = "below_minimum_order"
	codeDuplicateOffer       = "duplicate_offer"
	codeNegotiationLimit     = "negotiation_limit"
	codeActiveReservations   = "active_reservations"
	codeSellerNotVerified    = "seller_not_verified"
	codeBuyerNotVerified     = "buyer_not_verified"
	codeContractExists       = "contract_exists"
	codeStaleOffer           = "offer_already_decided"
	codeStaleContract        = "contract_conflict"
	codeForbidden            = "forbidden"
	codeRateLimited          = "rate_limited"
	codeGatewayUnavailable   = "gateway_unavailable"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps service errors onto HTTP statuses. Unknown errors are
// reported as opaque internal errors.
func writeDomainError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrRegionNotFound, domain.ErrPartyNotFound, domain.ErrListingNotFound,
		domain.ErrOfferNotFound, domain.ErrContractNotFound, domain.ErrReservationNotFound:
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case domain.ErrInvalidID:
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case domain.ErrInvalidQuantity:
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case domain.ErrInvalidPrice:
		writeError(w, http.StatusBadRequest, codeInvalidPrice, err.Error())
	case domain.ErrInvalidGrade:
		writeError(w, http.StatusBadRequest, codeInvalidGrade, err.Error())
	case domain.ErrInvalidRole:
		writeError(w, http.StatusBadRequest, codeInvalidRole, err.Error())
	case domain.ErrInvalidStatus:
		writeError(w, http.StatusBadRequest, codeInvalidStatus, err.Error())
	case domain.ErrBelowMinimumOrder:
		writeError(w, http.StatusBadRequest, codeBelowMinimumOrder, err.Error())
	case domain.ErrSellerNotVerified:
		writeError(w, http.StatusForbidden, codeSellerNotVerified, err.Error())
	case domain.ErrBuyerNotVerified:
		writeError(w, http.StatusForbidden, codeBuyerNotVerified, err.Error())
	case domain.ErrUnauthorizedActor:
		writeError(w, http.StatusForbidden, codeForbidden, err.Error())
	case domain.ErrListingNotActive:
		writeError(w, http.StatusConflict, codeListingNotActive, err.Error())
	case domain.ErrInsufficientQuantity:
		writeError(w, http.StatusConflict, codeInsufficientQuantity, err.Error())
	case domain.ErrDuplicateOffer:
		writeError(w, http.StatusConflict, codeDuplicateOffer, err.Error())
	case domain.ErrNegotiationLimit:
		writeError(w, http.StatusConflict, codeNegotiationLimit, err.Error())
	case domain.ErrActiveReservations:
		writeError(w, http.StatusConflict, codeActiveReservations, err.Error())
	case domain.ErrContractExists:
		writeError(w, http.StatusConflict, codeContractExists, err.Error())
	case domain.ErrStaleOffer:
		writeError(w, http.StatusConflict, codeStaleOffer, err.Error())
	case domain.ErrStaleContract:
		writeError(w, http.StatusConflict, codeStaleContract, err.Error())
	default:
		if domain.IsGatewayError(err) {
			writeError(w, http.StatusBadGateway, codeGatewayUnavailable, "payment gateway unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
