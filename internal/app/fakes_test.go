package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agropulse/marketplace/internal/domain"
	"github.com/agropulse/marketplace/internal/gateway"
)

// In-memory fakes shared by the service tests. WithTx serializes per repo and
// restores a snapshot when the body errors, mirroring a rollback; cross-repo
// atomicity and real locking are exercised against Postgres in the storage
// integration tests.

type fakeResolver struct {
	region domain.Region
	err    error
}

func (f *fakeResolver) Resolve(domain.Point) (domain.Region, error) {
	if f.err != nil {
		return domain.Region{}, f.err
	}
	return f.region, nil
}

type fakePartyRepo struct {
	parties map[string]domain.Party
}

func newFakePartyRepo(parties ...domain.Party) *fakePartyRepo {
	m := make(map[string]domain.Party, len(parties))
	for _, p := range parties {
		m[p.ID] = p
	}
	return &fakePartyRepo{parties: m}
}

func (f *fakePartyRepo) GetParty(_ context.Context, id string) (domain.Party, error) {
	p, ok := f.parties[id]
	if !ok {
		return domain.Party{}, domain.ErrPartyNotFound
	}
	return p, nil
}

type fakeListingRepo struct {
	// txMu serializes WithTx bodies the way the listing row lock does; the
	// check-then-reserve sequence must not interleave.
	txMu         sync.Mutex
	mu           sync.Mutex
	listings     map[string]domain.Listing
	reservations map[string]domain.Reservation // by offer id
}

func newFakeListingRepo(listings ...domain.Listing) *fakeListingRepo {
	m := make(map[string]domain.Listing, len(listings))
	for _, l := range listings {
		m[l.ID] = l
	}
	return &fakeListingRepo{
		listings:     m,
		reservations: make(map[string]domain.Reservation),
	}
}

func (f *fakeListingRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	f.mu.Lock()
	listings := make(map[string]domain.Listing, len(f.listings))
	for k, v := range f.listings {
		listings[k] = v
	}
	reservations := make(map[string]domain.Reservation, len(f.reservations))
	for k, v := range f.reservations {
		reservations[k] = v
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.listings = listings
		f.reservations = reservations
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeListingRepo) CreateListing(_ context.Context, listing domain.Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[listing.ID] = listing
	return nil
}

func (f *fakeListingRepo) GetListing(_ context.Context, id string) (domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	return l, nil
}

func (f *fakeListingRepo) GetListingForUpdate(ctx context.Context, id string) (domain.Listing, error) {
	return f.GetListing(ctx, id)
}

func (f *fakeListingRepo) UpdateListing(_ context.Context, listing domain.Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.listings[listing.ID]; !ok {
		return domain.ErrListingNotFound
	}
	f.listings[listing.ID] = listing
	return nil
}

func (f *fakeListingRepo) ListBySeller(_ context.Context, sellerID string, status domain.ListingStatus) ([]domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Listing
	for _, l := range f.listings {
		if l.SellerID != sellerID {
			continue
		}
		if status != "" && l.Status != status {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeListingRepo) ExpireReadyBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, l := range f.listings {
		if l.Status == domain.ListingStatusActive && l.ReadyDate.Before(cutoff) {
			l.Status = domain.ListingStatusExpired
			f.listings[id] = l
			n++
		}
	}
	return n, nil
}

func (f *fakeListingRepo) SumActiveReservations(_ context.Context, listingID string, now time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total float64
	for _, r := range f.reservations {
		if r.ListingID != listingID || r.Status != domain.ReservationStatusActive {
			continue
		}
		if !r.ExpiresAt.After(now) {
			continue
		}
		total += r.QuantityKg
	}
	return total, nil
}

func (f *fakeListingRepo) CreateReservation(_ context.Context, res domain.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reservations[res.OfferID] = res
	return nil
}

func (f *fakeListingRepo) GetReservationByOffer(_ context.Context, offerID string) (domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[offerID]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return r, nil
}

func (f *fakeListingRepo) UpdateReservation(_ context.Context, res domain.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reservations[res.OfferID]; !ok {
		return domain.ErrReservationNotFound
	}
	f.reservations[res.OfferID] = res
	return nil
}

type fakeOfferRepo struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	offers map[string]domain.Offer
}

func newFakeOfferRepo(offers ...domain.Offer) *fakeOfferRepo {
	m := make(map[string]domain.Offer, len(offers))
	for _, o := range offers {
		m[o.ID] = o
	}
	return &fakeOfferRepo{offers: m}
}

func (f *fakeOfferRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	f.mu.Lock()
	snapshot := make(map[string]domain.Offer, len(f.offers))
	for k, v := range f.offers {
		snapshot[k] = v
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.offers = snapshot
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeOfferRepo) CreateOffer(_ context.Context, offer domain.Offer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers[offer.ID] = offer
	return nil
}

func (f *fakeOfferRepo) GetOffer(_ context.Context, id string) (domain.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.offers[id]
	if !ok {
		return domain.Offer{}, domain.ErrOfferNotFound
	}
	return o, nil
}

func (f *fakeOfferRepo) GetOfferForUpdate(ctx context.Context, id string) (domain.Offer, error) {
	return f.GetOffer(ctx, id)
}

func (f *fakeOfferRepo) UpdateOffer(_ context.Context, offer domain.Offer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.offers[offer.ID]; !ok {
		return domain.ErrOfferNotFound
	}
	f.offers[offer.ID] = offer
	return nil
}

func (f *fakeOfferRepo) FindOpenOffer(_ context.Context, listingID, buyerID string) (*domain.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.offers {
		if o.ListingID == listingID && o.BuyerID == buyerID && o.Status.Open() {
			out := o
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeOfferRepo) ListOpenExpiredBefore(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, o := range f.offers {
		if o.Status.Open() && !o.ExpiresAt.After(cutoff) {
			ids = append(ids, o.ID)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

type fakeContractRepo struct {
	txMu      sync.Mutex
	mu        sync.Mutex
	contracts map[string]domain.Contract
}

func newFakeContractRepo(contracts ...domain.Contract) *fakeContractRepo {
	m := make(map[string]domain.Contract, len(contracts))
	for _, c := range contracts {
		m[c.ID] = c
	}
	return &fakeContractRepo{contracts: m}
}

func (f *fakeContractRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	f.mu.Lock()
	snapshot := make(map[string]domain.Contract, len(f.contracts))
	for k, v := range f.contracts {
		snapshot[k] = v
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.contracts = snapshot
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeContractRepo) CreateContract(_ context.Context, c domain.Contract) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.contracts {
		if existing.OfferID == c.OfferID {
			return domain.ErrContractExists
		}
	}
	f.contracts[c.ID] = c
	return nil
}

func (f *fakeContractRepo) GetContract(_ context.Context, id string) (domain.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contracts[id]
	if !ok {
		return domain.Contract{}, domain.ErrContractNotFound
	}
	return c, nil
}

func (f *fakeContractRepo) GetContractForUpdate(ctx context.Context, id string) (domain.Contract, error) {
	return f.GetContract(ctx, id)
}

func (f *fakeContractRepo) GetContractByOffer(_ context.Context, offerID string) (*domain.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contracts {
		if c.OfferID == offerID {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeContractRepo) UpdateContract(_ context.Context, c domain.Contract, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.contracts[c.ID]
	if !ok {
		return domain.ErrContractNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrStaleContract
	}
	f.contracts[c.ID] = c
	return nil
}

func (f *fakeContractRepo) ListByParty(_ context.Context, partyID string) ([]domain.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Contract
	for _, c := range f.contracts {
		if c.BuyerID == partyID || c.SellerID == partyID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContractRepo) ListDepositOverdue(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, c := range f.contracts {
		if c.Status == domain.ContractStatusPendingDeposit && !c.DepositDue.After(cutoff) {
			ids = append(ids, c.ID)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

func (f *fakeContractRepo) ListConfirmationOverdue(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, c := range f.contracts {
		if c.Status == domain.ContractStatusAwaitingBuyer && c.ConfirmBy != nil && !c.ConfirmBy.After(cutoff) {
			ids = append(ids, c.ID)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

type paymentCall struct {
	op         string
	contractID string
	amount     float64
}

type fakePayments struct {
	mu       sync.Mutex
	calls    []paymentCall
	failNext int
}

var errGatewayDown = errors.New("gateway unavailable")

func (f *fakePayments) InitiateDeposit(_ context.Context, contractID string, amount float64, _ string) (gateway.PaymentHandle, error) {
	return f.record("deposit", contractID, amount)
}

func (f *fakePayments) ReleaseFinal(_ context.Context, contractID string, amount float64, _ string) (gateway.PaymentHandle, error) {
	return f.record("final", contractID, amount)
}

func (f *fakePayments) record(op, contractID string, amount float64) (gateway.PaymentHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return gateway.PaymentHandle{}, errGatewayDown
	}
	f.calls = append(f.calls, paymentCall{op: op, contractID: contractID, amount: amount})
	return gateway.PaymentHandle{Reference: op + "-" + contractID, AmountKES: amount}, nil
}

func (f *fakePayments) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []gateway.EventType
}

func (f *fakeNotifier) Notify(_ context.Context, _ string, event gateway.EventType, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}
