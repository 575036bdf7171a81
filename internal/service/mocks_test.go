package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"dedicated/internal/domain"
	"dedicated/internal/events"
	"dedicated/internal/payment"
	"dedicated/internal/redis"
	"dedicated/internal/repository"
)

var errInjected = errors.New("injected failure")

// ──────────────────────────────────────────────
// MOCK TRANSACTOR
// ──────────────────────────────────────────────

// MockTransactor serializes transactions with a single mutex, which gives
// fn the isolation row and advisory locks provide in postgres.
type MockTransactor struct {
	mu    sync.Mutex
	store repository.Store

	TxCount int32
}

func (m *MockTransactor) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	atomic.AddInt32(&m.TxCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.store)
}

// ──────────────────────────────────────────────
// MOCK BOOKING REPOSITORY
// ──────────────────────────────────────────────

// MockBookingRepository is a mock implementation of BookingRepository.
type MockBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*domain.Booking

	// Error injection
	CreateError  error
	UpdateErrors map[string]error
}

// NewMockBookingRepository creates a new mock booking repository.
func NewMockBookingRepository() *MockBookingRepository {
	return &MockBookingRepository{
		bookings:     make(map[string]*domain.Booking),
		UpdateErrors: make(map[string]error),
	}
}

// AddBooking adds a booking to the mock repository.
func (m *MockBookingRepository) AddBooking(b *domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *b
	m.bookings[b.ID] = &copy
}

// FailUpdate makes every Update of id fail.
func (m *MockBookingRepository) FailUpdate(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateErrors[id] = err
}

// GetBooking returns a booking for test assertions.
func (m *MockBookingRepository) GetBooking(id string) *domain.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil
	}
	copy := *b
	return &copy
}

func (m *MockBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.AddBooking(b)
	return nil
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	if b := m.GetBooking(id); b != nil {
		return b, nil
	}
	return nil, repository.ErrNotFound
}

func (m *MockBookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return m.GetByID(ctx, id)
}

func (m *MockBookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.UpdateErrors[b.ID]; err != nil {
		return err
	}
	if _, ok := m.bookings[b.ID]; !ok {
		return repository.ErrNotFound
	}
	copy := *b
	m.bookings[b.ID] = &copy
	return nil
}

func (m *MockBookingRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status == domain.BookingStatusActive {
		return repository.ErrNotFound
	}
	delete(m.bookings, id)
	return nil
}

func (m *MockBookingRepository) selectWhere(keep func(b *domain.Booking) bool) []*domain.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Booking
	for _, b := range m.bookings {
		if keep(b) {
			copy := *b
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *MockBookingRepository) List(ctx context.Context, f domain.BookingFilter) ([]*domain.Booking, int, error) {
	all := m.selectWhere(func(b *domain.Booking) bool {
		return (f.UserID == "" || b.UserID == f.UserID) &&
			(f.DriverID == "" || b.DriverID == f.DriverID) &&
			(f.Status == "" || b.Status == f.Status) &&
			(f.FromDate.IsZero() || !b.BookingDate.Before(f.FromDate)) &&
			(f.ToDate.IsZero() || !b.BookingDate.After(f.ToDate))
	})

	from := (f.Page - 1) * f.Limit
	if from > len(all) {
		from = len(all)
	}
	to := from + f.Limit
	if to > len(all) {
		to = len(all)
	}
	return all[from:to], len(all), nil
}

func (m *MockBookingRepository) ListAvailable(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error) {
	out := m.selectWhere(func(b *domain.Booking) bool {
		return b.DriverID == "" && b.StartTime.After(now) &&
			(b.Status == domain.BookingStatusPending || b.Status == domain.BookingStatusApproved)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockBookingRepository) ListDriverReservations(ctx context.Context, driverID, excludeID string) ([]*domain.Booking, error) {
	return m.selectWhere(func(b *domain.Booking) bool {
		return b.ID != excludeID && b.HoldsDriver(driverID)
	}), nil
}

func (m *MockBookingRepository) ListActiveStarted(ctx context.Context) ([]*domain.Booking, error) {
	return m.selectWhere(func(b *domain.Booking) bool {
		return b.Status == domain.BookingStatusActive && !b.StartedAt.IsZero()
	}), nil
}

func (m *MockBookingRepository) ListUncapturedCompleted(ctx context.Context) ([]*domain.Booking, error) {
	return m.selectWhere(func(b *domain.Booking) bool {
		return b.Status == domain.BookingStatusCompleted && b.HasHold() && !b.EndedAt.IsZero()
	}), nil
}

func (m *MockBookingRepository) ListUnassignedStartingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Booking, error) {
	return m.selectWhere(func(b *domain.Booking) bool {
		return b.DriverID == "" && b.StartTime.Before(cutoff) &&
			(b.Status == domain.BookingStatusPending || b.Status == domain.BookingStatusApproved)
	}), nil
}

func (m *MockBookingRepository) LockDriver(ctx context.Context, driverID string) error {
	return nil
}

// ──────────────────────────────────────────────
// MOCK CATALOG & USERS
// ──────────────────────────────────────────────

// MockVehicleCategoryRepository is a mock implementation of VehicleCategoryRepository.
type MockVehicleCategoryRepository struct {
	categories map[string]*domain.VehicleCategory
}

func (m *MockVehicleCategoryRepository) GetByID(ctx context.Context, id string) (*domain.VehicleCategory, error) {
	c, ok := m.categories[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

// MockUserDirectory is a mock implementation of UserDirectory.
type MockUserDirectory struct {
	users map[string]*domain.User
}

func (m *MockUserDirectory) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

// MockPromotions grants a fixed discount for one code.
type MockPromotions struct {
	Code   string
	Amount float64
}

func (m *MockPromotions) Discount(ctx context.Context, code, userID string, amount float64) (float64, error) {
	if code != m.Code {
		return 0, errors.New("unknown promotion")
	}
	return m.Amount, nil
}

// ──────────────────────────────────────────────
// MOCK INVOICE REPOSITORY
// ──────────────────────────────────────────────

// MockInvoiceRepository is a mock implementation of InvoiceRepository.
type MockInvoiceRepository struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice

	CreateCallCount int32
}

func NewMockInvoiceRepository() *MockInvoiceRepository {
	return &MockInvoiceRepository{invoices: make(map[string]*domain.Invoice)}
}

func (m *MockInvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[inv.BookingID]; ok {
		return repository.ErrDuplicate
	}
	copy := *inv
	m.invoices[inv.BookingID] = &copy
	return nil
}

func (m *MockInvoiceRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[bookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *inv
	return &copy, nil
}

func (m *MockInvoiceRepository) MarkPaid(ctx context.Context, bookingID string, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.invoices[bookingID]; ok && inv.PaidAt.IsZero() {
		inv.PaidAt = paidAt
	}
	return nil
}

// Count returns the number of stored invoices.
func (m *MockInvoiceRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoices)
}

// ──────────────────────────────────────────────
// MOCK WALLET / LEDGER / SETTINGS
// ──────────────────────────────────────────────

// MockWalletRepository is a mock implementation of WalletRepository.
type MockWalletRepository struct {
	mu      sync.Mutex
	wallets map[string]*domain.Wallet // by user id
}

func NewMockWalletRepository() *MockWalletRepository {
	return &MockWalletRepository{wallets: make(map[string]*domain.Wallet)}
}

func (m *MockWalletRepository) CreateIfAbsent(ctx context.Context, w *domain.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[w.UserID]; !ok {
		copy := *w
		m.wallets[w.UserID] = &copy
	}
	return nil
}

func (m *MockWalletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *w
	return &copy, nil
}

func (m *MockWalletRepository) GetByUserIDForUpdate(ctx context.Context, userID string) (*domain.Wallet, error) {
	return m.GetByUserID(ctx, userID)
}

func (m *MockWalletRepository) UpdateBalance(ctx context.Context, walletID string, balance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.ID == walletID {
			w.Balance = balance
			return nil
		}
	}
	return repository.ErrNotFound
}

// MockLedgerRepository is a mock implementation of LedgerRepository.
type MockLedgerRepository struct {
	mu      sync.Mutex
	entries []*domain.LedgerEntry

	// AppendError fails every Append when set.
	AppendError error
}

func (m *MockLedgerRepository) Append(ctx context.Context, e *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendError != nil {
		return m.AppendError
	}
	copy := *e
	m.entries = append(m.entries, &copy)
	return nil
}

func (m *MockLedgerRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID {
			copy := *m.entries[i]
			out = append(out, &copy)
		}
	}
	from := (page - 1) * limit
	if from > len(out) {
		return nil, nil
	}
	to := from + limit
	if to > len(out) {
		to = len(out)
	}
	return out[from:to], nil
}

func (m *MockLedgerRepository) ListFareLinkedEarnings(ctx context.Context) ([]*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.LedgerEntry
	for _, e := range m.entries {
		if isEarnings(e.TransactionType) && e.FareAmount > 0 {
			copy := *e
			out = append(out, &copy)
		}
	}
	return out, nil
}

func isEarnings(t domain.TransactionType) bool {
	for _, et := range domain.EarningsTypes {
		if t == et {
			return true
		}
	}
	return false
}

func (m *MockLedgerRepository) SumCorrections(ctx context.Context, entryID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0.0
	for _, e := range m.entries {
		if e.RelatedEntryID == entryID {
			sum += e.Signed()
		}
	}
	return sum, nil
}

func (m *MockLedgerRepository) HasEarnings(ctx context.Context, refType domain.ReferenceType, refID, driverID string, txType domain.TransactionType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ReferenceType == refType && e.ReferenceID == refID && e.UserID == driverID && e.TransactionType == txType {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockLedgerRepository) SumSigned(ctx context.Context, walletID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0.0
	for _, e := range m.entries {
		if e.WalletID == walletID {
			sum += e.Signed()
		}
	}
	return sum, nil
}

// Entries returns a snapshot of all entries in insertion order.
func (m *MockLedgerRepository) Entries() []*domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.LedgerEntry, len(m.entries))
	for i, e := range m.entries {
		copy := *e
		out[i] = &copy
	}
	return out
}

// MockSettingsRepository is a mock implementation of SettingsRepository.
type MockSettingsRepository struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMockSettingsRepository() *MockSettingsRepository {
	return &MockSettingsRepository{values: make(map[string]string)}
}

func (m *MockSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return v, nil
}

func (m *MockSettingsRepository) GetForUpdate(ctx context.Context, key string) (string, error) {
	return m.Get(ctx, key)
}

func (m *MockSettingsRepository) Insert(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return repository.ErrDuplicate
	}
	m.values[key] = value
	return nil
}

func (m *MockSettingsRepository) Update(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return repository.ErrNotFound
	}
	m.values[key] = value
	return nil
}

// MockFareRepository returns a fixed set of paid fares. It does not filter
// recorded ones, so deduplication is left to the ledger.
type MockFareRepository struct {
	Fares []domain.PaidFare
}

func (m *MockFareRepository) ListUnrecordedPaidFares(ctx context.Context) ([]domain.PaidFare, error) {
	return m.Fares, nil
}

// ──────────────────────────────────────────────
// MOCK GATEWAY / PUBLISHER / LOCKS / LOCATIONS
// ──────────────────────────────────────────────

// MockGateway records payment calls.
type MockGateway struct {
	mu       sync.Mutex
	seq      int
	Holds    map[string]float64 // hold id -> amount
	Captured []string
	Released []string

	HoldError    error
	CaptureError error
	CancelError  error
}

func NewMockGateway() *MockGateway {
	return &MockGateway{Holds: make(map[string]float64)}
}

func (m *MockGateway) CreateHold(ctx context.Context, amount float64, currency, referenceID string) (*payment.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HoldError != nil {
		return nil, m.HoldError
	}
	m.seq++
	id := fmt.Sprintf("pi_%d", m.seq)
	m.Holds[id] = amount
	return &payment.Hold{ID: id, ClientSecret: id + "_secret"}, nil
}

func (m *MockGateway) Capture(ctx context.Context, holdID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CaptureError != nil {
		return m.CaptureError
	}
	m.Captured = append(m.Captured, holdID)
	return nil
}

func (m *MockGateway) Cancel(ctx context.Context, holdID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Released = append(m.Released, holdID)
	return m.CancelError
}

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	Events []events.Event

	// Stall makes Publish wait for its context like an unreachable broker.
	Stall bool
}

func (m *MockPublisher) Publish(ctx context.Context, e events.Event) error {
	m.mu.Lock()
	stall := m.Stall
	m.mu.Unlock()
	if stall {
		<-ctx.Done()
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// Types returns the published event types in order.
func (m *MockPublisher) Types() []events.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Type, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Type
	}
	return out
}

// MockLockStore is an in-memory LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	held  map[string]string
	Error error
}

func NewMockLockStore() *MockLockStore {
	return &MockLockStore{held: make(map[string]string)}
}

func (m *MockLockStore) Acquire(ctx context.Context, name string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Error != nil {
		return "", m.Error
	}
	if _, ok := m.held[name]; ok {
		return "", nil
	}
	token := fmt.Sprintf("token-%s", name)
	m.held[name] = token
	return token, nil
}

func (m *MockLockStore) Release(ctx context.Context, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[name] == token {
		delete(m.held, name)
	}
	return nil
}

// MockLocationStore is an in-memory LocationStoreInterface.
type MockLocationStore struct {
	mu     sync.Mutex
	latest map[string]*domain.LocationUpdate
}

func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{latest: make(map[string]*domain.LocationUpdate)}
}

func (m *MockLocationStore) SetLatest(ctx context.Context, u *domain.LocationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *u
	m.latest[u.BookingID] = &copy
	return nil
}

func (m *MockLocationStore) GetLatest(ctx context.Context, bookingID string) (*domain.LocationUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest[bookingID], nil
}

func (m *MockLocationStore) Remove(ctx context.Context, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.latest, bookingID)
	return nil
}

// Nearby approximates distance with an equirectangular projection.
func (m *MockLocationStore) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]redis.NearbyLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []redis.NearbyLocation
	for _, u := range m.latest {
		x := (u.Lng - lng) * math.Cos((u.Lat+lat)/2*math.Pi/180)
		y := u.Lat - lat
		dist := math.Sqrt(x*x+y*y) * 111.195
		if dist <= radiusKm {
			copy := *u
			out = append(out, redis.NearbyLocation{Update: &copy, DistanceKm: dist})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockLocationRepository is a mock implementation of LocationRepository.
type MockLocationRepository struct {
	mu      sync.Mutex
	updates []*domain.LocationUpdate
}

func (m *MockLocationRepository) Append(ctx context.Context, u *domain.LocationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *u
	m.updates = append(m.updates, &copy)
	return nil
}

func (m *MockLocationRepository) ListByBooking(ctx context.Context, bookingID string, limit int) ([]*domain.LocationUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.LocationUpdate
	for _, u := range m.updates {
		if u.BookingID == bookingID && len(out) < limit {
			copy := *u
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *MockLocationRepository) Latest(ctx context.Context, bookingID string) (*domain.LocationUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.updates) - 1; i >= 0; i-- {
		if m.updates[i].BookingID == bookingID {
			copy := *m.updates[i]
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ──────────────────────────────────────────────
// TEST HARNESS
// ──────────────────────────────────────────────

var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

// harness wires the services against the mocks with a fixed clock.
type harness struct {
	bookings   *MockBookingRepository
	invoices   *MockInvoiceRepository
	wallets    *MockWalletRepository
	ledgerRepo *MockLedgerRepository
	settings   *MockSettingsRepository
	fares      *MockFareRepository
	locations  *MockLocationStore
	history    *MockLocationRepository
	gateway    *MockGateway
	publisher  *MockPublisher
	locks      *MockLockStore
	tx         *MockTransactor
	users      *MockUserDirectory

	booking  *BookingService
	ledger   *LedgerService
	invoice  *InvoiceService
	location *LocationService

	logHook *logtest.Hook
	now     time.Time
}

func newHarness() *harness {
	h := &harness{
		bookings:   NewMockBookingRepository(),
		invoices:   NewMockInvoiceRepository(),
		wallets:    NewMockWalletRepository(),
		ledgerRepo: &MockLedgerRepository{},
		settings:   NewMockSettingsRepository(),
		fares:      &MockFareRepository{},
		locations:  NewMockLocationStore(),
		history:    &MockLocationRepository{},
		gateway:    NewMockGateway(),
		publisher:  &MockPublisher{},
		locks:      NewMockLockStore(),
		users: &MockUserDirectory{users: map[string]*domain.User{
			"user-1":   {ID: "user-1", Role: domain.UserRoleUser},
			"driver-1": {ID: "driver-1", Role: domain.UserRoleDriver},
			"driver-2": {ID: "driver-2", Role: domain.UserRoleDriver},
		}},
		now: testNow,
	}

	store := repository.Store{
		Bookings: h.bookings,
		Invoices: h.invoices,
		Wallets:  h.wallets,
		Ledger:   h.ledgerRepo,
		Settings: h.settings,
	}
	h.tx = &MockTransactor{store: store}

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h.logHook = hook

	clock := func() time.Time { return h.now }

	h.invoice = NewInvoiceService(h.bookings, h.invoices, 0.18, "usd")
	h.invoice.now = clock

	h.ledger = NewLedgerService(h.tx, store, h.fares, "usd", 15, logger)
	h.ledger.now = clock

	rules := DefaultBookingRules()
	h.booking = NewBookingService(BookingServiceDeps{
		Transactor: h.tx,
		Bookings:   h.bookings,
		Categories: &MockVehicleCategoryRepository{categories: map[string]*domain.VehicleCategory{
			"sedan":   {ID: "sedan", Name: "Sedan", Active: true},
			"retired": {ID: "retired", Name: "Limousine", Active: false},
		}},
		Users:      h.users,
		Promotions: &MockPromotions{Code: "SPRING10", Amount: 10},
		Gateway:    h.gateway,
		Allocator:  NewDriverAllocator(h.tx),
		Invoices:   h.invoice,
		Ledger:     h.ledger,
		Locations:  h.locations,
		Publisher:  h.publisher,
		Rules:      rules,
		Log:        logger,
	})
	h.booking.now = clock

	h.location = NewLocationService(h.bookings, h.history, h.locations, rules, logger)
	h.location.now = clock

	return h
}

// at returns testNow shifted by d.
func at(d time.Duration) time.Time {
	return testNow.Add(d)
}

// addBooking stores a booking in the given state with sensible defaults.
func (h *harness) addBooking(id string, status domain.BookingStatus, driverID string, start time.Time, hours int) *domain.Booking {
	b := &domain.Booking{
		ID:                id,
		UserID:            "user-1",
		DriverID:          driverID,
		VehicleCategoryID: "sedan",
		BookingDate:       dateOf(start),
		StartTime:         start,
		DurationHours:     hours,
		BaseFare:          10,
		PricePerHour:      20,
		TotalPrice:        TotalPrice(10, 20, hours),
		Status:            status,
		PaymentStatus:     domain.PaymentStatusUnpaid,
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}
	h.bookings.AddBooking(b)
	return b
}

// withHold marks a stored booking as pre-authorized under holdID.
func (h *harness) withHold(id, holdID string) {
	b := h.bookings.GetBooking(id)
	b.PaymentHoldID = holdID
	b.PaymentStatus = domain.PaymentStatusPreauthorized
	h.bookings.AddBooking(b)
}
