package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/diagnosis/staybook/internal/utils"
	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/paypal"
	"github.com/diagnosis/staybook/services/booking/internal/qrpay"
	"github.com/diagnosis/staybook/services/booking/internal/repository"
)

// ---------- Fixtures ----------

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func testConfig() *config.Config {
	return &config.Config{
		Booking: config.BookingConfig{Timezone: "UTC", MaxAdvanceDays: 30, MaxNights: 10},
		PayPal:  config.PayPalConfig{Currency: "MYR", SettlementCurrency: "USD", ConversionRate: 0.24},
	}
}

func day(d int) domain.Date { return domain.NewDate(2026, time.March, d) }

// ---------- Mocks ----------

type mockRoomTypes struct {
	types map[string]*domain.RoomType
}

func newMockRoomTypes(types ...domain.RoomType) *mockRoomTypes {
	m := &mockRoomTypes{types: map[string]*domain.RoomType{}}
	for i := range types {
		rt := types[i]
		m.types[rt.ID] = &rt
	}
	return m
}

func (m *mockRoomTypes) List(context.Context, string) ([]domain.RoomType, error) {
	var out []domain.RoomType
	for _, rt := range m.types {
		out = append(out, *rt)
	}
	return out, nil
}

func (m *mockRoomTypes) GetByID(_ context.Context, id string) (*domain.RoomType, error) {
	rt, ok := m.types[id]
	if !ok {
		return nil, nil
	}
	cp := *rt
	return &cp, nil
}

func (m *mockRoomTypes) NameTaken(_ context.Context, name, excludeID string) (bool, error) {
	for _, rt := range m.types {
		if utils.NameKey(rt.Name) == name && rt.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRoomTypes) Create(_ context.Context, rt *domain.RoomType) error {
	cp := *rt
	m.types[rt.ID] = &cp
	return nil
}

func (m *mockRoomTypes) Update(_ context.Context, id, name string, price domain.Money, newPhotos []string) (*domain.RoomType, error) {
	rt, ok := m.types[id]
	if !ok {
		return nil, nil
	}
	rt.Name, rt.Price = name, price
	rt.Photos = append(rt.Photos, newPhotos...)
	cp := *rt
	return &cp, nil
}

func (m *mockRoomTypes) DeletePhoto(_ context.Context, typeID, photo string) (bool, error) {
	rt, ok := m.types[typeID]
	if !ok {
		return false, nil
	}
	for i, p := range rt.Photos {
		if p == photo {
			rt.Photos = append(rt.Photos[:i], rt.Photos[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// mockReservations hands out the first room with no active stay overlapping
// the requested dates. Each pending conflict makes the next insert lose its
// room to a competing booking for the same nights.
type mockReservations struct {
	mu        sync.Mutex
	rooms     []domain.Room
	competing []domain.Reservation
	conflicts int
	attempts  int
	nextID    int64
	saved     map[int64]*domain.Reservation
	payments  *mockPayments
	toggleErr error
	occupied  map[string][]domain.DateRange
}

func newMockReservations(payments *mockPayments, rooms ...domain.Room) *mockReservations {
	return &mockReservations{
		rooms:    rooms,
		nextID:   1,
		saved:    map[int64]*domain.Reservation{},
		payments: payments,
	}
}

func (m *mockReservations) add(res domain.Reservation) *domain.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := res
	m.saved[res.ID] = &cp
	return &cp
}

// clashes reports whether an active stay on roomID overlaps stay. Callers
// hold mu.
func (m *mockReservations) clashes(roomID string, stay domain.DateRange) bool {
	for _, res := range m.saved {
		if res.Active && res.RoomID == roomID && res.Stay().Overlaps(stay) {
			return true
		}
	}
	for _, res := range m.competing {
		if res.RoomID == roomID && res.Stay().Overlaps(stay) {
			return true
		}
	}
	return false
}

func (m *mockReservations) FindAvailableRoom(_ context.Context, typeID string, checkIn, checkOut domain.Date) (*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stay := domain.DateRange{CheckIn: checkIn, CheckOut: checkOut}
	for _, r := range m.rooms {
		if r.RoomTypeID == typeID && r.Active && !m.clashes(r.ID, stay) {
			room := r
			return &room, nil
		}
	}
	return nil, nil
}

func (m *mockReservations) CreateWithPayment(_ context.Context, res *domain.Reservation) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.conflicts > 0 {
		m.conflicts--
		m.competing = append(m.competing, domain.Reservation{RoomID: res.RoomID, CheckIn: res.CheckIn, CheckOut: res.CheckOut, Active: true})
		return nil, repository.ErrRoomTaken
	}
	if m.clashes(res.RoomID, res.Stay()) {
		return nil, repository.ErrRoomTaken
	}

	res.ID = m.nextID
	m.nextID++
	res.Active = true
	res.CreatedAt = fixedNow
	pay := m.payments.add(domain.Payment{ReservationID: res.ID, Amount: res.Amount(), Status: domain.PaymentPending})
	res.PaymentID = &pay.ID
	cp := *res
	m.saved[res.ID] = &cp
	return pay, nil
}

func (m *mockReservations) GetByID(_ context.Context, id int64) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.saved[id]
	if !ok {
		return nil, nil
	}
	cp := *res
	if pay := m.payments.byReservation(id); pay != nil {
		cp.Payment = pay
	}
	return &cp, nil
}

func (m *mockReservations) ListByMember(_ context.Context, memberID int64) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, res := range m.saved {
		if res.MemberID == memberID {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockReservations) List(context.Context, domain.ReservationFilter) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, res := range m.saved {
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockReservations) ToggleActive(_ context.Context, id int64) (*domain.Reservation, error) {
	if m.toggleErr != nil {
		return nil, m.toggleErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.saved[id]
	if !ok {
		return nil, nil
	}
	res.Active = !res.Active
	cp := *res
	return &cp, nil
}

func (m *mockReservations) OccupiedRanges(_ context.Context, roomID string, _, _ domain.Date) ([]domain.DateRange, error) {
	return m.occupied[roomID], nil
}

func (m *mockReservations) OccupiedRangesByType(_ context.Context, typeID string, _, _ domain.Date) (map[string][]domain.DateRange, error) {
	out := map[string][]domain.DateRange{}
	for _, r := range m.rooms {
		if r.RoomTypeID == typeID && len(m.occupied[r.ID]) > 0 {
			out[r.ID] = m.occupied[r.ID]
		}
	}
	return out, nil
}

func (m *mockReservations) OccupiedRangesAll(context.Context, domain.Date, domain.Date) (map[string][]domain.DateRange, error) {
	return m.occupied, nil
}

type mockPayments struct {
	mu          sync.Mutex
	nextID      int64
	payments    map[int64]*domain.Payment
	markErr     error
	applyErr    error
	applied     []domain.RefundRecord
	memberEmail string
	sales       []domain.SalesLine
	stayDays    []domain.Date
	stayErr     error
}

func newMockPayments() *mockPayments {
	return &mockPayments{nextID: 1, payments: map[int64]*domain.Payment{}, memberEmail: "guest@example.com"}
}

func (m *mockPayments) add(p domain.Payment) *domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.nextID
		m.nextID++
	}
	cp := p
	m.payments[p.ID] = &cp
	out := cp
	return &out
}

func (m *mockPayments) byReservation(reservationID int64) *domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ReservationID == reservationID {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (m *mockPayments) GetByID(_ context.Context, id int64) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockPayments) GetByReservation(_ context.Context, reservationID int64) (*domain.Payment, error) {
	return m.byReservation(reservationID), nil
}

func (m *mockPayments) GetByProviderOrder(_ context.Context, orderID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ProviderOrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockPayments) SetProviderOrder(_ context.Context, paymentID int64, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok || p.Status != domain.PaymentPending {
		return repository.ErrStateChanged
	}
	p.ProviderOrderID = orderID
	return nil
}

func (m *mockPayments) MarkCompleted(_ context.Context, paymentID int64, transactionID, method string) (*domain.Payment, error) {
	if m.markErr != nil {
		return nil, m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok || p.Status != domain.PaymentPending {
		return nil, repository.ErrStateChanged
	}
	p.Status, p.TransactionID, p.Method = domain.PaymentCompleted, transactionID, method
	cp := *p
	return &cp, nil
}

func (m *mockPayments) UpsertCompleted(_ context.Context, reservationID int64, amount domain.Money, method, transactionID string) (*domain.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ReservationID != reservationID {
			continue
		}
		if p.Status != domain.PaymentPending {
			cp := *p
			return &cp, false, nil
		}
		p.Status, p.Amount, p.Method, p.TransactionID = domain.PaymentCompleted, amount, method, transactionID
		cp := *p
		return &cp, true, nil
	}
	p := &domain.Payment{ID: m.nextID, ReservationID: reservationID, Amount: amount,
		Status: domain.PaymentCompleted, Method: method, TransactionID: transactionID}
	m.nextID++
	m.payments[p.ID] = p
	cp := *p
	return &cp, true, nil
}

func (m *mockPayments) ApplyRefund(_ context.Context, rec domain.RefundRecord) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[rec.PaymentID]
	if !ok || p.Status != domain.PaymentCompleted {
		return repository.ErrStateChanged
	}
	at := rec.RefundedAt
	p.Status, p.RefundID, p.RefundDate = domain.PaymentRefund, rec.RefundID, &at
	m.applied = append(m.applied, rec)
	return nil
}

func (m *mockPayments) Context(_ context.Context, paymentID int64) (*domain.PaymentContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, nil
	}
	return &domain.PaymentContext{
		Payment:      *p,
		Reservation:  domain.Reservation{ID: p.ReservationID},
		MemberEmail:  m.memberEmail,
		MemberName:   "Guest",
		RoomTypeName: "Deluxe",
	}, nil
}

func (m *mockPayments) SalesReport(context.Context) ([]domain.SalesLine, error) {
	return m.sales, nil
}

func (m *mockPayments) StayReport(_ context.Context, day domain.Date) (*domain.StayReport, error) {
	m.stayDays = append(m.stayDays, day)
	if m.stayErr != nil {
		return nil, m.stayErr
	}
	return &domain.StayReport{Day: day, Stays: 3, Paid: 2, Unpaid: 1, Revenue: domain.NewMoney(450)}, nil
}

type mockReconciliation struct {
	mu      sync.Mutex
	records []domain.Reconciliation
}

func (m *mockReconciliation) Record(_ context.Context, rec *domain.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return nil
}

func (m *mockReconciliation) List(context.Context, bool) ([]domain.Reconciliation, error) {
	return m.records, nil
}

func (m *mockReconciliation) Resolve(context.Context, int64, string) (bool, error) {
	return true, nil
}

type mockProvider struct {
	orderID     string
	captureID   string
	refundID    string
	createErr   error
	captureErr  error
	refundErr   error
	refundCalls  int
	captureCalls int
	settlement   *domain.Money
}

func (m *mockProvider) CreateOrder(context.Context, domain.Money, string) (*paypal.Order, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &paypal.Order{ID: m.orderID, Status: "CREATED"}, nil
}

func (m *mockProvider) CaptureOrder(_ context.Context, orderID string) (*paypal.Capture, error) {
	m.captureCalls++
	if m.captureErr != nil {
		return nil, m.captureErr
	}
	return &paypal.Capture{OrderID: orderID, Status: paypal.StatusCompleted, CaptureID: m.captureID}, nil
}

func (m *mockProvider) RefundCapture(_ context.Context, _ string, settlement *domain.Money) (*paypal.Refund, error) {
	m.refundCalls++
	m.settlement = settlement
	if m.refundErr != nil {
		return nil, m.refundErr
	}
	return &paypal.Refund{ID: m.refundID, Status: paypal.StatusCompleted}, nil
}

type mockQR struct {
	codes map[string]qrpay.Correlation
	seq   int
}

func newMockQR() *mockQR { return &mockQR{codes: map[string]qrpay.Correlation{}} }

func (m *mockQR) Generate(_ context.Context, reservationID, memberID int64, amount domain.Money) (*domain.QRCode, error) {
	m.seq++
	id := "corr-" + string(rune('a'+m.seq-1))
	m.codes[id] = qrpay.Correlation{ReservationID: reservationID, MemberID: memberID, Amount: amount}
	return &domain.QRCode{CorrelationID: id, ReservationID: reservationID, Amount: amount, ExpiresAt: fixedNow.Add(15 * time.Minute)}, nil
}

func (m *mockQR) Lookup(_ context.Context, id string) (*qrpay.Correlation, bool, error) {
	c, ok := m.codes[id]
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}

func (m *mockQR) Forget(_ context.Context, id string) error {
	delete(m.codes, id)
	return nil
}

type mockReviews struct {
	nextID  int64
	reviews map[int64]*domain.Review
}

func newMockReviews() *mockReviews {
	return &mockReviews{nextID: 1, reviews: map[int64]*domain.Review{}}
}

func (m *mockReviews) Create(_ context.Context, rv *domain.Review) error {
	for _, existing := range m.reviews {
		if existing.ReservationID == rv.ReservationID {
			return &repository.DuplicateError{Constraint: "reviews_reservation_key"}
		}
	}
	rv.ID = m.nextID
	m.nextID++
	cp := *rv
	m.reviews[rv.ID] = &cp
	return nil
}

func (m *mockReviews) GetByID(_ context.Context, id int64) (*domain.Review, error) {
	rv, ok := m.reviews[id]
	if !ok {
		return nil, nil
	}
	cp := *rv
	return &cp, nil
}

func (m *mockReviews) Update(_ context.Context, rv *domain.Review) error {
	if _, ok := m.reviews[rv.ID]; !ok {
		return repository.ErrStateChanged
	}
	cp := *rv
	m.reviews[rv.ID] = &cp
	return nil
}

func (m *mockReviews) Delete(_ context.Context, id int64) (bool, error) {
	_, ok := m.reviews[id]
	delete(m.reviews, id)
	return ok, nil
}

func (m *mockReviews) ListByRoomType(_ context.Context, typeID string) ([]domain.Review, error) {
	var out []domain.Review
	for _, rv := range m.reviews {
		if rv.RoomTypeID == typeID {
			out = append(out, *rv)
		}
	}
	return out, nil
}

func (m *mockReviews) ListByReservation(_ context.Context, reservationID int64) ([]domain.Review, error) {
	var out []domain.Review
	for _, rv := range m.reviews {
		if rv.ReservationID == reservationID {
			out = append(out, *rv)
		}
	}
	return out, nil
}

func (m *mockReviews) ListAll(context.Context) ([]domain.Review, error) {
	var out []domain.Review
	for _, rv := range m.reviews {
		out = append(out, *rv)
	}
	return out, nil
}

// recordingBus keeps every published subject in order.
type recordingBus struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (b *recordingBus) Publish(_ context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	b.payloads = append(b.payloads, data)
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) count(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
