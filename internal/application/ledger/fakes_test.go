package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/google/uuid"
)

// In-memory persistence doubles. The fake unit of work snapshots the stores
// before each call and restores them when the function fails, mirroring a
// rolled-back database transaction.

type memoryStore struct {
	mu           sync.Mutex
	invoices     map[uuid.UUID]*ledger.Invoice
	creditNotes  map[uuid.UUID]*ledger.CreditNote
	transactions map[uuid.UUID]*ledger.BankTransaction
	dunnings     map[uuid.UUID]*ledger.DunningRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		invoices:     make(map[uuid.UUID]*ledger.Invoice),
		creditNotes:  make(map[uuid.UUID]*ledger.CreditNote),
		transactions: make(map[uuid.UUID]*ledger.BankTransaction),
		dunnings:     make(map[uuid.UUID]*ledger.DunningRecord),
	}
}

func cloneInvoice(inv *ledger.Invoice) *ledger.Invoice {
	c := *inv
	c.Payments = append([]ledger.Payment(nil), inv.Payments...)
	c.ClearDomainEvents()
	return &c
}

func cloneTransaction(tx *ledger.BankTransaction) *ledger.BankTransaction {
	c := *tx
	return &c
}

func cloneCreditNote(cn *ledger.CreditNote) *ledger.CreditNote {
	c := *cn
	c.ClearDomainEvents()
	return &c
}

func (s *memoryStore) snapshot() *memoryStore {
	snap := newMemoryStore()
	for id, inv := range s.invoices {
		snap.invoices[id] = cloneInvoice(inv)
	}
	for id, cn := range s.creditNotes {
		snap.creditNotes[id] = cloneCreditNote(cn)
	}
	for id, tx := range s.transactions {
		snap.transactions[id] = cloneTransaction(tx)
	}
	for id, d := range s.dunnings {
		copied := *d
		snap.dunnings[id] = &copied
	}
	return snap
}

func (s *memoryStore) restore(snap *memoryStore) {
	s.invoices = snap.invoices
	s.creditNotes = snap.creditNotes
	s.transactions = snap.transactions
	s.dunnings = snap.dunnings
}

type fakeUnitOfWork struct {
	store *memoryStore
}

func newFakeUnitOfWork() *fakeUnitOfWork {
	return &fakeUnitOfWork{store: newMemoryStore()}
}

func (u *fakeUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos ledger.Repositories) error) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	snap := u.store.snapshot()
	repos := ledger.Repositories{
		Invoices:         &fakeInvoiceRepo{store: u.store},
		CreditNotes:      &fakeCreditNoteRepo{store: u.store},
		BankTransactions: &fakeBankTransactionRepo{store: u.store},
		Dunnings:         &fakeDunningRepo{store: u.store},
	}
	if err := fn(ctx, repos); err != nil {
		u.store.restore(snap)
		return err
	}
	return nil
}

// seed helpers bypass the unit of work

func (u *fakeUnitOfWork) seedInvoice(inv *ledger.Invoice) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.store.invoices[inv.ID] = cloneInvoice(inv)
}

func (u *fakeUnitOfWork) seedTransaction(tx *ledger.BankTransaction) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.store.transactions[tx.ID] = cloneTransaction(tx)
}

func (u *fakeUnitOfWork) invoice(id uuid.UUID) *ledger.Invoice {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return cloneInvoice(u.store.invoices[id])
}

func (u *fakeUnitOfWork) transaction(id uuid.UUID) *ledger.BankTransaction {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return cloneTransaction(u.store.transactions[id])
}

func (u *fakeUnitOfWork) dunningCount() int {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return len(u.store.dunnings)
}

type fakeInvoiceRepo struct {
	store *memoryStore
}

func (r *fakeInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	inv, ok := r.store.invoices[id]
	if !ok {
		return nil, shared.NewNotFoundError(id.String(), "Invoice not found")
	}
	return cloneInvoice(inv), nil
}

func (r *fakeInvoiceRepo) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ledger.Invoice, error) {
	inv, ok := r.store.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, shared.NewNotFoundError(id.String(), "Invoice not found")
	}
	return cloneInvoice(inv), nil
}

func (r *fakeInvoiceRepo) FindByIDsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*ledger.Invoice, error) {
	result := make([]*ledger.Invoice, 0, len(ids))
	for _, id := range ids {
		inv, ok := r.store.invoices[id]
		if !ok || inv.TenantID != tenantID {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (r *fakeInvoiceRepo) FindByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (*ledger.Invoice, error) {
	for _, inv := range r.store.invoices {
		if inv.TenantID == tenantID && inv.DocumentNumber == documentNumber {
			return cloneInvoice(inv), nil
		}
	}
	return nil, shared.NewNotFoundError(documentNumber, "Invoice not found")
}

func (r *fakeInvoiceRepo) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter ledger.InvoiceFilter) ([]*ledger.Invoice, error) {
	var result []*ledger.Invoice
	for _, inv := range r.store.invoices {
		if inv.TenantID == tenantID {
			result = append(result, cloneInvoice(inv))
		}
	}
	return result, nil
}

func (r *fakeInvoiceRepo) FindDunningCandidates(ctx context.Context, tenantID uuid.UUID, dueBefore time.Time) ([]*ledger.Invoice, error) {
	var result []*ledger.Invoice
	for _, inv := range r.store.invoices {
		if inv.TenantID == tenantID && !inv.IsCancelled() && !inv.DueDate.After(dueBefore) {
			result = append(result, cloneInvoice(inv))
		}
	}
	return result, nil
}

func (r *fakeInvoiceRepo) FindOpenItems(ctx context.Context, tenantID uuid.UUID, filter ledger.InvoiceFilter) ([]*ledger.Invoice, error) {
	var result []*ledger.Invoice
	for _, inv := range r.store.invoices {
		if inv.TenantID == tenantID && !inv.IsCancelled() && inv.OpenAmount().GreaterThan(ledger.Epsilon) {
			result = append(result, cloneInvoice(inv))
		}
	}
	return result, nil
}

func (r *fakeInvoiceRepo) Save(ctx context.Context, invoice *ledger.Invoice) error {
	r.store.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (r *fakeInvoiceRepo) SaveWithLock(ctx context.Context, invoice *ledger.Invoice) error {
	current, ok := r.store.invoices[invoice.ID]
	if !ok {
		return shared.NewNotFoundError(invoice.ID.String(), "Invoice not found")
	}
	if current.Version != invoice.Version-1 {
		return shared.NewConcurrencyError(invoice.ID.String(), "Invoice was modified by another process")
	}
	r.store.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (r *fakeInvoiceRepo) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter ledger.InvoiceFilter) (int64, error) {
	invoices, _ := r.FindAllForTenant(ctx, tenantID, filter)
	return int64(len(invoices)), nil
}

type fakeCreditNoteRepo struct {
	store *memoryStore
}

func (r *fakeCreditNoteRepo) FindByID(ctx context.Context, id uuid.UUID) (*ledger.CreditNote, error) {
	cn, ok := r.store.creditNotes[id]
	if !ok {
		return nil, shared.NewNotFoundError(id.String(), "Credit note not found")
	}
	return cloneCreditNote(cn), nil
}

func (r *fakeCreditNoteRepo) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ledger.CreditNote, error) {
	cn, ok := r.store.creditNotes[id]
	if !ok || cn.TenantID != tenantID {
		return nil, shared.NewNotFoundError(id.String(), "Credit note not found")
	}
	return cloneCreditNote(cn), nil
}

func (r *fakeCreditNoteRepo) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]*ledger.CreditNote, error) {
	var result []*ledger.CreditNote
	for _, cn := range r.store.creditNotes {
		if cn.TenantID == tenantID && cn.InvoiceID == invoiceID {
			result = append(result, cloneCreditNote(cn))
		}
	}
	return result, nil
}

func (r *fakeCreditNoteRepo) Save(ctx context.Context, note *ledger.CreditNote) error {
	r.store.creditNotes[note.ID] = cloneCreditNote(note)
	return nil
}

func (r *fakeCreditNoteRepo) SaveWithLock(ctx context.Context, note *ledger.CreditNote) error {
	current, ok := r.store.creditNotes[note.ID]
	if !ok {
		return shared.NewNotFoundError(note.ID.String(), "Credit note not found")
	}
	if current.Version != note.Version-1 {
		return shared.NewConcurrencyError(note.ID.String(), "Credit note was modified by another process")
	}
	r.store.creditNotes[note.ID] = cloneCreditNote(note)
	return nil
}

type fakeBankTransactionRepo struct {
	store *memoryStore
}

func (r *fakeBankTransactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*ledger.BankTransaction, error) {
	tx, ok := r.store.transactions[id]
	if !ok {
		return nil, shared.NewNotFoundError(id.String(), "Bank transaction not found")
	}
	return cloneTransaction(tx), nil
}

func (r *fakeBankTransactionRepo) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ledger.BankTransaction, error) {
	tx, ok := r.store.transactions[id]
	if !ok || tx.TenantID != tenantID {
		return nil, shared.NewNotFoundError(id.String(), "Bank transaction not found")
	}
	return cloneTransaction(tx), nil
}

func (r *fakeBankTransactionRepo) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter ledger.BankTransactionFilter) ([]*ledger.BankTransaction, error) {
	var result []*ledger.BankTransaction
	for _, tx := range r.store.transactions {
		if tx.TenantID == tenantID {
			result = append(result, cloneTransaction(tx))
		}
	}
	return result, nil
}

func (r *fakeBankTransactionRepo) Save(ctx context.Context, tx *ledger.BankTransaction) error {
	r.store.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

func (r *fakeBankTransactionRepo) SaveWithLock(ctx context.Context, tx *ledger.BankTransaction) error {
	current, ok := r.store.transactions[tx.ID]
	if !ok {
		return shared.NewNotFoundError(tx.ID.String(), "Bank transaction not found")
	}
	if current.Version != tx.Version-1 {
		return shared.NewConcurrencyError(tx.ID.String(), "Bank transaction was modified by another process")
	}
	r.store.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

type fakeDunningRepo struct {
	store *memoryStore
}

func (r *fakeDunningRepo) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]*ledger.DunningRecord, error) {
	var result []*ledger.DunningRecord
	for _, d := range r.store.dunnings {
		if d.TenantID == tenantID && d.InvoiceID == invoiceID {
			copied := *d
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DunnedOn.After(result[j].DunnedOn) })
	return result, nil
}

func (r *fakeDunningRepo) FindByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]*ledger.DunningRecord, error) {
	var result []*ledger.DunningRecord
	for _, d := range r.store.dunnings {
		if d.TenantID == tenantID && d.RunID == runID {
			copied := *d
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeDunningRepo) ExistsForDay(ctx context.Context, tenantID, invoiceID uuid.UUID, day time.Time) (bool, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	for _, d := range r.store.dunnings {
		if d.TenantID == tenantID && d.InvoiceID == invoiceID && d.DunnedOn.Equal(dayStart) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDunningRepo) Create(ctx context.Context, record *ledger.DunningRecord) error {
	if exists, _ := r.ExistsForDay(ctx, record.TenantID, record.InvoiceID, record.DunnedOn); exists {
		return shared.NewDuplicateError(record.InvoiceID.String(), "Invoice has already been dunned today")
	}
	copied := *record
	r.store.dunnings[record.ID] = &copied
	return nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}

type memoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{keys: make(map[string]struct{})}
}

func (s *memoryIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *memoryIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *memoryIdempotencyStore) Unmark(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *memoryIdempotencyStore) Close() error { return nil }
