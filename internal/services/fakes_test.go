package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/company-marketplace/backend/internal/models"
	"github.com/company-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
)

type memChanges struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.ChangeRecord
	clock   time.Time // shared by every record, so order comes from seq
	seq     int64

	// beforeMark runs inside MarkApproved/MarkRejected before the status
	// check, to simulate another moderator deciding first.
	beforeMark     func(r *models.ChangeRecord)
	markAppliedErr error
}

func newMemChanges() *memChanges {
	return &memChanges{
		records: map[uuid.UUID]*models.ChangeRecord{},
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memChanges) Create(_ context.Context, c *models.ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c.ID = uuid.New()
	c.Seq = m.seq
	c.CreatedAt = m.clock
	cp := *c
	m.records[c.ID] = &cp
	return nil
}

func (m *memChanges) GetByID(_ context.Context, id uuid.UUID) (*models.ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("change %s: %w", id, models.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *memChanges) GetByIDs(_ context.Context, ids []uuid.UUID) ([]models.ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChangeRecord
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memChanges) List(_ context.Context, f repositories.ChangeFilter) ([]models.ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChangeRecord
	for _, r := range m.records {
		if f.CompanyID != nil && r.CompanyID != *f.CompanyID {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.ChangeType != nil && r.ChangeType != *f.ChangeType {
			continue
		}
		if f.Unapplied && !r.IsStuck() {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memChanges) MarkApproved(_ context.Context, id, approverID uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return false, nil
	}
	if m.beforeMark != nil {
		m.beforeMark(r)
	}
	if r.Status != models.ChangeStatusPending {
		return false, nil
	}
	r.Status = models.ChangeStatusApproved
	r.ApproverID = &approverID
	r.ApprovedAt = &at
	return true, nil
}

func (m *memChanges) MarkRejected(_ context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return false, nil
	}
	if m.beforeMark != nil {
		m.beforeMark(r)
	}
	if r.Status != models.ChangeStatusPending {
		return false, nil
	}
	r.Status = models.ChangeStatusRejected
	r.RejectionReason = &reason
	r.RejectedAt = &at
	return true, nil
}

func (m *memChanges) MarkApplied(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markAppliedErr != nil {
		return false, m.markAppliedErr
	}
	r, ok := m.records[id]
	if !ok || !r.IsStuck() {
		return false, nil
	}
	r.AppliedAt = &at
	r.ApplyClaimedUntil = nil
	return true, nil
}

func (m *memChanges) ClaimApply(_ context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || !r.IsStuck() || (r.ApplyClaimedUntil != nil && r.ApplyClaimedUntil.After(now)) {
		return false, nil
	}
	r.ApplyClaimedUntil = &until
	return true, nil
}

func (m *memChanges) ReleaseApply(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok && r.AppliedAt == nil {
		r.ApplyClaimedUntil = nil
	}
	return nil
}

type memCompanies struct {
	mu        sync.Mutex
	companies map[uuid.UUID]*models.Company
}

func newMemCompanies(companies ...*models.Company) *memCompanies {
	m := &memCompanies{companies: map[uuid.UUID]*models.Company{}}
	for _, c := range companies {
		m.companies[c.ID] = c
	}
	return m
}

func (m *memCompanies) get(id uuid.UUID) (*models.Company, error) {
	c, ok := m.companies[id]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", id, models.ErrNotFound)
	}
	return c, nil
}

func (m *memCompanies) GetByID(_ context.Context, id uuid.UUID) (*models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(id)
	if err != nil {
		return nil, err
	}
	cp := *c
	cp.CategoryIDs = append([]int64(nil), c.CategoryIDs...)
	return &cp, nil
}

func (m *memCompanies) UpdateAttributes(_ context.Context, id uuid.UUID, attrs map[string]any) (*models.Company, *models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(id)
	if err != nil {
		return nil, nil, err
	}
	before := *c
	after := *c
	if err := after.ApplyAttributes(attrs); err != nil {
		return nil, nil, err
	}
	after.LockVersion++
	*c = after
	return &before, &after, nil
}

func (m *memCompanies) AddCategories(_ context.Context, id uuid.UUID, categoryIDs []int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(id)
	if err != nil {
		return 0, err
	}
	added := 0
	have := map[int64]bool{}
	for _, cat := range c.CategoryIDs {
		have[cat] = true
	}
	for _, cat := range categoryIDs {
		if !have[cat] {
			have[cat] = true
			c.CategoryIDs = append(c.CategoryIDs, cat)
			added++
		}
	}
	sort.Slice(c.CategoryIDs, func(i, j int) bool { return c.CategoryIDs[i] < c.CategoryIDs[j] })
	c.LockVersion++
	return added, nil
}

func (m *memCompanies) RemoveCategories(_ context.Context, id uuid.UUID, categoryIDs []int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(id)
	if err != nil {
		return 0, err
	}
	drop := map[int64]bool{}
	for _, cat := range categoryIDs {
		drop[cat] = true
	}
	kept := c.CategoryIDs[:0]
	removed := 0
	for _, cat := range c.CategoryIDs {
		if drop[cat] {
			removed++
			continue
		}
		kept = append(kept, cat)
	}
	c.CategoryIDs = kept
	c.LockVersion++
	return removed, nil
}

func (m *memCompanies) UpdateCTA(_ context.Context, id uuid.UUID, change models.CTAConfigChange) (*models.CTAConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(id)
	if err != nil {
		return nil, err
	}
	c.CTA.Merge(change)
	c.LockVersion++
	cta := c.CTA
	return &cta, nil
}

// memAttachments stores blob ids per company slot. appendErr, when set,
// fails Append for the blobs it names.
type memAttachments struct {
	mu        sync.Mutex
	slots     map[uuid.UUID]map[string][]uuid.UUID
	appendErr map[uuid.UUID]error
}

func newMemAttachments() *memAttachments {
	return &memAttachments{slots: map[uuid.UUID]map[string][]uuid.UUID{}}
}

func (m *memAttachments) company(id uuid.UUID) map[string][]uuid.UUID {
	if m.slots[id] == nil {
		m.slots[id] = map[string][]uuid.UUID{}
	}
	return m.slots[id]
}

func (m *memAttachments) Attach(_ context.Context, companyID uuid.UUID, slot string, blob *models.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.company(companyID)[slot] = []uuid.UUID{blob.ID}
	return nil
}

func (m *memAttachments) Append(_ context.Context, companyID uuid.UUID, collection string, blob *models.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.appendErr[blob.ID]; err != nil {
		return err
	}
	c := m.company(companyID)
	c[collection] = append(c[collection], blob.ID)
	return nil
}

func (m *memAttachments) blobs(companyID uuid.UUID, slot string) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.slots[companyID][slot]...)
}

// fakeBlobs resolves signed ids from a fixed table.
type fakeBlobs struct {
	mu    sync.Mutex
	blobs map[string]*models.Blob
	block bool          // wait for ctx to end
	delay time.Duration // per lookup
	down  error         // storage outage
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: map[string]*models.Blob{}}
}

func (f *fakeBlobs) add(signedID string) *models.Blob {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &models.Blob{ID: uuid.New(), Key: "uploads/" + signedID}
	f.blobs[signedID] = b
	return b
}

func (f *fakeBlobs) Resolve(ctx context.Context, signedID string) (*models.Blob, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.down != nil {
		return nil, f.down
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[signedID]
	if !ok {
		return nil, fmt.Errorf("signed id %q: %w", signedID, models.ErrBlobNotFound)
	}
	return b, nil
}

type memProducts struct {
	mu       sync.Mutex
	products map[uuid.UUID]*models.Product
}

func newMemProducts() *memProducts {
	return &memProducts{products: map[uuid.UUID]*models.Product{}}
}

func (m *memProducts) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) Create(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memProducts) Update(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return fmt.Errorf("product %s: %w", p.ID, models.ErrNotFound)
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

type memUsers struct {
	mu        sync.Mutex
	companies map[uuid.UUID]*uuid.UUID
}

func newMemUsers(ids ...uuid.UUID) *memUsers {
	m := &memUsers{companies: map[uuid.UUID]*uuid.UUID{}}
	for _, id := range ids {
		m.companies[id] = nil
	}
	return m
}

func (m *memUsers) SetCompany(_ context.Context, userID, companyID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[userID]; !ok {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	m.companies[userID] = &companyID
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (m *memAudit) Log(_ context.Context, entry models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAudit) GetByEntity(_ context.Context, entityType string, entityID uuid.UUID, _ int) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAudit) actions(id uuid.UUID) []string {
	entries, _ := m.GetByEntity(context.Background(), models.EntityTypeChangeRecord, id, 0)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

type notification struct {
	recipient string
	msg       Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(_ context.Context, recipient string, msg Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{recipient: recipient, msg: msg})
}

func (n *recordingNotifier) events(recipient string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.recipient == recipient {
			out = append(out, s.msg.Event)
		}
	}
	return out
}
