package intervention

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pharmcare/pharmcare/internal/domain/directory"
	"github.com/pharmcare/pharmcare/internal/platform/audit"
	"github.com/pharmcare/pharmcare/internal/platform/notify"
)

// memRepo is an in-memory Repository used across the package tests.
type memRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Intervention

	createFailures int // Create returns ErrDuplicateNumber this many times
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[uuid.UUID]*Intervention)}
}

func cloneIntervention(iv *Intervention) *Intervention {
	raw, _ := json.Marshal(iv)
	var out Intervention
	_ = json.Unmarshal(raw, &out)
	out.IsDeleted = iv.IsDeleted
	return &out
}

func (r *memRepo) Create(_ context.Context, iv *Intervention) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createFailures > 0 {
		r.createFailures--
		return ErrDuplicateNumber
	}
	for _, existing := range r.items {
		if existing.TenantID == iv.TenantID && existing.InterventionNumber == iv.InterventionNumber {
			return ErrDuplicateNumber
		}
	}
	r.items[iv.ID] = cloneIntervention(iv)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Intervention, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	iv, ok := r.items[id]
	if !ok || iv.IsDeleted || iv.TenantID != tenantID {
		return nil, nil
	}
	return cloneIntervention(iv), nil
}

func (r *memRepo) Update(_ context.Context, iv *Intervention) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[iv.ID]
	if !ok || stored.IsDeleted || stored.TenantID != iv.TenantID || stored.VersionID != iv.VersionID {
		return ErrVersionConflict
	}
	next := cloneIntervention(iv)
	next.VersionID++
	r.items[iv.ID] = next
	iv.VersionID++
	return nil
}

func (r *memRepo) SoftDelete(_ context.Context, tenantID string, id uuid.UUID, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if iv, ok := r.items[id]; ok && iv.TenantID == tenantID {
		iv.IsDeleted = true
	}
	return nil
}

func (r *memRepo) MaxSequence(_ context.Context, tenantID, prefix string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, iv := range r.items {
		if iv.TenantID != tenantID || !strings.HasPrefix(iv.InterventionNumber, prefix) {
			continue
		}
		n, err := strconv.Atoi(iv.InterventionNumber[len(prefix):])
		if err == nil && n > max {
			max = n
		}
	}
	return max, nil
}

func (r *memRepo) FindDuplicates(_ context.Context, tenantID string, patientID uuid.UUID, category Category, since time.Time, excludeID *uuid.UUID) ([]*Intervention, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Intervention
	for _, iv := range r.items {
		if iv.IsDeleted || iv.TenantID != tenantID || iv.PatientID != patientID || iv.Category != category {
			continue
		}
		if excludeID != nil && iv.ID == *excludeID {
			continue
		}
		if iv.IdentifiedDate.Before(since) {
			continue
		}
		open := false
		for _, st := range duplicateStatuses {
			if iv.Status == st {
				open = true
				break
			}
		}
		if open {
			out = append(out, cloneIntervention(iv))
		}
	}
	return out, nil
}

func (r *memRepo) Search(_ context.Context, tenantID string, f SearchFilter) ([]*Intervention, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*Intervention
	for _, iv := range r.items {
		if iv.IsDeleted || iv.TenantID != tenantID {
			continue
		}
		if f.PatientID != nil && iv.PatientID != *f.PatientID {
			continue
		}
		if f.Category != nil && iv.Category != *f.Category {
			continue
		}
		if f.Priority != nil && iv.Priority != *f.Priority {
			continue
		}
		if f.Status != nil && iv.Status != *f.Status {
			continue
		}
		if f.IdentifiedBy != nil && iv.IdentifiedByID != *f.IdentifiedBy {
			continue
		}
		if f.AssignedTo != nil && iv.AssignmentFor(*f.AssignedTo) == nil {
			continue
		}
		if f.From != nil && iv.IdentifiedDate.Before(*f.From) {
			continue
		}
		if f.To != nil && iv.IdentifiedDate.After(*f.To) {
			continue
		}
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(iv.InterventionNumber), q) &&
				!strings.Contains(strings.ToLower(iv.IssueDescription), q) {
				continue
			}
		}
		matched = append(matched, cloneIntervention(iv))
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less bool
		switch f.SortBy {
		case "intervention_number":
			less = a.InterventionNumber < b.InterventionNumber
		case "priority":
			less = a.Priority < b.Priority
		case "status":
			less = a.Status < b.Status
		default:
			less = a.IdentifiedDate.Before(b.IdentifiedDate)
		}
		if f.SortDesc {
			return !less
		}
		return less
	})

	total := len(matched)
	if f.Offset > len(matched) {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (r *memRepo) ListByAssignee(_ context.Context, tenantID string, userID uuid.UUID) ([]*Intervention, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Intervention
	for _, iv := range r.items {
		if !iv.IsDeleted && iv.TenantID == tenantID && iv.AssignmentFor(userID) != nil {
			out = append(out, cloneIntervention(iv))
		}
	}
	return out, nil
}

func (r *memRepo) ListByPatient(_ context.Context, tenantID string, patientID uuid.UUID) ([]*Intervention, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Intervention
	for _, iv := range r.items {
		if !iv.IsDeleted && iv.TenantID == tenantID && iv.PatientID == patientID {
			out = append(out, cloneIntervention(iv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentifiedDate.After(out[j].IdentifiedDate) })
	return out, nil
}

func (r *memRepo) ListBetween(_ context.Context, tenantID string, from, to time.Time) ([]*Intervention, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Intervention
	for _, iv := range r.items {
		if iv.IsDeleted || iv.TenantID != tenantID {
			continue
		}
		if iv.IdentifiedDate.Before(from) || iv.IdentifiedDate.After(to) {
			continue
		}
		out = append(out, cloneIntervention(iv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentifiedDate.Before(out[j].IdentifiedDate) })
	return out, nil
}

// fakeAuditor records entries without persistence.
type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAuditor) LogActivity(_ context.Context, e audit.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeAuditor) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Action
	}
	return out
}

func (f *fakeAuditor) hasAction(action string) bool {
	for _, a := range f.actions() {
		if a == action {
			return true
		}
	}
	return false
}

// fakeNotifier records dispatched events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event string, recipients []notify.Recipient, _ notify.Message, _ notify.Urgency) notify.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return notify.Result{Sent: len(recipients)}
}

type testEnv struct {
	svc      *Service
	repo     *memRepo
	patients *directory.MemPatientStore
	users    *directory.MemUserStore
	auditor  *fakeAuditor
	notifier *fakeNotifier

	patient    *directory.Patient
	pharmacist *directory.User
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:     newMemRepo(),
		patients: directory.NewMemPatientStore(),
		users:    directory.NewMemUserStore(),
		auditor:  &fakeAuditor{},
		notifier: &fakeNotifier{},
	}
	env.svc = NewService(env.repo, env.patients, env.users, env.auditor, env.notifier, zerolog.Nop())

	dob := time.Date(1955, 3, 20, 0, 0, 0, 0, time.UTC)
	env.patient = &directory.Patient{
		TenantID: "pharmacy-a", FirstName: "Elena", LastName: "Vasquez",
		MRN: "MRN-4410", DateOfBirth: &dob, Email: "elena@example.com",
	}
	env.patients.Add(env.patient)
	env.pharmacist = &directory.User{
		Name: "Dana Okafor", Email: "dana@pharmacy-a.test", Phone: "+15550100",
		Role: "pharmacist", SMSOptIn: true,
	}
	env.users.Add(env.pharmacist)
	return env
}

func validCreateParams(env *testEnv) CreateParams {
	return CreateParams{
		PatientID:        env.patient.ID,
		Category:         CategoryDrugInteraction,
		Priority:         PriorityMedium,
		IssueDescription: "Warfarin and fluconazole co-prescribed without INR monitoring",
	}
}

func mustCreate(env *testEnv, tenantID string) *Intervention {
	iv, err := env.svc.Create(context.Background(), tenantID, env.pharmacist.ID, validCreateParams(env))
	if err != nil {
		panic(err)
	}
	return iv
}

func validStrategy() Strategy {
	return Strategy{
		Type:            "prescriber_consultation",
		Description:     "Contact prescriber to discuss the warfarin interaction",
		Rationale:       "Azole antifungals potentiate warfarin and raise bleeding risk",
		ExpectedOutcome: "Prescriber adjusts therapy or orders INR monitoring within 48 hours",
	}
}
