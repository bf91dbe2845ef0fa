package machines

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openscience/moderation/internal/application/dispatcher"
	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/event"
	"github.com/openscience/moderation/internal/domain/workflow"
)

// testNow pins every machine clock so audit timestamps are assertable
var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type mockPreprintRepo struct {
	preprints map[string]*entity.Preprint
	updateErr error
	updates   int
}

var _ port.PreprintRepository = (*mockPreprintRepo)(nil)

func newMockPreprintRepo(ps ...*entity.Preprint) *mockPreprintRepo {
	m := &mockPreprintRepo{preprints: map[string]*entity.Preprint{}}
	for _, p := range ps {
		m.preprints[p.ID] = p
	}
	return m
}

func (m *mockPreprintRepo) Create(ctx context.Context, p *entity.Preprint) error {
	m.preprints[p.ID] = p
	return nil
}

func (m *mockPreprintRepo) GetByID(ctx context.Context, id string) (*entity.Preprint, error) {
	p, ok := m.preprints[id]
	if !ok {
		return nil, errors.New("preprint not found")
	}
	return p, nil
}

func (m *mockPreprintRepo) Update(ctx context.Context, p *entity.Preprint) error {
	m.updates++
	return m.updateErr
}

func (m *mockPreprintRepo) ListByProviderAndState(ctx context.Context, providerID string, state workflow.State, limit, offset int) ([]*entity.Preprint, error) {
	return nil, nil
}

type mockRegistrationRepo struct {
	regs        map[string]*entity.Registration
	descendants map[string][]*entity.Registration
	// cascades records UpdateModerationState calls keyed by registration id
	cascades map[string]workflow.State
	updates  int
}

var _ port.RegistrationRepository = (*mockRegistrationRepo)(nil)

func newMockRegistrationRepo(rs ...*entity.Registration) *mockRegistrationRepo {
	m := &mockRegistrationRepo{
		regs:        map[string]*entity.Registration{},
		descendants: map[string][]*entity.Registration{},
		cascades:    map[string]workflow.State{},
	}
	for _, r := range rs {
		m.regs[r.ID] = r
		if r.ParentID != "" {
			m.descendants[r.ParentID] = append(m.descendants[r.ParentID], r)
		}
	}
	return m
}

func (m *mockRegistrationRepo) Create(ctx context.Context, r *entity.Registration) error {
	m.regs[r.ID] = r
	return nil
}

func (m *mockRegistrationRepo) GetByID(ctx context.Context, id string) (*entity.Registration, error) {
	r, ok := m.regs[id]
	if !ok {
		return nil, errors.New("registration not found")
	}
	return r, nil
}

func (m *mockRegistrationRepo) Update(ctx context.Context, r *entity.Registration) error {
	m.updates++
	m.regs[r.ID] = r
	return nil
}

func (m *mockRegistrationRepo) ListDescendants(ctx context.Context, rootID string) ([]*entity.Registration, error) {
	return m.descendants[rootID], nil
}

func (m *mockRegistrationRepo) UpdateModerationState(ctx context.Context, id string, state workflow.State, at time.Time) error {
	m.cascades[id] = state
	if r, ok := m.regs[id]; ok {
		r.ModerationState = state
	}
	return nil
}

func (m *mockRegistrationRepo) ListByProviderAndState(ctx context.Context, providerID string, state workflow.State, limit, offset int) ([]*entity.Registration, error) {
	return nil, nil
}

type mockSanctionRepo struct {
	sanctions map[string]*entity.Sanction
	created   []*entity.Sanction
	pending   []*entity.Sanction
	elapsed   []*entity.Sanction
	updates   int
}

var _ port.SanctionRepository = (*mockSanctionRepo)(nil)

func newMockSanctionRepo(ss ...*entity.Sanction) *mockSanctionRepo {
	m := &mockSanctionRepo{sanctions: map[string]*entity.Sanction{}}
	for _, s := range ss {
		m.sanctions[s.ID] = s
	}
	return m
}

func (m *mockSanctionRepo) Create(ctx context.Context, s *entity.Sanction) error {
	m.sanctions[s.ID] = s
	m.created = append(m.created, s)
	return nil
}

func (m *mockSanctionRepo) GetByID(ctx context.Context, id string) (*entity.Sanction, error) {
	s, ok := m.sanctions[id]
	if !ok {
		return nil, errors.New("sanction not found")
	}
	return s, nil
}

func (m *mockSanctionRepo) Update(ctx context.Context, s *entity.Sanction) error {
	m.updates++
	m.sanctions[s.ID] = s
	return nil
}

func (m *mockSanctionRepo) ListPendingApproval(ctx context.Context, cutoff time.Time) ([]*entity.Sanction, error) {
	return m.pending, nil
}

func (m *mockSanctionRepo) ListElapsedEmbargoes(ctx context.Context, cutoff time.Time) ([]*entity.Sanction, error) {
	return m.elapsed, nil
}

type mockNodeRequestRepo struct {
	requests map[string]*entity.NodeRequest
	updates  int
}

var _ port.NodeRequestRepository = (*mockNodeRequestRepo)(nil)

func newMockNodeRequestRepo(rs ...*entity.NodeRequest) *mockNodeRequestRepo {
	m := &mockNodeRequestRepo{requests: map[string]*entity.NodeRequest{}}
	for _, r := range rs {
		m.requests[r.ID] = r
	}
	return m
}

func (m *mockNodeRequestRepo) Create(ctx context.Context, r *entity.NodeRequest) error {
	m.requests[r.ID] = r
	return nil
}

func (m *mockNodeRequestRepo) GetByID(ctx context.Context, id string) (*entity.NodeRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, errors.New("node request not found")
	}
	return r, nil
}

func (m *mockNodeRequestRepo) Update(ctx context.Context, r *entity.NodeRequest) error {
	m.updates++
	return nil
}

func (m *mockNodeRequestRepo) ListByNode(ctx context.Context, nodeID string) ([]*entity.NodeRequest, error) {
	return nil, nil
}

type mockPreprintRequestRepo struct {
	requests map[string]*entity.PreprintRequest
	updates  int
}

var _ port.PreprintRequestRepository = (*mockPreprintRequestRepo)(nil)

func newMockPreprintRequestRepo(rs ...*entity.PreprintRequest) *mockPreprintRequestRepo {
	m := &mockPreprintRequestRepo{requests: map[string]*entity.PreprintRequest{}}
	for _, r := range rs {
		m.requests[r.ID] = r
	}
	return m
}

func (m *mockPreprintRequestRepo) Create(ctx context.Context, r *entity.PreprintRequest) error {
	m.requests[r.ID] = r
	return nil
}

func (m *mockPreprintRequestRepo) GetByID(ctx context.Context, id string) (*entity.PreprintRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, errors.New("preprint request not found")
	}
	return r, nil
}

func (m *mockPreprintRequestRepo) Update(ctx context.Context, r *entity.PreprintRequest) error {
	m.updates++
	return nil
}

func (m *mockPreprintRequestRepo) ListByPreprint(ctx context.Context, preprintID string) ([]*entity.PreprintRequest, error) {
	return nil, nil
}

type mockCollectionRepo struct {
	submissions map[string]*entity.CollectionSubmission
	updates     int
}

var _ port.CollectionSubmissionRepository = (*mockCollectionRepo)(nil)

func newMockCollectionRepo(ss ...*entity.CollectionSubmission) *mockCollectionRepo {
	m := &mockCollectionRepo{submissions: map[string]*entity.CollectionSubmission{}}
	for _, s := range ss {
		m.submissions[s.ID] = s
	}
	return m
}

func (m *mockCollectionRepo) Create(ctx context.Context, s *entity.CollectionSubmission) error {
	m.submissions[s.ID] = s
	return nil
}

func (m *mockCollectionRepo) GetByID(ctx context.Context, id string) (*entity.CollectionSubmission, error) {
	s, ok := m.submissions[id]
	if !ok {
		return nil, errors.New("collection submission not found")
	}
	return s, nil
}

func (m *mockCollectionRepo) Update(ctx context.Context, s *entity.CollectionSubmission) error {
	m.updates++
	return nil
}

func (m *mockCollectionRepo) ListByProviderAndState(ctx context.Context, providerID string, state workflow.State, limit, offset int) ([]*entity.CollectionSubmission, error) {
	return nil, nil
}

type mockNodeRepo struct {
	node    *entity.Node
	updates int
}

var _ port.NodeRepository = (*mockNodeRepo)(nil)

func (m *mockNodeRepo) GetByID(ctx context.Context, id string) (*entity.Node, error) {
	if m.node == nil || m.node.ID != id {
		return nil, errors.New("node not found")
	}
	return m.node, nil
}

func (m *mockNodeRepo) Update(ctx context.Context, n *entity.Node) error {
	m.updates++
	return nil
}

type mockProviderRepo struct {
	provider *entity.Provider
}

var _ port.ProviderRepository = (*mockProviderRepo)(nil)

func (m *mockProviderRepo) Create(ctx context.Context, p *entity.Provider) error { return nil }

func (m *mockProviderRepo) GetByID(ctx context.Context, id string) (*entity.Provider, error) {
	if m.provider == nil || m.provider.ID != id {
		return nil, errors.New("provider not found")
	}
	return m.provider, nil
}

func (m *mockProviderRepo) Update(ctx context.Context, p *entity.Provider) error { return nil }

type mockActionRepo struct {
	actions   []*entity.Action
	createErr error
}

var _ port.ActionRepository = (*mockActionRepo)(nil)

func (m *mockActionRepo) Create(ctx context.Context, a *entity.Action) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.actions = append(m.actions, a)
	return nil
}

func (m *mockActionRepo) GetByID(ctx context.Context, id string) (*entity.Action, error) {
	return nil, errors.New("action not found")
}

func (m *mockActionRepo) ListByTarget(ctx context.Context, target entity.TargetRef) ([]*entity.Action, error) {
	var out []*entity.Action
	for _, a := range m.actions {
		if a.Target == target {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockActionRepo) ListByProvider(ctx context.Context, providerID string, since time.Time) ([]*entity.Action, error) {
	return m.actions, nil
}

// byTarget filters recorded actions by target kind
func (m *mockActionRepo) byTarget(kind entity.TargetKind) []*entity.Action {
	var out []*entity.Action
	for _, a := range m.actions {
		if a.Target.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// mockPerms grants capabilities per user, ignoring the provider: every
// machine under test runs against a single provider fixture.
type mockPerms struct {
	grants map[string][]entity.Capability
	err    error
}

var _ port.PermissionOracle = (*mockPerms)(nil)

func (m *mockPerms) HasProviderCapability(ctx context.Context, userID string, cap entity.Capability, providerID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, c := range m.grants[userID] {
		if c == cap {
			return true, nil
		}
	}
	return false, nil
}

type mockTokens struct {
	issueErr    error
	validateErr error
}

var _ port.TokenService = (*mockTokens)(nil)

func (m *mockTokens) TokenForUser(userID, sanctionID string, purpose port.TokenPurpose) (string, error) {
	if m.issueErr != nil {
		return "", m.issueErr
	}
	return "tok-" + userID + "-" + string(purpose), nil
}

func (m *mockTokens) ValidateToken(token, userID, sanctionID string, purpose port.TokenPurpose) error {
	if m.validateErr != nil {
		return m.validateErr
	}
	if token != "tok-"+userID+"-"+string(purpose) {
		return errors.New("token does not match user and purpose")
	}
	return nil
}

type mockTxManager struct {
	calls int
}

var _ port.TransactionManager = (*mockTxManager)(nil)

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

// mockDispatcher records dispatched events; machines only ever call
// DispatchAsync after commit.
type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

var _ dispatcher.Dispatcher = (*mockDispatcher)(nil)

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.record(evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.record(evt)
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo { return nil }

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) record(evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ofType(t event.Type) []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*event.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
