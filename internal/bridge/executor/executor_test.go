package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bugbridge/internal/bridge/models"
	"bugbridge/internal/bridge/render"
	"bugbridge/internal/bridge/retry"
	"bugbridge/internal/bridge/store/correlation"
)

var errTransient = errors.New("remote hiccup")
var errPermanent = errors.New("remote rejected request")

func classify(err error) retry.Class {
	if errors.Is(err, errTransient) {
		return retry.Retryable
	}
	return retry.Terminal
}

type createCall struct {
	project string
	fields  map[string]any
}

type fakeClient struct {
	mu          sync.Mutex
	nextKey     string
	created     []createCall
	updated     []string
	comments    []string
	transitions []string

	createErrs     []error
	updateErrs     []error
	commentErrs    []error
	transitionErrs []error

	onCreate func()
}

func newFakeClient() *fakeClient {
	return &fakeClient{nextKey: "FX-101"}
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (c *fakeClient) CreateIssue(_ context.Context, project string, fields map[string]any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onCreate != nil {
		c.onCreate()
	}
	if err := pop(&c.createErrs); err != nil {
		return "", err
	}
	c.created = append(c.created, createCall{project: project, fields: fields})
	return c.nextKey, nil
}

func (c *fakeClient) UpdateFields(_ context.Context, key string, _ map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := pop(&c.updateErrs); err != nil {
		return err
	}
	c.updated = append(c.updated, key)
	return nil
}

func (c *fakeClient) AddComment(_ context.Context, key, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := pop(&c.commentErrs); err != nil {
		return err
	}
	c.comments = append(c.comments, key)
	return nil
}

func (c *fakeClient) TransitionStatus(_ context.Context, key, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := pop(&c.transitionErrs); err != nil {
		return err
	}
	c.transitions = append(c.transitions, key+":"+status)
	return nil
}

func (c *fakeClient) remoteCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.created) + len(c.updated) + len(c.comments) + len(c.transitions)
}

type ExecutorSuite struct {
	suite.Suite
	client *fakeClient
	store  *correlation.InMemoryStore
	exec   *Executor
	ctx    context.Context
}

func TestExecutorSuite(t *testing.T) {
	suite.Run(t, new(ExecutorSuite))
}

func (s *ExecutorSuite) SetupTest() {
	s.client = newFakeClient()
	s.store = correlation.NewInMemoryStore()
	s.ctx = context.Background()

	policy := retry.Policy{MaxAttempts: 3}.WithSleep(
		func(context.Context, time.Duration) error { return nil })

	var err error
	s.exec, err = New(s.client, s.store, policy, classify)
	s.Require().NoError(err)
}

func (s *ExecutorSuite) action(steps ...models.Step) models.ActionConfig {
	return models.ActionConfig{
		Name:    "firefox-crash",
		Project: "FX",
		When:    models.Predicate{WhiteboardTag: "needs-jira"},
		Steps:   steps,
		Templates: map[string]string{
			"summary": "{{ .summary }}",
			"comment": "{{ .comment }}",
		},
		StatusMap:     map[string]string{"RESOLVED": "Done"},
		ResolutionMap: map[string]string{"WONTFIX": "Closed"},
	}
}

func (s *ExecutorSuite) event() models.Event {
	return models.Event{
		SourceID: "BUG-42",
		Target:   models.TargetBug,
		Kind:     models.ChangeCreated,
		Bug: models.BugSnapshot{
			Summary:    "Crash on startup",
			Whiteboard: "[needs-jira]",
		},
	}
}

func (s *ExecutorSuite) commentEvent() models.Event {
	e := s.event()
	e.Target = models.TargetComment
	e.Comment = &models.CommentSnapshot{Body: "a fresh stack trace"}
	return e
}

func (s *ExecutorSuite) fields() *render.FieldSet {
	return &render.FieldSet{
		Values: map[string]string{
			"summary": "Crash on startup",
			"comment": "a fresh stack trace",
		},
		Labels: []string{"needs-jira", "bugzilla-label-needs-jira"},
	}
}

func (s *ExecutorSuite) seedCorrelation(targetID string) {
	_, _, err := s.store.CreateIfAbsent(s.ctx, "BUG-42", targetID)
	s.Require().NoError(err)
}

func createStep() models.Step {
	return models.Step{Kind: models.StepCreateIssue, Fields: map[string]string{"summary": "summary"}}
}

func updateStep() models.Step {
	return models.Step{Kind: models.StepUpdateFields, Fields: map[string]string{"summary": "summary"}}
}

func commentStep() models.Step {
	return models.Step{Kind: models.StepAddComment, Template: "comment"}
}

func syncStep() models.Step {
	return models.Step{Kind: models.StepSyncStatus}
}

func (s *ExecutorSuite) TestCreatePersistsCorrelation() {
	res := s.exec.Execute(s.ctx, s.event(), s.action(createStep()), s.fields())

	s.Equal(models.ResultApplied, res.Kind)
	s.Equal("FX-101", res.TargetID)
	s.Equal(1, res.StepsApplied)

	s.Require().Len(s.client.created, 1)
	call := s.client.created[0]
	s.Equal("FX", call.project)
	s.Equal("Crash on startup", call.fields["summary"])
	s.Equal("Bug", call.fields["issuetype"])
	s.Equal([]string{"needs-jira", "bugzilla-label-needs-jira"}, call.fields["labels"])

	rec, err := s.store.Get(s.ctx, "BUG-42")
	s.Require().NoError(err)
	s.Equal("FX-101", rec.TargetID)
}

func (s *ExecutorSuite) TestDuplicateDeliveryNeverCreatesTwice() {
	action := s.action(createStep())
	first := s.exec.Execute(s.ctx, s.event(), action, s.fields())
	second := s.exec.Execute(s.ctx, s.event(), action, s.fields())

	s.Equal(models.ResultApplied, first.Kind)
	s.Equal(models.ResultApplied, second.Kind)
	s.Equal(first.TargetID, second.TargetID)
	s.Len(s.client.created, 1)
}

func (s *ExecutorSuite) TestIssueTypeMapping() {
	event := s.event()
	event.Bug.Type = "enhancement"
	res := s.exec.Execute(s.ctx, event, s.action(createStep()), s.fields())

	s.Equal(models.ResultApplied, res.Kind)
	s.Require().Len(s.client.created, 1)
	s.Equal("Task", s.client.created[0].fields["issuetype"])
}

func (s *ExecutorSuite) TestUpdateWithoutCorrelationSkips() {
	res := s.exec.Execute(s.ctx, s.event(), s.action(updateStep()), s.fields())

	s.Equal(models.ResultSkipped, res.Kind)
	s.Equal(ReasonNoCorrelation, res.Reason)
	s.Equal(0, s.client.remoteCalls())
}

func (s *ExecutorSuite) TestUpdateRoutesToStoredTarget() {
	s.seedCorrelation("FX-7")

	res := s.exec.Execute(s.ctx, s.event(), s.action(updateStep()), s.fields())
	s.Equal(models.ResultApplied, res.Kind)
	s.Equal("FX-7", res.TargetID)
	s.Equal([]string{"FX-7"}, s.client.updated)
}

func (s *ExecutorSuite) TestTransientCreateRetriedToSuccess() {
	s.client.createErrs = []error{errTransient}

	res := s.exec.Execute(s.ctx, s.event(), s.action(createStep()), s.fields())
	s.Equal(models.ResultApplied, res.Kind)
	s.Equal("FX-101", res.TargetID)
	s.Len(s.client.created, 1)
}

func (s *ExecutorSuite) TestRetryExhaustion() {
	s.seedCorrelation("FX-7")
	s.client.updateErrs = []error{errTransient, errTransient, errTransient}

	res := s.exec.Execute(s.ctx, s.event(), s.action(updateStep()), s.fields())
	s.Equal(models.ResultFailed, res.Kind)
	s.Equal(models.FailureRetryExhausted, res.Failure)
	s.Empty(s.client.updated)
}

func (s *ExecutorSuite) TestRetryEntryAdoptsLostResponseCreate() {
	// The first attempt's create lands remotely but the response is lost; a
	// concurrent delivery stores the correlation. The retry must re-resolve
	// and adopt rather than create a duplicate.
	s.client.createErrs = []error{errTransient}
	s.client.onCreate = func() {
		_, _, _ = s.store.CreateIfAbsent(s.ctx, "BUG-42", "FX-900")
	}

	res := s.exec.Execute(s.ctx, s.event(), s.action(createStep()), s.fields())
	s.Equal(models.ResultApplied, res.Kind)
	s.Equal("FX-900", res.TargetID)
	s.Empty(s.client.created)
}

func (s *ExecutorSuite) TestPartialFailureSurfacedDistinctly() {
	s.client.updateErrs = []error{errPermanent}
	res := s.exec.Execute(s.ctx, s.event(), s.action(createStep(), updateStep()), s.fields())

	s.Equal(models.ResultPartiallyApplied, res.Kind)
	s.Equal(models.FailureRemoteTerminal, res.Failure)
	s.Equal(1, res.StepsApplied)
	s.Equal("FX-101", res.TargetID)

	// The correlation survived the partial failure, so the next delivery
	// resumes with an update instead of re-creating.
	rec, err := s.store.Get(s.ctx, "BUG-42")
	s.Require().NoError(err)
	s.Equal("FX-101", rec.TargetID)
}

func (s *ExecutorSuite) TestTerminalFailureOnFirstStep() {
	s.client.createErrs = []error{errPermanent}
	res := s.exec.Execute(s.ctx, s.event(), s.action(createStep()), s.fields())

	s.Equal(models.ResultFailed, res.Kind)
	s.Equal(models.FailureRemoteTerminal, res.Failure)
	s.Equal(0, res.StepsApplied)
}

func (s *ExecutorSuite) TestLosingCorrelationRaceAdoptsWinner() {
	race := &racingStore{InMemoryStore: s.store, competitor: "FX-OTHER"}
	exec, err := New(s.client, race, retry.Policy{MaxAttempts: 1}, classify)
	s.Require().NoError(err)

	res := exec.Execute(s.ctx, s.event(), s.action(createStep()), s.fields())
	s.Equal(models.ResultApplied, res.Kind)
	s.Equal("FX-OTHER", res.TargetID)
}

func (s *ExecutorSuite) TestCommentEventRunsOnlyCommentSteps() {
	s.seedCorrelation("FX-7")

	res := s.exec.Execute(s.ctx, s.commentEvent(), s.action(createStep(), commentStep()), s.fields())
	s.Equal(models.ResultApplied, res.Kind)
	s.Empty(s.client.created)
	s.Equal([]string{"FX-7"}, s.client.comments)
}

func (s *ExecutorSuite) TestCommentEventWithoutCorrelationSkips() {
	res := s.exec.Execute(s.ctx, s.commentEvent(), s.action(createStep(), commentStep()), s.fields())
	s.Equal(models.ResultSkipped, res.Kind)
	s.Equal(ReasonNoCorrelation, res.Reason)
	s.Equal(0, s.client.remoteCalls())
}

func (s *ExecutorSuite) TestCommentEventWithoutCommentStepSkips() {
	res := s.exec.Execute(s.ctx, s.commentEvent(), s.action(createStep()), s.fields())
	s.Equal(models.ResultSkipped, res.Kind)
	s.Equal(ReasonNoCommentStep, res.Reason)
}

func (s *ExecutorSuite) TestEmptyCommentBodyIsNoOp() {
	s.seedCorrelation("FX-7")

	fields := s.fields()
	fields.Values["comment"] = "  "
	res := s.exec.Execute(s.ctx, s.commentEvent(), s.action(commentStep()), fields)
	s.Equal(models.ResultApplied, res.Kind)
	s.Equal(0, res.StepsApplied)
	s.Empty(s.client.comments)
}

func (s *ExecutorSuite) TestSyncStatusMapped() {
	s.seedCorrelation("FX-7")

	event := s.event()
	event.Bug.Status = "RESOLVED"
	res := s.exec.Execute(s.ctx, event, s.action(syncStep()), s.fields())
	s.Equal(models.ResultApplied, res.Kind)
	s.Equal([]string{"FX-7:Done"}, s.client.transitions)
}

func (s *ExecutorSuite) TestSyncStatusResolutionWins() {
	s.seedCorrelation("FX-7")

	event := s.event()
	event.Bug.Status = "RESOLVED"
	event.Bug.Resolution = "WONTFIX"
	res := s.exec.Execute(s.ctx, event, s.action(syncStep()), s.fields())
	s.Equal(models.ResultApplied, res.Kind)
	s.Equal([]string{"FX-7:Closed"}, s.client.transitions)
}

func (s *ExecutorSuite) TestSyncStatusUnmappedIsNoOp() {
	s.seedCorrelation("FX-7")

	event := s.event()
	event.Bug.Status = "UNCONFIRMED"
	res := s.exec.Execute(s.ctx, event, s.action(syncStep()), s.fields())
	s.Equal(models.ResultApplied, res.Kind)
	s.Equal(0, res.StepsApplied)
	s.Empty(s.client.transitions)
}

func (s *ExecutorSuite) TestCanceledBeforeSideEffects() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	res := s.exec.Execute(ctx, s.event(), s.action(createStep()), s.fields())
	s.Equal(models.ResultFailed, res.Kind)
	s.Equal(models.FailureCanceled, res.Failure)
	s.Equal(0, s.client.remoteCalls())
}

// racingStore makes every CreateIfAbsent lose to a competitor that slips
// in first, exercising the adoption path.
type racingStore struct {
	*correlation.InMemoryStore
	competitor string
}

func (r *racingStore) CreateIfAbsent(ctx context.Context, sourceID, targetID string) (models.CorrelationRecord, bool, error) {
	if _, _, err := r.InMemoryStore.CreateIfAbsent(ctx, sourceID, r.competitor); err != nil {
		return models.CorrelationRecord{}, false, err
	}
	return r.InMemoryStore.CreateIfAbsent(ctx, sourceID, targetID)
}
