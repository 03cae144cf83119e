package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"mailagent/internal/gmailc"
	"mailagent/internal/llm"
	"mailagent/internal/model"
	"mailagent/internal/store"
)

type fakeMailbox struct {
	pages    [][]string
	msgs     map[string]*model.Message
	listErr  error
	fetchErr map[string]error
}

func (f *fakeMailbox) ListMessageIDs(ctx context.Context, since time.Time, pageToken string, max int64) ([]string, string, error) {
	if f.listErr != nil {
		return nil, "", f.listErr
	}
	page := 0
	if pageToken != "" {
		page, _ = strconv.Atoi(pageToken)
	}
	if page >= len(f.pages) {
		return nil, "", nil
	}
	next := ""
	if page+1 < len(f.pages) {
		next = strconv.Itoa(page + 1)
	}
	return f.pages[page], next, nil
}

func (f *fakeMailbox) FetchMessage(ctx context.Context, id string) (*model.Message, error) {
	if err := f.fetchErr[id]; err != nil {
		return nil, err
	}
	msg, ok := f.msgs[id]
	if !ok {
		return nil, fmt.Errorf("no such message %s", id)
	}
	return msg, nil
}

type fakeClassifier struct {
	errs  map[string]error
	calls atomic.Int64
}

func (f *fakeClassifier) Classify(ctx context.Context, msg *model.Message) (model.Classification, error) {
	f.calls.Add(1)
	if err := f.errs[msg.ID]; err != nil {
		return model.Classification{}, err
	}
	summary := "summary of " + msg.ID
	return model.Classification{
		Importance: model.ImportanceMedium,
		Category:   model.CategoryProfessional,
		Summary:    &summary,
	}, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mailboxMsg(id string, receivedAt time.Time) *model.Message {
	body := "body of " + id
	return &model.Message{
		ID:         id,
		ThreadID:   "t-" + id,
		FromAddr:   "sender@example.com",
		ToAddr:     "me@example.com",
		Subject:    "Subject " + id,
		BodyText:   body,
		BodyHash:   model.BodyFingerprint(body),
		ReceivedAt: receivedAt,
		Status:     model.StatusUnread,
		Importance: model.ImportanceUnset,
		Category:   model.CategoryUnset,
	}
}

func threeMessages() (*fakeMailbox, []time.Time) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}
	return &fakeMailbox{
		pages: [][]string{{"m1", "m2", "m3"}},
		msgs: map[string]*model.Message{
			"m1": mailboxMsg("m1", times[0]),
			"m2": mailboxMsg("m2", times[1]),
			"m3": mailboxMsg("m3", times[2]),
		},
		fetchErr: map[string]error{},
	}, times
}

func TestSyncRecentPartialClassification(t *testing.T) {
	mailbox, times := threeMessages()
	st := newTestStore(t)
	cls := &fakeClassifier{errs: map[string]error{
		"m2": fmt.Errorf("classify: %w", llm.ErrUnavailable),
	}}
	orch := New(mailbox, cls, st, 2, nil)
	ctx := context.Background()

	report, err := orch.SyncRecent(ctx, 50, true)
	if err != nil {
		t.Fatalf("SyncRecent: %v", err)
	}

	if report.Fetched != 3 || report.Stored != 3 || report.Classified != 2 || report.Failed != 1 {
		t.Errorf("report = fetched:%d stored:%d classified:%d failed:%d, want 3/3/2/1",
			report.Fetched, report.Stored, report.Classified, report.Failed)
	}
	if len(report.Errors) != 1 {
		t.Errorf("got %d error entries, want 1", len(report.Errors))
	}

	// The failed message is stored but fully unclassified, ready for retry.
	m2, err := st.GetMessage(ctx, "m2")
	if err != nil {
		t.Fatalf("GetMessage m2: %v", err)
	}
	if m2.Importance != model.ImportanceUnset || m2.Category != model.CategoryUnset || m2.AISummary != nil {
		t.Errorf("m2 partially classified: %q/%q/%v", m2.Importance, m2.Category, m2.AISummary)
	}

	for _, id := range []string{"m1", "m3"} {
		msg, err := st.GetMessage(ctx, id)
		if err != nil {
			t.Fatalf("GetMessage %s: %v", id, err)
		}
		if !msg.Classified() {
			t.Errorf("%s not classified: %q/%q", id, msg.Importance, msg.Category)
		}
	}

	cp, err := st.GetCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if !cp.LastSyncedAt.Equal(times[2]) {
		t.Errorf("checkpoint = %v, want %v", cp.LastSyncedAt, times[2])
	}
}

func TestSyncRecentAuthAborts(t *testing.T) {
	mailbox, times := threeMessages()
	mailbox.fetchErr["m2"] = fmt.Errorf("fetch: %w", gmailc.ErrAuth)
	st := newTestStore(t)
	orch := New(mailbox, &fakeClassifier{}, st, 2, nil)
	ctx := context.Background()

	report, err := orch.SyncRecent(ctx, 50, true)
	if !errors.Is(err, gmailc.ErrAuth) {
		t.Fatalf("got %v, want ErrAuth", err)
	}
	if report.Stored != 1 {
		t.Errorf("stored = %d, want 1 before the abort", report.Stored)
	}

	// What was stored before the abort is durable and checkpointed.
	cp, err := st.GetCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if !cp.LastSyncedAt.Equal(times[0]) {
		t.Errorf("checkpoint = %v, want %v", cp.LastSyncedAt, times[0])
	}
}

func TestCheckpointNeverPassesFailedMessage(t *testing.T) {
	mailbox, times := threeMessages()
	mailbox.fetchErr["m3"] = errors.New("temporary provider error")
	st := newTestStore(t)
	orch := New(mailbox, &fakeClassifier{}, st, 2, nil)
	ctx := context.Background()

	report, err := orch.SyncRecent(ctx, 50, true)
	if err != nil {
		t.Fatalf("SyncRecent: %v", err)
	}
	if report.Stored != 2 || report.Failed != 1 {
		t.Errorf("stored = %d failed = %d, want 2/1", report.Stored, report.Failed)
	}

	// m3 failed, so the checkpoint stops at m2 and the next run retries m3.
	cp, err := st.GetCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if !cp.LastSyncedAt.Equal(times[1]) {
		t.Errorf("checkpoint = %v, want %v", cp.LastSyncedAt, times[1])
	}
}

func TestSecondSyncSkipsClassifiedMessages(t *testing.T) {
	mailbox, _ := threeMessages()
	st := newTestStore(t)
	cls := &fakeClassifier{}
	orch := New(mailbox, cls, st, 2, nil)
	ctx := context.Background()

	if _, err := orch.SyncRecent(ctx, 50, true); err != nil {
		t.Fatalf("first SyncRecent: %v", err)
	}
	if got := cls.calls.Load(); got != 3 {
		t.Fatalf("first run classifier calls = %d, want 3", got)
	}

	// Day-granular provider queries re-list the same messages; none of
	// them go back to the model while the body is unchanged.
	report, err := orch.SyncRecent(ctx, 50, true)
	if err != nil {
		t.Fatalf("second SyncRecent: %v", err)
	}
	if report.Stored != 3 || report.Classified != 0 || report.Failed != 0 {
		t.Errorf("second report = stored:%d classified:%d failed:%d, want 3/0/0",
			report.Stored, report.Classified, report.Failed)
	}
	if got := cls.calls.Load(); got != 3 {
		t.Errorf("second run issued %d extra classifier calls", got-3)
	}
}

func TestSecondSyncRetriesOnlyUnclassified(t *testing.T) {
	mailbox, _ := threeMessages()
	st := newTestStore(t)
	cls := &fakeClassifier{errs: map[string]error{
		"m2": fmt.Errorf("classify: %w", llm.ErrUnavailable),
	}}
	orch := New(mailbox, cls, st, 2, nil)
	ctx := context.Background()

	if _, err := orch.SyncRecent(ctx, 50, true); err != nil {
		t.Fatalf("first SyncRecent: %v", err)
	}

	delete(cls.errs, "m2")
	report, err := orch.SyncRecent(ctx, 50, true)
	if err != nil {
		t.Fatalf("second SyncRecent: %v", err)
	}
	if report.Classified != 1 || report.Failed != 0 {
		t.Errorf("second report = classified:%d failed:%d, want 1/0",
			report.Classified, report.Failed)
	}
	if got := cls.calls.Load(); got != 4 {
		t.Errorf("classifier calls = %d, want 3 + 1 retry", got)
	}

	m2, err := st.GetMessage(ctx, "m2")
	if err != nil {
		t.Fatalf("GetMessage m2: %v", err)
	}
	if !m2.Classified() {
		t.Errorf("m2 still unclassified after retry: %q/%q", m2.Importance, m2.Category)
	}
}

func TestSyncHistoricalLeavesCheckpointAlone(t *testing.T) {
	mailbox, _ := threeMessages()
	st := newTestStore(t)
	orch := New(mailbox, &fakeClassifier{}, st, 2, nil)
	ctx := context.Background()

	report, err := orch.SyncHistorical(ctx, 30, true)
	if err != nil {
		t.Fatalf("SyncHistorical: %v", err)
	}
	if report.Stored != 3 || report.Classified != 3 {
		t.Errorf("stored = %d classified = %d, want 3/3", report.Stored, report.Classified)
	}

	cp, err := st.GetCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if !cp.LastSyncedAt.IsZero() {
		t.Errorf("historical sync moved the checkpoint: %v", cp.LastSyncedAt)
	}
}

func TestSyncRecentClassifyDisabled(t *testing.T) {
	mailbox, _ := threeMessages()
	st := newTestStore(t)
	orch := New(mailbox, &fakeClassifier{}, st, 2, nil)
	ctx := context.Background()

	report, err := orch.SyncRecent(ctx, 50, false)
	if err != nil {
		t.Fatalf("SyncRecent: %v", err)
	}
	if report.Stored != 3 || report.Classified != 0 {
		t.Errorf("stored = %d classified = %d, want 3/0", report.Stored, report.Classified)
	}

	m1, err := st.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if m1.Classified() {
		t.Errorf("m1 classified with classification disabled: %q/%q", m1.Importance, m1.Category)
	}
}

func TestSyncRecentPagination(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mailbox := &fakeMailbox{
		pages:    [][]string{{"m1", "m2"}, {"m3", "m4"}},
		msgs:     map[string]*model.Message{},
		fetchErr: map[string]error{},
	}
	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		mailbox.msgs[id] = mailboxMsg(id, base.Add(time.Duration(i)*time.Minute))
	}
	st := newTestStore(t)
	orch := New(mailbox, &fakeClassifier{}, st, 2, nil)

	report, err := orch.SyncRecent(context.Background(), 50, false)
	if err != nil {
		t.Fatalf("SyncRecent: %v", err)
	}
	if report.Fetched != 4 || report.Stored != 4 {
		t.Errorf("fetched = %d stored = %d, want 4/4", report.Fetched, report.Stored)
	}
}

func TestSyncRecentTransientListError(t *testing.T) {
	mailbox := &fakeMailbox{listErr: errors.New("rate limited")}
	st := newTestStore(t)
	orch := New(mailbox, &fakeClassifier{}, st, 2, nil)

	report, err := orch.SyncRecent(context.Background(), 50, true)
	if err != nil {
		t.Fatalf("transient list error should not abort: %v", err)
	}
	if report.Failed != 1 || report.Fetched != 0 {
		t.Errorf("failed = %d fetched = %d, want 1/0", report.Failed, report.Fetched)
	}
}
