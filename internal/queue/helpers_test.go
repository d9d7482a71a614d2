package queue_test

import (
	"context"
	"errors"
	"os/exec"
	"sort"
	"sync"
	"testing"
	"time"

	"miniq/internal/handlers"
	"miniq/internal/ids"
	"miniq/internal/jobstore"
	"miniq/internal/journal"
	"miniq/internal/queue"
	"miniq/internal/runner"
	"miniq/internal/stats"
	"miniq/internal/testsupport"
)

const owner = "1"

var errStoreDown = errors.New("store unavailable")

type runCall struct {
	jobType string
	jobs    []jobstore.Job
	owner   string
	handler *handlers.Handler
}

// fakeRunner records batches and reports the results a test queues up.
type fakeRunner struct {
	mu      sync.Mutex
	batch   int
	handles map[string]bool
	runErr  error
	calls   []runCall
	running map[string]jobstore.Job
	done    []runner.DoneJob
	stopped bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{batch: 10, handles: map[string]bool{}, running: map[string]jobstore.Job{}}
}

func (f *fakeRunner) BatchSize(string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batch
}

func (f *fakeRunner) Handles(jobType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[jobType]
}

func (f *fakeRunner) RunJobs(_ context.Context, jobType string, jobs []jobstore.Job, owner string, handler *handlers.Handler) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runErr != nil {
		return 0, f.runErr
	}
	f.calls = append(f.calls, runCall{jobType: jobType, jobs: jobs, owner: owner, handler: handler})
	started := 0
	for _, job := range jobs {
		if _, dup := f.running[job.ID]; dup {
			continue
		}
		f.running[job.ID] = job
		started++
	}
	return started, nil
}

// markRunning makes the runner treat id as already in flight.
func (f *fakeRunner) markRunning(job jobstore.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[job.ID] = job
}

func (f *fakeRunner) RunningJobIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.running))
	for id := range f.running {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (f *fakeRunner) DoneJobs() []runner.DoneJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.done
	f.done = nil
	return out
}

func (f *fakeRunner) Stop(context.Context) []jobstore.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	out := make([]jobstore.Job, 0, len(f.running))
	for _, job := range f.running {
		out = append(out, jobstore.Job{ID: job.ID, Type: job.Type})
	}
	f.running = map[string]jobstore.Job{}
	return out
}

// finish moves a running job to the done list with code.
func (f *fakeRunner) finish(t *testing.T, id string, code runner.Code) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.running[id]
	if !ok {
		t.Fatalf("job %s is not running", id)
	}
	delete(f.running, id)
	f.done = append(f.done, runner.DoneJob{ID: id, Type: job.Type, Code: code})
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// flakyStore fails selected operations while down is set.
type flakyStore struct {
	jobstore.Store
	mu   sync.Mutex
	down map[string]bool
}

func (s *flakyStore) fail(op string, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down == nil {
		s.down = map[string]bool{}
	}
	s.down[op] = down
}

func (s *flakyStore) failing(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down[op]
}

func (s *flakyStore) AddJobs(ctx context.Context, jobs []jobstore.Job) ([]jobstore.Job, error) {
	if s.failing("add") {
		return nil, errStoreDown
	}
	return s.Store.AddJobs(ctx, jobs)
}

func (s *flakyStore) WaitingJobCounts(ctx context.Context) (map[string]int, error) {
	if s.failing("waiting") {
		return nil, errStoreDown
	}
	return s.Store.WaitingJobCounts(ctx)
}

func (s *flakyStore) ReleaseJobs(ctx context.Context, ids []string, owner string, how jobstore.ReleaseHow) error {
	if s.failing("release") {
		return errStoreDown
	}
	return s.Store.ReleaseJobs(ctx, ids, owner, how)
}

func (s *flakyStore) ExpireLocks(ctx context.Context) (int64, error) {
	if s.failing("expire_locks") {
		return 0, errStoreDown
	}
	return s.Store.ExpireLocks(ctx)
}

type harness struct {
	clock   *testsupport.Clock
	store   *flakyStore
	journal *journal.Memory
	runner  *fakeRunner
	gen     *ids.Generator
	stats   *stats.Recorder
	queue   *queue.Queue
}

func testSettings() queue.Settings {
	settings := queue.DefaultSettings()
	settings.Lease = time.Minute
	settings.MaxRetry = time.Hour
	settings.PollInterval = time.Millisecond
	settings.ReserveTimeout = time.Second
	settings.DoneRetention = 24 * time.Hour
	settings.AbandonAfter = 48 * time.Hour
	return settings
}

func newHarness(t *testing.T, opts ...queue.Option) *harness {
	t.Helper()
	clock := testsupport.NewClock(time.Time{})
	mem := jobstore.NewMemory(jobstore.WithClock(clock.Now), jobstore.WithRetryDelay(30*time.Second))
	t.Cleanup(func() { _ = mem.Close() })
	h := &harness{
		clock:   clock,
		store:   &flakyStore{Store: mem},
		journal: journal.NewMemory(journal.WithClock(clock.Now)),
		runner:  newFakeRunner(),
		gen:     ids.New(ids.WithClock(clock.Now)),
		stats:   stats.New(nil),
	}
	base := []queue.Option{
		queue.WithSettings(testSettings()),
		queue.WithClock(clock.Now),
		queue.WithStats(h.stats),
	}
	q, err := queue.New(h.store, h.journal, h.runner, owner, append(base, opts...)...)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	h.queue = q
	return h
}

func (h *harness) write(t *testing.T, jobType string, n int) []string {
	t.Helper()
	idList := h.gen.NextN("p", n)
	records := make([]journal.Record, n)
	for i, id := range idList {
		records[i] = journal.Record{ID: id, Type: jobType, Payload: "payload-" + id}
	}
	testsupport.WriteRecords(t, h.journal, records...)
	return idList
}

func (h *harness) locked(t *testing.T, lock string) []jobstore.Job {
	t.Helper()
	jobs, err := h.store.GetLockedJobs(context.Background(), "", lock, 1000)
	if err != nil {
		t.Fatalf("GetLockedJobs(%q): %v", lock, err)
	}
	return jobs
}

func (h *harness) waiting(t *testing.T) map[string]int {
	t.Helper()
	counts, err := h.store.WaitingJobCounts(context.Background())
	if err != nil {
		t.Fatalf("WaitingJobCounts: %v", err)
	}
	return counts
}

type handlerMap map[string]handlers.Handler

func (m handlerMap) Get(_ context.Context, jobType string) (handlers.Handler, error) {
	if h, ok := m[jobType]; ok {
		return h, nil
	}
	return handlers.Handler{}, handlers.ErrNotFound
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}
