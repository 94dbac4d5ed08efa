package testsupport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/makeasinger/motionvault/internal/client"
	"github.com/makeasinger/motionvault/internal/gateway"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/state"
)

// PublicBase is the URL prefix the fake object store hands out.
const PublicBase = "https://cdn.test"

// Objects is an in-memory client.StorageClient.
type Objects struct {
	mu      sync.Mutex
	objects map[string][]byte
	Removed [][]string

	// FailUpload, when set, decides per key whether an upload fails.
	FailUpload func(key string) error
	FailRemove error
}

func NewObjects() *Objects {
	return &Objects{objects: make(map[string][]byte)}
}

func (o *Objects) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if o.FailUpload != nil {
		if err := o.FailUpload(key); err != nil {
			return "", err
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	o.objects[key] = data
	o.mu.Unlock()
	return o.GetPublicURL(key), nil
}

func (o *Objects) Remove(ctx context.Context, keys []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Removed = append(o.Removed, append([]string(nil), keys...))
	if o.FailRemove != nil {
		return o.FailRemove
	}
	for _, k := range keys {
		delete(o.objects, k)
	}
	return nil
}

func (o *Objects) GetPublicURL(key string) string {
	return PublicBase + "/" + key
}

func (o *Objects) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, PublicBase+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Has reports whether key is stored.
func (o *Objects) Has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[key]
	return ok
}

// Keys returns the stored keys.
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.objects))
	for k := range o.objects {
		keys = append(keys, k)
	}
	return keys
}

// RemoveCalls returns a copy of every Remove call's keys.
func (o *Objects) RemoveCalls() [][]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]string(nil), o.Removed...)
}

// Jobs is a scripted client.VideoGenerator.
type Jobs struct {
	mu        sync.Mutex
	reports   map[string]*model.JobReport
	errs      map[string]error
	nextID    int
	Submitted []model.JobRequest
	Cancelled []string

	SubmitErr error
	CancelErr error
}

func NewJobs() *Jobs {
	return &Jobs{reports: make(map[string]*model.JobReport), errs: make(map[string]error)}
}

// SetReport scripts the status returned for jobID.
func (j *Jobs) SetReport(jobID string, report model.JobReport) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reports[jobID] = &report
	delete(j.errs, jobID)
}

// SetError makes GetStatus fail for jobID.
func (j *Jobs) SetError(jobID string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errs[jobID] = err
}

func (j *Jobs) Submit(ctx context.Context, req *model.JobRequest) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.SubmitErr != nil {
		return "", j.SubmitErr
	}
	j.nextID++
	j.Submitted = append(j.Submitted, *req)
	return fmt.Sprintf("job-%d", j.nextID), nil
}

func (j *Jobs) GetStatus(ctx context.Context, jobID string) (*model.JobReport, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err, ok := j.errs[jobID]; ok {
		return nil, err
	}
	report, ok := j.reports[jobID]
	if !ok {
		return nil, client.ErrJobNotFound
	}
	out := *report
	return &out, nil
}

func (j *Jobs) Cancel(ctx context.Context, jobID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Cancelled = append(j.Cancelled, jobID)
	return j.CancelErr
}

// CancelledIDs returns the job ids passed to Cancel.
func (j *Jobs) CancelledIDs() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.Cancelled...)
}

// Canceller records cancellation requests.
type Canceller struct {
	mu  sync.Mutex
	IDs []string
}

func (c *Canceller) CancelJob(ctx context.Context, jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.IDs = append(c.IDs, jobID)
}

func (c *Canceller) Requested() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.IDs...)
}

// Prober returns a fixed resolution, or Err when set.
type Prober struct {
	Size model.Resolution
	Err  error
}

func (p *Prober) Resolution(ctx context.Context, path string) (model.Resolution, error) {
	if p.Err != nil {
		return model.Resolution{}, p.Err
	}
	return p.Size, nil
}

// Backend groups the fakes behind one gateway.
type Backend struct {
	Rows      *Rows
	Objects   *Objects
	Jobs      *Jobs
	Canceller *Canceller
	Gateway   *gateway.Gateway
}

func NewBackend() *Backend {
	b := &Backend{
		Rows:      NewRows(),
		Objects:   NewObjects(),
		Jobs:      NewJobs(),
		Canceller: &Canceller{},
	}
	b.Gateway = gateway.New(b.Rows, b.Objects, b.Jobs)
	return b
}

// Engine returns an engine for userID over the backend, loaded from the rows.
func (b *Backend) Engine(t testing.TB, userID string) *state.Engine {
	t.Helper()

	engine := state.NewEngine(state.NewStore(), b.Gateway, userID, b.Canceller, logger.Nop())
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatalf("engine.Reload: %v", err)
	}
	return engine
}
