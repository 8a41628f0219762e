// internal/queue/queue.go
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/event"
	"hardware-service/internal/model"
	"hardware-service/internal/registry"
)

// Executor sends a job's payload to the device. The queue runner calls it
// with at most one job in flight per device.
type Executor func(ctx context.Context, job *model.PrintJob) error

// Manager owns one FIFO queue per device. Jobs on the same device run
// strictly in submission order; a failed job halts its device's queue until
// Resume is called, so a jammed printer does not silently eat the backlog.
type Manager struct {
	registry *registry.Registry
	bus      *event.Bus
	executor Executor
	logger   *zap.Logger

	mutex  sync.Mutex
	queues map[uuid.UUID]*deviceQueue
	jobs   map[uuid.UUID]*model.PrintJob
	done   map[uuid.UUID]chan struct{}
	closed bool
}

type deviceQueue struct {
	pending []*model.PrintJob
	active  bool
	halted  bool
}

// NewManager creates a queue manager. The executor performs the actual
// device I/O for each job.
func NewManager(reg *registry.Registry, bus *event.Bus, executor Executor, logger *zap.Logger) *Manager {
	return &Manager{
		registry: reg,
		bus:      bus,
		executor: executor,
		logger:   logger.With(zap.String("component", "print_queue")),
		queues:   make(map[uuid.UUID]*deviceQueue),
		jobs:     make(map[uuid.UUID]*model.PrintJob),
		done:     make(map[uuid.UUID]chan struct{}),
	}
}

// Enqueue appends a job to the device's queue and starts the drain if the
// device is idle. The returned job is a snapshot; poll Job or block on Wait
// for its outcome.
func (m *Manager) Enqueue(deviceID uuid.UUID, payload []byte) (*model.PrintJob, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return nil, model.ErrQueueClosed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	job := &model.PrintJob{
		ID:        id,
		DeviceID:  deviceID,
		Payload:   payload,
		Status:    model.JobStatusPending,
		CreatedAt: time.Now(),
	}

	dq := m.queues[deviceID]
	if dq == nil {
		dq = &deviceQueue{}
		m.queues[deviceID] = dq
	}

	dq.pending = append(dq.pending, job)
	m.jobs[job.ID] = job
	m.done[job.ID] = make(chan struct{})

	// New work re-triggers a halted queue; the failed job itself stays
	// FAILED and is never retried.
	dq.halted = false

	m.logger.Debug("Job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("device_id", deviceID.String()),
		zap.Int("queue_depth", len(dq.pending)),
	)

	m.maybeStartLocked(deviceID, dq)
	return m.snapshotLocked(job), nil
}

// Job returns a snapshot of the job's current state.
func (m *Manager) Job(id uuid.UUID) (*model.PrintJob, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return m.snapshotLocked(job), true
}

// Jobs returns snapshots of all jobs for a device, submission order.
func (m *Manager) Jobs(deviceID uuid.UUID) []*model.PrintJob {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out []*model.PrintJob
	for _, job := range m.jobs {
		if job.DeviceID == deviceID {
			out = append(out, m.snapshotLocked(job))
		}
	}
	sortJobs(out)
	return out
}

// Wait blocks until the job reaches a terminal state or the context ends,
// returning the final snapshot.
func (m *Manager) Wait(ctx context.Context, jobID uuid.UUID) (*model.PrintJob, error) {
	m.mutex.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mutex.Unlock()
		return nil, model.ErrDeviceNotFound
	}
	ch := m.done[jobID]
	m.mutex.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.snapshotLocked(job), nil
}

// Resume clears the halt left by a failed job and restarts the drain.
// Pending jobs stay queued across the halt.
func (m *Manager) Resume(deviceID uuid.UUID) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	dq := m.queues[deviceID]
	if dq == nil {
		return
	}
	dq.halted = false
	m.maybeStartLocked(deviceID, dq)
}

// Halted reports whether the device's queue is stopped after a failure.
func (m *Manager) Halted(deviceID uuid.UUID) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	dq := m.queues[deviceID]
	return dq != nil && dq.halted
}

// Depth returns the number of jobs waiting for the device, not counting one
// in flight.
func (m *Manager) Depth(deviceID uuid.UUID) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	dq := m.queues[deviceID]
	if dq == nil {
		return 0
	}
	return len(dq.pending)
}

// Close stops accepting jobs. In-flight jobs run to completion; pending jobs
// stay PENDING.
func (m *Manager) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
}

// maybeStartLocked launches a drain goroutine when the device is idle, not
// halted, and has work. Caller holds the mutex.
func (m *Manager) maybeStartLocked(deviceID uuid.UUID, dq *deviceQueue) {
	if dq.active || dq.halted || len(dq.pending) == 0 || m.closed {
		return
	}

	job := dq.pending[0]
	dq.pending = dq.pending[1:]
	dq.active = true
	job.Status = model.JobStatusPrinting

	go m.run(deviceID, dq, job)
}

func (m *Manager) run(deviceID uuid.UUID, dq *deviceQueue, job *model.PrintJob) {
	err := m.executor(context.Background(), job)

	m.mutex.Lock()
	now := time.Now()
	job.CompletedAt = &now
	if err != nil {
		msg := err.Error()
		job.Status = model.JobStatusFailed
		job.Error = &msg
		dq.halted = true
	} else {
		job.Status = model.JobStatusCompleted
	}
	dq.active = false
	close(m.done[job.ID])
	m.maybeStartLocked(deviceID, dq)
	m.mutex.Unlock()

	m.registry.RecordOperation(deviceID, err == nil)

	if err != nil {
		m.logger.Warn("Print job failed",
			zap.String("job_id", job.ID.String()),
			zap.String("device_id", deviceID.String()),
			zap.Error(err),
		)
		ev := model.NewEvent(model.EventPrintFailed, deviceID, model.JSONObject{"job_id": job.ID.String()})
		ev.Error = err.Error()
		m.bus.Publish(ev)
		return
	}

	m.logger.Info("Print job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("device_id", deviceID.String()),
	)
	m.bus.Publish(model.NewEvent(model.EventPrintComplete, deviceID, model.JSONObject{"job_id": job.ID.String()}))
}

// snapshotLocked copies a job so callers never share the runner's pointer.
func (m *Manager) snapshotLocked(job *model.PrintJob) *model.PrintJob {
	cp := *job
	return &cp
}

func sortJobs(jobs []*model.PrintJob) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}
