package fireboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

// Coordinator is the polling client for one FireBoard account. It owns the
// session, serializes refresh cycles, and publishes immutable snapshots.
type Coordinator struct {
	entryID  string
	client   *Client
	logger   logr.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	refreshMu sync.Mutex
	snapshot  atomic.Pointer[Snapshot]
	requests  chan struct{}

	statusMu sync.Mutex
	status   Status

	listenersMu sync.Mutex
	listeners   []func(Snapshot)
}

// Status summarizes the most recent refresh cycles.
type Status struct {
	LastAttempt time.Time
	LastSuccess time.Time
	LastError   error
	Refreshes   int
}

func NewCoordinator(cfg Config, client *Client, logger logr.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	c := &Coordinator{
		entryID:  cfg.EntryID,
		client:   client,
		logger:   logger.WithValues("entry", cfg.EntryID),
		interval: cfg.PollInterval,
		timeout:  cfg.RefreshTimeout,
		now:      time.Now,
		requests: make(chan struct{}, 1),
	}
	c.snapshot.Store(&Snapshot{Devices: map[string]Device{}})
	return c
}

func (c *Coordinator) EntryID() string {
	return c.entryID
}

func (c *Coordinator) Client() *Client {
	return c.client
}

// Snapshot returns the last published snapshot. Callers must treat it as
// read-only.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

func (c *Coordinator) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// OnSnapshot registers fn to run after every published snapshot. fn runs on
// the refreshing goroutine and must not block.
func (c *Coordinator) OnSnapshot(fn func(Snapshot)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Refresh runs one full cycle: login if no token is held, list devices, then
// per device fetch temperatures (required) and drive status (best effort).
// The whole cycle shares one timeout. On failure the published snapshot is
// left as it was and the error is a *RefreshError.
func (c *Coordinator) Refresh(ctx context.Context) (Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := c.now()
	next, err := c.refreshWithBudget(ctx)
	refreshDuration.WithLabelValues(c.entryID).Observe(c.now().Sub(start).Seconds())

	c.statusMu.Lock()
	c.status.LastAttempt = start
	c.status.Refreshes++
	if err != nil {
		err = &RefreshError{Err: err}
		c.status.LastError = err
		c.statusMu.Unlock()
		refreshFailures.WithLabelValues(c.entryID, failureKind(err)).Inc()
		return Snapshot{}, err
	}
	c.status.LastError = nil
	c.status.LastSuccess = next.UpdatedAt
	c.statusMu.Unlock()

	c.snapshot.Store(&next)
	c.notify(next)
	return next, nil
}

func (c *Coordinator) refreshWithBudget(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	next, err := c.cycle(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Snapshot{}, &TimeoutError{Budget: c.timeout, Err: err}
		}
		return Snapshot{}, err
	}
	return next, nil
}

func (c *Coordinator) cycle(ctx context.Context) (Snapshot, error) {
	if !c.client.HasToken() {
		if err := c.client.Authenticate(ctx); err != nil {
			return Snapshot{}, err
		}
		c.logger.V(1).Info("authenticated with fireboard")
	}

	payloads, err := c.client.devices(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	next := c.Snapshot().clone()
	for _, payload := range payloads {
		if payload.UUID == "" {
			c.logger.V(1).Info("skipping device without UUID")
			continue
		}

		device := next.Devices[payload.UUID]
		payload.applyTo(&device)

		temps, err := c.client.Temps(ctx, payload.UUID)
		if err != nil {
			return Snapshot{}, err
		}
		device.LatestTemps = temps

		device.Drive = nil
		if payload.driveEnabled() {
			drive, err := c.client.DriveStatus(ctx, payload.UUID)
			if err != nil {
				if ctx.Err() != nil {
					return Snapshot{}, err
				}
				c.logger.V(1).Info("drive data not available", "device", payload.UUID, "reason", err.Error())
				driveSoftFailures.WithLabelValues(c.entryID).Inc()
				drive = DriveStatus{}
			}
			device.Drive = &drive
		}

		next.Devices[payload.UUID] = device
	}

	next.UpdatedAt = c.now()
	return next, nil
}

// SetDriveOutput sends a damper percentage for uuid. Out-of-range values are
// rejected before any request. The snapshot is not touched; a refresh is
// requested on success.
func (c *Coordinator) SetDriveOutput(ctx context.Context, uuid string, percent int) error {
	if percent < 0 || percent > 100 {
		return &ValidationError{Field: "drive output", Value: percent}
	}
	if !c.client.HasToken() {
		if err := c.client.Authenticate(ctx); err != nil {
			return err
		}
	}
	if err := c.client.SetDriveOutput(ctx, uuid, percent); err != nil {
		return err
	}
	c.logger.Info("drive output set", "device", uuid, "output", percent)
	c.RequestRefresh()
	return nil
}

// RequestRefresh asks Run for an extra cycle. Requests made while one is
// already pending collapse into it.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.requests <- struct{}{}:
	default:
	}
}

// Run refreshes immediately, then on every interval tick and every request,
// until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("fireboard polling started", "interval", c.interval.String())
	c.runOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("fireboard polling stopped")
			return nil
		case <-ticker.C:
			c.runOnce(ctx)
		case <-c.requests:
			c.runOnce(ctx)
		}
	}
}

func (c *Coordinator) runOnce(ctx context.Context) {
	snapshot, err := c.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error(err, "fireboard refresh failed", "kind", failureKind(err))
		return
	}
	c.logger.V(1).Info("fireboard refresh complete", "devices", snapshot.Len())
}

func (c *Coordinator) notify(snapshot Snapshot) {
	c.listenersMu.Lock()
	listeners := append([]func(Snapshot){}, c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(snapshot)
	}
}
