package loadgen

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/perfgate/internal/loadgen/metrics"
)

// Scheduler manages the lifecycle of Virtual Users.
//
// It owns the VU pool and the shared HTTP client, and it keeps the
// metrics engine's active user count current. Executors decide when to
// spawn and stop users.
type Scheduler struct {
	journey Journey
	baseURL string
	metrics *metrics.Engine
	log     logrus.FieldLogger

	client *http.Client
	seed   int64

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32
	running  atomic.Int32

	wg sync.WaitGroup
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// DefaultHTTPClientConfig returns defaults suited to load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient creates the client shared by every VU.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
		},
		Timeout: cfg.Timeout,
	}
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Journey Journey
	BaseURL string
	Metrics *metrics.Engine
	HTTP    HTTPClientConfig
	Logger  logrus.FieldLogger

	// Seed makes task selection reproducible; zero seeds from the clock.
	Seed int64
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Journey == nil {
		return nil, errors.New("scheduler requires a journey")
	}
	if cfg.Metrics == nil {
		return nil, errors.New("scheduler requires a metrics engine")
	}
	if _, err := newPicker(cfg.Journey.Tasks()); err != nil {
		return nil, err
	}
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP = DefaultHTTPClientConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Scheduler{
		journey: cfg.Journey,
		baseURL: cfg.BaseURL,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		client:  NewHTTPClient(cfg.HTTP),
		seed:    cfg.Seed,
		vus:     make(map[int]*VirtualUser),
	}, nil
}

// Metrics returns the metrics engine VUs record into.
func (s *Scheduler) Metrics() *metrics.Engine {
	return s.metrics
}

// Start spawns a VU and runs it in its own goroutine until it is stopped
// or ctx is done.
func (s *Scheduler) Start(ctx context.Context) *VirtualUser {
	id := int(s.nextVUID.Add(1))
	session := NewSession(id, s.baseURL, s.client, s.metrics, s.seed+int64(id))

	// the journey's tasks were checked in NewScheduler
	vu, _ := NewVirtualUser(id, s.journey, session)

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	s.wg.Add(1)
	s.metrics.SetActiveUsers(int(s.running.Add(1)))
	go s.run(ctx, vu)
	return vu
}

func (s *Scheduler) run(ctx context.Context, vu *VirtualUser) {
	defer s.wg.Done()
	defer func() {
		vu.MarkStopped()
		s.vusMu.Lock()
		delete(s.vus, vu.ID)
		s.vusMu.Unlock()
		s.metrics.SetActiveUsers(int(s.running.Add(-1)))
	}()

	log := s.log.WithField("user", vu.ID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-vu.stopCh:
			return
		default:
		}

		if err := vu.RunIteration(ctx); err != nil {
			if ctx.Err() != nil || vu.GetState() == VUStateStopping {
				return
			}
			log.WithError(err).Debug("Iteration failed")
		}
	}
}

// ActiveCount returns the number of VUs that have not been asked to stop.
func (s *Scheduler) ActiveCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if st := vu.GetState(); st != VUStateStopping && st != VUStateStopped {
			count++
		}
	}
	return count
}

// Scale starts or stops VUs until target are active and returns the
// active count.
func (s *Scheduler) Scale(ctx context.Context, target int) int {
	current := s.ActiveCount()
	for ; current < target; current++ {
		s.Start(ctx)
	}
	if current > target {
		s.stopNewest(current - target)
	}
	return s.ActiveCount()
}

// stopNewest stops the n most recently started VUs.
func (s *Scheduler) stopNewest(n int) {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for id := int(s.nextVUID.Load()); id > 0 && n > 0; id-- {
		vu, ok := s.vus[id]
		if !ok {
			continue
		}
		if st := vu.GetState(); st == VUStateStopping || st == VUStateStopped {
			continue
		}
		vu.RequestStop()
		n--
	}
}

// StopAll requests every VU to stop.
func (s *Scheduler) StopAll() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// Shutdown stops every VU and waits up to timeout for them to exit.
// It reports whether all VUs exited in time.
func (s *Scheduler) Shutdown(timeout time.Duration) bool {
	s.StopAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var ok bool
	select {
	case <-done:
		ok = true
	case <-timer.C:
		s.log.WithField("timeout", timeout).Warn("Users still running after graceful stop")
	}

	s.client.CloseIdleConnections()
	return ok
}
