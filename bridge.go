package nasbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jpalmerr/nasbridge/dashboard"
	"github.com/jpalmerr/nasbridge/internal/catalog"
	"github.com/jpalmerr/nasbridge/internal/collector"
	"github.com/jpalmerr/nasbridge/internal/format"
	"github.com/jpalmerr/nasbridge/internal/hass"
	"github.com/jpalmerr/nasbridge/internal/nasapi"
	"github.com/jpalmerr/nasbridge/internal/poller"
	"github.com/jpalmerr/nasbridge/internal/server"
	"github.com/jpalmerr/nasbridge/internal/store"
	"github.com/jpalmerr/nasbridge/internal/telemetry"
)

const (
	defaultConfigInterval = 60 * time.Second
	defaultStatusInterval = 5 * time.Second
	defaultPort           = 8080
	defaultMaxConcurrency = 4
)

// Bridge polls one UGREEN NAS and exposes its values as entities.
//
// A Bridge is created with [New]. Hosts that drive polling themselves call
// [Bridge.Setup] once and then [Bridge.UpdateAll] on their own timer; hosts
// that want the bundled dashboard, metrics and MQTT publishing call
// [Bridge.Start], which blocks until its context is cancelled:
//
//	b, err := nasbridge.New(nasbridge.WithNAS(cfg))
//	if err != nil {
//	    slog.Error("failed to create bridge", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	b.Start(ctx)
type Bridge struct {
	title           string
	configInterval  time.Duration
	statusInterval  time.Duration
	port            int
	serveMetrics    bool
	mqtt            *hass.Config
	logger          *slog.Logger
	updateCallbacks []func(Update)
	api             *nasapi.Client
	catalog         *catalog.Catalog
	collector       *collector.Collector
	metrics         *telemetry.Metrics
	store           store.Store

	// dialMQTT connects to the broker; replaced in tests.
	dialMQTT func(hass.Config, *slog.Logger) (hass.Conn, error)

	mu        sync.RWMutex
	set       catalog.Set
	ready     bool
	publisher *hass.Publisher
}

// New creates a [Bridge]. [WithNAS] is required; everything else has a
// default:
//   - Config interval: 60 seconds
//   - Status interval: 5 seconds
//   - Port: 8080
//   - Max concurrency: 4
//   - Temperature decimals: 0
//
// New does not contact the NAS.
func New(opts ...Option) (*Bridge, error) {
	cfg := &bridgeConfig{
		configInterval: defaultConfigInterval,
		statusInterval: defaultStatusInterval,
		port:           defaultPort,
		maxConcurrency: defaultMaxConcurrency,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.nas == nil {
		return nil, errors.New("a NAS is required")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := telemetry.New()
	apiOpts := []nasapi.Option{nasapi.WithLogger(logger), nasapi.WithObserver(metrics)}
	if cfg.nas.Timeout > 0 {
		apiOpts = append(apiOpts, nasapi.WithTimeout(cfg.nas.Timeout))
	}
	if cfg.nas.AuthTimeout > 0 {
		apiOpts = append(apiOpts, nasapi.WithAuthTimeout(cfg.nas.AuthTimeout))
	}
	api, err := nasapi.NewClient(nasapi.Config{
		Host:      cfg.nas.Host,
		Port:      cfg.nas.Port,
		AuthPort:  cfg.nas.AuthPort,
		Username:  cfg.nas.Username,
		Password:  cfg.nas.Password,
		UseHTTPS:  cfg.nas.UseHTTPS,
		VerifyTLS: cfg.nas.VerifyTLS,
	}, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create NAS client: %w", err)
	}

	coll := collector.New(api,
		collector.WithLogger(logger),
		collector.WithMaxConcurrency(cfg.maxConcurrency),
		collector.WithFormatter(format.Formatter{TemperatureDecimals: cfg.temperatureDecimals}),
	)

	b := &Bridge{
		title:           cfg.title,
		configInterval:  cfg.configInterval,
		statusInterval:  cfg.statusInterval,
		port:            cfg.port,
		serveMetrics:    cfg.metrics,
		logger:          logger,
		updateCallbacks: cfg.updateCallbacks,
		api:             api,
		catalog:         catalog.New(api, logger),
		collector:       coll,
		metrics:         metrics,
		store:           store.NewMemoryStore(),
		dialMQTT:        hass.Dial,
	}
	if cfg.mqtt != nil {
		b.mqtt = &hass.Config{
			Broker:          cfg.mqtt.Broker,
			ClientID:        cfg.mqtt.ClientID,
			Username:        cfg.mqtt.Username,
			Password:        cfg.mqtt.Password,
			DiscoveryPrefix: cfg.mqtt.DiscoveryPrefix,
			TopicPrefix:     cfg.mqtt.TopicPrefix,
		}
	}
	return b, nil
}

// Setup authenticates against the token service and builds the entity
// catalog. A failed authentication aborts setup and wraps
// [nasapi.ErrAuthFailed]; discovery failures only drop the entities that
// could not be discovered.
func (b *Bridge) Setup(ctx context.Context) error {
	if !b.api.Authenticate(ctx) {
		return fmt.Errorf("setup: %w", nasapi.ErrAuthFailed)
	}
	b.apply(ctx, b.catalog.Build(ctx))
	return nil
}

// Rediscover drops the cached disk index, rebuilds the catalog and, when
// MQTT is enabled, re-announces every entity. Use it after disks are
// swapped; fans, memory, network interfaces, USB devices and pools are
// picked up by every config cycle on their own.
func (b *Bridge) Rediscover(ctx context.Context) error {
	if !b.isReady() {
		return ErrNotReady
	}
	b.catalog.InvalidateDiskIndex()
	set, _ := b.apply(ctx, b.catalog.Build(ctx))
	if err := b.announce(set); err != nil {
		return fmt.Errorf("re-announce: %w", err)
	}
	return nil
}

// refresh rebuilds the catalog through api at the start of a poll cycle.
// An incomplete discovery keeps the current catalog so one failed endpoint
// does not drop its entities. Home Assistant is re-announced only when the
// entity keys or the NAS identity changed.
func (b *Bridge) refresh(ctx context.Context, api catalog.Fetcher) catalog.Set {
	set := b.catalog.BuildFrom(ctx, api)
	if set.Incomplete {
		b.logger.Debug("catalog refresh incomplete, keeping current entities")
		return b.catalogSet()
	}

	set, changed := b.apply(ctx, set)
	if changed {
		if err := b.announce(set); err != nil {
			b.logger.Warn("discovery announce incomplete", "error", err)
		}
	}
	return set
}

// apply makes set the current catalog. Entities that left it are removed
// from the store; new ones are seeded. It reports whether the entity keys
// or the NAS identity changed.
func (b *Bridge) apply(ctx context.Context, set catalog.Set) (catalog.Set, bool) {
	b.mu.Lock()
	prev, wasReady := b.set, b.ready
	b.set = set
	b.ready = true
	b.mu.Unlock()

	before, after := prev.Keys(), set.Keys()
	var removed []string
	for key := range before {
		if !after[key] {
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)
	changed := !wasReady || prev.Identity != set.Identity || len(removed) > 0 || len(before) != len(after)

	b.store.Remove(removed...)
	b.seedStore(set)
	b.metrics.SetEntities(len(after))

	level := slog.LevelDebug
	if changed {
		level = slog.LevelInfo
	}
	b.logger.Log(ctx, level, "catalog ready",
		"nas", set.Identity.Name,
		"model", set.Identity.Model,
		"sensors", len(set.Sensors),
		"buttons", len(set.Buttons),
		"removed", len(removed),
	)
	return set, changed
}

func (b *Bridge) announce(set catalog.Set) error {
	b.mu.RLock()
	pub := b.publisher
	b.mu.RUnlock()
	if pub == nil {
		return nil
	}
	return pub.Announce(set)
}

func (b *Bridge) isReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

func (b *Bridge) catalogSet() catalog.Set {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.set
}

// Entities returns every sensor followed by every button. It is empty
// before [Bridge.Setup].
func (b *Bridge) Entities() []Entity {
	set := b.catalogSet()
	out := make([]Entity, 0, len(set.Sensors)+len(set.Buttons))
	for _, d := range set.Sensors {
		out = append(out, toEntity(d, set.Identity))
	}
	for _, d := range set.Buttons {
		out = append(out, toEntity(d, set.Identity))
	}
	return out
}

// UpdateAll refreshes the catalog, polls every sensor once and returns a
// reading per sensor key. Each endpoint is fetched once, shared by
// discovery and polling; a failing endpoint yields nil values for its
// sensors rather than an error.
func (b *Bridge) UpdateAll(ctx context.Context) (Result, error) {
	if !b.isReady() {
		return nil, ErrNotReady
	}
	memo := catalog.NewMemo(b.api)
	set := b.refresh(ctx, memo)
	r := b.collector.UpdateFrom(ctx, memo, set.Sensors)
	b.storeResult(set, r)
	return toResult(r), nil
}

// Press triggers a button. The session is refreshed first, then the
// button's fixed endpoint is requested.
//
// Only an unknown key is reported, as [ErrUnknownEntity]. Failures on the
// NAS side are logged and counted but not returned: a press is fire and
// forget.
func (b *Bridge) Press(ctx context.Context, key string) error {
	d, ok := b.catalogSet().Lookup(key)
	if !ok || d.Kind != catalog.Button {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, key)
	}

	err := b.press(ctx, d)
	b.metrics.ObservePress(key, err == nil)
	if err != nil {
		b.logger.Error("button press failed", "key", key, "error", err)
		return nil
	}
	b.logger.Info("button pressed", "key", key)
	return nil
}

func (b *Bridge) press(ctx context.Context, d catalog.Descriptor) error {
	if !b.api.Authenticate(ctx) {
		return nasapi.ErrAuthFailed
	}

	var resp nasapi.Response
	switch d.Method {
	case http.MethodPost:
		resp = b.api.Post(ctx, d.Endpoint, nil)
	case http.MethodGet, "":
		resp = b.api.Get(ctx, d.Endpoint)
	default:
		return fmt.Errorf("unsupported method %q", d.Method)
	}
	if err := resp.Check(); err != nil {
		return err
	}
	if code := resp.Doc.Code(); code != nasapi.CodeOK {
		return fmt.Errorf("nas returned code %d", code)
	}
	return nil
}

// Start sets the bridge up if needed, then polls on both cadences, serves
// the dashboard and, with [WithMQTT], publishes to Home Assistant.
//
// Start blocks until ctx is cancelled and returns nil on graceful shutdown.
// It returns an error if setup fails, the broker cannot be reached or the
// HTTP server cannot bind.
func (b *Bridge) Start(ctx context.Context) error {
	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	if !b.isReady() {
		if err := b.Setup(ctx); err != nil {
			return err
		}
	}

	b.logger.Info("nasbridge starting",
		"config_interval", b.configInterval.String(),
		"status_interval", b.statusInterval.String(),
	)

	if b.mqtt != nil {
		if err := b.connectMQTT(ctx); err != nil {
			b.api.Close()
			return err
		}
	}

	jobs := []poller.Job[collector.Result]{
		{
			Name:     JobConfig,
			Interval: b.configInterval,
			Run: func(ctx context.Context) collector.Result {
				memo := catalog.NewMemo(b.api)
				set := b.refresh(ctx, memo)
				return b.collector.UpdateFrom(ctx, memo, set.Slow())
			},
		},
		{
			Name:     JobStatus,
			Interval: b.statusInterval,
			Run: func(ctx context.Context) collector.Result {
				return b.collector.Update(ctx, b.catalogSet().Fast())
			},
		},
	}
	scheduler := poller.NewScheduler(jobs, b.statusInterval, len(jobs), b.logger)
	scheduler.Start(ctx)

	// track the results consumer goroutine to ensure clean shutdown
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for cycle := range scheduler.Results() {
			b.handleCycle(cycle)
		}
	}()

	cleanup := func() {
		scheduler.Stop() // closes results channel
		wg.Wait()
		b.disconnectMQTT()
		b.api.Close()
	}

	opts := []server.Option{server.WithPresser(b)}
	if b.serveMetrics {
		opts = append(opts, server.WithMetrics(b.metrics.Handler()))
	}
	httpServer := server.NewServer(b.store, b.port, dashboard.Assets, b.title, b.logger, opts...)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	b.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", b.port))

	<-ctx.Done()
	cleanup()
	b.logger.Info("nasbridge stopped")
	return nil
}

func (b *Bridge) connectMQTT(ctx context.Context) error {
	conn, err := b.dialMQTT(*b.mqtt, b.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	pub := hass.NewPublisher(conn, *b.mqtt, b.logger)
	if err := pub.Announce(b.catalogSet()); err != nil {
		b.logger.Warn("discovery announce incomplete", "error", err)
	}
	if err := pub.HandleCommands(ctx, b.Press); err != nil {
		pub.Close()
		return fmt.Errorf("failed to subscribe to button commands: %w", err)
	}

	b.mu.Lock()
	b.publisher = pub
	b.mu.Unlock()
	return nil
}

func (b *Bridge) disconnectMQTT() {
	b.mu.Lock()
	pub := b.publisher
	b.publisher = nil
	b.mu.Unlock()
	if pub != nil {
		pub.Close()
	}
}

// handleCycle stores a cycle, publishes it and fires callbacks, in that
// order.
func (b *Bridge) handleCycle(cycle poller.Cycle[collector.Result]) {
	if cycle.Error != nil {
		b.logger.Warn("poll cycle failed", "job", cycle.Job, "error", cycle.Error)
		b.notify(Update{Job: cycle.Job, Result: Result{}, StartedAt: cycle.StartedAt, Duration: cycle.Duration, Error: cycle.Error})
		return
	}

	set := b.catalogSet()
	b.storeResult(set, cycle.Value)

	b.mu.RLock()
	pub := b.publisher
	b.mu.RUnlock()
	if pub != nil {
		if err := pub.PublishStates(cycle.Value); err != nil {
			b.logger.Warn("state publish incomplete", "job", cycle.Job, "error", err)
		}
	}

	nulls := cycle.Value.Nulls()
	b.metrics.ObserveCycle(cycle.Job, cycle.Duration, nulls)
	b.logger.Debug("poll cycle completed",
		"job", cycle.Job,
		"values", len(cycle.Value),
		"nulls", nulls,
		"duration_ms", cycle.Duration.Milliseconds(),
	)

	b.notify(Update{
		Job:       cycle.Job,
		Result:    toResult(cycle.Value),
		StartedAt: cycle.StartedAt,
		Duration:  cycle.Duration,
	})
}

// notify gives every callback its own copy of the result.
func (b *Bridge) notify(u Update) {
	result := u.Result
	for _, cb := range b.updateCallbacks {
		u.Result = copyResult(result)
		invokeCallbackSafe(cb, u, b.logger)
	}
}

// seedStore makes every entity visible before its first value arrives.
// Entities already in the store keep their value.
func (b *Bridge) seedStore(set catalog.Set) {
	var states []store.EntityState
	for _, d := range set.Sensors {
		if _, ok := b.store.Get(d.Key); !ok {
			states = append(states, entityState(d, set.Identity, collector.Reading{Unit: d.Unit}, time.Time{}))
		}
	}
	for _, d := range set.Buttons {
		if _, ok := b.store.Get(d.Key); !ok {
			states = append(states, entityState(d, set.Identity, collector.Reading{}, time.Time{}))
		}
	}
	b.store.Update(states...)
}

// storeResult writes r in descriptor order. Readings for keys that left the
// catalog are dropped.
func (b *Bridge) storeResult(set catalog.Set, r collector.Result) {
	now := time.Now()
	states := make([]store.EntityState, 0, len(r))
	for _, d := range set.Sensors {
		if reading, ok := r[d.Key]; ok {
			states = append(states, entityState(d, set.Identity, reading, now))
		}
	}
	b.store.Update(states...)
}

func entityState(d catalog.Descriptor, id catalog.Identity, r collector.Reading, at time.Time) store.EntityState {
	unit := r.Unit
	if unit == "" {
		unit = d.Unit
	}
	return store.EntityState{
		Key:       d.Key,
		Name:      d.Name,
		Icon:      d.Icon,
		Category:  string(d.Category),
		Kind:      d.Kind.String(),
		Device:    catalog.DeviceFor(d.Key, id).ID,
		Value:     r.Value,
		Raw:       r.Raw,
		Unit:      unit,
		UpdatedAt: at,
	}
}

func copyResult(r Result) Result {
	out := make(Result, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// invokeCallbackSafe calls an update callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Update), u Update, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("update callback panicked",
				"panic", r,
				"job", u.Job,
			)
		}
	}()
	cb(u)
}
