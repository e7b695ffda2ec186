// Package nasbridge polls a UGREEN NAS over its private web API and exposes
// the results as named entities.
//
// The NAS has no public API. Its web UI authenticates with a short-lived
// token that a companion service (see cmd/nasbridge token-service) obtains
// by logging in through a headless browser. The bridge asks that service
// for a token, then reads a handful of JSON endpoints and turns their
// fields into sensors: model and firmware, CPU and memory, fans, network
// interfaces, USB devices, storage pools, disks and volumes. Shutdown and
// reboot are exposed as buttons.
//
// # Quick Start
//
//	b, _ := nasbridge.New(nasbridge.WithNAS(nasbridge.NASConfig{
//	    Host:     "192.168.1.10",
//	    Port:     9999,
//	    AuthPort: 4115,
//	    Username: "admin",
//	    Password: os.Getenv("UGREEN_PASS"),
//	}))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	b.Start(ctx) // blocks until ctx is cancelled
//
// Hosts with their own scheduler skip Start and drive the bridge directly:
//
//	if err := b.Setup(ctx); err != nil {
//	    return err
//	}
//	for _, e := range b.Entities() {
//	    register(e.Key, e.Name, e.Icon, e.Unit, e.Category)
//	}
//	values, _ := b.UpdateAll(ctx)
//
// # Cadences
//
// Configuration values are refreshed every 60 seconds and live status values
// every 5 seconds. Each cycle fetches every endpoint it needs exactly once.
// A failing endpoint yields nil values for its entities; it never fails the
// cycle.
//
// # Discovery
//
// Fans, memory modules, network interfaces, USB devices, pools, disks and
// volumes are discovered during [Bridge.Setup]. The mapping from disk device
// names to positions in the NAS's global disk list is cached until
// [Bridge.Rediscover] is called.
//
// # Architecture
//
//   - internal/nasapi: token-authenticated API client with a single retry on expiry
//   - internal/catalog: static and discovered entity descriptors
//   - internal/collector: one cycle of fetching, extraction and formatting
//   - internal/poller: HTTP transport and the two-cadence scheduler
//   - internal/store, internal/server, dashboard: live web UI and REST API
//   - internal/hass: Home Assistant MQTT discovery
//   - internal/tokensvc: the headless-browser token service
//   - internal/telemetry: Prometheus metrics
//
// The internal packages are not part of the public API and may change
// without notice.
package nasbridge
