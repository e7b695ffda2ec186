// Package mocknas serves a fake UGREEN NAS for demos: the token service and
// the vendor endpoints the bridge polls, with live values that drift.
package mocknas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

// codeTokenExpired is what the NAS answers once a token has aged out.
const codeTokenExpired = 1024

// Server is a fake NAS. Tokens expire after TokenTTL so clients exercise
// their re-authentication path.
type Server struct {
	Username string
	Password string
	TokenTTL time.Duration

	logger *slog.Logger

	mu      sync.Mutex
	tokens  map[string]time.Time
	rng     *rand.Rand
	started time.Time
}

// New creates a Server accepting username/password.
func New(username, password string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Username: username,
		Password: password,
		TokenTTL: 2 * time.Minute,
		logger:   logger,
		tokens:   make(map[string]time.Time),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		started:  time.Now(),
	}
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler routes the token service and the vendor API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/ugreen/", s.handleAPI)
	return mux
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	q := r.URL.Query()
	if q.Get("username") != s.Username || q.Get("password") != s.Password {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":401,"msg":"Token refresh failed"}`)
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = time.Now().Add(s.TokenTTL)
	s.mu.Unlock()

	body, _ := sjson.Set(`{"code":200,"msg":"success"}`, "data.token", token)
	_, _ = io.WriteString(w, body)
	s.logger.Info("token issued", "ttl", s.TokenTTL.String())
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !s.validToken(r.URL.Query().Get("token")) {
		_, _ = fmt.Fprintf(w, `{"code":%d,"msg":"token expired"}`, codeTokenExpired)
		return
	}

	endpoint := r.URL.Path
	if id := r.URL.Query().Get("id"); id != "" {
		endpoint += "?id=" + id
	}

	// simulate small latency variance
	time.Sleep(time.Duration(20+s.intn(80)) * time.Millisecond)

	body, ok := s.document(endpoint)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = io.WriteString(w, body)
}

func (s *Server) validToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(expires) {
		delete(s.tokens, token)
		return false
	}
	return true
}

func (s *Server) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *Server) jitter(base, spread float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return base + (s.rng.Float64()*2-1)*spread
}

func (s *Server) document(endpoint string) (string, bool) {
	switch endpoint {
	case "/ugreen/v1/sysinfo/machine/common":
		return build(common), true
	case "/ugreen/v1/desktop/components/data?id=desktop.component.SystemStatus":
		uptime := int(time.Since(s.started).Seconds()) + 86400*3
		return build(func(set setter) {
			set("data.type", "DXP4800 Plus")
			set("data.dev_name", "vault")
			set("data.status", 0)
			set("data.message", "The system is running normally")
			set("data.last_boot_date", s.started.Format("2006/01/02"))
			set("data.last_boot_time", s.started.Format("15:04:05"))
			set("data.total_run_time", uptime)
		}), true
	case "/ugreen/v1/desktop/components/data?id=desktop.component.TemperatureMonitoring":
		return build(func(set setter) {
			set("data.cpu_status", 0)
			set("data.fan_status", 0)
			set("data.server_status", 2)
			set("data.fan_list.0.status", 1)
			set("data.fan_list.1.status", 1)
		}), true
	case "/ugreen/v1/taskmgr/stat/get_all":
		return build(s.stats), true
	case "/ugreen/v1/storage/pool/list":
		return build(pools), true
	case "/ugreen/v2/storage/disk/list":
		return build(disks), true
	case "/ugreen/v1/desktop/shutdown", "/ugreen/v1/desktop/reboot":
		s.logger.Warn("power action requested", "endpoint", endpoint)
		return `{"code":200,"msg":"success"}`, true
	}
	return "", false
}

func (s *Server) stats(set setter) {
	set("data.overview.cpu.0.used_percent", s.jitter(18, 12))
	set("data.overview.cpu.0.temp", s.jitter(47, 4))
	set("data.overview.mem.0.used_percent", s.jitter(41, 3))
	set("data.overview.cpu_fan.0.speed", int(s.jitter(1200, 150)))
	set("data.overview.device_fan.0.speed", int(s.jitter(900, 100)))

	const total = 16 << 30
	used := int64(s.jitter(6<<30, 1<<29))
	set("data.mem.structure.total", total)
	set("data.mem.structure.used", used)
	set("data.mem.structure.cache", int64(3<<30))
	set("data.mem.structure.share", int64(256<<20))
	set("data.mem.structure.free", total-used-(3<<30))

	// series index 0 is the aggregate
	for i := 0; i <= 2; i++ {
		set(fmt.Sprintf("data.disk.series.%d.read_rate", i), int64(s.jitter(4e6, 4e6)))
		set(fmt.Sprintf("data.disk.series.%d.write_rate", i), int64(s.jitter(2e6, 2e6)))
		set(fmt.Sprintf("data.volume.series.%d.read_rate", i), int64(s.jitter(3e6, 3e6)))
		set(fmt.Sprintf("data.volume.series.%d.write_rate", i), int64(s.jitter(1e6, 1e6)))
		if i > 0 {
			set(fmt.Sprintf("data.disk.series.%d.temperature", i), s.jitter(36, 2))
		}
	}
	for i := 0; i <= 1; i++ {
		set(fmt.Sprintf("data.net.series.%d.recv_rate", i), int64(s.jitter(5e5, 5e5)))
		set(fmt.Sprintf("data.net.series.%d.send_rate", i), int64(s.jitter(2e5, 2e5)))
	}
}

func common(set setter) {
	set("data.common.nas_name", "vault")
	set("data.common.nas_owner", "admin")
	set("data.common.model", "DXP4800 Plus")
	set("data.common.serial", "EC4800P0001")
	set("data.common.system_version", "1.0.0.1234")

	set("data.hardware.cpu.0.model", "Intel(R) Pentium(R) Gold 8505")
	set("data.hardware.cpu.0.ghz", 4400)
	set("data.hardware.cpu.0.core", 5)
	set("data.hardware.cpu.0.thread", 6)

	set("data.hardware.mem.0.model", "DDR5 SODIMM")
	set("data.hardware.mem.0.manufacturer", "Samsung")
	set("data.hardware.mem.0.size", int64(8<<30))
	set("data.hardware.mem.0.mhz", 4800)
	set("data.hardware.mem.1.model", "DDR5 SODIMM")
	set("data.hardware.mem.1.manufacturer", "Samsung")
	set("data.hardware.mem.1.size", int64(8<<30))
	set("data.hardware.mem.1.mhz", 4800)

	set("data.hardware.net.0.model", "Intel I226-V")
	set("data.hardware.net.0.ip", "192.168.1.10")
	set("data.hardware.net.0.mac", "6c:1f:f7:00:00:01")
	set("data.hardware.net.0.speed", 2500)
	set("data.hardware.net.0.duplex", "full")
	set("data.hardware.net.0.mtu", 1500)
	set("data.hardware.net.0.mask", "255.255.255.0")
}

func pools(set setter) {
	p := "data.result.0."
	set(p+"name", "pool1")
	set(p+"label", "Storage Pool 1")
	set(p+"level", "raid1")
	set(p+"status", "normal")
	set(p+"total", int64(4<<40))
	set(p+"used", int64(1<<40))
	set(p+"free", int64(3<<40))
	set(p+"available", int64(3<<40))
	set(p+"total_disk_num", 2)
	set(p+"disks.0.dev_name", "sda")
	set(p+"disks.1.dev_name", "sdb")

	v := p + "volumes.0."
	set(v+"name", "volume1")
	set(v+"label", "Volume 1")
	set(v+"poolname", "pool1")
	set(v+"total", int64(4<<40))
	set(v+"used", int64(1<<40))
	set(v+"available", int64(3<<40))
	set(v+"hascache", false)
	set(v+"filesystem", "btrfs")
	set(v+"health", 0)
	set(v+"status", "normal")
}

func disks(set setter) {
	for i, dev := range []string{"sda", "sdb"} {
		d := fmt.Sprintf("data.result.%d.", i)
		set(d+"model", "ST4000VN006")
		set(d+"serial", fmt.Sprintf("ZW60000%d", i+1))
		set(d+"size", int64(4<<40))
		set(d+"name", fmt.Sprintf("Disk %d", i+1))
		set(d+"dev_name", dev)
		set(d+"slot", i+1)
		set(d+"type", 0)
		set(d+"interface_type", "SATA")
		set(d+"label", fmt.Sprintf("Disk %d", i+1))
		set(d+"used_for", "pool1")
		set(d+"status", 1)
		set(d+"temperature", 36)
		set(d+"power_on_hours", 1200+i*40)
		set(d+"brand", "Seagate")
	}
}

type setter func(path string, value any)

// build assembles a {"code":200,...} document from fill's writes.
func build(fill func(setter)) string {
	doc := `{"code":200,"msg":"success"}`
	fill(func(path string, value any) {
		if next, err := sjson.Set(doc, path, value); err == nil {
			doc = next
		}
	})
	return doc
}
