package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/jpalmerr/nasbridge/internal/jsonpath"
	"github.com/jpalmerr/nasbridge/internal/nasapi"
)

// Fetcher performs a GET against the NAS API.
type Fetcher interface {
	Get(ctx context.Context, endpoint string) nasapi.Response
}

// Counts is the discovered hardware cardinality.
type Counts struct {
	Fans    int `json:"fans"`
	RAM     int `json:"ram"`
	LAN     int `json:"lan"`
	USB     int `json:"usb"`
	Pools   int `json:"pools"`
	Disks   int `json:"disks"`
	Volumes int `json:"volumes"`
}

// Set is the complete descriptor list produced by one [Catalog.Build].
type Set struct {
	Sensors  []Descriptor
	Buttons  []Descriptor
	Counts   Counts
	Identity Identity

	// Incomplete is set when a discovery endpoint returned nothing, so
	// hardware behind it may be missing from Sensors.
	Incomplete bool
}

// Keys returns every sensor and button key.
func (s Set) Keys() map[string]bool {
	out := make(map[string]bool, len(s.Sensors)+len(s.Buttons))
	for _, d := range s.Sensors {
		out[d.Key] = true
	}
	for _, d := range s.Buttons {
		out[d.Key] = true
	}
	return out
}

// Slow returns the slow-cadence sensors.
func (s Set) Slow() []Descriptor { return s.filter(Slow) }

// Fast returns the fast-cadence sensors.
func (s Set) Fast() []Descriptor { return s.filter(Fast) }

func (s Set) filter(c Cadence) []Descriptor {
	out := make([]Descriptor, 0, len(s.Sensors))
	for _, d := range s.Sensors {
		if d.Cadence == c {
			out = append(out, d)
		}
	}
	return out
}

// Lookup finds a sensor or button by key.
func (s Set) Lookup(key string) (Descriptor, bool) {
	for _, d := range s.Sensors {
		if d.Key == key {
			return d, true
		}
	}
	for _, d := range s.Buttons {
		if d.Key == key {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Catalog builds descriptor sets for one NAS.
//
// The disk index (device name to position in the global disk list) is built
// once, on the first storage discovery that successfully fetches the global
// list, and kept until [Catalog.InvalidateDiskIndex] is called.
type Catalog struct {
	api    Fetcher
	logger *slog.Logger

	mu        sync.Mutex
	diskIndex map[string]int
	diskCount int
}

// New creates a [Catalog]. A nil logger uses slog.Default().
func New(api Fetcher, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{api: api, logger: logger}
}

// InvalidateDiskIndex drops the cached disk index so the next Build refetches
// the global disk list. Call it after disks are added or removed.
func (c *Catalog) InvalidateDiskIndex() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diskIndex = nil
	c.diskCount = 0
}

// Build returns all static and discovered descriptors.
//
// The machine info, temperature and pool list responses are fetched once per
// call and shared by the generators that need them. Discovery failures only
// drop the affected dynamic descriptors and mark the set Incomplete.
func (c *Catalog) Build(ctx context.Context) Set {
	return c.BuildFrom(ctx, c.api)
}

// BuildFrom is [Catalog.Build] reading through api instead of the
// catalog's own fetcher, typically a per-cycle [Memo].
func (c *Catalog) BuildFrom(ctx context.Context, api Fetcher) Set {
	common := c.fetch(ctx, api, EndpointCommon)
	temperature := c.fetch(ctx, api, EndpointTemperature)
	pools := c.fetch(ctx, api, EndpointPoolList)

	var counts Counts
	sensors := StaticConfiguration()

	fans := c.fans(temperature, &counts)
	sensors = append(sensors, fans...)
	sensors = append(sensors, c.memory(common, &counts)...)
	lan := c.lan(common, &counts)
	sensors = append(sensors, lan...)
	sensors = append(sensors, c.usb(common, &counts)...)
	storage, disksOK := c.storage(ctx, api, pools, &counts)
	sensors = append(sensors, storage...)

	sensors = append(sensors, StaticStatus()...)
	sensors = append(sensors, diskStatus(counts.Disks)...)
	sensors = append(sensors, lanStatus(counts.LAN)...)

	c.logger.Debug("catalog built",
		"sensors", len(sensors),
		"fans", counts.Fans,
		"ram", counts.RAM,
		"lan", counts.LAN,
		"usb", counts.USB,
		"pools", counts.Pools,
		"disks", counts.Disks,
		"volumes", counts.Volumes,
	)

	return Set{
		Sensors:    sensors,
		Buttons:    Buttons(),
		Counts:     counts,
		Identity:   identity(common),
		Incomplete: common.Empty() || temperature.Empty() || pools.Empty() || !disksOK,
	}
}

// fetch returns the document for endpoint, or an empty one after logging.
func (c *Catalog) fetch(ctx context.Context, api Fetcher, endpoint string) nasapi.Document {
	resp := api.Get(ctx, endpoint)
	if resp.Doc.Empty() {
		c.logger.Warn("no data received", "endpoint", endpoint, "error", resp.Err)
	}
	return resp.Doc
}

// list reads an array at path. quiet suppresses the warning for lists that
// are legitimately empty.
func (c *Catalog) list(doc nasapi.Document, endpoint, path string, quiet bool) []gjson.Result {
	if doc.Empty() {
		return nil
	}
	r, ok := doc.Get(path)
	if !ok || !r.IsArray() || len(r.Array()) == 0 {
		if !quiet {
			c.logger.Warn("list missing or empty", "endpoint", endpoint, "path", path)
		}
		return nil
	}
	return r.Array()
}

func (c *Catalog) fans(doc nasapi.Document, counts *Counts) []Descriptor {
	list := c.list(doc, EndpointTemperature, "data.fan_list", false)
	counts.Fans = len(list)

	out := make([]Descriptor, 0, len(list))
	for i := range list {
		key := keyPrefix("fan", i, len(list))
		name := namePrefix("Fan", i, len(list))
		out = append(out, sensor(CategoryStatus, key+"_status", name+" Status", "mdi:fan-alert", "", EndpointTemperature,
			fmt.Sprintf("data.fan_list[%d].status", i)))
	}
	return withCadence(out, Slow)
}

func (c *Catalog) memory(doc nasapi.Document, counts *Counts) []Descriptor {
	list := c.list(doc, EndpointCommon, "data.hardware.mem", false)
	counts.RAM = len(list)
	if len(list) == 0 {
		return nil
	}

	out := make([]Descriptor, 0, 4*len(list)+1)
	sizeKeys := make([]string, 0, len(list))
	for i := range list {
		key := keyPrefix("ram", i, len(list))
		name := namePrefix("RAM Module", i, len(list))
		path := func(field string) string { return fmt.Sprintf("data.hardware.mem[%d].%s", i, field) }

		out = append(out,
			sensor(CategoryHardware, key+"_model", name+" Model", "mdi:memory", "", EndpointCommon, path("model")),
			sensor(CategoryHardware, key+"_manufacturer", name+" Manufacturer", "mdi:factory", "", EndpointCommon, path("manufacturer")),
			sensor(CategoryHardware, key+"_size", name+" Size", "mdi:memory", UnitBytes, EndpointCommon, path("size")).withDecimals(0),
			sensor(CategoryHardware, key+"_speed", name+" Speed", "mdi:speedometer", UnitMHz, EndpointCommon, path("mhz")).withDecimals(0),
		)
		sizeKeys = append(sizeKeys, key+"_size")
	}

	total := sensor(CategoryHardware, "ram_total_size", "RAM Total Size", "mdi:memory", UnitBytes, EndpointCommon, "").withDecimals(0)
	total.Source = Sum(sizeKeys...)
	out = append(out, total)

	return withCadence(out, Slow)
}

func (c *Catalog) lan(doc nasapi.Document, counts *Counts) []Descriptor {
	list := c.list(doc, EndpointCommon, "data.hardware.net", false)
	counts.LAN = len(list)

	out := make([]Descriptor, 0, 7*len(list))
	for i := range list {
		key := keyPrefix("lan", i, len(list))
		name := namePrefix("LAN", i, len(list))
		path := func(field string) string { return fmt.Sprintf("data.hardware.net[%d].%s", i, field) }

		out = append(out,
			sensor(CategoryNetwork, key+"_model", name+" Model", "mdi:lan", "", EndpointCommon, path("model")),
			sensor(CategoryNetwork, key+"_ip", name+" IP", "mdi:lan", "", EndpointCommon, path("ip")),
			sensor(CategoryNetwork, key+"_mac", name+" MAC", "mdi:lan", "", EndpointCommon, path("mac")),
			sensor(CategoryNetwork, key+"_speed", name+" Speed", "mdi:speedometer", UnitMbitPerSec, EndpointCommon, path("speed")).withDecimals(0),
			sensor(CategoryNetwork, key+"_duplex", name+" Duplex", "mdi:lan", "", EndpointCommon, path("duplex")),
			sensor(CategoryNetwork, key+"_mtu", name+" MTU", "mdi:lan", "", EndpointCommon, path("mtu")),
			sensor(CategoryNetwork, key+"_netmask", name+" Netmask", "mdi:lan", "", EndpointCommon, path("mask")),
		)
	}
	return withCadence(out, Slow)
}

func (c *Catalog) usb(doc nasapi.Document, counts *Counts) []Descriptor {
	// only plugged-in devices are listed, so an empty list is normal
	list := c.list(doc, EndpointCommon, "data.hardware.usb", true)
	counts.USB = len(list)

	out := make([]Descriptor, 0, 3*len(list))
	for i := range list {
		key := keyPrefix("usb_device", i, len(list))
		name := namePrefix("USB Device", i, len(list))
		path := func(field string) string { return fmt.Sprintf("data.hardware.usb[%d].%s", i, field) }

		out = append(out,
			sensor(CategoryUSB, key+"_model", name+" Model", "mdi:usb-port", "", EndpointCommon, path("model")),
			sensor(CategoryUSB, key+"_vendor", name+" Vendor", "mdi:usb-port", "", EndpointCommon, path("vendor")),
			sensor(CategoryUSB, key+"_type", name+" Type", "mdi:usb-port", "", EndpointCommon, path("device_type")),
		)
	}
	return withCadence(out, Slow)
}

// storage reports false when pools exist but the global disk list could not
// be read.
func (c *Catalog) storage(ctx context.Context, api Fetcher, doc nasapi.Document, counts *Counts) ([]Descriptor, bool) {
	pools := c.list(doc, EndpointPoolList, "data.result", false)
	counts.Pools = len(pools)
	if len(pools) == 0 {
		return nil, true
	}

	index, diskCount := c.disks(ctx, api)
	counts.Disks = diskCount

	var out []Descriptor
	for p, pool := range pools {
		out = append(out, poolDescriptors(p)...)

		refs, _ := jsonpath.Extract(pool, "disks")
		for d, ref := range refs.Array() {
			devName := ""
			if v, ok := jsonpath.Extract(ref, "dev_name"); ok {
				devName = v.String()
			}
			global, ok := index[devName]
			if !ok {
				c.logger.Warn("disk not found in global disk list, skipping", "dev_name", devName, "pool", p+1)
				continue
			}
			out = append(out, diskDescriptors(p, d, global)...)
		}

		volumes, _ := jsonpath.Extract(pool, "volumes")
		for v := range volumes.Array() {
			out = append(out, volumeDescriptors(p, v)...)
			counts.Volumes++
		}
	}
	return withCadence(out, Slow), index != nil
}

func identity(common nasapi.Document) Identity {
	str := func(path string) string {
		v, _ := common.Get(path)
		return v.String()
	}
	return Identity{
		Name:    str("data.common.nas_name"),
		Model:   str("data.common.model"),
		Version: str("data.common.system_version"),
		Serial:  str("data.common.serial"),
	}
}

// disks returns the device name index, building it on first use.
func (c *Catalog) disks(ctx context.Context, api Fetcher) (map[string]int, int) {
	c.mu.Lock()
	if c.diskIndex != nil {
		defer c.mu.Unlock()
		return c.diskIndex, c.diskCount
	}
	c.mu.Unlock()

	doc := c.fetch(ctx, api, EndpointDiskList)
	list := c.list(doc, EndpointDiskList, "data.result", false)
	if len(list) == 0 {
		// not cached; the next build retries
		return nil, 0
	}

	index := make(map[string]int, len(list))
	for i, disk := range list {
		if v, ok := jsonpath.Extract(disk, "dev_name"); ok && v.String() != "" {
			index[v.String()] = i
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.diskIndex = index
	c.diskCount = len(list)
	return c.diskIndex, c.diskCount
}

func poolDescriptors(p int) []Descriptor {
	key := fmt.Sprintf("pool%d", p+1)
	name := fmt.Sprintf("(Pool %d)", p+1)
	path := func(field string) string { return fmt.Sprintf("data.result[%d].%s", p, field) }

	return []Descriptor{
		sensor(CategoryPools, key+"_name", name+" Name", "mdi:chip", "", EndpointPoolList, path("name")),
		sensor(CategoryPools, key+"_label", name+" Label", "mdi:label", "", EndpointPoolList, path("label")),
		sensor(CategoryPools, key+"_level", name+" Level", "mdi:format-list-bulleted-type", "", EndpointPoolList, path("level")),
		sensor(CategoryPools, key+"_status", name+" Status", "mdi:check-circle-outline", "", EndpointPoolList, path("status")),
		sensor(CategoryPools, key+"_total", name+" Total Size", "mdi:database", UnitBytes, EndpointPoolList, path("total")),
		sensor(CategoryPools, key+"_used", name+" Used Size", "mdi:database-check", UnitBytes, EndpointPoolList, path("used")),
		sensor(CategoryPools, key+"_free", name+" Free Size", "mdi:database-remove", UnitBytes, EndpointPoolList, path("free")),
		sensor(CategoryPools, key+"_available", name+" Available Size", "mdi:database-plus", UnitBytes, EndpointPoolList, path("available")),
		sensor(CategoryPools, key+"_disk_count", name+" Disk Count", "mdi:harddisk", "", EndpointPoolList, path("total_disk_num")),
	}
}

// diskDescriptors reads pool p's disk d from the global disk list at index
// global.
func diskDescriptors(p, d, global int) []Descriptor {
	key := fmt.Sprintf("disk%d_pool%d", d+1, p+1)
	name := fmt.Sprintf("(Pool %d | Disk %d)", p+1, d+1)
	path := func(field string) string { return fmt.Sprintf("data.result[%d].%s", global, field) }

	return []Descriptor{
		sensor(CategoryDisks, key+"_model", name+" Model", "mdi:chip", "", EndpointDiskList, path("model")),
		sensor(CategoryDisks, key+"_serial", name+" Serial Number", "mdi:identifier", "", EndpointDiskList, path("serial")),
		sensor(CategoryDisks, key+"_size", name+" Size", "mdi:database", UnitBytes, EndpointDiskList, path("size")),
		sensor(CategoryDisks, key+"_name", name+" Name", "mdi:harddisk", "", EndpointDiskList, path("name")),
		sensor(CategoryDisks, key+"_dev_name", name+" Device Name", "mdi:console", "", EndpointDiskList, path("dev_name")),
		sensor(CategoryDisks, key+"_slot", name+" Slot", "mdi:server-network", "", EndpointDiskList, path("slot")),
		sensor(CategoryDisks, key+"_type", name+" Type", "mdi:harddisk", "", EndpointDiskList, path("type")),
		sensor(CategoryDisks, key+"_interface_type", name+" Interface Type", "mdi:harddisk", "", EndpointDiskList, path("interface_type")),
		sensor(CategoryDisks, key+"_label", name+" Label", "mdi:label", "", EndpointDiskList, path("label")),
		sensor(CategoryDisks, key+"_used_for", name+" Used For", "mdi:database-marker", "", EndpointDiskList, path("used_for")),
		sensor(CategoryDisks, key+"_status", name+" Status", "mdi:check-circle-outline", "", EndpointDiskList, path("status")),
		sensor(CategoryDisks, key+"_temperature", name+" Temperature", "mdi:thermometer", UnitCelsius, EndpointDiskList, path("temperature")),
		sensor(CategoryDisks, key+"_power_on_hours", name+" Power-On Hours", "mdi:clock-outline", "", EndpointDiskList, path("power_on_hours")),
		sensor(CategoryDisks, key+"_brand", name+" Brand", "mdi:tag", "", EndpointDiskList, path("brand")),
	}
}

func volumeDescriptors(p, v int) []Descriptor {
	key := fmt.Sprintf("volume%d_pool%d", v+1, p+1)
	name := fmt.Sprintf("(Pool %d | Volume %d)", p+1, v+1)
	path := func(field string) string { return fmt.Sprintf("data.result[%d].volumes[%d].%s", p, v, field) }

	return []Descriptor{
		sensor(CategoryVolumes, key+"_name", name+" Name", "mdi:label", "", EndpointPoolList, path("name")),
		sensor(CategoryVolumes, key+"_label", name+" Label", "mdi:label-outline", "", EndpointPoolList, path("label")),
		sensor(CategoryVolumes, key+"_poolname", name+" Pool Name", "mdi:database", "", EndpointPoolList, path("poolname")),
		sensor(CategoryVolumes, key+"_total", name+" Total Size", "mdi:database", UnitBytes, EndpointPoolList, path("total")),
		sensor(CategoryVolumes, key+"_used", name+" Used Size", "mdi:database-check", UnitBytes, EndpointPoolList, path("used")),
		sensor(CategoryVolumes, key+"_available", name+" Available Size", "mdi:database-plus", UnitBytes, EndpointPoolList, path("available")),
		sensor(CategoryVolumes, key+"_hascache", name+" Has Cache", "mdi:cached", "", EndpointPoolList, path("hascache")),
		sensor(CategoryVolumes, key+"_filesystem", name+" Filesystem", "mdi:file-cog", "", EndpointPoolList, path("filesystem")),
		sensor(CategoryVolumes, key+"_health", name+" Health", "mdi:heart-pulse", "", EndpointPoolList, path("health")),
		sensor(CategoryVolumes, key+"_status", name+" Status", "mdi:checkbox-marked-circle-outline", "", EndpointPoolList, path("status")),
	}
}

// diskStatus returns live per-disk readings. Series index 0 is the overall
// aggregate, so disk n lives at index n.
func diskStatus(n int) []Descriptor {
	var out []Descriptor
	for idx := 1; idx <= n; idx++ {
		key := fmt.Sprintf("disk%d", idx)
		name := fmt.Sprintf("Disk %d", idx)
		path := func(field string) string { return fmt.Sprintf("data.disk.series[%d].%s", idx, field) }

		out = append(out, ratePair(CategoryStatus, key+"_read_rate", name+" Read Rate", "mdi:download", path("read_rate"))...)
		out = append(out, ratePair(CategoryStatus, key+"_write_rate", name+" Write Rate", "mdi:upload", path("write_rate"))...)
		temp := sensor(CategoryStatus, key+"_temperature", name+" Temperature", "mdi:thermometer", UnitCelsius, EndpointStats, path("temperature")).withDecimals(1)
		temp.Cadence = Fast
		out = append(out, temp)
	}
	return out
}

// lanStatus returns live per-port rates, offset by one like diskStatus.
func lanStatus(n int) []Descriptor {
	var out []Descriptor
	for i := 0; i < n; i++ {
		key := keyPrefix("lan", i, n)
		name := namePrefix("LAN", i, n)
		path := func(field string) string { return fmt.Sprintf("data.net.series[%d].%s", i+1, field) }

		out = append(out, ratePair(CategoryNetwork, key+"_upload", name+" Upload", "mdi:upload-network", path("send_rate"))...)
		out = append(out, ratePair(CategoryNetwork, key+"_download", name+" Download", "mdi:download-network", path("recv_rate"))...)
	}
	return out
}

// keyPrefix returns base for a single element, otherwise base with a 1-based
// suffix.
func keyPrefix(base string, i, n int) string {
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%s%d", base, i+1)
}

func namePrefix(base string, i, n int) string {
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%s %d", base, i+1)
}
