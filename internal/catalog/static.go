package catalog

// Vendor API routes.
const (
	EndpointCommon       = "/ugreen/v1/sysinfo/machine/common"
	EndpointSystemStatus = "/ugreen/v1/desktop/components/data?id=desktop.component.SystemStatus"
	EndpointTemperature  = "/ugreen/v1/desktop/components/data?id=desktop.component.TemperatureMonitoring"
	EndpointStats        = "/ugreen/v1/taskmgr/stat/get_all"
	EndpointPoolList     = "/ugreen/v1/storage/pool/list"
	EndpointDiskList     = "/ugreen/v2/storage/disk/list"
	EndpointShutdown     = "/ugreen/v1/desktop/shutdown"
	EndpointReboot       = "/ugreen/v1/desktop/reboot"
)

// Units used across descriptors.
const (
	UnitBytes       = "B"
	UnitBytesPerSec = "B/s"
	UnitPercent     = "%"
	UnitCelsius     = "°C"
	UnitMHz         = "MHz"
	UnitRPM         = "RPM"
	UnitSeconds     = "s"
	UnitMbitPerSec  = "Mbit/s"
)

// StaticConfiguration returns the fixed slow-cadence sensors.
func StaticConfiguration() []Descriptor {
	return withCadence([]Descriptor{
		// device
		sensor(CategoryDevice, "owner", "NAS Owner", "mdi:account", "", EndpointCommon, "data.common.nas_owner"),
		sensor(CategoryDevice, "model", "NAS Model", "mdi:account", "", EndpointCommon, "data.common.model"),
		sensor(CategoryDevice, "serial", "NAS Serial", "mdi:focus-field", "", EndpointCommon, "data.common.serial"),
		sensor(CategoryDevice, "version", "NAS UGOS Version", "mdi:numeric", "", EndpointCommon, "data.common.system_version"),
		sensor(CategoryDevice, "type", "NAS Type", "mdi:nas", "", EndpointSystemStatus, "data.type"),
		sensor(CategoryDevice, "device_name", "NAS Name", "mdi:nas", "", EndpointSystemStatus, "data.dev_name"),

		// hardware
		sensor(CategoryHardware, "cpu_model", "CPU Model", "mdi:chip", "", EndpointCommon, "data.hardware.cpu[0].model"),
		sensor(CategoryHardware, "cpu_ghz", "CPU Speed", "mdi:speedometer", UnitMHz, EndpointCommon, "data.hardware.cpu[0].ghz").withDecimals(0),
		sensor(CategoryHardware, "cpu_core", "CPU Cores", "mdi:chip", "Cores", EndpointCommon, "data.hardware.cpu[0].core").withDecimals(0),
		sensor(CategoryHardware, "cpu_thread", "CPU Threads", "mdi:chip", "Threads", EndpointCommon, "data.hardware.cpu[0].thread").withDecimals(0),
		sensor(CategoryHardware, "ups_model", "UPS Model", "mdi:power-plug-battery", "", EndpointCommon, "data.hardware.ups[0].model"),
		sensor(CategoryHardware, "ups_vendor", "UPS Vendor", "mdi:power-plug-battery", "", EndpointCommon, "data.hardware.ups[0].vendor"),
		// reported as a string like "100%", so no unit
		sensor(CategoryHardware, "ups_power_free", "UPS Power Remaining", "mdi:power-plug-battery", "", EndpointCommon, "data.hardware.ups[0].power_free"),

		// system status
		sensor(CategoryStatus, "last_boot_date", "Last Boot", "mdi:calendar", "", EndpointSystemStatus, "data.last_boot_date"),
		sensor(CategoryStatus, "last_boot_time", "Last Boot Timestamp", "mdi:clock", "", EndpointSystemStatus, "data.last_boot_time"),
		sensor(CategoryStatus, "message", "System Message", "mdi:message", "", EndpointSystemStatus, "data.message"),
		sensor(CategoryStatus, "server_status", "Server Status", "mdi:server", "", EndpointSystemStatus, "data.server_status"),
		sensor(CategoryStatus, "status", "System Status Code", "mdi:information", "", EndpointSystemStatus, "data.status"),
		sensor(CategoryStatus, "total_run_time", "Total Runtime", "mdi:timer-outline", UnitSeconds, EndpointSystemStatus, "data.total_run_time"),

		// temperature monitoring
		sensor(CategoryStatus, "cpu_status", "CPU Temperature Status", "mdi:alert", "", EndpointTemperature, "data.cpu_status"),
		sensor(CategoryStatus, "fan_status_overall", "Fan Status (Overall)", "mdi:fan-alert", "", EndpointTemperature, "data.fan_status"),
		sensor(CategoryStatus, "temperature_message", "Temperature Message", "mdi:message-alert", "", EndpointTemperature, "data.message"),
		sensor(CategoryStatus, "temperature_status", "Temperature Status Code", "mdi:information", "", EndpointTemperature, "data.status"),
	}, Slow)
}

// StaticStatus returns the fixed fast-cadence sensors, all read from the
// task manager statistics endpoint.
func StaticStatus() []Descriptor {
	ds := withCadence([]Descriptor{
		sensor(CategoryStatus, "cpu_usage", "CPU Usage", "mdi:chip", UnitPercent, EndpointStats, "data.overview.cpu[0].used_percent").withDecimals(0),
		sensor(CategoryStatus, "cpu_temperature", "CPU Temperature", "mdi:thermometer", UnitCelsius, EndpointStats, "data.overview.cpu[0].temp").withDecimals(0),
		sensor(CategoryStatus, "mem_usage", "RAM Usage", "mdi:memory", UnitPercent, EndpointStats, "data.overview.mem[0].used_percent"),
		sensor(CategoryStatus, "ram_usage_total_usable", "RAM Usage (Usable RAM)", "mdi:memory", UnitBytes, EndpointStats, "data.mem.structure.total"),
		sensor(CategoryStatus, "ram_usage_free", "RAM Usage (Free RAM)", "mdi:memory", UnitBytes, EndpointStats, "data.mem.structure.free"),
		sensor(CategoryStatus, "ram_usage_cache", "RAM Usage (Cache)", "mdi:memory", UnitBytes, EndpointStats, "data.mem.structure.cache"),
		sensor(CategoryStatus, "ram_usage_shared", "RAM Usage (Shared Mem)", "mdi:memory", UnitBytes, EndpointStats, "data.mem.structure.share"),
		sensor(CategoryStatus, "ram_usage_used_gb", "RAM Usage (Used GB)", "mdi:memory", UnitBytes, EndpointStats, "data.mem.structure.used"),
		sensor(CategoryStatus, "cpu_fan_speed", "CPU Fan Speed", "mdi:fan", UnitRPM, EndpointStats, "data.overview.cpu_fan[0].speed"),
		sensor(CategoryStatus, "device_fan_speed", "Device Fan Speed", "mdi:fan", UnitRPM, EndpointStats, "data.overview.device_fan[0].speed"),
	}, Fast)

	ds = append(ds, ratePair(CategoryStatus, "overall_lan_upload", "Overall LAN Upload", "mdi:upload-network", "data.net.series[0].send_rate")...)
	ds = append(ds, ratePair(CategoryStatus, "overall_lan_download", "Overall LAN Download", "mdi:download-network", "data.net.series[0].recv_rate")...)
	ds = append(ds, ratePair(CategoryStatus, "overall_disk_read_rate", "Overall Disk Read Rate", "mdi:harddisk", "data.disk.series[0].read_rate")...)
	ds = append(ds, ratePair(CategoryStatus, "overall_disk_write_rate", "Overall Disk Write Rate", "mdi:harddisk", "data.disk.series[0].write_rate")...)
	ds = append(ds, ratePair(CategoryStatus, "overall_volume_read_rate", "Overall Volume Read Rate", "mdi:harddisk", "data.volume.series[0].read_rate")...)
	ds = append(ds, ratePair(CategoryStatus, "overall_volume_write_rate", "Overall Volume Write Rate", "mdi:harddisk", "data.volume.series[0].write_rate")...)
	return ds
}

// Buttons returns the system action buttons.
func Buttons() []Descriptor {
	return []Descriptor{
		button("shutdown", "Shutdown", "mdi:power", EndpointShutdown),
		button("reboot", "Reboot", "mdi:restart", EndpointReboot),
	}
}

// ratePair returns a raw B/s sensor at path and a human readable sibling
// derived from it. The raw key is key + "_raw".
func ratePair(cat Category, key, name, icon, path string) []Descriptor {
	rawKey := key + "_raw"
	raw := sensor(cat, rawKey, name+" (raw)", icon, UnitBytesPerSec, EndpointStats, path).withDecimals(0)
	raw.Cadence = Fast
	return []Descriptor{
		raw,
		rateScaled(cat, key, name, icon, EndpointStats, rawKey),
	}
}
