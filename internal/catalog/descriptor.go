// Package catalog describes every value the bridge reads from the NAS.
//
// A [Descriptor] names one entity and says where its value comes from. Static
// descriptors are fixed; dynamic ones are generated by [Catalog.Build] after
// inspecting enumeration responses for fans, memory modules, network ports,
// USB devices, pools, disks and volumes.
package catalog

import (
	"fmt"
	"net/http"

	"github.com/jpalmerr/nasbridge/internal/format"
)

// DefaultDecimals is the rounding precision when a descriptor does not set one.
const DefaultDecimals = 2

// Category groups entities for display.
type Category string

const (
	CategoryDevice   Category = "Device"
	CategoryHardware Category = "Hardware"
	CategoryStatus   Category = "Status"
	CategoryNetwork  Category = "Network"
	CategoryUSB      Category = "USB"
	CategoryPools    Category = "Pools"
	CategoryDisks    Category = "Disks"
	CategoryVolumes  Category = "Volumes"
	CategoryAction   Category = "Action"
)

// Kind distinguishes read-only sensors from pressable buttons.
type Kind int

const (
	Sensor Kind = iota
	Button
)

func (k Kind) String() string {
	switch k {
	case Sensor:
		return "sensor"
	case Button:
		return "button"
	default:
		return "unknown"
	}
}

// Cadence says which poll job refreshes a descriptor.
type Cadence int

const (
	// Slow values describe configuration and change rarely.
	Slow Cadence = iota
	// Fast values are live status readings.
	Fast
)

func (c Cadence) String() string {
	if c == Fast {
		return "fast"
	}
	return "slow"
}

// SourceKind selects how a value is obtained.
type SourceKind int

const (
	// DirectPath extracts Path from the descriptor's endpoint response.
	DirectPath SourceKind = iota
	// DerivedSum adds the raw values already collected for Keys.
	DerivedSum
	// DerivedRateScale renders the raw bytes/second value of SourceKey as a
	// human readable rate.
	DerivedRateScale
)

func (k SourceKind) String() string {
	switch k {
	case DirectPath:
		return "path"
	case DerivedSum:
		return "sum"
	case DerivedRateScale:
		return "rate"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// ValueSource is a tagged variant; only the fields for Kind are meaningful.
type ValueSource struct {
	Kind      SourceKind
	Path      string
	Keys      []string
	SourceKey string
}

// Path returns a DirectPath source.
func Path(path string) ValueSource {
	return ValueSource{Kind: DirectPath, Path: path}
}

// Sum returns a DerivedSum source over keys.
func Sum(keys ...string) ValueSource {
	return ValueSource{Kind: DerivedSum, Keys: keys}
}

// RateScale returns a DerivedRateScale source reading sourceKey.
func RateScale(sourceKey string) ValueSource {
	return ValueSource{Kind: DerivedRateScale, SourceKey: sourceKey}
}

// Descriptor defines one entity.
type Descriptor struct {
	Key      string
	Name     string
	Icon     string
	Unit     string
	Category Category
	Endpoint string
	Source   ValueSource
	Method   string
	Decimals int
	Kind     Kind
	Cadence  Cadence
}

// Field projects the descriptor onto what the formatter needs.
func (d Descriptor) Field() format.Field {
	return format.Field{Key: d.Key, Name: d.Name, Unit: d.Unit, Decimals: d.Decimals}
}

func (d Descriptor) withDecimals(n int) Descriptor {
	d.Decimals = n
	return d
}

func sensor(cat Category, key, name, icon, unit, endpoint, path string) Descriptor {
	return Descriptor{
		Key:      key,
		Name:     name,
		Icon:     icon,
		Unit:     unit,
		Category: cat,
		Endpoint: endpoint,
		Source:   Path(path),
		Method:   http.MethodGet,
		Decimals: DefaultDecimals,
		Kind:     Sensor,
	}
}

func rateScaled(cat Category, key, name, icon, endpoint, rawKey string) Descriptor {
	return Descriptor{
		Key:      key,
		Name:     name,
		Icon:     icon,
		Category: cat,
		Endpoint: endpoint,
		Source:   RateScale(rawKey),
		Method:   http.MethodGet,
		Kind:     Sensor,
		Cadence:  Fast,
	}
}

func button(key, name, icon, endpoint string) Descriptor {
	return Descriptor{
		Key:      key,
		Name:     name,
		Icon:     icon,
		Category: CategoryAction,
		Endpoint: endpoint,
		Method:   http.MethodPost,
		Kind:     Button,
	}
}

func withCadence(ds []Descriptor, c Cadence) []Descriptor {
	for i := range ds {
		ds[i].Cadence = c
	}
	return ds
}
