// pkg/core/vehicle.go
package core

import (
	"sort"
	"time"
)

// VehicleClass identifies a kind of vehicle. Each class has its own route,
// segment duration and icon.
type VehicleClass string

const (
	Car   VehicleClass = "car"
	Bike  VehicleClass = "bike"
	Truck VehicleClass = "truck"
)

// Style is the visual appearance of a marker, bound to the vehicle class it
// represents. Sizes and anchors are in pixels.
type Style struct {
	Class       VehicleClass `json:"class"`
	IconURL     string       `json:"iconUrl"`
	IconSize    [2]int       `json:"iconSize"`
	IconAnchor  [2]int       `json:"iconAnchor"`
	PopupAnchor [2]int       `json:"popupAnchor"`
}

// DefaultStyles are the icons used by the dashboard.
var DefaultStyles = map[VehicleClass]Style{
	Car: {
		Class:       Car,
		IconURL:     "/icons/car.png",
		IconSize:    [2]int{38, 38},
		IconAnchor:  [2]int{19, 38},
		PopupAnchor: [2]int{0, -38},
	},
	Bike: {
		Class:       Bike,
		IconURL:     "/icons/bike.png",
		IconSize:    [2]int{30, 30},
		IconAnchor:  [2]int{15, 30},
		PopupAnchor: [2]int{0, -30},
	},
	Truck: {
		Class:       Truck,
		IconURL:     "/icons/truck.png",
		IconSize:    [2]int{45, 45},
		IconAnchor:  [2]int{22, 45},
		PopupAnchor: [2]int{0, -45},
	},
}

// StyleFor returns the default style of class, or a bare style carrying only
// the class when none is defined.
func StyleFor(class VehicleClass) Style {
	if s, ok := DefaultStyles[class]; ok {
		return s
	}
	return Style{Class: class}
}

// DefaultDurations is the time budget per segment for each class.
var DefaultDurations = map[VehicleClass]time.Duration{
	Car:   3000 * time.Millisecond,
	Bike:  1500 * time.Millisecond,
	Truck: 4000 * time.Millisecond,
}

// DefaultSegmentDuration applies to classes without a configured duration.
const DefaultSegmentDuration = 2000 * time.Millisecond

// SortedClasses returns the keys of m in lexical order.
func SortedClasses[V any](m map[VehicleClass]V) []VehicleClass {
	classes := make([]VehicleClass, 0, len(m))
	for c := range m {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}
