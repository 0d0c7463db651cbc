// Package geo provides the distance, ETA and arrival-status arithmetic used
// by the tracking engine. Everything here is a pure function over coordinate
// pairs; no state, no I/O.
package geo

import (
	"math"

	"technician-tracking/internal/models"
)

const (
	// earthRadiusKm is the mean radius of the Earth used by the haversine formula.
	earthRadiusKm = 6371.0

	// DefaultSpeedKmh is substituted when a location update reports no speed
	// (or a nonsensical one), so ETA math never divides by zero.
	DefaultSpeedKmh = 40.0

	// OnSiteRadiusKm is the distance below which a technician counts as on site.
	OnSiteRadiusKm = 0.05

	// ArrivingRadiusKm is the distance below which a technician counts as arriving.
	ArrivingRadiusKm = 0.5
)

// Distance returns the great-circle distance between two coordinates in
// kilometers, using the haversine formula.
func Distance(a, b models.Coordinate) float64 {
	latA := toRadians(a.Latitude)
	latB := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// EstimateETA converts a remaining distance and a reported speed into a
// duration in minutes. A speed of zero or less falls back to DefaultSpeedKmh.
func EstimateETA(distanceKm, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return distanceKm / speedKmh * 60
}

// DeriveStatus maps the distance between the technician's position and the
// destination onto the three tracking statuses. The thresholds are fixed and
// carry no hysteresis: a position jittering around a cutoff will flip status
// back and forth, and callers must tolerate that.
func DeriveStatus(current, destination models.Coordinate) models.TechnicianStatus {
	d := Distance(current, destination)
	switch {
	case d < OnSiteRadiusKm:
		return models.StatusOnSite
	case d < ArrivingRadiusKm:
		return models.StatusArriving
	default:
		return models.StatusEnRoute
	}
}

// TrafficCondition classifies a reported speed into a coarse traffic bucket
// for display next to the ETA. A nil speed yields TrafficUnknown.
func TrafficCondition(speedKmh *float64) models.Traffic {
	if speedKmh == nil || *speedKmh <= 0 {
		return models.TrafficUnknown
	}
	switch {
	case *speedKmh < 15:
		return models.TrafficHeavy
	case *speedKmh < 35:
		return models.TrafficModerate
	default:
		return models.TrafficLight
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
