package geo

import (
	"math"
	"testing"

	"technician-tracking/internal/models"
)

// kmPerDegreeLat is the approximate surface distance of one degree of
// latitude, used to construct coordinates a known distance apart.
const kmPerDegreeLat = 111.195

// coordAtKmNorth returns a coordinate the given number of kilometers due
// north of base.
func coordAtKmNorth(base models.Coordinate, km float64) models.Coordinate {
	return models.Coordinate{
		Latitude:  base.Latitude + km/kmPerDegreeLat,
		Longitude: base.Longitude,
	}
}

func TestDistance(t *testing.T) {
	austin := models.Coordinate{Latitude: 30.0, Longitude: -97.0}

	t.Run("zero for identical points", func(t *testing.T) {
		if d := Distance(austin, austin); d != 0 {
			t.Errorf("expected 0, got %f", d)
		}
	})

	t.Run("symmetric", func(t *testing.T) {
		other := models.Coordinate{Latitude: 30.5, Longitude: -97.5}
		ab := Distance(austin, other)
		ba := Distance(other, austin)
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("expected symmetric distance, got %f and %f", ab, ba)
		}
	})

	t.Run("one degree of longitude at the equator", func(t *testing.T) {
		a := models.Coordinate{Latitude: 0, Longitude: 0}
		b := models.Coordinate{Latitude: 0, Longitude: 1}
		d := Distance(a, b)
		if math.Abs(d-111.195) > 0.01 {
			t.Errorf("expected ~111.195 km, got %f", d)
		}
	})

	t.Run("constructed offset round-trips", func(t *testing.T) {
		for _, km := range []float64{0.02, 0.3, 0.6, 5.0} {
			d := Distance(coordAtKmNorth(austin, km), austin)
			if math.Abs(d-km) > km*0.01 {
				t.Errorf("offset %f km: measured %f km", km, d)
			}
		}
	})
}

func TestEstimateETA(t *testing.T) {
	tests := []struct {
		name       string
		distanceKm float64
		speedKmh   float64
		expected   float64
	}{
		{
			name:       "five km at default cruising speed",
			distanceKm: 5,
			speedKmh:   0, // falls back to 40 km/h
			expected:   7.5,
		},
		{
			name:       "ten km at sixty",
			distanceKm: 10,
			speedKmh:   60,
			expected:   10,
		},
		{
			name:       "negative speed falls back to default",
			distanceKm: 20,
			speedKmh:   -5,
			expected:   30,
		},
		{
			name:       "zero distance",
			distanceKm: 0,
			speedKmh:   50,
			expected:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minutes := EstimateETA(tt.distanceKm, tt.speedKmh)
			if math.Abs(minutes-tt.expected) > 1e-9 {
				t.Errorf("expected %f minutes, got %f", tt.expected, minutes)
			}
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	destination := models.Coordinate{Latitude: 30.0, Longitude: -97.0}

	tests := []struct {
		name     string
		km       float64
		expected models.TechnicianStatus
	}{
		{name: "at destination", km: 0, expected: models.StatusOnSite},
		{name: "twenty meters out", km: 0.02, expected: models.StatusOnSite},
		{name: "three hundred meters out", km: 0.3, expected: models.StatusArriving},
		{name: "just inside arriving radius", km: 0.45, expected: models.StatusArriving},
		{name: "six hundred meters out", km: 0.6, expected: models.StatusEnRoute},
		{name: "five km out", km: 5, expected: models.StatusEnRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveStatus(coordAtKmNorth(destination, tt.km), destination)
			if got != tt.expected {
				t.Errorf("at %f km: expected %s, got %s", tt.km, tt.expected, got)
			}
		})
	}
}

func TestTrafficCondition(t *testing.T) {
	speed := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		speedKmh *float64
		expected models.Traffic
	}{
		{name: "no speed reported", speedKmh: nil, expected: models.TrafficUnknown},
		{name: "stationary", speedKmh: speed(0), expected: models.TrafficUnknown},
		{name: "crawling", speedKmh: speed(10), expected: models.TrafficHeavy},
		{name: "city pace", speedKmh: speed(25), expected: models.TrafficModerate},
		{name: "open road", speedKmh: speed(60), expected: models.TrafficLight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrafficCondition(tt.speedKmh); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}
