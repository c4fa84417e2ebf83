package domain

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// Region is immutable administrative reference data, created by admin import
// and never mutated by marketplace users.
type Region struct {
	ID       string
	Name     string
	Centroid Point
	// Boundary is the region polygon when available; RadiusKm is the
	// circular fallback boundary around the centroid.
	Boundary []Point
	RadiusKm float64
}
