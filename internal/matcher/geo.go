package matcher

import (
	"math"

	"github.com/Romigo24/star-burger/internal/model"
)

const earthRadiusKm = 6371.0

// haversineKm возвращает расстояние по дуге большого круга в километрах между
// двумя точками, заданными в градусах.
func haversineKm(a, b model.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLon := degreesToRadians(b.Lon - a.Lon)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// roundKm округляет расстояние до двух знаков после запятой.
func roundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
