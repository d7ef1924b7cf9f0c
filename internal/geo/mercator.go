package geo

import "math"

// maxMercatorLat is where Web Mercator tiles end.
const maxMercatorLat = 85.0511287798

// project maps degrees to normalized Web Mercator coordinates in [0,1].
func project(lat, lon float64) (x, y float64) {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	phi := lat * math.Pi / 180
	x = (lon + 180) / 360
	y = (1 - math.Log(math.Tan(phi)+1/math.Cos(phi))/math.Pi) / 2
	return x, y
}

func unproject(x, y float64) (lat, lon float64) {
	lon = x*360 - 180
	n := math.Pi * (1 - 2*y)
	lat = math.Atan(math.Sinh(n)) * 180 / math.Pi
	return lat, lon
}

// fitZoom returns the largest zoom at which a span of dx by dy normalized units
// fits into w by h pixels.
func fitZoom(dx, dy, w, h, tileSize float64) float64 {
	zx, zy := math.Inf(1), math.Inf(1)
	if dx > 0 {
		zx = math.Log2(w / (dx * tileSize))
	}
	if dy > 0 {
		zy = math.Log2(h / (dy * tileSize))
	}
	return math.Min(zx, zy)
}
