package geo

// Polygon is a single 2D ring (closed or not — the last point need not
// repeat the first). Z is ignored everywhere in this package, per §4.5.
type Polygon struct {
	Ring []Point
}

// bbox is a 2D axis-aligned bounding box used to cheaply reject polygons
// that cannot possibly contain a query point before running the exact
// point-in-ring test, mirroring the cell-prefilter idiom Cluster uses.
type bbox struct {
	minX, minY, maxX, maxY float64
}

func polygonBBox(p Polygon) bbox {
	if len(p.Ring) == 0 {
		return bbox{}
	}
	b := bbox{p.Ring[0].X, p.Ring[0].Y, p.Ring[0].X, p.Ring[0].Y}
	for _, v := range p.Ring[1:] {
		if v.X < b.minX {
			b.minX = v.X
		}
		if v.X > b.maxX {
			b.maxX = v.X
		}
		if v.Y < b.minY {
			b.minY = v.Y
		}
		if v.Y > b.maxY {
			b.maxY = v.Y
		}
	}
	return b
}

func (b bbox) contains(x, y float64) bool {
	return x >= b.minX && x <= b.maxX && y >= b.minY && y <= b.maxY
}

// pointInRing reports whether (x, y) lies inside the polygon ring using the
// standard even-odd ray-casting test.
func pointInRing(ring []Point, x, y float64) bool {
	inside := false
	n := len(ring)
	if n < 3 {
		return false
	}
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi.Y > y) != (pj.Y > y) {
			xIntersect := (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if x < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

// Overlay flags each point with 1 if it lies inside any polygon of layer,
// 0 otherwise. Z is ignored.
func Overlay(points []Point, layer []Polygon) []uint8 {
	flags := make([]uint8, len(points))
	if len(layer) == 0 {
		return flags
	}

	bboxes := make([]bbox, len(layer))
	for i, poly := range layer {
		bboxes[i] = polygonBBox(poly)
	}

	for i, p := range points {
		for k, poly := range layer {
			if !bboxes[k].contains(p.X, p.Y) {
				continue
			}
			if pointInRing(poly.Ring, p.X, p.Y) {
				flags[i] = 1
				break
			}
		}
	}
	return flags
}
