// Package geo provides the spatial primitives shared by the Validator,
// Completor, and Identifier: Euclidean clustering and polygon overlay.
//
// Cluster is grounded on the teacher's DBSCAN implementation
// (internal/lidar/clustering.go's SpatialIndex/DBSCAN/expandCluster), but
// generalised from a fixed WorldPoint type to arbitrary 2D/3D coordinates
// supplied by the caller, since the Validator clusters candidate building
// points while the Completor clusters a different point set entirely.
package geo

import "math"

// Point is a 3D coordinate. Callers that want 2D clustering pass Z=0 and
// set Is3D=false in Params so Z never enters the distance computation.
type Point struct {
	X, Y, Z float64
}

// Params configures one clustering run.
type Params struct {
	MinPoints int     // minimum neighbourhood size to seed a cluster
	Tolerance float64 // Euclidean neighbourhood radius
	Is3D      bool    // if false, clustering uses X/Y only
}

// spatialIndex buckets point indices into a regular grid so that
// neighbourhood queries only need to inspect a constant number of cells,
// matching the teacher's SpatialIndex cell-size-equals-eps convention.
type spatialIndex struct {
	cellSize float64
	is3D     bool
	grid     map[[3]int64][]int
}

func buildIndex(points []Point, cellSize float64, is3D bool) *spatialIndex {
	idx := &spatialIndex{cellSize: cellSize, is3D: is3D, grid: make(map[[3]int64][]int, len(points))}
	for i, p := range points {
		cell := idx.cellOf(p)
		idx.grid[cell] = append(idx.grid[cell], i)
	}
	return idx
}

func (idx *spatialIndex) cellOf(p Point) [3]int64 {
	cz := int64(0)
	if idx.is3D {
		cz = int64(math.Floor(p.Z / idx.cellSize))
	}
	return [3]int64{
		int64(math.Floor(p.X / idx.cellSize)),
		int64(math.Floor(p.Y / idx.cellSize)),
		cz,
	}
}

// regionQuery returns every point within eps of points[i] (itself
// included), searching the 3x3 (or 3x3x3) neighbourhood of cells around i's
// cell. Results come cell by cell in a fixed cell order, with indices
// ascending within each cell, so the order is deterministic but not sorted
// by index overall.
func (idx *spatialIndex) regionQuery(points []Point, i int, eps float64) []int {
	p := points[i]
	base := idx.cellOf(p)
	eps2 := eps * eps

	zRange := []int64{0}
	if idx.is3D {
		zRange = []int64{-1, 0, 1}
	}

	var neighbors []int
	seen := make(map[int]struct{})
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, dz := range zRange {
				cell := [3]int64{base[0] + dx, base[1] + dy, base[2] + dz}
				for _, j := range idx.grid[cell] {
					if _, dup := seen[j]; dup {
						continue
					}
					q := points[j]
					ddx := q.X - p.X
					ddy := q.Y - p.Y
					ddz := 0.0
					if idx.is3D {
						ddz = q.Z - p.Z
					}
					if ddx*ddx+ddy*ddy+ddz*ddz <= eps2 {
						seen[j] = struct{}{}
						neighbors = append(neighbors, j)
					}
				}
			}
		}
	}
	return neighbors
}

// Cluster assigns each point a cluster id: 0 for noise, contiguous positive
// integers from 1 otherwise. Processing happens in input order and ties
// (a point equidistant to two clusters) resolve to whichever cluster is
// encountered first under that fixed order, matching §4.4's determinism
// requirement.
func Cluster(points []Point, p Params) []int {
	n := len(points)
	labels := make([]int, n)
	if n == 0 {
		return labels
	}

	idx := buildIndex(points, p.Tolerance, p.Is3D)
	const (
		unvisited = 0
		noise     = -1
	)
	clusterID := 0

	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		neighbors := idx.regionQuery(points, i, p.Tolerance)
		if len(neighbors) < p.MinPoints {
			labels[i] = noise
			continue
		}
		clusterID++
		expandCluster(points, idx, labels, i, neighbors, clusterID, p)
	}

	// Convert remaining noise markers (-1) to the public 0 ("not clustered").
	for i, l := range labels {
		if l == noise {
			labels[i] = 0
		}
	}
	return labels
}

func expandCluster(points []Point, idx *spatialIndex, labels []int, seed int, neighbors []int, clusterID int, p Params) {
	labels[seed] = clusterID

	queue := append([]int(nil), neighbors...)
	for j := 0; j < len(queue); j++ {
		i := queue[j]
		if labels[i] == -1 {
			labels[i] = clusterID // noise becomes a border point
		}
		if labels[i] != 0 {
			continue // already assigned (including to this cluster)
		}
		labels[i] = clusterID
		more := idx.regionQuery(points, i, p.Tolerance)
		if len(more) >= p.MinPoints {
			queue = append(queue, more...)
		}
	}
}

// NumClusters returns the number of distinct non-noise cluster ids in labels.
func NumClusters(labels []int) int {
	max := 0
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max
}
