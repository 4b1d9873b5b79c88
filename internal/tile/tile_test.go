package tile

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleTile() *Tile {
	t := New(4)
	t.Header = Header{
		PointCount:         4,
		MinX:               100.0,
		MinY:               200.0,
		MinZ:               0.0,
		MaxX:               110.0,
		MaxY:               210.0,
		MaxZ:               12.5,
		EPSG:               2154,
		PointFormatVersion: 6,
	}
	for i := range t.X {
		t.X[i] = 100.0 + float64(i)
		t.Y[i] = 200.0 + float64(i)*2
		t.Z[i] = float64(i)
		t.Intensity[i] = uint16(50 * i)
		t.Classification[i] = 6
	}
	proba := t.AddDimension("building_proba", DimFloat32)
	for i := range proba.F32 {
		proba.F32[i] = 0.1 * float32(i)
	}
	flag := t.AddDimension("candidate_flag", DimUint8)
	for i := range flag.U8 {
		flag.U8[i] = uint8(i % 2)
	}
	cid := t.AddDimension("cluster_id_candidates", DimInt32)
	for i := range cid.I32 {
		cid.I32[i] = int32(i)
	}
	return t
}

// Round trip: read-then-write preserves XYZ and header byte-identically (§8.1).
func TestRoundTripPreservesGeometryAndHeader(t *testing.T) {
	orig := sampleTile()

	var buf bytes.Buffer
	if err := Write(&buf, orig); err != nil {
		t.Fatalf("Write: %v", err)
	}

	written := append([]byte(nil), buf.Bytes()...)
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if diff := cmp.Diff(orig.Header, got.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(orig.X, got.X); diff != "" {
		t.Errorf("X mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(orig.Y, got.Y); diff != "" {
		t.Errorf("Y mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(orig.Z, got.Z); diff != "" {
		t.Errorf("Z mismatch (-want +got):\n%s", diff)
	}

	var buf2 bytes.Buffer
	if err := Write(&buf2, got); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	// Map iteration order can reorder the extras section; compare the
	// header+geometry prefix, which is written in fixed order.
	headerJSON, err := json.Marshal(orig.Header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	n := orig.NumPoints()
	prefixLen := len(magic) + 4 + len(headerJSON) + n*(3*8+2+1)
	if !bytes.Equal(written[:prefixLen], buf2.Bytes()[:prefixLen]) {
		t.Errorf("header+geometry prefix differs between first and second Write")
	}
}

func TestAddDimensionIsIdempotent(t *testing.T) {
	tl := New(3)
	d1 := tl.AddDimension("db_overlay", DimUint8)
	d1.U8[0] = 1
	d2 := tl.AddDimension("db_overlay", DimUint8)
	if d2.U8[0] != 1 {
		t.Fatalf("AddDimension should return the existing dimension, got fresh zeroed data")
	}
	if len(tl.Extra) != 1 {
		t.Fatalf("expected 1 extra dimension, got %d", len(tl.Extra))
	}
}

func TestRequireDimensionMissing(t *testing.T) {
	tl := New(2)
	_, err := tl.RequireDimension("entropy")
	if err == nil {
		t.Fatal("expected MissingDimensionError")
	}
	var mde *MissingDimensionError
	if !errors.As(err, &mde) {
		t.Fatalf("expected *MissingDimensionError, got %T", err)
	}
}

func TestIntBounds(t *testing.T) {
	h := Header{MinX: 100.4, MinY: 200.9, MaxX: 110.1, MaxY: 210.01}
	minX, minY, maxX, maxY := h.IntBounds()
	if minX != 100 || minY != 200 || maxX != 111 || maxY != 211 {
		t.Fatalf("unexpected bounds: %d %d %d %d", minX, minY, maxX, maxY)
	}
}
