package volume

import (
	"errors"
	"testing"

	"ptannotator3d/internal/models"
)

// rampVolume fills a volume so each voxel encodes its own coordinates,
// making misaligned reads easy to spot.
func rampVolume(t *testing.T, shape models.IVec3, channels int) *Dense {
	t.Helper()
	d, err := NewDense(shape, channels, nil)
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}
	for c := 0; c < channels; c++ {
		for z := 0; z < shape[0]; z++ {
			for y := 0; y < shape[1]; y++ {
				for x := 0; x < shape[2]; x++ {
					d.Set(c, z, y, x, float64(c*1000000+z*10000+y*100+x))
				}
			}
		}
	}
	return d
}

// TestDenseReadRegion verifies an interior read returns the right voxels
func TestDenseReadRegion(t *testing.T) {
	d := rampVolume(t, models.IVec3{8, 8, 8}, 1)

	chunk, err := d.ReadRegion(0, models.IVec3{2, 3, 4}, models.IVec3{3, 2, 2})
	if err != nil {
		t.Fatalf("ReadRegion: %v", err)
	}
	if chunk.Shape != (models.IVec3{3, 2, 2}) {
		t.Fatalf("Chunk shape = %v", chunk.Shape)
	}
	if chunk.Origin != (models.IVec3{2, 3, 4}) {
		t.Errorf("Chunk origin = %v", chunk.Origin)
	}
	for z := 0; z < 3; z++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				want := float64((2+z)*10000 + (3+y)*100 + (4 + x))
				if got := chunk.At(z, y, x); got != want {
					t.Errorf("At(%d,%d,%d) = %g, want %g", z, y, x, got, want)
				}
			}
		}
	}
}

// TestClipPolicy verifies the boundary scenario: a 10-cube requested at
// origin (95,0,0) of a 100-cube image covers axis-0 indices [95,100) only
func TestClipPolicy(t *testing.T) {
	d, err := NewDense(models.IVec3{100, 100, 100}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	chunk, err := d.ReadRegion(0, models.IVec3{95, 0, 0}, models.IVec3{10, 10, 10})
	if err != nil {
		t.Fatalf("ReadRegion: %v", err)
	}
	if chunk.Origin != (models.IVec3{95, 0, 0}) {
		t.Errorf("Clipping must not move the origin, got %v", chunk.Origin)
	}
	if chunk.Shape != (models.IVec3{5, 10, 10}) {
		t.Errorf("Expected clipped shape (5,10,10), got %v", chunk.Shape)
	}
	if len(chunk.Data) != 5*10*10 {
		t.Errorf("Data length %d does not match clipped shape", len(chunk.Data))
	}
}

// TestReadRegionBounds verifies the requests that are invalid even under
// the clipping policy
func TestReadRegionBounds(t *testing.T) {
	d, err := NewDense(models.IVec3{10, 10, 10}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		origin models.IVec3
		shape  models.IVec3
	}{
		{"negative origin", models.IVec3{-1, 0, 0}, models.IVec3{2, 2, 2}},
		{"origin at extent", models.IVec3{10, 0, 0}, models.IVec3{2, 2, 2}},
		{"origin past extent", models.IVec3{0, 42, 0}, models.IVec3{2, 2, 2}},
		{"zero shape", models.IVec3{0, 0, 0}, models.IVec3{2, 0, 2}},
		{"negative shape", models.IVec3{0, 0, 0}, models.IVec3{2, 2, -1}},
	}
	for _, tc := range cases {
		_, err := d.ReadRegion(0, tc.origin, tc.shape)
		var boundsErr *BoundsError
		if !errors.As(err, &boundsErr) {
			t.Errorf("%s: expected BoundsError, got %v", tc.name, err)
		}
	}
}

// TestDenseChannels verifies channel selection and range checking
func TestDenseChannels(t *testing.T) {
	d := rampVolume(t, models.IVec3{4, 4, 4}, 3)

	chunk, err := d.ReadRegion(2, models.IVec3{0, 0, 0}, models.IVec3{1, 1, 1})
	if err != nil {
		t.Fatalf("ReadRegion channel 2: %v", err)
	}
	if got := chunk.At(0, 0, 0); got != 2000000 {
		t.Errorf("Channel 2 voxel = %g, want 2000000", got)
	}

	_, err = d.ReadRegion(3, models.IVec3{0, 0, 0}, models.IVec3{1, 1, 1})
	var accessErr *AccessError
	if !errors.As(err, &accessErr) {
		t.Errorf("Expected AccessError for channel out of range, got %v", err)
	}

	// Without a channel axis the index is ignored.
	single := rampVolume(t, models.IVec3{4, 4, 4}, 1)
	if _, err := single.ReadRegion(7, models.IVec3{0, 0, 0}, models.IVec3{1, 1, 1}); err != nil {
		t.Errorf("Channel index should be ignored for 3D volume: %v", err)
	}
}

// TestDenseDataLengthValidation verifies constructor input checking
func TestDenseDataLengthValidation(t *testing.T) {
	if _, err := NewDense(models.IVec3{2, 2, 2}, 1, make([]float64, 7)); err == nil {
		t.Error("Expected error for mismatched data length")
	}
	if _, err := NewDense(models.IVec3{2, 0, 2}, 1, nil); err == nil {
		t.Error("Expected error for non-positive shape")
	}
}
