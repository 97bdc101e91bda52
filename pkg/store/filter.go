package store

import "ptannotator3d/internal/models"

// FilterInRegion returns the records whose coordinates fall inside the
// half-open region [origin, origin+shape), translated into the chunk-local
// frame by subtracting the origin component-wise. A record sitting exactly on
// origin+shape along any axis is excluded.
//
// Pure helper: the input slice and its records are never modified.
func FilterInRegion(records []models.Record, origin, shape models.IVec3) []models.Record {
	var out []models.Record
	for _, rec := range records {
		if !inRegion(rec.Pos, origin, shape) {
			continue
		}
		local := rec
		local.Pos = rec.Pos.Sub(origin)
		out = append(out, local)
	}
	return out
}

func inRegion(p models.Vec3, origin, shape models.IVec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < float64(origin[i]) || p[i] >= float64(origin[i]+shape[i]) {
			return false
		}
	}
	return true
}
