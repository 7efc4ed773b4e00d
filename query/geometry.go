package query

import (
	"math"

	"github.com/hupe1980/brepq/mesh"
)

const parallelEpsilon = 1e-12

// intersectTriangle returns the ray parameter of the hit with triangle v
// (Möller–Trumbore, two-sided). Negative parameters are reported too.
func intersectTriangle(origin, dir mesh.Vec3, v [3]mesh.Vec3) (float64, bool) {
	e1 := v[1].Sub(v[0])
	e2 := v[2].Sub(v[0])
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < parallelEpsilon {
		return 0, false
	}
	inv := 1 / det
	s := origin.Sub(v[0])
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	w := dir.Dot(q) * inv
	if w < 0 || u+w > 1 {
		return 0, false
	}
	return e2.Dot(q) * inv, true
}

// closestPointOnTriangle returns the point of triangle v nearest to p.
func closestPointOnTriangle(p mesh.Vec3, v [3]mesh.Vec3) mesh.Vec3 {
	a, b, c := v[0], v[1], v[2]
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)

	d1, d2 := ab.Dot(ap), ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := p.Sub(b)
	d3, d4 := ab.Dot(bp), ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return a.Add(ab.Scale(d1 / (d1 - d3)))
	}

	cp := p.Sub(c)
	d5, d6 := ab.Dot(cp), ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return a.Add(ac.Scale(d2 / (d2 - d6)))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		bc := c.Sub(b)
		return b.Add(bc.Scale((d4 - d3) / ((d4 - d3) + (d5 - d6))))
	}

	denom := 1 / (va + vb + vc)
	return a.Add(ab.Scale(vb * denom)).Add(ac.Scale(vc * denom))
}

// solidAngle returns the signed solid angle subtended by triangle v at p
// (Van Oosterom–Strackee). It is positive when the winding normal points
// away from p.
func solidAngle(p mesh.Vec3, v [3]mesh.Vec3) float64 {
	a := v[0].Sub(p)
	b := v[1].Sub(p)
	c := v[2].Sub(p)
	la, lb, lc := a.Len(), b.Len(), c.Len()
	num := a.Dot(b.Cross(c))
	den := la*lb*lc + a.Dot(b)*lc + a.Dot(c)*lb + b.Dot(c)*la
	return 2 * math.Atan2(num, den)
}

func triangleNormal(v [3]mesh.Vec3) mesh.Vec3 {
	return v[1].Sub(v[0]).Cross(v[2].Sub(v[0])).Unit()
}

func triangleArea(v [3]mesh.Vec3) float64 {
	return v[1].Sub(v[0]).Cross(v[2].Sub(v[0])).Len() / 2
}

// signedTetVolume is the volume of the tetrahedron (origin, v0, v1, v2).
func signedTetVolume(v [3]mesh.Vec3) float64 {
	return v[0].Dot(v[1].Cross(v[2])) / 6
}
