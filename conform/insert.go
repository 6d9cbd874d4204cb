package conform

import (
	"github.com/soypat/cvmesh/delaunay"
	"gonum.org/v1/gonum/spatial/r3"
)

// InsertPairs inserts every group whose members are clear of the existing
// sites and of each other, assigning fresh global indices and linking the
// members through Pair. A group is never left partially inserted: when a
// member is dropped the insertions of the group are rolled back and the
// group is counted as rejected.
func (e *Engine) InsertPairs(tess *delaunay.Tessellation, groups []Group) Report {
	var rep Report
	for gi := range groups {
		g := &groups[gi]
		if !e.insertable(tess, g) {
			rep.Rejected++
			continue
		}
		n := len(g.Points)
		idx := make([]int, n)
		for i := range idx {
			idx[i] = e.next()
		}
		for i := range g.Points {
			g.Points[i].Index = idx[i]
			g.Points[i].Pair = idx[(i+1)%n]
		}
		tess.Begin()
		dropped := -1
		for i, p := range g.Points {
			if _, ok := tess.Insert(p.Pos, p.Info); !ok {
				dropped = i
				break
			}
		}
		if dropped >= 0 {
			tess.Rollback()
			rep.Rejected++
			rep.anomaly("rolledBackGroups", 1)
			e.log.Debug("group rolled back", "kind", g.Kind, "origin", g.Origin, "member", dropped)
			continue
		}
		tess.Commit()
		rep.Groups[g.Kind]++
		g.Inserted = true
	}
	return rep
}

func (e *Engine) insertable(tess *delaunay.Tessellation, g *Group) bool {
	tol2 := e.geom.Tolerance() * e.geom.Tolerance()
	for i, p := range g.Points {
		if tess.Coincident(p.Pos) {
			return false
		}
		for _, q := range g.Points[:i] {
			if r3.Norm2(r3.Sub(p.Pos, q.Pos)) <= tol2 {
				return false
			}
		}
	}
	return true
}
