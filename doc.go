/*
Package cvmesh generates conformal Voronoi polyhedral meshes.

The mesh is the Voronoi dual of a 3D Delaunay tessellation. Points are
seeded in the region bounded by a set of surfaces, then moved, inserted and
removed over a number of motion iterations until the spacing of the points
follows a target cell size and alignment field. Every surface is resolved
by pairs of points placed symmetrically across it, so that the Voronoi
faces between the members of a pair lie on the surface.

A run is split among ranks by a recursive bisection of the bounding box.
Each rank owns the points in its region and holds read-only copies of the
points of its neighbours close enough to affect its cells:

	cfg, err := cvmesh.LoadFile("box.yaml")
	if err != nil {
		log.Fatal(err)
	}
	results, err := cvmesh.RunWorld(ctx, cfg, 4, slog.Default())

The result of a rank holds its cells as a face-based polyhedral mesh, with
faces ordered internal first and then by boundary patch, and a report of
the anomalies met while meshing.
*/
package cvmesh
