// Command cvmesh generates conformal Voronoi polyhedral meshes from a YAML
// configuration.
package main

func main() {
	Execute()
}
