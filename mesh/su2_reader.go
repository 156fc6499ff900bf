package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadSU2 reads an SU2 native format file
func ReadSU2(filename string) (*Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseSU2(file)
}

// su2Cells maps SU2 element types to cell types per dimension. Lower
// dimensional entities are skipped.
var su2Cells = map[int]map[int]ElementType{
	2: {5: Triangle, 9: Quad},
	3: {10: Tet, 12: Hex, 13: Prism, 14: Pyramid},
}

var su2NumNodes = map[ElementType]int{
	Triangle: 3, Quad: 4, Tet: 4, Hex: 8, Prism: 6, Pyramid: 5,
}

func headerInt(line, key string) (n int, err error) {
	if n, err = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, key))); err != nil {
		err = fmt.Errorf("bad %s line %q: %w", key, line, err)
	}
	return
}

// ParseSU2 reads 2D or 3D SU2 meshes and builds connectivity and geometry.
func ParseSU2(r io.Reader) (mesh *Mesh, err error) {
	mesh = NewMesh()
	scanner := bufio.NewScanner(r)
	next := func() ([]string, bool) {
		if !scanner.Scan() {
			return nil, false
		}
		return strings.Fields(scanner.Text()), true
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "%") || line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "NDIME="):
			if mesh.Dimension, err = headerInt(line, "NDIME="); err != nil {
				return nil, err
			}
			if su2Cells[mesh.Dimension] == nil {
				return nil, fmt.Errorf("unsupported dimension NDIME=%d", mesh.Dimension)
			}

		case strings.HasPrefix(line, "NELEM="):
			var nelem int
			if nelem, err = headerInt(line, "NELEM="); err != nil {
				return nil, err
			}
			if mesh.Dimension == 0 {
				return nil, fmt.Errorf("NELEM before NDIME")
			}
			for i := 0; i < nelem; i++ {
				fields, ok := next()
				if !ok || len(fields) < 2 {
					return nil, fmt.Errorf("element %d: unexpected end of element list", i)
				}
				su2Type, _ := strconv.Atoi(fields[0])
				etype, valid := su2Cells[mesh.Dimension][su2Type]
				if !valid {
					continue
				}
				nn := su2NumNodes[etype]
				if len(fields) < nn+1 {
					return nil, fmt.Errorf("element %d: need %d nodes, have %d", i, nn, len(fields)-1)
				}
				verts := make([]int, nn)
				for j := range verts {
					if verts[j], err = strconv.Atoi(fields[1+j]); err != nil {
						return nil, fmt.Errorf("element %d: %w", i, err)
					}
				}
				mesh.Elements = append(mesh.Elements, verts)
				mesh.ElementTypes = append(mesh.ElementTypes, etype)
			}

		case strings.HasPrefix(line, "NPOIN="):
			var npoin int
			// NPOIN may carry a second count of domain points
			fields := strings.Fields(strings.TrimPrefix(line, "NPOIN="))
			if len(fields) == 0 {
				return nil, fmt.Errorf("bad NPOIN line %q", line)
			}
			if npoin, err = strconv.Atoi(fields[0]); err != nil {
				return nil, fmt.Errorf("bad NPOIN line %q: %w", line, err)
			}
			if mesh.Dimension == 0 {
				return nil, fmt.Errorf("NPOIN before NDIME")
			}
			mesh.Vertices = make([][]float64, npoin)
			for i := 0; i < npoin; i++ {
				fields, ok := next()
				if !ok || len(fields) < mesh.Dimension {
					return nil, fmt.Errorf("point %d: unexpected end of point list", i)
				}
				coords := make([]float64, mesh.Dimension)
				for j := range coords {
					if coords[j], err = strconv.ParseFloat(fields[j], 64); err != nil {
						return nil, fmt.Errorf("point %d: %w", i, err)
					}
				}
				ptID := i
				if len(fields) > mesh.Dimension {
					if id, perr := strconv.Atoi(fields[len(fields)-1]); perr == nil && id >= 0 && id < npoin {
						ptID = id
					}
				}
				mesh.Vertices[ptID] = coords
			}

		case strings.HasPrefix(line, "NMARK="):
			var nmark int
			if nmark, err = headerInt(line, "NMARK="); err != nil {
				return nil, err
			}
			for i := 0; i < nmark; i++ {
				fields, ok := next()
				if !ok || len(fields) == 0 || !strings.HasPrefix(fields[0], "MARKER_TAG=") {
					return nil, fmt.Errorf("marker %d: missing MARKER_TAG", i)
				}
				mesh.BoundaryTags[i] = strings.TrimSpace(strings.TrimPrefix(strings.Join(fields, " "), "MARKER_TAG="))
				if !scanner.Scan() {
					return nil, fmt.Errorf("marker %d: missing MARKER_ELEMS", i)
				}
				var nMarkerElems int
				if nMarkerElems, err = headerInt(strings.TrimSpace(scanner.Text()), "MARKER_ELEMS="); err != nil {
					return nil, err
				}
				// Boundary elements are not needed for sweep ordering
				for j := 0; j < nMarkerElems; j++ {
					scanner.Scan()
				}
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	for v, coords := range mesh.Vertices {
		if coords == nil {
			return nil, fmt.Errorf("point %d missing", v)
		}
	}
	mesh.BuildConnectivity()
	if err = mesh.BuildGeometry(); err != nil {
		return nil, err
	}
	return mesh, nil
}
