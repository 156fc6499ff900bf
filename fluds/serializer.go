package fluds

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedBuffer = errors.New("malformed cell view buffer")
	ErrFaceNotFound    = errors.New("upstream face not found")
)

// CompactFaceView describes one face of a boundary cell. FaceID is the face's
// slot in the sender's outgoing store for the receiving location.
type CompactFaceView struct {
	FaceID   int
	Vertices []int
}

type CompactCellView struct {
	GlobalID int
	Faces    []CompactFaceView
}

/*
Serialize flattens views into the transfer format

	[numFaceDofs, numCells, (-gid-1, faceID, v0, v1, ...)...]

Every face group starts with its cell's marker; a marker equal to the previous
one continues the same cell. Cells without faces are not written, and
consecutive written views with the same GlobalID decode as one cell, so they
are counted once.
*/
func Serialize(views []CompactCellView, numFaceDofs int) (buf []int) {
	var (
		n        = 2
		numCells = 0
		last     = -1
	)
	for _, v := range views {
		if len(v.Faces) == 0 {
			continue
		}
		if numCells == 0 || v.GlobalID != last {
			numCells++
		}
		last = v.GlobalID
		for _, f := range v.Faces {
			n += 2 + len(f.Vertices)
		}
	}
	buf = make([]int, 0, n)
	buf = append(buf, numFaceDofs, numCells)
	for _, v := range views {
		marker := -v.GlobalID - 1
		for _, f := range v.Faces {
			buf = append(buf, marker, f.FaceID)
			buf = append(buf, f.Vertices...)
		}
	}
	return
}

// Deserialize inverts Serialize. Only the checks needed to avoid indexing out
// of range are made; the producer is trusted.
func Deserialize(buf []int) (views []CompactCellView, numFaceDofs int, err error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("%w: %d entries is shorter than the header", ErrMalformedBuffer, len(buf))
	}
	numFaceDofs = buf[0]
	numCells := buf[1]
	if numCells < 0 {
		return nil, 0, fmt.Errorf("%w: negative cell count %d", ErrMalformedBuffer, numCells)
	}
	views = make([]CompactCellView, 0, numCells)
	lastMarker := 0 // Markers are always negative
	for k := 2; k < len(buf); k++ {
		entry := buf[k]
		if entry < 0 {
			if k+1 >= len(buf) || buf[k+1] < 0 {
				return nil, 0, fmt.Errorf("%w: marker at %d has no face id", ErrMalformedBuffer, k)
			}
			if entry != lastMarker {
				views = append(views, CompactCellView{GlobalID: -entry - 1})
				lastMarker = entry
			}
			cell := &views[len(views)-1]
			cell.Faces = append(cell.Faces, CompactFaceView{FaceID: buf[k+1]})
			k++
			continue
		}
		if len(views) == 0 {
			return nil, 0, fmt.Errorf("%w: vertex at %d precedes any cell marker", ErrMalformedBuffer, k)
		}
		cell := &views[len(views)-1]
		face := &cell.Faces[len(cell.Faces)-1]
		face.Vertices = append(face.Vertices, entry)
	}
	if len(views) != numCells {
		return nil, 0, fmt.Errorf("%w: header declares %d cells, found %d",
			ErrMalformedBuffer, numCells, len(views))
	}
	return
}
