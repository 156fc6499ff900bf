// Package fluds lays out the face storage a sweep reads and writes. Every
// local or cross-location face gets a slot; remote slots are aligned with the
// neighbor's layout through compact cell views exchanged once per topology.
package fluds

import (
	"fmt"

	"github.com/notargets/gosweep/mesh"
	"github.com/notargets/gosweep/spds"
)

type SlotKind uint8

const (
	// NoSlot marks boundary and parallel faces; upwind reads are zero
	NoSlot SlotKind = iota
	LocalSlot
	OutgoingSlot
	IncomingSlot
	DelayedIncomingSlot
)

func (k SlotKind) String() string {
	return [...]string{"None", "Local", "Outgoing", "Incoming", "DelayedIncoming"}[k]
}

type FaceSlot struct {
	Kind SlotKind
	// Index selects the store: deplocI for outgoing, prelocI for incoming,
	// delayed prelocI for delayed incoming
	Index   int
	Offset  int
	NumDofs int
	// VertexMap[v] is the upstream dof of this face's vertex v
	VertexMap []int
}

// Dof of face vertex v within the slot's store
func (s FaceSlot) Dof(v int) int {
	if s.VertexMap != nil {
		return s.Offset + s.VertexMap[v]
	}
	return s.Offset + v
}

type FLUDS struct {
	SPDS *spds.SPDS
	// Slots[localCell][face]
	Slots [][]FaceSlot

	NumLocalDofs       int
	DeplocIDofs        []int
	PrelocIDofs        []int
	DelayedPrelocIDofs []int

	deplocIDelayed []bool
	deplocIViews   [][]CompactCellView
	mapped         bool
}

type localFace struct {
	offset   int
	vertices []int
}

type localKey struct{ up, down int }

// New assigns slots for every non-parallel interior face and builds the
// outgoing cell views, one list per successor location in deplocI order.
func New(s *spds.SPDS) (f *FLUDS, err error) {
	var (
		part      = s.Partition
		succs     = s.AllLocationSuccessors()
		succIndex = indexOf(succs)
		faceCount = make([]int, len(succs))
		local     = make(map[localKey]localFace)
	)
	f = &FLUDS{
		SPDS:               s,
		Slots:              make([][]FaceSlot, len(part.Cells)),
		DeplocIDofs:        make([]int, len(succs)),
		PrelocIDofs:        make([]int, len(s.LocationDependencies())),
		DelayedPrelocIDofs: make([]int, len(s.DelayedLocationDependencies())),
		deplocIDelayed:     make([]bool, len(succs)),
		deplocIViews:       make([][]CompactCellView, len(succs)),
	}
	for d, loc := range succs {
		f.deplocIDelayed[d] = s.Successors[loc] == spds.Delayed
	}
	for _, cell := range part.Cells {
		f.Slots[cell.LocalID] = make([]FaceSlot, len(cell.Faces))
	}

	// Outgoing faces first so incoming local faces can find their upwind slot
	for _, c := range s.SPLS {
		cell := part.Cells[c]
		for fi, face := range cell.Faces {
			if s.FaceOrientation(c, fi) != spds.Outgoing {
				continue
			}
			nv := len(face.Vertices)
			switch face.Kind {
			case mesh.LocalFace:
				f.Slots[c][fi] = FaceSlot{Kind: LocalSlot, Offset: f.NumLocalDofs, NumDofs: nv}
				local[localKey{cell.GlobalID, face.Neighbor}] = localFace{f.NumLocalDofs, face.Vertices}
				f.NumLocalDofs += nv
			case mesh.RemoteFace:
				d, ok := succIndex[face.NeighborLocation]
				if !ok {
					return nil, fmt.Errorf("cell %d face %d: location %d is not a successor",
						cell.GlobalID, fi, face.NeighborLocation)
				}
				views := f.deplocIViews[d]
				if len(views) == 0 || views[len(views)-1].GlobalID != cell.GlobalID {
					views = append(views, CompactCellView{GlobalID: cell.GlobalID})
				}
				last := &views[len(views)-1]
				last.Faces = append(last.Faces, CompactFaceView{
					FaceID:   faceCount[d],
					Vertices: append([]int(nil), face.Vertices...),
				})
				f.deplocIViews[d] = views
				f.Slots[c][fi] = FaceSlot{Kind: OutgoingSlot, Index: d, Offset: f.DeplocIDofs[d], NumDofs: nv}
				f.DeplocIDofs[d] += nv
				faceCount[d]++
			}
		}
	}

	var (
		preds        = indexOf(s.LocationDependencies())
		delayedPreds = indexOf(s.DelayedLocationDependencies())
	)
	for _, c := range s.SPLS {
		cell := part.Cells[c]
		for fi, face := range cell.Faces {
			if s.FaceOrientation(c, fi) != spds.Incoming {
				continue
			}
			switch face.Kind {
			case mesh.LocalFace:
				up, ok := local[localKey{face.Neighbor, cell.GlobalID}]
				if !ok {
					return nil, fmt.Errorf("%w: local cell %d face %d from cell %d",
						ErrFaceNotFound, cell.GlobalID, fi, face.Neighbor)
				}
				var vm []int
				if vm, err = vertexMap(face.Vertices, up.vertices); err != nil {
					return nil, fmt.Errorf("cell %d face %d: %w", cell.GlobalID, fi, err)
				}
				f.Slots[c][fi] = FaceSlot{Kind: LocalSlot, Offset: up.offset, NumDofs: len(vm), VertexMap: vm}
			case mesh.RemoteFace:
				loc := face.NeighborLocation
				if p, ok := preds[loc]; ok {
					f.Slots[c][fi] = FaceSlot{Kind: IncomingSlot, Index: p, NumDofs: len(face.Vertices)}
				} else if p, ok = delayedPreds[loc]; ok {
					f.Slots[c][fi] = FaceSlot{Kind: DelayedIncomingSlot, Index: p, NumDofs: len(face.Vertices)}
				} else {
					return nil, fmt.Errorf("cell %d face %d: location %d is not a predecessor",
						cell.GlobalID, fi, loc)
				}
			}
		}
	}
	return
}

func indexOf(locs []int) map[int]int {
	m := make(map[int]int, len(locs))
	for i, loc := range locs {
		m[loc] = i
	}
	return m
}

// vertexMap returns, for each vertex of mine, its position in theirs
func vertexMap(mine, theirs []int) (vm []int, err error) {
	if len(mine) != len(theirs) {
		return nil, fmt.Errorf("%w: %d vertices upstream, %d here", ErrFaceNotFound, len(theirs), len(mine))
	}
	vm = make([]int, len(mine))
	for i, v := range mine {
		vm[i] = -1
		for j, w := range theirs {
			if v == w {
				vm[i] = j
				break
			}
		}
		if vm[i] < 0 {
			return nil, fmt.Errorf("%w: vertex %d missing upstream", ErrFaceNotFound, v)
		}
	}
	return
}

func (f *FLUDS) NumSuccessors() int { return len(f.deplocIDelayed) }

// IsDelayedSuccessor reports whether deplocI is a delayed successor.
func (f *FLUDS) IsDelayedSuccessor(deplocI int) bool { return f.deplocIDelayed[deplocI] }

// OutgoingViews are the cell views for successor deplocI. They are nil after
// ReleaseViews.
func (f *FLUDS) OutgoingViews(deplocI int) []CompactCellView {
	if f.deplocIViews == nil {
		return nil
	}
	return f.deplocIViews[deplocI]
}

func (f *FLUDS) ReleaseViews() { f.deplocIViews = nil }

// Mapped reports whether MapIncoming has resolved the remote slots.
func (f *FLUDS) Mapped() bool { return f.mapped }

type ReceivedViews struct {
	Views       []CompactCellView
	NumFaceDofs int
}

type upstream struct {
	cells   map[int]*CompactCellView
	offsets map[int]int
}

func newUpstream(r ReceivedViews) (u upstream, err error) {
	u = upstream{cells: make(map[int]*CompactCellView), offsets: make(map[int]int)}
	dofs := 0
	for i := range r.Views {
		v := &r.Views[i]
		u.cells[v.GlobalID] = v
		for _, face := range v.Faces {
			u.offsets[face.FaceID] = dofs
			dofs += len(face.Vertices)
		}
	}
	if dofs != r.NumFaceDofs {
		return u, fmt.Errorf("%w: views carry %d face dofs, header says %d",
			ErrMalformedBuffer, dofs, r.NumFaceDofs)
	}
	return
}

// MapIncoming resolves every remote incoming slot against the views received
// from the ordinary predecessors (prelocI order) and delayed predecessors
// (delayed prelocI order). The views are not retained.
func (f *FLUDS) MapIncoming(prelocI, delayedPrelocI []ReceivedViews) (err error) {
	if len(prelocI) != len(f.PrelocIDofs) || len(delayedPrelocI) != len(f.DelayedPrelocIDofs) {
		return fmt.Errorf("have views from %d+%d predecessors, need %d+%d",
			len(prelocI), len(delayedPrelocI), len(f.PrelocIDofs), len(f.DelayedPrelocIDofs))
	}
	var (
		ordinary = make([]upstream, len(prelocI))
		delayed  = make([]upstream, len(delayedPrelocI))
	)
	for p, r := range prelocI {
		if ordinary[p], err = newUpstream(r); err != nil {
			return fmt.Errorf("predecessor %d: %w", p, err)
		}
		f.PrelocIDofs[p] = r.NumFaceDofs
	}
	for p, r := range delayedPrelocI {
		if delayed[p], err = newUpstream(r); err != nil {
			return fmt.Errorf("delayed predecessor %d: %w", p, err)
		}
		f.DelayedPrelocIDofs[p] = r.NumFaceDofs
	}

	part := f.SPDS.Partition
	for _, c := range f.SPDS.SPLS {
		cell := part.Cells[c]
		for fi := range cell.Faces {
			slot := &f.Slots[c][fi]
			var up upstream
			switch slot.Kind {
			case IncomingSlot:
				up = ordinary[slot.Index]
			case DelayedIncomingSlot:
				up = delayed[slot.Index]
			default:
				continue
			}
			face := cell.Faces[fi]
			nbr, ok := up.cells[face.Neighbor]
			if !ok {
				return fmt.Errorf("%w: cell %d face %d, neighbor cell %d not sent by location %d",
					ErrFaceNotFound, cell.GlobalID, fi, face.Neighbor, face.NeighborLocation)
			}
			found := false
			for _, uf := range nbr.Faces {
				vm, verr := vertexMap(face.Vertices, uf.Vertices)
				if verr != nil {
					continue
				}
				slot.Offset = up.offsets[uf.FaceID]
				slot.VertexMap = vm
				found = true
				break
			}
			if !found {
				return fmt.Errorf("%w: cell %d face %d has no matching face on cell %d",
					ErrFaceNotFound, cell.GlobalID, fi, face.Neighbor)
			}
		}
	}
	f.mapped = true
	return
}
