package fluds

// PsiStore holds the angular flux behind the face slots of one angle set. Each
// store is laid out [dof][angle][group].
type PsiStore struct {
	NumAngles, NumGroups int

	Local           []float64
	Outgoing        [][]float64 // By deplocI, nil when released
	Incoming        [][]float64 // By prelocI
	DelayedIncoming [][]float64 // By delayed prelocI
	// Lagged holds last sweep's outgoing psi for delayed successors
	Lagged [][]float64

	fluds *FLUDS
}

// NewPsiStore sizes the stores for f, which must already be mapped.
func NewPsiStore(f *FLUDS, numAngles, numGroups int) *PsiStore {
	if !f.Mapped() {
		panic("psi store needs mapped incoming faces")
	}
	p := &PsiStore{
		NumAngles:       numAngles,
		NumGroups:       numGroups,
		Outgoing:        make([][]float64, f.NumSuccessors()),
		Incoming:        make([][]float64, len(f.PrelocIDofs)),
		DelayedIncoming: make([][]float64, len(f.DelayedPrelocIDofs)),
		Lagged:          make([][]float64, f.NumSuccessors()),
		fluds:           f,
	}
	p.Local = p.alloc(f.NumLocalDofs)
	for d := range p.Lagged {
		if f.IsDelayedSuccessor(d) {
			p.Lagged[d] = p.alloc(f.DeplocIDofs[d])
		}
	}
	return p
}

func (p *PsiStore) alloc(dofs int) []float64 {
	return make([]float64, dofs*p.NumAngles*p.NumGroups)
}

func (p *PsiStore) index(dof, angle, group int) int {
	return (dof*p.NumAngles+angle)*p.NumGroups + group
}

// Size in values of the outgoing store for deplocI
func (p *PsiStore) OutgoingSize(deplocI int) int {
	return p.fluds.DeplocIDofs[deplocI] * p.NumAngles * p.NumGroups
}

func (p *PsiStore) IncomingSize(prelocI int) int {
	return p.fluds.PrelocIDofs[prelocI] * p.NumAngles * p.NumGroups
}

func (p *PsiStore) DelayedIncomingSize(prelocI int) int {
	return p.fluds.DelayedPrelocIDofs[prelocI] * p.NumAngles * p.NumGroups
}

func (p *PsiStore) AllocateOutgoing() {
	for d := range p.Outgoing {
		if p.Outgoing[d] == nil {
			p.Outgoing[d] = p.alloc(p.fluds.DeplocIDofs[d])
		}
	}
}

func (p *PsiStore) ReleaseOutgoing() {
	for d := range p.Outgoing {
		p.Outgoing[d] = nil
	}
}

// IncomingBuffer returns the store for prelocI, allocating it if released.
func (p *PsiStore) IncomingBuffer(prelocI int) []float64 {
	if p.Incoming[prelocI] == nil {
		p.Incoming[prelocI] = make([]float64, p.IncomingSize(prelocI))
	}
	return p.Incoming[prelocI]
}

func (p *PsiStore) DelayedIncomingBuffer(prelocI int) []float64 {
	if p.DelayedIncoming[prelocI] == nil {
		p.DelayedIncoming[prelocI] = make([]float64, p.DelayedIncomingSize(prelocI))
	}
	return p.DelayedIncoming[prelocI]
}

// ReleaseIncoming drops the received psi once every local cell has executed.
func (p *PsiStore) ReleaseIncoming() {
	for i := range p.Incoming {
		p.Incoming[i] = nil
	}
	for i := range p.DelayedIncoming {
		p.DelayedIncoming[i] = nil
	}
}

// SaveLagged copies the outgoing psi of every delayed successor into Lagged.
func (p *PsiStore) SaveLagged() {
	for d, lag := range p.Lagged {
		if lag != nil && p.Outgoing[d] != nil {
			copy(lag, p.Outgoing[d])
		}
	}
}

// Upwind reads psi for vertex v of a face through its slot.
func (p *PsiStore) Upwind(slot FaceSlot, v, angle, group int) float64 {
	var store []float64
	switch slot.Kind {
	case LocalSlot:
		store = p.Local
	case IncomingSlot:
		store = p.Incoming[slot.Index]
	case DelayedIncomingSlot:
		store = p.DelayedIncoming[slot.Index]
	default:
		return 0
	}
	return store[p.index(slot.Dof(v), angle, group)]
}

func (p *PsiStore) SetDownwind(slot FaceSlot, v, angle, group int, psi float64) {
	var store []float64
	switch slot.Kind {
	case LocalSlot:
		store = p.Local
	case OutgoingSlot:
		store = p.Outgoing[slot.Index]
	default:
		return
	}
	store[p.index(slot.Dof(v), angle, group)] = psi
}
