package mesh

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/notargets/gosweep/utils"
)

type PartitionMethod string

const (
	// BlockPartition assigns contiguous element index ranges
	BlockPartition PartitionMethod = "block"
	// SlabPartition orders elements by centroid along X before blocking,
	// giving the column decomposition used by KBA-style sweeps.
	SlabPartition PartitionMethod = "slab"
)

// PartitionConfig holds configuration for mesh partitioning
type PartitionConfig struct {
	NumPartitions int
	Method        PartitionMethod
}

func DefaultPartitionConfig(nparts int) *PartitionConfig {
	return &PartitionConfig{
		NumPartitions: nparts,
		Method:        SlabPartition,
	}
}

// MeshPartitioner assigns elements to locations and reports interface
// statistics. Load balancing beyond equal element counts is not attempted.
type MeshPartitioner struct {
	mesh   *Mesh
	config *PartitionConfig
	log    zerolog.Logger

	commCostModel func(faceVertices int) int
}

func NewMeshPartitioner(mesh *Mesh, config *PartitionConfig, log zerolog.Logger) *MeshPartitioner {
	return &MeshPartitioner{
		mesh:   mesh,
		config: config,
		log:    log,
		// One face dof per vertex
		commCostModel: func(faceVertices int) int { return faceVertices },
	}
}

// Partition fills mesh.EToP
func (mp *MeshPartitioner) Partition() (stats []PartitionStats, err error) {
	ne, np := mp.mesh.NumElements, mp.config.NumPartitions
	if np < 1 || np > ne {
		return nil, fmt.Errorf("cannot split %d elements into %d partitions", ne, np)
	}
	mp.log.Info().Int("elements", ne).Int("partitions", np).
		Str("method", string(mp.config.Method)).Msg("partitioning mesh")

	order := make([]int, ne)
	for k := range order {
		order[k] = k
	}
	switch mp.config.Method {
	case BlockPartition:
	case SlabPartition:
		if len(mp.mesh.centroids) != ne {
			return nil, fmt.Errorf("slab partitioning needs mesh geometry")
		}
		c := mp.mesh.centroids
		sort.SliceStable(order, func(i, j int) bool {
			return c[order[i]].X < c[order[j]].X
		})
	default:
		return nil, fmt.Errorf("unknown partition method %q", mp.config.Method)
	}

	pm := utils.NewPartitionMap(np, ne)
	mp.mesh.EToP = make([]int, ne)
	for i, k := range order {
		bn, _, _ := pm.GetBucket(i)
		mp.mesh.EToP[k] = bn
	}
	stats = mp.analyzePartition()
	return
}

// PartitionStats holds statistics for a single partition
type PartitionStats struct {
	ID           int
	NumElements  int
	NumNeighbors map[int]int // Neighbor partition -> shared faces
	CommVolume   int
}

func (mp *MeshPartitioner) analyzePartition() []PartitionStats {
	nparts := mp.config.NumPartitions
	partStats := make([]PartitionStats, nparts)
	for i := range partStats {
		partStats[i].ID = i
		partStats[i].NumNeighbors = make(map[int]int)
	}
	cutFaces := 0
	for elem := 0; elem < mp.mesh.NumElements; elem++ {
		elemPart := mp.mesh.EToP[elem]
		partStats[elemPart].NumElements++
		for faceIdx, neighbor := range mp.mesh.EToE[elem] {
			if neighbor < 0 || neighbor < elem { // Count each face once
				continue
			}
			neighborPart := mp.mesh.EToP[neighbor]
			if neighborPart == elemPart {
				continue
			}
			cutFaces++
			cost := mp.commCostModel(len(mp.mesh.Faces[mp.mesh.EToF[elem][faceIdx]].Vertices))
			partStats[elemPart].NumNeighbors[neighborPart]++
			partStats[neighborPart].NumNeighbors[elemPart]++
			partStats[elemPart].CommVolume += cost
			partStats[neighborPart].CommVolume += cost
		}
	}
	minLoad, maxLoad, avgLoad := math.MaxInt, 0, 0.
	for _, s := range partStats {
		avgLoad += float64(s.NumElements)
		minLoad = min(minLoad, s.NumElements)
		maxLoad = max(maxLoad, s.NumElements)
	}
	avgLoad /= float64(nparts)
	mp.log.Info().Int("cutFaces", cutFaces).Int("minLoad", minLoad).Int("maxLoad", maxLoad).
		Float64("imbalance", float64(maxLoad)/avgLoad-1).Msg("partition analysis")
	for _, s := range partStats {
		mp.log.Debug().Int("partition", s.ID).Int("elements", s.NumElements).
			Int("neighbors", len(s.NumNeighbors)).Int("commVolume", s.CommVolume).Msg("partition")
	}
	return partStats
}
