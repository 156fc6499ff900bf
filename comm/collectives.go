package comm

import (
	"context"
	"fmt"
)

// Tags below zero are reserved for collectives so they never collide with
// caller tags.
const (
	tagAllGather = -1
)

// AllGather sends data to every other rank and returns the contributions of all
// ranks indexed by rank. Every rank must call it the same number of times.
func AllGather(ctx context.Context, c Communicator, data []int) (all [][]int, err error) {
	var (
		size     = c.Size()
		me       = c.Rank()
		requests = make([]Request, 0, size-1)
	)
	for r := 0; r < size; r++ {
		if r == me {
			continue
		}
		var req Request
		if req, err = c.Isend(data, r, tagAllGather); err != nil {
			return nil, fmt.Errorf("allgather send to %d: %w", r, err)
		}
		requests = append(requests, req)
	}
	all = make([][]int, size)
	all[me] = append([]int{}, data...)
	for r := 0; r < size; r++ {
		if r == me {
			continue
		}
		var st Status
		if st, err = c.Probe(ctx, r, tagAllGather); err != nil {
			return nil, fmt.Errorf("allgather probe %d: %w", r, err)
		}
		all[r] = make([]int, st.Count)
		if err = c.Recv(ctx, all[r], r, tagAllGather); err != nil {
			return nil, fmt.Errorf("allgather receive from %d: %w", r, err)
		}
	}
	if err = WaitAll(ctx, requests); err != nil {
		return nil, err
	}
	return
}

func AllReduceMax(ctx context.Context, c Communicator, v int) (int, error) {
	all, err := AllGather(ctx, c, []int{v})
	if err != nil {
		return 0, err
	}
	max := v
	for _, a := range all {
		if a[0] > max {
			max = a[0]
		}
	}
	return max, nil
}
