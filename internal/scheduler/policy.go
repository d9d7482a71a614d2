package scheduler

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
)

// Policy picks one job type from waiting. Implementations must return a key
// present in waiting, which is never empty.
type Policy interface {
	Name() string
	Select(waiting map[string]int, running map[string]int) string
}

// Random picks uniformly among waiting types.
type Random struct{}

func (Random) Name() string { return "random" }

func (Random) Select(waiting map[string]int, _ map[string]int) string {
	pick := rand.IntN(len(waiting))
	for jobType := range waiting {
		if pick == 0 {
			return jobType
		}
		pick--
	}
	return ""
}

// First picks the lexicographically smallest waiting type.
type First struct{}

func (First) Name() string { return "first" }

func (First) Select(waiting map[string]int, _ map[string]int) string {
	best := ""
	for jobType := range waiting {
		if best == "" || jobType < best {
			best = jobType
		}
	}
	return best
}

// Fair picks the waiting type with the fewest running jobs, breaking ties by
// name.
type Fair struct{}

func (Fair) Name() string { return "fair" }

func (Fair) Select(waiting map[string]int, running map[string]int) string {
	types := make([]string, 0, len(waiting))
	for jobType := range waiting {
		types = append(types, jobType)
	}
	sort.Slice(types, func(i, k int) bool {
		ri, rk := running[types[i]], running[types[k]]
		if ri != rk {
			return ri < rk
		}
		return types[i] < types[k]
	})
	return types[0]
}

// ParsePolicy returns the policy named name.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "random":
		return Random{}, nil
	case "first":
		return First{}, nil
	case "fair":
		return Fair{}, nil
	}
	return nil, fmt.Errorf("unknown scheduler policy %q", name)
}
