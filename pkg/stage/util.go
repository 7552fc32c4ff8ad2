package stage

import (
	"sort"

	"github.com/weftdb/weft/pkg/objects"
)

func sortedChildren(buffer map[objects.Step]*Tree) []Child {
	steps := make([]objects.Step, 0, len(buffer))
	for s := range buffer {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	out := make([]Child, len(steps))
	for i, s := range steps {
		out[i] = Child{Step: s, Tree: buffer[s]}
	}
	return out
}

func appendStep(path objects.Path, step objects.Step) objects.Path {
	out := make(objects.Path, len(path)+1)
	copy(out, path)
	out[len(path)] = step
	return out
}
