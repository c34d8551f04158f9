package scenario

import (
	"fmt"
	"math/rand"

	"github.com/studiowebux/cartload/internal/types"
)

// Default task weights (create:add:get = 3:4:3)
const (
	DefaultCreateWeight = 3
	DefaultAddWeight    = 4
	DefaultGetWeight    = 3
)

// Task pairs an operation with its relative weight
type Task struct {
	Operation types.Operation
	Weight    int
}

// DefaultTasks returns the standard 3:4:3 mix
func DefaultTasks() []Task {
	return []Task{
		{Operation: types.OpCreateCart, Weight: DefaultCreateWeight},
		{Operation: types.OpAddItems, Weight: DefaultAddWeight},
		{Operation: types.OpGetCart, Weight: DefaultGetWeight},
	}
}

// Distribution is a discrete distribution over a fixed set of operations
type Distribution struct {
	tasks      []Task
	cumulative []int
	total      int
}

// NewDistribution builds a distribution. Zero weights disable a task;
// negative weights, duplicates and an all-zero mix are rejected.
func NewDistribution(tasks []Task) (*Distribution, error) {
	d := &Distribution{}
	seen := make(map[types.Operation]bool, len(tasks))

	for _, task := range tasks {
		if task.Weight < 0 {
			return nil, fmt.Errorf("weight for %s cannot be negative", task.Operation)
		}
		if seen[task.Operation] {
			return nil, fmt.Errorf("duplicate task %s", task.Operation)
		}
		seen[task.Operation] = true
		if task.Weight == 0 {
			continue
		}
		d.total += task.Weight
		d.tasks = append(d.tasks, task)
		d.cumulative = append(d.cumulative, d.total)
	}

	if d.total == 0 {
		return nil, fmt.Errorf("at least one task must have a positive weight")
	}
	return d, nil
}

// Pick draws an operation according to the weights
func (d *Distribution) Pick(r *rand.Rand) types.Operation {
	n := r.Intn(d.total)
	for i, upper := range d.cumulative {
		if n < upper {
			return d.tasks[i].Operation
		}
	}
	return d.tasks[len(d.tasks)-1].Operation
}

// Probability returns the share of iterations that pick op
func (d *Distribution) Probability(op types.Operation) float64 {
	for _, task := range d.tasks {
		if task.Operation == op {
			return float64(task.Weight) / float64(d.total)
		}
	}
	return 0
}

// Tasks returns the enabled tasks in declaration order
func (d *Distribution) Tasks() []Task {
	out := make([]Task, len(d.tasks))
	copy(out, d.tasks)
	return out
}
