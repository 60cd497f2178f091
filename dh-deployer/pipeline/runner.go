package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/donatehub/donatehub/dh-deployer/deployments"
)

// Step is one deployment script.
type Step struct {
	Name string
	// Tags select the step. Dependencies are tags whose steps must run first.
	Tags         []string
	Dependencies []string
	Run          func(ctx context.Context, env *Env) error
}

// Runner orders registered steps by their dependencies.
type Runner struct {
	steps []Step
}

func NewRunner(steps ...Step) *Runner {
	return &Runner{steps: steps}
}

// Tags lists every tag known to the runner.
func (r *Runner) Tags() []string {
	set := make(map[string]struct{})
	for _, s := range r.steps {
		for _, t := range s.Tags {
			set[t] = struct{}{}
		}
	}
	tags := maps.Keys(set)
	slices.Sort(tags)
	return tags
}

func (r *Runner) tagged(tag string) []int {
	var out []int
	for i, s := range r.steps {
		if slices.Contains(s.Tags, tag) {
			out = append(out, i)
		}
	}
	return out
}

// Plan returns the steps to run for tags, dependencies first. No tags selects
// every step. Steps otherwise keep their registration order.
func (r *Runner) Plan(tags ...string) ([]Step, error) {
	var roots []int
	if len(tags) == 0 {
		for i := range r.steps {
			roots = append(roots, i)
		}
	} else {
		for _, tag := range tags {
			idx := r.tagged(tag)
			if len(idx) == 0 {
				return nil, fmt.Errorf("no deployment step has tag %q", tag)
			}
			roots = append(roots, idx...)
		}
		slices.Sort(roots)
		roots = slices.Compact(roots)
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(r.steps))
	var (
		plan  []Step
		stack []string
	)
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle: %s -> %s", strings.Join(stack, " -> "), r.steps[i].Name)
		}
		state[i] = visiting
		stack = append(stack, r.steps[i].Name)
		for _, dep := range r.steps[i].Dependencies {
			idx := r.tagged(dep)
			if len(idx) == 0 {
				return fmt.Errorf("step %s depends on unknown tag %q", r.steps[i].Name, dep)
			}
			for _, j := range idx {
				if j == i {
					continue
				}
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		plan = append(plan, r.steps[i])
		return nil
	}
	for _, i := range roots {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// Run executes the planned steps in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context, env *Env, tags ...string) error {
	plan, err := r.Plan(tags...)
	if err != nil {
		return err
	}
	for _, step := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		env.Log.Debug("running deployment step", "step", step.Name)
		if err := step.Run(ctx, env); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
	}
	return nil
}

// Fixture runs the steps for tags against a fresh in-memory record store and
// returns the environment holding the new deployments. Every call deploys anew.
func (r *Runner) Fixture(ctx context.Context, env *Env, tags ...string) (*Env, error) {
	fresh := env.WithStore(deployments.NewMemoryStore())
	if err := r.Run(ctx, fresh, tags...); err != nil {
		return nil, err
	}
	return fresh, nil
}
