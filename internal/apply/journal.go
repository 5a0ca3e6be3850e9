package apply

import "fmt"

// compensation undoes one executed step.
type compensation struct {
	desc string
	undo func() error
}

// group holds the compensations of one file.
type group struct {
	path  string
	steps []compensation
}

// journal records compensations per file. Every step pushes its undo
// before it runs, so a failed step is always covered.
type journal struct {
	groups []*group
}

func (j *journal) begin(path string) {
	j.groups = append(j.groups, &group{path: path})
}

func (j *journal) push(desc string, undo func() error) {
	g := j.groups[len(j.groups)-1]
	g.steps = append(g.steps, compensation{desc: desc, undo: undo})
}

// replay runs the compensations of g newest first and returns every
// failure. It keeps going after a failure.
func (g *group) replay() []error {
	var errs []error
	for i := len(g.steps) - 1; i >= 0; i-- {
		c := g.steps[i]
		if err := c.undo(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.desc, err))
		}
	}
	return errs
}

// last returns the newest group.
func (j *journal) last() *group {
	if len(j.groups) == 0 {
		return nil
	}
	return j.groups[len(j.groups)-1]
}

// earlier returns every group before the newest one, newest first.
func (j *journal) earlier() []*group {
	if len(j.groups) < 2 {
		return nil
	}
	out := make([]*group, 0, len(j.groups)-1)
	for i := len(j.groups) - 2; i >= 0; i-- {
		out = append(out, j.groups[i])
	}
	return out
}
