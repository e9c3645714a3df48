package staleness

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/graph"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// Decision is the outcome of evaluating one task.
type Decision struct {
	Stale bool
	// Reason is a short human-readable explanation, shown in logs and plans.
	Reason string
}

func stale(format string, args ...any) Decision {
	return Decision{Stale: true, Reason: fmt.Sprintf(format, args...)}
}

var upToDate = Decision{Reason: "up to date"}

// RanFunc reports whether an upstream task's action ran during the current
// invocation.
type RanFunc func(id string) bool

// Evaluator applies the configured staleness policy.
type Evaluator struct {
	mode  config.StalenessMode
	index Index
	store *Store
	now   func() time.Time
}

// NewEvaluator returns an Evaluator. The store may be nil, in which case no
// history is available and every check that needs it reports stale.
func NewEvaluator(mode config.StalenessMode, index Index, store *Store) *Evaluator {
	if index == nil {
		index = FSIndex{}
	}
	if mode == "" {
		mode = config.StalenessMtime
	}
	return &Evaluator{mode: mode, index: index, store: store, now: time.Now}
}

// Mode returns the policy in use.
func (e *Evaluator) Mode() config.StalenessMode { return e.mode }

// Evaluate decides whether t must run. It reads the filesystem at call time,
// so it must be called only after every upstream of t has settled.
func (e *Evaluator) Evaluate(t *task.Task, g *graph.Graph, ran RanFunc) (Decision, error) {
	outputs, err := e.stat(t.Outputs)
	if err != nil {
		return Decision{}, err
	}
	for _, a := range outputs {
		if !a.Exists {
			return stale("output %s is missing", a.Path), nil
		}
	}

	if e.mode == config.StalenessChecksum {
		return e.evaluateChecksum(t, ran)
	}
	return e.evaluateMtime(t, g, outputs, ran)
}

func (e *Evaluator) evaluateMtime(t *task.Task, g *graph.Graph, outputs []Artifact, ran RanFunc) (Decision, error) {
	deps, err := g.Dependencies(t.ID)
	if err != nil {
		return Decision{}, err
	}
	for _, dep := range deps {
		if ran != nil && ran(dep) {
			return stale("upstream %s ran", dep), nil
		}
	}

	inputs, err := e.stat(t.Inputs)
	if err != nil {
		return Decision{}, err
	}
	var newest Artifact
	for _, a := range inputs {
		if !a.Exists {
			return stale("input %s is missing", a.Path), nil
		}
		if a.ModTime.After(newest.ModTime) {
			newest = a
		}
	}

	if len(outputs) == 0 {
		if !t.Cacheable {
			return stale("no declared outputs"), nil
		}
		rec, ok := e.record(t.ID)
		if !ok {
			return stale("no record of a previous run"), nil
		}
		if newest.Exists && newest.ModTime.After(rec.LastRun) {
			return stale("input %s changed since the last run", newest.Path), nil
		}
		return upToDate, nil
	}

	oldest := outputs[0]
	for _, a := range outputs[1:] {
		if a.ModTime.Before(oldest.ModTime) {
			oldest = a
		}
	}
	if newest.Exists && newest.ModTime.After(oldest.ModTime) {
		return stale("input %s is newer than output %s", newest.Path, oldest.Path), nil
	}
	return upToDate, nil
}

func (e *Evaluator) evaluateChecksum(t *task.Task, ran RanFunc) (Decision, error) {
	// Artifact links are covered by the input fingerprints; only explicit
	// ordering edges propagate a run.
	for _, dep := range t.DependsOn {
		if ran != nil && ran(dep) {
			return stale("upstream %s ran", dep), nil
		}
	}

	if !t.HasOutputs() && !t.Cacheable {
		return stale("no declared outputs"), nil
	}
	rec, ok := e.record(t.ID)
	if !ok {
		return stale("no record of a previous run"), nil
	}

	if d, err := e.compare("input", t.Inputs, rec.Inputs); err != nil || d.Stale {
		return d, err
	}
	if d, err := e.compare("output", t.Outputs, rec.Outputs); err != nil || d.Stale {
		return d, err
	}
	return upToDate, nil
}

func (e *Evaluator) compare(kind string, paths []string, recorded map[string]string) (Decision, error) {
	if len(paths) != len(recorded) {
		return stale("declared %ss changed", kind), nil
	}
	for _, p := range paths {
		want, ok := recorded[p]
		if !ok {
			return stale("%s %s has no recorded fingerprint", kind, p), nil
		}
		got, err := e.index.Fingerprint(p)
		if errors.Is(err, fs.ErrNotExist) {
			return stale("%s %s is missing", kind, p), nil
		}
		if err != nil {
			return Decision{}, err
		}
		if got != want {
			return stale("%s %s changed", kind, p), nil
		}
	}
	return Decision{}, nil
}

// Record remembers a successful run of t. In checksum mode it fingerprints
// every declared artifact that exists.
func (e *Evaluator) Record(t *task.Task) error {
	if e.store == nil {
		return nil
	}
	rec := Record{LastRun: e.now()}
	if e.mode == config.StalenessChecksum {
		var err error
		if rec.Inputs, err = e.fingerprints(t.Inputs); err != nil {
			return err
		}
		if rec.Outputs, err = e.fingerprints(t.Outputs); err != nil {
			return err
		}
	}
	e.store.Put(t.ID, rec)
	return nil
}

// Forget drops the history of a task so the next evaluation finds it stale.
func (e *Evaluator) Forget(id string) {
	if e.store != nil {
		e.store.Delete(id)
	}
}

// Save persists the history, if there is any.
func (e *Evaluator) Save() error {
	if e.store == nil {
		return nil
	}
	return e.store.Save()
}

func (e *Evaluator) record(id string) (Record, bool) {
	if e.store == nil {
		return Record{}, false
	}
	return e.store.Get(id)
}

func (e *Evaluator) stat(paths []string) ([]Artifact, error) {
	out := make([]Artifact, 0, len(paths))
	for _, p := range paths {
		a, err := e.index.Stat(p)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (e *Evaluator) fingerprints(paths []string) (map[string]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(paths))
	for _, p := range paths {
		sum, err := e.index.Fingerprint(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		m[p] = sum
	}
	return m, nil
}
