package lifecycle

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// StepResult — результат одного шага многошаговой операции.
type StepResult struct {
	Name   string `json:"name"`
	Target string `json:"target,omitempty"`
	Err    error  `json:"-"`
}

// Report перечисляет шаги, выполненные операцией. Шаги применяются по порядку,
// первый неуспешный шаг прерывает операцию, уже применённые шаги не откатываются.
type Report struct {
	Operation Operation    `json:"operation"`
	Steps     []StepResult `json:"steps"`
}

// Applied возвращает успешно применённые шаги.
func (r Report) Applied() []StepResult {
	applied := make([]StepResult, 0, len(r.Steps))
	for _, s := range r.Steps {
		if s.Err == nil {
			applied = append(applied, s)
		}
	}
	return applied
}

// Failed возвращает шаг, на котором операция остановилась.
func (r Report) Failed() (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s, true
		}
	}
	return StepResult{}, false
}

// PartiallyApplied — операция прервалась, но часть записей уже сохранена.
func (r Report) PartiallyApplied() bool {
	_, failed := r.Failed()
	return failed && len(r.Applied()) > 0
}

// StepError возвращается, когда шаг многошаговой операции завершился ошибкой.
type StepError struct {
	Report Report
	Step   StepResult
}

func (e *StepError) Error() string {
	if e.Step.Target != "" {
		return fmt.Sprintf("%s: step %q (%s): %v", e.Report.Operation, e.Step.Name, e.Step.Target, e.Step.Err)
	}
	return fmt.Sprintf("%s: step %q: %v", e.Report.Operation, e.Step.Name, e.Step.Err)
}

func (e *StepError) Unwrap() error { return e.Step.Err }

type step struct {
	name   string
	target string
	run    func() error
}

// runSteps выполняет шаги последовательно и останавливается на первой ошибке.
func (e *Engine) runSteps(op Operation, steps []step) (Report, error) {
	report := Report{Operation: op, Steps: make([]StepResult, 0, len(steps))}

	for _, s := range steps {
		start := time.Now()
		err := s.run()
		e.metrics.RecordStepDuration(s.name, time.Since(start))

		report.Steps = append(report.Steps, StepResult{Name: s.name, Target: s.target, Err: err})
		if err == nil {
			continue
		}

		failed := report.Steps[len(report.Steps)-1]
		fields := log.Fields{
			"operation": op,
			"step":      s.name,
			"target":    s.target,
			"applied":   len(report.Steps) - 1,
		}
		if report.PartiallyApplied() {
			e.metrics.RecordPartiallyApplied(string(op))
			e.logger.WithError(err).WithFields(fields).Warn("operation aborted after partial apply")
		} else {
			e.logger.WithError(err).WithFields(fields).Debug("operation aborted")
		}
		return report, &StepError{Report: report, Step: failed}
	}

	return report, nil
}
