package response

import "strings"

// Outcome is the result of one remediation step. Failures are data, not errors.
type Outcome struct {
	OK   bool
	Text string
}

// Ok records a step that succeeded.
func Ok(text string) Outcome { return Outcome{OK: true, Text: text} }

// Failed records a step that did not succeed.
func Failed(text string) Outcome { return Outcome{Text: text} }

// Result is everything one handler did for one incident.
type Result struct {
	Rule     string
	Outcomes []Outcome

	// Escalate means a human has to take over.
	Escalate bool
}

// Details joins the outcome texts into the single timeline entry body.
func (r Result) Details() string {
	texts := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		texts[i] = o.Text
	}
	return strings.Join(texts, ", ")
}

// Failed reports whether any step failed.
func (r Result) Failed() bool {
	for _, o := range r.Outcomes {
		if !o.OK {
			return true
		}
	}
	return false
}
