package session

import (
	"errors"
	"time"

	"streetsketch/core-go/internal/document"
)

const maxProblems = 50

// Problem is one entry of the user-visible error list. Raw carries the
// unparsed input of a failed load so it can be downloaded for recovery.
type Problem struct {
	Topic   string    `json:"topic,omitempty"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Raw     string    `json:"raw,omitempty"`
	At      time.Time `json:"at"`
}

// Report records err in the error list.
func (c *Coordinator) Report(err error) {
	c.record("", err)
}

func (c *Coordinator) record(topic string, err error) {
	if err == nil {
		return
	}
	p := Problem{
		Topic:   topic,
		Kind:    "Error",
		Message: err.Error(),
		Raw:     string(document.RawData(err)),
		At:      c.now().UTC(),
	}
	var de *document.Error
	if errors.As(err, &de) {
		p.Kind = string(de.Kind)
	}

	c.problems = append(c.problems, p)
	if n := len(c.problems); n > maxProblems {
		c.problems = append([]Problem(nil), c.problems[n-maxProblems:]...)
	}
}

// Problems returns the recorded errors, oldest first.
func (c *Coordinator) Problems() []Problem {
	return append([]Problem(nil), c.problems...)
}

func (c *Coordinator) ClearProblems() {
	c.problems = nil
}
