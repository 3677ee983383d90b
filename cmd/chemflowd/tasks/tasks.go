// Package tasks names the recurring loops chemflowd can run.
package tasks

import "fmt"

type Type string

const (
	// hand Ready jobs over to the per-recipe queues.
	Submit Type = "submit"

	// ingest result envelopes from the results queue.
	Parse Type = "parse"

	// create jobs from the creation rules file.
	Create Type = "create"
)

func (t Type) String() string {
	return string(t)
}

func AsType(s string) (Type, error) {
	switch s {
	case string(Submit):
		return Submit, nil
	case string(Parse):
		return Parse, nil
	case string(Create):
		return Create, nil
	default:
		return "", fmt.Errorf("'%s' is not a task type (submit|parse|create)", s)
	}
}
