// Package modelclient defines the out-of-scope model layer's interface
// to the gateway: given a question and a schema prompt, it returns a
// candidate SQL string for the pipeline to validate and rewrite.
package modelclient

import (
	"context"
	"fmt"
)

// Client generates a candidate SQL string for a natural-language
// question. Implementations own their own retries and prompt format;
// the pipeline treats the returned string as untrusted input.
type Client interface {
	GenerateCandidateSQL(ctx context.Context, question, schemaPrompt string) (string, error)
}

// Stub is a deterministic Client used in tests and local demos where no
// real model is wired up. It recognizes a handful of canned questions
// and otherwise returns a fixed fallback query.
type Stub struct {
	Responses map[string]string
	Fallback  string
}

// NewStub builds a Stub with the gateway's worked-example questions
// pre-populated, falling back to a simple users listing for anything
// else.
func NewStub() *Stub {
	return &Stub{
		Responses: map[string]string{
			"list users": `SELECT u.id, u.name FROM users u ORDER BY u.id`,
			"payments with user names": `SELECT u.id, p.amount FROM users u LEFT JOIN payments p ON p.userId = u.id ORDER BY u.id`,
		},
		Fallback: `SELECT u.id, u.name FROM users u ORDER BY u.id`,
	}
}

// GenerateCandidateSQL implements Client.
func (s *Stub) GenerateCandidateSQL(_ context.Context, question, _ string) (string, error) {
	if sql, ok := s.Responses[question]; ok {
		return sql, nil
	}
	if s.Fallback == "" {
		return "", fmt.Errorf("modelclient: no stubbed response for %q", question)
	}
	return s.Fallback, nil
}
