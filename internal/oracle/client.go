// Package oracle talks to the external judgment service that decides whether
// a filtered message should still be sent. The engine treats every error
// returned from here as a negative verdict, so implementations only need to
// report faithfully, never to fail open.
package oracle

import "context"

// Client issues one judgment call: given the candidate message text and a
// snapshot of recent conversation history, it returns the service's raw
// verdict text. Interpreting the verdict is the caller's job.
type Client interface {
	Judge(ctx context.Context, candidate string, history []string) (string, error)
}
