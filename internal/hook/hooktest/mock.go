// Package hooktest provides small fakes for testing code that depends on
// the hook package, without depending on a real Pipeline.
package hooktest

import (
	"context"

	"github.com/wiretap-proxy/wiretap/internal/hook"
)

// RecordingHandler returns a hook.HandlerFunc that appends the event type
// to *calls every time it runs, then returns action.
func RecordingHandler(calls *[]string, action hook.Action) hook.HandlerFunc {
	return func(_ context.Context, ev *hook.Event) (hook.Action, error) {
		*calls = append(*calls, ev.Type)
		return action, nil
	}
}

// ErrorHandler returns a hook.HandlerFunc that always fails with err.
func ErrorHandler(err error) hook.HandlerFunc {
	return func(_ context.Context, _ *hook.Event) (hook.Action, error) {
		return hook.Cancel, err
	}
}
