package aiconflict

import (
	"context"
	"testing"

	"github.com/brettsam/offlinesync/internal/syncengine"
)

type fakeCompleter struct {
	text string
	err  error
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return f.text, f.err
}

func TestResolveReturnsMergedItemOnValidJSON(t *testing.T) {
	r := &Resolver{model: &fakeCompleter{text: `{"id":"1","title":"merged"}`}}

	conflict := &syncengine.ConflictError{ServerItem: syncengine.Item{"id": "1", "title": "server"}}
	merged, err := r.Resolve(context.Background(), conflict, syncengine.Item{"id": "1", "title": "local"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if merged["title"] != "merged" {
		t.Fatalf("merged = %v, want title merged", merged)
	}
}

func TestResolveFallsBackOnUnparsableResponse(t *testing.T) {
	r := &Resolver{model: &fakeCompleter{text: "not json"}}

	conflict := &syncengine.ConflictError{ServerItem: syncengine.Item{"id": "1"}}
	merged, err := r.Resolve(context.Background(), conflict, syncengine.Item{"id": "1"})
	if err != nil || merged != nil {
		t.Fatalf("Resolve = %v, %v, want nil, nil", merged, err)
	}
}

func TestResolveFallsBackOnNullResponse(t *testing.T) {
	r := &Resolver{model: &fakeCompleter{text: "null"}}

	conflict := &syncengine.ConflictError{ServerItem: syncengine.Item{"id": "1"}}
	merged, err := r.Resolve(context.Background(), conflict, syncengine.Item{"id": "1"})
	if err != nil || merged != nil {
		t.Fatalf("Resolve = %v, %v, want nil, nil", merged, err)
	}
}

func TestResolveFallsBackOnModelError(t *testing.T) {
	r := &Resolver{model: &fakeCompleter{err: context.DeadlineExceeded}}

	conflict := &syncengine.ConflictError{ServerItem: syncengine.Item{"id": "1"}}
	merged, err := r.Resolve(context.Background(), conflict, syncengine.Item{"id": "1"})
	if err != nil || merged != nil {
		t.Fatalf("Resolve = %v, %v, want nil, nil", merged, err)
	}
}

func TestAsResolverAdaptsToConflictResolverType(t *testing.T) {
	r := &Resolver{model: &fakeCompleter{text: `{"id":"1"}`}}
	fn := r.AsResolver()
	if fn == nil {
		t.Fatal("expected a non-nil ConflictResolver")
	}
}
