package wire

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	_ "github.com/tliron/commonlog/simple"

	"github.com/weirworks/weir/codec"
	"github.com/weirworks/weir/scope"
)

// exoticEnv is an environment kind the default registry does not know.
type exoticEnv struct {
	vars map[string]any
}

func newExoticEnv() *exoticEnv {
	return &exoticEnv{vars: make(map[string]any)}
}

func (e *exoticEnv) Kind() string { return "exotic" }

func (e *exoticEnv) Lookup(name string) (any, bool) {
	v, ok := e.vars[name]
	return v, ok
}

func (e *exoticEnv) Bind(name string, value any) {
	e.vars[name] = value
}

func (e *exoticEnv) Variables() map[string]any {
	out := make(map[string]any, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

func TestDehydrateRehydrate_RoundTrip(t *testing.T) {
	env := scope.NewMemoryEnv()
	env.Bind("region", "eu-west")
	env.Bind("input", codec.FileRef{Path: "/staging/in.dat"})
	env.Bind("events", scope.NewChannel(1))

	m := scope.NewFromTask("transform", env, false,
		[]string{"tmp"},
		[]string{"tmp", "region", "input", "events"})
	m.Put("tmp", "/tmp/work")
	m.Put("count", int64(3))

	data, err := Dehydrate(m)
	if err != nil {
		t.Fatalf("Dehydrate: %v", err)
	}

	got, err := Rehydrate(data, nil)
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}

	if got.Name() != "transform" {
		t.Errorf("expected name 'transform', got %q", got.Name())
	}
	if got.DeferUndefined() {
		t.Error("expected deferUndefined false")
	}

	wantEntries := []scope.Entry{
		{Name: "tmp", Value: "/tmp/work"},
		{Name: "count", Value: int64(3)},
	}
	if !reflect.DeepEqual(got.Entries(), wantEntries) {
		t.Errorf("entries = %v, want %v", got.Entries(), wantEntries)
	}

	genv := got.Environment()
	if genv == nil || genv.Kind() != scope.KindMemory {
		t.Fatalf("expected fresh memory environment, got %v", genv)
	}
	if v, ok := genv.Lookup("region"); !ok || v != "eu-west" {
		t.Errorf("expected snapshot binding region='eu-west', got %v (ok=%v)", v, ok)
	}
	ref, ok := genv.Lookup("input")
	if !ok {
		t.Fatal("expected snapshot binding for input")
	}
	fr, ok := ref.(codec.FileRef)
	if !ok {
		t.Fatalf("expected FileRef for input, got %T", ref)
	}
	if fr.Path != "/staging/in.dat" {
		t.Errorf("expected path '/staging/in.dat', got %q", fr.Path)
	}

	// The live channel never crosses the wire.
	if _, ok := genv.Lookup("events"); ok {
		t.Error("expected channel binding to be filtered from the snapshot")
	}
}

func TestDehydrate_NonEncodableLocal(t *testing.T) {
	m := scope.NewFromTask("bad", nil, false, nil, nil)
	m.Put("pipe", scope.NewChannel(0))

	if _, err := Dehydrate(m); err == nil {
		t.Fatal("expected encode error for channel in local mapping")
	}
}

func TestRehydrate_NoEnvironment(t *testing.T) {
	m := scope.NewFromTask("bare", nil, false, nil, nil)
	m.Put("only", "local")

	data, err := Dehydrate(m)
	if err != nil {
		t.Fatalf("Dehydrate: %v", err)
	}
	got, err := Rehydrate(data, nil)
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if got.Environment() != nil {
		t.Errorf("expected nil environment, got %v", got.Environment())
	}
	if v, _ := got.Get("only"); v != "local" {
		t.Errorf("expected 'local', got %v", v)
	}
}

func TestRehydrate_PreservesPolicy(t *testing.T) {
	m := scope.NewFromTask("lazy", nil, true, nil, nil)

	data, err := Dehydrate(m)
	if err != nil {
		t.Fatalf("Dehydrate: %v", err)
	}
	got, err := Rehydrate(data, nil)
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if !got.DeferUndefined() {
		t.Fatal("expected deferUndefined to survive the wire")
	}
	if r := got.Resolve("ghost"); r.State != scope.ResolutionDeferred || r.Value != "$ghost" {
		t.Errorf("expected deferred '$ghost', got state %d value %v", r.State, r.Value)
	}
}

func TestRehydrate_CorruptData(t *testing.T) {
	env := scope.NewMemoryEnv()
	env.Bind("a", int64(1))
	m := scope.NewFromTask("ok", env, false, nil, []string{"a"})
	m.Put("b", int64(2))

	data, err := Dehydrate(m)
	if err != nil {
		t.Fatalf("Dehydrate: %v", err)
	}

	for _, cut := range []int{0, 1, len(data) / 2, len(data) - 1} {
		if _, err := Rehydrate(data[:cut], nil); !errors.Is(err, ErrDecode) {
			t.Errorf("truncation at %d: expected ErrDecode, got %v", cut, err)
		}
	}
}

func TestRehydrate_UnknownEnvironmentKind(t *testing.T) {
	env := newExoticEnv()
	env.Bind("k", "v")
	m := scope.NewFromTask("alien", env, false, nil, []string{"k"})

	data, err := Dehydrate(m)
	if err != nil {
		t.Fatalf("Dehydrate: %v", err)
	}

	_, err = Rehydrate(data, nil)
	if !errors.Is(err, ErrEnvironment) {
		t.Fatalf("expected ErrEnvironment for unknown kind, got %v", err)
	}
}

func TestRehydrate_LoaderOverride(t *testing.T) {
	env := newExoticEnv()
	env.Bind("k", "v")
	m := scope.NewFromTask("alien", env, false, nil, []string{"k"})

	data, err := Dehydrate(m)
	if err != nil {
		t.Fatalf("Dehydrate: %v", err)
	}

	loader := scope.NewRegistry()
	loader.Register("exotic", func() scope.Environment { return newExoticEnv() })

	got, err := Rehydrate(data, loader)
	if err != nil {
		t.Fatalf("Rehydrate with loader: %v", err)
	}
	if got.Environment().Kind() != "exotic" {
		t.Errorf("expected exotic environment, got %q", got.Environment().Kind())
	}
	if v, ok := got.Environment().Lookup("k"); !ok || v != "v" {
		t.Errorf("expected snapshot binding k='v', got %v (ok=%v)", v, ok)
	}

	// The override must not outlive the call.
	if _, err := Rehydrate(data, nil); !errors.Is(err, ErrEnvironment) {
		t.Errorf("expected default registry after override, got %v", err)
	}
}

func TestRehydrate_OverrideRestoredOnFailure(t *testing.T) {
	env := scope.NewMemoryEnv()
	env.Bind("a", int64(1))
	m := scope.NewFromTask("ok", env, false, nil, []string{"a"})

	data, err := Dehydrate(m)
	if err != nil {
		t.Fatalf("Dehydrate: %v", err)
	}

	// A loader without the memory kind makes this record fail.
	empty := scope.NewRegistry()
	if _, err := Rehydrate(data, empty); !errors.Is(err, ErrEnvironment) {
		t.Fatalf("expected ErrEnvironment with empty loader, got %v", err)
	}

	// The default registry must be back in force.
	if _, err := Rehydrate(data, nil); err != nil {
		t.Errorf("expected default registry restored after failed override, got %v", err)
	}
}

func TestRehydrate_ConcurrentOverridesIsolated(t *testing.T) {
	env := scope.NewMemoryEnv()
	env.Bind("a", int64(1))
	m := scope.NewFromTask("par", env, false, nil, []string{"a"})

	data, err := Dehydrate(m)
	if err != nil {
		t.Fatalf("Dehydrate: %v", err)
	}

	empty := scope.NewRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		useEmpty := i%2 == 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			var loader *scope.Registry
			if useEmpty {
				loader = empty
			}
			got, err := Rehydrate(data, loader)
			if useEmpty {
				if !errors.Is(err, ErrEnvironment) {
					errs <- err
				}
				return
			}
			if err != nil {
				errs <- err
				return
			}
			if got.Environment().Kind() != scope.KindMemory {
				errs <- errors.New("wrong environment kind under concurrency")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent rehydrate: %v", err)
	}
}
