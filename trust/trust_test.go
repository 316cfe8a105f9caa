package trust

import (
	"testing"

	"xdao.co/trustreason/facts"
	"xdao.co/trustreason/intern"
)

func TestNewBuildsDefaultAndKeyTrustModels(t *testing.T) {
	in := intern.New()
	store := facts.NewStore(in)
	cfg, err := New(in, store, []string{"key1", "key2"}, 2, "output1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	defaultTuple, ok := store.TrustModels[cfg.Default]
	if !ok || defaultTuple.IsKey || defaultTuple.HasParent || defaultTuple.Threshold != 2 {
		t.Fatalf("default trust model = %+v, ok=%v, want threshold=2 is_key=false parent=none", defaultTuple, ok)
	}

	for _, name := range []string{"key1", "key2"} {
		tm := in.InternTM(name)
		tuple, ok := store.TrustModels[tm]
		if !ok || !tuple.IsKey || tuple.Threshold != 1 || !tuple.HasParent || tuple.Parent != cfg.Default {
			t.Fatalf("trust model for %q = %+v, ok=%v, want threshold=1 is_key=true parent=default", name, tuple, ok)
		}
	}
}

func TestNewRejectsEmptyKeys(t *testing.T) {
	in := intern.New()
	store := facts.NewStore(in)
	if _, err := New(in, store, nil, 1, "root"); err != ErrEmptyKeys {
		t.Fatalf("New() error = %v, want ErrEmptyKeys", err)
	}
}

func TestNewRejectsZeroThreshold(t *testing.T) {
	in := intern.New()
	store := facts.NewStore(in)
	if _, err := New(in, store, []string{"key1"}, 0, "root"); err != ErrZeroThreshold {
		t.Fatalf("New() error = %v, want ErrZeroThreshold", err)
	}
}

func TestNewRejectsThresholdAboveKeyCount(t *testing.T) {
	in := intern.New()
	store := facts.NewStore(in)
	if _, err := New(in, store, []string{"key1"}, 2, "root"); err != ErrThresholdTooHigh {
		t.Fatalf("New() error = %v, want ErrThresholdTooHigh", err)
	}
}

func TestAddCompositeGeneralizesHierarchy(t *testing.T) {
	in := intern.New()
	store := facts.NewStore(in)
	cfg, err := New(in, store, []string{"key1", "key2"}, 2, "root")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a, err := cfg.AddComposite(in, store, "A", 2, "super")
	if err != nil {
		t.Fatalf("AddComposite() error = %v", err)
	}
	tuple := store.TrustModels[a]
	if tuple.IsKey || tuple.Threshold != 2 || !tuple.HasParent {
		t.Fatalf("composite trust model = %+v, want threshold=2 is_key=false with parent", tuple)
	}
}
