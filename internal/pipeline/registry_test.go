package pipeline

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestRegistryCreatesOneControllerPerSession(t *testing.T) {
	built := 0
	var attached []string
	factory := func(session string) *Controller {
		built++
		return NewController(uploadsTo("https://store/"+session), respondsWith(t, `{}`), zap.NewNop())
	}
	reg := NewRegistry(factory, zap.NewNop(), func(session string, c *Controller) {
		attached = append(attached, session)
	})
	defer reg.Close()

	alice, err := reg.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	again, _ := reg.Get("alice")
	bob, _ := reg.Get("bob")

	if alice != again {
		t.Fatal("expected the same controller for a repeated session")
	}
	if alice == bob {
		t.Fatal("expected distinct controllers per session")
	}
	if built != 2 || reg.Len() != 2 {
		t.Fatalf("expected 2 controllers, built %d, len %d", built, reg.Len())
	}
	if len(attached) != 2 || attached[0] != "alice" || attached[1] != "bob" {
		t.Fatalf("unexpected attach calls %v", attached)
	}
}

func TestRegistryCloseClosesControllers(t *testing.T) {
	reg := NewRegistry(func(string) *Controller {
		return NewController(uploadsTo("https://store/x"), respondsWith(t, `{}`), zap.NewNop())
	}, zap.NewNop())

	c, err := reg.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	reg.Close()

	if err := c.BeginUpload("/tmp/cat.jpg"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from closed controller, got %v", err)
	}
	if _, err := reg.Get("bob"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from closed registry, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}
