package plugin

import (
	"errors"
	"testing"

	"github.com/gorilla/mux"

	"github.com/sponsorlabs/gasrelay"
	"github.com/sponsorlabs/gasrelay/relay"
)

type testPlugin struct {
	name        string
	initErr     error
	initialized bool
	order       *[]string
}

func (p *testPlugin) Name() string          { return p.name }
func (p *testPlugin) APIPrefix() string     { return "/api/" + p.name }
func (p *testPlugin) OpenAPITags() []string { return []string{p.name} }

func (p *testPlugin) GasOperations() []gasrelay.OperationBudget {
	return []gasrelay.OperationBudget{
		{Operation: p.name + "-op", GasLimit: 100_000, FunctionTag: p.name + "()"},
	}
}

func (p *testPlugin) Initialize(engine *relay.Engine) error {
	p.initialized = true
	if p.order != nil {
		*p.order = append(*p.order, p.name)
	}
	return p.initErr
}

func (p *testPlugin) RegisterRoutes(router *mux.Router) {}

func TestRegistry_RegisterAndList(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&testPlugin{name: "alpha"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&testPlugin{name: "beta"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	names := r.ActivePlugins()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("ActivePlugins = %v, expected [alpha beta]", names)
	}

	ops := r.AllGasOperations()
	if len(ops) != 2 {
		t.Fatalf("Expected 2 operations, got %d", len(ops))
	}
	if _, ok := r.Budget("alpha-op"); !ok {
		t.Error("Budget lookup should find a declared operation")
	}
	if _, ok := r.Budget("missing"); ok {
		t.Error("Budget lookup should miss an undeclared operation")
	}
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&testPlugin{name: "alpha"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&testPlugin{name: "alpha"}); err == nil {
		t.Fatal("Duplicate plugin name must be rejected")
	}
}

func TestRegistry_InitializeOrderAndFailure(t *testing.T) {
	var order []string
	first := &testPlugin{name: "first", order: &order}
	failing := &testPlugin{name: "failing", order: &order, initErr: errors.New("boom")}
	last := &testPlugin{name: "last", order: &order}

	r := NewRegistry()
	for _, p := range []*testPlugin{first, failing, last} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	err := r.Initialize(nil)
	if err == nil {
		t.Fatal("Initialize must propagate a plugin failure")
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "failing" {
		t.Errorf("Initialization order %v, expected [first failing]", order)
	}
	if last.initialized {
		t.Error("Plugins after a failure must not be initialized")
	}
}
