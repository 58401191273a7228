package domain

import "testing"

func TestDomainValid(t *testing.T) {
	cases := []struct {
		d     Domain
		valid bool
	}{
		{Commonsense, true},
		{Medical, true},
		{Law, true},
		{Math, true},
		{Domain("astrology"), false},
		{Domain(""), false},
	}

	for _, tc := range cases {
		if got := tc.d.Valid(); got != tc.valid {
			t.Errorf("Domain(%q).Valid() = %v, want %v", tc.d, got, tc.valid)
		}
	}
}

func TestTaskDAGByID(t *testing.T) {
	dag := TaskDAG{
		Tasks: []SubTask{
			{ID: "task1", Domain: Math, Content: "compute"},
			{ID: "task2", Domain: Law, Content: "summarize", Dependencies: []string{"task1"}},
		},
	}

	t.Run("found", func(t *testing.T) {
		task, ok := dag.ByID("task2")
		if !ok {
			t.Fatal("expected task2 to be found")
		}
		if task.Domain != Law {
			t.Errorf("expected domain law, got %s", task.Domain)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, ok := dag.ByID("task99")
		if ok {
			t.Error("expected task99 to be absent")
		}
	})
}

func TestFallbackDAG(t *testing.T) {
	dag := FallbackDAG("what is the capital of France?")

	if len(dag.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(dag.Tasks))
	}

	task := dag.Tasks[0]
	if task.ID != "task1" {
		t.Errorf("expected id task1, got %s", task.ID)
	}
	if task.Domain != Commonsense {
		t.Errorf("expected commonsense domain, got %s", task.Domain)
	}
	if len(task.Dependencies) != 0 {
		t.Errorf("expected no dependencies, got %v", task.Dependencies)
	}
}

func TestRunState(t *testing.T) {
	state := NewRunState("run-1", "summarize this contract", 3)

	if state.ExhaustedRetries() {
		t.Error("fresh run state should not be exhausted")
	}

	state.Iteration = 3
	if !state.ExhaustedRetries() {
		t.Error("expected run state to be exhausted at max iterations")
	}

	if state.Results == nil {
		t.Error("expected Results map to be initialized")
	}
}
