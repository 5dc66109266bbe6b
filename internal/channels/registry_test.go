package channels

import (
	"reflect"
	"testing"

	"github.com/good-yellow-bee/beacon/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func testConfigs() []Config {
	return []Config{
		{Kind: "email", Settings: map[string]string{"host": "smtp.example.com"}},
		{Name: "ops-slack", Kind: "slack"},
		{Name: "oncall-sms", Kind: "sms", Priorities: []string{"CRITICAL"}},
		{Kind: "log", Enabled: boolPtr(false)},
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(testConfigs())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	email, ok := r.Get("email")
	if !ok {
		t.Fatal("expected channel named after its kind")
	}
	if email.Setting("host") != "smtp.example.com" {
		t.Errorf("host = %q, want %q", email.Setting("host"), "smtp.example.com")
	}

	chat, ok := r.Get("ops-slack")
	if !ok || chat.Kind != models.ChannelChat {
		t.Errorf("ops-slack kind = %q, want %q", chat.Kind, models.ChannelChat)
	}

	logCh, _ := r.Get("log")
	if logCh.Enabled {
		t.Error("log channel should be disabled")
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should return false")
	}
}

func TestNewRegistryErrors(t *testing.T) {
	tests := []struct {
		name    string
		configs []Config
	}{
		{"unknown kind", []Config{{Kind: "pager"}}},
		{"bad priority", []Config{{Kind: "sms", Priorities: []string{"urgent"}}}},
		{"duplicate name", []Config{{Kind: "email"}, {Name: "email", Kind: "webhook"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.configs); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestChannelAccepts(t *testing.T) {
	r, err := NewRegistry(testConfigs())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	sms, _ := r.Get("oncall-sms")
	if sms.Accepts(models.PriorityMedium) {
		t.Error("sms should not accept medium")
	}
	if !sms.Accepts(models.PriorityCritical) {
		t.Error("sms should accept critical")
	}

	email, _ := r.Get("email")
	for _, p := range models.Priorities {
		if !email.Accepts(p) {
			t.Errorf("email should accept %s", p)
		}
	}
}

func TestSetEnabledAndApply(t *testing.T) {
	r, err := NewRegistry(testConfigs())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	if !r.SetEnabled("log", true) {
		t.Fatal("SetEnabled(log) = false")
	}
	if ch, _ := r.Get("log"); !ch.Enabled {
		t.Error("log should be enabled")
	}
	if r.SetEnabled("missing", true) {
		t.Error("SetEnabled(missing) = true")
	}

	reloaded := []Config{
		{Kind: "email", Enabled: boolPtr(false)},
		{Name: "ops-slack", Kind: "chat"},
		{Name: "new-hook", Kind: "webhook"},
	}
	ignored := r.ApplyEnabled(reloaded)

	want := []string{"log", "new-hook", "oncall-sms"}
	if !reflect.DeepEqual(ignored, want) {
		t.Errorf("ignored = %v, want %v", ignored, want)
	}
	if ch, _ := r.Get("email"); ch.Enabled {
		t.Error("email should be disabled after reload")
	}
	if _, ok := r.Get("new-hook"); ok {
		t.Error("reload must not add channels")
	}
}

func TestResolve(t *testing.T) {
	r, err := NewRegistry([]Config{
		{Kind: "email"},
		{Name: "ops-slack", Kind: "chat"},
		{Name: "dev-teams", Kind: "chat"},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	got := r.Resolve([]string{"email", "chat", "ops-slack", "sms", "pager"})
	want := []string{"email", "dev-teams", "ops-slack", "sms", "pager"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestList(t *testing.T) {
	r, err := NewRegistry(testConfigs())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	list := r.List()
	if len(list) != 4 {
		t.Fatalf("len(List()) = %d, want 4", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Name > list[i].Name {
			t.Errorf("List() not sorted: %q before %q", list[i-1].Name, list[i].Name)
		}
	}
}
