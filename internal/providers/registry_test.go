package providers

import (
	"context"
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	t.Run("register and get LLM", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockClient()
		r.RegisterLLM("test-llm", mock)

		client, err := r.GetLLM("test-llm")
		if err != nil {
			t.Fatalf("GetLLM() error = %v", err)
		}
		if client != mock {
			t.Error("got different client than registered")
		}
	})

	t.Run("get nonexistent LLM", func(t *testing.T) {
		if _, err := NewRegistry().GetLLM("nonexistent"); err == nil {
			t.Error("expected error for nonexistent LLM")
		}
	})

	t.Run("list is sorted", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterLLM("zeta", NewMockClient())
		r.RegisterLLM("alpha", NewMockClient())
		got := r.ListLLM()
		if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
			t.Errorf("ListLLM() = %v", got)
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.RegisterLLM("shared", NewMockClient())
				_, _ = r.GetLLM("shared")
				_ = r.ListLLM()
			}()
		}
		wg.Wait()
	})
}

func TestRegistry_Reload(t *testing.T) {
	ctx := context.Background()
	cfg := RegistryConfig{LLMProviders: map[string]LLMProviderConfig{
		"mock":     {Type: "mock", Enabled: true},
		"openai":   {Type: "openai", Model: "gpt-4o-mini", APIKey: "sk-test", Enabled: true},
		"nokey":    {Type: "openai", Enabled: true},
		"disabled": {Type: "mock", Enabled: false},
		"bogus":    {Type: "bogus", APIKey: "x", Enabled: true},
	}}

	r := NewRegistryFromConfig(ctx, cfg)
	got := r.ListLLM()
	if len(got) != 2 || got[0] != "mock" || got[1] != "openai" {
		t.Fatalf("ListLLM() = %v, want [mock openai]", got)
	}

	before, _ := r.GetLLM("openai")

	// Unchanged config keeps the same client instance.
	r.Reload(ctx, cfg)
	after, _ := r.GetLLM("openai")
	if before != after {
		t.Error("unchanged provider was rebuilt")
	}

	// Changed config rebuilds, removed config unregisters.
	r.Reload(ctx, RegistryConfig{LLMProviders: map[string]LLMProviderConfig{
		"openai": {Type: "openai", Model: "gpt-4o", APIKey: "sk-test", Enabled: true},
	}})
	rebuilt, err := r.GetLLM("openai")
	if err != nil {
		t.Fatalf("GetLLM() error = %v", err)
	}
	if rebuilt == before {
		t.Error("changed provider was not rebuilt")
	}
	if _, err := r.GetLLM("mock"); err == nil {
		t.Error("expected mock to be unregistered")
	}
}

func TestCreateLLMClient_RateLimit(t *testing.T) {
	client, err := createLLMClient(context.Background(), LLMProviderConfig{Type: "mock", RateLimit: 30})
	if err != nil {
		t.Fatalf("createLLMClient() error = %v", err)
	}
	lc, ok := client.(*limitedClient)
	if !ok {
		t.Fatalf("client type = %T, want *limitedClient", client)
	}
	if _, ok := lc.Unwrap().(*MockClient); !ok {
		t.Errorf("wrapped type = %T", lc.Unwrap())
	}
	if lc.Limiter().Status().TokensLimit != 30 {
		t.Errorf("TokensLimit = %d", lc.Limiter().Status().TokensLimit)
	}
}
