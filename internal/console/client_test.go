package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	accountAddr  = "0x1111111111111111111111111111111111111111"
	protocolAddr = "0x0595D1Df64279ddB51F1bdC405Fe2D0b4Cc86681"
	tokenAddr    = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "test-key", ChainID: 8453})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestBuildTransactionDecodesSteps(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/builder/build" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key")
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["type"] != "DEPOSIT" {
			t.Errorf("unexpected type %v", payload["type"])
		}
		json.NewEncoder(w).Encode(BuildResponse{
			Transactions: []Transaction{
				{To: tokenAddr, Data: "0x095ea7b3", Value: ""},
				{To: protocolAddr, Data: "0x617ba037", Value: "0"},
			},
		})
	})

	resp, err := client.BuildTransaction(context.Background(), BuildRequest{
		AccountAddress:  accountAddr,
		Type:            "DEPOSIT",
		ProtocolAddress: protocolAddr,
		TokenAddress:    tokenAddr,
		Amount:          "100000000",
	})
	if err != nil {
		t.Fatalf("build transaction: %v", err)
	}
	if len(resp.Transactions) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(resp.Transactions))
	}
	if resp.Transactions[0].Value != "0" {
		t.Fatalf("expected empty value normalised to 0, got %q", resp.Transactions[0].Value)
	}
}

func TestBuildTransactionRejectsMalformedRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached for an invalid request")
	})

	_, err := client.BuildTransaction(context.Background(), BuildRequest{
		AccountAddress:  accountAddr,
		Type:            "DEPOSIT",
		ProtocolAddress: "aave",
		TokenAddress:    tokenAddr,
		Amount:          "100",
	})
	if err == nil {
		t.Fatalf("expected validation error for non-address protocol")
	}
}

func TestBuildTransactionRejectsMalformedStep(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(BuildResponse{
			Transactions: []Transaction{{To: "not-an-address", Data: "0x", Value: "0"}},
		})
	})

	_, err := client.BuildTransaction(context.Background(), BuildRequest{
		AccountAddress:  accountAddr,
		Type:            "DEPOSIT",
		ProtocolAddress: protocolAddr,
		TokenAddress:    tokenAddr,
		Amount:          "100",
	})
	if err == nil {
		t.Fatalf("expected boundary validation to reject malformed step")
	}
}

func TestRegisterExecutorKeepsRegistryID(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["signature"] == "" {
			t.Errorf("expected signed registration message")
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "registry-42"})
	})

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	id, err := client.RegisterExecutor(context.Background(), key, RegistrationConfig{ClientID: "necta-executor"})
	if err != nil {
		t.Fatalf("register executor: %v", err)
	}
	if id != "registry-42" {
		t.Fatalf("unexpected registry id %q", id)
	}

	again, err := client.RegisterExecutor(context.Background(), key, RegistrationConfig{ClientID: "necta-executor"})
	if err != nil || again != "registry-42" {
		t.Fatalf("expected cached registry id, got %q err %v", again, err)
	}
	if calls != 1 {
		t.Fatalf("expected a single registration call, got %d", calls)
	}
}
