package todo

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewHTTPFailure(t *testing.T) {
	err := NewHTTPFailure("Failed to update todo", 500, "500 Internal Server Error", "boom")

	if !IsNetworkFailure(err) {
		t.Errorf("expected network failure category, got %v", err)
	}
	if StatusCode(err) != 500 {
		t.Errorf("expected status 500, got %d", StatusCode(err))
	}
	if got := Message(err); got != "Failed to update todo: 500 Internal Server Error - boom" {
		t.Errorf("unexpected message %q", got)
	}
	if !IsRetryable(err) {
		t.Error("5xx failures should be flagged retryable")
	}

	notFound := NewHTTPFailure("Failed to delete todo", 404, "404 Not Found", "")
	if IsRetryable(notFound) {
		t.Error("4xx failures should not be flagged retryable")
	}
}

func TestNewTransportFailure(t *testing.T) {
	err := NewTransportFailure("Failed to fetch todos", fmt.Errorf("dial tcp: connection refused"))

	if !IsNetworkFailure(err) {
		t.Errorf("expected network failure, got %v", err)
	}
	if StatusCode(err) != 0 {
		t.Errorf("transport failures carry no status, got %d", StatusCode(err))
	}
	if !IsRetryable(err) {
		t.Error("transport failures should be flagged retryable")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected source in error text, got %q", err.Error())
	}
}

func TestCleanTitle(t *testing.T) {
	title, err := CleanTitle("  Buy milk  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "Buy milk" {
		t.Errorf("expected trimmed title, got %q", title)
	}

	_, err = CleanTitle("   ")
	if err == nil {
		t.Fatal("expected error for blank title")
	}
	if !IsValidationFailure(err) {
		t.Errorf("expected validation failure, got %v", err)
	}
	if Message(err) != ErrTitleRequired {
		t.Errorf("unexpected message %q", Message(err))
	}

	_, err = CleanTitle(strings.Repeat("x", MaxTitleLength+1))
	if err == nil || Message(err) != ErrTitleTooLong {
		t.Errorf("expected too long error, got %v", err)
	}
}
