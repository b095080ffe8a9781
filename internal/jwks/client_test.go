package jwks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTestClientRoundTrip(t *testing.T) {
	c := NewTestClient("https://id.example.test", "conequest")
	token, err := c.MintTestToken("user-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	sub, err := c.Subject(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if sub != "user-1" {
		t.Fatalf("sub = %q", sub)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	c := NewTestClient("https://id.example.test", "conequest")
	token, err := c.MintTestToken("user-1", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Subject(context.Background(), token); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestWrongAudienceRejected(t *testing.T) {
	issuerA := NewTestClient("https://id.example.test", "conequest")
	token, err := issuerA.MintTestToken("user-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	other := NewTestClient("https://id.example.test", "someone-else")
	if _, err := other.Subject(context.Background(), token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestMalformedTokenRejected(t *testing.T) {
	c := NewTestClient("https://id.example.test", "conequest")
	if _, err := c.Subject(context.Background(), "not.a.jwt"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}
