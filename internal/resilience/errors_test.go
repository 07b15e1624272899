package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad input"), false},
		{"explicit", NewTransientError(errors.New("x"), 503), true},
		{"wrapped", eris.Wrap(NewTransientError(errors.New("x"), 429), "metals: latest"), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.DNSError{IsTimeout: true}, true},
		{"deadline pattern", errors.New("read tcp: i/o timeout"), true},
		{"context cancelled", context.Canceled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	err := StatusError("nominatim", 503, "busy")
	if !IsTransient(err) {
		t.Errorf("503 should be transient")
	}
	var te *TransientError
	if !errors.As(err, &te) || te.StatusCode != 503 {
		t.Errorf("expected TransientError with status 503, got %v", err)
	}

	err = StatusError("nominatim", 403, "forbidden")
	if IsTransient(err) {
		t.Errorf("403 should be permanent")
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(NewTransientError(errors.New("x"), 500)); got != ErrorTypeTransient {
		t.Errorf("got %s, want transient", got)
	}
	if got := ClassifyError(errors.New("x")); got != ErrorTypePermanent {
		t.Errorf("got %s, want permanent", got)
	}
}
