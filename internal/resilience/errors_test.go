package resilience

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient_StatusError(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{404, false},
	}
	for _, tt := range tests {
		err := NewStatusError("nominatim", tt.code)
		if got := IsTransient(err); got != tt.want {
			t.Errorf("IsTransient(status %d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestIsTransient_WrappedStatusError(t *testing.T) {
	wrapped := eris.Wrap(NewStatusError("sda", 502), "sda: query")
	if !IsTransient(wrapped) {
		t.Error("expected eris-wrapped 502 to be transient")
	}

	wrapped = fmt.Errorf("lookup: %w", NewStatusError("sda", 400))
	if IsTransient(wrapped) {
		t.Error("expected wrapped 400 to be permanent")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("sda: parse response: unexpected end of JSON input")) {
		t.Error("parse error should not be transient")
	}
}

func TestIsTransient_ConnectionErrors(t *testing.T) {
	for _, errno := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED, io.ErrUnexpectedEOF} {
		err := fmt.Errorf("post: %w", errno)
		if !IsTransient(err) {
			t.Errorf("%v should be transient", errno)
		}
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	for _, p := range []string{
		"read: connection reset by peer",
		"write: broken pipe",
		"net/http: TLS handshake timeout",
		"dial tcp: i/o timeout",
	} {
		if !IsTransient(errors.New(p)) {
			t.Errorf("expected %q to be transient", p)
		}
	}
}

func TestStatusError_Message(t *testing.T) {
	err := NewStatusError("overpass", 504)
	if err.Error() != "overpass: returned status 504" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
