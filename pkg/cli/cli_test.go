package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewFormatter_Selection(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON).(*JSONFormatter); !ok {
		t.Error("NewFormatter(json) did not return a JSONFormatter")
	}
	if _, ok := NewFormatter(FormatText).(*TextFormatter); !ok {
		t.Error("NewFormatter(text) did not return a TextFormatter")
	}
	if _, ok := NewFormatter("bogus").(*TextFormatter); !ok {
		t.Error("NewFormatter(unknown) should default to text")
	}
}

func TestJSONFormatter_RoundTrip(t *testing.T) {
	f := &JSONFormatter{Indent: true}
	in := map[string]any{"fingerprint": "abc123", "active": true}

	out, err := f.Format(in)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if back["fingerprint"] != "abc123" {
		t.Errorf("fingerprint = %v", back["fingerprint"])
	}

	var buf bytes.Buffer
	if err := f.FormatTo(&buf, in); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if !strings.Contains(buf.String(), "  \"active\"") {
		t.Error("FormatTo() output not indented")
	}
}

func TestTextFormatter(t *testing.T) {
	f := &TextFormatter{}
	var buf bytes.Buffer
	if err := f.FormatTo(&buf, "hello"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "hello\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestProgress_RendersBarAndFinishes(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)

	p.Start(10)
	p.Update(5)
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "50.0%") {
		t.Errorf("midway render missing 50%%: %q", out)
	}
	if !strings.Contains(out, "(10/10)") {
		t.Errorf("Finish() did not fill the bar: %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish() did not terminate the line")
	}
}

func TestProgress_ZeroTotalRendersNothing(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)
	p.Start(0)
	p.Update(0)
	if buf.Len() != 0 {
		t.Errorf("zero-total progress rendered output: %q", buf.String())
	}
}

func TestProgress_Error(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)
	p.Error(errors.New("upstream gone"))
	if !strings.Contains(buf.String(), "upstream gone") {
		t.Errorf("Error() output = %q", buf.String())
	}
}

func TestConfigError_Message(t *testing.T) {
	err := NewConfigError("proxy.listen_address", "must be host:port")
	want := "config error in proxy.listen_address: must be host:port"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCommandError_WrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewCommandError("run", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is() failed to find the cause")
	}
	if !strings.Contains(err.Error(), "run") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSetupSignalHandler_ReturnsLiveContext(t *testing.T) {
	ctx := SetupSignalHandler()
	select {
	case <-ctx.Done():
		t.Error("context cancelled without a signal")
	default:
	}
}
