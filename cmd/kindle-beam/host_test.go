package main

// Notes:
// - runHost: each case feeds a framed request on Stdin and decodes the
//   framed Response from Stdout. pandoc and SMTP are faked (see helpers_test.go).
// - Images are not fetched here; the pipeline has its own tests.
// These are acceptable gaps: we test observable behavior, not implementation details.

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	kindlebeam "github.com/alnah/go-kindlebeam"
	"github.com/alnah/go-kindlebeam/internal/framing"
	"github.com/alnah/go-kindlebeam/internal/mailer"
)

// framedRequest encodes req as a native message.
func framedRequest(t *testing.T, req any) *bytes.Reader {
	t.Helper()

	data, err := framing.Encode(req)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(data)
}

// readResponse decodes the single Response written to stdout.
func readResponse(t *testing.T, stdout *bytes.Buffer) kindlebeam.Response {
	t.Helper()

	var resp kindlebeam.Response
	if err := framing.ReadMessage(stdout, &resp); err != nil {
		t.Fatalf("reading response: %v (stdout %q)", err, stdout.Bytes())
	}
	if stdout.Len() != 0 {
		t.Errorf("%d trailing bytes after the response", stdout.Len())
	}
	return resp
}

// ---------------------------------------------------------------------------
// TestRunHost - One request, one response
// ---------------------------------------------------------------------------

func TestRunHost_Success(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	te.writeConfig(t, "config.json", validConfigJSON)
	te.Stdin = framedRequest(t, kindlebeam.Request{Title: "Hello", Content: "<p>World</p>", URL: "https://site.example/post"})

	code := runHost(context.Background(), &hostFlags{}, te.Environment)

	if code != ExitSuccess {
		t.Fatalf("exit code = %d, want %d; stderr:\n%s", code, ExitSuccess, te.stderr)
	}
	if resp := readResponse(t, te.stdout); !resp.Success || resp.Error != "" {
		t.Errorf("response = %+v, want success", resp)
	}
	if len(te.sent.titles) != 1 || te.sent.titles[0] != "Hello" || te.sent.to[0] != "me_kindle@kindle.com" {
		t.Errorf("deliveries = %v to %v", te.sent.titles, te.sent.to)
	}
}

func TestRunHost_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		config    string // written as config.json when non-empty
		vars      map[string]string
		request   any
		sendErr   error
		wantCode  int
		wantError string // substring
	}{
		{
			name:      "empty content is rejected before config",
			request:   kindlebeam.Request{Title: "T", Content: "  "},
			wantCode:  ExitUsage,
			wantError: "No content provided",
		},
		{
			name:      "missing config file",
			request:   kindlebeam.Request{Content: "<p>x</p>"},
			wantCode:  ExitUsage,
			wantError: "Config file not found: ",
		},
		{
			name:      "missing keys",
			config:    `{"smtp_user": "me@gmail.com"}`,
			request:   kindlebeam.Request{Content: "<p>x</p>"},
			wantCode:  ExitUsage,
			wantError: "Missing config keys: smtp_pass, kindle_email",
		},
		{
			name:      "unparsable config",
			config:    `{"smtp_user": [`,
			request:   kindlebeam.Request{Content: "<p>x</p>"},
			wantCode:  ExitUsage,
			wantError: "Invalid config: ",
		},
		{
			name:      "payload is not a request",
			config:    validConfigJSON,
			request:   []int{1, 2},
			wantCode:  ExitProtocol,
			wantError: "Invalid message: ",
		},
		{
			name:      "authentication rejected",
			config:    validConfigJSON,
			request:   kindlebeam.Request{Content: "<p>x</p>"},
			sendErr:   mailer.ErrAuth,
			wantCode:  ExitDelivery,
			wantError: "SMTP authentication failed - check your App Password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			te := newTestEnv(t)
			if tt.config != "" {
				te.writeConfig(t, "config.json", tt.config)
			}
			for k, v := range tt.vars {
				te.vars[k] = v
			}
			te.sent.err = tt.sendErr
			te.Stdin = framedRequest(t, tt.request)

			code := runHost(context.Background(), &hostFlags{}, te.Environment)

			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			resp := readResponse(t, te.stdout)
			if resp.Success {
				t.Fatal("response reports success")
			}
			if !strings.Contains(resp.Error, tt.wantError) {
				t.Errorf("error = %q, want it to contain %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestRunHost_ConfigNotFoundNamesPath(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	te.Stdin = framedRequest(t, kindlebeam.Request{Content: "<p>x</p>"})

	runHost(context.Background(), &hostFlags{}, te.Environment)

	want := "Config file not found: " + te.defaultConfigPath() + " - create it with: smtp_user, smtp_pass, kindle_email"
	if got := readResponse(t, te.stdout).Error; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestRunHost_EnvironmentCredentialsWithoutFile(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	te.vars["KINDLE_BEAM_SMTP_USER"] = "me@gmail.com"
	te.vars["KINDLE_BEAM_SMTP_PASS"] = "secret"
	te.vars["KINDLE_BEAM_KINDLE_EMAIL"] = "reader@kindle.com"
	te.Stdin = framedRequest(t, kindlebeam.Request{Content: "<p>x</p>"})

	if code := runHost(context.Background(), &hostFlags{}, te.Environment); code != ExitSuccess {
		t.Fatalf("exit code = %d; stderr:\n%s", code, te.stderr)
	}
	if resp := readResponse(t, te.stdout); !resp.Success {
		t.Errorf("response = %+v", resp)
	}
	if len(te.sent.to) != 1 || te.sent.to[0] != "reader@kindle.com" {
		t.Errorf("delivered to %v", te.sent.to)
	}
}

func TestRunHost_EndOfInput(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)

	code := runHost(context.Background(), &hostFlags{}, te.Environment)

	if code != ExitProtocol {
		t.Errorf("exit code = %d, want %d", code, ExitProtocol)
	}
	if resp := readResponse(t, te.stdout); resp.Error != "No message received" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRunHost_TruncatedFrameWritesNothing(t *testing.T) {
	t.Parallel()

	inputs := map[string][]byte{
		"partial prefix": {0x05, 0x00},
		"short payload":  append(binary.NativeEndian.AppendUint32(nil, 100), []byte(`{"title":`)...),
		"absurd length":  binary.NativeEndian.AppendUint32(nil, framing.MaxIncomingSize+1),
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			te := newTestEnv(t)
			te.Stdin = bytes.NewReader(in)

			if code := runHost(context.Background(), &hostFlags{}, te.Environment); code != ExitProtocol {
				t.Errorf("exit code = %d, want %d", code, ExitProtocol)
			}
			if te.stdout.Len() != 0 {
				t.Errorf("stdout = %q, want nothing", te.stdout.Bytes())
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRunHost_ResponseWriteFailure(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	te.writeConfig(t, "config.json", validConfigJSON)
	te.Stdin = framedRequest(t, kindlebeam.Request{Content: "<p>x</p>"})
	te.Stdout = failingWriter{}

	if code := runHost(context.Background(), &hostFlags{}, te.Environment); code != ExitIO {
		t.Errorf("exit code = %d, want %d", code, ExitIO)
	}
}

// ---------------------------------------------------------------------------
// TestIsBrowserArg - Launch argument detection
// ---------------------------------------------------------------------------

func TestIsBrowserArg(t *testing.T) {
	t.Parallel()

	tests := []struct {
		arg  string
		want bool
	}{
		{"chrome-extension://abcdefghijklmnop/", true},
		{"/home/u/.mozilla/native-messaging-hosts/com.kindlebeam.host.json", true},
		{"kindle-beam@example.org", true},
		{"{2b3c4d5e-0000-1111-2222-333344445555}", true},
		{"--parent-window=0", true},
		{"send", false},
		{"-v", false},
		{"--config", false},
	}
	for _, tt := range tests {
		if got := isBrowserArg(tt.arg); got != tt.want {
			t.Errorf("isBrowserArg(%q) = %v, want %v", tt.arg, got, tt.want)
		}
	}
}
