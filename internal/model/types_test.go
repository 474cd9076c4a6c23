package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHostDirect(t *testing.T) {
	tests := []struct {
		name string
		host Host
		want bool
	}{
		{"menu host", Host{Name: "VM-4-13", Match: "4.13"}, false},
		{"ip only", Host{Name: "db", IP: "10.0.4.20"}, false},
		{"user only", Host{Name: "db", LoginUser: "root"}, false},
		{"direct", Host{Name: "db", IP: "10.0.4.20", LoginUser: "root"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.host.Direct(); got != tt.want {
				t.Errorf("Direct(): got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDirectIdentity(t *testing.T) {
	h := Host{Name: "db", IP: "10.0.4.20", LoginUser: "root"}
	if got, want := h.DirectIdentity("alice"), "alice@root@10.0.4.20"; got != want {
		t.Errorf("DirectIdentity: got %q, want %q", got, want)
	}
}

func TestKeyword(t *testing.T) {
	if got := (Host{Name: "VM-4-13", Match: "4.13"}).Keyword(); got != "4.13" {
		t.Errorf("Keyword: got %q, want %q", got, "4.13")
	}
	if got := (Host{Name: "VM-4-13"}).Keyword(); got != "VM-4-13" {
		t.Errorf("Keyword fallback: got %q, want %q", got, "VM-4-13")
	}
}

func TestMatches(t *testing.T) {
	h := Host{Name: "VM-4-13", Match: "4.13"}
	for _, sel := range []string{"VM-4-13", "vm-4-13", "4.13"} {
		if !h.Matches(sel) {
			t.Errorf("Matches(%q): got false, want true", sel)
		}
	}
	for _, sel := range []string{"", "4.1", "VM-4"} {
		if h.Matches(sel) {
			t.Errorf("Matches(%q): got true, want false", sel)
		}
	}
}

func TestWithWorkdir(t *testing.T) {
	if got := WithWorkdir("ls -la", ""); got != "ls -la" {
		t.Errorf("no workdir: got %q", got)
	}
	if got, want := WithWorkdir("ls -la", "/opt/app"), "cd /opt/app && ls -la"; got != want {
		t.Errorf("workdir: got %q, want %q", got, want)
	}
}

func TestFailureJSON(t *testing.T) {
	data, err := json.Marshal(Failure{Kind: "NotFound", Error: "no host matches 'x'"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"success":false`) {
		t.Errorf("missing success=false: %s", s)
	}
	if strings.Contains(s, "buffer") {
		t.Errorf("empty buffer should be omitted: %s", s)
	}
}
