package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeSource(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestBuildCompileRequest(t *testing.T) {
	src := writeSource(t, "main.cpp", "int main(){}")
	params, err := ParseArgs([]string{"lang=cpp", "src=" + src, "flags=-O2 -std=c++17"})
	if err != nil {
		t.Fatalf("parse args: %v", err)
	}
	req, err := BuildRequest(Registry()["compile"], params, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if req.Method != "POST" || req.Path != "/compile" {
		t.Fatalf("unexpected target %s %s", req.Method, req.Path)
	}
	var body map[string]string
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["source_code"] != "int main(){}" || body["language"] != "cpp" || body["compiler_options"] != "-O2 -std=c++17" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestBuildExecuteRequest(t *testing.T) {
	cmd := Registry()["execute"]
	if _, err := BuildRequest(cmd, Params{}, nil); err == nil {
		t.Fatalf("expected error without a build")
	}

	in := writeSource(t, "in.txt", "21\n")
	params, _ := ParseArgs([]string{"stdin_file=" + in, "timeout=1500", "fileio=cow"})
	exe := json.RawMessage(`{"files":"H4sI","run_command":"./program"}`)
	req, err := BuildRequest(cmd, params, exe)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	var body struct {
		Executable json.RawMessage `json:"executable"`
		Options    struct {
			Stdin      string `json:"stdin"`
			TimeoutMs  uint32 `json:"timeout_ms"`
			FileIOName string `json:"file_io_name"`
		} `json:"options"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if string(body.Executable) != string(exe) {
		t.Fatalf("executable not forwarded: %s", body.Executable)
	}
	if body.Options.Stdin != "21\n" || body.Options.TimeoutMs != 1500 || body.Options.FileIOName != "cow" {
		t.Fatalf("unexpected options %+v", body.Options)
	}
}

func TestBuildRunRequestDefaults(t *testing.T) {
	src := writeSource(t, "main.py", "print(1)")
	params, _ := ParseArgs([]string{"lang=py11", "src=" + src})
	req, err := BuildRequest(Registry()["run"], params, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	var body struct {
		Compile map[string]string      `json:"compile"`
		Execute map[string]interface{} `json:"execute"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Compile["language"] != "py11" || body.Execute["timeout_ms"].(float64) != defaultTimeoutMs {
		t.Fatalf("unexpected body %+v", body)
	}
	if _, ok := body.Execute["file_io_name"]; ok {
		t.Fatalf("file_io_name must be omitted when unset")
	}
}

func TestBuildRequestErrors(t *testing.T) {
	cases := map[string][]string{
		"missing language": {"src=/nonexistent"},
		"missing file":     {"lang=cpp", "src=/nonexistent/main.cpp"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			params, err := ParseArgs(args)
			if err != nil {
				t.Fatalf("parse args: %v", err)
			}
			if _, err := BuildRequest(Registry()["run"], params, nil); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	params, _ := ParseArgs([]string{"timeout=-1"})
	if _, err := BuildRequest(Registry()["execute"], params, json.RawMessage(`{}`)); err == nil {
		t.Fatalf("expected error for negative timeout")
	}
	if _, err := ParseArgs([]string{"novalue"}); err == nil {
		t.Fatalf("expected error for token without '='")
	}
}

func TestHealthHasNoBody(t *testing.T) {
	req, err := BuildRequest(Registry()["health"], Params{}, nil)
	if err != nil || req.Body != nil || req.Path != "/healthz" {
		t.Fatalf("unexpected health request %+v err=%v", req, err)
	}
}
