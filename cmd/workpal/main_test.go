package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"workpal/internal/infra/codec/xlsx"
	"workpal/pkg/domain"
)

// persistentEnv points every store at a temp dir so separate invocations share
// state the way separate processes would.
func persistentEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("WORKPAL_CONFIG", "")
	t.Setenv("WORKPAL_STORAGE_DRIVER", "sqlite")
	t.Setenv("WORKPAL_SQLITE_PATH", filepath.Join(dir, "rules.db"))
	t.Setenv("WORKPAL_TABLE_DRIVER", "workbook")
	t.Setenv("WORKPAL_BLOB_DRIVER", "fs")
	t.Setenv("WORKPAL_BLOB_FS_ROOT", filepath.Join(dir, "blobs"))
	t.Setenv("WORKPAL_DEPARTMENTS", "HR")
	t.Setenv("WORKPAL_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUploadExecAndRules(t *testing.T) {
	dir := persistentEnv(t)

	workbook, err := xlsx.New().Write(domain.Dataset{Tables: []domain.Table{{
		Name:    "Employees",
		Columns: []string{"name", "salary"},
		Rows:    []domain.Row{{"name": domain.Text("Ada"), "salary": domain.Number(100)}},
	}}})
	if err != nil {
		t.Fatalf("workbook: %v", err)
	}
	xlsxPath := filepath.Join(dir, "hr.xlsx")
	if err := os.WriteFile(xlsxPath, workbook, 0o600); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	out, err := run(t, "", "upload", "dataset", "hr", xlsxPath)
	if err != nil || !strings.Contains(out, "Employees") {
		t.Fatalf("upload dataset: %v %s", err, out)
	}

	out, err = run(t, `{"action":"INSERT","department":"hr","table":"Employees","payload":{"name":"Grace","salary":120}}`, "exec")
	if err != nil {
		t.Fatalf("exec insert: %v %s", err, out)
	}
	out, err = run(t, `{"action":"READ","department":"HR","table":"Employees"}`, "exec", "-f", "-")
	if err != nil {
		t.Fatalf("exec read: %v %s", err, out)
	}
	var res domain.ExecutionResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if len(res.Data) != 2 || !res.Data[1]["name"].Equal(domain.Text("Grace")) {
		t.Fatalf("insert did not persist across invocations: %+v", res.Data)
	}

	rulesPath := filepath.Join(dir, "rules.txt")
	if err := os.WriteFile(rulesPath, []byte("[TEMPLATE]\nHello"), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if out, err := run(t, "", "upload", "rules", "hr", rulesPath); err != nil {
		t.Fatalf("upload rules: %v %s", err, out)
	}
	out, err = run(t, "", "rules", "get", "hr")
	if err != nil || strings.TrimSpace(out) != "[TEMPLATE]\nHello" {
		t.Fatalf("rules get: %v %q", err, out)
	}

	exported := filepath.Join(dir, "export.xlsx")
	if out, err := run(t, "", "export", "hr", "-o", exported); err != nil {
		t.Fatalf("export: %v %s", err, out)
	}
	data, err := os.ReadFile(exported)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if ds, err := xlsx.New().Read(data); err != nil || len(ds.Tables) != 1 || len(ds.Tables[0].Rows) != 2 {
		t.Fatalf("unexpected export: %v %+v", err, ds)
	}

	out, err = run(t, "", "departments")
	if err != nil || !strings.Contains(out, "hr\tHR\tEmployees") {
		t.Fatalf("departments: %v %q", err, out)
	}
}

func TestSetupDepartmentsPersistAcrossInvocations(t *testing.T) {
	persistentEnv(t)
	if out, err := run(t, "", "departments", "setup", "Ops", "central"); err != nil || !strings.Contains(out, "registered: ops") {
		t.Fatalf("setup: %v %q", err, out)
	}
	out, err := run(t, "", "departments")
	if err != nil || !strings.Contains(out, "ops\tOps\t") {
		t.Fatalf("ops should be listed by a later invocation: %v %q", err, out)
	}
	if _, err := run(t, `{"action":"READ","department":"ops","table":"x"}`, "exec"); err == nil || strings.Contains(err.Error(), "not registered") {
		t.Fatalf("ops should pass department validation after restart, got %v", err)
	}
}

func TestExecFailures(t *testing.T) {
	persistentEnv(t)
	if _, err := run(t, `{"action":"READ","department":"finance","table":"x"}`, "exec"); err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("expected unknown department, got %v", err)
	}
	if _, err := run(t, `{"action":"READ",`, "exec"); err == nil || !strings.Contains(err.Error(), "decode intent") {
		t.Fatalf("expected decode error, got %v", err)
	}
	out, err := run(t, `{"action":"TEMPLATE","department":"hr"}`, "exec")
	if err == nil || !strings.Contains(out, `"success": false`) {
		t.Fatalf("failed results print and exit non-zero: %v %s", err, out)
	}
}

func TestMainExitCodes(t *testing.T) {
	persistentEnv(t)
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"workpal", "departments"}
	main()
	os.Args = []string{"workpal", "rules", "get"}
	main()
	if len(codes) != 2 || codes[0] != 0 || codes[1] != 1 {
		t.Fatalf("unexpected exit codes %v", codes)
	}
}
