package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"pkt.systems/paneflow/internal/appconfig"
	"pkt.systems/paneflow/internal/opauth"
)

func TestOperatorsAddRejectsInvalidName(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := newOperatorsCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "BadName", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for invalid operator name")
	}
}

func TestOperatorsAddAndDelete(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	cmd := newOperatorsCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "alice.dev", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add operator: %v", err)
	}

	store, err := opauth.NewStore(cfg.Auth.OperatorFile, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if findOperator(store.LoadOperators(), "alice.dev") == nil {
		t.Fatalf("expected alice.dev in store")
	}

	cmd = newOperatorsCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "delete", "alice.dev"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("delete operator: %v", err)
	}

	store, err = opauth.NewStore(cfg.Auth.OperatorFile, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	if findOperator(store.LoadOperators(), "alice.dev") != nil {
		t.Fatalf("expected alice.dev to be removed")
	}
}

func TestOperatorsRotateTOTP(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	cmd := newOperatorsCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "bob", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add operator: %v", err)
	}

	store, err := opauth.NewStore(cfg.Auth.OperatorFile, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	orig := findOperator(store.LoadOperators(), "bob")
	if orig == nil {
		t.Fatalf("expected bob operator")
	}

	cmd = newOperatorsCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "rotate-totp", "bob"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("rotate-totp: %v", err)
	}

	store, err = opauth.NewStore(cfg.Auth.OperatorFile, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	updated := findOperator(store.LoadOperators(), "bob")
	if updated == nil {
		t.Fatalf("expected bob operator after rotate")
	}
	if updated.TOTPSecret == orig.TOTPSecret {
		t.Fatalf("expected TOTP secret to change")
	}
}

func TestOperatorsChpasswd(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	cmd := newOperatorsCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "carol", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add operator: %v", err)
	}

	store, err := opauth.NewStore(cfg.Auth.OperatorFile, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	orig := findOperator(store.LoadOperators(), "carol")
	if orig == nil {
		t.Fatalf("expected carol operator")
	}

	cmd = newOperatorsCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "chpasswd", "carol", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("chpasswd: %v", err)
	}

	store, err = opauth.NewStore(cfg.Auth.OperatorFile, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	updated := findOperator(store.LoadOperators(), "carol")
	if updated == nil {
		t.Fatalf("expected carol operator after chpasswd")
	}
	if updated.PasswordHash == orig.PasswordHash {
		t.Fatalf("expected password hash to change")
	}
}

func TestResolvePasswordFromStdin(t *testing.T) {
	cmd := newOperatorsCmd()
	cmd.SetIn(bytes.NewBufferString("s3cret-password\n"))
	pass, generated, err := resolvePassword(cmd, true, false)
	if err != nil {
		t.Fatalf("resolvePassword: %v", err)
	}
	if pass != "s3cret-password" || generated {
		t.Fatalf("resolvePassword = %q, %v", pass, generated)
	}

	if _, _, err := resolvePassword(cmd, true, true); err == nil {
		t.Fatalf("conflicting flags accepted")
	}
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.StateDir = t.TempDir()
	cfg.Console.HostKeyPath = filepath.Join(t.TempDir(), "ssh_host_key")
	cfg.Auth.OperatorFile = filepath.Join(t.TempDir(), "operators.json")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func loadConfigFromPath(t *testing.T, path string) appconfig.Config {
	t.Helper()
	cfg, err := appconfig.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func findOperator(ops []opauth.Operator, name string) *opauth.Operator {
	for _, op := range ops {
		if op.Name == name {
			clone := op
			return &clone
		}
	}
	return nil
}
