package core

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Secrets are KKS_* values kept out of config.yaml.
type Secrets map[string]string

// Get returns the environment value of key when set, else the file value.
func (s Secrets) Get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s[key]
}

// LoadSecretsEnv reads a dotenv style file, ConfigDir()/secrets.env when
// path is empty. A missing file yields no secrets.
func LoadSecretsEnv(path string) (Secrets, error) {
	if path == "" {
		path = filepath.Join(ConfigDir(), "secrets.env")
	}
	out := Secrets{}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("open secrets: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, val, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			return out, fmt.Errorf("%s:%d: expected KEY=VALUE", path, n)
		}
		key = strings.TrimSpace(key)
		if !strings.HasPrefix(key, "KKS_") {
			continue
		}
		out[key] = unquote(strings.TrimSpace(val))
	}
	return out, sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
