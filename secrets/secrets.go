package secrets

import (
	"fmt"
	"os"
	"strings"
)

// LoadFromFile loads a secret from a file path
func LoadFromFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("secret file path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("secret file %s is empty", path)
	}

	return data, nil
}

// Resolve returns value when set, otherwise the trimmed contents of path.
// Both empty yields an empty secret and no error.
func Resolve(value, path string) (string, error) {
	if value != "" || path == "" {
		return value, nil
	}

	data, err := LoadFromFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
