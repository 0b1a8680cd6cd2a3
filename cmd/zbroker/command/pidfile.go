package command

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Write the current process ID to path. An empty path disables the PID file.
func writePidFile(path string) error {
	if path == "" {
		return nil
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// Remove path, but only if it still names this process.
func removePidFile(path string) error {
	if path == "" {
		return nil
	}

	content, err := os.ReadFile(path)

	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if strings.TrimSpace(string(content)) != strconv.Itoa(os.Getpid()) {
		return nil
	}
	return os.Remove(path)
}
