// Package fileutils reads import inputs and writes rendered outputs.
// The path "-" stands for standard input or output.
package fileutils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Stdio is the path that selects stdin for inputs and stdout for outputs.
const Stdio = "-"

// MaxInputSize caps how much of a CSV input is read into memory.
const MaxInputSize = 32 << 20

// FileExists checks if a file exists and is not a directory
func FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// EnsureDirectoryExists creates a directory if it doesn't exist
func EnsureDirectoryExists(dirPath string) error {
	if dirPath == "" || dirPath == "." {
		return nil
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// ReadInput returns the content of filePath, or of stdin when filePath is "-".
func ReadInput(filePath string, stdin io.Reader) ([]byte, error) {
	var r io.Reader
	if filePath == Stdio {
		r = stdin
	} else {
		if !FileExists(filePath) {
			return nil, fmt.Errorf("file does not exist: %s", filePath)
		}
		f, err := os.Open(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) > MaxInputSize {
		return nil, fmt.Errorf("input exceeds %d bytes", MaxInputSize)
	}
	return data, nil
}

// WriteOutput writes data to filePath, creating parent directories as needed.
// An empty path or "-" writes to stdout instead.
func WriteOutput(filePath string, data []byte, stdout io.Writer) error {
	if filePath == "" || filePath == Stdio {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := EnsureDirectoryExists(filepath.Dir(filePath)); err != nil {
		return err
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// CreateFile creates or truncates a file for writing
func CreateFile(filePath string) (*os.File, error) {
	if err := EnsureDirectoryExists(filepath.Dir(filePath)); err != nil {
		return nil, err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return file, nil
}
