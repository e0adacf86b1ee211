package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Config controls the OCR invocation.
type Config struct {
	Command  string
	Language string
}

// Extractor implements ports.TextExtractor by piping the image through the
// tesseract binary (stdin image, stdout text).
type Extractor struct {
	command  string
	language string
}

func NewExtractor(cfg Config) *Extractor {
	if cfg.Command == "" {
		cfg.Command = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Extractor{command: cfg.Command, language: cfg.Language}
}

func (e *Extractor) Extract(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("image payload is empty")
	}

	cmd := exec.CommandContext(ctx, e.command, "stdin", "stdout", "-l", e.language)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("%s failed: %w: %s", e.command, err, detail)
		}
		return "", fmt.Errorf("%s failed: %w", e.command, err)
	}

	return strings.TrimSpace(stdout.String()), nil
}
