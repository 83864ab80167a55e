// Package export writes a bundle to a directory and reads it back.
//
// Layout:
//
//	000-start.form
//	001-<slug>.form ...
//	process.bpmn | graph.json
//	manifest.json
//	checksums.txt   (shasum -a 256 format)
package export

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rendis/bpmnforms/internal/bundle"
	"github.com/rendis/bpmnforms/internal/validation"
	"github.com/rendis/bpmnforms/pkg/schema"
)

const (
	// ManifestFile holds the bundle manifest.
	ManifestFile = "manifest.json"
	// ChecksumsFile lists the SHA-256 digest of every other file.
	ChecksumsFile = "checksums.txt"
)

var graphFiles = []string{"process.bpmn", "graph.json"}

// WriteDir writes b into dir, creating it when needed, and returns the
// written file names in write order. Existing files with the same names
// are overwritten.
func WriteDir(dir string, b *schema.Bundle) ([]string, error) {
	if b == nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "bundle is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "create export dir %s", dir).WithCause(err)
	}

	sums := make(map[string]string)
	var written []string
	write := func(name string, data []byte) error {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		sums[name] = sha256Hex(data)
		written = append(written, name)
		return nil
	}

	for _, f := range b.Forms {
		data, err := f.Document.Marshal()
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "encode form").WithNode(f.NodeID).WithCause(err)
		}
		if err := write(f.Filename, data); err != nil {
			return nil, err
		}
	}

	graphData := []byte(b.Graph)
	if err := write(bundle.GraphFile(graphData), graphData); err != nil {
		return nil, err
	}

	manifest, err := json.MarshalIndent(b.Manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := write(ManifestFile, manifest); err != nil {
		return nil, err
	}

	var sb strings.Builder
	names := make([]string, 0, len(sums))
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "%s  %s\n", sums[name], name)
	}
	if err := os.WriteFile(filepath.Join(dir, ChecksumsFile), []byte(sb.String()), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", ChecksumsFile, err)
	}
	return append(written, ChecksumsFile), nil
}

// ReadDir loads a bundle previously written by WriteDir.
func ReadDir(dir string) (*schema.Bundle, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "read %s", ManifestFile).WithCause(err)
	}
	var m schema.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "invalid manifest").WithCause(err)
	}

	b := &schema.Bundle{
		ID:          m.BundleID,
		ServiceName: m.Service,
		GeneratedAt: m.GeneratedAt,
		Manifest:    m,
		Forms:       make([]schema.GeneratedForm, 0, len(m.Forms)),
	}
	for _, e := range m.Forms {
		data, err := os.ReadFile(filepath.Join(dir, e.Filename))
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "read form %s", e.Filename).WithNode(e.NodeID).WithCause(err)
		}
		doc, err := schema.ParseForm(data)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeParse, "form %s", e.Filename).WithNode(e.NodeID).WithCause(err)
		}
		b.Forms = append(b.Forms, schema.GeneratedForm{
			NodeID:   e.NodeID,
			Name:     e.Name,
			Filename: e.Filename,
			FormID:   e.FormID,
			Document: doc,
		})
	}

	graphData, err := readGraph(dir)
	if err != nil {
		return nil, err
	}
	b.Graph = string(graphData)
	return b, nil
}

func readGraph(dir string) ([]byte, error) {
	for _, name := range graphFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no graph file in %s", dir)
}

// VerifyChecksums compares every file listed in checksums.txt against its
// digest. A missing checksums file is an error; files not listed are
// ignored.
func VerifyChecksums(dir string) (*schema.ValidationResult, error) {
	f, err := os.Open(filepath.Join(dir, ChecksumsFile))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "open %s", ChecksumsFile).WithCause(err)
	}
	defer f.Close()

	want, err := parseChecksumFile(f)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "invalid checksums file").WithCause(err)
	}

	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &schema.ValidationResult{}
	for _, name := range names {
		got, err := sha256File(filepath.Join(dir, name))
		if err != nil {
			result.AddError(name, schema.IssueChecksum, fmt.Sprintf("cannot read file: %v", err))
			continue
		}
		if got != want[name] {
			result.AddError(name, schema.IssueChecksum,
				fmt.Sprintf("checksum mismatch: expected %s, got %s", want[name], got))
		}
	}
	return result, nil
}

// VerifyDir checks the directory checksums, loads the bundle and runs the
// bundle verifier over it.
func VerifyDir(ctx context.Context, dir string, v *validation.Verifier) (*schema.ValidationResult, error) {
	result, err := VerifyChecksums(dir)
	if err != nil {
		return nil, err
	}
	b, err := ReadDir(dir)
	if err != nil {
		return nil, err
	}
	bundleResult, err := v.Verify(ctx, b)
	if err != nil {
		return nil, err
	}
	result.Merge(bundleResult)
	return result, nil
}

// sha256Hex computes the SHA-256 hex digest of data.
func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// sha256File computes the SHA-256 hex digest of a file.
func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// parseChecksumFile parses shasum -a 256 output. Each line is
// "<hex>  <filename>" or "<hex> <filename>". Malformed lines are skipped.
func parseChecksumFile(r io.Reader) (map[string]string, error) {
	result := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		hash := parts[0]
		name := strings.TrimPrefix(parts[len(parts)-1], "*")
		if len(hash) != 64 {
			continue
		}
		result[name] = hash
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading checksums: %w", err)
	}
	return result, nil
}
