package extractor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"posevault/internal/domain"
	"posevault/internal/extractor"
)

var _ domain.PoseExtractor = (*extractor.Runner)(nil)

// writeScripts lays stub engine scripts into a temp dir. They are plain
// shell scripts and the runner is pointed at /bin/sh instead of a Python
// interpreter, which keeps these tests hermetic.
func writeScripts(t *testing.T, diagnose, extract string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "diagnose.py"), []byte(diagnose), 0o755); err != nil {
		t.Fatalf("write diagnose stub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "extract_pose.py"), []byte(extract), 0o755); err != nil {
		t.Fatalf("write extract stub: %v", err)
	}
	return dir
}

const diagnoseOK = `echo '{"python_version":"3.11","dependencies":{"cv2":true,"mediapipe":true,"numpy":true},"all_dependencies_available":true}'
`

func TestRunner_Verify(t *testing.T) {
	dir := writeScripts(t, diagnoseOK, "")
	r := extractor.NewRunner("/bin/sh", dir, 5*time.Second)

	if err := r.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestRunner_Verify_MissingDependencies(t *testing.T) {
	diag := `echo '{"python_version":"3.11","dependencies":{"cv2":true,"mediapipe":false,"numpy":false},"all_dependencies_available":false}'
`
	dir := writeScripts(t, diag, "")
	r := extractor.NewRunner("/bin/sh", dir, 5*time.Second)

	err := r.Verify(context.Background())
	var depErr *domain.DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyError, got %v", err)
	}
	if len(depErr.Missing) != 2 || depErr.Missing[0] != "mediapipe" || depErr.Missing[1] != "numpy" {
		t.Fatalf("expected missing [mediapipe numpy], got %v", depErr.Missing)
	}
}

func TestRunner_Extract(t *testing.T) {
	extract := `echo "loading model"
echo '{"success":true,"keypoints":[{"id":0,"name":"NOSE","x":0.5,"y":0.2,"z":0.0,"visibility":0.9}],"keypoints_count":1,"confidence":0.9,"image_dimensions":{"width":320,"height":240},"pose_detected":true}'
`
	dir := writeScripts(t, diagnoseOK, extract)
	r := extractor.NewRunner("/bin/sh", dir, 5*time.Second)

	result, err := r.Extract(context.Background(), "ignored.jpg")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Keypoints) != 1 || result.Keypoints[0].Name != "NOSE" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ImageWidth != 320 || result.ImageHeight != 240 {
		t.Fatalf("unexpected dimensions: %dx%d", result.ImageWidth, result.ImageHeight)
	}
}

func TestRunner_Extract_NoPose(t *testing.T) {
	extract := `echo '{"success":false,"error":"no pose detected","keypoints":[],"pose_detected":false}'
`
	dir := writeScripts(t, diagnoseOK, extract)
	r := extractor.NewRunner("/bin/sh", dir, 5*time.Second)

	_, err := r.Extract(context.Background(), "ignored.jpg")
	if !errors.Is(err, domain.ErrNoPose) {
		t.Fatalf("expected ErrNoPose, got %v", err)
	}
}

func TestRunner_Extract_StderrIsNotFailure(t *testing.T) {
	extract := `echo "WARNING: gpu not found" >&2
echo '{"keypoints":[{"x":0.2}]}'
`
	dir := writeScripts(t, diagnoseOK, extract)
	r := extractor.NewRunner("/bin/sh", dir, 5*time.Second)

	result, err := r.Extract(context.Background(), "ignored.jpg")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Keypoints) != 1 {
		t.Fatalf("expected 1 keypoint, got %d", len(result.Keypoints))
	}
}

func TestRunner_Extract_ProcessFailure(t *testing.T) {
	extract := `echo "cannot open image" >&2
exit 3
`
	dir := writeScripts(t, diagnoseOK, extract)
	r := extractor.NewRunner("/bin/sh", dir, 5*time.Second)

	_, err := r.Extract(context.Background(), "ignored.jpg")
	var procErr *domain.ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if procErr.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", procErr.ExitCode)
	}
	if !strings.Contains(procErr.Diagnostic, "cannot open image") {
		t.Fatalf("expected diagnostic to carry stderr, got %q", procErr.Diagnostic)
	}
}

func TestRunner_Extract_Timeout(t *testing.T) {
	dir := writeScripts(t, diagnoseOK, "sleep 2\n")
	r := extractor.NewRunner("/bin/sh", dir, 200*time.Millisecond)

	start := time.Now()
	_, err := r.Extract(context.Background(), "ignored.jpg")
	var timeoutErr *domain.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.Limit != 200*time.Millisecond {
		t.Fatalf("expected limit 200ms, got %v", timeoutErr.Limit)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("child was not terminated at the limit, ran %v", elapsed)
	}
}

func TestRunner_Extract_DependenciesMissingShortCircuits(t *testing.T) {
	diag := `echo '{"dependencies":{"cv2":false,"mediapipe":true,"numpy":true},"all_dependencies_available":false}'
`
	// The extraction stub would leave a marker file if it ever ran.
	dir := writeScripts(t, diag, `touch "$(dirname "$0")/ran"`+"\n")
	r := extractor.NewRunner("/bin/sh", dir, 5*time.Second)

	_, err := r.Extract(context.Background(), "ignored.jpg")
	var depErr *domain.DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ran")); !os.IsNotExist(err) {
		t.Fatal("extraction ran despite a failed self-check")
	}
}
