package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"codeact/internal/codeact"
	"codeact/internal/codeact/workspace"
)

// LocalSandboxClient implements SandboxClient against the local
// filesystem and shell, for running the control loop without a
// standalone sandbox HTTP service (single-tenant/dev deployments).
// write_code/patch_code/replace_code_block/write_file/read_file route
// through component C (internal/codeact/workspace); terminal_run shells
// out with os/exec under the same timeout the sandbox HTTP contract
// documents.
type LocalSandboxClient struct {
	root    string
	timeout time.Duration
}

// NewLocalSandboxClient roots every path-bearing action under root.
// timeout bounds terminal_run; zero falls back to 30s.
func NewLocalSandboxClient(root string, timeout time.Duration) *LocalSandboxClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalSandboxClient{root: root, timeout: timeout}
}

func (s *LocalSandboxClient) Execute(ctx context.Context, action codeact.Action, uuid, userID string) (codeact.ActionResult, error) {
	switch action.Type {
	case codeact.ActionReadFile:
		return s.readFile(action)
	case codeact.ActionWriteCode, codeact.ActionWriteFile:
		return s.writeFile(action)
	case codeact.ActionPatchCode:
		return s.patchCode(action)
	case codeact.ActionReplaceCodeBlock:
		return s.replaceCodeBlock(action)
	case codeact.ActionTerminalRun:
		return s.terminalRun(ctx, action)
	default:
		return codeact.ActionResult{}, fmt.Errorf("local sandbox does not implement action type %q", action.Type)
	}
}

func (s *LocalSandboxClient) resolve(rel string) (string, error) {
	return workspace.Resolve(s.root, rel)
}

func (s *LocalSandboxClient) readFile(action codeact.Action) (codeact.ActionResult, error) {
	path, err := s.resolve(action.Param("path"))
	if err != nil {
		return codeact.ActionResult{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return codeact.ActionResult{Status: codeact.StatusFailure, Error: err.Error()}, nil
	}
	return codeact.ActionResult{Status: codeact.StatusSuccess, Content: string(b)}, nil
}

func (s *LocalSandboxClient) writeFile(action codeact.Action) (codeact.ActionResult, error) {
	path, err := s.resolve(action.Param("path"))
	if err != nil {
		return codeact.ActionResult{}, err
	}
	content := action.Param("content")
	if err := workspace.CheckPyGuardrail(path, content); err != nil {
		return codeact.ActionResult{Status: codeact.StatusFailure, Error: err.Error()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return codeact.ActionResult{}, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return codeact.ActionResult{Status: codeact.StatusFailure, Error: err.Error()}, nil
	}
	return codeact.ActionResult{Status: codeact.StatusSuccess, Content: fmt.Sprintf("wrote %s", action.Param("path"))}, nil
}

func (s *LocalSandboxClient) patchCode(action codeact.Action) (codeact.ActionResult, error) {
	path, err := s.resolve(action.Param("path"))
	if err != nil {
		return codeact.ActionResult{}, err
	}
	current, err := os.ReadFile(path)
	if err != nil {
		return codeact.ActionResult{Status: codeact.StatusFailure, Error: err.Error()}, nil
	}
	patched, err := workspace.ApplyPatch(string(current), action.Param("diff"))
	if err != nil {
		return codeact.ActionResult{Status: codeact.StatusFailure, Error: err.Error()}, nil
	}
	if err := workspace.CheckPyGuardrail(path, patched); err != nil {
		return codeact.ActionResult{Status: codeact.StatusFailure, Error: err.Error()}, nil
	}
	if err := os.WriteFile(path, []byte(patched), 0o644); err != nil {
		return codeact.ActionResult{Status: codeact.StatusFailure, Error: err.Error()}, nil
	}
	return codeact.ActionResult{Status: codeact.StatusSuccess, Content: fmt.Sprintf("patched %s", action.Param("path"))}, nil
}

func (s *LocalSandboxClient) replaceCodeBlock(action codeact.Action) (codeact.ActionResult, error) {
	path, err := s.resolve(action.Param("path"))
	if err != nil {
		return codeact.ActionResult{}, err
	}
	current, err := os.ReadFile(path)
	if err != nil {
		return codeact.ActionResult{Status: codeact.StatusFailure, Error: err.Error()}, nil
	}
	replaced, err := workspace.ReplaceCodeBlock(string(current), action.Param("code_block"))
	if err != nil {
		res := codeact.ActionResult{Status: codeact.StatusFailure, Content: replaced, Error: err.Error()}
		if errors.Is(err, workspace.ErrNoOp) {
			res.Meta.KeyID = workspace.NoOpKeyID
		}
		var ambiguous *workspace.AmbiguousError
		if errors.As(err, &ambiguous) {
			res.Meta.KeyID = ambiguous.KeyID
		}
		return res, nil
	}
	if err := workspace.CheckPyGuardrail(path, replaced); err != nil {
		return codeact.ActionResult{Status: codeact.StatusFailure, Error: err.Error()}, nil
	}
	if err := os.WriteFile(path, []byte(replaced), 0o644); err != nil {
		return codeact.ActionResult{Status: codeact.StatusFailure, Error: err.Error()}, nil
	}
	return codeact.ActionResult{Status: codeact.StatusSuccess, Content: fmt.Sprintf("replaced block in %s", action.Param("path"))}, nil
}

func (s *LocalSandboxClient) terminalRun(ctx context.Context, action codeact.Action) (codeact.ActionResult, error) {
	command := action.Param("command")
	args := strings.Fields(action.Param("args"))
	cwd := s.root
	if rel := action.Param("cwd"); rel != "" {
		resolved, err := s.resolve(rel)
		if err != nil {
			return codeact.ActionResult{}, err
		}
		cwd = resolved
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command, args...)
	cmd.Dir = cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return codeact.ActionResult{
				Status: codeact.StatusFailure,
				Stdout: stdout.String(),
				Stderr: stderr.String(),
				Error:  fmt.Sprintf("command timed out after %s", s.timeout),
			}, nil
		} else {
			return codeact.ActionResult{}, err
		}
	}

	result := codeact.ActionResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Meta:   codeact.ActionMeta{ExitCode: &exitCode},
	}
	if exitCode == 0 {
		result.Status = codeact.StatusSuccess
		result.Content = result.Stdout
	} else {
		result.Status = codeact.StatusFailure
		result.Error = fmt.Sprintf("command exited with status %d", exitCode)
		result.Content = result.Stdout + result.Stderr
	}
	return result, nil
}
