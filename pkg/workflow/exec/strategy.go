// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package exec implements the task executor: condition gating, input
// resolution, execution-strategy selection, process supervision with
// timeout/cancel, retry, and output capture.
package exec

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/cryonayes/workflow-engine-sub000/pkg/workflow"
)

// sortedEnvKeys returns env's keys in sorted order, so generated command
// lines (docker -e flags, ssh export statements) are deterministic.
func sortedEnvKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RunConfig is what a Strategy produces to describe how to invoke a task.
type RunConfig struct {
	Executable string
	Args       []string
	Cwd        string

	// EnvAction selects how the executor should pass environment: for Local
	// the full process environment is inherited and EnvOverlay appended; for
	// Docker/SSH only EnvOverlay (the declared environment) is passed through.
	EnvAction EnvAction
	EnvOverlay map[string]string
}

// EnvAction enumerates how a strategy wants the executor to supply env vars
// to the child process.
type EnvAction int

const (
	// EnvInheritAndOverlay inherits the host process environment and layers
	// EnvOverlay on top (local execution).
	EnvInheritAndOverlay EnvAction = iota
	// EnvOverlayOnly passes only EnvOverlay; the host environment is not
	// leaked to the child (docker/ssh execution, where env is baked into the
	// remote command line instead of the local process environment).
	EnvOverlayOnly
)

// Strategy selects and builds the invocation for one task.
type Strategy interface {
	// Priority orders strategy selection: lower runs first. SSH=10,
	// Docker=20, Local=100.
	Priority() int
	// CanHandle reports whether this strategy applies to t, given wf's
	// workflow-level defaults.
	CanHandle(wf *workflow.Workflow, t *workflow.WorkflowTask) bool
	// BuildConfig produces the RunConfig for running cmd (the already
	// interpolated shell command) as t.
	BuildConfig(wf *workflow.Workflow, t *workflow.WorkflowTask, cmd string, declaredEnv map[string]string) (*RunConfig, error)
}

// EffectiveDocker returns t's docker config merged over wf's, or nil when
// docker is not in effect for t.
func EffectiveDocker(wf *workflow.Workflow, t *workflow.WorkflowTask) *workflow.DockerConfig {
	merged := t.Docker.MergeWith(wf.Docker)
	if merged == nil || !merged.IsValid() {
		return nil
	}
	return merged
}

// EffectiveSsh returns t's ssh config merged over wf's, or nil when ssh is
// not in effect for t.
func EffectiveSsh(wf *workflow.Workflow, t *workflow.WorkflowTask) *workflow.SshConfig {
	merged := t.Ssh.MergeWith(wf.Ssh)
	if merged == nil || !merged.IsValid() {
		return nil
	}
	return merged
}

// --- Local ---------------------------------------------------------------

// LocalStrategy runs the command in a shell on the local host.
type LocalStrategy struct{}

func (LocalStrategy) Priority() int { return 100 }

func (LocalStrategy) CanHandle(wf *workflow.Workflow, t *workflow.WorkflowTask) bool {
	return EffectiveDocker(wf, t) == nil && EffectiveSsh(wf, t) == nil
}

func (LocalStrategy) BuildConfig(wf *workflow.Workflow, t *workflow.WorkflowTask, cmd string, declaredEnv map[string]string) (*RunConfig, error) {
	shell := resolveShell(wf, t)
	executable, args := shellInvocation(shell, cmd)
	cwd := t.WorkingDirectory
	if cwd == "" {
		cwd = wf.WorkingDirectory
	}
	return &RunConfig{
		Executable: executable,
		Args:       args,
		Cwd:        cwd,
		EnvAction:  EnvInheritAndOverlay,
		EnvOverlay: declaredEnv,
	}, nil
}

// resolveShell picks task > workflow > platform default.
func resolveShell(wf *workflow.Workflow, t *workflow.WorkflowTask) string {
	if t.Shell != "" {
		return t.Shell
	}
	if wf.Shell != "" {
		return wf.Shell
	}
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	return "bash"
}

func shellInvocation(shell, cmd string) (string, []string) {
	if shell == "cmd" {
		return shell, []string{"/C", cmd}
	}
	return shell, []string{"-c", cmd}
}

// --- Docker ----------------------------------------------------------------

// DockerStrategy runs the command inside a running container via `docker exec`.
type DockerStrategy struct{}

func (DockerStrategy) Priority() int { return 20 }

func (DockerStrategy) CanHandle(wf *workflow.Workflow, t *workflow.WorkflowTask) bool {
	return EffectiveSsh(wf, t) == nil && EffectiveDocker(wf, t) != nil
}

func (DockerStrategy) BuildConfig(wf *workflow.Workflow, t *workflow.WorkflowTask, cmd string, declaredEnv map[string]string) (*RunConfig, error) {
	docker := EffectiveDocker(wf, t)
	shell := resolveShell(wf, t)

	args := []string{"exec"}
	if docker.EffectiveInteractive() {
		args = append(args, "-i")
	}
	if docker.TTY {
		args = append(args, "-t")
	}
	if docker.Privileged {
		args = append(args, "--privileged")
	}
	if docker.User != "" {
		args = append(args, "-u", docker.User)
	}

	cwd := t.WorkingDirectory
	if cwd == "" {
		cwd = wf.WorkingDirectory
	}
	if cwd != "" {
		args = append(args, "-w", cwd)
	}

	for _, k := range sortedEnvKeys(declaredEnv) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, declaredEnv[k]))
	}
	args = append(args, docker.ExtraArgs...)
	args = append(args, docker.Container)

	shellExec, shellArgs := shellInvocation(shell, cmd)
	args = append(args, shellExec)
	args = append(args, shellArgs...)

	return &RunConfig{
		Executable: "docker",
		Args:       args,
		EnvAction:  EnvOverlayOnly,
	}, nil
}

// --- SSH ---------------------------------------------------------------

// SshStrategy runs the command over SSH on a remote host.
type SshStrategy struct{}

func (SshStrategy) Priority() int { return 10 }

func (SshStrategy) CanHandle(wf *workflow.Workflow, t *workflow.WorkflowTask) bool {
	return EffectiveSsh(wf, t) != nil
}

func (SshStrategy) BuildConfig(wf *workflow.Workflow, t *workflow.WorkflowTask, cmd string, declaredEnv map[string]string) (*RunConfig, error) {
	ssh := EffectiveSsh(wf, t)
	shell := resolveShell(wf, t)

	args := []string{"-o", "BatchMode=yes"}
	if ssh.ConnectTimeoutSec > 0 {
		args = append(args, "-o", fmt.Sprintf("ConnectTimeout=%d", ssh.ConnectTimeoutSec))
	}
	if ssh.EffectiveStrictHostKeyChecking() {
		args = append(args, "-o", "StrictHostKeyChecking=yes")
	} else {
		args = append(args, "-o", "StrictHostKeyChecking=no")
	}
	if ssh.IdentityFile != "" {
		args = append(args, "-i", ssh.IdentityFile)
	}
	if ssh.Port != 0 {
		args = append(args, "-p", fmt.Sprintf("%d", ssh.Port))
	}
	args = append(args, ssh.ExtraArgs...)
	args = append(args, fmt.Sprintf("%s@%s", ssh.User, ssh.Host))

	args = append(args, remoteCommand(shell, cmd, t, wf, declaredEnv))

	return &RunConfig{
		Executable: "ssh",
		Args:       args,
		EnvAction:  EnvOverlayOnly,
	}, nil
}

// remoteCommand builds the single shell string sent over the SSH session:
// export K='V' && ... && cd '<wd>' && <shell> <flag> '<cmd>'. Environment
// values, the working directory and the command are always wrapped in single
// quotes (an embedded ' becomes '\''); the shell name and its flag are quoted
// only when they contain shell metacharacters.
func remoteCommand(shell, cmd string, t *workflow.WorkflowTask, wf *workflow.Workflow, declaredEnv map[string]string) string {
	quote := func(s string) string {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	var parts []string
	for _, k := range sortedEnvKeys(declaredEnv) {
		parts = append(parts, fmt.Sprintf("export %s=%s", k, quote(declaredEnv[k])))
	}

	cwd := t.WorkingDirectory
	if cwd == "" {
		cwd = wf.WorkingDirectory
	}
	if cwd != "" {
		parts = append(parts, fmt.Sprintf("cd %s", quote(cwd)))
	}

	shellExec, shellArgs := shellInvocation(shell, cmd)
	invocation := shellescape.Quote(shellExec)
	for _, a := range shellArgs[:len(shellArgs)-1] {
		invocation += " " + shellescape.Quote(a)
	}
	invocation += " " + quote(shellArgs[len(shellArgs)-1])
	parts = append(parts, invocation)

	result := parts[0]
	for _, p := range parts[1:] {
		result += " && " + p
	}
	return result
}

// Strategies returns the fixed-priority strategy list used by the executor.
func Strategies() []Strategy {
	return []Strategy{SshStrategy{}, DockerStrategy{}, LocalStrategy{}}
}

// Select runs CanHandle in priority order and returns the first match.
func Select(wf *workflow.Workflow, t *workflow.WorkflowTask) Strategy {
	for _, s := range Strategies() {
		if s.CanHandle(wf, t) {
			return s
		}
	}
	return LocalStrategy{}
}
