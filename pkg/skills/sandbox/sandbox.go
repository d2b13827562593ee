// Package sandbox lists, describes and runs the standalone scripts cataloged
// by the loader. Each call starts at most one child process with a literal
// argument vector, a wall-clock timeout that kills the whole process group,
// a cap on captured output and a filtered environment.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ipdelete/agent-base-sub000/pkg/config"
	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/ipdelete/agent-base-sub000/pkg/osutil"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/loader"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/security"
	"github.com/ipdelete/agent-base-sub000/pkg/telemetry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	helpFlag        = "--help"
	parsePrefixSize = 200
)

// Sandbox executes scripts from one script catalog. It has no mutable state,
// so concurrent calls need no coordination.
type Sandbox struct {
	catalog *loader.ScriptCatalog
	cfg     config.SandboxConfig
	// hostEnv is consulted for permissions.env patterns.
	hostEnv func() []string
}

func New(catalog *loader.ScriptCatalog, cfg config.SandboxConfig) *Sandbox {
	d := config.Default().Sandbox
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = d.MaxOutputBytes
	}
	if cfg.MaxArgs <= 0 {
		cfg.MaxArgs = d.MaxArgs
	}
	if cfg.MaxArgBytes <= 0 {
		cfg.MaxArgBytes = d.MaxArgBytes
	}
	if cfg.StderrTailBytes <= 0 {
		cfg.StderrTailBytes = d.StderrTailBytes
	}
	if len(cfg.Interpreters) == 0 {
		cfg.Interpreters = d.Interpreters
	}
	return &Sandbox{catalog: catalog, cfg: cfg, hostEnv: os.Environ}
}

// ListScripts returns the scripts of one skill, or of every loaded skill
// when skill is empty.
func (s *Sandbox) ListScripts(ctx context.Context, skill string) *Result {
	if strings.TrimSpace(skill) == "" {
		res := &Result{Success: true}
		for _, sk := range s.catalog.Skills() {
			res.Skills = append(res.Skills, listing(sk))
		}
		res.Summary = fmt.Sprintf("%d skills, %d scripts", len(res.Skills), s.catalog.Len())
		return res
	}

	canonical, err := security.NormalizeName(skill)
	if err != nil {
		return failed(ErrInvalidName, "invalid skill name: %v", err)
	}
	sk, ok := s.catalog.Skill(canonical)
	if !ok {
		return failed(ErrNotFound, "skill %q is not loaded", skill)
	}

	l := listing(sk)
	logger.G(ctx).WithField("skill", canonical).WithField("scripts", len(l.Scripts)).Debug("listed skill scripts")
	return &Result{
		Success: true,
		Skill:   canonical,
		Skills:  []SkillListing{l},
		Summary: fmt.Sprintf("%d scripts in %s", len(l.Scripts), canonical),
	}
}

func listing(sk *loader.SkillScripts) SkillListing {
	l := SkillListing{Skill: sk.Skill, Scripts: make([]ScriptEntry, 0, len(sk.Scripts))}
	for _, d := range sk.Scripts {
		l.Scripts = append(l.Scripts, ScriptEntry{Name: d.FileName, Path: d.AbsolutePath})
	}
	return l
}

// DescribeScript runs the script with --help and returns its standard output
// as the help text.
func (s *Sandbox) DescribeScript(ctx context.Context, skill, script string) *Result {
	desc, sk, res := s.resolve(skill, script)
	if res != nil {
		return res
	}

	res = s.execute(ctx, "describe", desc, sk, []string{helpFlag}, nil)
	if res.Success {
		res.Summary = fmt.Sprintf("usage for %s/%s", desc.SkillCanonicalName, desc.FileName)
	}
	return res
}

// RunRequest describes one script invocation.
type RunRequest struct {
	Skill    string
	Script   string
	Args     []string
	WantJSON bool
	// Env holds caller-supplied variables. Every name must be allowed by the
	// skill's permissions.env patterns.
	Env map[string]string
}

// RunScript validates the request, runs the script and shapes its output.
func (s *Sandbox) RunScript(ctx context.Context, req RunRequest) *Result {
	if res := s.checkArgs(req.Args); res != nil {
		return res
	}

	desc, sk, res := s.resolve(req.Skill, req.Script)
	if res != nil {
		return res
	}

	res = s.execute(ctx, "run", desc, sk, req.Args, req.Env)
	if !res.Success {
		return res
	}

	if req.WantJSON {
		var parsed any
		if err := json.Unmarshal([]byte(res.Output), &parsed); err != nil {
			out := failed(ErrParseError, "script output is not valid JSON: %v", err)
			out.Skill, out.Script, out.RunID = res.Skill, res.Script, res.RunID
			out.ExitCode, out.ElapsedMS = res.ExitCode, res.ElapsedMS
			out.Output = nonJSONPrefix(res.Output)
			out.StderrTail = res.StderrTail
			out.Truncated = res.Truncated
			return out
		}
		res.Result = parsed
		res.Output = ""
	} else if res.Truncated {
		res.Output += fmt.Sprintf("\n[output truncated at %d bytes]", s.cfg.MaxOutputBytes)
	}

	res.Summary = summarize(desc, res)
	return res
}

func (s *Sandbox) checkArgs(args []string) *Result {
	if len(args) > s.cfg.MaxArgs {
		return failed(ErrArgsTooLarge, "%d arguments exceed the limit of %d", len(args), s.cfg.MaxArgs)
	}
	total := 0
	for _, a := range args {
		total += len(a)
	}
	if total > s.cfg.MaxArgBytes {
		return failed(ErrArgsTooLarge, "%d bytes of arguments exceed the limit of %d", total, s.cfg.MaxArgBytes)
	}
	return nil
}

// resolve maps user-supplied names onto a cataloged script and re-checks
// that the file is still a regular file inside the skill directory.
func (s *Sandbox) resolve(skill, script string) (loader.ScriptDescriptor, *loader.SkillScripts, *Result) {
	var none loader.ScriptDescriptor

	canonicalSkill, err := security.NormalizeName(skill)
	if err != nil {
		return none, nil, failed(ErrInvalidName, "invalid skill name: %v", err)
	}
	canonicalScript, err := security.NormalizeScriptName(script)
	if err != nil {
		return none, nil, failed(ErrInvalidName, "invalid script name: %v", err)
	}

	sk, ok := s.catalog.Skill(canonicalSkill)
	if !ok {
		return none, nil, failed(ErrNotFound, "skill %q is not loaded", skill)
	}
	desc, ok := sk.Find(canonicalScript)
	if !ok {
		return none, nil, failed(ErrNotFound, "script %q not found in skill %s", script, canonicalSkill)
	}

	info, err := os.Lstat(desc.AbsolutePath)
	if err != nil || !info.Mode().IsRegular() {
		return none, nil, failed(ErrNotFound, "script %s is no longer available", desc.FileName)
	}
	if _, err := security.EnsureWithin(sk.Dir, desc.AbsolutePath); err != nil {
		return none, nil, failed(ErrNotFound, "script %s is no longer available", desc.FileName)
	}
	return desc, sk, nil
}

// execute starts the script and waits for it, its timeout or ctx. The child
// never outlives this call.
func (s *Sandbox) execute(ctx context.Context, op string, desc loader.ScriptDescriptor, sk *loader.SkillScripts, args []string, callerEnv map[string]string) *Result {
	runID := uuid.NewString()
	log := logger.G(ctx).WithFields(logrus.Fields{
		"skill":  desc.SkillCanonicalName,
		"script": desc.ScriptCanonicalName,
		"run_id": runID,
		"op":     op,
	})

	base := func(r *Result) *Result {
		r.Skill = desc.SkillCanonicalName
		r.Script = desc.ScriptCanonicalName
		r.RunID = runID
		return r
	}

	interpreter, ok := s.cfg.Interpreter(filepath.Ext(desc.AbsolutePath))
	if !ok {
		return base(failed(ErrExecutionFailed, "no interpreter configured for %s", filepath.Ext(desc.AbsolutePath)))
	}

	env, err := newEnvPolicy(ctx, s.cfg.SafeEnv, sk.EnvPatterns).build(s.hostEnv(), callerEnv)
	if err != nil {
		log.WithError(err).Warn("script environment rejected")
		return base(failed(ErrPermissionDenied, "%v", err))
	}

	var res *Result
	_ = telemetry.WithSpan(ctx, "sandbox."+op, func(ctx context.Context) error {
		res = base(s.spawn(ctx, interpreter, desc, args, env))
		telemetry.SetAttributes(ctx,
			attribute.Int("sandbox.exit_code", res.ExitCode),
			attribute.Bool("sandbox.truncated", res.Truncated),
			attribute.String("sandbox.error", string(res.Error)),
		)
		if !res.Success {
			return errors.New(string(res.Error))
		}
		return nil
	},
		attribute.String("skill", desc.SkillCanonicalName),
		attribute.String("script", desc.ScriptCanonicalName),
		attribute.String("run_id", runID),
		attribute.Int("sandbox.args", len(args)),
	)

	entry := log.WithFields(logrus.Fields{
		"elapsed_ms": res.ElapsedMS,
		"exit_code":  res.ExitCode,
	})
	if res.Success {
		entry.Debug("script finished")
	} else {
		entry.WithField("error", res.Error).Warn("script failed")
	}
	return res
}

func (s *Sandbox) spawn(ctx context.Context, interpreter []string, desc loader.ScriptDescriptor, args, env []string) *Result {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	argv := make([]string, 0, len(interpreter)+len(args))
	argv = append(argv, interpreter[1:]...)
	argv = append(argv, desc.AbsolutePath)
	argv = append(argv, args...)

	cmd := exec.CommandContext(runCtx, interpreter[0], argv...)
	cmd.Dir = filepath.Dir(desc.AbsolutePath)
	cmd.Env = env
	stdout := newCappedBuffer(s.cfg.MaxOutputBytes)
	stderr := newTailBuffer(s.cfg.StderrTailBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	osutil.SetProcessGroup(cmd)
	osutil.SetProcessGroupKill(cmd)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	if err := osutil.KillProcessGroup(cmd); err != nil {
		logger.G(ctx).WithError(err).WithField("pid", cmd.Process.Pid).Warn("failed to kill script process group")
	}

	res := &Result{
		Truncated:  stdout.Truncated(),
		StderrTail: string(stderr.Bytes()),
		ElapsedMS:  elapsed.Milliseconds(),
		ExitCode:   -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	out := stdout.Bytes()

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			res.Error = ErrExecutionFailed
			res.Message = "script cancelled by caller"
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			res.Error = ErrTimeout
			res.Message = fmt.Sprintf("script exceeded the %s timeout", s.cfg.Timeout)
		case errors.Is(runErr, exec.ErrWaitDelay):
			res.Error = ErrExecutionFailed
			res.Message = "script exited but a background process kept its output open; the process group was killed"
			res.Output = strings.ToValidUTF8(string(out), "\uFFFD")
		case errors.As(runErr, &exitErr):
			res.Error = ErrExecutionFailed
			res.Message = fmt.Sprintf("script exited with code %d", res.ExitCode)
		default:
			res.Error = ErrExecutionFailed
			res.Message = fmt.Sprintf("failed to start script: %v", runErr)
		}
		res.StderrTail = strings.ToValidUTF8(res.StderrTail, "\uFFFD")
		return res
	}

	if !utf8.Valid(out) || !utf8.ValidString(res.StderrTail) {
		res.Error = ErrExecutionFailed
		res.Message = "script output is not valid UTF-8"
		res.StderrTail = strings.ToValidUTF8(res.StderrTail, "\uFFFD")
		return res
	}

	res.Success = true
	res.Output = string(out)
	return res
}

func summarize(desc loader.ScriptDescriptor, res *Result) string {
	msg := fmt.Sprintf("%s/%s exited 0 in %s", desc.SkillCanonicalName, desc.FileName, res.Elapsed())
	if res.Truncated {
		msg += ", output truncated"
	}
	return msg
}

// nonJSONPrefix returns the leading text that kept the output from parsing:
// everything before the first '{' or '[', or the first bytes of the output
// when it contains no JSON at all.
func nonJSONPrefix(out string) string {
	prefix := out
	if i := strings.IndexAny(out, "{["); i > 0 {
		prefix = out[:i]
	}
	if len(prefix) > parsePrefixSize {
		prefix = strings.ToValidUTF8(prefix[:parsePrefixSize], "")
	}
	return prefix
}
