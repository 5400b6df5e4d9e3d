// Package ffmpeg wraps invocation of the external encoder binary: building
// one command, running it, and surfacing progress and completion through
// caller supplied hooks.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

const stderrTailLines = 40

// Command is a single encoder invocation. A handle supports at most one
// Build: building twice is a programming error and panics.
type Command struct {
	log    logger.Logger
	binary string

	inputs        []input
	outputOptions []string
	complexFilter string
	videoFilter   string
	output        string
	workingDir    string
	niceness      int
	threads       int

	// duration of the source, used to turn time= stderr lines into percents
	inputDuration float64

	// OnStart fires right after the encoder process started reading its
	// inputs. OnProgress receives a clamped 0-100 integer. OnEnd / OnError
	// fire exactly once, before Run returns.
	OnStart    func()
	OnProgress func(percent int)
	OnEnd      func()
	OnError    func(err error)

	built bool
	args  []string
}

type input struct {
	path    string
	options []string
}

func NewCommand(log logger.Logger, binary string) *Command {
	return &Command{log: log, binary: binary}
}

// AddInput appends an input with its per-input options (placed before -i)
func (c *Command) AddInput(path string, options ...string) *Command {
	c.inputs = append(c.inputs, input{path: path, options: options})
	return c
}

func (c *Command) OutputOptions(options ...string) *Command {
	c.outputOptions = append(c.outputOptions, options...)
	return c
}

func (c *Command) ComplexFilter(graph string) *Command {
	c.complexFilter = graph
	return c
}

func (c *Command) VideoFilter(filter string) *Command {
	c.videoFilter = filter
	return c
}

func (c *Command) Output(path string) *Command {
	c.output = path
	return c
}

// OutputPath returns the configured output path
func (c *Command) OutputPath() string {
	return c.output
}

func (c *Command) WorkingDir(dir string) *Command {
	c.workingDir = dir
	return c
}

func (c *Command) Niceness(n int) *Command {
	c.niceness = n
	return c
}

func (c *Command) Threads(n int) *Command {
	c.threads = n
	return c
}

func (c *Command) InputDuration(seconds float64) *Command {
	c.inputDuration = seconds
	return c
}

// Build assembles the argument list. Calling it a second time panics.
func (c *Command) Build() []string {
	if c.built {
		panic("ffmpeg: Build called twice on the same command handle")
	}
	c.built = true

	args := []string{"-y", "-hide_banner"}

	for _, in := range c.inputs {
		args = append(args, in.options...)
		args = append(args, "-i", in.path)
	}

	if c.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(c.threads))
	}
	if c.complexFilter != "" {
		args = append(args, "-filter_complex", c.complexFilter)
	}
	if c.videoFilter != "" {
		args = append(args, "-vf", c.videoFilter)
	}

	args = append(args, c.outputOptions...)
	args = append(args, c.output)

	c.args = args
	return args
}

// Run executes the command and blocks until the process exits. A non-zero
// exit rejects with the captured stderr tail. OnEnd and OnError fire before
// the result is returned, so cleanup registered there runs exactly once.
func (c *Command) Run(ctx context.Context) error {
	if !c.built {
		c.Build()
	}

	name := c.binary
	args := c.args
	if c.niceness > 0 {
		args = append([]string{"-n", strconv.Itoa(c.niceness), c.binary}, args...)
		name = "nice"
	}

	c.log.Debug("running encoder command",
		logger.String("binary", c.binary),
		logger.String("args", strings.Join(c.args, " ")))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.workingDir

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return c.fail(fmt.Errorf("cannot open encoder stderr: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return c.fail(fmt.Errorf("cannot start encoder: %w", err))
	}

	if c.OnStart != nil {
		c.OnStart()
	}

	tail := make([]string, 0, stderrTailLines)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}

		if c.OnProgress != nil {
			if percent, ok := parseProgressLine(line, c.inputDuration); ok {
				c.OnProgress(percent)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		return c.fail(fmt.Errorf("encoder exited with error: %w\n%s", err, strings.Join(tail, "\n")))
	}

	if c.OnProgress != nil {
		c.OnProgress(100)
	}
	if c.OnEnd != nil {
		c.OnEnd()
	}
	return nil
}

func (c *Command) fail(err error) error {
	if c.OnError != nil {
		c.OnError(err)
	}
	return err
}

// parseProgressLine extracts a clamped 0-100 percentage from an encoder
// stats line ("... time=00:01:02.34 ...") given the input duration
func parseProgressLine(line string, duration float64) (int, bool) {
	if duration <= 0 {
		return 0, false
	}

	idx := strings.Index(line, "time=")
	if idx < 0 {
		return 0, false
	}

	raw := line[idx+len("time="):]
	if end := strings.IndexByte(raw, ' '); end >= 0 {
		raw = raw[:end]
	}

	seconds, ok := parseTimestamp(raw)
	if !ok {
		return 0, false
	}

	percent := int(seconds / duration * 100)
	return clampPercent(percent), true
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// parseTimestamp converts "HH:MM:SS.ss" to seconds
func parseTimestamp(raw string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return 0, false
	}

	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	return float64(hours*3600+minutes*60) + seconds, true
}
