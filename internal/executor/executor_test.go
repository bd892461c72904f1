package executor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jn-run/jn/internal/jnerrors"
	"github.com/jn-run/jn/internal/pipeline"
	"github.com/jn-run/jn/internal/registry"
	"github.com/jn-run/jn/pkg/jnplugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upperScript = `#!/bin/sh
tr 'a-z' 'A-Z'
`

const reverseScript = `#!/bin/sh
rev
`

const failScript = `#!/bin/sh
echo "boom" 1>&2
exit 3
`

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}

func descriptorFor(path string, modes ...jnplugin.Mode) *registry.PluginDescriptor {
	return &registry.PluginDescriptor{
		Name:           filepath.Base(path),
		ExecutablePath: path,
		Modes:          modes,
		Role:           jnplugin.RoleFormat,
	}
}

func falseBool() *bool {
	b := false
	return &b
}

func TestExecute_SingleStage_FileToStdout(t *testing.T) {
	dir := t.TempDir()
	upper := writeScript(t, dir, "upper.sh", upperScript)

	inputFile := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(inputFile, []byte("hello\n"), 0o644))

	p := &pipeline.Pipeline{
		Stages: []pipeline.Stage{{Descriptor: descriptorFor(upper, jnplugin.ModeRead), Mode: jnplugin.ModeRead, Label: "upper"}},
		Input:  pipeline.InputSpec{FilePath: inputFile},
		Output: pipeline.OutputSpec{ToStdout: true},
	}

	var out bytes.Buffer
	res, err := Execute(context.Background(), p, nil, &out, &bytes.Buffer{}, Options{ParentStderrIsTTY: falseBool()})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "HELLO\n", out.String())
}

func TestExecute_TwoStageChain_PipesConnect(t *testing.T) {
	dir := t.TempDir()
	upper := writeScript(t, dir, "upper.sh", upperScript)
	reverse := writeScript(t, dir, "reverse.sh", reverseScript)

	p := &pipeline.Pipeline{
		Stages: []pipeline.Stage{
			{Descriptor: descriptorFor(upper, jnplugin.ModeRead), Mode: jnplugin.ModeRead, Label: "upper"},
			{Descriptor: descriptorFor(reverse, jnplugin.ModeFilter), Mode: jnplugin.ModeFilter, Label: "reverse"},
		},
		Input:  pipeline.InputSpec{FromStdin: true},
		Output: pipeline.OutputSpec{ToStdout: true},
	}

	var out bytes.Buffer
	in := bytes.NewBufferString("abc\n")
	res, err := Execute(context.Background(), p, in, &out, &bytes.Buffer{}, Options{ParentStderrIsTTY: falseBool()})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "CBA\n", out.String())
}

func TestExecute_AtomicWriteRenamesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	upper := writeScript(t, dir, "upper.sh", upperScript)
	target := filepath.Join(dir, "out.txt")
	temp := filepath.Join(dir, ".out.txt.jn-tmp")

	p := &pipeline.Pipeline{
		Stages: []pipeline.Stage{{Descriptor: descriptorFor(upper, jnplugin.ModeWrite), Mode: jnplugin.ModeWrite, Label: "upper"}},
		Input:  pipeline.InputSpec{FromStdin: true},
		Output: pipeline.OutputSpec{FilePath: target, Atomic: true, TempPath: temp},
	}

	in := bytes.NewBufferString("x\n")
	res, err := Execute(context.Background(), p, in, nil, &bytes.Buffer{}, Options{ParentStderrIsTTY: falseBool()})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	_, statErr := os.Stat(temp)
	assert.True(t, os.IsNotExist(statErr), "temp file should be renamed away")
	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "X\n", string(contents))
}

func TestExecute_StageFailureReported(t *testing.T) {
	dir := t.TempDir()
	fail := writeScript(t, dir, "fail.sh", failScript)

	p := &pipeline.Pipeline{
		Stages: []pipeline.Stage{{Descriptor: descriptorFor(fail, jnplugin.ModeRead), Mode: jnplugin.ModeRead, Label: "fail"}},
		Input:  pipeline.InputSpec{FromStdin: true},
		Output: pipeline.OutputSpec{ToStdout: true},
	}

	var out, errOut bytes.Buffer
	in := bytes.NewBufferString("")
	res, err := Execute(context.Background(), p, in, &out, &errOut, Options{ParentStderrIsTTY: falseBool()})
	require.Error(t, err)
	var stageFailure *jnerrors.StageFailure
	require.ErrorAs(t, err, &stageFailure)
	assert.Equal(t, 3, stageFailure.ExitCode)
	assert.NotEqual(t, 0, res.ExitCode)
	require.Len(t, res.Stages, 1)
	assert.Contains(t, res.Stages[0].StderrTail, "boom\n")
}

func TestExecute_Cancellation_TerminatesChildren(t *testing.T) {
	dir := t.TempDir()
	sleeper := writeScript(t, dir, "sleep.sh", "#!/bin/sh\nsleep 30\n")

	p := &pipeline.Pipeline{
		Stages: []pipeline.Stage{{Descriptor: descriptorFor(sleeper, jnplugin.ModeRead), Mode: jnplugin.ModeRead, Label: "sleeper"}},
		Input:  pipeline.InputSpec{FromStdin: true},
		Output: pipeline.OutputSpec{ToStdout: true},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var out bytes.Buffer
	go func() {
		Execute(ctx, p, bytes.NewBufferString(""), &out, &bytes.Buffer{}, Options{ParentStderrIsTTY: falseBool()})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("execute did not return after cancellation")
	}
}

// TestExecute_EarlyTerminationIsSuccess runs an unbounded producer into
// a consumer that reads a fixed number of lines and exits: the producer
// dies on SIGPIPE, which must be reclassified as a clean exit.
func TestExecute_EarlyTerminationIsSuccess(t *testing.T) {
	dir := t.TempDir()
	producer := writeScript(t, dir, "producer.sh", "#!/bin/sh\nwhile :; do echo '{\"x\":1}'; done\n")
	consumer := writeScript(t, dir, "consumer.sh", "#!/bin/sh\nhead -n 10\n")

	p := &pipeline.Pipeline{
		Stages: []pipeline.Stage{
			{Descriptor: descriptorFor(producer, jnplugin.ModeRead), Mode: jnplugin.ModeRead, Label: "producer"},
			{Descriptor: descriptorFor(consumer, jnplugin.ModeFilter), Mode: jnplugin.ModeFilter, Label: "consumer"},
		},
		Input:  pipeline.InputSpec{FromStdin: true},
		Output: pipeline.OutputSpec{ToStdout: true},
	}

	var out bytes.Buffer
	res, err := Execute(context.Background(), p, bytes.NewBufferString(""), &out, &bytes.Buffer{}, Options{ParentStderrIsTTY: falseBool()})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, 10, bytes.Count(out.Bytes(), []byte("\n")))
}

func TestReclassifyBrokenPipes(t *testing.T) {
	results := []StageResult{
		{Label: "producer", ExitCode: -1, Signal: "SIGPIPE"},
		{Label: "consumer", ExitCode: 0},
	}
	reclassifyBrokenPipes(results)
	assert.Equal(t, 0, results[0].ExitCode)
	assert.Equal(t, "", results[0].Signal)
}

func TestReclassifyBrokenPipes_RealFailureUntouched(t *testing.T) {
	results := []StageResult{
		{Label: "producer", ExitCode: 1},
		{Label: "consumer", ExitCode: 0},
	}
	reclassifyBrokenPipes(results)
	assert.Equal(t, 1, results[0].ExitCode)
}
