package proctree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/strace-analyzer/internal/callparser"
	"github.com/mrzor/strace-analyzer/internal/traceformat"
)

func spawn(t *testing.T, p *Plugin, parent int, child string) {
	t.Helper()
	require.NoError(t, p.recordSpawn(&callparser.CallEvent{
		Name: "clone", Pid: parent, HasPid: true, RetVal: child,
	}))
}

func TestProctreeSpawnLinksChild(t *testing.T) {
	p := New()
	spawn(t, p, 100, "101")

	child := p.procs.get(101)
	require.NotNil(t, child)
	assert.True(t, child.hasParent)
	assert.Equal(t, 100, child.parent)
	assert.Equal(t, []int{101}, p.procs.get(100).children)
}

func TestProctreeFailedCloneIgnored(t *testing.T) {
	p := New()
	require.NoError(t, p.recordSpawn(&callparser.CallEvent{
		Name: "clone", Pid: 100, HasPid: true, RetVal: "-1", ErrName: "EAGAIN",
	}))
	assert.Empty(t, p.procs.nodes)
}

func TestProctreeExecAttachesCommand(t *testing.T) {
	p := New()
	require.NoError(t, p.recordExec(&callparser.CallEvent{
		Name: "execve", Pid: 100, HasPid: true, RetVal: "0",
		Args: []string{`"/usr/bin/ls"`, `["ls", "-la"]`, "0x7ffd"},
	}))
	assert.Equal(t, "/usr/bin/ls", p.procs.get(100).command)
}

func TestProctreeExitRecorded(t *testing.T) {
	p := New()
	require.NoError(t, p.recordExit(&callparser.CallEvent{
		Name: "exit_group", Pid: 100, HasPid: true, Args: []string{"0"},
	}))
	node := p.procs.get(100)
	require.NotNil(t, node)
	assert.True(t, node.exited)
	assert.Equal(t, "0", node.exitCode)
}

func TestProctreeRendering(t *testing.T) {
	p := New()
	spawn(t, p, 100, "101")
	spawn(t, p, 101, "102")
	require.NoError(t, p.recordExec(&callparser.CallEvent{
		Name: "execve", Pid: 101, HasPid: true, Args: []string{`"/bin/sh"`},
	}))
	require.NoError(t, p.recordExit(&callparser.CallEvent{
		Name: "exit_group", Pid: 102, HasPid: true, Args: []string{"1"},
	}))

	var buf strings.Builder
	require.NoError(t, p.PrintOutput(&buf))
	out := buf.String()

	assert.Contains(t, out, "100 ?")
	assert.Contains(t, out, "  101 /bin/sh")
	assert.Contains(t, out, "    102 ? [exited 1]")
}

func TestProctreeConfiguredRoots(t *testing.T) {
	p := New()
	require.NoError(t, p.SetOptions(map[string]string{"roots": "101"}))
	spawn(t, p, 100, "101")
	spawn(t, p, 101, "102")

	var buf strings.Builder
	require.NoError(t, p.PrintOutput(&buf))
	out := buf.String()

	assert.NotContains(t, out, "100")
	assert.True(t, strings.HasPrefix(out, "101"))
}

func TestProctreeInvalidRoots(t *testing.T) {
	p := New()
	assert.Error(t, p.SetOptions(map[string]string{"roots": "abc"}))
	assert.Error(t, p.SetOptions(map[string]string{"roots": "-4"}))
}

func TestProctreeEmptyOutput(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, New().PrintOutput(&buf))
	assert.Contains(t, buf.String(), "no processes observed")
}

func TestProctreeOperationalRequiresPid(t *testing.T) {
	p := New()
	assert.False(t, p.IsOperational(traceformat.Profile{}))
	assert.True(t, p.IsOperational(traceformat.Profile{HasPid: true}))
}
