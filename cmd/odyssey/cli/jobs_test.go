package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/jobs"
)

func TestBuildTaskKnownJobs(t *testing.T) {
	task, err := buildTask(jobs.TaskGLIntegrity)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskGLIntegrity, task.Type())
	require.JSONEq(t, `{"lookback_hours":24,"limit":0}`, string(task.Payload()))

	task, err = buildTask(jobs.TaskApprovalOverdue)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskApprovalOverdue, task.Type())

	_, err = buildTask("mail:send")
	require.ErrorContains(t, err, "unsupported job")
}

func TestRunUsageErrors(t *testing.T) {
	var c *JobsCLI
	var out bytes.Buffer
	require.Equal(t, 2, c.Run(context.Background(), nil, &out))
	require.Contains(t, out.String(), "usage")

	out.Reset()
	require.Equal(t, 2, c.Run(context.Background(), []string{"trigger"}, &out))

	out.Reset()
	require.Equal(t, 1, c.Run(context.Background(), []string{"trigger", jobs.TaskGLIntegrity}, &out))
	require.Contains(t, out.String(), "client not configured")

	out.Reset()
	require.Equal(t, 2, c.Run(context.Background(), []string{"purge"}, &out))
}
