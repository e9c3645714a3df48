package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/specialistvlad/taskgrid/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	var out bytes.Buffer
	ec := task.ExecContext{Task: &task.Task{ID: "announce"}, Stdout: &out, Stderr: &out}

	err := Log(context.Background(), ec, &Input{
		Message: "tables rebuilt",
		Fields:  map[string]string{"b": "2", "a": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tables rebuilt\n  a = \"1\"\n  b = \"2\"\n", out.String())
}
