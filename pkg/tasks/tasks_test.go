package tasks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunJobTask(t *testing.T) {
	task, err := NewRunJobTask(12, 3)
	require.NoError(t, err)
	assert.Equal(t, TypeRunJob, task.Type())

	var p RunJobTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, RunJobTaskPayload{RunID: 12, JobID: 3}, p)
	assert.Equal(t, "run:12", RunJobTaskID(12))
}
