package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateQueues_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input []Queue
	}{
		{
			name:  "empty configuration",
			input: nil,
		},
		{
			name: "one queue per category",
			input: []Queue{
				{Name: "orders", Category: Command, Color: "#FF0000"},
				{Name: "order-placed", Category: Event},
				{Name: "notifications", Category: Message, Color: "#abc"},
				{Name: "orders-dlq", Category: Error},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, ValidateQueues(tt.input))
		})
	}
}

func TestValidateQueues_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		input       []Queue
		errContains string
	}{
		{
			name:        "missing name",
			input:       []Queue{{Category: Command}},
			errContains: "missing required field 'name'",
		},
		{
			name: "duplicate name",
			input: []Queue{
				{Name: "orders", Category: Command},
				{Name: "orders", Category: Event},
			},
			errContains: "duplicate queue name found: 'orders'",
		},
		{
			name:        "invalid category",
			input:       []Queue{{Name: "orders", Category: Category(9)}},
			errContains: "invalid category 9",
		},
		{
			name:        "invalid color",
			input:       []Queue{{Name: "orders", Category: Command, Color: "red"}},
			errContains: "color must be a hex color",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQueues(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidateDescriptor(t *testing.T) {
	assert.NoError(t, ValidateDescriptor(Descriptor{Name: "Forq"}))

	err := ValidateDescriptor(Descriptor{Version: "1.0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serviceBus")
}

func TestValidatePollInterval(t *testing.T) {
	assert.NoError(t, ValidatePollInterval(MinPollIntervalSeconds))
	assert.NoError(t, ValidatePollInterval(DefaultPollIntervalSeconds))

	err := ValidatePollInterval(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll interval must be at least")
}

func TestDiffQueues(t *testing.T) {
	base := []Queue{{Name: "orders", Category: Command}}

	assert.False(t, DiffQueues(base, []Queue{{Name: "orders", Category: Command}}))
	assert.True(t, DiffQueues(base, []Queue{{Name: "orders", Category: Event}}))
	assert.True(t, DiffQueues(base, nil))
}

func TestQueuesOf(t *testing.T) {
	queues := []Queue{
		{Name: "orders", Category: Command},
		{Name: "orders-dlq", Category: Error},
		{Name: "billing", Category: Command},
	}

	assert.Equal(t, []string{"orders", "billing"}, QueuesOf(queues, Command))
	assert.Equal(t, []string{"orders-dlq"}, QueuesOf(queues, Error))
	assert.Nil(t, QueuesOf(queues, Event))
}
