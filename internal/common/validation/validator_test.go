package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-sync/internal/common/errors"
)

type connectionInput struct {
	ServerURL        string `json:"server_url" validate:"required,server_url"`
	Username         string `json:"username" validate:"required,max=255"`
	ImportMode       string `json:"import_mode" validate:"omitempty,import_mode"`
	AutoSyncInterval string `json:"auto_sync_interval" validate:"omitempty,duration"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     connectionInput
		wantErr   bool
		wantField string
	}{
		{
			name:  "valid",
			input: connectionInput{ServerURL: "https://dav.example.com/", Username: "ada", ImportMode: "auto", AutoSyncInterval: "1h"},
		},
		{
			name:      "missing url",
			input:     connectionInput{Username: "ada"},
			wantErr:   true,
			wantField: "server_url",
		},
		{
			name:      "ftp url",
			input:     connectionInput{ServerURL: "ftp://dav.example.com/", Username: "ada"},
			wantErr:   true,
			wantField: "server_url",
		},
		{
			name:      "relative url",
			input:     connectionInput{ServerURL: "/dav", Username: "ada"},
			wantErr:   true,
			wantField: "server_url",
		},
		{
			name:      "unknown import mode",
			input:     connectionInput{ServerURL: "https://dav.example.com/", Username: "ada", ImportMode: "eager"},
			wantErr:   true,
			wantField: "import_mode",
		},
		{
			name:      "negative interval",
			input:     connectionInput{ServerURL: "https://dav.example.com/", Username: "ada", AutoSyncInterval: "-5m"},
			wantErr:   true,
			wantField: "auto_sync_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

			appErr, ok := errors.As(err)
			require.True(t, ok)
			fields, ok := appErr.Context["fields"].([]FieldError)
			require.True(t, ok)
			require.NotEmpty(t, fields)
			assert.Equal(t, tt.wantField, fields[0].Field)
			assert.Contains(t, appErr.Message, tt.wantField)
		})
	}
}

func TestValidateStruct_MultipleErrors(t *testing.T) {
	err := ValidateStruct(connectionInput{})
	require.Error(t, err)

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Contains(t, appErr.Message, "validation failed")
	assert.Len(t, appErr.Context["fields"], 2)
}

func TestValidateVar(t *testing.T) {
	assert.NoError(t, ValidateVar("keep_remote", "resolution"))
	assert.NoError(t, ValidateVar("merged", "resolution"))
	assert.Error(t, ValidateVar("keep_both", "resolution"))
	assert.Error(t, ValidateVar("", "required"))
}
