package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "production", cfg: DefaultConfig()},
		{name: "development", cfg: DevelopmentConfig()},
		{name: "empty level defaults to info", cfg: Config{}},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger.Logger)
		})
	}
}

func TestChildLoggers(t *testing.T) {
	logger := NewNop()

	assert.NotNil(t, logger.ForRequest("req_1", "cell", "box", "svc"))
	assert.NotNil(t, logger.ForExtension("Ext_Test"))
	assert.NotNil(t, logger.Named("engine"))
}
