package main

import (
	"testing"

	"github.com/aukilabs/raido/models"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	valid := func() config {
		return config{
			PublicEndpoint: "http://localhost:4000",
			ServerID:       "raido",
			Index: indexConfig{
				MinElementsPerNode: 4,
				MaxElementsPerNode: 16,
				MaxElements:        4096,
			},
		}
	}

	tests := []struct {
		name    string
		setup   func(*config)
		wantErr bool
	}{
		{
			name:  "valid",
			setup: func(c *config) {},
		},
		{
			name:    "invalid public endpoint",
			setup:   func(c *config) { c.PublicEndpoint = "localhost" },
			wantErr: true,
		},
		{
			name:    "empty server id",
			setup:   func(c *config) { c.ServerID = "" },
			wantErr: true,
		},
		{
			name:    "invalid max elements per node",
			setup:   func(c *config) { c.Index.MaxElementsPerNode = 1 },
			wantErr: true,
		},
		{
			name:    "invalid max elements",
			setup:   func(c *config) { c.Index.MaxElements = 0 },
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conf := valid()
			test.setup(&conf)

			err := validateConfig(conf)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestIndexConfigRtreeConfig(t *testing.T) {
	c := indexConfig{
		MinElementsPerNode: models.DefaultIndexConfig.MinElementsPerNode,
		MaxElementsPerNode: models.DefaultIndexConfig.MaxElementsPerNode,
		MaxElements:        models.DefaultIndexConfig.MaxElements,
	}
	require.Equal(t, models.DefaultIndexConfig, c.rtreeConfig())
	require.NoError(t, c.rtreeConfig().Validate())
}
