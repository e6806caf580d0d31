package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchforge/portcore/internal/bibconfig"
)

func sampleConfigRoot() *bibconfig.ConfigRoot {
	return &bibconfig.ConfigRoot{
		Bibs: []bibconfig.BibDefinition{
			{
				ID: "bib_001",
				Uuts: []bibconfig.UutDefinition{
					{
						ID: "uut_001",
						Ports: []bibconfig.PortDefinition{
							{Number: 1, Settings: map[string]string{"physical_port": "/dev/ttyUSB0"}},
							{Number: 2, Settings: map[string]string{"physical_port": "/dev/ttyUSB1"}},
						},
					},
				},
			},
			{
				ID: "bib_002",
				Uuts: []bibconfig.UutDefinition{
					{
						ID: "uut_001",
						Ports: []bibconfig.PortDefinition{
							{Number: 1, Settings: map[string]string{"physical_port": "/dev/ttyUSB2"}},
						},
					},
				},
			},
		},
	}
}

func TestFindPort_MatchesByUutAndPortWhenBibIDUnset(t *testing.T) {
	root := sampleConfigRoot()

	bib, uut, port, err := findPort(root, "", "uut_001", 1)
	require.NoError(t, err)
	assert.Equal(t, "bib_001", bib.ID)
	assert.Equal(t, "uut_001", uut.ID)
	assert.Equal(t, "/dev/ttyUSB0", port.Settings["physical_port"])
}

func TestFindPort_DisambiguatesByBibID(t *testing.T) {
	root := sampleConfigRoot()

	bib, _, port, err := findPort(root, "bib_002", "uut_001", 1)
	require.NoError(t, err)
	assert.Equal(t, "bib_002", bib.ID)
	assert.Equal(t, "/dev/ttyUSB2", port.Settings["physical_port"])
}

func TestFindPort_NoMatchReturnsError(t *testing.T) {
	root := sampleConfigRoot()

	_, _, _, err := findPort(root, "bib_001", "uut_001", 99)
	assert.Error(t, err)
}

func TestFindPort_WrongBibIDReturnsError(t *testing.T) {
	root := sampleConfigRoot()

	_, _, _, err := findPort(root, "bib_999", "uut_001", 1)
	assert.Error(t, err)
}
