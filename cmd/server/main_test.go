package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedagang/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	for name, cfg := range map[string]config.Config{
		"short secret":  {AuthSecret: "short", ManagerPIN: "739154"},
		"missing pin":   {AuthSecret: strongSecret},
		"short pin":     {AuthSecret: strongSecret, ManagerPIN: "7391"},
		"common pin":    {AuthSecret: strongSecret, ManagerPIN: "123456"},
		"repeated pin":  {AuthSecret: strongSecret, ManagerPIN: "7777777"},
		"descending":    {AuthSecret: strongSecret, ManagerPIN: "987654"},
		"non numeric":   {AuthSecret: strongSecret, ManagerPIN: "73a154"},
		"blank secret":  {ManagerPIN: "739154"},
		"list entry":    {AuthSecret: strongSecret, ManagerPIN: "147258"},
		"ascending run": {AuthSecret: strongSecret, ManagerPIN: "3456789"},
	} {
		assert.Error(t, validateSecurityConfig(cfg), name)
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	require.NoError(t, validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "739154"}))
	require.NoError(t, validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "48291306"}))
}
