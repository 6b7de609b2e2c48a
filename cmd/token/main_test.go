package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_PrintsValidToken(t *testing.T) {
	t.Setenv("SECRET_KEY", "secret")
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--user", "alice", "--ttl", "1h"})

	require.NoError(t, cmd.Execute())

	claims, err := utils.ValidateToken("secret", strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
}

func TestRootCmd_RequiresSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)

	assert.Error(t, cmd.Execute())
}
