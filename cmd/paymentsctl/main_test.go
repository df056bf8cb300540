package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileRejectsBadTotal(t *testing.T) {
	cmd := reconcileCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--provider", "mtn", "--total", "ten"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --total")
}

func TestReconcileRequiresProvider(t *testing.T) {
	cmd := reconcileCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--total", "10"})

	assert.Error(t, cmd.Execute())
}

func TestRiskCasesResolveNeedsIntentID(t *testing.T) {
	cmd := riskCasesCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"resolve"})

	assert.Error(t, cmd.Execute())
}
