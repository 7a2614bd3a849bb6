package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrdash/hrdash/internal/app"
	_ "github.com/hrdash/hrdash/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
