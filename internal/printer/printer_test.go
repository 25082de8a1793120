package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/hark/pkg/blackboard"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr, prevNoColor := Out, Err, color.NoColor
	Out, Err, color.NoColor = out, errOut, true
	t.Cleanup(func() { Out, Err, color.NoColor = prevOut, prevErr, prevNoColor })
	return out, errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "This is a test error")
	})

	t.Run("single suggestion is printed plainly", func(t *testing.T) {
		_, errOut := capture(t)
		Error("Test Error", "Explanation", []string{"Try this fix"})
		assert.Contains(t, errOut.String(), "\nTry this fix\n")
		assert.NotContains(t, errOut.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, errOut := capture(t)
		Error("Test Error", "Explanation", []string{"First option", "Second option"})
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, errOut := capture(t)
	err := ErrorWithContext("Test Error", "Explanation", map[string]string{
		"Redis":    "redis://localhost:6379",
		"Instance": "default",
	}, nil)

	require.Equal(t, "Test Error", err.Error())
	out := errOut.String()
	assert.Less(t, strings.Index(out, "Instance: default"), strings.Index(out, "Redis: redis://localhost:6379"))
}

func TestSuccessAndWarning(t *testing.T) {
	out, _ := capture(t)
	Success("done\n")
	Success("✓ already prefixed\n")
	Warning("careful\n")
	assert.Equal(t, "✓ done\n✓ already prefixed\n⚠️  careful\n", out.String())
}

func TestMessage(t *testing.T) {
	out, _ := capture(t)
	Message(blackboard.OutputMessage{
		ID:           "1b4e",
		SemanticHash: "9f2c",
		Severity:     blackboard.SeverityHigh,
		Channel:      blackboard.ChannelUser,
		Topic:        "margem_baixa",
		Title:        "Margem baixa",
		Message:      "A margem do pedido está em 3%",
		Actions:      []blackboard.Action{{ID: "ver-pedido", Label: "Ver pedido"}},
	})

	assert.Equal(t, "[HIGH] USER margem_baixa\n"+
		"Margem baixa\n"+
		"A margem do pedido está em 3%\n"+
		"  (ver-pedido) Ver pedido\n"+
		"  hash 9f2c id 1b4e\n", out.String())
}
