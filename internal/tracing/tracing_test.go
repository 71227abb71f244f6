package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestSetupWritesSpans(t *testing.T) {
	var out bytes.Buffer
	shutdown, err := Setup(&out)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "runtime.exec",
		trace.WithAttributes(StringAttr("function", "Core_version"), IntAttr("input", 3)))
	End(span, errors.New("trapped"))
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, out.String(), "runtime.exec")
	assert.Contains(t, out.String(), "Core_version")
	assert.Contains(t, out.String(), "trapped")

	shutdown, err = Setup(nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
