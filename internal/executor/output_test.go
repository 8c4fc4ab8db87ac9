package executor

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixedOutput_PrefixesEveryLine(t *testing.T) {
	var buf bytes.Buffer
	out := PrefixedOutput(&buf)

	w := out.JobWriter("py35")
	_, err := io.WriteString(w, "collecting tests\nran 12 tests\n")
	require.NoError(t, err)

	require.Equal(t, "[py35] collecting tests\n[py35] ran 12 tests\n", buf.String())
}

func TestPrefixedOutput_BuffersPartialLines(t *testing.T) {
	var buf bytes.Buffer
	w := PrefixedOutput(&buf).JobWriter("py27")

	io.WriteString(w, "instal")
	require.Empty(t, buf.String())

	io.WriteString(w, "ling\ndone\n")
	require.Equal(t, "[py27] installing\n[py27] done\n", buf.String())
}

func TestPrefixedOutput_SeparateJobsKeepTheirPrefixes(t *testing.T) {
	var buf bytes.Buffer
	out := PrefixedOutput(&buf)

	a := out.JobWriter("py27")
	b := out.JobWriter("conda35")

	io.WriteString(a, "first\n")
	io.WriteString(b, "second\n")

	require.Equal(t, "[py27] first\n[conda35] second\n", buf.String())
}

func TestNopOutput(t *testing.T) {
	w := NopOutput().JobWriter("py27")
	n, err := w.Write([]byte("discarded"))
	require.NoError(t, err)
	require.Equal(t, 9, n)
}
