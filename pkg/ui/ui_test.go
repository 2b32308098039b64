package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/protocol"
)

func init() {
	color.NoColor = true
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	var sink protocol.Sink = NewConsoleSink(&buf, nil)

	sink.Locked("0123456789abcdef", crypto.ChainEVM)
	sink.Blocked(protocol.ReasonNoBinding, "address was not copied from a protected source")
	sink.Invalidated("recipient", "field content changed after paste")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "LOCKED  eth         fingerprint 0123456789abcdef", lines[0])
	require.Equal(t, "BLOCKED NoBinding   address was not copied from a protected source", lines[1])
	require.Equal(t, "INVALID recipient   field content changed after paste", lines[2])
}

func TestBoxesKeepWidth(t *testing.T) {
	var buf bytes.Buffer
	cs := DefaultColorScheme()

	PrintHeader(&buf, cs, "clipseal")
	PrintFooter(&buf, cs, strings.Repeat("x", 200))

	for _, line := range strings.Split(buf.String(), "\n") {
		if line == "" {
			continue
		}
		require.Equal(t, BoxWidth, len([]rune(line)), line)
	}
}
