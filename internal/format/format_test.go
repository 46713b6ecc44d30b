package format

import (
	"strings"
	"testing"
)

func TestTable_ASCII(t *testing.T) {
	tb := NewTable(ASCII)
	tb.Header("Type", "Severity")
	tb.Row("acne", 2.5)
	out := tb.String()
	if !strings.Contains(out, "TYPE") || !strings.Contains(out, "acne") {
		t.Errorf("unexpected render:\n%s", out)
	}
}

func TestTable_Markdown(t *testing.T) {
	tb := NewTable(Markdown)
	tb.Header("Bucket", "Eligible")
	tb.Row("acne|pass|daylight|t1", true)
	out := tb.String()
	if !strings.Contains(out, "|") || !strings.Contains(out, "acne|pass|daylight|t1") {
		t.Errorf("unexpected markdown render:\n%s", out)
	}
}
