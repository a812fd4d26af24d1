package terminal

import (
	"strconv"
	"strings"

	"github.com/luhtfiimanal/serialterm/internal/config"
)

// decoder turns inbound chunks into display text. It carries state across
// chunks so a "\r\n" split between two polls is still recognized.
type decoder struct {
	format      config.PrintFormat
	replaceCRLF bool
	pendingCR   bool
}

func newDecoder(cfg config.Config) *decoder {
	return &decoder{format: cfg.PrintFormat, replaceCRLF: cfg.ReplaceCRLF}
}

func (d *decoder) decode(chunk []byte) string {
	if len(chunk) == 0 {
		return ""
	}
	s := string(chunk)
	if d.format == config.FormatRepr {
		q := strconv.Quote(s)
		return q[1 : len(q)-1]
	}
	if !d.replaceCRLF {
		return s
	}
	if d.pendingCR {
		s = "\r" + s
		d.pendingCR = false
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if strings.HasSuffix(s, "\r") {
		d.pendingCR = true
		s = s[:len(s)-1]
	}
	return s
}

// flush returns whatever is held back waiting for the next chunk.
func (d *decoder) flush() string {
	if d.pendingCR {
		d.pendingCR = false
		return "\r"
	}
	return ""
}
