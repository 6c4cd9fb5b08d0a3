package chat

import (
	"fmt"
	"io"

	"github.com/isaacphi/toolturn/internal/domain"
)

// printer writes a turn to the terminal: answer text to out, everything
// else to status.
type printer struct {
	out          io.Writer
	status       io.Writer
	showThinking bool
	thinking     bool
}

func (p *printer) OnThinking(text string) {
	if !p.showThinking {
		return
	}
	if !p.thinking {
		fmt.Fprint(p.status, "[thinking] ")
		p.thinking = true
	}
	fmt.Fprint(p.status, text)
}

func (p *printer) OnContent(text string) {
	p.endThinking()
	fmt.Fprint(p.out, text)
}

func (p *printer) OnToolCallIssued(call domain.FunctionCall) {
	p.endThinking()
	fmt.Fprintf(p.status, "\n-> %s %s\n", call.Name, call.Arguments)
}

func (p *printer) OnFinish(final string, truncated bool) {
	p.endThinking()
	fmt.Fprintln(p.out)
	if truncated {
		fmt.Fprintln(p.status, "[tool round trip limit reached]")
	}
}

func (p *printer) OnError(kind domain.ErrorKind, err error) {
	p.endThinking()
	fmt.Fprintf(p.status, "\n[%s error]\n", kind)
}

func (p *printer) endThinking() {
	if p.thinking {
		fmt.Fprintln(p.status)
		p.thinking = false
	}
}
