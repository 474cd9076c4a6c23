package jump

import "github.com/timvw/jump-ssh/internal/expect"

// Prompt texts rendered by the bastion menu.
const (
	PromptPassword = "password:"
	PromptMenu     = "Opt>"
	PromptHostList = "[Host]>"
	PromptSearch   = "Search:"
)

// Prompts is the set of patterns the navigation engine recognises. They match
// free text rendered by an external system and are kept together so they can
// be tuned without touching the state machine.
type Prompts struct {
	Password expect.Pattern
	Menu     expect.Pattern
	HostList expect.Pattern
	Search   expect.Pattern

	// ShellDollar and ShellHash detect a user or root shell prompt.
	ShellDollar expect.Pattern
	ShellHash   expect.Pattern

	// ShellDollarEOL and ShellHashEOL detect a prompt followed by the echo of
	// an empty line, used to flush banner text after landing on the target.
	ShellDollarEOL expect.Pattern
	ShellHashEOL   expect.Pattern
}

// DefaultPrompts returns the prompts of a stock JumpServer deployment.
func DefaultPrompts() *Prompts {
	return &Prompts{
		// A prompt waits for input, so it is the last thing rendered.
		Password:       expect.Regexp("password", `(?i)password:[ \t]*$`),
		Menu:           expect.Literal("menu", PromptMenu),
		HostList:       expect.Literal("host-list", PromptHostList),
		Search:         expect.Literal("search", PromptSearch),
		ShellDollar:    expect.Regexp("shell-dollar", `\$\s`),
		ShellHash:      expect.Regexp("shell-hash", `#\s`),
		ShellDollarEOL: expect.Regexp("shell-dollar-eol", `\$\s*\r?\n`),
		ShellHashEOL:   expect.Regexp("shell-hash-eol", `#\s*\r?\n`),
	}
}

func (p *Prompts) shell() []expect.Pattern {
	return []expect.Pattern{p.ShellDollar, p.ShellHash}
}

func (p *Prompts) shellEOL() []expect.Pattern {
	return []expect.Pattern{p.ShellDollarEOL, p.ShellHashEOL}
}

func isShell(m expect.Match, p *Prompts) bool {
	return m.Label == p.ShellDollar.Label || m.Label == p.ShellHash.Label
}
