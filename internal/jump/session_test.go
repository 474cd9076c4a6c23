package jump

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timvw/jump-ssh/internal/expect"
	"github.com/timvw/jump-ssh/internal/transport/transporttest"
)

var fixedNow = time.Unix(1700000000, 0)

const wrappedWhoami = "whoami; echo 'JUMP_END_''1700000000'\n"

func fastTimings() Timings {
	return Timings{
		RedrawWait:  20 * time.Millisecond,
		Settle:      time.Millisecond,
		ShellSettle: time.Millisecond,
		Flush:       30 * time.Millisecond,
	}
}

func testTimeouts() Timeouts {
	return Timeouts{Connect: 300 * time.Millisecond, Expect: 300 * time.Millisecond, Command: 300 * time.Millisecond}
}

func newTestSession(f *transporttest.Fake, password string) *Session {
	return NewSession(f, SessionOptions{
		Password: password,
		Timeouts: testTimeouts(),
		Timings:  fastTimings(),
		Sleep:    func(time.Duration) {},
		Now:      func() time.Time { return fixedNow },
	})
}

var wrappedLine = regexp.MustCompile(`^(.*?);? ?echo '([^']*)''([^']*)'\n$`)

// remoteShell renders a target shell: it echoes each wrapped command, prints
// the scripted output and then the joined completion marker.
type remoteShell struct {
	prompt  string
	outputs map[string]string
	hang    map[string]bool
}

func (r remoteShell) reply(input string) ([]string, bool) {
	if input == "\n" {
		return []string{"\r\n" + r.prompt}, true
	}
	m := wrappedLine.FindStringSubmatch(input)
	if m == nil {
		return nil, false
	}
	echo := strings.TrimSuffix(input, "\n") + "\r\n"
	if r.hang[m[1]] {
		return []string{echo}, true
	}
	return []string{echo, r.outputs[m[1]], m[2] + m[3] + "\r\n", r.prompt}, true
}

// bastion scripts the menu: password login, a menu redraw, then whatever
// search replies the test installs.
type bastion struct {
	fake    *transporttest.Fake
	shell   remoteShell
	onShell bool
	search  func(b *bastion, input string) []string
}

func newBastion(shell remoteShell, search func(b *bastion, input string) []string) *bastion {
	b := &bastion{shell: shell, search: search}
	b.fake = transporttest.New("Last login: Mon Oct 12\r\n", "alice@jump.example.com's password: ")
	b.fake.OnWrite(b.reply)
	return b
}

func (b *bastion) reply(input string) []string {
	if b.onShell {
		if out, ok := b.shell.reply(input); ok {
			return out
		}
	}
	if input == "secret\n" {
		return []string{
			"\r\n\x1b[32m  Welcome to JumpServer\x1b[0m\r\n\r\nOpt> ",
			"\x1b[5D\x1b[KOpt> ",
		}
	}
	return b.search(b, input)
}

func (b *bastion) enterShell(banner string) []string {
	b.onShell = true
	return []string{banner, b.shell.prompt}
}

func TestSession_SearchLandsOnShell(t *testing.T) {
	shell := remoteShell{prompt: "[root@db-prod-01 ~]# ", outputs: map[string]string{"whoami": "root\r\n"}}
	b := newBastion(shell, func(b *bastion, input string) []string {
		if input == "db-prod-01\r" {
			return b.enterShell("db-prod-01\r\nConnecting to db-prod-01 10.0.4.20 ...\r\nLast login: Sun\r\n")
		}
		return nil
	})
	s := newTestSession(b.fake, "secret")
	ctx := context.Background()

	require.NoError(t, s.Login(ctx))
	assert.Equal(t, MenuReady, s.State())
	require.NoError(t, s.Navigate(ctx, "db-prod-01"))
	assert.Equal(t, ShellReady, s.State())
	assert.Equal(t, BranchDirectShell, s.Branch())

	out, err := s.RunCommand(ctx, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "root", out)

	assert.Equal(t, []string{"secret\n", "db-prod-01\r", "\n", wrappedWhoami}, b.fake.Writes())
	for _, w := range b.fake.Writes() {
		assert.NotContains(t, w, "JUMP_END_1700000000")
	}
}

func TestSession_RunsSeveralCommands(t *testing.T) {
	shell := remoteShell{prompt: "ubuntu@vm:~$ ", outputs: map[string]string{
		"whoami":   "ubuntu\r\n",
		"ls /opt":  "\x1b[01;34mapp\x1b[0m\r\n\x1b[01;34mdata\x1b[0m\r\n",
		"true":     "",
		"uname -s": "Linux\r\n",
	}}
	b := newBastion(shell, func(b *bastion, input string) []string {
		return b.enterShell("4.13\r\n")
	})
	s := newTestSession(b.fake, "secret")
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))
	require.NoError(t, s.Navigate(ctx, "4.13"))

	for cmd, want := range map[string]string{"whoami": "ubuntu", "ls /opt": "app\ndata", "true": "", "uname -s": "Linux"} {
		out, err := s.RunCommand(ctx, cmd)
		require.NoError(t, err, cmd)
		assert.Equal(t, want, out, cmd)
	}
}

func TestSession_HostListSelectsFirst(t *testing.T) {
	shell := remoteShell{prompt: "ubuntu@vm-4-13:~$ ", outputs: map[string]string{"hostname": "vm-4-13\r\n"}}
	b := newBastion(shell, func(b *bastion, input string) []string {
		switch input {
		case "4.13\r":
			return []string{
				"4.13\r\n  ID | Hostname  | IP\r\n",
				"  1  | VM-4-13   | 10.0.4.13\r\n  2  | VM-4-130  | 10.0.4.130\r\n",
				"[Host]> ",
			}
		case "1\r":
			return b.enterShell("1\r\nConnecting to VM-4-13 ...\r\n")
		}
		return nil
	})
	s := newTestSession(b.fake, "secret")
	ctx := context.Background()

	require.NoError(t, s.Login(ctx))
	require.NoError(t, s.Navigate(ctx, "4.13"))
	assert.Equal(t, BranchHostList, s.Branch())

	out, err := s.RunCommand(ctx, "hostname")
	require.NoError(t, err)
	assert.Equal(t, "vm-4-13", out)
	assert.Equal(t, "1\r", b.fake.Writes()[2])
}

func TestSession_SelectionFailed(t *testing.T) {
	b := newBastion(remoteShell{}, func(b *bastion, input string) []string {
		switch input {
		case "4.13\r":
			return []string{"4.13\r\n  1 | VM-4-13\r\n  2 | VM-4-130\r\n[Host]> "}
		case "1\r":
			return []string{"1\r\nPermission denied for this asset\r\n[Host]> "}
		}
		return nil
	})
	s := newTestSession(b.fake, "secret")
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))

	err := s.Navigate(ctx, "4.13")

	var je *Error
	require.ErrorAs(t, err, &je)
	assert.Equal(t, SelectionFailed, je.Kind)
	assert.Equal(t, Disambiguating, je.State)
	assert.Contains(t, je.Buffer, "Permission denied")
	for _, w := range b.fake.Writes() {
		assert.NotContains(t, w, "echo")
	}
}

func TestSession_NotFoundNamesKeyword(t *testing.T) {
	b := newBastion(remoteShell{}, func(b *bastion, input string) []string {
		return []string{"nosuch-host\r\n\x1b[31mNo Assets\x1b[0m\r\nOpt> "}
	})
	s := newTestSession(b.fake, "secret")
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))

	err := s.Navigate(ctx, "nosuch-host")

	assert.Equal(t, NotFound, KindOf(err))
	assert.Contains(t, err.Error(), "nosuch-host")
	assert.Len(t, b.fake.Writes(), 2)
}

func TestSession_SearchBoxResendsKeyword(t *testing.T) {
	shell := remoteShell{prompt: "$ ", outputs: map[string]string{"id -u": "1000\r\n"}}
	searches := 0
	b := newBastion(shell, func(b *bastion, input string) []string {
		if input != "4.13\r" {
			return nil
		}
		searches++
		if searches == 1 {
			return []string{"\x1b[2J  ID | Hostname\r\n  1 | VM-4-13\r\nSearch: "}
		}
		return b.enterShell("4.13\r\nConnecting ...\r\n")
	})
	s := newTestSession(b.fake, "secret")
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))

	require.NoError(t, s.Navigate(ctx, "4.13"))
	assert.Equal(t, BranchSearchBox, s.Branch())
	assert.Equal(t, 2, searches)

	out, err := s.RunCommand(ctx, "id -u")
	require.NoError(t, err)
	assert.Equal(t, "1000", out)
}

func TestSession_SearchBoxThenHostList(t *testing.T) {
	shell := remoteShell{prompt: "$ "}
	searches := 0
	b := newBastion(shell, func(b *bastion, input string) []string {
		switch input {
		case "4.13\r":
			searches++
			if searches == 1 {
				return []string{"Search: "}
			}
			return []string{"4.13\r\n  1 | VM-4-13\r\n  2 | VM-4-130\r\n[Host]> "}
		case "1\r":
			return b.enterShell("1\r\n")
		}
		return nil
	})
	s := newTestSession(b.fake, "secret")
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))

	require.NoError(t, s.Navigate(ctx, "4.13"))
	assert.Equal(t, ShellReady, s.State())
	assert.Contains(t, b.fake.Writes(), "1\r")
}

func TestSession_SearchBoxTimeout(t *testing.T) {
	b := newBastion(remoteShell{}, func(b *bastion, input string) []string {
		if input == "4.13\r" {
			return []string{"Search: "}
		}
		return nil
	})
	s := newTestSession(b.fake, "secret")
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))

	err := s.Navigate(ctx, "4.13")
	assert.Equal(t, SearchTimeout, KindOf(err))
}

func TestSession_LoginWithoutPassword(t *testing.T) {
	f := transporttest.New("Welcome\r\nOpt> ")
	s := newTestSession(f, "")

	require.NoError(t, s.Login(context.Background()))
	assert.Equal(t, MenuReady, s.State())
	assert.Empty(t, f.Writes())
}

func TestSession_LoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		initial  []string
		password string
		reply    transporttest.Reply
		wantMsg  string
	}{
		{
			name:    "nothing rendered",
			initial: []string{"Connecting...\r\n"},
			wantMsg: "no password prompt or menu",
		},
		{
			name:     "password rejected",
			initial:  []string{"password: "},
			password: "wrong",
			reply: func(string) []string {
				return []string{"\r\nPermission denied, please try again.\r\npassword: "}
			},
			wantMsg: "password rejected",
		},
		{
			name:    "no password configured",
			initial: []string{"password: "},
			wantMsg: "none configured",
		},
		{
			name:     "menu never shows",
			initial:  []string{"password: "},
			password: "secret",
			reply:    func(string) []string { return []string{"\r\nLoading...\r\n"} },
			wantMsg:  "menu did not appear",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := transporttest.New(tt.initial...)
			if tt.reply != nil {
				f.OnWrite(tt.reply)
			}
			s := newTestSession(f, tt.password)

			err := s.Login(context.Background())

			var je *Error
			require.ErrorAs(t, err, &je)
			assert.Equal(t, LoginFailed, je.Kind)
			assert.Contains(t, je.Message, tt.wantMsg)
			assert.Equal(t, Authenticating, je.State)
		})
	}
}

func TestSession_PasswordWordInBannerIsNotAPrompt(t *testing.T) {
	f := transporttest.New("bob@jump's password: ")
	f.OnWrite(func(in string) []string {
		if in != "secret\n" {
			return nil
		}
		return []string{
			"\r\nNotice: your Password: expires in 3 days\r\n",
			"Contact it-ops to renew.\r\nOpt> ",
		}
	})
	s := newTestSession(f, "secret")

	require.NoError(t, s.Login(context.Background()))
	assert.Equal(t, MenuReady, s.State())
	assert.Equal(t, []string{"secret\n"}, f.Writes())
}

func TestSession_KeyLoginBannerMentioningPassword(t *testing.T) {
	f := transporttest.New("Password: expires in 3 days\r\n", "Opt> ")
	s := newTestSession(f, "")

	require.NoError(t, s.Login(context.Background()))
	assert.Empty(t, f.Writes())
}

func TestSession_LoginTimeoutCarriesBuffer(t *testing.T) {
	f := transporttest.New("ssh: connect to host jump port 2222: Connection refused\r\n")
	s := newTestSession(f, "secret")

	err := s.Login(context.Background())

	assert.Equal(t, LoginFailed, KindOf(err))
	assert.Contains(t, BufferOf(err), "Connection refused")
}

func TestSession_ConnectionClosedDuringSearch(t *testing.T) {
	b := newBastion(remoteShell{}, nil)
	b.search = func(b *bastion, input string) []string {
		b.fake.Hangup()
		return []string{"Connection to jump closed by remote host.\r\n"}
	}
	s := newTestSession(b.fake, "secret")
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))

	err := s.Navigate(ctx, "4.13")

	assert.Equal(t, ConnectionClosed, KindOf(err))
	assert.True(t, errors.Is(err, expect.ErrConnectionClosed))
	assert.Contains(t, BufferOf(err), "closed by remote host")
}

func TestSession_ConnectionClosedDuringLogin(t *testing.T) {
	f := transporttest.New("Permission denied (publickey).\r\n")
	f.Hangup()
	s := newTestSession(f, "")

	err := s.Login(context.Background())
	assert.Equal(t, ConnectionClosed, KindOf(err))
}

func TestSession_CommandTimeout(t *testing.T) {
	shell := remoteShell{prompt: "$ ", hang: map[string]bool{"sleep 999": true}}
	b := newBastion(shell, func(b *bastion, input string) []string {
		return b.enterShell("")
	})
	s := newTestSession(b.fake, "secret")
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))
	require.NoError(t, s.Navigate(ctx, "4.13"))

	_, err := s.RunCommand(ctx, "sleep 999")

	var je *Error
	require.ErrorAs(t, err, &je)
	assert.Equal(t, CommandTimeout, je.Kind)
	assert.Contains(t, je.Buffer, "sleep 999")
}

func TestSession_LoginDirect(t *testing.T) {
	shell := remoteShell{prompt: "[root@db ~]# ", outputs: map[string]string{"whoami": "root\r\n"}}
	f := transporttest.New("Last login: Mon\r\n", shell.prompt)
	f.OnWrite(func(in string) []string {
		out, _ := shell.reply(in)
		return out
	})
	s := newTestSession(f, "")
	ctx := context.Background()

	require.NoError(t, s.LoginDirect(ctx))
	assert.Equal(t, BranchDirect, s.Branch())
	out, err := s.RunCommand(ctx, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "root", out)
	assert.Equal(t, []string{"\n", wrappedWhoami}, f.Writes())
}

func TestSession_LoginDirectWithPassword(t *testing.T) {
	shell := remoteShell{prompt: "$ "}
	f := transporttest.New("alice@root@10.0.4.20@jump's password: ")
	f.OnWrite(func(in string) []string {
		if in == "secret\n" {
			return []string{"\r\nLast login: Mon\r\n", shell.prompt}
		}
		out, _ := shell.reply(in)
		return out
	})
	s := newTestSession(f, "secret")

	require.NoError(t, s.LoginDirect(context.Background()))
	assert.Equal(t, ShellReady, s.State())
}

func TestSession_OperationsRequireState(t *testing.T) {
	s := newTestSession(transporttest.New(), "")

	_, err := s.RunCommand(context.Background(), "ls")
	assert.Error(t, err)
	assert.Equal(t, Kind(""), KindOf(err))

	assert.Error(t, s.Navigate(context.Background(), "4.13"))
}

func TestSession_CloseOnce(t *testing.T) {
	f := transporttest.New()
	s := newTestSession(f, "")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, f.Closes())
	assert.Equal(t, Closed, s.State())
}

func TestSession_PasswordMaskedInBuffer(t *testing.T) {
	f := transporttest.New("password: ")
	f.OnWrite(func(in string) []string {
		return []string{"\r\necho: hunter2 not accepted\r\n"}
	})
	s := newTestSession(f, "hunter2")

	err := s.Login(context.Background())

	require.Error(t, err)
	assert.NotContains(t, BufferOf(err), "hunter2")
	assert.Contains(t, BufferOf(err), "[REDACTED]")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ShellReady", ShellReady.String())
	assert.Equal(t, "State(42)", State(42).String())
}
