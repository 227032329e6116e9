package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/starford/decryptor/internal/message"
)

// ErrNoKey is returned when none of the message recipients has a known key.
var ErrNoKey = errors.New("required key is not present")

type runFunc func(ctx context.Context, stdin []byte, args ...string) (stdout, stderr []byte, err error)

// GPG decrypts by running the gpg binary. Keys map recipient user ids to
// passphrases; only recipients present in the map are tried.
type GPG struct {
	binary  string
	homedir string
	run     runFunc
}

// NewGPG creates a GPG decrypter. An empty binary means "gpg" on PATH.
func NewGPG(binary, homedir string) *GPG {
	if binary == "" {
		binary = "gpg"
	}
	g := &GPG{binary: binary, homedir: homedir}
	g.run = g.exec
	return g
}

func (g *GPG) exec(ctx context.Context, stdin []byte, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func (g *GPG) args(extra ...string) []string {
	var args []string
	if g.homedir != "" {
		args = append(args, "--homedir", g.homedir)
	}
	return append(args, extra...)
}

// Decrypt picks the first recipient with a known key and decrypts data.
func (g *GPG) Decrypt(ctx context.Context, data []byte, keys message.Keys) ([]byte, error) {
	recipients, err := g.Recipients(ctx, data)
	if err != nil {
		return nil, err
	}
	uid := ""
	for _, r := range recipients {
		if _, ok := keys[r]; ok {
			uid = r
			break
		}
	}
	if uid == "" {
		return nil, ErrNoKey
	}

	extra := []string{"--batch", "--quiet"}
	if pass := keys[uid]; pass != "" {
		extra = append(extra, "--pinentry-mode=loopback", "--passphrase", pass)
	}
	extra = append(extra, "--decrypt")

	out, stderr, err := g.run(ctx, data, g.args(extra...)...)
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, fmt.Errorf("agent: gpg decrypt: %w", err)
	}
	return out, nil
}

// Recipients returns the user ids of the keys data is encrypted to.
func (g *GPG) Recipients(ctx context.Context, data []byte) ([]string, error) {
	_, stderr, err := g.run(ctx, data, g.args("--batch", "--decrypt", "--list-only")...)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("agent: run gpg: %w", err)
		}
		return nil, nil
	}

	var uids []string
	for _, id := range parseKeyIDs(stderr) {
		uid, err := g.uidFor(ctx, id)
		if err != nil {
			return nil, err
		}
		if uid != "" {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

func (g *GPG) uidFor(ctx context.Context, keyID string) (string, error) {
	out, _, err := g.run(ctx, nil, g.args("--list-public-keys", "--fingerprint", keyID)...)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("agent: run gpg: %w", err)
		}
		return "", nil
	}
	uids := parseUIDs(out)
	if len(uids) == 0 {
		return "", nil
	}
	return uids[0], nil
}

// parseKeyIDs extracts key ids from "gpg: encrypted with ..., ID <id>, ..."
// lines.
func parseKeyIDs(stderr []byte) []string {
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(stderr))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "gpg: encrypted") {
			continue
		}
		i := strings.Index(line, ", ID ")
		if i < 0 {
			continue
		}
		rest := line[i+len(", ID "):]
		if j := strings.Index(rest, ","); j >= 0 {
			rest = rest[:j]
		}
		ids = append(ids, strings.TrimSpace(rest))
	}
	return ids
}

// parseUIDs extracts user ids from key listing output, dropping the
// validity marker that precedes them.
func parseUIDs(out []byte) []string {
	var uids []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "uid") {
			continue
		}
		uid := strings.TrimSpace(line[3:])
		if i := strings.Index(uid, " "); i >= 0 && strings.HasPrefix(uid, "[") {
			uid = strings.TrimSpace(uid[i+1:])
		}
		uids = append(uids, uid)
	}
	return uids
}
