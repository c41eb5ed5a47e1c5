package bios

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
)

// SupermicroTool implements VendorTool against Supermicro's `sum` (Supermicro
// Update Manager) CLI, bootstrapped over SSH: probe for the binary, upload
// and install a bundled archive if missing, validate (spec.md §4.7).
type SupermicroTool struct {
	// ArchivePath is the local path to the bundled sum.tar.gz to upload when
	// the remote host lacks the tool.
	ArchivePath string
	ArchiveData []byte
	RemoteDir   string // e.g. /opt/sum
}

func (t *SupermicroTool) remoteDir() string {
	if t.RemoteDir != "" {
		return t.RemoteDir
	}
	return "/opt/sum"
}

func (t *SupermicroTool) binPath() string {
	return t.remoteDir() + "/sum"
}

// Ensure probes for `sum`, installing it from the bundled archive if
// absent, then validates it runs.
func (t *SupermicroTool) Ensure(ctx context.Context, sess *sshadapter.Session) error {
	res, err := sess.Run(fmt.Sprintf("test -x %q", t.binPath()))
	if err == nil && res.ExitCode == 0 {
		return t.validate(sess)
	}

	if len(t.ArchiveData) == 0 {
		return fmt.Errorf("supermicro sum tool missing at %s and no bundled archive configured", t.binPath())
	}

	remoteArchive := t.remoteDir() + "/sum.tar.gz"
	if err := sess.PutFile(bytes.NewReader(t.ArchiveData), remoteArchive, "0644"); err != nil {
		return fmt.Errorf("uploading sum archive: %w", err)
	}
	if _, err := sess.Run(fmt.Sprintf("tar -xzf %q -C %q", remoteArchive, t.remoteDir())); err != nil {
		return fmt.Errorf("extracting sum archive: %w", err)
	}
	if _, err := sess.Run(fmt.Sprintf("chmod +x %q", t.binPath())); err != nil {
		return fmt.Errorf("marking sum executable: %w", err)
	}
	return t.validate(sess)
}

func (t *SupermicroTool) validate(sess *sshadapter.Session) error {
	res, err := sess.Run(fmt.Sprintf("%q -v", t.binPath()))
	if err != nil {
		return fmt.Errorf("validating sum tool: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sum tool validation failed: %s", res.Stderr)
	}
	return nil
}

const remoteDumpPath = "/tmp/hwprovisiond-bios-current.txt"

// Dump invokes `sum -c GetCurrentBiosCfg -o <file>` and fetches the file
// back, parsed as KEY=VALUE lines.
func (t *SupermicroTool) Dump(ctx context.Context, sess *sshadapter.Session) (Document, error) {
	cmd := fmt.Sprintf("%q -c GetCurrentBiosCfg -o %q", t.binPath(), remoteDumpPath)
	if _, err := sess.Run(cmd); err != nil {
		return Document{}, fmt.Errorf("dumping bios settings: %w", err)
	}
	raw, err := sess.GetFile(remoteDumpPath)
	if err != nil {
		return Document{}, fmt.Errorf("fetching dumped bios settings: %w", err)
	}
	return Document{Settings: parseKeyValue(string(raw))}, nil
}

// Apply writes doc to a remote file and invokes `sum -c ChangeBiosCfg`,
// reporting whether the tool's own output mentions a reboot requirement.
func (t *SupermicroTool) Apply(ctx context.Context, sess *sshadapter.Session, doc Document) (bool, error) {
	remotePath := "/tmp/hwprovisiond-bios-desired.txt"
	if err := sess.PutFile(strings.NewReader(renderKeyValue(doc.Settings)), remotePath, "0644"); err != nil {
		return false, fmt.Errorf("uploading desired bios settings: %w", err)
	}
	cmd := fmt.Sprintf("%q -c ChangeBiosCfg -i %q", t.binPath(), remotePath)
	res, err := sess.Run(cmd)
	if err != nil {
		return false, fmt.Errorf("applying bios settings: %w", err)
	}
	rebootRequired := strings.Contains(strings.ToLower(res.Stdout), "reboot")
	return rebootRequired, nil
}

func parseKeyValue(raw string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "=") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out
}

func renderKeyValue(m map[string]string) string {
	var sb strings.Builder
	for k, v := range m {
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return sb.String()
}
