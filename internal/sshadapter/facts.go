package sshadapter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HardwareFacts is the standard set of DMI/kernel/CPU/memory/disk facts
// gathered for C6's vendor detection and device classification (spec.md
// §4.3, §4.6).
type HardwareFacts struct {
	DMI       map[string]string
	CPUModel  string
	CPUCount  int
	MemoryGB  int
	DiskInfo  string
	KernelVer string
	NICNames  []string
}

// GatherHardwareFacts runs a fixed battery of read-only commands and parses
// their output into HardwareFacts. Any single command failing degrades that
// field rather than aborting the whole gather (best-effort discovery).
func (s *Session) GatherHardwareFacts() HardwareFacts {
	facts := HardwareFacts{DMI: make(map[string]string)}

	for _, field := range []string{"sys-vendor", "product-name", "board-vendor", "board-name", "bios-vendor", "bios-version"} {
		if res, err := s.Run("dmidecode -s " + field); err == nil && res.ExitCode == 0 {
			facts.DMI[field] = strings.TrimSpace(res.Stdout)
		}
	}

	if res, err := s.Run(`lscpu | grep 'Model name' | cut -d: -f2`); err == nil {
		facts.CPUModel = strings.TrimSpace(res.Stdout)
	}
	if res, err := s.Run(`nproc`); err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(res.Stdout)); convErr == nil {
			facts.CPUCount = n
		}
	}
	if res, err := s.Run(`free -g | awk '/Mem:/ {print $2}'`); err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(res.Stdout)); convErr == nil {
			facts.MemoryGB = n
		}
	}
	if res, err := s.Run(`lsblk -d -o NAME,SIZE,TYPE`); err == nil {
		facts.DiskInfo = strings.TrimSpace(res.Stdout)
	}
	if res, err := s.Run(`uname -r`); err == nil {
		facts.KernelVer = strings.TrimSpace(res.Stdout)
	}
	if res, err := s.Run(`ls /sys/class/net | grep -v lo`); err == nil {
		facts.NICNames = strings.Fields(res.Stdout)
	}

	return facts
}

// ToolInfo describes one hardware tool discovered on the remote host.
type ToolInfo struct {
	Name      string
	Present   bool
	Version   string
}

// EnumerateHardwareTools checks for the presence/version of the standard
// hardware tool set used throughout provisioning (spec.md §4.3).
func (s *Session) EnumerateHardwareTools() []ToolInfo {
	tools := []struct{ name, versionCmd string }{
		{"ipmitool", "ipmitool -V"},
		{"dmidecode", "dmidecode -V"},
		{"lshw", "lshw -version"},
	}
	out := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		res, err := s.Run(t.versionCmd)
		info := ToolInfo{Name: t.name}
		if err == nil && res.ExitCode == 0 {
			info.Present = true
			info.Version = strings.TrimSpace(res.Stdout)
		}
		out = append(out, info)
	}
	return out
}

// ServiceStatus queries systemd for a service's active state.
func (s *Session) ServiceStatus(name string) (string, error) {
	res, err := s.Run(fmt.Sprintf("systemctl is-active %q", name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// InstallPackages installs the given package names via the host's package
// manager, trying apt then yum/dnf.
func (s *Session) InstallPackages(packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	joined := strings.Join(packages, " ")
	if res, err := s.Run("command -v apt-get"); err == nil && res.ExitCode == 0 {
		_, err := s.Run(fmt.Sprintf("apt-get install -y %s", joined))
		return err
	}
	if res, err := s.Run("command -v dnf"); err == nil && res.ExitCode == 0 {
		_, err := s.Run(fmt.Sprintf("dnf install -y %s", joined))
		return err
	}
	_, err := s.Run(fmt.Sprintf("yum install -y %s", joined))
	return err
}

// ProbeResult reports the outcome of a connectivity test, distinguishing a
// bare TCP success from a working SSH session, per spec.md §4.3's
// force-recommission trigger.
type ProbeResult struct {
	TCPReachable bool
	SSHWorks     bool
	Elapsed      time.Duration
}

// Probe performs a TCP port-22 check followed by a non-interactive `echo`,
// matching spec.md §4.3/§6 exactly (BatchMode=yes, StrictHostKeyChecking=no).
func Probe(host string, port int, creds Credentials, tcpTimeout time.Duration) ProbeResult {
	start := time.Now()
	result := ProbeResult{}

	if port == 0 {
		port = 22
	}

	if tcpTimeout <= 0 {
		tcpTimeout = 3 * time.Second
	}

	conn, err := dialTCP(host, port, tcpTimeout)
	if err != nil {
		result.Elapsed = time.Since(start)
		return result
	}
	_ = conn.Close()
	result.TCPReachable = true

	sess, err := Dial(host, port, creds)
	if err != nil {
		result.Elapsed = time.Since(start)
		return result
	}
	defer sess.Close()

	res, err := sess.Run("echo ok")
	result.SSHWorks = err == nil && res.ExitCode == 0 && strings.Contains(res.Stdout, "ok")
	result.Elapsed = time.Since(start)
	return result
}
