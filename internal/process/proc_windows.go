//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Console children cannot be asked to stop politely without a console of
// our own, so terminate is a kill of the leader only.
func terminate(p *os.Process) error {
	return p.Kill()
}

func killTree(p *os.Process) error {
	out, err := exec.Command("taskkill", "/pid", strconv.Itoa(p.Pid), "/t", "/f").CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "not found") {
			return nil
		}
		return fmt.Errorf("taskkill %d: %s: %w", p.Pid, strings.TrimSpace(string(out)), err)
	}
	return nil
}
