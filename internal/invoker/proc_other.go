//go:build !unix

package invoker

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}
