//go:build cuda

// Package cuda implements image.Compiler by shelling out to ptxas, the same
// way a production Triton/CUDA backend invokes the toolkit's assembler as
// an external tool rather than linking against it. Gated behind the "cuda"
// build tag like driver/cuda: "real hardware/toolkit needed" is the tag's
// meaning here, not "uses cgo."
package cuda

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"

	"github.com/orneryd/gpukernelcall/kerr"
)

// Compiler invokes ptxas to assemble PTX source into a loadable cubin.
type Compiler struct {
	// PtxasPath overrides the ptxas binary looked up on PATH, for tests.
	PtxasPath string
}

func (c *Compiler) ptxasPath() string {
	if c.PtxasPath != "" {
		return c.PtxasPath
	}
	return "ptxas"
}

// Compile writes asmText to a temp .ptx file, assembles it for sm_<major><minor>,
// and returns the resulting cubin bytes.
func (c *Compiler) Compile(ccMajor, ccMinor int, kernelName, asmText string) ([]byte, error) {
	srcFile, err := os.CreateTemp("", kernelName+"-*.ptx")
	if err != nil {
		return nil, kerr.Compilef(err, "creating temp PTX file for %q", kernelName)
	}
	defer os.Remove(srcFile.Name())

	if _, err := srcFile.WriteString(asmText); err != nil {
		return nil, kerr.Compilef(err, "writing PTX source for %q", kernelName)
	}
	if err := srcFile.Close(); err != nil {
		return nil, kerr.Compilef(err, "closing PTX source for %q", kernelName)
	}

	outFile := srcFile.Name() + ".cubin"
	defer os.Remove(outFile)

	arch := fmt.Sprintf("sm_%d%d", ccMajor, ccMinor)
	cmd := exec.Command(c.ptxasPath(), "-arch", arch, "-o", outFile, srcFile.Name())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, kerr.Compilef(err, "ptxas failed for %q: %s", kernelName, stderr.String())
	}

	cubin, err := os.ReadFile(outFile)
	if err != nil {
		return nil, kerr.Compilef(err, "reading cubin for %q", kernelName)
	}
	return cubin, nil
}
