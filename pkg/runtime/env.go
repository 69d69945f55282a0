package runtime

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// childEnv builds the chore environment: the agent's environment with
// the identity, thread-cap and GPU-visibility variables overridden.
// HOME points at the chore working directory so tools that scribble in
// $HOME stay inside it.
func childEnv(base []string, ident identity, wd string, nCPUs int, gpus []int) []string {
	n := strconv.Itoa(nCPUs)
	gpuList := joinInts(gpus)

	overrides := map[string]string{
		"HOME":    wd,
		"USER":    ident.username,
		"LOGNAME": ident.username,
		"SHELL":   "/bin/sh",

		"OMP_NUM_THREADS":           n,
		"OPENBLAS_NUM_THREADS":      n,
		"MKL_NUM_THREADS":           n,
		"NUMEXPR_NUM_THREADS":       n,
		"VECLIB_MAXIMUM_THREADS":    n,
		"TORCH_NUM_THREADS":         n,
		"TORCH_NUM_INTEROP_THREADS": strconv.Itoa(clamp(nCPUs, 1, 8)),
		"MKL_DYNAMIC":               "FALSE",
		"OMP_DYNAMIC":               "FALSE",

		"CUDA_VISIBLE_DEVICES":   gpuList,
		"NVIDIA_VISIBLE_DEVICES": gpuList,
		"HIP_VISIBLE_DEVICES":    gpuList,
		"ROCR_VISIBLE_DEVICES":   gpuList,
	}

	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		if _, overridden := overrides[key]; overridden {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+overrides[key])
	}
	return env
}

// shellCommand builds the bash -c command line for a chore. With an out
// file the script runs inside a wrapper that frames its output with
// START/END markers and propagates the script's exit code; without one
// all output goes to the null sink. umask is folded into the command
// line since it cannot be set between fork and exec from Go.
func shellCommand(script, out, choreID string) string {
	if out == "" {
		return fmt.Sprintf("umask 022; exec %s >/dev/null 2>&1", shellQuote(script))
	}

	return fmt.Sprintf(
		"umask 022; mkdir -p %s; { echo \"START CHORE::%s\"; %s; rc=$?; echo \"END CHORE::%s\"; exit $rc; } > %s 2>&1",
		shellQuote(filepath.Dir(out)), choreID, shellQuote(script), choreID, shellQuote(out))
}

// shellQuote single-quotes a string for safe interpolation into bash -c
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
