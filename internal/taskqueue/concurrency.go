package taskqueue

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/voxcut/voxcut/internal/config"
)

// Well-known scopes.
const (
	ScopeGenerateVideo   = "generate_video"
	ScopeGenerateScript  = "generate_script"
	ScopeGenerateDraft   = "generate_jianying_draft"
	ScopeTTS             = "tts"
	ScopeExtractSubtitle = "extract_subtitle"
	ScopeASRModels       = "fun_asr_models"
	ScopeTTSModels       = "qwen3_tts_models"
)

// ResolveConcurrency returns the effective worker count for a scope.
// Precedence: user override in config, then the
// VOXCUT_SCOPE_<NAME>_WORKERS environment variable, then a hardware
// heuristic.
func ResolveConcurrency(scope string, scopes map[string]config.ScopeConfig) int {
	if sc, ok := scopes[scope]; ok && sc.Override && sc.MaxWorkers >= 1 {
		return sc.MaxWorkers
	}

	envKey := fmt.Sprintf("VOXCUT_SCOPE_%s_WORKERS", strings.ToUpper(scope))
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return n
		}
	}

	return RecommendedConcurrency(scope)
}

// RecommendedConcurrency derives a per-scope worker count from the
// machine. Video work is memory and CPU heavy; downloads are
// IO-bound and kept serial so partial snapshots never interleave.
func RecommendedConcurrency(scope string) int {
	switch scope {
	case ScopeGenerateVideo:
		return clamp(min(runtime.NumCPU()/2, availableMemGB()/4), 1, 4)
	case ScopeGenerateDraft:
		return 1
	case ScopeTTS:
		return clamp(runtime.NumCPU()/4, 1, 2)
	case ScopeGenerateScript:
		return 2
	case ScopeExtractSubtitle:
		return 1
	case ScopeASRModels, ScopeTTSModels:
		return 1
	default:
		return 1
	}
}

func availableMemGB() int {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 8 // conservative default when the probe fails
	}
	return int(vm.Total / (1024 * 1024 * 1024))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
